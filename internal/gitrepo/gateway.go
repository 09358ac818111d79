// Package gitrepo implements hosting.Gateway on a git repository on local
// disk. It backs the admin API when no GitHub token is configured.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"folio/api/internal/hosting"
)

type Options struct {
	BaseBranch  string
	ContentDirs []string
	Protected   []string
	AuthorName  string
	AuthorEmail string
}

type Gateway struct {
	dir       string
	opts      Options
	protected hosting.ProtectedSet

	mu    sync.Mutex
	pulls []hosting.PullRequest
}

var _ hosting.Gateway = (*Gateway)(nil)

// Open opens the repository at dir, creating it with an initial commit on
// the base branch when it does not exist yet.
func Open(dir string, opts Options) (*Gateway, error) {
	if opts.BaseBranch == "" {
		opts.BaseBranch = "master"
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "Folio"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "folio@localhost"
	}
	g := &Gateway{
		dir:       dir,
		opts:      opts,
		protected: hosting.NewProtectedSet(opts.Protected...),
	}
	if err := g.ensureRepo(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) ensureRepo() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := git.PlainOpen(g.dir); err == nil {
		return nil
	} else if !errors.Is(err, git.ErrRepositoryNotExists) {
		return fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	base := plumbing.NewBranchReferenceName(g.opts.BaseBranch)
	repo, err := git.PlainInitWithOptions(g.dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: base},
	})
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	var seeded []string
	for _, dir := range g.opts.ContentDirs {
		clean, ok := hosting.CleanPath(dir)
		if !ok {
			continue
		}
		keep := path.Join(clean, ".gitkeep")
		if err := writeWorktreeFile(g.dir, keep, nil); err != nil {
			return err
		}
		seeded = append(seeded, keep)
	}
	if len(seeded) == 0 {
		if err := writeWorktreeFile(g.dir, ".gitkeep", nil); err != nil {
			return err
		}
		seeded = append(seeded, ".gitkeep")
	}
	for _, file := range seeded {
		if _, err := worktree.Add(file); err != nil {
			return fmt.Errorf("git add %s: %w", file, err)
		}
	}

	hash, err := worktree.Commit("Initialize content repository", &git.CommitOptions{Author: g.signature()})
	if err != nil {
		return fmt.Errorf("commit initial content: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(base, hash)); err != nil {
		return fmt.Errorf("set %s branch ref: %w", g.opts.BaseBranch, err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, base)); err != nil {
		return fmt.Errorf("set HEAD to %s: %w", g.opts.BaseBranch, err)
	}
	return nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	if _, err := git.PlainOpen(g.dir); err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	return nil
}

func (g *Gateway) ListBranches(ctx context.Context) ([]hosting.Branch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	iter, err := repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer iter.Close()

	var branches []hosting.Branch
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		branches = append(branches, hosting.Branch{
			Name:      name,
			SHA:       ref.Hash().String(),
			Protected: g.protected.Has(name),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

func (g *Gateway) CreateBranch(ctx context.Context, name, from string) (hosting.Branch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return hosting.Branch{}, fmt.Errorf("open repo: %w", err)
	}

	branchRefName := plumbing.NewBranchReferenceName(name)
	if _, err := repo.Reference(branchRefName, true); err == nil {
		return hosting.Branch{}, fmt.Errorf("branch %s already exists: %w", name, hosting.ErrConflict)
	}

	fromRef, err := g.branchRef(repo, from)
	if err != nil {
		return hosting.Branch{}, err
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRefName, fromRef.Hash())); err != nil {
		return hosting.Branch{}, fmt.Errorf("create branch ref: %w", err)
	}
	return hosting.Branch{Name: name, SHA: fromRef.Hash().String(), Protected: g.protected.Has(name)}, nil
}

func (g *Gateway) ListFiles(ctx context.Context, dir, branch string) ([]hosting.FileEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	clean, ok := hosting.CleanPath(dir)
	if !ok {
		return nil, fmt.Errorf("invalid directory %q: %w", dir, hosting.ErrNotFound)
	}
	commit, err := g.headCommit(branch)
	if err != nil {
		return nil, err
	}
	root, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	tree, err := root.Tree(clean)
	if err != nil {
		if errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, fmt.Errorf("%s: %w", clean, hosting.ErrNotFound)
		}
		return nil, fmt.Errorf("load tree %s: %w", clean, err)
	}

	files := make([]hosting.FileEntry, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if !entry.Mode.IsFile() {
			continue
		}
		files = append(files, hosting.FileEntry{
			Path: path.Join(clean, entry.Name),
			Name: entry.Name,
			SHA:  entry.Hash.String(),
		})
	}
	return files, nil
}

func (g *Gateway) GetFile(ctx context.Context, filePath, branch string) (hosting.File, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	clean, ok := hosting.CleanPath(filePath)
	if !ok {
		return hosting.File{}, fmt.Errorf("invalid path %q: %w", filePath, hosting.ErrNotFound)
	}
	commit, err := g.headCommit(branch)
	if err != nil {
		return hosting.File{}, err
	}
	file, err := lookupFile(commit, clean)
	if err != nil {
		return hosting.File{}, err
	}
	content, err := file.Contents()
	if err != nil {
		return hosting.File{}, fmt.Errorf("read %s: %w", clean, err)
	}
	return hosting.File{
		Path:    clean,
		Name:    path.Base(clean),
		Content: content,
		SHA:     file.Hash.String(),
	}, nil
}

// PutFile commits input.Content to input.Branch. An empty SHA creates the
// file; a non-empty SHA must match the blob currently stored at the path.
func (g *Gateway) PutFile(ctx context.Context, input hosting.PutFileInput) (hosting.FileCommit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	clean, ok := hosting.CleanPath(input.Path)
	if !ok {
		return hosting.FileCommit{}, fmt.Errorf("invalid path %q: %w", input.Path, hosting.ErrNotFound)
	}

	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return hosting.FileCommit{}, fmt.Errorf("open repo: %w", err)
	}
	ref, err := g.branchRef(repo, input.Branch)
	if err != nil {
		return hosting.FileCommit{}, err
	}
	head, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return hosting.FileCommit{}, fmt.Errorf("load commit object: %w", err)
	}

	current, err := lookupFile(head, clean)
	switch {
	case err == nil:
		if input.SHA != current.Hash.String() {
			return hosting.FileCommit{}, fmt.Errorf("%s is at %s but %q was supplied: %w", clean, current.Hash, input.SHA, hosting.ErrConflict)
		}
	case errors.Is(err, hosting.ErrNotFound):
		if input.SHA != "" {
			return hosting.FileCommit{}, fmt.Errorf("%s does not exist on %s: %w", clean, input.Branch, hosting.ErrConflict)
		}
	default:
		return hosting.FileCommit{}, err
	}

	hash, err := g.commit(repo, input.Branch, clean, input.Content, input.Message)
	if err != nil {
		return hosting.FileCommit{}, err
	}
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return hosting.FileCommit{}, fmt.Errorf("read commit object: %w", err)
	}
	stored, err := commit.File(clean)
	if err != nil {
		return hosting.FileCommit{}, fmt.Errorf("read committed file: %w", err)
	}
	return hosting.FileCommit{Path: clean, SHA: stored.Hash.String(), CommitSHA: hash.String()}, nil
}

func (g *Gateway) CreatePullRequest(ctx context.Context, input hosting.PullRequestInput) (hosting.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return hosting.PullRequest{}, fmt.Errorf("open repo: %w", err)
	}
	if _, err := g.branchRef(repo, input.Head); err != nil {
		return hosting.PullRequest{}, err
	}
	if _, err := g.branchRef(repo, input.Base); err != nil {
		return hosting.PullRequest{}, err
	}
	if existing := g.openPull(input.Head); existing != nil {
		return hosting.PullRequest{}, fmt.Errorf("a pull request already exists for %s: %w", input.Head, hosting.ErrConflict)
	}

	number := len(g.pulls) + 1
	pr := hosting.PullRequest{
		Number: number,
		URL:    fmt.Sprintf("file://%s#pull/%d", filepath.ToSlash(g.dir), number),
		Title:  input.Title,
		State:  "open",
		Head:   input.Head,
		Base:   input.Base,
	}
	g.pulls = append(g.pulls, pr)
	return pr, nil
}

func (g *Gateway) FindOpenPullRequest(ctx context.Context, head string) (*hosting.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openPull(head), nil
}

func (g *Gateway) openPull(head string) *hosting.PullRequest {
	for i := range g.pulls {
		if g.pulls[i].Head == head && g.pulls[i].State == "open" {
			pr := g.pulls[i]
			return &pr
		}
	}
	return nil
}

func (g *Gateway) branchRef(repo *git.Repository, branch string) (*plumbing.Reference, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("branch %s: %w", branch, hosting.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	return ref, nil
}

func (g *Gateway) headCommit(branch string) (*object.Commit, error) {
	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := g.branchRef(repo, branch)
	if err != nil {
		return nil, err
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return commit, nil
}

func (g *Gateway) commit(repo *git.Repository, branch, filePath string, content []byte, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Force: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("checkout branch %s: %w", branch, err)
	}

	if err := writeWorktreeFile(worktree.Filesystem.Root(), filePath, content); err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := worktree.Add(filePath); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add %s: %w", filePath, err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{Author: g.signature()})
	if errors.Is(err, git.ErrEmptyCommit) {
		ref, refErr := g.branchRef(repo, branch)
		if refErr != nil {
			return plumbing.ZeroHash, refErr
		}
		return ref.Hash(), nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit %s: %w", filePath, err)
	}
	return hash, nil
}

func (g *Gateway) signature() *object.Signature {
	return &object.Signature{
		Name:  g.opts.AuthorName,
		Email: g.opts.AuthorEmail,
		When:  time.Now(),
	}
}

// lookupFile finds filePath in commit, telling directories apart from
// missing paths.
func lookupFile(commit *object.Commit, filePath string) (*object.File, error) {
	file, err := commit.File(filePath)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, object.ErrFileNotFound) {
		return nil, fmt.Errorf("load %s: %w", filePath, err)
	}
	tree, treeErr := commit.Tree()
	if treeErr == nil {
		if _, dirErr := tree.Tree(filePath); dirErr == nil {
			return nil, fmt.Errorf("%s: %w", filePath, hosting.ErrNotAFile)
		}
	}
	return nil, fmt.Errorf("%s: %w", filePath, hosting.ErrNotFound)
}

func writeWorktreeFile(root, filePath string, content []byte) error {
	full := filepath.Join(root, filepath.FromSlash(filePath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", filePath, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filePath, err)
	}
	return nil
}
