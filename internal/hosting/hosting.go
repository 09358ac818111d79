// Package hosting defines the source-hosting operations the admin API relies
// on and the error values every implementation maps its failures to.
package hosting

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrNotFound reports a missing file, branch or repository.
	ErrNotFound = errors.New("hosting: not found")
	// ErrConflict reports an existing branch or a stale version token.
	ErrConflict = errors.New("hosting: conflict")
	// ErrNotAFile reports a path that names a directory.
	ErrNotAFile = errors.New("hosting: path is a directory, not a file")
	// ErrUnavailable reports a transport failure or an unexpected upstream response.
	ErrUnavailable = errors.New("hosting: unavailable")
)

type Branch struct {
	Name      string `json:"name"`
	SHA       string `json:"sha"`
	Protected bool   `json:"protected"`
}

// File is a stored file at a branch head. SHA is the version token that must
// accompany an update of the same file.
type File struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type FileEntry struct {
	Path string `json:"path"`
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

// PutFileInput creates a file when SHA is empty and updates it otherwise.
type PutFileInput struct {
	Path    string
	Branch  string
	Message string
	Content []byte
	SHA     string
}

type FileCommit struct {
	Path      string `json:"path"`
	SHA       string `json:"sha"`
	CommitSHA string `json:"commitSha"`
}

type PullRequestInput struct {
	Title string
	Body  string
	Head  string
	Base  string
	Draft bool
}

type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Head   string `json:"head"`
	Base   string `json:"base"`
}

// Gateway is implemented by the GitHub client and by the local git fallback.
type Gateway interface {
	ListBranches(ctx context.Context) ([]Branch, error)
	CreateBranch(ctx context.Context, name, from string) (Branch, error)
	ListFiles(ctx context.Context, dir, branch string) ([]FileEntry, error)
	GetFile(ctx context.Context, path, branch string) (File, error)
	PutFile(ctx context.Context, input PutFileInput) (FileCommit, error)
	CreatePullRequest(ctx context.Context, input PullRequestInput) (PullRequest, error)
	// FindOpenPullRequest returns nil when no open pull request has head as
	// its source branch.
	FindOpenPullRequest(ctx context.Context, head string) (*PullRequest, error)
	Ping(ctx context.Context) error
}

// AlwaysProtected lists branches that are protected whatever the
// configuration says.
var AlwaysProtected = []string{"master", "main"}

// ProtectedSet is a set of branch names that must never be written to.
type ProtectedSet map[string]struct{}

// NewProtectedSet returns AlwaysProtected plus names.
func NewProtectedSet(names ...string) ProtectedSet {
	set := ProtectedSet{}
	set.Add(AlwaysProtected...)
	set.Add(names...)
	return set
}

func (p ProtectedSet) Add(names ...string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			p[name] = struct{}{}
		}
	}
}

func (p ProtectedSet) Has(name string) bool {
	_, ok := p[strings.TrimSpace(name)]
	return ok
}

// CleanPath normalises a repository-relative path and rejects attempts to
// leave the repository root.
func CleanPath(p string) (string, bool) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", false
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" || strings.Contains(p, "..") {
		return "", false
	}
	return strings.TrimPrefix(cleaned, "/"), true
}

// ValidBranchName applies the subset of git ref rules the editor needs.
func ValidBranchName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") ||
		strings.HasSuffix(name, ".lock") || strings.HasPrefix(name, "-") {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") || strings.Contains(name, "@{") {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r == 0x7f || strings.ContainsRune("~^:?*[\\", r) {
			return false
		}
	}
	return true
}
