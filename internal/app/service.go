package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"folio/api/internal/auth"
	"folio/api/internal/config"
	"folio/api/internal/draft"
	"folio/api/internal/frontmatter"
	"folio/api/internal/hosting"
	"folio/api/internal/reactions"
	"folio/api/internal/util"
)

type Session struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// SessionStore records hashed session ids until they expire or are revoked.
type SessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, expiresAt time.Time) error
	SessionActive(ctx context.Context, tokenHash string) (bool, error)
	RevokeSession(ctx context.Context, tokenHash string) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg          config.Config
	gateway      hosting.Gateway
	drafts       *draft.Manager
	reactions    *reactions.Service
	sessions     SessionStore
	passwordHash string
	now          func() time.Time

	checkNames []string
	checks     map[string]pinger

	draftTTL     time.Duration
	draftMu      sync.Mutex
	draftEntries map[string]*draftEntry
}

// New wires the service. A plain ADMIN_PASSWORD is bcrypt-hashed here so
// the plaintext is not kept; with neither password setting, every login
// is refused.
func New(cfg config.Config, gateway hosting.Gateway, sessions SessionStore, reactionStore reactions.Store) (*Service, error) {
	passwordHash := strings.TrimSpace(cfg.AdminPasswordHash)
	if passwordHash == "" && cfg.AdminPassword != "" {
		hashed, err := auth.HashPassword(cfg.AdminPassword)
		if err != nil {
			return nil, err
		}
		passwordHash = hashed
	}
	if passwordHash == "" {
		log.Printf("no admin password configured; admin login is disabled")
	}
	cfg.AdminPassword = ""

	draftTTL := cfg.DraftTTL
	if draftTTL <= 0 {
		draftTTL = 24 * time.Hour
	}

	s := &Service{
		cfg:          cfg,
		gateway:      gateway,
		sessions:     sessions,
		passwordHash: passwordHash,
		now:          time.Now,
		checks:       map[string]pinger{},
		draftTTL:     draftTTL,
		draftEntries: make(map[string]*draftEntry),
	}
	s.drafts = draft.NewManager(gateway, draft.Options{
		ContentDir: cfg.ContentDir,
		BaseBranch: cfg.BaseBranch,
		Protected:  cfg.ProtectedBranches,
		Author:     cfg.Author,
		Observer:   logTransition,
	})
	s.reactions = reactions.NewService(reactionStore, reactions.Options{
		Window: cfg.ReactionWindow,
		Limit:  cfg.ReactionLimit,
	})

	s.AddCheck("gateway", gateway)
	if p, ok := sessions.(pinger); ok {
		s.AddCheck("sessions", p)
	}
	if p, ok := reactionStore.(pinger); ok {
		s.AddCheck("reactions", p)
	}
	return s, nil
}

// AddCheck registers a dependency for the readiness probe.
func (s *Service) AddCheck(name string, p pinger) {
	if p == nil {
		return
	}
	if _, exists := s.checks[name]; !exists {
		s.checkNames = append(s.checkNames, name)
	}
	s.checks[name] = p
}

func logTransition(d *draft.Draft, from, to draft.State) {
	log.Printf(`{"event":"draft_transition","draft_id":"%s","from":"%s","to":"%s"}`, d.ID, from, to)
}

// Readiness pings every registered dependency concurrently and returns the
// failures by name.
func (s *Service) Readiness(ctx context.Context) (map[string]error, error) {
	var (
		mu       sync.Mutex
		failures = map[string]error{}
		group    errgroup.Group
	)
	for _, name := range s.checkNames {
		name, check := name, s.checks[name]
		group.Go(func() error {
			if err := check.Ping(ctx); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	if len(failures) > 0 {
		return failures, fmt.Errorf("%d of %d checks failed", len(failures), len(s.checkNames))
	}
	return failures, nil
}

func (s *Service) CheckNames() []string {
	return append([]string(nil), s.checkNames...)
}

func (s *Service) Login(ctx context.Context, password string) (Session, error) {
	if err := auth.CheckPassword(s.passwordHash, password); err != nil {
		if errors.Is(err, auth.ErrBadPassword) {
			return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid password", nil)
		}
		return Session{}, err
	}
	return s.issueSession(ctx)
}

func (s *Service) issueSession(ctx context.Context) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.SessionTTL)
	jti := util.NewID("sess")

	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		Sub: "admin",
		JTI: jti,
		Iat: now.Unix(),
		Exp: expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveSession(ctx, auth.HashToken(jti), expiresAt); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	return Session{Token: token, JTI: jti, ExpiresAt: time.Unix(expiresAt.Unix(), 0).UTC()}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token, s.now())
	if err != nil {
		return Session{}, err
	}
	active, err := s.sessions.SessionActive(ctx, auth.HashToken(claims.JTI))
	if err != nil {
		return Session{}, err
	}
	if !active {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{Token: token, JTI: claims.JTI, ExpiresAt: claims.ExpiresAt()}, nil
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.JTI == "" {
		return nil
	}
	return s.sessions.RevokeSession(ctx, auth.HashToken(session.JTI))
}

// ListBranches returns the branches sorted by name and teaches the draft
// manager which of them are protected.
func (s *Service) ListBranches(ctx context.Context) ([]hosting.Branch, error) {
	branches, err := s.gateway.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	for i := range branches {
		if s.drafts.IsProtected(branches[i].Name) {
			branches[i].Protected = true
		}
		if branches[i].Protected {
			s.drafts.MarkProtected(branches[i].Name)
		}
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

func (s *Service) CreateBranch(ctx context.Context, name, from string) (hosting.Branch, error) {
	name = strings.TrimSpace(name)
	if !hosting.ValidBranchName(name) {
		return hosting.Branch{}, validationError("branchName is not a valid branch name")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = s.cfg.BaseBranch
	}
	return s.gateway.CreateBranch(ctx, name, from)
}

// ListPosts lists the markdown files in the content directory.
func (s *Service) ListPosts(ctx context.Context, branch string) ([]hosting.FileEntry, error) {
	files, err := s.gateway.ListFiles(ctx, s.cfg.ContentDir, s.branchOrBase(branch))
	if err != nil {
		return nil, err
	}
	posts := make([]hosting.FileEntry, 0, len(files))
	for _, file := range files {
		if strings.HasSuffix(strings.ToLower(file.Name), ".md") {
			posts = append(posts, file)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].Name < posts[j].Name })
	return posts, nil
}

// PostFile is a stored post with its front matter decoded.
type PostFile struct {
	hosting.File
	Metadata frontmatter.Metadata `json:"metadata"`
	Body     string               `json:"body"`
}

func (s *Service) GetFile(ctx context.Context, filePath, branch string) (PostFile, error) {
	cleaned, ok := hosting.CleanPath(filePath)
	if !ok {
		return PostFile{}, validationError("path is invalid")
	}
	file, err := s.gateway.GetFile(ctx, cleaned, s.branchOrBase(branch))
	if err != nil {
		return PostFile{}, err
	}
	meta, body := frontmatter.Parse(file.Content)
	return PostFile{File: file, Metadata: meta, Body: body}, nil
}

type CommitInput struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Branch   string `json:"branch"`
	SHA      string `json:"sha"`
	Message  string `json:"message"`
}

// CommitPost writes raw post text into the content directory. Protected
// branches are refused before the gateway is called.
func (s *Service) CommitPost(ctx context.Context, input CommitInput) (hosting.FileCommit, error) {
	filename := strings.TrimSpace(input.Filename)
	if filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		return hosting.FileCommit{}, validationError("filename must name a file inside the content directory")
	}
	if strings.TrimSpace(input.Content) == "" {
		return hosting.FileCommit{}, validationError("content is required")
	}
	branch := strings.TrimSpace(input.Branch)
	if branch == "" {
		return hosting.FileCommit{}, validationError("branch is required")
	}
	if s.drafts.IsProtected(branch) {
		return hosting.FileCommit{}, validationError(fmt.Sprintf("branch %q is protected; save to a working branch", branch))
	}
	message := strings.TrimSpace(input.Message)
	if message == "" {
		verb := "Update"
		if input.SHA == "" {
			verb = "Create"
		}
		message = fmt.Sprintf("%s %s via CMS", verb, filename)
	}
	return s.gateway.PutFile(ctx, hosting.PutFileInput{
		Path:    path.Join(s.cfg.ContentDir, filename),
		Branch:  branch,
		Message: message,
		Content: []byte(input.Content),
		SHA:     strings.TrimSpace(input.SHA),
	})
}

// PullRequestStatus returns the open pull request from branch, or nil.
// Protected branches never have one.
func (s *Service) PullRequestStatus(ctx context.Context, branch string) (*hosting.PullRequest, error) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return nil, validationError("branch is required")
	}
	if s.drafts.IsProtected(branch) {
		return nil, nil
	}
	return s.gateway.FindOpenPullRequest(ctx, branch)
}

type PullRequestRequest struct {
	Branch string `json:"branch"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func (s *Service) CreatePullRequest(ctx context.Context, input PullRequestRequest) (hosting.PullRequest, error) {
	branch := strings.TrimSpace(input.Branch)
	if branch == "" {
		return hosting.PullRequest{}, validationError("branch is required")
	}
	if s.drafts.IsProtected(branch) {
		return hosting.PullRequest{}, validationError(fmt.Sprintf("cannot open a pull request from protected branch %q", branch))
	}
	existing, err := s.gateway.FindOpenPullRequest(ctx, branch)
	if err != nil {
		return hosting.PullRequest{}, err
	}
	if existing != nil {
		return hosting.PullRequest{}, domainError(http.StatusConflict, "CONFLICT", "A pull request is already open for this branch", map[string]any{"pullRequest": existing})
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = draft.PullRequestTitle(frontmatter.Metadata{})
	}
	return s.gateway.CreatePullRequest(ctx, hosting.PullRequestInput{
		Title: title,
		Body:  input.Body,
		Head:  branch,
		Base:  s.cfg.BaseBranch,
	})
}

func (s *Service) ReactionKinds() []reactions.Kind {
	return reactions.Kinds()
}

func (s *Service) ReactionCounts(ctx context.Context, documentID string) (map[string]int, error) {
	return s.reactions.Counts(ctx, documentID)
}

func (s *Service) AddReaction(ctx context.Context, documentID, kind, clientID string) (reactions.Result, error) {
	return s.reactions.Add(ctx, documentID, kind, clientID)
}

func (s *Service) RemoveReaction(ctx context.Context, documentID, kind, clientID string) (reactions.Result, error) {
	return s.reactions.Remove(ctx, documentID, kind, clientID)
}

func (s *Service) branchOrBase(branch string) string {
	if branch = strings.TrimSpace(branch); branch != "" {
		return branch
	}
	return s.cfg.BaseBranch
}
