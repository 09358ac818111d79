package draft

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"folio/api/internal/frontmatter"
	"folio/api/internal/hosting"
)

// Observer is told about every state change.
type Observer func(d *Draft, from, to State)

type Options struct {
	ContentDir string
	BaseBranch string
	Protected  []string
	Author     string
	Now        func() time.Time
	Observer   Observer
}

// Manager applies workflow operations to drafts. Callers must not run two
// operations on the same draft concurrently.
type Manager struct {
	gateway hosting.Gateway
	opts    Options

	mu        sync.RWMutex
	protected hosting.ProtectedSet
}

func NewManager(gateway hosting.Gateway, opts Options) *Manager {
	if opts.ContentDir == "" {
		opts.ContentDir = "src/blog"
	}
	if opts.BaseBranch == "" {
		opts.BaseBranch = "master"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	protected := hosting.NewProtectedSet(opts.Protected...)
	protected.Add(opts.BaseBranch)
	return &Manager{
		gateway:   gateway,
		opts:      opts,
		protected: protected,
	}
}

// MarkProtected records branches the gateway reported as protected.
func (m *Manager) MarkProtected(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protected.Add(names...)
}

// IsProtected reports whether saving to branch is forbidden. master, main and
// the base branch are always protected.
func (m *Manager) IsProtected(branch string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.protected.Has(branch)
}

// Path is the repository path the draft is stored at.
func (m *Manager) Path(d *Draft) string {
	filename := d.Filename
	if filename == "" {
		filename = d.Meta.Filename()
	}
	return path.Join(m.opts.ContentDir, filename)
}

// NewDraft starts a post from the template. It begins Clean.
func (m *Manager) NewDraft(id string) *Draft {
	meta, body := frontmatter.Template(m.opts.Author, m.opts.Now())
	return &Draft{
		ID:           id,
		Meta:         meta,
		Body:         body,
		SourceBranch: m.opts.BaseBranch,
		State:        StateClean,
		UpdatedAt:    m.opts.Now(),
	}
}

// Load reads filename from branch. The target branch defaults to the source
// branch unless that branch is protected.
func (m *Manager) Load(ctx context.Context, id, filename, branch string) (*Draft, error) {
	if branch == "" {
		branch = m.opts.BaseBranch
	}
	filename = strings.TrimSpace(filename)
	if filename == "" || strings.Contains(filename, "/") {
		return nil, &ValidationError{Field: "filename", Message: "a file name inside the content directory is required"}
	}

	file, err := m.gateway.GetFile(ctx, path.Join(m.opts.ContentDir, filename), branch)
	if err != nil {
		return nil, fmt.Errorf("load %s from %s: %w", filename, branch, err)
	}
	meta, body := frontmatter.Parse(file.Content)

	d := &Draft{
		ID:           id,
		Filename:     filename,
		Meta:         meta,
		Body:         body,
		SourceBranch: branch,
		Version:      file.SHA,
		Existing:     true,
		State:        StateClean,
		UpdatedAt:    m.opts.Now(),
	}
	if !m.IsProtected(branch) {
		d.TargetBranch = branch
	}
	return d, nil
}

// Fallback builds an editable stand-in for a post whose load failed. The
// draft is untracked, so saving it creates the file rather than overwriting.
func (m *Manager) Fallback(id, filename, branch string, cause error) *Draft {
	meta, body := frontmatter.Fallback(filename, m.opts.Author, cause, m.opts.Now())
	d := &Draft{
		ID:           id,
		Filename:     filename,
		Meta:         meta,
		Body:         body,
		SourceBranch: branch,
		State:        StateClean,
		UpdatedAt:    m.opts.Now(),
	}
	if cause != nil {
		d.LastError = cause.Error()
	}
	return d
}

// Edit applies an in-memory change and marks the draft Dirty.
func (m *Manager) Edit(d *Draft, edit Edit) error {
	if d.State == StateSaving || d.State == StateCreatingPR {
		return ErrBusy
	}
	if edit.Meta != nil {
		if err := edit.Meta.Validate(); err != nil {
			return &ValidationError{Field: "metadata", Message: err.Error()}
		}
	}
	if d.State == StateSaveFailed {
		if err := m.transition(d, StateDirty); err != nil {
			return err
		}
	}

	if edit.Meta != nil {
		d.Meta = *edit.Meta
	}
	if edit.Body != nil {
		d.Body = *edit.Body
	}
	return m.transition(d, StateDirty)
}

// SelectTarget changes the branch the next save writes to. Any pull request
// known for the previous target no longer applies.
func (m *Manager) SelectTarget(d *Draft, branch string) error {
	if d.State == StateSaving || d.State == StateCreatingPR {
		return ErrBusy
	}
	branch = strings.TrimSpace(branch)
	if branch != "" && !hosting.ValidBranchName(branch) {
		return &ValidationError{Field: "targetBranch", Message: fmt.Sprintf("%q is not a valid branch name", branch)}
	}
	if branch == d.TargetBranch {
		return nil
	}
	d.TargetBranch = branch
	d.PullRequest = nil
	d.UpdatedAt = m.opts.Now()
	if d.State == StatePRExists {
		return m.transition(d, StateClean)
	}
	return nil
}

func (m *Manager) validateSave(d *Draft) error {
	if d.TargetBranch == "" {
		return &ValidationError{Field: "targetBranch", Message: "select a branch to save to"}
	}
	if m.IsProtected(d.TargetBranch) {
		return &ValidationError{
			Field:   "targetBranch",
			Message: fmt.Sprintf("cannot save directly to protected branch %s, create or select a feature branch", d.TargetBranch),
		}
	}
	if strings.TrimSpace(d.Body) == "" {
		return &ValidationError{Field: "body", Message: "content cannot be empty"}
	}
	if err := d.Meta.Validate(); err != nil {
		return &ValidationError{Field: "metadata", Message: err.Error()}
	}
	return nil
}

// Save commits the draft to its target branch. Validation failures leave
// the state untouched and never reach the gateway. A gateway failure moves
// the draft to SaveFailed; a stale version token surfaces as
// hosting.ErrConflict.
func (m *Manager) Save(ctx context.Context, d *Draft) error {
	switch d.State {
	case StateSaving, StateCreatingPR:
		return ErrBusy
	case StateSaved:
		return fmt.Errorf("%w: save while %s", ErrInvalidState, d.State)
	}
	if err := m.validateSave(d); err != nil {
		return err
	}
	if d.State == StateSaveFailed {
		if err := m.transition(d, StateDirty); err != nil {
			return err
		}
	}

	filename := d.Filename
	if filename == "" {
		filename = d.Meta.Filename()
	}
	verb := "Create"
	input := hosting.PutFileInput{
		Path:    path.Join(m.opts.ContentDir, filename),
		Branch:  d.TargetBranch,
		Content: []byte(d.Text()),
	}
	if d.Tracked() {
		verb = "Update"
		input.SHA = d.Version
	}
	input.Message = fmt.Sprintf("%s %s via CMS", verb, filename)

	if err := m.transition(d, StateSaving); err != nil {
		return err
	}
	d.LastError = ""

	commit, err := m.gateway.PutFile(ctx, input)
	if err != nil {
		d.LastError = describe(err)
		if terr := m.transition(d, StateSaveFailed); terr != nil {
			return terr
		}
		return fmt.Errorf("save %s to %s: %w", filename, d.TargetBranch, err)
	}

	if err := m.transition(d, StateSaved); err != nil {
		return err
	}
	d.Version = commit.SHA
	d.Filename = filename
	d.SourceBranch = d.TargetBranch
	return m.transition(d, StateClean)
}

// CheckPR asks the gateway whether an open pull request already has the
// target branch as its head. Drafts targeting no branch or a protected one
// are left without a pull request.
func (m *Manager) CheckPR(ctx context.Context, d *Draft) error {
	switch d.State {
	case StateSaving, StateCreatingPR:
		return ErrBusy
	case StateClean, StatePRExists:
	default:
		return fmt.Errorf("%w: check pull request while %s", ErrInvalidState, d.State)
	}

	if d.TargetBranch == "" || m.IsProtected(d.TargetBranch) {
		d.PullRequest = nil
		if d.State == StatePRExists {
			return m.transition(d, StateClean)
		}
		return nil
	}

	pr, err := m.gateway.FindOpenPullRequest(ctx, d.TargetBranch)
	if err != nil {
		d.LastError = describe(err)
		return fmt.Errorf("check pull request for %s: %w", d.TargetBranch, err)
	}
	d.PullRequest = pr
	switch {
	case pr != nil && d.State == StateClean:
		return m.transition(d, StatePRExists)
	case pr == nil && d.State == StatePRExists:
		return m.transition(d, StateClean)
	}
	return nil
}

// CreatePR opens a pull request from the target branch into the base
// branch. Callers are expected to run CheckPR first; the manager refuses to
// create a second pull request it already knows about.
func (m *Manager) CreatePR(ctx context.Context, d *Draft) (hosting.PullRequest, error) {
	switch d.State {
	case StateSaving, StateCreatingPR:
		return hosting.PullRequest{}, ErrBusy
	case StatePRExists:
		return hosting.PullRequest{}, ErrPullRequestExists
	case StateDirty, StateSaveFailed:
		return hosting.PullRequest{}, &ValidationError{Field: "state", Message: "save your changes before creating a pull request"}
	case StateClean:
	default:
		return hosting.PullRequest{}, fmt.Errorf("%w: create pull request while %s", ErrInvalidState, d.State)
	}
	if d.PullRequest != nil {
		return hosting.PullRequest{}, ErrPullRequestExists
	}
	if d.TargetBranch == "" || m.IsProtected(d.TargetBranch) {
		return hosting.PullRequest{}, &ValidationError{Field: "targetBranch", Message: "pull requests need a non-protected source branch"}
	}
	if !d.Tracked() {
		return hosting.PullRequest{}, &ValidationError{Field: "state", Message: "save the post before creating a pull request"}
	}

	if err := m.transition(d, StateCreatingPR); err != nil {
		return hosting.PullRequest{}, err
	}
	d.LastError = ""

	pr, err := m.gateway.CreatePullRequest(ctx, hosting.PullRequestInput{
		Title: PullRequestTitle(d.Meta),
		Body:  PullRequestBody(d),
		Head:  d.TargetBranch,
		Base:  m.opts.BaseBranch,
	})
	if err != nil {
		d.LastError = describe(err)
		if terr := m.transition(d, StateClean); terr != nil {
			return hosting.PullRequest{}, terr
		}
		return hosting.PullRequest{}, fmt.Errorf("create pull request for %s: %w", d.TargetBranch, err)
	}

	d.PullRequest = &pr
	if err := m.transition(d, StatePRExists); err != nil {
		return hosting.PullRequest{}, err
	}
	return pr, nil
}

func (m *Manager) transition(d *Draft, to State) error {
	from := d.State
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	d.State = to
	d.UpdatedAt = m.opts.Now()
	if m.opts.Observer != nil && from != to {
		m.opts.Observer(d, from, to)
	}
	return nil
}

// describe turns a gateway error into the message shown next to the draft.
func describe(err error) string {
	switch {
	case errors.Is(err, hosting.ErrConflict):
		return "the file or branch changed on the server, reload it before saving again"
	case errors.Is(err, hosting.ErrNotFound):
		return "the file or branch no longer exists"
	case errors.Is(err, hosting.ErrUnavailable):
		return "the hosting service is unavailable, try again later"
	}
	return err.Error()
}
