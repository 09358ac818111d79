// Package draft sequences the editing workflow of a single blog post: edit,
// save to a branch, check for and open a pull request.
package draft

import (
	"errors"
	"fmt"
	"time"

	"folio/api/internal/frontmatter"
	"folio/api/internal/hosting"
)

type State string

const (
	StateClean      State = "clean"
	StateDirty      State = "dirty"
	StateSaving     State = "saving"
	StateSaveFailed State = "save_failed"
	StateSaved      State = "saved"
	StateCreatingPR State = "creating_pr"
	StatePRExists   State = "pr_exists"
)

var transitions = map[State][]State{
	StateClean:      {StateDirty, StateSaving, StateCreatingPR, StatePRExists},
	StateDirty:      {StateDirty, StateSaving},
	StateSaving:     {StateSaved, StateSaveFailed},
	StateSaveFailed: {StateDirty},
	StateSaved:      {StateClean},
	StateCreatingPR: {StatePRExists, StateClean},
	StatePRExists:   {StateDirty, StateSaving, StateClean},
}

// CanTransition reports whether the workflow allows moving from one state to
// another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrBusy is returned while a save or pull request creation is in flight.
	ErrBusy = errors.New("draft: operation in progress")
	// ErrInvalidState is returned when an operation is not allowed in the
	// draft's current state.
	ErrInvalidState = errors.New("draft: operation not allowed in current state")
	// ErrPullRequestExists is returned by CreatePR when the draft already
	// knows about an open pull request for its branch.
	ErrPullRequestExists = errors.New("draft: pull request already exists")
)

// ValidationError is a precondition failure detected before any call to the
// hosting gateway.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Draft is the in-memory working copy of a post.
type Draft struct {
	ID           string               `json:"id"`
	Filename     string               `json:"filename"`
	Meta         frontmatter.Metadata `json:"metadata"`
	Body         string               `json:"body"`
	SourceBranch string               `json:"sourceBranch"`
	TargetBranch string               `json:"targetBranch"`
	// Version is the stored file's version token. Empty until the post has
	// been loaded from or saved to the gateway.
	Version     string               `json:"version,omitempty"`
	Existing    bool                 `json:"existing"`
	State       State                `json:"state"`
	PullRequest *hosting.PullRequest `json:"pullRequest,omitempty"`
	LastError   string               `json:"lastError,omitempty"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// Dirty reports unsaved edits.
func (d *Draft) Dirty() bool {
	return d.State == StateDirty || d.State == StateSaveFailed
}

// Tracked reports whether the draft corresponds to a stored file version.
func (d *Draft) Tracked() bool {
	return d.Version != ""
}

// Text is the stored form of the draft.
func (d *Draft) Text() string {
	return frontmatter.Serialize(d.Meta, d.Body)
}

// Clone returns a copy that shares no mutable state with d.
func (d *Draft) Clone() *Draft {
	clone := *d
	if d.PullRequest != nil {
		pr := *d.PullRequest
		clone.PullRequest = &pr
	}
	return &clone
}

// Edit holds the fields to replace; nil fields are left alone.
type Edit struct {
	Meta *frontmatter.Metadata `json:"metadata,omitempty"`
	Body *string               `json:"body,omitempty"`
}

// PullRequestTitle derives the pull request title from the post title.
func PullRequestTitle(meta frontmatter.Metadata) string {
	if meta.Title == "" {
		return "Update blog post"
	}
	return "Add/Update: " + meta.Title
}

// PullRequestBody derives the pull request description.
func PullRequestBody(d *Draft) string {
	verb := "Created"
	if d.Existing {
		verb = "Updated"
	}
	subject := d.Filename
	if subject == "" {
		subject = "new post"
	}
	summary := d.Meta.Description
	if summary == "" {
		summary = "Blog post updates via CMS"
	}
	return fmt.Sprintf("## Changes\n\n%s blog post: %s\n\n### Summary\n%s\n\n---\n*Created via blog CMS*", verb, subject, summary)
}
