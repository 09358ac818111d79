package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"folio/api/internal/draft"
	"folio/api/internal/frontmatter"
	"folio/api/internal/hosting"
	"folio/api/internal/util"
)

// draftEntry serialises operations on one draft. Gateway calls run under
// the entry lock, never under the registry lock.
type draftEntry struct {
	mu        sync.Mutex
	draft     *draft.Draft
	expiresAt time.Time
}

var errDraftNotFound = domainError(http.StatusNotFound, "NOT_FOUND", "Draft not found", nil)

type OpenDraftInput struct {
	Filename string `json:"filename"`
	Branch   string `json:"branch"`
}

// OpenDraft starts a new post when no filename is given and otherwise loads
// the stored post. A post that cannot be loaded opens as a fallback draft
// carrying the failure in lastError.
func (s *Service) OpenDraft(ctx context.Context, input OpenDraftInput) (*draft.Draft, error) {
	id := util.NewID("draft")
	filename := strings.TrimSpace(input.Filename)

	var d *draft.Draft
	if filename == "" {
		d = s.drafts.NewDraft(id)
	} else {
		loaded, err := s.drafts.Load(ctx, id, filename, s.branchOrBase(input.Branch))
		var validation *draft.ValidationError
		switch {
		case errors.As(err, &validation):
			return nil, err
		case err != nil:
			d = s.drafts.Fallback(id, filename, s.branchOrBase(input.Branch), err)
		default:
			d = loaded
			s.refreshPullRequest(ctx, d)
		}
	}

	s.storeDraft(d)
	return d.Clone(), nil
}

func (s *Service) GetDraft(id string) (*draft.Draft, error) {
	var out *draft.Draft
	err := s.withDraft(id, func(d *draft.Draft) error {
		out = d.Clone()
		return nil
	})
	return out, err
}

// DiscardDraft forgets the draft. The stored post is untouched.
func (s *Service) DiscardDraft(id string) error {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	if _, ok := s.draftEntries[id]; !ok {
		return errDraftNotFound
	}
	delete(s.draftEntries, id)
	return nil
}

type EditDraftInput struct {
	Metadata *frontmatter.Metadata `json:"metadata"`
	Body     *string               `json:"body"`
}

func (s *Service) EditDraft(id string, input EditDraftInput) (*draft.Draft, error) {
	return s.mutateDraft(id, func(d *draft.Draft) error {
		return s.drafts.Edit(d, draft.Edit{Meta: input.Metadata, Body: input.Body})
	})
}

// SelectDraftTarget changes the draft's target branch and rechecks for an
// open pull request from it.
func (s *Service) SelectDraftTarget(ctx context.Context, id, branch string) (*draft.Draft, error) {
	return s.mutateDraft(id, func(d *draft.Draft) error {
		if err := s.drafts.SelectTarget(d, branch); err != nil {
			return err
		}
		s.refreshPullRequest(ctx, d)
		return nil
	})
}

// SaveDraft commits the draft and then looks for an open pull request from
// the target branch. A failed lookup is reported in lastError only.
func (s *Service) SaveDraft(ctx context.Context, id string) (*draft.Draft, error) {
	return s.mutateDraft(id, func(d *draft.Draft) error {
		if err := s.drafts.Save(ctx, d); err != nil {
			return err
		}
		s.refreshPullRequest(ctx, d)
		return nil
	})
}

func (s *Service) CheckDraftPullRequest(ctx context.Context, id string) (*draft.Draft, error) {
	return s.mutateDraft(id, func(d *draft.Draft) error {
		return s.drafts.CheckPR(ctx, d)
	})
}

func (s *Service) CreateDraftPullRequest(ctx context.Context, id string) (*draft.Draft, hosting.PullRequest, error) {
	var pr hosting.PullRequest
	d, err := s.mutateDraft(id, func(d *draft.Draft) error {
		created, err := s.drafts.CreatePR(ctx, d)
		if err != nil {
			return err
		}
		pr = created
		return nil
	})
	return d, pr, err
}

func (s *Service) refreshPullRequest(ctx context.Context, d *draft.Draft) {
	if d.State != draft.StateClean && d.State != draft.StatePRExists {
		return
	}
	if err := s.drafts.CheckPR(ctx, d); err != nil {
		d.LastError = "Checking for an open pull request failed: " + err.Error()
	}
}

// mutateDraft runs fn under the draft's lock and returns a snapshot taken
// after fn, including when fn fails.
func (s *Service) mutateDraft(id string, fn func(*draft.Draft) error) (*draft.Draft, error) {
	var out *draft.Draft
	err := s.withDraft(id, func(d *draft.Draft) error {
		fnErr := fn(d)
		out = d.Clone()
		return fnErr
	})
	if out == nil {
		return nil, err
	}
	return out, err
}

func (s *Service) withDraft(id string, fn func(*draft.Draft) error) error {
	entry, ok := s.lookupDraft(id)
	if !ok {
		return errDraftNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	err := fn(entry.draft)

	s.draftMu.Lock()
	entry.expiresAt = s.now().Add(s.draftTTL)
	s.draftMu.Unlock()
	return err
}

func (s *Service) lookupDraft(id string) (*draftEntry, bool) {
	now := s.now()
	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	for key, entry := range s.draftEntries {
		if now.After(entry.expiresAt) {
			delete(s.draftEntries, key)
		}
	}
	entry, ok := s.draftEntries[id]
	return entry, ok
}

func (s *Service) storeDraft(d *draft.Draft) {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	s.draftEntries[d.ID] = &draftEntry{
		draft:     d,
		expiresAt: s.now().Add(s.draftTTL),
	}
}
