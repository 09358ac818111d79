// Package reactions keeps per-post reaction counts for anonymous visitors.
//
// Each visitor holds at most one reaction of each kind per post, and every
// mutation is throttled by a sliding window per client id.
package reactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const (
	DefaultWindow = time.Minute
	DefaultLimit  = 10

	maxDocumentIDLength = 200
	maxClientIDLength   = 128
)

var (
	// ErrRateLimited is returned when a client has used up its budget for
	// the current window. The rejected call is not counted.
	ErrRateLimited = errors.New("reactions: rate limit exceeded")
	// ErrInvalid wraps input validation failures.
	ErrInvalid = errors.New("reactions: invalid input")
)

type Kind struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Label string `json:"label"`
}

var kinds = []Kind{
	{Name: "like", Emoji: "👍", Label: "Like"},
	{Name: "insightful", Emoji: "💡", Label: "Insightful"},
	{Name: "love", Emoji: "❤️", Label: "Love"},
}

// Kinds lists the supported reactions in display order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// NormalizeKind accepts a kind name or its emoji and returns the name.
func NormalizeKind(value string) (string, bool) {
	value = strings.TrimSpace(value)
	bare := strings.TrimSuffix(value, "️")
	for _, kind := range kinds {
		if strings.EqualFold(value, kind.Name) || value == kind.Emoji || bare == strings.TrimSuffix(kind.Emoji, "️") {
			return kind.Name, true
		}
	}
	return "", false
}

// NewClientID returns a fresh random client identifier.
func NewClientID() string {
	return uuid.NewString()
}

// Store persists reaction records and the rate-limit log. InsertReaction
// and DeleteReaction report whether a record was actually added or removed.
type Store interface {
	ReactionCounts(ctx context.Context, documentID string) (map[string]int, error)
	InsertReaction(ctx context.Context, documentID, kind, clientID string, at time.Time) (bool, error)
	DeleteReaction(ctx context.Context, documentID, kind, clientID string) (bool, error)
	// AllowReaction counts the client's log entries newer than now-window.
	// Below limit it appends an entry at now and returns true; otherwise it
	// returns false and leaves the log unchanged.
	AllowReaction(ctx context.Context, clientID string, now time.Time, window time.Duration, limit int) (bool, error)
}

type Options struct {
	Window time.Duration
	Limit  int
	Now    func() time.Time
}

type Service struct {
	store  Store
	window time.Duration
	limit  int
	now    func() time.Time
}

func NewService(store Store, opts Options) *Service {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, window: opts.Window, limit: opts.Limit, now: opts.Now}
}

// Result describes a mutation and the counts right after it.
type Result struct {
	DocumentID string         `json:"documentId"`
	Kind       string         `json:"kind"`
	Changed    bool           `json:"changed"`
	Counts     map[string]int `json:"counts"`
}

// Counts returns the number of distinct clients per kind, with every kind
// present.
func (s *Service) Counts(ctx context.Context, documentID string) (map[string]int, error) {
	if err := validateDocumentID(documentID); err != nil {
		return nil, err
	}
	stored, err := s.store.ReactionCounts(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load reaction counts: %w", err)
	}
	counts := make(map[string]int, len(kinds))
	for _, kind := range kinds {
		if n := stored[kind.Name]; n > 0 {
			counts[kind.Name] = n
		} else {
			counts[kind.Name] = 0
		}
	}
	return counts, nil
}

// Add records the client's reaction. Repeating it is a no-op that still
// uses up rate-limit budget.
func (s *Service) Add(ctx context.Context, documentID, kind, clientID string) (Result, error) {
	name, err := s.admit(ctx, documentID, kind, clientID)
	if err != nil {
		return Result{}, err
	}
	changed, err := s.store.InsertReaction(ctx, documentID, name, clientID, s.now())
	if err != nil {
		return Result{}, fmt.Errorf("insert reaction: %w", err)
	}
	return s.result(ctx, documentID, name, changed)
}

// Remove withdraws the client's reaction; removing an absent reaction is a
// no-op that still uses up rate-limit budget.
func (s *Service) Remove(ctx context.Context, documentID, kind, clientID string) (Result, error) {
	name, err := s.admit(ctx, documentID, kind, clientID)
	if err != nil {
		return Result{}, err
	}
	changed, err := s.store.DeleteReaction(ctx, documentID, name, clientID)
	if err != nil {
		return Result{}, fmt.Errorf("delete reaction: %w", err)
	}
	return s.result(ctx, documentID, name, changed)
}

func (s *Service) admit(ctx context.Context, documentID, kind, clientID string) (string, error) {
	if err := validateDocumentID(documentID); err != nil {
		return "", err
	}
	if err := validateClientID(clientID); err != nil {
		return "", err
	}
	name, ok := NormalizeKind(kind)
	if !ok {
		return "", fmt.Errorf("%w: unknown reaction %q", ErrInvalid, kind)
	}
	allowed, err := s.store.AllowReaction(ctx, clientID, s.now(), s.window, s.limit)
	if err != nil {
		return "", fmt.Errorf("check rate limit: %w", err)
	}
	if !allowed {
		return "", ErrRateLimited
	}
	return name, nil
}

func (s *Service) result(ctx context.Context, documentID, kind string, changed bool) (Result, error) {
	counts, err := s.Counts(ctx, documentID)
	if err != nil {
		return Result{}, err
	}
	return Result{DocumentID: documentID, Kind: kind, Changed: changed, Counts: counts}, nil
}

func validateDocumentID(documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalid)
	}
	if len(documentID) > maxDocumentIDLength {
		return fmt.Errorf("%w: document id is too long", ErrInvalid)
	}
	return nil
}

func validateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalid)
	}
	if len(clientID) > maxClientIDLength {
		return fmt.Errorf("%w: client id is too long", ErrInvalid)
	}
	if strings.IndexFunc(clientID, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: client id must not contain spaces", ErrInvalid)
	}
	return nil
}
