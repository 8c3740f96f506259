// Package summary owns the business summary record, the single piece of
// truth shared across all conversational roles. The consistency rules live
// here rather than in role instructions: blank text is rejected at save,
// and a content update can never flip the submitted flag in either
// direction. Submission is its own mutation.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
	sessionx "github.com/hardlaunch/hardlaunch/agent/session"
)

// StateKey is the reserved session-state key holding the record. The
// "user:" prefix scopes it to user-owned state.
const StateKey = "user:business_summary"

type Source string

const (
	SourceSurvey Source = "survey"
	SourceManual Source = "manual"
	SourceSystem Source = "system"
)

// Record is the business summary. Overwrite semantics: last write wins for
// Text, Source and UpdatedAt; Submitted only changes through Submit.
type Record struct {
	Text      string    `json:"summary"`
	Source    Source    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
	Submitted bool      `json:"submitted"`
}

// Store reads and mutates the record inside session state.
type Store struct {
	registry *sessionx.Registry
	now      func() time.Time
}

func NewStore(registry *sessionx.Registry) (*Store, error) {
	if registry == nil {
		return nil, errors.New("session registry is required")
	}
	return &Store{registry: registry, now: time.Now}, nil
}

// Read returns the current record, or ok=false when none exists yet.
func (s *Store) Read(sess *sessionx.Session) (Record, bool) {
	raw, ok := sess.ReadState(StateKey)
	if !ok || len(raw) == 0 {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false
	}
	if strings.TrimSpace(rec.Text) == "" {
		return Record{}, false
	}
	return rec, true
}

// Save overwrites Text/Source/UpdatedAt and preserves the existing
// Submitted flag. Blank text fails validation and leaves state untouched.
func (s *Store) Save(ctx context.Context, sess *sessionx.Session, text string, source Source) (Record, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Record{}, fmt.Errorf("%w: business summary cannot be empty", contractx.ErrValidation)
	}
	if !validSource(source) {
		source = SourceSystem
	}

	rec := Record{
		Text:      trimmed,
		Source:    source,
		UpdatedAt: s.now().UTC(),
	}
	if prev, ok := s.Read(sess); ok {
		rec.Submitted = prev.Submitted
	}

	if err := s.registry.WriteState(ctx, sess, StateKey, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Submit flips the submitted flag. Re-submitting an already-submitted
// record is a no-op success.
func (s *Store) Submit(ctx context.Context, sess *sessionx.Session) (Record, error) {
	rec, ok := s.Read(sess)
	if !ok {
		return Record{}, fmt.Errorf("%w: no business summary to submit", contractx.ErrNotFound)
	}
	if strings.TrimSpace(rec.Text) == "" {
		return Record{}, fmt.Errorf("%w: business summary cannot be empty", contractx.ErrValidation)
	}
	if rec.Submitted {
		return rec, nil
	}

	rec.Submitted = true
	rec.UpdatedAt = s.now().UTC()
	if err := s.registry.WriteState(ctx, sess, StateKey, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func validSource(source Source) bool {
	switch source {
	case SourceSurvey, SourceManual, SourceSystem:
		return true
	default:
		return false
	}
}

// ParseSource maps a tool-supplied source string onto the enum, falling
// back to the given default.
func ParseSource(raw string, fallback Source) Source {
	switch Source(strings.ToLower(strings.TrimSpace(raw))) {
	case SourceSurvey:
		return SourceSurvey
	case SourceManual:
		return SourceManual
	case SourceSystem:
		return SourceSystem
	default:
		return fallback
	}
}
