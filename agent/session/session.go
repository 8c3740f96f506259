package session

import (
	"encoding/json"
	"fmt"
	"time"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
)

// Session is one user's ongoing conversation and associated state.
// History is append-only; State holds named structured values scoped to
// the session (the business summary record lives there under its
// reserved key).
type Session struct {
	ID     string `json:"session_id"`
	UserID string `json:"user_id"`

	History []Turn                     `json:"history,omitempty"`
	State   map[string]json.RawMessage `json:"state,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one history entry. Insertion order is meaningful: an empty
// history marks first contact.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func New(id, userID string, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		State:     make(map[string]json.RawMessage, 4),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// EnsureStateMap makes sure s.State is initialized.
func (s *Session) EnsureStateMap() {
	if s.State == nil {
		s.State = make(map[string]json.RawMessage, 4)
	}
}

// AppendTurn adds a history entry. Prior entries are never mutated or
// reordered.
func (s *Session) AppendTurn(role, text string, now time.Time) {
	s.History = append(s.History, Turn{
		Role:      role,
		Text:      text,
		Timestamp: now.UTC(),
	})
	s.Touch(now)
}

// FirstContact reports whether the session has no history yet.
func (s *Session) FirstContact() bool {
	return s == nil || len(s.History) == 0
}

// ReadState returns the raw value stored under key.
func (s *Session) ReadState(key string) (json.RawMessage, bool) {
	if s == nil || s.State == nil {
		return nil, false
	}
	v, ok := s.State[key]
	return v, ok
}

// WriteState marshals value and stores it under key. Writes to different
// keys never clobber each other; the whole map is never replaced.
func (s *Session) WriteState(key string, value any, now time.Time) error {
	if key == "" {
		return fmt.Errorf("%w: state key is empty", contractx.ErrValidation)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: marshal state value for key=%s: %v", contractx.ErrValidation, key, err)
	}
	s.EnsureStateMap()
	s.State[key] = raw
	s.Touch(now)
	return nil
}

// Turns returns the history as completion-service turns.
func (s *Session) Turns() []contractx.Turn {
	if s == nil || len(s.History) == 0 {
		return nil
	}
	turns := make([]contractx.Turn, 0, len(s.History))
	for _, t := range s.History {
		turns = append(turns, contractx.Turn{Role: t.Role, Text: t.Text})
	}
	return turns
}

// Clone deep-copies the session via its JSON form.
func (s *Session) Clone() (*Session, error) {
	if s == nil {
		return nil, ErrNilSession
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	var out Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	out.EnsureStateMap()
	return &out, nil
}
