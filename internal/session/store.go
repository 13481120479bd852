// Package session owns the per-process chat session registry. A session is
// the only shared mutable entity in the system: an append-only conversation
// history plus a confirmation state, mutated exclusively between pipeline
// stages. Sessions live until explicitly deleted.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateConfirmed            State = "confirmed"
)

// Message is one recorded conversation turn. Immutable once appended.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type ChatSession struct {
	ID        string    `json:"session_id"`
	History   []Message `json:"chat_history"`
	State     State     `json:"current_state"`
	CreatedAt time.Time `json:"created_at"`

	// Consecutive confirmation prompts issued without a resolving reply.
	ConfirmationRetries int `json:"-"`

	// Serializes turns: one in-flight turn per session.
	turnMu sync.Mutex
}

// Summary is the list-view projection of a session.
type Summary struct {
	ID           string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*ChatSession
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*ChatSession)}
}

func (s *Store) Create() *ChatSession {
	sess := &ChatSession{
		ID:        uuid.New().String(),
		History:   []Message{},
		State:     StateIdle,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

func (s *Store) Get(id string) (*ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Reset clears the history and returns the session to idle without changing
// its identity.
func (s *Store) Reset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.History = []Message{}
	sess.State = StateIdle
	sess.ConfirmationRetries = 0
	return nil
}

// List returns session summaries, newest first. The title is the first user
// message truncated to 30 runes.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summaries = append(summaries, Summary{
			ID:           sess.ID,
			Title:        sessionTitle(sess.History),
			CreatedAt:    sess.CreatedAt,
			MessageCount: len(sess.History),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries
}

func (s *Store) Append(id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	sess.History = append(sess.History, msg)
	return nil
}

// History returns a copy of the session's conversation history.
func (s *Store) History(id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	history := make([]Message, len(sess.History))
	copy(history, sess.History)
	return history, nil
}

func (s *Store) SetState(id string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.State = state
	return nil
}

func (s *Store) State(id string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return "", ErrNotFound
	}
	return sess.State, nil
}

// IncConfirmationRetries bumps and returns the per-session confirmation
// counter guarding the disambiguation re-ask loop.
func (s *Store) IncConfirmationRetries(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	sess.ConfirmationRetries++
	return sess.ConfirmationRetries, nil
}

func (s *Store) ResetConfirmationRetries(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.ConfirmationRetries = 0
	return nil
}

// LockTurn serializes turn processing for one session and returns the
// corresponding unlock.
func (s *Store) LockTurn(id string) (func(), error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	sess.turnMu.Lock()
	return sess.turnMu.Unlock, nil
}

func sessionTitle(history []Message) string {
	for _, msg := range history {
		if msg.Role != RoleUser {
			continue
		}
		title := []rune(msg.Content)
		if len(title) > 30 {
			return string(title[:30]) + "..."
		}
		return string(title)
	}
	return "새 대화"
}
