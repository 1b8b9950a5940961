package session

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	Idle                  State = "idle"
	AwaitingMenuSelection State = "awaiting_menu_selection"
	AwaitingName          State = "awaiting_name"
	AwaitingNameConfirm   State = "awaiting_name_confirm"
	AwaitingEmail         State = "awaiting_email"
	AwaitingSupportDesc   State = "awaiting_support_desc"
	BookingPending        State = "booking_pending"
	Escalated             State = "escalated"
	Closed                State = "closed"
)

// DefaultTTLs is applied on every state entry. States missing here use the idle TTL.
var DefaultTTLs = map[State]time.Duration{
	Idle:                  time.Hour,
	AwaitingMenuSelection: 5 * time.Minute,
	AwaitingName:          20 * time.Minute,
	AwaitingNameConfirm:   10 * time.Minute,
	AwaitingEmail:         20 * time.Minute,
	BookingPending:        24 * time.Hour,
	Escalated:             12 * time.Hour,
	Closed:                5 * time.Minute,
}

type Session struct {
	ID             string
	TenantID       string
	Address        string
	State          State
	Context        map[string]any
	LastActivityAt time.Time
	ExpiresAt      time.Time
	Attempts       int
}

type key struct {
	tenant  string
	address string
}

// Store keeps conversation sessions in process memory. All access goes
// through one mutex and callers only ever see copies.
type Store struct {
	mu       sync.Mutex
	sessions map[key]*Session
	ttls     map[State]time.Duration

	Now   func() time.Time
	NewID func() string
}

// NewStore builds a store using DefaultTTLs with the given overrides applied.
func NewStore(overrides map[State]time.Duration) *Store {
	ttls := maps.Clone(DefaultTTLs)
	maps.Copy(ttls, overrides)
	return &Store{
		sessions: make(map[key]*Session),
		ttls:     ttls,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// TTL returns the lifetime granted when entering st.
func (s *Store) TTL(st State) time.Duration {
	if d, ok := s.ttls[st]; ok {
		return d
	}
	return s.ttls[Idle]
}

// Touch returns the session for (tenant, address), creating it in
// defaultState (idle when empty) if absent. Activity time is always refreshed.
func (s *Store) Touch(tenant, address string, defaultState State) Session {
	if defaultState == "" {
		defaultState = Idle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	k := key{tenant, address}
	sess, ok := s.sessions[k]
	if !ok {
		sess = &Session{
			ID:        s.NewID(),
			TenantID:  tenant,
			Address:   address,
			State:     defaultState,
			Context:   map[string]any{},
			ExpiresAt: now.Add(s.TTL(defaultState)),
		}
		s.sessions[k] = sess
	}
	sess.LastActivityAt = now
	return sess.clone()
}

func (s *Store) Get(tenant, address string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key{tenant, address}]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// SetState moves an existing session to st and restarts its TTL.
func (s *Store) SetState(tenant, address string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key{tenant, address}]
	if !ok {
		return
	}
	now := s.Now()
	sess.State = st
	sess.ExpiresAt = now.Add(s.TTL(st))
	sess.LastActivityAt = now
}

// SetContext merges updates into the session context, last write wins.
func (s *Store) SetContext(tenant, address string, updates map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key{tenant, address}]
	if !ok {
		return
	}
	if sess.Context == nil {
		sess.Context = map[string]any{}
	}
	maps.Copy(sess.Context, updates)
	sess.LastActivityAt = s.Now()
}

// CleanupExpired drops every session whose expiry is at or before now.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	n := 0
	for k, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, k)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Snapshot copies every live session, for debugging.
func (s *Store) Snapshot() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	return out
}

func (s *Session) clone() Session {
	c := *s
	c.Context = maps.Clone(s.Context)
	return c
}

// ContextString reads a string value from the session context.
func (s Session) ContextString(k string) string {
	v, _ := s.Context[k].(string)
	return v
}
