// Package store holds the per-sender, TTL-bounded session memory: the
// conversation state driving multi-turn menu interactions and the cache of
// the last analyzed voice note. Both stores are in-memory and intentionally
// ephemeral; nothing survives a restart.
package store

import (
	"sync"
	"time"
)

// StateTTL is how long a conversation state survives without activity.
const StateTTL = 10 * time.Minute

// PendingAction tags what follow-up reply the bot is waiting for.
type PendingAction string

const (
	PendingNone           PendingAction = ""
	PendingVoiceMenu      PendingAction = "voice_menu"
	PendingImageMenu      PendingAction = "image_menu"
	PendingContactConfirm PendingAction = "contact_confirm"
)

// CachedMedia is a media payload parked in a conversation state while the
// bot waits for a menu choice.
type CachedMedia struct {
	Data     []byte
	MimeType string
	Duration int // seconds, audio only
}

// Contact holds fields extracted from a business-card image, pending
// confirmation.
type Contact struct {
	Name    string
	Company string
	Phone   string
	Email   string
	Address string
	Website string
	Raw     string
}

// UserState is the per-sender conversation state.
type UserState struct {
	Pending      PendingAction
	Voice        *CachedMedia
	Image        *CachedMedia
	Contact      *Contact
	LastActivity time.Time
}

// StateStore keeps one UserState per sender, expiring entries after
// StateTTL of inactivity. All operations are atomic with respect to each
// other; callers receive snapshots, not live references.
type StateStore struct {
	mu     sync.Mutex
	states map[string]*UserState
	ttl    time.Duration
	now    func() time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[string]*UserState),
		ttl:    StateTTL,
		now:    time.Now,
	}
}

// Get returns the sender's state, creating an empty one if none is live.
// Expired entries are evicted first. Reading through Get counts as
// activity and refreshes the expiry clock.
func (s *StateStore) Get(sender string) UserState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.live(sender)
	if st == nil {
		st = &UserState{}
		s.states[sender] = st
	}
	st.LastActivity = s.now()
	return *st
}

// Update applies fn to the sender's (possibly freshly created) state and
// stamps LastActivity.
func (s *StateStore) Update(sender string, fn func(*UserState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.live(sender)
	if st == nil {
		st = &UserState{}
		s.states[sender] = st
	}
	fn(st)
	st.LastActivity = s.now()
}

// Clear removes the sender's state outright.
func (s *StateStore) Clear(sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sender)
}

// HasPending reports whether the sender has a live pending action. This is
// a pure expiry check: it evicts expired entries but never refreshes
// LastActivity.
func (s *StateStore) HasPending(sender string) bool {
	return s.PendingAction(sender) != PendingNone
}

// PendingAction returns the sender's live pending tag, or PendingNone.
// Same expiry semantics as HasPending: evict without refreshing.
func (s *StateStore) PendingAction(sender string) PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.live(sender)
	if st == nil {
		return PendingNone
	}
	return st.Pending
}

// live returns the sender's entry if it has not expired, evicting it
// otherwise. Caller must hold the lock.
func (s *StateStore) live(sender string) *UserState {
	st, ok := s.states[sender]
	if !ok {
		return nil
	}
	if s.now().Sub(st.LastActivity) > s.ttl {
		delete(s.states, sender)
		return nil
	}
	return st
}
