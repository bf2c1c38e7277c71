package wizard

import (
	"sync"
	"time"

	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/estimate"
	"github.com/velikov/smetabot/internal/pricing"
)

// Session is one user's conversation state. It is mutated only by the
// Engine, one inbound message at a time; per-user message delivery is
// serialized by the chat platform.
type Session struct {
	UserKey string
	State   State

	Estimate *estimate.Estimate

	// Sheet flow cursors.
	SheetCount int
	SheetIdx   int
	Phase      catalog.Phase

	// Pending line item, populated between item selection and
	// finalization. PendingItem is the catalog object the snapshot is
	// taken from; PendingParams collects answers in catalog order.
	PendingItem     *catalog.Item
	PendingSection  string
	PendingParams   map[string]float64
	ParamIdx        int
	PendingQuantity float64
	PendingResult   *pricing.Result

	CreatedAt    time.Time
	LastActivity time.Time
}

// currentSheet returns the sheet the cursor points at, or "" before sheets
// exist.
func (s *Session) currentSheet() string {
	if s.Estimate == nil || s.SheetIdx >= len(s.Estimate.Sheets) {
		return ""
	}
	return s.Estimate.Sheets[s.SheetIdx]
}

// clearPending drops the in-progress line item.
func (s *Session) clearPending() {
	s.PendingItem = nil
	s.PendingSection = ""
	s.PendingParams = nil
	s.ParamIdx = 0
	s.PendingQuantity = 0
	s.PendingResult = nil
}

// SessionStore keeps live sessions keyed by user key. Sessions are fully
// independent; the store only guards its own map.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a fresh session for userKey, replacing any existing one.
func (st *SessionStore) Create(userKey string) *Session {
	now := time.Now()
	session := &Session{
		UserKey:      userKey,
		State:        StateMethodChoice,
		Estimate:     estimate.New(),
		Phase:        catalog.PhaseMaterial,
		CreatedAt:    now,
		LastActivity: now,
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[userKey] = session
	return session
}

// Get returns the live session for userKey, if any.
func (st *SessionStore) Get(userKey string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	session, ok := st.sessions[userKey]
	return session, ok
}

// Delete removes userKey's session.
func (st *SessionStore) Delete(userKey string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, userKey)
}

// Count reports the number of live sessions.
func (st *SessionStore) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
