// Package session provides the in-memory session store and manager for bedcbot.
//
// The manager is the single source of truth for all session records and is
// safe under concurrent access from multiple inbound-message handlers. All
// reads and writes serialize through one mutex around the underlying map; no
// caller may mutate a record obtained from the manager without routing the
// mutation back through Update.
//
// Two concurrent turns for the same session ID are not ordered beyond the
// map-level lock: the last Update wins. That is acceptable for human-paced
// chat and is documented rather than papered over.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/zigamak/bedcbot/internal/models"
)

// Default timeout policy. A paid, extended session survives far longer
// inactivity than a normal one, gated by an absolute expiry timestamp.
const (
	// DefaultTimeout is the inactivity window for normal sessions.
	DefaultTimeout = 50 * time.Minute
	// DefaultPaidTimeout is the inactivity window for active paid sessions.
	DefaultPaidTimeout = 200 * time.Minute
	// DefaultFreshResetGrace is how long a just-reset session is reported as
	// freshly reset.
	DefaultFreshResetGrace = 2 * time.Second
	// DefaultHistoryLimit caps the bounded conversation history.
	DefaultHistoryLimit = 20
)

// Config holds tunable session policy values.
type Config struct {
	Timeout         time.Duration
	PaidTimeout     time.Duration
	FreshResetGrace time.Duration
	HistoryLimit    int
}

// withDefaults fills zero-valued config fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PaidTimeout <= 0 {
		c.PaidTimeout = DefaultPaidTimeout
	}
	if c.FreshResetGrace <= 0 {
		c.FreshResetGrace = DefaultFreshResetGrace
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	return c
}

// Manager owns all session records. Construct once at process start and pass
// by reference to request handlers; there is no ambient global state.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	cfg      Config
	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a session manager with the given policy.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	slog.Info("SessionManager initialized", "timeout", cfg.Timeout, "paid_timeout", cfg.PaidTimeout, "history_limit", cfg.HistoryLimit)
	return &Manager{
		sessions: make(map[string]*models.Session),
		cfg:      cfg,
		now:      time.Now,
	}
}

// HistoryLimit returns the configured conversation-history cap.
func (m *Manager) HistoryLimit() int {
	return m.cfg.HistoryLimit
}

// effectiveTimeout determines the inactivity window for a record. It is the
// single shared implementation used by GetOrCreate, CleanupExpired and
// IsPaidSessionActive; paid status only counts while the absolute expiry is
// in the future.
func (m *Manager) effectiveTimeout(s *models.Session) time.Duration {
	if s.IsPaidUser && s.ExtendedSession && s.PaidSessionExpires != nil && m.now().Before(*s.PaidSessionExpires) {
		return m.cfg.PaidTimeout
	}
	return m.cfg.Timeout
}

// paidStateExpired reports whether a record claims paid status that is
// missing or past its expiry. Callers must hold m.mu.
func (m *Manager) paidStateExpired(s *models.Session) bool {
	if !s.IsPaidUser || !s.ExtendedSession {
		return false
	}
	return s.PaidSessionExpires == nil || !m.now().Before(*s.PaidSessionExpires)
}

// resetPaidLocked clears the paid/extended fields of a record back to the
// normal timeout rules. Callers must hold m.mu.
func (m *Manager) resetPaidLocked(sessionID string, s *models.Session) {
	s.IsPaidUser = false
	s.ExtendedSession = false
	s.PaidReference = ""
	s.PaidSessionExpires = nil
	slog.Info("SessionManager reset paid session back to normal", "session_id", sessionID)
}

// GetOrCreate returns the session for sessionID, applying the timeout policy.
//
// If the record exists and is unexpired, its last-activity timestamp is
// bumped and the freshly-reset marker is cleared. If inactivity exceeds the
// effective timeout the record is reset to defaults, preserving the user's
// name, address and validated account number. Unknown IDs get a brand-new
// record. The returned session is a copy; mutations must go back via Update.
func (m *Manager) GetOrCreate(sessionID string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = models.NewSession(sessionID)
		s.LastActivity = m.now()
		m.sessions[sessionID] = s
		slog.Info("SessionManager new session initialized", "session_id", sessionID)
		return s.Clone()
	}

	// Self-heal expired paid status before computing the timeout.
	if m.paidStateExpired(s) {
		m.resetPaidLocked(sessionID, s)
	}

	idle := m.now().Sub(s.LastActivity)
	if timeout := m.effectiveTimeout(s); idle > timeout {
		slog.Info("SessionManager session timed out, resetting", "session_id", sessionID, "idle", idle, "timeout", timeout)
		fresh := models.NewSession(sessionID)
		fresh.UserName = s.UserName
		fresh.Address = s.Address
		fresh.AccountNumber = s.AccountNumber
		fresh.LastActivity = m.now()
		t := m.now()
		fresh.FreshlyResetAt = &t
		m.sessions[sessionID] = fresh
		return fresh.Clone()
	}

	s.LastActivity = m.now()
	s.FreshlyResetAt = nil
	slog.Debug("SessionManager session retrieved", "session_id", sessionID, "state", s.CurrentState)
	return s.Clone()
}

// Update replaces the stored record for sessionID with the given session,
// stamping last-activity. The freshly-reset marker is set only on the edge
// transition into the greeting/start state; any other update clears it.
func (m *Manager) Update(sessionID string, s *models.Session) {
	if s == nil {
		slog.Error("SessionManager Update called with nil session", "session_id", sessionID)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := s.Clone()
	next.LastActivity = m.now()

	old, existed := m.sessions[sessionID]
	wasGreeting := existed && old.InGreetingState()
	if next.InGreetingState() && !wasGreeting {
		t := m.now()
		next.FreshlyResetAt = &t
		slog.Debug("SessionManager marking freshly reset", "session_id", sessionID, "state", next.CurrentState)
	} else {
		next.FreshlyResetAt = nil
	}

	m.sessions[sessionID] = next
	slog.Debug("SessionManager session updated", "session_id", sessionID, "state", next.CurrentState, "handler", next.CurrentHandler)
}

// Peek returns a copy of the session for sessionID without creating one,
// bumping activity or applying the timeout policy. Intended for read-only
// inspection.
func (m *Manager) Peek(sessionID string) (*models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// TouchActivity bumps the last-activity timestamp without other changes.
func (m *Manager) TouchActivity(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		slog.Warn("SessionManager TouchActivity for non-existent session", "session_id", sessionID)
		return
	}
	s.LastActivity = m.now()
	s.FreshlyResetAt = nil
}

// ExtendForPaidUser marks the session paid/extended until now+duration,
// recording the payment reference. A missing session gets a fresh record so
// the extension is never lost.
func (m *Manager) ExtendForPaidUser(sessionID, reference string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = models.NewSession(sessionID)
		m.sessions[sessionID] = s
		slog.Warn("SessionManager extending non-existent session, initialized new record", "session_id", sessionID)
	}
	expires := m.now().Add(duration)
	s.IsPaidUser = true
	s.ExtendedSession = true
	s.PaidReference = reference
	s.PaidSessionExpires = &expires
	s.LastActivity = m.now()
	s.FreshlyResetAt = nil
	slog.Info("SessionManager extended paid session", "session_id", sessionID, "reference", reference, "expires", expires)
}

// IsPaidSessionActive reports whether the session currently enjoys the paid
// timeout. A paid state whose expiry is missing or past is self-healed back
// to a normal session before returning false.
func (m *Manager) IsPaidSessionActive(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	if !s.IsPaidUser || !s.ExtendedSession {
		return false
	}
	if m.paidStateExpired(s) {
		m.resetPaidLocked(sessionID, s)
		return false
	}
	return true
}

// IsFreshlyReset reports whether the session was reset into the
// greeting/start state within the grace period.
func (m *Manager) IsFreshlyReset(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.FreshlyResetAt == nil || !s.InGreetingState() {
		return false
	}
	return m.now().Sub(*s.FreshlyResetAt) < m.cfg.FreshResetGrace
}

// CleanupExpired scans all sessions, self-heals expired paid sessions back to
// normal timeout rules, then deletes any session whose inactivity exceeds its
// effective timeout. It returns the number of sessions deleted and is safe to
// call concurrently with request traffic.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, s := range m.sessions {
		if m.paidStateExpired(s) {
			m.resetPaidLocked(id, s)
		}
		if m.now().Sub(s.LastActivity) > m.effectiveTimeout(s) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	if len(expired) > 0 {
		slog.Info("SessionManager cleanup removed expired sessions", "count", len(expired))
	}
	return len(expired)
}

// Clear unconditionally deletes the session, dropping all fields including
// the preserved account number.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		slog.Warn("SessionManager Clear for non-existent session", "session_id", sessionID)
		return
	}
	delete(m.sessions, sessionID)
	slog.Info("SessionManager session cleared", "session_id", sessionID)
}

// Count returns the number of live session records.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
