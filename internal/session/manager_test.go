package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zigamak/bedcbot/internal/models"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(cfg Config) (*Manager, *fakeClock) {
	m := NewManager(cfg)
	clk := newFakeClock()
	m.now = clk.Now
	return m, clk
}

func TestGetOrCreateNewSession(t *testing.T) {
	m, _ := newTestManager(Config{})

	s := m.GetOrCreate("2348012345678")
	if s == nil {
		t.Fatal("expected session, got nil")
	}
	if s.CurrentState != models.StateStart {
		t.Errorf("expected state %s, got %s", models.StateStart, s.CurrentState)
	}
	if s.CurrentHandler != models.HandlerGreeting {
		t.Errorf("expected handler %s, got %s", models.HandlerGreeting, s.CurrentHandler)
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 session, got %d", m.Count())
	}
}

func TestGetOrCreateReturnsCopy(t *testing.T) {
	m, _ := newTestManager(Config{})

	s := m.GetOrCreate("user1")
	s.UserName = "Mutated"
	s.BillingData["k"] = "v"

	again := m.GetOrCreate("user1")
	if again.UserName != "" {
		t.Errorf("mutation of returned session leaked into store: %q", again.UserName)
	}
	if len(again.BillingData) != 0 {
		t.Errorf("map mutation leaked into store: %v", again.BillingData)
	}
}

func TestTimeoutResetPreservesIdentity(t *testing.T) {
	m, clk := newTestManager(Config{Timeout: 50 * time.Minute})

	s := m.GetOrCreate("user1")
	s.CurrentState = models.StateAIChat
	s.CurrentHandler = models.HandlerAI
	s.UserName = "Ada"
	s.Address = "12 Marina Rd"
	s.AccountNumber = "101234"
	s.Email = "ada@example.com"
	s.PendingBillingConfirmation = true
	m.Update("user1", s)

	clk.Advance(51 * time.Minute)

	got := m.GetOrCreate("user1")
	if got.CurrentState != models.StateStart || got.CurrentHandler != models.HandlerGreeting {
		t.Errorf("expected reset to start/greeting, got %s/%s", got.CurrentState, got.CurrentHandler)
	}
	if got.UserName != "Ada" || got.Address != "12 Marina Rd" || got.AccountNumber != "101234" {
		t.Errorf("identity fields not preserved across reset: %+v", got)
	}
	if got.Email != "" {
		t.Errorf("email should not survive reset, got %q", got.Email)
	}
	if got.PendingBillingConfirmation {
		t.Error("pending confirmation should not survive reset")
	}
}

func TestActiveSessionNotReset(t *testing.T) {
	m, clk := newTestManager(Config{Timeout: 50 * time.Minute})

	s := m.GetOrCreate("user1")
	s.CurrentState = models.StateAIChat
	s.CurrentHandler = models.HandlerAI
	m.Update("user1", s)

	clk.Advance(49 * time.Minute)

	got := m.GetOrCreate("user1")
	if got.CurrentState != models.StateAIChat {
		t.Errorf("session reset before timeout elapsed, state %s", got.CurrentState)
	}
}

func TestPaidSessionUsesExtendedTimeout(t *testing.T) {
	m, clk := newTestManager(Config{Timeout: 50 * time.Minute, PaidTimeout: 200 * time.Minute})

	s := m.GetOrCreate("user1")
	s.CurrentState = models.StateAIChat
	s.CurrentHandler = models.HandlerAI
	m.Update("user1", s)
	m.ExtendForPaidUser("user1", "ref-123", 4*time.Hour)

	// Past the normal timeout but inside the paid window and expiry.
	clk.Advance(100 * time.Minute)

	got := m.GetOrCreate("user1")
	if got.CurrentState != models.StateAIChat {
		t.Errorf("paid session reset inside paid timeout, state %s", got.CurrentState)
	}
	if !m.IsPaidSessionActive("user1") {
		t.Error("expected paid session to be active")
	}
}

func TestExpiredPaidSessionSelfHeals(t *testing.T) {
	m, clk := newTestManager(Config{Timeout: 50 * time.Minute, PaidTimeout: 200 * time.Minute})

	m.GetOrCreate("user1")
	m.ExtendForPaidUser("user1", "ref-123", 1*time.Hour)

	clk.Advance(2 * time.Hour)

	if m.IsPaidSessionActive("user1") {
		t.Error("paid session should be inactive after expiry")
	}
	// Self-heal cleared the paid fields, so the normal timeout now applies
	// and 2h idle exceeds it: the next read resets the record.
	got := m.GetOrCreate("user1")
	if got.IsPaidUser || got.ExtendedSession || got.PaidSessionExpires != nil {
		t.Errorf("paid fields not cleared after expiry: %+v", got)
	}
	if got.CurrentState != models.StateStart {
		t.Errorf("expected reset after paid expiry made session stale, state %s", got.CurrentState)
	}
}

func TestFreshlyResetEdgeTrigger(t *testing.T) {
	m, clk := newTestManager(Config{FreshResetGrace: 2 * time.Second})

	s := m.GetOrCreate("user1")
	s.CurrentState = models.StateAIChat
	s.CurrentHandler = models.HandlerAI
	m.Update("user1", s)

	if m.IsFreshlyReset("user1") {
		t.Error("active ai_chat session must not report freshly reset")
	}

	// Transition back into the greeting state: edge trigger fires.
	s.CurrentState = models.StateStart
	s.CurrentHandler = models.HandlerGreeting
	m.Update("user1", s)
	if !m.IsFreshlyReset("user1") {
		t.Error("expected freshly reset immediately after transition into greeting")
	}

	// A second update already in the greeting state must not re-stamp.
	clk.Advance(3 * time.Second)
	m.Update("user1", s)
	if m.IsFreshlyReset("user1") {
		t.Error("non-edge update must not renew the freshly-reset marker")
	}
}

func TestFreshlyResetGraceExpires(t *testing.T) {
	m, clk := newTestManager(Config{Timeout: 50 * time.Minute, FreshResetGrace: 2 * time.Second})

	s := m.GetOrCreate("user1")
	s.CurrentState = models.StateAIChat
	s.CurrentHandler = models.HandlerAI
	m.Update("user1", s)

	clk.Advance(51 * time.Minute)
	m.GetOrCreate("user1") // timeout reset stamps the marker

	if !m.IsFreshlyReset("user1") {
		t.Error("expected freshly reset right after timeout reset")
	}
	clk.Advance(3 * time.Second)
	if m.IsFreshlyReset("user1") {
		t.Error("freshly-reset signal must expire after the grace period")
	}
}

func TestNormalReadClearsFreshlyReset(t *testing.T) {
	m, _ := newTestManager(Config{FreshResetGrace: 10 * time.Second})

	s := m.GetOrCreate("user1")
	s.CurrentState = models.StateAIChat
	s.CurrentHandler = models.HandlerAI
	m.Update("user1", s)
	s.CurrentState = models.StateStart
	s.CurrentHandler = models.HandlerGreeting
	m.Update("user1", s)

	m.GetOrCreate("user1")
	if m.IsFreshlyReset("user1") {
		t.Error("unexpired read should clear the freshly-reset marker")
	}
}

func TestCleanupExpired(t *testing.T) {
	m, clk := newTestManager(Config{Timeout: 50 * time.Minute, PaidTimeout: 200 * time.Minute})

	for i := 0; i < 3; i++ {
		m.GetOrCreate(fmt.Sprintf("stale-%d", i))
	}
	clk.Advance(30 * time.Minute)
	m.GetOrCreate("active")
	clk.Advance(25 * time.Minute) // stale: 55m idle, active: 25m idle

	removed := m.CleanupExpired()
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 remaining session, got %d", m.Count())
	}
}

func TestCleanupSelfHealsPaidBeforeDeleting(t *testing.T) {
	m, clk := newTestManager(Config{Timeout: 50 * time.Minute, PaidTimeout: 200 * time.Minute})

	m.GetOrCreate("user1")
	m.ExtendForPaidUser("user1", "ref-9", 1*time.Hour)

	// Idle for 90m: paid expiry passed, so the normal 50m timeout applies
	// and the session must be deleted in the same sweep.
	clk.Advance(90 * time.Minute)
	if removed := m.CleanupExpired(); removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
}

func TestPeekDoesNotCreateOrTouch(t *testing.T) {
	m, clk := newTestManager(Config{})

	if _, ok := m.Peek("user1"); ok {
		t.Fatal("Peek reported a session that was never created")
	}
	if m.Count() != 0 {
		t.Fatalf("Count() = %d after Peek, want 0", m.Count())
	}

	m.GetOrCreate("user1")
	clk.Advance(10 * time.Minute)

	got, ok := m.Peek("user1")
	if !ok {
		t.Fatal("Peek missed an existing session")
	}
	if clk.Now().Sub(got.LastActivity) != 10*time.Minute {
		t.Error("Peek bumped last-activity")
	}
	got.AccountNumber = "105678"
	if again, _ := m.Peek("user1"); again.AccountNumber != "" {
		t.Error("Peek returned a shared record, mutation leaked into the store")
	}
}

func TestClearDropsEverything(t *testing.T) {
	m, _ := newTestManager(Config{})

	s := m.GetOrCreate("user1")
	s.AccountNumber = "101234"
	m.Update("user1", s)

	m.Clear("user1")
	got := m.GetOrCreate("user1")
	if got.AccountNumber != "" {
		t.Errorf("Clear must drop the account number, got %q", got.AccountNumber)
	}
}

func TestTouchActivityKeepsSessionAlive(t *testing.T) {
	m, clk := newTestManager(Config{Timeout: 50 * time.Minute})

	s := m.GetOrCreate("user1")
	s.CurrentState = models.StateAIChat
	s.CurrentHandler = models.HandlerAI
	m.Update("user1", s)

	clk.Advance(40 * time.Minute)
	m.TouchActivity("user1")
	clk.Advance(40 * time.Minute)

	got := m.GetOrCreate("user1")
	if got.CurrentState != models.StateAIChat {
		t.Error("touched session should survive past the original window")
	}
}

func TestConcurrentAccess(t *testing.T) {
	m, _ := newTestManager(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", n%10)
			s := m.GetOrCreate(id)
			s.CurrentState = models.StateAIChat
			s.CurrentHandler = models.HandlerAI
			m.Update(id, s)
			m.IsPaidSessionActive(id)
			m.CleanupExpired()
		}(i)
	}
	wg.Wait()

	if m.Count() != 10 {
		t.Errorf("expected 10 sessions, got %d", m.Count())
	}
}
