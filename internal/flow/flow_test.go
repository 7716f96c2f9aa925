package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/zigamak/bedcbot/internal/models"
	"github.com/zigamak/bedcbot/internal/store"
)

// mockAI implements genai.ClientInterface for testing.
type mockAI struct {
	out string
	err error
}

func (m *mockAI) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.out, m.err
}

func (m *mockAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return m.out, m.err
}

// failingStore wraps the in-memory store and fails billing checks.
type failingStore struct {
	*store.InMemoryStore
}

func (f *failingStore) CheckBilling(ctx context.Context, accountNumber string) (*models.BillingCheck, error) {
	return nil, errors.New("database gone")
}

func newTestEngine() *Engine {
	return NewEngine(store.NewInMemoryStore(), nil, 20)
}

func newSession(id string) *models.Session {
	return models.NewSession(id)
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"johndoe@example.com", "jo****oe@ex***le.com"},
		{"ab@cd.org", "ab@cd.org"},
		{"abcd@example.com", "abcd@ex***le.com"},
		{"not-an-email", "not-an-email"},
		{"someone@localhost", "someone@localhost"},
		{"adaeze.okafor@example.com", "ad****or@ex***le.com"},
		{"rené.müller@example.com", "re****er@ex***le.com"},
	}
	for _, c := range cases {
		if got := MaskEmail(c.in); got != c.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractDetails(t *testing.T) {
	e := extractDetails("my name is John Doe, account 101234, reach me at johndoe@example.com, I live at 5 Airport Road, Benin")
	if e.Name != "John Doe" {
		t.Errorf("name = %q", e.Name)
	}
	if e.AccountCandidate != "101234" {
		t.Errorf("account candidate = %q", e.AccountCandidate)
	}
	if e.Email != "johndoe@example.com" {
		t.Errorf("email = %q", e.Email)
	}
	if !strings.Contains(e.Address, "Airport Road") {
		t.Errorf("address = %q", e.Address)
	}
}

func TestClassifyConfirmation(t *testing.T) {
	yes := []string{"yes", "Yes please", "ok", "sure", "go ahead", "YEP!"}
	no := []string{"no", "nope", "cancel", "not now", "No thanks."}
	unclear := []string{"what about my bill", "maybe", "101234"}

	for _, m := range yes {
		if classifyConfirmation(m) != confirmYes {
			t.Errorf("%q should classify as yes", m)
		}
	}
	for _, m := range no {
		if classifyConfirmation(m) != confirmNo {
			t.Errorf("%q should classify as no", m)
		}
	}
	for _, m := range unclear {
		if classifyConfirmation(m) != confirmUnclear {
			t.Errorf("%q should classify as unclear", m)
		}
	}
}

func TestFallbackIntentOrdering(t *testing.T) {
	// Greeting keywords win even when topical words appear in the same message.
	if got := fallbackIntent("Hello, I have a question about my bill"); got != models.IntentGreeting {
		t.Errorf("greeting should win over billing, got %s", got)
	}
	if got := fallbackIntent("my bill is too high"); got != models.IntentBilling {
		t.Errorf("expected billing, got %s", got)
	}
	if got := fallbackIntent("no light in my area since morning"); got != models.IntentFault {
		t.Errorf("expected fault, got %s", got)
	}
	if got := fallbackIntent("how do I get a prepaid meter"); got != models.IntentMetering {
		t.Errorf("expected metering, got %s", got)
	}
	if got := fallbackIntent("habari"); got != models.IntentGreeting {
		t.Errorf("swahili greeting should classify as greeting, got %s", got)
	}
}

// TestBillingConfirmationGating walks the three-turn billing sequence:
// topic -> account -> confirmation question -> yes -> disclosure.
func TestBillingConfirmationGating(t *testing.T) {
	e := newTestEngine()
	s := newSession("2348012345678")
	ctx := context.Background()

	r1 := e.Respond(ctx, s, "My bill looks too high")
	if r1.Intent != models.IntentBilling {
		t.Fatalf("turn 1 intent = %s, want Billing", r1.Intent)
	}
	if s.PendingBillingConfirmation {
		t.Fatal("confirmation must not be pending before an account is known")
	}

	r2 := e.Respond(ctx, s, "101234")
	if r2.Intent != models.IntentBillingConfirmation {
		t.Fatalf("turn 2 intent = %s, want BillingConfirmation", r2.Intent)
	}
	if !s.PendingBillingConfirmation {
		t.Fatal("confirmation should be pending after account given with billing context")
	}
	if strings.Contains(r2.Reply, "adaeze.okafor@example.com") {
		t.Error("confirmation prompt leaked the unmasked email")
	}
	if !strings.Contains(r2.Reply, MaskEmail("adaeze.okafor@example.com")) {
		t.Errorf("confirmation prompt should carry the masked email, got %q", r2.Reply)
	}
	if strings.Contains(r2.Reply, "NGN") {
		t.Error("billing details disclosed before confirmation")
	}

	r3 := e.Respond(ctx, s, "yes")
	if r3.Intent != models.IntentBillingInfo {
		t.Fatalf("turn 3 intent = %s, want BillingInfo", r3.Intent)
	}
	if s.PendingBillingConfirmation {
		t.Error("pending flag must clear after execution")
	}
	if !strings.Contains(r3.Reply, "NGN") {
		t.Errorf("expected billing details after yes, got %q", r3.Reply)
	}
}

func TestBillingConfirmationDeclined(t *testing.T) {
	e := newTestEngine()
	s := newSession("2348012345678")
	ctx := context.Background()

	e.Respond(ctx, s, "check my bill please")
	e.Respond(ctx, s, "101234")
	r := e.Respond(ctx, s, "no")
	if r.Intent != models.IntentGeneral {
		t.Errorf("declined confirmation intent = %s, want General", r.Intent)
	}
	if s.PendingBillingConfirmation {
		t.Error("pending flag must clear on decline")
	}
	if strings.Contains(r.Reply, "NGN") {
		t.Error("billing details disclosed despite decline")
	}
}

func TestBillingConfirmationUnclearReasks(t *testing.T) {
	e := newTestEngine()
	s := newSession("2348012345678")
	ctx := context.Background()

	e.Respond(ctx, s, "check my bill please")
	e.Respond(ctx, s, "101234")
	r := e.Respond(ctx, s, "what do you mean")
	if r.Intent != models.IntentBillingConfirmation {
		t.Errorf("unclear answer intent = %s, want BillingConfirmation", r.Intent)
	}
	if !s.PendingBillingConfirmation {
		t.Error("pending flag must survive an unclear answer")
	}
}

// TestConfirmationInferredFromHistory verifies the self-heal path: a lost
// pending flag is reconstructed from the last recorded intent.
func TestConfirmationInferredFromHistory(t *testing.T) {
	e := newTestEngine()
	s := newSession("2348012345678")
	ctx := context.Background()

	e.Respond(ctx, s, "check my bill please")
	e.Respond(ctx, s, "101234")
	s.PendingBillingConfirmation = false // simulate lost flag

	r := e.Respond(ctx, s, "yes")
	if r.Intent != models.IntentBillingInfo {
		t.Errorf("inferred confirmation intent = %s, want BillingInfo", r.Intent)
	}
	if !strings.Contains(r.Reply, "NGN") {
		t.Errorf("expected billing details after inferred yes, got %q", r.Reply)
	}
}

// An unclear reply to an inferred confirmation must re-ask the question, not
// fall through to general intent resolution.
func TestConfirmationInferredFromHistoryUnclearReasks(t *testing.T) {
	e := newTestEngine()
	s := newSession("2348012345678")
	ctx := context.Background()

	e.Respond(ctx, s, "check my bill please")
	e.Respond(ctx, s, "101234")
	s.PendingBillingConfirmation = false // simulate lost flag

	r := e.Respond(ctx, s, "what do you mean")
	if r.Intent != models.IntentBillingConfirmation {
		t.Errorf("inferred unclear intent = %s, want BillingConfirmation re-asked", r.Intent)
	}
	if !strings.Contains(r.Reply, "(yes/no)") {
		t.Errorf("expected the confirmation question re-asked, got %q", r.Reply)
	}
	if !s.PendingBillingConfirmation {
		t.Error("inferred pending flag must be restored on the session")
	}
}

func TestFaultConfirmationInferredFromHistory(t *testing.T) {
	e := newTestEngine()
	s := newSession("2348012345678")
	ctx := context.Background()

	e.Respond(ctx, s, "transformer is sparking on my street")
	s.PendingFaultConfirmation = false // simulate lost flag

	r := e.Respond(ctx, s, "hmm")
	if r.Intent != models.IntentFaultConfirmation {
		t.Errorf("inferred unclear intent = %s, want FaultConfirmation re-asked", r.Intent)
	}
	if !s.PendingFaultConfirmation {
		t.Error("inferred pending flag must be restored on the session")
	}

	r = e.Respond(ctx, s, "yes")
	if r.Intent != models.IntentFaultReported {
		t.Errorf("inferred yes intent = %s, want FaultReported", r.Intent)
	}
}

func TestAccountNotFoundShortCircuit(t *testing.T) {
	e := newTestEngine()
	s := newSession("2348012345678")
	ctx := context.Background()

	// Right format, no record.
	r := e.Respond(ctx, s, "my account is 109999")
	if r.Intent != models.IntentAccountNotFound {
		t.Errorf("unknown account intent = %s, want AccountNotFound", r.Intent)
	}
	if s.AccountNumber != "" {
		t.Errorf("unknown account must not stick to the session, got %q", s.AccountNumber)
	}

	// Wrong format.
	r = e.Respond(ctx, s, "account 23456")
	if r.Intent != models.IntentAccountNotFound {
		t.Errorf("malformed account intent = %s, want AccountNotFound", r.Intent)
	}
}

func TestFaultConfirmationGating(t *testing.T) {
	e := newTestEngine()
	s := newSession("2348012345678")
	ctx := context.Background()

	r1 := e.Respond(ctx, s, "There has been no power in my area since yesterday")
	if r1.Intent != models.IntentFaultConfirmation {
		t.Fatalf("turn 1 intent = %s, want FaultConfirmation", r1.Intent)
	}
	if !s.PendingFaultConfirmation {
		t.Fatal("fault confirmation should be pending")
	}
	if s.CurrentState != models.StateFaultCollection {
		t.Errorf("state = %s, want fault_collection", s.CurrentState)
	}

	r2 := e.Respond(ctx, s, "yes")
	if r2.Intent != models.IntentFaultReported {
		t.Fatalf("turn 2 intent = %s, want FaultReported", r2.Intent)
	}
	if !strings.Contains(r2.Reply, "#1") {
		t.Errorf("expected report reference in reply, got %q", r2.Reply)
	}
	if s.PendingFaultConfirmation {
		t.Error("pending flag must clear after submission")
	}
}

func TestFaultConfirmationDeclinedDiscards(t *testing.T) {
	st := store.NewInMemoryStore()
	e := NewEngine(st, nil, 20)
	s := newSession("2348012345678")
	ctx := context.Background()

	e.Respond(ctx, s, "transformer is sparking on my street")
	e.Respond(ctx, s, "no")
	n, _ := st.FaultReportCount(ctx)
	if n != 0 {
		t.Errorf("declined report must not be saved, count = %d", n)
	}
}

func TestStoreFailureResolvesPending(t *testing.T) {
	e := NewEngine(&failingStore{store.NewInMemoryStore()}, nil, 20)
	s := newSession("2348012345678")
	ctx := context.Background()

	e.Respond(ctx, s, "check my bill")
	e.Respond(ctx, s, "101234")
	r := e.Respond(ctx, s, "yes")
	if r.Intent != models.IntentUnknown {
		t.Errorf("store failure intent = %s, want unknown", r.Intent)
	}
	if r.Reply != ErrorReply {
		t.Errorf("expected generic error reply, got %q", r.Reply)
	}
	if s.PendingBillingConfirmation || s.PendingFaultConfirmation {
		t.Error("pending flags must resolve on failure")
	}
}

func TestLLMIntentResolution(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore(), &mockAI{out: `{"intent": "Thanks", "reply": "Anytime!"}`}, 20)
	s := newSession("2348012345678")

	r := e.Respond(context.Background(), s, "cheers")
	if r.Intent != models.IntentThanks {
		t.Errorf("intent = %s, want Thanks", r.Intent)
	}
	if r.Reply != "Anytime!" {
		t.Errorf("reply = %q, want model reply", r.Reply)
	}
}

func TestLLMFailureFallsBackToKeywords(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore(), &mockAI{err: errors.New("rate limited")}, 20)
	s := newSession("2348012345678")

	r := e.Respond(context.Background(), s, "hello there")
	if r.Intent != models.IntentGreeting {
		t.Errorf("intent = %s, want Greeting via fallback", r.Intent)
	}
	if r.Reply == "" {
		t.Error("fallback must still produce a reply")
	}
}

func TestLLMGarbageFallsBackToKeywords(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore(), &mockAI{out: "I think the user wants billing"}, 20)
	s := newSession("2348012345678")

	r := e.Respond(context.Background(), s, "my bill is too high")
	if r.Intent != models.IntentBilling {
		t.Errorf("intent = %s, want Billing via fallback", r.Intent)
	}
}

func TestHistoryBounded(t *testing.T) {
	e := NewEngine(store.NewInMemoryStore(), nil, 5)
	s := newSession("2348012345678")
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		e.Respond(ctx, s, "hello")
	}
	if len(s.ConversationHistory) != 5 {
		t.Errorf("history length = %d, want 5", len(s.ConversationHistory))
	}
}
