// Package models defines session state structures for bedcbot conversations.
package models

import "time"

// ConversationEntry is one user/assistant exchange kept in the bounded
// in-session history.
type ConversationEntry struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Intent    Intent    `json:"intent"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the per-user conversational state tracked across turns.
// It is keyed by the user's phone number.
type Session struct {
	CurrentState   StateType   `json:"current_state"`
	CurrentHandler HandlerType `json:"current_handler"`

	UserName    string `json:"user_name,omitempty"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address,omitempty"`

	// AccountNumber is sticky: once validated against the repository it
	// survives timeout-triggered resets (but not a full clear).
	AccountNumber string `json:"account_number,omitempty"`
	Email         string `json:"email,omitempty"`

	ConversationHistory []ConversationEntry `json:"conversation_history,omitempty"`

	PendingBillingConfirmation bool              `json:"pending_billing_confirmation,omitempty"`
	PendingFaultConfirmation   bool              `json:"pending_fault_confirmation,omitempty"`
	BillingData                map[string]string `json:"billing_data,omitempty"`
	FaultData                  map[string]string `json:"fault_data,omitempty"`

	IsPaidUser      bool       `json:"is_paid_user,omitempty"`
	ExtendedSession bool       `json:"extended_session,omitempty"`
	// PaidReference tracks the payment or order that justified the extension.
	PaidReference      string     `json:"paid_reference,omitempty"`
	PaidSessionExpires *time.Time `json:"paid_session_expires,omitempty"`

	WelcomeSent bool   `json:"welcome_sent,omitempty"`
	FAQCategory string `json:"faq_category,omitempty"`

	LastActivity time.Time `json:"last_activity"`
	// FreshlyResetAt is a short grace-period marker set when the session
	// transitions into the greeting/start state, so a just-reset session is
	// not immediately mistaken for stale by a concurrent reader.
	FreshlyResetAt *time.Time `json:"freshly_reset_at,omitempty"`
}

// NewSession builds a default session record for the given session ID.
func NewSession(sessionID string) *Session {
	return &Session{
		CurrentState:   StateStart,
		CurrentHandler: HandlerGreeting,
		PhoneNumber:    sessionID,
		BillingData:    make(map[string]string),
		FaultData:      make(map[string]string),
		LastActivity:   time.Now(),
	}
}

// Clone returns a deep copy of the session so callers can mutate their view
// without holding the store's lock.
func (s *Session) Clone() *Session {
	c := *s
	if s.ConversationHistory != nil {
		c.ConversationHistory = make([]ConversationEntry, len(s.ConversationHistory))
		copy(c.ConversationHistory, s.ConversationHistory)
	}
	c.BillingData = cloneStringMap(s.BillingData)
	c.FaultData = cloneStringMap(s.FaultData)
	if s.PaidSessionExpires != nil {
		t := *s.PaidSessionExpires
		c.PaidSessionExpires = &t
	}
	if s.FreshlyResetAt != nil {
		t := *s.FreshlyResetAt
		c.FreshlyResetAt = &t
	}
	return &c
}

// InGreetingState reports whether the session sits in the greeting handler's
// start or greeting state.
func (s *Session) InGreetingState() bool {
	return s.CurrentHandler == HandlerGreeting && (s.CurrentState == StateStart || s.CurrentState == StateGreeting)
}

// LastIntent returns the intent recorded on the most recent history entry, or
// IntentUnknown if the history is empty.
func (s *Session) LastIntent() Intent {
	if len(s.ConversationHistory) == 0 {
		return IntentUnknown
	}
	return s.ConversationHistory[len(s.ConversationHistory)-1].Intent
}

// AppendHistory appends one exchange to the conversation history, evicting the
// oldest entries beyond limit. A non-positive limit keeps the history empty.
func (s *Session) AppendHistory(entry ConversationEntry, limit int) {
	if limit <= 0 {
		s.ConversationHistory = nil
		return
	}
	s.ConversationHistory = append(s.ConversationHistory, entry)
	if len(s.ConversationHistory) > limit {
		s.ConversationHistory = s.ConversationHistory[len(s.ConversationHistory)-limit:]
	}
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
