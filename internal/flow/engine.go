// Package flow implements the conversation flow controller: intent
// resolution, identity extraction, email masking and the confirmation-gated
// state machine that sits between inbound messages and the repository.
//
// The engine operates on the caller's copy of the session record and mutates
// it in place; the caller persists the mutated copy back through the session
// manager after the turn.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zigamak/bedcbot/internal/genai"
	"github.com/zigamak/bedcbot/internal/models"
	"github.com/zigamak/bedcbot/internal/store"
)

// ErrorReply is the generic reply used when a turn fails internally.
const ErrorReply = "Sorry, something went wrong on our side. Please try again in a moment."

// Result is the outcome of one conversation turn.
type Result struct {
	Reply  string
	Intent models.Intent
}

// Engine drives the confirmation-gated conversation flow.
type Engine struct {
	store        store.Store
	ai           genai.ClientInterface
	historyLimit int
}

// NewEngine creates a flow engine. A nil AI client puts the engine in
// keyword-fallback mode; the store is required.
func NewEngine(st store.Store, ai genai.ClientInterface, historyLimit int) *Engine {
	return &Engine{store: st, ai: ai, historyLimit: historyLimit}
}

// Respond processes one inbound message against the session and produces the
// reply. The session is mutated in place: extraction results, pending
// confirmation flags, state and bounded history all land on it.
//
// Processing order: pending confirmations short-circuit first, then identity
// extraction, then the account validation gate, then intent resolution and
// confirmation gating. Sensitive disclosures (billing details, fault
// submission) only ever happen from an explicit yes to a pending question.
func (e *Engine) Respond(ctx context.Context, session *models.Session, message string) Result {
	message = strings.TrimSpace(message)
	res := e.respond(ctx, session, message)
	session.CurrentHandler = models.HandlerAI
	if session.PendingFaultConfirmation {
		session.CurrentState = models.StateFaultCollection
	} else {
		session.CurrentState = models.StateAIChat
	}
	session.AppendHistory(models.ConversationEntry{
		User:      message,
		Assistant: res.Reply,
		Intent:    res.Intent,
		Timestamp: time.Now(),
	}, e.historyLimit)
	return res
}

func (e *Engine) respond(ctx context.Context, session *models.Session, message string) Result {
	// Step 1: a pending yes/no question owns the turn. If the flag was lost
	// (the panic recovery path clears flags while history survives), the
	// last recorded intent still marks the question as open, so restore the
	// flag and let the confirmation handler deal with the reply. An unclear
	// reply then re-asks the same question instead of drifting off topic.
	pendingBilling := session.PendingBillingConfirmation
	pendingFault := session.PendingFaultConfirmation
	if !pendingBilling && !pendingFault {
		switch session.LastIntent() {
		case models.IntentBillingConfirmation:
			slog.Warn("Flow.Respond: billing confirmation inferred from history", "session_id", session.PhoneNumber)
			session.PendingBillingConfirmation = true
			pendingBilling = true
		case models.IntentFaultConfirmation:
			slog.Warn("Flow.Respond: fault confirmation inferred from history", "session_id", session.PhoneNumber)
			session.PendingFaultConfirmation = true
			pendingFault = true
		}
	}
	if pendingBilling {
		return e.handleBillingConfirmation(ctx, session, message)
	}
	if pendingFault {
		return e.handleFaultConfirmation(ctx, session, message)
	}

	// Step 2: pick up volunteered identity details.
	details := extractDetails(message)
	if details.Name != "" && session.UserName == "" {
		session.UserName = details.Name
	}
	if details.Address != "" {
		session.Address = details.Address
	}
	if details.Email != "" {
		session.Email = details.Email
	}

	// Step 3: account validation gate. Any token that looks like an account
	// number attempt must validate before the conversation moves on.
	if details.AccountCandidate != "" && details.AccountCandidate != session.AccountNumber {
		if r, blocked := e.validateAccount(ctx, session, details.AccountCandidate); blocked {
			return r
		}
		// An account arriving while a billing question is in flight
		// continues that flow directly.
		if session.LastIntent() == models.IntentBilling {
			return e.startBillingFlow(session)
		}
	}

	// Step 4: classify the turn and gate sensitive intents behind an
	// explicit confirmation question.
	intent, llmText := e.resolveIntent(ctx, session, message)
	switch intent {
	case models.IntentBilling:
		return e.startBillingFlow(session)
	case models.IntentFault:
		return e.startFaultFlow(session, message)
	case models.IntentFAQ:
		return Result{Reply: "Let me show you our frequently asked questions.", Intent: models.IntentFAQ}
	case models.IntentGreeting:
		if llmText == "" {
			llmText = greetingReply(session)
		}
		return Result{Reply: llmText, Intent: models.IntentGreeting}
	case models.IntentThanks:
		if llmText == "" {
			llmText = "You're welcome! Is there anything else I can help you with?"
		}
		return Result{Reply: llmText, Intent: models.IntentThanks}
	case models.IntentMetering:
		if llmText == "" {
			llmText = "For a prepaid meter you can apply through the NERC Meter Asset Provider scheme. Would you like the requirements, or do you have a meter question I can answer?"
		}
		return Result{Reply: llmText, Intent: models.IntentMetering}
	default:
		if llmText == "" {
			llmText = "I can help you with billing questions, fault reports, meter applications and general enquiries. What would you like to do?"
		}
		return Result{Reply: llmText, Intent: models.IntentGeneral}
	}
}

// validateAccount checks an account number attempt against format and the
// repository. A failed validation short-circuits the turn with an
// AccountNotFound result; success stores the account on the session and lets
// the turn continue.
func (e *Engine) validateAccount(ctx context.Context, session *models.Session, candidate string) (Result, bool) {
	if !validAccountFormat(candidate) {
		slog.Debug("Flow.validateAccount: malformed account number", "session_id", session.PhoneNumber, "candidate", candidate)
		return Result{
			Reply:  fmt.Sprintf("%q doesn't look like a valid account number. Account numbers are 6 digits and start with 10, for example 101234. Could you check and send it again?", candidate),
			Intent: models.IntentAccountNotFound,
		}, true
	}

	customer, err := e.store.FindCustomer(ctx, candidate)
	if err == models.ErrCustomerNotFound {
		slog.Info("Flow.validateAccount: unknown account", "session_id", session.PhoneNumber, "account", candidate)
		return Result{
			Reply:  fmt.Sprintf("I couldn't find an account with number %s. Could you double-check the number on your bill and try again?", candidate),
			Intent: models.IntentAccountNotFound,
		}, true
	}
	if err != nil {
		slog.Error("Flow.validateAccount: lookup failed", "session_id", session.PhoneNumber, "error", err)
		return e.failSafe(session), true
	}

	session.AccountNumber = customer.AccountNumber
	if session.UserName == "" {
		session.UserName = customer.Name
	}
	if session.Email == "" {
		session.Email = customer.Email
	}
	slog.Debug("Flow.validateAccount: account validated", "session_id", session.PhoneNumber, "account", candidate)
	return Result{}, false
}

// startBillingFlow either asks for the account number or raises the billing
// confirmation question. Billing details are never disclosed on this turn.
func (e *Engine) startBillingFlow(session *models.Session) Result {
	if session.AccountNumber == "" {
		return Result{
			Reply:  "I can check your billing against the NERC cap. Please send me your account number (6 digits, starts with 10).",
			Intent: models.IntentBilling,
		}
	}
	session.PendingBillingConfirmation = true
	return Result{Reply: billingConfirmPrompt(session), Intent: models.IntentBillingConfirmation}
}

// startFaultFlow records the complaint text and raises the fault confirmation
// question. Nothing is persisted until the customer says yes.
func (e *Engine) startFaultFlow(session *models.Session, message string) Result {
	if session.FaultData == nil {
		session.FaultData = make(map[string]string)
	}
	session.FaultData["description"] = message
	session.PendingFaultConfirmation = true
	return Result{Reply: faultConfirmPrompt(session, message), Intent: models.IntentFaultConfirmation}
}

// handleBillingConfirmation resolves a pending billing question. Yes executes
// the billing check, no backs out, anything else re-asks.
func (e *Engine) handleBillingConfirmation(ctx context.Context, session *models.Session, message string) Result {
	switch classifyConfirmation(message) {
	case confirmYes:
		session.PendingBillingConfirmation = false
		if session.AccountNumber == "" {
			// Flag survived without the account it referred to. Restart.
			slog.Warn("Flow.handleBillingConfirmation: confirmed without account", "session_id", session.PhoneNumber)
			return Result{
				Reply:  "I seem to have lost your account number. Please send it again (6 digits, starts with 10).",
				Intent: models.IntentBilling,
			}
		}
		check, err := e.store.CheckBilling(ctx, session.AccountNumber)
		if err != nil {
			slog.Error("Flow.handleBillingConfirmation: billing check failed", "session_id", session.PhoneNumber, "error", err)
			return e.failSafe(session)
		}
		return Result{Reply: renderBillingCheck(session, check), Intent: models.IntentBillingInfo}
	case confirmNo:
		session.PendingBillingConfirmation = false
		return Result{
			Reply:  "No problem, I won't pull up those details. Is there anything else I can help you with?",
			Intent: models.IntentGeneral,
		}
	default:
		return Result{Reply: billingConfirmPrompt(session), Intent: models.IntentBillingConfirmation}
	}
}

// handleFaultConfirmation resolves a pending fault question. Yes persists the
// report, no discards it, anything else re-asks.
func (e *Engine) handleFaultConfirmation(ctx context.Context, session *models.Session, message string) Result {
	switch classifyConfirmation(message) {
	case confirmYes:
		session.PendingFaultConfirmation = false
		report := &models.FaultReport{
			PhoneNumber:   session.PhoneNumber,
			AccountNumber: session.AccountNumber,
			Email:         session.Email,
			Description:   session.FaultData["description"],
			CreatedAt:     time.Now(),
		}
		id, err := e.store.SaveFaultReport(ctx, report)
		if err != nil {
			slog.Error("Flow.handleFaultConfirmation: save failed", "session_id", session.PhoneNumber, "error", err)
			return e.failSafe(session)
		}
		delete(session.FaultData, "description")
		return Result{
			Reply:  fmt.Sprintf("Your fault report has been logged with reference #%d. Our technical team will reach out. Thank you for letting us know.", id),
			Intent: models.IntentFaultReported,
		}
	case confirmNo:
		session.PendingFaultConfirmation = false
		delete(session.FaultData, "description")
		return Result{
			Reply:  "Okay, I've discarded that report. Is there anything else I can help you with?",
			Intent: models.IntentGeneral,
		}
	default:
		return Result{Reply: faultConfirmPrompt(session, session.FaultData["description"]), Intent: models.IntentFaultConfirmation}
	}
}

// failSafe converts an internal error into the generic reply, resolving any
// pending questions so the session cannot wedge on a half-finished flow.
func (e *Engine) failSafe(session *models.Session) Result {
	session.PendingBillingConfirmation = false
	session.PendingFaultConfirmation = false
	return Result{Reply: ErrorReply, Intent: models.IntentUnknown}
}

// billingConfirmPrompt builds the billing yes/no question. The email, when
// known, appears masked so the chat transcript never carries the full address.
func billingConfirmPrompt(session *models.Session) string {
	prompt := fmt.Sprintf("You'd like me to pull up the billing details for account %s", session.AccountNumber)
	if session.Email != "" {
		prompt += fmt.Sprintf(" (registered to %s)", MaskEmail(session.Email))
	}
	return prompt + ". Shall I go ahead? (yes/no)"
}

// faultConfirmPrompt builds the fault yes/no question.
func faultConfirmPrompt(session *models.Session, description string) string {
	prompt := fmt.Sprintf("I'll log this fault report: %q", description)
	if session.Email != "" {
		prompt += fmt.Sprintf(". Updates go to %s", MaskEmail(session.Email))
	}
	return prompt + ". Should I submit it? (yes/no)"
}

// renderBillingCheck formats the outcome of a billing cap check.
func renderBillingCheck(session *models.Session, check *models.BillingCheck) string {
	switch check.Status {
	case models.BillingAboveCap:
		return fmt.Sprintf(
			"Your current bill for account %s is NGN %.2f, which is NGN %.2f ABOVE the NERC cap of NGN %.2f for your service band. You are entitled to a billing review. Would you like me to log a complaint?",
			session.AccountNumber, check.BillAmount, check.Difference, check.Cap)
	case models.BillingWithinCap:
		return fmt.Sprintf(
			"Your current bill for account %s is NGN %.2f, which is within the NERC cap of NGN %.2f for your service band.",
			session.AccountNumber, check.BillAmount, check.Cap)
	default:
		return fmt.Sprintf("I couldn't find billing records for account %s. Please contact our customer care centre to verify the account.", session.AccountNumber)
	}
}

// greetingReply is the canned greeting used when no model reply is available.
func greetingReply(session *models.Session) string {
	if session.UserName != "" {
		return fmt.Sprintf("Hello %s! How can I help you today? I can check your billing, log a fault report or answer meter questions.", session.UserName)
	}
	return "Hello! How can I help you today? I can check your billing, log a fault report or answer meter questions."
}
