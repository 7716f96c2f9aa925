package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/zigamak/bedcbot/internal/models"
)

// GreetingHandler owns the first contact with a customer: the welcome
// message with the main menu, and routing of the menu choice.
type GreetingHandler struct{}

// NewGreetingHandler creates the greeting handler.
func NewGreetingHandler() *GreetingHandler {
	return &GreetingHandler{}
}

const welcomeBody = "Welcome to BEDC customer support! I can help you check your billing against the NERC cap, report a power fault, or answer common questions.\n\nReply with a number or just tell me what you need:\n1. Check my billing\n2. Report a fault\n3. FAQ"

var welcomeButtons = []models.Button{
	{ID: "billing", Title: "Check my billing"},
	{ID: "fault", Title: "Report a fault"},
	{ID: "faq", Title: "FAQ"},
}

// Handle sends the welcome menu on first contact, then routes the customer's
// choice to the AI or FAQ handler.
func (h *GreetingHandler) Handle(ctx context.Context, session *models.Session, message string) models.HandlerResult {
	if !session.WelcomeSent || session.CurrentState == models.StateStart {
		session.WelcomeSent = true
		session.CurrentState = models.StateGreeting
		session.CurrentHandler = models.HandlerGreeting
		slog.Debug("GreetingHandler.Handle: sending welcome", "session_id", session.PhoneNumber)
		return models.DirectResult(models.NewInteractiveMessage(session.PhoneNumber, welcomeBody, "BEDC Support", welcomeButtons))
	}

	choice := strings.ToLower(strings.TrimSpace(message))
	switch choice {
	case "1", "billing", "check my billing":
		return models.RedirectResult(models.HandlerAI, "I want to check my billing", "")
	case "2", "fault", "report a fault":
		return models.RedirectResult(models.HandlerAI, "I want to report a fault", "")
	case "3", "faq":
		return models.RedirectResult(models.HandlerFAQ, "", "")
	default:
		// Anything else goes straight to the open conversation.
		return models.RedirectResult(models.HandlerAI, message, "")
	}
}
