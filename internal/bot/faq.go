package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zigamak/bedcbot/internal/models"
)

// faqEntry is one question/answer pair.
type faqEntry struct {
	Question string
	Answer   string
}

// faqCategory groups entries under a menu heading.
type faqCategory struct {
	ID      string
	Title   string
	Entries []faqEntry
}

// faqCategories is the static FAQ content, ordered as presented.
var faqCategories = []faqCategory{
	{
		ID:    "billing",
		Title: "Billing & Payments",
		Entries: []faqEntry{
			{
				Question: "What is the NERC billing cap?",
				Answer:   "The NERC capping order limits how much an unmetered customer can be billed each month, based on your service band. If your estimated bill is above the cap for your band you are entitled to a review.",
			},
			{
				Question: "Why is my bill estimated?",
				Answer:   "Customers without a meter are billed by estimation. The fastest way to stop estimated billing is to get a prepaid meter through the Meter Asset Provider (MAP) scheme.",
			},
			{
				Question: "How can I pay my bill?",
				Answer:   "You can pay at any of our cash offices, through your bank's transfer channels, or online with your account number as reference. Always keep your receipt.",
			},
		},
	},
	{
		ID:    "metering",
		Title: "Metering",
		Entries: []faqEntry{
			{
				Question: "How do I get a prepaid meter?",
				Answer:   "Apply under the MAP scheme with your account number, a valid ID and proof of address. Once your application is approved, a technician schedules the installation.",
			},
			{
				Question: "My meter shows an error code. What do I do?",
				Answer:   "Note the code shown on the display and report it to us here with your meter number. Most tamper codes can be cleared with a token we generate for you.",
			},
		},
	},
	{
		ID:    "faults",
		Title: "Power Supply & Faults",
		Entries: []faqEntry{
			{
				Question: "How do I report a power outage?",
				Answer:   "Just tell me what happened and where, and I'll log a fault report for our technical team. Include your address or the nearest landmark so the crew can find the fault quickly.",
			},
			{
				Question: "A pole or wire is down in my street. Is it dangerous?",
				Answer:   "Yes. Keep everyone at least 10 metres away and do not touch the wire or anything in contact with it. Report it here immediately and we will dispatch an emergency crew.",
			},
		},
	},
}

// FAQHandler walks the customer through the static FAQ tree.
type FAQHandler struct{}

// NewFAQHandler creates the FAQ handler.
func NewFAQHandler() *FAQHandler {
	return &FAQHandler{}
}

// Handle navigates the FAQ tree. An empty category on the session means the
// customer is at the category menu; otherwise they are picking a question.
// "back" returns to the menu and "exit" hands over to the AI conversation.
func (h *FAQHandler) Handle(ctx context.Context, session *models.Session, message string) models.HandlerResult {
	session.CurrentHandler = models.HandlerFAQ
	session.CurrentState = models.StateFAQ

	choice := strings.ToLower(strings.TrimSpace(message))
	switch choice {
	case "exit", "chat", "talk to support":
		session.FAQCategory = ""
		return models.RedirectResult(models.HandlerAI, "", "Okay, back to our conversation. What can I help you with?")
	case "back", "menu", "":
		session.FAQCategory = ""
		return models.DirectResult(h.categoryMenu(session))
	}

	if session.FAQCategory == "" {
		if cat := findCategory(choice); cat != nil {
			session.FAQCategory = cat.ID
			return models.DirectResult(h.questionMenu(session, cat))
		}
		return models.DirectResult(h.categoryMenu(session))
	}

	cat := categoryByID(session.FAQCategory)
	if cat == nil {
		session.FAQCategory = ""
		return models.DirectResult(h.categoryMenu(session))
	}
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(cat.Entries) {
		entry := cat.Entries[n-1]
		body := fmt.Sprintf("%s\n\n%s\n\nReply with another number, 'back' for categories, or 'exit' to chat with support.", entry.Question, entry.Answer)
		return models.DirectResult(models.NewTextMessage(session.PhoneNumber, body))
	}
	return models.DirectResult(h.questionMenu(session, cat))
}

// categoryMenu renders the top-level FAQ menu.
func (h *FAQHandler) categoryMenu(session *models.Session) *models.OutboundMessage {
	var b strings.Builder
	b.WriteString("Frequently asked questions. Pick a category:\n")
	buttons := make([]models.Button, 0, len(faqCategories))
	for i, cat := range faqCategories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, cat.Title)
		buttons = append(buttons, models.Button{ID: cat.ID, Title: cat.Title})
	}
	b.WriteString("\nReply 'exit' to chat with support instead.")
	return models.NewInteractiveMessage(session.PhoneNumber, b.String(), "FAQ", buttons)
}

// questionMenu renders the questions of one category.
func (h *FAQHandler) questionMenu(session *models.Session, cat *faqCategory) *models.OutboundMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "%s. Reply with a question number:\n", cat.Title)
	for i, entry := range cat.Entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, entry.Question)
	}
	b.WriteString("\nReply 'back' for categories or 'exit' to chat with support.")
	return models.NewTextMessage(session.PhoneNumber, b.String())
}

// findCategory resolves a menu choice by number, ID or title.
func findCategory(choice string) *faqCategory {
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(faqCategories) {
		return &faqCategories[n-1]
	}
	for i := range faqCategories {
		if choice == faqCategories[i].ID || choice == strings.ToLower(faqCategories[i].Title) {
			return &faqCategories[i]
		}
	}
	return nil
}

// categoryByID looks a category up by its stored ID.
func categoryByID(id string) *faqCategory {
	for i := range faqCategories {
		if faqCategories[i].ID == id {
			return &faqCategories[i]
		}
	}
	return nil
}
