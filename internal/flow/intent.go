package flow

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/zigamak/bedcbot/internal/models"
)

// systemPrompt instructs the model to classify the turn and draft a reply as
// a single JSON object the engine can parse.
const systemPrompt = `You are a customer support assistant for an electricity distribution company in Nigeria. Customers message you on WhatsApp about estimated billing, NERC billing caps, meter applications, and power faults.

Classify the customer's latest message and draft a short, warm reply. Respond with ONLY a JSON object, no markdown, in this exact shape:
{"intent": "<one of: Greeting, Billing, Fault, Metering, FAQ, Thanks, General>", "reply": "<your reply, under 100 words>"}

Rules:
- "Billing" when the customer asks about their bill, overbilling, estimated billing or the NERC cap.
- "Fault" when the customer reports a power outage, damaged equipment or no light.
- "Metering" for questions about getting or using a prepaid meter.
- "FAQ" when the customer asks to see the FAQ or help menu.
- Never invent account details. Do not include account numbers or email addresses in the reply.`

// llmReply is the JSON shape the model is asked to produce.
type llmReply struct {
	Intent string `json:"intent"`
	Reply  string `json:"reply"`
}

// knownIntents are the labels accepted from the model. Anything else falls
// back to keyword classification.
var knownIntents = map[string]models.Intent{
	"Greeting": models.IntentGreeting,
	"Billing":  models.IntentBilling,
	"Fault":    models.IntentFault,
	"Metering": models.IntentMetering,
	"FAQ":      models.IntentFAQ,
	"Thanks":   models.IntentThanks,
	"General":  models.IntentGeneral,
}

// resolveIntent classifies the message, preferring the LLM and falling back
// to keyword matching when no client is configured or the call fails.
func (e *Engine) resolveIntent(ctx context.Context, session *models.Session, message string) (models.Intent, string) {
	if e.ai == nil {
		return fallbackIntent(message), ""
	}

	userPrompt := buildUserPrompt(session, message)
	out, err := e.ai.GeneratePrompt(ctx, systemPrompt, userPrompt)
	if err != nil {
		slog.Warn("Flow.resolveIntent: generation failed, using keyword fallback", "error", err)
		return fallbackIntent(message), ""
	}

	var parsed llmReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &parsed); err != nil {
		slog.Warn("Flow.resolveIntent: unparseable model output, using keyword fallback", "error", err)
		return fallbackIntent(message), ""
	}
	intent, ok := knownIntents[parsed.Intent]
	if !ok {
		slog.Warn("Flow.resolveIntent: unrecognized intent label, using keyword fallback", "label", parsed.Intent)
		return fallbackIntent(message), ""
	}
	return intent, parsed.Reply
}

// buildUserPrompt folds recent history into the user prompt so the model sees
// conversational context.
func buildUserPrompt(session *models.Session, message string) string {
	var b strings.Builder
	if session.UserName != "" {
		b.WriteString("Customer name: " + session.UserName + "\n")
	}
	history := session.ConversationHistory
	if len(history) > 5 {
		history = history[len(history)-5:]
	}
	for _, entry := range history {
		b.WriteString("Customer: " + entry.User + "\n")
		b.WriteString("Assistant: " + entry.Assistant + "\n")
	}
	b.WriteString("Customer: " + message)
	return b.String()
}

// Keyword sets for the no-LLM fallback classifier. Greeting keywords include
// the Swahili synonyms customers actually use.
var (
	greetingKeywords = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening", "habari", "mambo", "sasa", "jambo", "menu", "start"}
	billingKeywords  = []string{"bill", "billing", "overcharg", "estimated", "cap", "charge", "payment", "tariff"}
	faultKeywords    = []string{"fault", "outage", "no light", "no power", "transformer", "pole", "wire", "spark", "blackout"}
	meteringKeywords = []string{"meter", "prepaid", "postpaid", "recharge", "token"}
	faqKeywords      = []string{"faq", "help", "question"}
	thanksKeywords   = []string{"thank", "thanks", "appreciated", "grateful"}
)

// fallbackIntent classifies a message by keyword when no model is available.
// Greeting keywords are checked before topical ones so "hello, about my bill"
// still lands on the greeting path first.
func fallbackIntent(message string) models.Intent {
	m := strings.ToLower(message)
	switch {
	case matchesAny(m, greetingKeywords):
		return models.IntentGreeting
	case matchesAny(m, billingKeywords):
		return models.IntentBilling
	case matchesAny(m, faultKeywords):
		return models.IntentFault
	case matchesAny(m, meteringKeywords):
		return models.IntentMetering
	case matchesAny(m, faqKeywords):
		return models.IntentFAQ
	case matchesAny(m, thanksKeywords):
		return models.IntentThanks
	default:
		return models.IntentGeneral
	}
}

// matchesAny reports whether the lowercased message contains any keyword.
// Multi-word keywords match as substrings; single words match on word
// boundaries, with prefix matching for stems of five or more characters so
// "overcharg" catches "overcharged" without "hi" catching "high".
func matchesAny(m string, keywords []string) bool {
	words := strings.Fields(m)
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(m, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			w = strings.Trim(w, ".,!?;:'\"()")
			if w == kw || (len(kw) >= 5 && strings.HasPrefix(w, kw)) {
				return true
			}
		}
	}
	return false
}
