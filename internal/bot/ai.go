package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/zigamak/bedcbot/internal/flow"
	"github.com/zigamak/bedcbot/internal/models"
	"github.com/zigamak/bedcbot/internal/store"
)

// saveConversationTimeout bounds the background persistence of a turn.
const saveConversationTimeout = 10 * time.Second

// AIHandler runs the open-ended support conversation through the flow engine
// and persists each turn for analytics.
type AIHandler struct {
	engine *flow.Engine
	store  store.Store
}

// NewAIHandler creates the AI conversation handler.
func NewAIHandler(engine *flow.Engine, st store.Store) *AIHandler {
	return &AIHandler{engine: engine, store: st}
}

// Handle runs one turn of the support conversation. An FAQ intent hands the
// customer over to the FAQ handler; everything else replies directly.
func (h *AIHandler) Handle(ctx context.Context, session *models.Session, message string) models.HandlerResult {
	result := h.engine.Respond(ctx, session, message)

	h.persistTurn(session, message, result)

	if result.Intent == models.IntentFAQ {
		return models.RedirectResult(models.HandlerFAQ, "", result.Reply)
	}
	return models.DirectResult(models.NewTextMessage(session.PhoneNumber, result.Reply))
}

// persistTurn saves the exchange in the background so a slow database never
// delays the reply.
func (h *AIHandler) persistTurn(session *models.Session, message string, result flow.Result) {
	if h.store == nil {
		return
	}
	rec := &models.ConversationRecord{
		PhoneNumber: session.PhoneNumber,
		SessionID:   session.PhoneNumber,
		UserMessage: message,
		Reply:       result.Reply,
		Intent:      result.Intent,
		Timestamp:   time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveConversationTimeout)
		defer cancel()
		if err := h.store.SaveConversation(ctx, rec); err != nil {
			slog.Warn("AIHandler.persistTurn: save failed", "session_id", rec.SessionID, "error", err)
		}
	}()
}
