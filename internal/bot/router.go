package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/zigamak/bedcbot/internal/flow"
	"github.com/zigamak/bedcbot/internal/models"
	"github.com/zigamak/bedcbot/internal/session"
	"github.com/zigamak/bedcbot/internal/store"
)

// MaxRedirectHops caps how many redirects one inbound message may trigger.
const MaxRedirectHops = 3

// globalGreetings force the conversation back to the greeting handler no
// matter which handler currently owns the session. Includes the Swahili
// greetings customers actually send.
var globalGreetings = map[string]bool{
	"hello": true, "hi": true, "menu": true, "start": true,
	"habari": true, "mambo": true, "sasa": true, "jambo": true,
}

// sessionExpiredNotice is prepended when a timed-out session was just reset.
const sessionExpiredNotice = "Welcome back! Your previous session had expired, so we're starting fresh."

// Router dispatches inbound messages to the handler that owns the session,
// follows redirect descriptors between handlers, and guarantees the customer
// always gets a reply.
type Router struct {
	sessions *session.Manager
	handlers map[models.HandlerType]Handler
}

// NewRouter wires the standard handler set around the flow engine.
func NewRouter(mgr *session.Manager, engine *flow.Engine, st store.Store) *Router {
	return &Router{
		sessions: mgr,
		handlers: map[models.HandlerType]Handler{
			models.HandlerGreeting: NewGreetingHandler(),
			models.HandlerAI:       NewAIHandler(engine, st),
			models.HandlerFAQ:      NewFAQHandler(),
		},
	}
}

// HandleMessage processes one inbound message and returns the outbound
// messages to deliver, in order. It never returns an empty slice for a
// non-empty message: any internal failure degrades to an apology reply.
func (r *Router) HandleMessage(ctx context.Context, from, body string) (msgs []*models.OutboundMessage) {
	if strings.TrimSpace(body) == "" {
		slog.Debug("Router.HandleMessage: ignoring empty message", "from", from)
		return nil
	}

	sess := r.sessions.GetOrCreate(from)

	// Panic boundary: a handler bug must not take the process down or leave
	// the session wedged mid-flow.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Router.HandleMessage: recovered from panic", "from", from, "panic", rec)
			sess.CurrentHandler = models.HandlerAI
			sess.CurrentState = models.StateAIChat
			sess.PendingBillingConfirmation = false
			sess.PendingFaultConfirmation = false
			r.sessions.Update(from, sess)
			msgs = []*models.OutboundMessage{models.NewTextMessage(from, flow.ErrorReply)}
		}
	}()

	if r.sessions.IsFreshlyReset(from) {
		msgs = append(msgs, models.NewTextMessage(from, sessionExpiredNotice))
	}

	// Global greeting override: these words restart the menu from anywhere.
	if globalGreetings[strings.ToLower(strings.TrimSpace(body))] {
		slog.Debug("Router.HandleMessage: global greeting override", "from", from)
		sess.CurrentHandler = models.HandlerGreeting
		sess.CurrentState = models.StateStart
		sess.FAQCategory = ""
	}

	if !models.IsValidHandlerType(sess.CurrentHandler) {
		slog.Warn("Router.HandleMessage: unknown handler on session, resetting", "from", from, "handler", sess.CurrentHandler)
		sess.CurrentHandler = models.HandlerGreeting
		sess.CurrentState = models.StateStart
	}

	current := sess.CurrentHandler
	message := body
	for hop := 0; ; hop++ {
		handler, ok := r.handlers[current]
		if !ok {
			slog.Error("Router.HandleMessage: no handler registered", "from", from, "handler", current)
			handler = r.handlers[models.HandlerAI]
		}

		res := handler.Handle(ctx, sess, message)
		if res.Message != nil {
			msgs = append(msgs, res.Message)
			break
		}
		if res.Redirect == nil {
			slog.Error("Router.HandleMessage: handler returned neither message nor redirect", "from", from, "handler", current)
			msgs = append(msgs, models.NewTextMessage(from, flow.ErrorReply))
			break
		}
		if hop >= MaxRedirectHops {
			slog.Error("Router.HandleMessage: redirect hop cap exceeded", "from", from, "handler", current, "target", res.Redirect.Handler)
			msgs = append(msgs, models.NewTextMessage(from, flow.ErrorReply))
			break
		}
		if res.Redirect.AdditionalMessage != "" {
			msgs = append(msgs, models.NewTextMessage(from, res.Redirect.AdditionalMessage))
		}
		slog.Debug("Router.HandleMessage: following redirect", "from", from, "source", current, "target", res.Redirect.Handler)
		current = res.Redirect.Handler
		message = res.Redirect.Message
		sess.CurrentHandler = current
	}

	r.sessions.Update(from, sess)
	return msgs
}
