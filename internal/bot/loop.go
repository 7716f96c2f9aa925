package bot

import (
	"context"
	"log/slog"

	"github.com/zigamak/bedcbot/internal/messaging"
)

// Loop pumps inbound messages from a transport through the router and sends
// the replies back out on the same transport.
type Loop struct {
	svc    messaging.Service
	router *Router
}

// NewLoop creates a message loop over the given transport and router.
func NewLoop(svc messaging.Service, router *Router) *Loop {
	return &Loop{svc: svc, router: router}
}

// Start begins transport event processing and the pump goroutines. It
// returns once the background work is running.
func (l *Loop) Start(ctx context.Context) error {
	if err := l.svc.Start(ctx); err != nil {
		return err
	}
	go l.pumpResponses(ctx)
	go l.drainReceipts(ctx)
	slog.Info("Bot loop started")
	return nil
}

// Stop shuts the transport down.
func (l *Loop) Stop() error {
	return l.svc.Stop()
}

// pumpResponses handles inbound messages until the context is cancelled or
// the transport closes its channel.
func (l *Loop) pumpResponses(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Bot loop stopping response pump")
			return
		case resp, ok := <-l.svc.Responses():
			if !ok {
				slog.Debug("Bot loop responses channel closed")
				return
			}
			l.handleInbound(ctx, resp.From, resp.Body)
		}
	}
}

// handleInbound routes one inbound message and delivers the replies.
func (l *Loop) handleInbound(ctx context.Context, from, body string) {
	canonical, err := l.svc.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("Bot loop dropping message with invalid sender", "from", from, "error", err)
		return
	}

	for _, msg := range l.router.HandleMessage(ctx, canonical, body) {
		msg.To = canonical
		if err := messaging.SendOutbound(ctx, l.svc, msg); err != nil {
			slog.Error("Bot loop failed to send reply", "to", canonical, "error", err)
		}
	}
}

// drainReceipts logs delivery status events so the channel never backs up.
func (l *Loop) drainReceipts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case receipt, ok := <-l.svc.Receipts():
			if !ok {
				return
			}
			slog.Debug("Bot loop delivery receipt", "to", receipt.To, "status", receipt.Status)
		}
	}
}
