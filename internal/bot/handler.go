// Package bot implements the message router and the conversation handlers
// that sit behind it: greeting, AI-backed support and the FAQ tree.
package bot

import (
	"context"

	"github.com/zigamak/bedcbot/internal/models"
)

// Handler processes one inbound message for a session. It mutates the
// session copy it is given; the router persists the copy after the turn.
// A handler returns either a direct outbound message or a redirect
// descriptor pointing at another handler, never both.
type Handler interface {
	Handle(ctx context.Context, session *models.Session, message string) models.HandlerResult
}
