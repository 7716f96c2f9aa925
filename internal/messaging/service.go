// Package messaging provides pluggable message transports for bedcbot.
//
// A Service delivers outbound messages and surfaces inbound customer
// messages and delivery receipts as channels, so the bot loop stays
// transport-agnostic between the whatsmeow and Twilio backends.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/zigamak/bedcbot/internal/models"
)

// Constants shared by transport implementations.
const (
	// DefaultChannelBufferSize defines the buffer size for receipt and response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel emits.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped indicates a send was attempted after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier according to the transport's rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a plain text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing, such as event polling.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of delivery status events.
	Receipts() <-chan models.Receipt

	// Responses returns a channel of inbound customer messages.
	Responses() <-chan models.Response
}

// canonicalizePhone validates a phone number and reduces it to digits only.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	return canonical, nil
}

// RenderOutbound flattens an outbound message descriptor to the plain text
// the transports actually deliver. Neither transport exposes native WhatsApp
// buttons here, and interactive bodies already enumerate their choices as a
// numbered list, so the button descriptors are dropped and only the header
// gets rendered.
func RenderOutbound(msg *models.OutboundMessage) string {
	if msg.Kind != models.MessageKindInteractive || len(msg.Buttons) == 0 {
		return msg.Body
	}
	var b strings.Builder
	if msg.Header != "" {
		b.WriteString("*" + msg.Header + "*\n\n")
	}
	b.WriteString(msg.Body)
	return b.String()
}

// SendOutbound renders and delivers an outbound message via the service.
func SendOutbound(ctx context.Context, svc Service, msg *models.OutboundMessage) error {
	return svc.SendMessage(ctx, msg.To, RenderOutbound(msg))
}
