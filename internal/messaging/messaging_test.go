package messaging

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/zigamak/bedcbot/internal/models"
	"github.com/zigamak/bedcbot/internal/twiliowhatsapp"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+234 801 234 5678", "2348012345678", false},
		{"whatsapp:+2348012345678", "2348012345678", false},
		{"2348012345678", "2348012345678", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, c := range cases {
		got, err := canonicalizePhone(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhone(%q) expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhone(%q) failed: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRenderOutbound(t *testing.T) {
	text := models.NewTextMessage("2348012345678", "plain body")
	if got := RenderOutbound(text); got != "plain body" {
		t.Errorf("text render = %q", got)
	}

	interactive := models.NewInteractiveMessage("2348012345678", "pick one:\n1. A\n2. B", "Menu", []models.Button{{ID: "a", Title: "A"}})
	got := RenderOutbound(interactive)
	if !strings.Contains(got, "*Menu*") {
		t.Errorf("interactive render should carry the header, got %q", got)
	}
	if !strings.Contains(got, "pick one") {
		t.Errorf("interactive render should carry the body, got %q", got)
	}
}

func TestTwilioServiceSendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "+234 801 234 5678", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "2348012345678" {
		t.Errorf("recipient not canonicalized: %q", mock.SentMessages[0].To)
	}

	select {
	case receipt := <-svc.Receipts():
		if receipt.Status != models.StatusTypeSent {
			t.Errorf("receipt status = %s, want sent", receipt.Status)
		}
	default:
		t.Error("expected a sent receipt on the channel")
	}
}

func TestTwilioServiceSendAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "2348012345678", "hello"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestTwilioWebhookEmitsResponse(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+2348012345678")
	form.Set("Body", "hello")
	req := httptest.NewRequest("POST", "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)
	if rec.Code != 200 {
		t.Fatalf("webhook status = %d, want 200", rec.Code)
	}

	select {
	case resp := <-svc.Responses():
		if resp.From != "+2348012345678" {
			t.Errorf("from = %q", resp.From)
		}
		if resp.Body != "hello" {
			t.Errorf("body = %q", resp.Body)
		}
	default:
		t.Error("expected an inbound response on the channel")
	}
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	req := httptest.NewRequest("POST", "/webhook/twilio", strings.NewReader("From=whatsapp%3A%2B123456789"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)
	if rec.Code != 400 {
		t.Errorf("webhook status = %d, want 400", rec.Code)
	}
}

func TestWhatsAppServiceValidatesRecipient(t *testing.T) {
	svc := NewWhatsAppService(nil)
	if _, err := svc.ValidateAndCanonicalizeRecipient(""); err == nil {
		t.Error("expected error for empty recipient")
	}
	got, err := svc.ValidateAndCanonicalizeRecipient("+234-801-234-5678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2348012345678" {
		t.Errorf("canonical = %q", got)
	}
}
