// Package models defines the core data structures for bedcbot.
//
// It includes session state, customer and report records, intent labels,
// and outbound message descriptors shared across modules.
package models

import (
	"errors"
	"time"
)

// HandlerType identifies which conversation handler owns the next inbound message.
type HandlerType string

const (
	// HandlerGreeting handles the initial greeting and restart flow.
	HandlerGreeting HandlerType = "greeting"
	// HandlerAI handles the open-ended AI-backed support conversation.
	HandlerAI HandlerType = "ai"
	// HandlerFAQ handles the static FAQ category/question tree.
	HandlerFAQ HandlerType = "faq"
)

// IsValidHandlerType checks if the given handler type is supported.
func IsValidHandlerType(h HandlerType) bool {
	switch h {
	case HandlerGreeting, HandlerAI, HandlerFAQ:
		return true
	default:
		return false
	}
}

// StateType identifies the conversation state within a handler.
type StateType string

const (
	// StateStart is the initial state of a brand-new or reset session.
	StateStart StateType = "start"
	// StateGreeting is the greeting handler's resting state.
	StateGreeting StateType = "greeting"
	// StateAIChat is the open-ended AI conversation state.
	StateAIChat StateType = "ai_chat"
	// StateAIMenu is the post-greeting menu selection state.
	StateAIMenu StateType = "ai_menu"
	// StateFaultCollection is the structured fault-report intake state.
	StateFaultCollection StateType = "fault_collection"
	// StateFAQ is the FAQ browsing state.
	StateFAQ StateType = "faq"
)

// Intent classifies what the user wants in a single turn.
type Intent string

const (
	IntentGreeting            Intent = "Greeting"
	IntentBilling             Intent = "Billing"
	IntentBillingConfirmation Intent = "BillingConfirmation"
	IntentBillingInfo         Intent = "BillingInfo"
	IntentFault               Intent = "Fault"
	IntentFaultConfirmation   Intent = "FaultConfirmation"
	IntentFaultReported       Intent = "FaultReported"
	IntentAccountNotFound     Intent = "AccountNotFound"
	IntentMetering            Intent = "Metering"
	IntentFAQ                 Intent = "FAQ"
	IntentThanks              Intent = "Thanks"
	IntentGeneral             Intent = "General"
	IntentUnknown             Intent = "unknown"
)

// Error variables shared across modules.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrEmptyMessageBody = errors.New("message body cannot be empty")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// BillingStatus describes the outcome of a billing cap check.
type BillingStatus string

const (
	// BillingWithinCap means the bill does not exceed the regulatory cap.
	BillingWithinCap BillingStatus = "within_cap"
	// BillingAboveCap means the bill exceeds the regulatory cap.
	BillingAboveCap BillingStatus = "above_cap"
	// BillingNotFound means the account has no billing record.
	BillingNotFound BillingStatus = "not_found"
)

// Customer is a read-only customer record from the repository.
type Customer struct {
	AccountNumber string  `json:"account_number"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Feeder        string  `json:"feeder"`
	BillAmount    float64 `json:"bill_amount"`
	NercCap       float64 `json:"nerc_cap"`
	Metered       bool    `json:"metered"`
}

// BillingCheck is the result of comparing a customer's bill against the NERC cap.
type BillingCheck struct {
	Status     BillingStatus `json:"status"`
	BillAmount float64       `json:"bill_amount"`
	Cap        float64       `json:"cap"`
	Difference float64       `json:"difference"`
	Customer   *Customer     `json:"customer,omitempty"`
}

// FaultReport is a finalized, confirmed fault submission.
type FaultReport struct {
	ID            int64     `json:"id,omitempty"`
	PhoneNumber   string    `json:"phone_number"`
	AccountNumber string    `json:"account_number"`
	Email         string    `json:"email"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationRecord is one persisted turn of a conversation.
type ConversationRecord struct {
	PhoneNumber string    `json:"phone_number"`
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message"`
	Reply       string    `json:"reply"`
	Intent      Intent    `json:"intent"`
	Timestamp   time.Time `json:"timestamp"`
}

// Button is one selectable choice on an interactive outbound message.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// MessageKind distinguishes outbound message shapes.
type MessageKind string

const (
	// MessageKindText is a plain text message.
	MessageKindText MessageKind = "text"
	// MessageKindInteractive is a message with choice buttons.
	MessageKindInteractive MessageKind = "interactive"
)

// OutboundMessage is the descriptor handed to the transport layer.
type OutboundMessage struct {
	Kind    MessageKind `json:"kind"`
	To      string      `json:"to"`
	Body    string      `json:"body"`
	Header  string      `json:"header,omitempty"`
	Buttons []Button    `json:"buttons,omitempty"`
}

// NewTextMessage builds a plain text outbound message.
func NewTextMessage(to, body string) *OutboundMessage {
	return &OutboundMessage{Kind: MessageKindText, To: to, Body: body}
}

// NewInteractiveMessage builds an outbound message with choice buttons.
func NewInteractiveMessage(to, body, header string, buttons []Button) *OutboundMessage {
	return &OutboundMessage{Kind: MessageKindInteractive, To: to, Body: body, Header: header, Buttons: buttons}
}

// Redirect instructs the router to re-dispatch to another handler.
// It is internal to the routing layer and never sent to the transport.
type Redirect struct {
	Handler           HandlerType `json:"handler"`
	Message           string      `json:"message"`
	AdditionalMessage string      `json:"additional_message,omitempty"`
}

// HandlerResult is the outcome of one handler invocation: either a direct
// outbound message or a redirect to another handler, never both.
type HandlerResult struct {
	Message  *OutboundMessage
	Redirect *Redirect
}

// DirectResult wraps an outbound message as a handler result.
func DirectResult(msg *OutboundMessage) HandlerResult {
	return HandlerResult{Message: msg}
}

// RedirectResult wraps a redirect descriptor as a handler result.
func RedirectResult(handler HandlerType, message, additional string) HandlerResult {
	return HandlerResult{Redirect: &Redirect{Handler: handler, Message: message, AdditionalMessage: additional}}
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
