// Package models defines transport-level message event types.
package models

// StatusType represents the delivery status of an outbound message.
type StatusType string

const (
	// StatusTypeSent means the transport accepted the message.
	StatusTypeSent StatusType = "sent"
	// StatusTypeDelivered means the recipient's device received the message.
	StatusTypeDelivered StatusType = "delivered"
	// StatusTypeRead means the recipient read the message.
	StatusTypeRead StatusType = "read"
)

// Receipt is a delivery status event for an outbound message.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// Response is an inbound message from a customer.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
