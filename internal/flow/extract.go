package flow

import (
	"regexp"
	"strings"
)

// Extraction patterns for identity details volunteered mid-conversation.
var (
	// accountCandidateRe finds tokens that look like attempted account
	// numbers, including malformed ones that must trigger validation.
	accountCandidateRe = regexp.MustCompile(`\b\d{5,6}\b`)
	// accountFormatRe is the strict account number format.
	accountFormatRe = regexp.MustCompile(`^10\d{4}$`)
	emailRe         = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	nameRe          = regexp.MustCompile(`(?i)\bmy name is\s+([a-zA-Z]+(?:\s+[a-zA-Z]+)?)`)
	addressRe       = regexp.MustCompile(`(?i)\b(?:my address is|i live at|i live in|address is)\s+(.+)`)
)

// extracted holds identity details pulled out of a single message.
type extracted struct {
	// AccountCandidate is the raw token that looks like an account number
	// attempt, valid or not. Empty when the message has none.
	AccountCandidate string
	Email            string
	Name             string
	Address          string
}

// extractDetails scans a message for volunteered identity details.
func extractDetails(message string) extracted {
	var e extracted
	e.AccountCandidate = accountCandidateRe.FindString(message)
	e.Email = emailRe.FindString(message)
	if m := nameRe.FindStringSubmatch(message); m != nil {
		e.Name = strings.TrimSpace(m[1])
	}
	if m := addressRe.FindStringSubmatch(message); m != nil {
		e.Address = strings.TrimRight(strings.TrimSpace(m[1]), ".!?")
	}
	return e
}

// validAccountFormat reports whether a candidate token matches the account
// number format: six digits starting with 10.
func validAccountFormat(candidate string) bool {
	return accountFormatRe.MatchString(candidate)
}
