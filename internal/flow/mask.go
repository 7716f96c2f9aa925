package flow

import "strings"

// Fixed-width mask segments so a masked address never reveals the length of
// the original.
const (
	localMask  = "****"
	domainMask = "***"
)

// MaskEmail obscures an email address for display in chat, keeping just
// enough of it for the customer to recognize their own address.
//
// The local part and the domain (minus its final TLD segment) each keep their
// first and last two characters around a fixed-width mask; segments of four
// characters or fewer are left whole. The TLD is never masked. Input without
// an "@" is returned unchanged.
//
//	johndoe@example.com -> jo****oe@ex***le.com
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return email
	}
	local := email[:at]
	domain := email[at+1:]

	masked := maskSegment(local, localMask) + "@"
	if dot := strings.LastIndex(domain, "."); dot >= 0 {
		masked += maskSegment(domain[:dot], domainMask) + domain[dot:]
	} else {
		masked += maskSegment(domain, domainMask)
	}
	return masked
}

// maskSegment keeps the first and last two characters around the mask.
// Short segments have nothing worth hiding and are returned whole. Counted
// in runes so a multibyte address is never split mid-character.
func maskSegment(s, mask string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return s
	}
	return string(r[:2]) + mask + string(r[len(r)-2:])
}
