package flow

import "strings"

// Keyword-based yes/no classification. Confirmations never need an LLM round
// trip, which also makes them the guaranteed no-external-call path.

var affirmativeWords = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "yh": true,
	"sure": true, "ok": true, "okay": true, "confirm": true,
	"proceed": true, "correct": true,
}

var negativeWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true,
	"cancel": true, "stop": true, "dont": true, "don't": true,
}

// confirmation is the outcome of classifying a reply to a yes/no question.
type confirmation int

const (
	confirmUnclear confirmation = iota
	confirmYes
	confirmNo
)

// classifyConfirmation interprets a message as an answer to a pending yes/no
// question. Whole-message phrases are checked before single words so "go
// ahead" and "not now" classify correctly.
func classifyConfirmation(message string) confirmation {
	m := strings.ToLower(strings.TrimSpace(message))
	m = strings.TrimRight(m, ".!?")
	switch m {
	case "go ahead", "yes please", "do it":
		return confirmYes
	case "not now", "no thanks", "maybe later":
		return confirmNo
	}
	for _, w := range strings.Fields(m) {
		if affirmativeWords[w] {
			return confirmYes
		}
		if negativeWords[w] {
			return confirmNo
		}
	}
	return confirmUnclear
}
