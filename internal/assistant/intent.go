// Package assistant answers ai:ask requests by streaming a provider's
// completion to a code room.
package assistant

import "strings"

// Intent selects the role the assistant plays for a message.
type Intent string

const (
	IntentDebugger      Intent = "debugger"
	IntentExplainer     Intent = "explainer"
	IntentRefactor      Intent = "refactor"
	IntentCodeAssistant Intent = "codeAssistant"
)

// Checked in order; the first intent with a matching keyword wins.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentDebugger, []string{"error", "bug", "not working", "broken", "fix", "issue", "problem"}},
	{IntentExplainer, []string{"explain", "what does", "how does", "why", "meaning", "understand"}},
	{IntentRefactor, []string{"optimize", "refactor", "improve", "better", "clean", "simplify"}},
}

// Classify maps a message to an intent by case-insensitive substring match.
// Messages matching nothing get IntentCodeAssistant.
func Classify(message string) Intent {
	msg := strings.ToLower(message)
	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(msg, kw) {
				return group.intent
			}
		}
	}
	return IntentCodeAssistant
}
