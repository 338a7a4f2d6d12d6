package assistant

import (
	"strings"

	"github.com/collab-hub/relay/internal/model"
)

// Prompt is the pair handed to a provider.
type Prompt struct {
	System string
	User   string
}

var systemPrompts = map[Intent]string{
	IntentDebugger:      "You're a debugging expert. Be brief and direct.",
	IntentExplainer:     "You're a code educator. Be concise.",
	IntentRefactor:      "You're a refactoring expert. Be brief.",
	IntentCodeAssistant: "You're an expert programmer. Be concise and helpful.",
}

// BuildPrompt builds the role prompt for intent. The code snapshot, when
// present, is fenced and tagged with its language ahead of the message.
func BuildPrompt(intent Intent, req model.AIAskRequest) Prompt {
	system, ok := systemPrompts[intent]
	if !ok {
		system = systemPrompts[IntentCodeAssistant]
	}

	hasCode := strings.TrimSpace(req.CodeSnapshot) != ""
	var user string
	switch {
	case intent == IntentDebugger && hasCode:
		user = fence(req) + "Issue: " + req.Message + "\nFix:"
	case intent == IntentDebugger:
		user = "Issue: " + req.Message + "\nHelp:"
	case intent == IntentRefactor && !hasCode:
		user = "Need code to refactor."
	case hasCode:
		user = fence(req) + req.Message
	default:
		user = req.Message
	}
	return Prompt{System: system, User: user}
}

func fence(req model.AIAskRequest) string {
	var b strings.Builder
	b.WriteString("Code:\n```")
	b.WriteString(req.Language)
	b.WriteString("\n")
	b.WriteString(req.CodeSnapshot)
	b.WriteString("\n```\n\n")
	return b.String()
}
