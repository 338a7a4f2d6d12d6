package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    Intent
	}{
		{"Why is there an ERROR on line 3?", IntentDebugger},
		{"this is not working", IntentDebugger},
		{"please fix it", IntentDebugger},
		{"explain this function", IntentExplainer},
		{"What does map do", IntentExplainer},
		{"why?", IntentExplainer},
		{"help me understand closures", IntentExplainer},
		{"can you refactor this", IntentRefactor},
		{"make it cleaner", IntentRefactor},
		{"optimize and explain", IntentExplainer},
		{"write a binary search", IntentCodeAssistant},
		{"", IntentCodeAssistant},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.message))
		})
	}
}
