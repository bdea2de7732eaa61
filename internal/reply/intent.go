package reply

import (
	"context"
	"strings"

	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
)

// CheckIntent decides whether castText warrants a reply. Malformed model
// output is returned as a gateway error without retrying.
func CheckIntent(ctx context.Context, gw llm.Gateway, castText string) (IntentAnalysis, error) {
	if strings.TrimSpace(castText) == "" {
		return IntentAnalysis{}, pipeline.EmptyInput("cast text")
	}

	var intent IntentAnalysis
	err := gw.CompleteStructured(ctx, llm.StructuredRequest{
		Model: llm.RoleReasoning,
		Name:  SchemaIntent,
		Messages: []llm.Message{
			llm.SystemMessage(intentPrompt),
			llm.UserMessage(castText),
		},
		Schema: intentSchema,
	}, &intent)
	if err != nil {
		return IntentAnalysis{}, err
	}

	if intent.Confidence < 0 || intent.Confidence > 1 {
		return IntentAnalysis{}, llm.SchemaViolation(llm.RoleReasoning, "confidence %v outside [0,1]", intent.Confidence)
	}
	if intent.IdentifiedNeeds == nil {
		intent.IdentifiedNeeds = []string{}
	}
	return intent, nil
}
