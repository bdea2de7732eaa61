package profile

import "github.com/sashabaranov/go-openai/jsonschema"

const summaryPrompt = `You describe a Farcaster user as a short list of behavioural keywords.

Read the profile and return a JSON object with exactly one field:
- summary: 3 to 10 comma-separated keyword pairs, each two or more lowercase words joined by hyphens, e.g. "base-builder, nft-collector, defi-degen"

Describe what the user does and cares about, not their follower numbers. Do not include any other fields.

The user message is the profile as JSON.`

var summarySchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"summary": {Type: jsonschema.String},
	},
	Required: []string{"summary"},
}
