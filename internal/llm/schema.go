package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// decodeStructured validates raw model output against schema and unmarshals it.
func decodeStructured(raw string, schema jsonschema.Definition, strict bool, out any) error {
	body := []byte(stripFences(raw))

	if strict {
		if err := checkDeclaredKeys(body, schema); err != nil {
			return err
		}
	}

	if err := jsonschema.VerifySchemaAndUnmarshal(schema, body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// checkDeclaredKeys rejects top-level fields the schema does not declare.
func checkDeclaredKeys(body []byte, schema jsonschema.Definition) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	for key := range fields {
		if _, ok := schema.Properties[key]; !ok {
			return fmt.Errorf("%w: unexpected field %q", ErrSchema, key)
		}
	}
	return nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// SchemaInstructions renders schema as prompt text for providers without
// native structured output.
func SchemaInstructions(schema jsonschema.Definition) string {
	b, err := json.MarshalIndent(&schema, "", "  ")
	if err != nil {
		return "Respond with a single valid JSON object."
	}
	return "Respond with valid JSON matching this schema:\n" + string(b) +
		"\n\nReturn ONLY the JSON object, no markdown fences or other text."
}

// DecodeStructured applies the gateway's response validation for req to raw.
func DecodeStructured(raw string, req StructuredRequest, out any) error {
	return decodeStructured(raw, req.Schema, req.Strict, out)
}
