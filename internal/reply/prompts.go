package reply

import "github.com/sashabaranov/go-openai/jsonschema"

const intentPrompt = `You decide whether a Farcaster cast deserves a reply that points its author to someone worth talking to.

Reply when the author is clearly looking for:
- technical help or advice
- job opportunities or career connections
- information about an event
- people who share an interest
- collaborators for a project
- learning resources
- a community to join

Do not reply when the cast is:
- a greeting with no specific content (gm, gn, hello)
- a statement that does not invite engagement
- a casual observation with no question in it
- a personal update that does not ask for discussion
- vague or ambiguous, without enough context to act on

Return a JSON object with:
- should_reply: true only if a reply is warranted
- identified_needs: the specific needs or questions a reply should address (empty when should_reply is false)
- confidence: a number between 0 and 1 for how sure you are

The user message is the cast text.`

const discoveryPrompt = `You pick the single most useful piece of content for a Farcaster cast from a list of candidate feed items.

Weigh each candidate by:
- how directly it addresses the identified needs
- freshness
- authority and credibility of the author
- how much value it would add to the conversation

Rules:
1. Feed items are already ordered by relevance. Prefer earlier items when candidates are otherwise comparable.
2. Only select an item that appears in the feed list. Never write, merge or rephrase content.
3. Copy author_username, cast_hash and channel_name from the chosen item exactly.
4. Skip content about airdrops and giveaways.
5. If nothing in the feed is genuinely relevant, return empty strings, empty key_points and a relevance_score of 0.

Return a JSON object with:
- selected_content: {title, url, relevance_score, key_points, author_username, cast_hash, channel_name}. url and channel_name may be empty strings.
- relevance_score: overall relevance between 0 and 1
- key_points: the points from the selected item that answer the needs, each a non-empty string

The user message is a JSON object with the cast text, the identified needs and the feed list.`

const draftPrompt = `You write a reply to a Farcaster cast using ONLY the selected feed content.

The reply_text MUST have exactly this form:
You should connect with [author_username], who said: '[content]'

Rules:
1. [author_username] is the author_username of the selected content, unchanged.
2. [content] is copied word for word from the selected content text. Do not summarize, shorten the meaning, translate or rephrase.
3. Do not add anything before or after the sentence. Links and channel invitations are added separately.

The user message is a JSON object with the cast text and the selected content.`

var intentSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"should_reply": {Type: jsonschema.Boolean},
		"identified_needs": {
			Type:  jsonschema.Array,
			Items: &jsonschema.Definition{Type: jsonschema.String},
		},
		"confidence": {Type: jsonschema.Number, Description: "between 0 and 1"},
	},
	Required: []string{"should_reply", "identified_needs", "confidence"},
}

var keyPointsSchema = jsonschema.Definition{
	Type:  jsonschema.Array,
	Items: &jsonschema.Definition{Type: jsonschema.String},
}

var discoverySchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"selected_content": {
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"title":           {Type: jsonschema.String},
				"url":             {Type: jsonschema.String},
				"relevance_score": {Type: jsonschema.Number, Description: "between 0 and 1"},
				"key_points":      keyPointsSchema,
				"author_username": {Type: jsonschema.String},
				"cast_hash":       {Type: jsonschema.String},
				"channel_name":    {Type: jsonschema.String},
			},
			Required: []string{"title", "url", "relevance_score", "key_points", "author_username", "cast_hash", "channel_name"},
		},
		"relevance_score": {Type: jsonschema.Number, Description: "between 0 and 1"},
		"key_points":      keyPointsSchema,
	},
	Required: []string{"selected_content", "relevance_score", "key_points"},
}

var draftSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"reply_text": {Type: jsonschema.String},
	},
	Required: []string{"reply_text"},
}
