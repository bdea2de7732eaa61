package reply

import "github.com/MikeSquared-Agency/galaxy/internal/farcaster"

const (
	// NoReplyText is returned when no content was selected for the cast.
	NoReplyText = "No response needed for this cast."
	// FallbackText replaces a drafted reply that failed grounding checks.
	FallbackText = "No relevant content found in the available feeds."
)

// Schema names, also used to script the test gateway.
const (
	SchemaIntent    = "intent_analysis"
	SchemaDiscovery = "discovered_content"
	SchemaDraft     = "reply"
)

type IntentAnalysis struct {
	ShouldReply     bool     `json:"should_reply"`
	IdentifiedNeeds []string `json:"identified_needs"`
	Confidence      float64  `json:"confidence"`
}

type SelectedContent struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	RelevanceScore float64  `json:"relevance_score"`
	KeyPoints      []string `json:"key_points"`
	AuthorUsername string   `json:"author_username"`
	CastHash       string   `json:"cast_hash"`
	ChannelName    string   `json:"channel_name"`
}

// DiscoveredContent is the feed item chosen to ground a reply.
type DiscoveredContent struct {
	SelectedContent SelectedContent `json:"selected_content"`
	RelevanceScore  float64         `json:"relevance_score"`
	KeyPoints       []string        `json:"key_points"`

	// Source is the feed item the selection resolved to.
	Source farcaster.FeedItem `json:"-"`
}

type Reply struct {
	ReplyText string `json:"reply_text"`
	Link      string `json:"link"`
}

// NoReply is the reply for casts that get no recommendation.
func NoReply() Reply {
	return Reply{ReplyText: NoReplyText, Link: ""}
}

// Fallback is the reply used when a draft cannot be trusted.
func Fallback() Reply {
	return Reply{ReplyText: FallbackText, Link: ""}
}
