package farcaster

import (
	"fmt"
	"strings"
)

// DefaultHost is the web client used to build cast links.
const DefaultHost = "farcaster.xyz"

// Cast is a social post as supplied by the caller. Stages never mutate it.
type Cast struct {
	Text       string `json:"text"`
	AuthorID   string `json:"author_id"`
	PostID     string `json:"post_id"`
	Engagement int    `json:"engagement"` // likes + recasts + replies
	Channel    string `json:"channel,omitempty"`
}

// FeedItem is a candidate piece of content from a similar-user or trending feed.
type FeedItem struct {
	Text           string `json:"text"`
	AuthorUsername string `json:"author_username"`
	CastHash       string `json:"cast_hash"`
	ChannelName    string `json:"channel_name"`
	URL            string `json:"url,omitempty"`
	Title          string `json:"title,omitempty"`
}

// CastLink builds https://<host>/<username>/<hash>. Empty when either part is missing.
func CastLink(host, username, hash string) string {
	if username == "" || hash == "" {
		return ""
	}
	if host == "" {
		host = DefaultHost
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "https://"), "/")
	return fmt.Sprintf("https://%s/%s/%s", host, username, hash)
}

// MergeFeeds concatenates feeds in caller priority order: similar-user feeds
// first, then trending.
func MergeFeeds(similar, trending []FeedItem) []FeedItem {
	out := make([]FeedItem, 0, len(similar)+len(trending))
	out = append(out, similar...)
	return append(out, trending...)
}
