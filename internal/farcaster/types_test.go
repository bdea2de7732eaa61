package farcaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCastLink(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		user     string
		hash     string
		expected string
	}{
		{"default host", "", "zkdev", "0xaa", "https://farcaster.xyz/zkdev/0xaa"},
		{"custom host", "warpcast.com", "dwr", "0x1", "https://warpcast.com/dwr/0x1"},
		{"scheme and slash stripped", "https://warpcast.com/", "dwr", "0x1", "https://warpcast.com/dwr/0x1"},
		{"missing hash", "", "zkdev", "", ""},
		{"missing user", "", "", "0xaa", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CastLink(tt.host, tt.user, tt.hash))
		})
	}
}

func TestMergeFeeds_SimilarFirst(t *testing.T) {
	similar := []FeedItem{{Text: "s1"}, {Text: "s2"}}
	trending := []FeedItem{{Text: "t1"}}

	merged := MergeFeeds(similar, trending)

	assert.Equal(t, []string{"s1", "s2", "t1"}, texts(merged))
	assert.Empty(t, MergeFeeds(nil, nil))
}

func texts(items []FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}
