package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/galaxy/internal/farcaster"
	"github.com/MikeSquared-Agency/galaxy/internal/galaxy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRun() ([]galaxy.ScoredCluster, []galaxy.ViralSuggestion) {
	cast := farcaster.Cast{Text: "zk rollups are eating L2", AuthorID: "1", PostID: "0xabc", Engagement: 42, Channel: "ethereum"}
	matched := []galaxy.ScoredCluster{
		{Topic: "zero knowledge", Score: 0.87, TopCasts: []farcaster.Cast{cast}},
	}
	suggestions := []galaxy.ViralSuggestion{
		{Topic: "zero knowledge", Cast: cast, SuggestedReply: "Which prover are you betting on?"},
	}
	return matched, suggestions
}

func TestFormatSuggestionsMessage(t *testing.T) {
	matched, suggestions := sampleRun()
	runID := uuid.MustParse("9f6ed519-0000-0000-0000-000000000000")

	msg := formatSuggestionsMessage(runID, matched, suggestions)

	for _, check := range []string{
		"9f6ed519-0000-0000-0000-000000000000",
		"Matched clusters: 1",
		"zero knowledge",
		"0.87",
		"Casts: 1",
		"Suggestions: 1",
	} {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q", check)
		}
	}
}

func TestFormatSuggestionsMessage_NoMatches(t *testing.T) {
	msg := formatSuggestionsMessage(uuid.New(), nil, nil)

	if !strings.Contains(msg, "No trending clusters matched") {
		t.Errorf("expected empty message, got %q", msg)
	}
}

func TestFormatSuggestion(t *testing.T) {
	_, suggestions := sampleRun()

	msg := formatSuggestion(suggestions[0])

	for _, check := range []string{"*zero knowledge*", "/ethereum", "42 engagement", "> zk rollups are eating L2", "Which prover"} {
		if !strings.Contains(msg, check) {
			t.Errorf("expected suggestion to contain %q, got %q", check, msg)
		}
	}
}

func TestPostViralSuggestions_Success(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)

		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	matched, suggestions := sampleRun()
	ts, err := p.PostViralSuggestions(context.Background(), uuid.New(), matched, suggestions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}

	if len(payloads) != 2 {
		t.Fatalf("expected parent message and one thread reply, got %d posts", len(payloads))
	}
	if payloads[0]["channel"] != "C123" {
		t.Errorf("expected channel C123, got %v", payloads[0]["channel"])
	}
	if payloads[1]["thread_ts"] != "1234567890.123456" {
		t.Errorf("expected threaded reply, got thread_ts %v", payloads[1]["thread_ts"])
	}
}

func TestPostViralSuggestions_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	matched, suggestions := sampleRun()
	_, err := p.PostViralSuggestions(context.Background(), uuid.New(), matched, suggestions)
	if err == nil {
		t.Fatal("expected error for slack error response")
	}
	if !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("expected slack error in message, got %v", err)
	}
}
