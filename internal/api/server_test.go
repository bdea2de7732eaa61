package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/galaxy/internal/llm"
	"github.com/MikeSquared-Agency/galaxy/internal/llm/llmtest"
	"github.com/MikeSquared-Agency/galaxy/internal/pipeline"
	"github.com/MikeSquared-Agency/galaxy/internal/processor"
	"github.com/MikeSquared-Agency/galaxy/internal/reply"
	"github.com/MikeSquared-Agency/galaxy/internal/store"
	"github.com/MikeSquared-Agency/galaxy/internal/tracker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(gw *llmtest.Gateway, token string) (*Server, *tracker.Tracker) {
	tr := tracker.New(discardLogger())
	proc := processor.New(gw, tr, nil, processor.Options{}, discardLogger())
	return NewServer(8760, token, proc, tr, discardLogger()), tr
}

func do(srv *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func gmGateway() *llmtest.Gateway {
	return llmtest.New().
		On(reply.SchemaIntent, reply.IntentAnalysis{ShouldReply: false, IdentifiedNeeds: []string{}, Confidence: 0.95})
}

type fakeHistory struct {
	runs    map[uuid.UUID]tracker.Run
	err     error
	pingErr error

	listWorkflow string
	listLimit    int
}

func (f *fakeHistory) RecentRuns(_ context.Context, workflow string, limit int) ([]store.RunSummary, error) {
	f.listWorkflow = workflow
	f.listLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	out := []store.RunSummary{}
	for _, run := range f.runs {
		if workflow != "" && run.Workflow != workflow {
			continue
		}
		out = append(out, store.RunSummary{ID: run.ID, Workflow: run.Workflow, Status: string(run.Status)})
	}
	return out, nil
}

func (f *fakeHistory) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeHistory) GetRun(_ context.Context, id uuid.UUID) (tracker.Run, error) {
	if f.err != nil {
		return tracker.Run{}, f.err
	}
	run, ok := f.runs[id]
	if !ok {
		return tracker.Run{}, store.ErrNotFound
	}
	return run, nil
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	w := do(srv, "GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	w := do(srv, "GET", "/api/v1/galaxy/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "galaxy", body["agent"])
	assert.Len(t, body["workflows"], 5)
	assert.Equal(t, "disabled", body["history"])
}

func TestStatusEndpoint_HistoryHealth(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	srv.SetHistory(&fakeHistory{})
	var body map[string]any
	require.NoError(t, json.NewDecoder(do(srv, "GET", "/api/v1/galaxy/status", "").Body).Decode(&body))
	assert.Equal(t, "ok", body["history"])

	srv.SetHistory(&fakeHistory{pingErr: errors.New("connection refused")})
	require.NoError(t, json.NewDecoder(do(srv, "GET", "/api/v1/galaxy/status", "").Body).Decode(&body))
	assert.Equal(t, "unreachable", body["history"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	w := do(srv, "GET", "/metrics", "")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	w := do(srv, "GET", "/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGenerateReply_BothMounts(t *testing.T) {
	for _, path := range []string{"/generate-reply", "/api/generate-reply"} {
		t.Run(path, func(t *testing.T) {
			srv, tr := newTestServer(gmGateway(), "")

			w := do(srv, "POST", path, `{"cast":{"text":"gm"},"trendingFeeds":[]}`)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var body struct {
				RunID          uuid.UUID            `json:"run_id"`
				IntentAnalysis reply.IntentAnalysis `json:"intent_analysis"`
				Reply          reply.Reply          `json:"reply"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.False(t, body.IntentAnalysis.ShouldReply)
			assert.Equal(t, reply.NoReplyText, body.Reply.ReplyText)

			run, ok := tr.Get(body.RunID)
			require.True(t, ok)
			assert.Equal(t, tracker.StatusCompleted, run.Status)
		})
	}
}

func TestGenerateReply_EmptyCast(t *testing.T) {
	srv, _ := newTestServer(gmGateway(), "")

	w := do(srv, "POST", "/generate-reply", `{"cast":{"text":"   "}}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	w := do(srv, "POST", "/user-summary", `{"user_data":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Contains(t, body.Error, "invalid JSON")
}

func TestUserSummary(t *testing.T) {
	gw := llmtest.New().
		On("user_summary", map[string]string{"summary": "defi-trader, base-builder, meme-poster"})
	srv, _ := newTestServer(gw, "")

	w := do(srv, "POST", "/user-summary", `{"user_data":{"bio":"onchain","follower_count":10,"following_count":5,"channels":["base"]}}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Summary   string    `json:"summary"`
		Embedding []float64 `json:"embedding"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "defi-trader, base-builder, meme-poster", body.Summary)
	assert.NotEmpty(t, body.Embedding)
}

func TestUserSummary_MissingUserData(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	w := do(srv, "POST", "/user-summary", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateEmbedding(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	w := do(srv, "POST", "/generate-embedding", `{"input_data":"hello world"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Vector     []float64 `json:"vector"`
		Dimensions int       `json:"dimensions"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, len(body.Vector), body.Dimensions)

	w = do(srv, "POST", "/generate-embedding", `{"input_data":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGalaxyTrending_MissingEmbedding(t *testing.T) {
	gw := llmtest.New()
	srv, _ := newTestServer(gw, "")

	w := do(srv, "POST", "/galaxy-trending", `{"casts":[{"text":"hi","author_id":"1","post_id":"0x1","engagement":1}],"user_summary":"x"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, gw.TotalCalls())
}

func TestGalaxyTopics(t *testing.T) {
	gw := llmtest.New().
		On("cast_topics", map[string]any{"topics": [][]string{{"Gaming"}}})
	srv, _ := newTestServer(gw, "")

	w := do(srv, "POST", "/api/galaxy-topics", `{"casts":[{"text":"new season drops","author_id":"1","post_id":"0x1","engagement":4}]}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		TopicMap []struct {
			Topic string `json:"topic"`
		} `json:"topic_map"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.TopicMap, 1)
	assert.Equal(t, "gaming", body.TopicMap[0].Topic)
}

func TestGatewayErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		retryAfter bool
	}{
		{"permanent", errors.New("bad request"), http.StatusBadGateway, false},
		{"retryable", &llm.GatewayError{Op: "complete", Retryable: true, Err: errors.New("429")}, http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := llmtest.New().Fail(reply.SchemaIntent, tt.err)
			srv, _ := newTestServer(gw, "")

			w := do(srv, "POST", "/generate-reply", `{"cast":{"text":"any zk courses?"}}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After") != "")
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", pipeline.Validationf("bad"), http.StatusBadRequest},
		{"empty input", pipeline.EmptyInput("cast"), http.StatusUnprocessableEntity},
		{"stage timeout", fmt.Errorf("draft_reply: %w", &pipeline.StageTimeoutError{Stage: "draft_reply", Timeout: time.Second, Err: context.DeadlineExceeded}), http.StatusServiceUnavailable},
		{"schema", llm.SchemaViolation(llm.RoleReasoning, "confidence 2"), http.StatusBadGateway},
		{"retryable gateway", &llm.GatewayError{Op: "embed", Retryable: true, Err: errors.New("503")}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newTestServer(gmGateway(), "secret")
	body := `{"cast":{"text":"gm"}}`

	assert.Equal(t, http.StatusUnauthorized, do(srv, "POST", "/generate-reply", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(srv, "POST", "/api/generate-reply", body, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, do(srv, "POST", "/generate-reply", body, "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, do(srv, "GET", "/health", "").Code, "health stays open")
}

func TestGetRun(t *testing.T) {
	srv, tr := newTestServer(llmtest.New(), "")
	id := tr.Start("test")
	tr.Complete(context.Background(), id)

	w := do(srv, "GET", "/api/v1/runs/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var run tracker.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	assert.Equal(t, id, run.ID)
	assert.Equal(t, tracker.StatusCompleted, run.Status)

	assert.Equal(t, http.StatusNotFound, do(srv, "GET", "/api/v1/runs/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(srv, "GET", "/api/v1/runs/not-a-uuid", "").Code)
}

func TestGetRun_FallsBackToHistory(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")
	old := tracker.Run{ID: uuid.New(), Workflow: "galaxy_trending", Status: tracker.StatusFailed}
	srv.SetHistory(&fakeHistory{runs: map[uuid.UUID]tracker.Run{old.ID: old}})

	w := do(srv, "GET", "/api/v1/runs/"+old.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	var run tracker.Run
	require.NoError(t, json.NewDecoder(w.Body).Decode(&run))
	assert.Equal(t, "galaxy_trending", run.Workflow)

	assert.Equal(t, http.StatusNotFound, do(srv, "GET", "/api/v1/runs/"+uuid.NewString(), "").Code)

	srv.SetHistory(&fakeHistory{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusInternalServerError, do(srv, "GET", "/api/v1/runs/"+uuid.NewString(), "").Code)
}

func TestListRuns(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")
	trending := tracker.Run{ID: uuid.New(), Workflow: "galaxy_trending", Status: tracker.StatusCompleted}
	replyRun := tracker.Run{ID: uuid.New(), Workflow: "reply_generation", Status: tracker.StatusFailed}
	h := &fakeHistory{runs: map[uuid.UUID]tracker.Run{trending.ID: trending, replyRun.ID: replyRun}}
	srv.SetHistory(h)

	w := do(srv, "GET", "/api/v1/runs?workflow=galaxy_trending&limit=10", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Runs  []store.RunSummary `json:"runs"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Runs, 1)
	assert.Equal(t, trending.ID, body.Runs[0].ID)
	assert.Equal(t, "galaxy_trending", h.listWorkflow)
	assert.Equal(t, 10, h.listLimit)

	do(srv, "GET", "/api/v1/runs", "")
	assert.Equal(t, defaultRunLimit, h.listLimit)

	assert.Equal(t, http.StatusBadRequest, do(srv, "GET", "/api/v1/runs?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(srv, "GET", "/api/v1/runs?limit=abc", "").Code)

	srv.SetHistory(&fakeHistory{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusInternalServerError, do(srv, "GET", "/api/v1/runs", "").Code)
}

func TestListRuns_NoHistory(t *testing.T) {
	srv, _ := newTestServer(llmtest.New(), "")

	assert.Equal(t, http.StatusNotImplemented, do(srv, "GET", "/api/v1/runs", "").Code)
}

func TestRunRoutesRequireToken(t *testing.T) {
	srv, tr := newTestServer(llmtest.New(), "secret")
	id := tr.Start("test")
	tr.Fail(context.Background(), id, errors.New("discover_content: upstream 500"))
	path := "/api/v1/runs/" + id.String()

	assert.Equal(t, http.StatusUnauthorized, do(srv, "GET", path, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(srv, "GET", "/api/v1/runs", "").Code)
	assert.Equal(t, http.StatusOK, do(srv, "GET", path, "", "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, do(srv, "GET", "/api/v1/galaxy/status", "").Code, "status stays open")
}
