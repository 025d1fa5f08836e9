package aicore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/st22-gateway/internal/config"
	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/prompt"
)

type fakeGateway struct {
	mu             sync.Mutex
	tokenCalls     int32
	inferenceCalls int32
	order          []string

	tokenStatus     int
	inferenceStatus int
	inferenceBody   string
	lastRequest     map[string]any
	lastHeaders     http.Header
}

func (g *fakeGateway) start(t *testing.T) (tokenURL, inferenceURL string) {
	t.Helper()
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.tokenCalls, 1)
		g.mu.Lock()
		g.order = append(g.order, "token")
		g.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if g.tokenStatus != 0 {
			w.WriteHeader(g.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokens.Close)

	inference := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&g.inferenceCalls, 1)
		b, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.order = append(g.order, "inference")
		g.lastHeaders = r.Header.Clone()
		g.lastRequest = map[string]any{}
		_ = json.Unmarshal(b, &g.lastRequest)
		g.mu.Unlock()

		status := g.inferenceStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(g.inferenceBody))
	}))
	t.Cleanup(inference.Close)

	return tokens.URL, inference.URL
}

func newTestConfig(tokenURL, inferenceURL string) *config.LLMConfig {
	return &config.LLMConfig{
		Provider:         config.ProviderAICore,
		MaxTokens:        800,
		Temperature:      0,
		TokenTimeout:     time.Second,
		InferenceTimeout: 2 * time.Second,
		AICore: config.AICoreConfig{
			TokenURL:      tokenURL,
			ClientID:      "client",
			ClientSecret:  "secret",
			InferenceURL:  inferenceURL,
			ModelName:     "gpt-4o",
			ResourceGroup: "default",
		},
	}
}

func TestAnalyzeOneExchangeThenOneInference(t *testing.T) {
	g := &fakeGateway{inferenceBody: `{"id":"cmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"` +
		"```json\\n{\\\"priority\\\":\\\"High\\\"}\\n```" + `"}}]}`}
	tokenURL, inferenceURL := g.start(t)
	c := NewClient(newTestConfig(tokenURL, inferenceURL), zap.NewNop())

	for i := 1; i <= 2; i++ {
		res, err := c.Analyze(context.Background(), "analyze this dump")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"priority": "High"}, res.Structured)
		assert.EqualValues(t, i, atomic.LoadInt32(&g.tokenCalls))
		assert.EqualValues(t, i, atomic.LoadInt32(&g.inferenceCalls))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, []string{"token", "inference", "token", "inference"}, g.order)
}

func TestAnalyzeRequestShape(t *testing.T) {
	g := &fakeGateway{inferenceBody: `{"choices":[{"message":{"content":"plain words"}}]}`}
	tokenURL, inferenceURL := g.start(t)
	c := NewClient(newTestConfig(tokenURL, inferenceURL), zap.NewNop())

	res, err := c.Analyze(context.Background(), "analyze this dump")
	require.NoError(t, err)
	assert.Equal(t, "plain words", res.Text)
	assert.Nil(t, res.Structured)
	assert.JSONEq(t, g.inferenceBody, string(res.Raw))

	g.mu.Lock()
	defer g.mu.Unlock()

	assert.Equal(t, "Bearer tok-123", g.lastHeaders.Get("Authorization"))
	assert.Equal(t, "default", g.lastHeaders.Get("AI-Resource-Group"))
	assert.Equal(t, "application/json", g.lastHeaders.Get("Content-Type"))

	assert.Equal(t, "gpt-4o", g.lastRequest["model"])
	assert.EqualValues(t, 800, g.lastRequest["max_tokens"])
	assert.Contains(t, g.lastRequest, "temperature")
	assert.EqualValues(t, 0, g.lastRequest["temperature"])

	msgs, ok := g.lastRequest["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]any{"role": "system", "content": prompt.SystemInstruction}, msgs[0])
	assert.Equal(t, map[string]any{"role": "user", "content": "analyze this dump"}, msgs[1])
}

func TestAnalyzeMissingChoicesDegradesToEmptyText(t *testing.T) {
	for _, body := range []string{`{"choices":[]}`, `{"object":"chat.completion"}`, `{"choices":"weird"}`} {
		g := &fakeGateway{inferenceBody: body}
		tokenURL, inferenceURL := g.start(t)
		c := NewClient(newTestConfig(tokenURL, inferenceURL), zap.NewNop())

		res, err := c.Analyze(context.Background(), "analyze this dump")
		require.NoError(t, err, body)
		assert.Equal(t, "", res.Text)
		assert.Nil(t, res.Structured)
	}
}

func TestAnalyzeIgnoresUnexpectedFieldTypes(t *testing.T) {
	bodies := []string{
		`{"created":"2025-01-01T00:00:00Z","choices":[{"message":{"content":"{\"priority\":\"High\"}"}}]}`,
		`{"id":42,"usage":"n/a","choices":[{"index":"0","finish_reason":7,"message":{"role":1,"content":"{\"priority\":\"High\"}"}}]}`,
		`{"choices":[{"content_filter_results":[],"message":{"content":"{\"priority\":\"High\"}"}}],"prompt_filter_results":{"a":1}}`,
	}
	for _, body := range bodies {
		g := &fakeGateway{inferenceBody: body}
		tokenURL, inferenceURL := g.start(t)
		c := NewClient(newTestConfig(tokenURL, inferenceURL), zap.NewNop())

		res, err := c.Analyze(context.Background(), "analyze this dump")
		require.NoError(t, err, body)
		assert.Equal(t, `{"priority":"High"}`, res.Text, body)
		assert.Equal(t, map[string]any{"priority": "High"}, res.Structured, body)
	}
}

func TestFirstChoiceContent(t *testing.T) {
	assert.Equal(t, "hi", firstChoiceContent(json.RawMessage(`{"choices":[{"message":{"content":"hi"}}]}`)))
	assert.Equal(t, "", firstChoiceContent(json.RawMessage(`{"choices":[{"message":{"content":null}}]}`)))
	assert.Equal(t, "", firstChoiceContent(json.RawMessage(`{"choices":[{"message":{}}]}`)))
	assert.Equal(t, `[{"type":"text"}]`, firstChoiceContent(json.RawMessage(`{"choices":[{"message":{"content":[{"type":"text"}]}}]}`)))
}

func TestAnalyzeMissingConfigFailsBeforeNetwork(t *testing.T) {
	g := &fakeGateway{}
	tokenURL, _ := g.start(t)
	cfg := newTestConfig(tokenURL, "")

	_, err := NewClient(cfg, zap.NewNop()).Analyze(context.Background(), "analyze this dump")
	assert.ErrorIs(t, err, ai.ErrConfiguration)
	assert.Contains(t, err.Error(), "AI_CORE_INFERENCE_URL")
	assert.Zero(t, atomic.LoadInt32(&g.tokenCalls))
}

func TestAnalyzeAuthenticationFailure(t *testing.T) {
	g := &fakeGateway{tokenStatus: http.StatusUnauthorized}
	tokenURL, inferenceURL := g.start(t)

	_, err := NewClient(newTestConfig(tokenURL, inferenceURL), zap.NewNop()).Analyze(context.Background(), "analyze this dump")
	assert.ErrorIs(t, err, ai.ErrAuthentication)
	assert.False(t, errors.Is(err, ai.ErrProvider))
	assert.Zero(t, atomic.LoadInt32(&g.inferenceCalls))
}

func TestAnalyzeInferenceFailures(t *testing.T) {
	g := &fakeGateway{inferenceStatus: http.StatusBadGateway, inferenceBody: "upstream down"}
	tokenURL, inferenceURL := g.start(t)
	_, err := NewClient(newTestConfig(tokenURL, inferenceURL), zap.NewNop()).Analyze(context.Background(), "analyze this dump")
	assert.ErrorIs(t, err, ai.ErrProvider)
	assert.Contains(t, err.Error(), "upstream down")

	g = &fakeGateway{inferenceStatus: http.StatusTooManyRequests, inferenceBody: `{}`}
	tokenURL, inferenceURL = g.start(t)
	_, err = NewClient(newTestConfig(tokenURL, inferenceURL), zap.NewNop()).Analyze(context.Background(), "analyze this dump")
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
}

type staticTokens struct{ err error }

func (s staticTokens) AccessToken(context.Context) (string, error) { return "static", s.err }

func TestAnalyzeInferenceTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	cfg := newTestConfig("http://unused", slow.URL)
	cfg.InferenceTimeout = 20 * time.Millisecond
	_, err := NewClientWithTokens(cfg, staticTokens{}, zap.NewNop()).Analyze(context.Background(), "analyze this dump")
	assert.ErrorIs(t, err, ai.ErrProvider)
}
