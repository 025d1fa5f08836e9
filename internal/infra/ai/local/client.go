// Package local talks to a self-hosted inference endpoint (ollama, vllm or
// any wrapper) that takes {"prompt": "..."} and needs no authentication.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bryanwahyu/st22-gateway/internal/config"
	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/normalize"
)

// textFields are tried in order; the first non-empty string wins.
var textFields = []string{"result", "text", "output"}

type Client struct {
	cfg  *config.LLMConfig
	http *http.Client
	log  *zap.Logger
}

// NewClient builds a client whose requests time out after cfg.InferenceTimeout.
func NewClient(cfg *config.LLMConfig, log *zap.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.InferenceTimeout},
		log:  log.Named("local"),
	}
}

type request struct {
	Prompt string `json:"prompt"`
}

func (c *Client) Analyze(ctx context.Context, prompt string) (*ai.NormalizedResult, error) {
	if c.cfg.Local.URL == "" {
		return nil, fmt.Errorf("%w: LOCAL_LLM_URL not set", ai.ErrConfiguration)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ai.ErrEmptyPrompt
	}

	raw, err := c.post(ctx, prompt)
	if err != nil {
		c.log.Error("local llm call failed", zap.String("url", c.cfg.Local.URL), zap.Error(err))
		return nil, err
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		c.log.Error("local llm returned non-object body", zap.Error(err))
		return nil, fmt.Errorf("%w: decoding response: %w", ai.ErrProvider, err)
	}

	text := extractText(body, raw)
	return &ai.NormalizedResult{
		Text:       text,
		Structured: normalize.ParseJSON(text),
		Raw:        raw,
	}, nil
}

func (c *Client) post(ctx context.Context, prompt string) (json.RawMessage, error) {
	payload, err := json.Marshal(request{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling request: %w", ai.ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Local.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ai.ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http POST local llm: %w", ai.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ai.ErrProvider, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %w: local llm returned HTTP 429", ai.ErrProvider, ai.ErrQuotaExceeded)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: local llm returned HTTP %d: %s", ai.ErrProvider, resp.StatusCode, snippet(body))
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ai.ErrProvider, err)
	}
	return compact.Bytes(), nil
}

// extractText picks the answer text out of an arbitrary response object.
// A populated non-string field is rendered as JSON. When no known field is
// populated the whole body becomes the text.
func extractText(body map[string]any, raw json.RawMessage) string {
	for _, field := range textFields {
		v := body[field]
		if !populated(v) {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return string(raw)
}

// populated reports whether v carries a value: not null, "", 0, false, [] or {}.
func populated(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func snippet(b []byte) string {
	const max = 300
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
