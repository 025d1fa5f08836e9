// Package aicore calls a managed inference gateway (SAP AI Core generative AI
// hub) that speaks the OpenAI chat-completions format behind OAuth
// client-credentials.
//
// Each Analyze performs one token exchange followed by one inference call,
// unless token reuse is enabled in the configuration.
package aicore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/bryanwahyu/st22-gateway/internal/config"
	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/normalize"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/prompt"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/token"
)

// TokenSource hands out bearer tokens for the inference call.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Client struct {
	cfg    *config.LLMConfig
	tokens TokenSource
	http   *http.Client
	log    *zap.Logger
}

// NewClient wires the token exchange (cfg.TokenTimeout) and the inference
// call (cfg.InferenceTimeout) with separate HTTP clients.
func NewClient(cfg *config.LLMConfig, log *zap.Logger) *Client {
	tokens := token.New(token.Options{
		TokenURL:     cfg.AICore.TokenURL,
		ClientID:     cfg.AICore.ClientID,
		ClientSecret: cfg.AICore.ClientSecret,
		Timeout:      cfg.TokenTimeout,
		Reuse:        cfg.ReuseToken,
	})
	return NewClientWithTokens(cfg, tokens, log)
}

func NewClientWithTokens(cfg *config.LLMConfig, tokens TokenSource, log *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		http:   &http.Client{Timeout: cfg.InferenceTimeout},
		log:    log.Named("aicore"),
	}
}

// chatRequest keeps max_tokens and temperature even when zero; go-openai's
// request type omits them. Only its message types are reused.
type chatRequest struct {
	Model       string                         `json:"model,omitempty"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	MaxTokens   int                            `json:"max_tokens"`
	Temperature float64                        `json:"temperature"`
}

func (c *Client) Analyze(ctx context.Context, userPrompt string) (*ai.NormalizedResult, error) {
	if missing := c.cfg.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: SAP AI Core configuration missing: %s", ai.ErrConfiguration, strings.Join(missing, ", "))
	}
	if strings.TrimSpace(userPrompt) == "" {
		return nil, ai.ErrEmptyPrompt
	}

	bearer, err := c.tokens.AccessToken(ctx)
	if err != nil {
		c.log.Error("failed to fetch SAP AI Core token", zap.Error(err))
		return nil, err
	}

	raw, err := c.complete(ctx, bearer, userPrompt)
	if err != nil {
		c.log.Error("SAP AI Core inference failed", zap.Error(err))
		return nil, err
	}

	text := firstChoiceContent(raw)
	return &ai.NormalizedResult{
		Text:       text,
		Structured: normalize.ParseJSON(text),
		Raw:        raw,
	}, nil
}

func (c *Client) complete(ctx context.Context, bearer, userPrompt string) (json.RawMessage, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.AICore.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SystemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling request: %w", ai.ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AICore.InferenceURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ai.ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("AI-Resource-Group", c.cfg.AICore.ResourceGroup)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http POST inference: %w", ai.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ai.ErrProvider, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %w: inference returned HTTP 429", ai.ErrProvider, ai.ErrQuotaExceeded)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: inference returned HTTP %d: %s", ai.ErrProvider, resp.StatusCode, snippet(body))
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ai.ErrProvider, err)
	}
	return compact.Bytes(), nil
}

// chatResponse holds the one path read from the completion; other fields
// of the gateway response are ignored whatever their type.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// firstChoiceContent returns choices[0].message.content, or "" when the
// payload does not have that shape. Non-string content is kept as JSON text.
func firstChoiceContent(raw json.RawMessage) string {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Choices) == 0 {
		return ""
	}
	content := resp.Choices[0].Message.Content
	if len(content) == 0 || string(content) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(content, &text); err != nil {
		return string(content)
	}
	return text
}

func snippet(b []byte) string {
	const max = 300
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
