// Package provider selects the LLM backend once at startup.
package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/st22-gateway/internal/config"
	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/aicore"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/local"
)

// New returns the provider for cfg.Provider. It never fails: an unknown kind
// yields a provider whose calls fail with ai.ErrConfiguration, and missing
// connection settings are reported by the provider on each call.
func New(cfg *config.LLMConfig, log *zap.Logger) ai.Provider {
	switch cfg.ProviderKind() {
	case config.ProviderAICore:
		return aicore.NewClient(cfg, log)
	case config.ProviderLocal:
		return local.NewClient(cfg, log)
	default:
		log.Warn("unknown LLM provider, analysis calls will fail", zap.String("provider", cfg.Provider))
		return unsupported{kind: cfg.Provider}
	}
}

type unsupported struct {
	kind string
}

func (u unsupported) Analyze(context.Context, string) (*ai.NormalizedResult, error) {
	return nil, fmt.Errorf("%w: unknown LLM_PROVIDER %q (want %s, %s, ollama or vllm)",
		ai.ErrConfiguration, u.kind, config.ProviderAICore, config.ProviderLocal)
}
