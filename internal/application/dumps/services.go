package dumps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	domain "github.com/bryanwahyu/st22-gateway/internal/domain/dumps"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/prompt"
)

// Service implements the dump analysis use-cases.
// It is safe for concurrent use; at most MaxConcurrent provider calls run at once.
type Service struct {
	provider ai.Provider
	repo     domain.Repository
	slots    *semaphore.Weighted
	log      *zap.Logger
}

func NewService(provider ai.Provider, repo domain.Repository, maxConcurrent int, log *zap.Logger) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		provider: provider,
		repo:     repo,
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		log:      log.Named("dumps"),
	}
}

// SubmitCommand carries one ST22 dump as posted by the client
type SubmitCommand struct {
	Payload domain.Payload
}

// View is the API representation of an analyzed dump
type View struct {
	DumpID    domain.RecordID     `json:"dump_id"`
	Dump      domain.Payload      `json:"dump"`
	AISummary map[string]any      `json:"ai_summary"`
	Priority  any                 `json:"priority"`
	RawLLM    ai.NormalizedResult `json:"raw_llm"`
	CreatedAt *time.Time          `json:"created_at,omitempty"`
}

// Submit analyzes a dump and stores the result under dump_header.id.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*View, error) {
	id := cmd.Payload.ID()
	if strings.TrimSpace(string(id)) == "" {
		return nil, fmt.Errorf("%w: dump_header.id is required", domain.ErrInvalidInput)
	}

	p, err := prompt.BuildDumpPrompt(cmd.Payload, cmd.Payload.Code())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	s.log.Info("calling LLM", zap.String("dump_id", string(id)))
	result, err := s.analyze(ctx, p)
	if err != nil {
		s.log.Error("LLM failed", zap.String("dump_id", string(id)), zap.Error(err))
		return nil, err
	}

	rec, err := s.repo.Save(ctx, id, cmd.Payload, *result)
	if err != nil {
		s.log.Error("saving analysis failed", zap.String("dump_id", string(id)), zap.Error(err))
		return nil, err
	}
	return NewView(rec), nil
}

// Predict runs a raw prompt through the provider without storing anything.
func (s *Service) Predict(ctx context.Context, userPrompt string) (*ai.NormalizedResult, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return nil, fmt.Errorf("%w: 'prompt' field is required", domain.ErrInvalidInput)
	}
	return s.analyze(ctx, userPrompt)
}

// Get returns the stored analysis of one dump, nil when unknown
func (s *Service) Get(ctx context.Context, id domain.RecordID) (*View, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return NewView(rec), nil
}

// ListRecent returns the latest analyses, newest first
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*View, error) {
	recs, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*View, 0, len(recs))
	for _, rec := range recs {
		out = append(out, NewView(rec))
	}
	return out, nil
}

// analyze holds a pool slot for the duration of the provider call.
func (s *Service) analyze(ctx context.Context, userPrompt string) (*ai.NormalizedResult, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for a free slot: %w", ai.ErrProvider, err)
	}
	defer s.slots.Release(1)
	return s.provider.Analyze(ctx, userPrompt)
}

// NewView shapes a stored record for the API. When the model answer had no
// JSON object, ai_summary falls back to {"raw_text": text}.
func NewView(rec *domain.AnalysisRecord) *View {
	summary := rec.AnalysisResult.Structured
	if len(summary) == 0 {
		summary = map[string]any{"raw_text": rec.AnalysisResult.Text}
	}
	v := &View{
		DumpID:    rec.RecordID,
		Dump:      rec.InputPayload,
		AISummary: summary,
		Priority:  summary["priority"],
		RawLLM:    rec.AnalysisResult,
	}
	if !rec.CreatedAt.IsZero() {
		created := rec.CreatedAt
		v.CreatedAt = &created
	}
	return v
}
