package dumps

import (
	"context"

	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
)

// DefaultListLimit is used by ListRecent when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Repository port for persisting and querying dump analyses.
// Save is an upsert: exactly one record per id, latest write wins.
// Get returns (nil, nil) when the id is unknown.
type Repository interface {
	Save(ctx context.Context, id RecordID, payload Payload, result ai.NormalizedResult) (*AnalysisRecord, error)
	Get(ctx context.Context, id RecordID) (*AnalysisRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*AnalysisRecord, error)
}
