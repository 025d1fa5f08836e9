// Package db holds the row encoding shared by the SQL repositories.
package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	"github.com/bryanwahyu/st22-gateway/internal/domain/dumps"
)

// Row is the persisted form of an AnalysisRecord: both maps as JSON text.
type Row struct {
	RecordID       string
	InputPayload   string
	AnalysisResult string
	CreatedAt      time.Time
}

// EncodeRow serializes payload and result for storage.
func EncodeRow(id dumps.RecordID, payload dumps.Payload, result ai.NormalizedResult, createdAt time.Time) (Row, error) {
	if payload == nil {
		payload = dumps.Payload{}
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return Row{}, fmt.Errorf("encode input payload: %w", err)
	}
	r, err := json.Marshal(result)
	if err != nil {
		return Row{}, fmt.Errorf("encode analysis result: %w", err)
	}
	return Row{
		RecordID:       string(id),
		InputPayload:   string(p),
		AnalysisResult: string(r),
		CreatedAt:      createdAt,
	}, nil
}

// Decode rebuilds the domain record.
func (row Row) Decode() (*dumps.AnalysisRecord, error) {
	rec := &dumps.AnalysisRecord{
		RecordID:  dumps.RecordID(row.RecordID),
		CreatedAt: row.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.InputPayload), &rec.InputPayload); err != nil {
		return nil, fmt.Errorf("decode input payload of %s: %w", row.RecordID, err)
	}
	if err := json.Unmarshal([]byte(row.AnalysisResult), &rec.AnalysisResult); err != nil {
		return nil, fmt.Errorf("decode analysis result of %s: %w", row.RecordID, err)
	}
	return rec, nil
}
