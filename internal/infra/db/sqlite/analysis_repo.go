package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bryanwahyu/st22-gateway/internal/application"
	"github.com/bryanwahyu/st22-gateway/internal/domain/ai"
	domain "github.com/bryanwahyu/st22-gateway/internal/domain/dumps"
	"github.com/bryanwahyu/st22-gateway/internal/infra/db"
)

type AnalysisRepository struct {
	db    *sql.DB
	clock application.Clock
}

func NewAnalysisRepository(conn *sql.DB, clock application.Clock) *AnalysisRepository {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &AnalysisRepository{db: conn, clock: clock}
}

// Save inserts or replaces the analysis of id; created_at is the write time.
func (r *AnalysisRepository) Save(ctx context.Context, id domain.RecordID, payload domain.Payload, result ai.NormalizedResult) (*domain.AnalysisRecord, error) {
	const q = `
INSERT INTO dump_analyses (dump_id, input_payload, analysis_result, created_at)
VALUES (?,?,?,?)
ON CONFLICT(dump_id) DO UPDATE SET
  input_payload=excluded.input_payload,
  analysis_result=excluded.analysis_result,
  created_at=excluded.created_at;
`
	row, err := db.EncodeRow(id, payload, result, r.clock.Now().UTC())
	if err != nil {
		return nil, domain.StorageError("save "+string(id), err)
	}
	if _, err := r.db.ExecContext(ctx, q, row.RecordID, row.InputPayload, row.AnalysisResult, row.CreatedAt.UnixNano()); err != nil {
		return nil, domain.StorageError("save "+string(id), err)
	}
	rec, err := row.Decode()
	if err != nil {
		return nil, domain.StorageError("save "+string(id), err)
	}
	return rec, nil
}

// Get returns nil when id has never been analyzed
func (r *AnalysisRepository) Get(ctx context.Context, id domain.RecordID) (*domain.AnalysisRecord, error) {
	const q = `
SELECT dump_id, input_payload, analysis_result, created_at
FROM dump_analyses
WHERE dump_id=? LIMIT 1;
`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StorageError("get "+string(id), err)
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first
func (r *AnalysisRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = domain.DefaultListLimit
	}
	const q = `
SELECT dump_id, input_payload, analysis_result, created_at
FROM dump_analyses
ORDER BY created_at DESC, dump_id DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, domain.StorageError("list recent", err)
	}
	defer rows.Close()

	out := []*domain.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, domain.StorageError("list recent", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("list recent", err)
	}
	return out, nil
}

// Ping is used by the health endpoint
func (r *AnalysisRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.AnalysisRecord, error) {
	var row db.Row
	var created int64
	if err := s.Scan(&row.RecordID, &row.InputPayload, &row.AnalysisResult, &created); err != nil {
		return nil, err
	}
	row.CreatedAt = time.Unix(0, created).UTC()
	return row.Decode()
}
