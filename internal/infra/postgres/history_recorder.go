package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"live-session-service/internal/domain"
)

// HistoryRecorder writes a row per finished session.
type HistoryRecorder struct {
	pool *pgxpool.Pool
}

func NewHistoryRecorder(pool *pgxpool.Pool) *HistoryRecorder {
	return &HistoryRecorder{pool: pool}
}

func (r *HistoryRecorder) RecordSession(ctx context.Context, summary domain.SessionSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal session summary: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO session_history (code, presentation_id, started_at, ended_at, summary)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 ON CONFLICT (code, ended_at) DO UPDATE SET summary = EXCLUDED.summary`,
		summary.Code, summary.PresentationID, summary.CreatedAt, summary.EndedAt, string(data))
	if err != nil {
		return fmt.Errorf("record session %s: %w", summary.Code, err)
	}
	return nil
}
