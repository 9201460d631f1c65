// Package postgres implements storage.EngagementStore over PostgreSQL
// for multi-instance deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/scrypster/confidant/internal/storage"
	"github.com/scrypster/confidant/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS engagement_records (
	user_id              TEXT PRIMARY KEY,
	stage                TEXT NOT NULL DEFAULT 'casual',
	interaction_count    INTEGER NOT NULL DEFAULT 0,
	cumulative_sentiment INTEGER NOT NULL DEFAULT 0,
	last_interaction_at  TIMESTAMPTZ,
	visit_days           INTEGER NOT NULL DEFAULT 0,
	last_visit_date      TEXT NOT NULL DEFAULT '',
	daily_used           INTEGER NOT NULL DEFAULT 0,
	reset_date           TEXT NOT NULL DEFAULT '',
	media_ledger         JSONB NOT NULL DEFAULT '{}',
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
`

// Store implements storage.EngagementStore using PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore connects to the database at dsn and ensures the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Load retrieves the record for userID.
func (s *Store) Load(ctx context.Context, userID string) (*types.EngagementRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, stage, interaction_count, cumulative_sentiment,
		       last_interaction_at, visit_days, last_visit_date,
		       daily_used, reset_date, media_ledger, created_at, updated_at
		FROM engagement_records WHERE user_id = $1`, userID)

	var rec types.EngagementRecord
	var lastInteraction sql.NullTime
	var mediaJSON []byte
	err := row.Scan(
		&rec.UserID, &rec.Stage, &rec.InteractionCount, &rec.CumulativeSentiment,
		&lastInteraction, &rec.VisitDays, &rec.LastVisitDate,
		&rec.Budget.DailyUsed, &rec.Budget.ResetDate, &mediaJSON,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load record: %w", err)
	}

	if lastInteraction.Valid {
		rec.LastInteractionAt = lastInteraction.Time
	}
	if err := json.Unmarshal(mediaJSON, &rec.Media); err != nil {
		rec.Media = types.MediaLedger{SentAssetIDs: map[string]bool{}}
	}
	if rec.Media.SentAssetIDs == nil {
		rec.Media.SentAssetIDs = map[string]bool{}
	}
	return &rec, nil
}

// Save upserts the record.
func (s *Store) Save(ctx context.Context, rec *types.EngagementRecord) error {
	mediaJSON, err := json.Marshal(rec.Media)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode media ledger: %w", err)
	}

	var lastInteraction interface{}
	if !rec.LastInteractionAt.IsZero() {
		lastInteraction = rec.LastInteractionAt
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engagement_records (
			user_id, stage, interaction_count, cumulative_sentiment,
			last_interaction_at, visit_days, last_visit_date,
			daily_used, reset_date, media_ledger, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			stage                = EXCLUDED.stage,
			interaction_count    = EXCLUDED.interaction_count,
			cumulative_sentiment = EXCLUDED.cumulative_sentiment,
			last_interaction_at  = EXCLUDED.last_interaction_at,
			visit_days           = EXCLUDED.visit_days,
			last_visit_date      = EXCLUDED.last_visit_date,
			daily_used           = EXCLUDED.daily_used,
			reset_date           = EXCLUDED.reset_date,
			media_ledger         = EXCLUDED.media_ledger,
			updated_at           = EXCLUDED.updated_at`,
		rec.UserID, rec.EffectiveStage(), rec.InteractionCount, rec.CumulativeSentiment,
		lastInteraction, rec.VisitDays, rec.LastVisitDate,
		rec.Budget.DailyUsed, rec.Budget.ResetDate, mediaJSON,
		createdAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save record: %w", err)
	}
	return nil
}

// Delete removes the record for userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM engagement_records WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
