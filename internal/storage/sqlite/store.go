// Package sqlite implements storage.EngagementStore over an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/confidant/internal/storage"
	"github.com/scrypster/confidant/pkg/types"
)

// schema is the engagement record table. The media dedup set is stored as
// a JSON document: it is only ever read and written whole, per user.
const schema = `
CREATE TABLE IF NOT EXISTS engagement_records (
	user_id              TEXT PRIMARY KEY,
	stage                TEXT NOT NULL DEFAULT 'casual',
	interaction_count    INTEGER NOT NULL DEFAULT 0,
	cumulative_sentiment INTEGER NOT NULL DEFAULT 0,
	last_interaction_at  TIMESTAMP,
	visit_days           INTEGER NOT NULL DEFAULT 0,
	last_visit_date      TEXT NOT NULL DEFAULT '',
	daily_used           INTEGER NOT NULL DEFAULT 0,
	reset_date           TEXT NOT NULL DEFAULT '',
	media_ledger         TEXT NOT NULL DEFAULT '{}',
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);
`

// Store implements storage.EngagementStore using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dsn and ensures the schema.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite supports one concurrent writer; a single connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Load retrieves the record for userID.
func (s *Store) Load(ctx context.Context, userID string) (*types.EngagementRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, stage, interaction_count, cumulative_sentiment,
		       last_interaction_at, visit_days, last_visit_date,
		       daily_used, reset_date, media_ledger, created_at, updated_at
		FROM engagement_records WHERE user_id = ?`, userID)

	var rec types.EngagementRecord
	var lastInteraction sql.NullTime
	var mediaJSON string
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
		return nil, fmt.Errorf("sqlite: failed to load record: %w", err)
	}

	if lastInteraction.Valid {
		rec.LastInteractionAt = lastInteraction.Time
	}
	if err := json.Unmarshal([]byte(mediaJSON), &rec.Media); err != nil {
		// A corrupt ledger degrades to an empty one rather than failing
		// the load; the worst case is a repeated asset.
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
		return fmt.Errorf("sqlite: failed to encode media ledger: %w", err)
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			stage                = excluded.stage,
			interaction_count    = excluded.interaction_count,
			cumulative_sentiment = excluded.cumulative_sentiment,
			last_interaction_at  = excluded.last_interaction_at,
			visit_days           = excluded.visit_days,
			last_visit_date      = excluded.last_visit_date,
			daily_used           = excluded.daily_used,
			reset_date           = excluded.reset_date,
			media_ledger         = excluded.media_ledger,
			updated_at           = excluded.updated_at`,
		rec.UserID, rec.EffectiveStage(), rec.InteractionCount, rec.CumulativeSentiment,
		lastInteraction, rec.VisitDays, rec.LastVisitDate,
		rec.Budget.DailyUsed, rec.Budget.ResetDate, string(mediaJSON),
		createdAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save record: %w", err)
	}
	return nil
}

// Delete removes the record for userID.
func (s *Store) Delete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM engagement_records WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
