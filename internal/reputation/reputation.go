// Package reputation tracks per-creator reputation scores in the shared
// database. Scores feed the source_credibility dimension of trust scoring;
// unknown creators default to a neutral 0.5.
package reputation

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// #endregion

// DefaultScore is the neutral reputation for creators we know nothing about.
const DefaultScore = 0.5

// #region store

// Store reads and writes creator reputation over the shared *sql.DB.
// The reputation table is created by the polyp store's migration.
type Store struct {
	db *sql.DB
}

// NewStore returns a reputation store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion store

// #region lookup

// Lookup returns the creator's reputation in [0,1], or DefaultScore when
// the creator is unknown.
func (s *Store) Lookup(ctx context.Context, creatorDID string) (float64, error) {
	var score float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM reputation WHERE creator_did = ?`, creatorDID).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultScore, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup reputation: %w", err)
	}
	return clamp01(score), nil
}

// #endregion lookup

// #region set

// Set records the creator's reputation, clamped to [0,1].
func (s *Store) Set(ctx context.Context, creatorDID string, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reputation (creator_did, score, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(creator_did) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at`,
		creatorDID, clamp01(score), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set reputation: %w", err)
	}
	return nil
}

// #endregion set

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
