// Package reference stores one reference (centroid) embedding per model
// space. The embedding_quality heuristic compares a polyp's vector against
// its space's reference; spaces without a reference score neutrally.
package reference

// #region imports
import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region store

// Store reads and writes per-space reference embeddings over the shared DB.
// The reference_embeddings table is created by the polyp store's migration.
type Store struct {
	db *sql.DB
}

// NewStore returns a reference-embedding store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion store

// #region get

// Get returns the reference vector for the model's space, or nil when no
// reference has been set.
func (s *Store) Get(ctx context.Context, model polyp.ModelID) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM reference_embeddings WHERE space_key = ?`, model.SpaceKey()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reference embedding: %w", err)
	}
	return decodeVector(blob), nil
}

// #endregion get

// #region set

// Set stores the reference vector for the model's space.
func (s *Store) Set(ctx context.Context, model polyp.ModelID, values []float32) error {
	if len(values) != model.Dimensions {
		return fmt.Errorf("%w: reference has %d values, space %s expects %d",
			polyp.ErrValidation, len(values), model.SpaceKey(), model.Dimensions)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reference_embeddings (space_key, vector, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(space_key) DO UPDATE SET vector = excluded.vector, updated_at = excluded.updated_at`,
		model.SpaceKey(), encodeVector(values), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set reference embedding: %w", err)
	}
	return nil
}

// #endregion set

// #region codec

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// #endregion codec
