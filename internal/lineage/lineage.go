// Package lineage records version edges between polyps in the shared
// database: molt edges link a superseded polyp to its successor, derivation
// edges link a polyp to the polyp it was derived from. Edges are append-only.
package lineage

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region edge

// Edge types.
const (
	// EdgeMolted links a Molted polyp to the version that superseded it.
	EdgeMolted = "molted_to"
	// EdgeDerivedFrom links a polyp to the polyp its content was derived from.
	EdgeDerivedFrom = "derived_from"
)

// maxChainHops bounds lineage walks so a corrupted edge set cannot loop.
const maxChainHops = 64

// Edge is one directed link between two polyp versions.
type Edge struct {
	SourceID  uuid.UUID `json:"source_id"`
	TargetID  uuid.UUID `json:"target_id"`
	EdgeType  string    `json:"edge_type"`
	CreatedAt time.Time `json:"created_at"`
}

// #endregion edge

// #region store

// Store reads and writes lineage edges over the shared *sql.DB.
// The lineage_edges table is created by the polyp store's migration.
type Store struct {
	db *sql.DB
}

// NewStore returns a lineage store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion store

// #region link

// Link records a directed edge. Re-linking the same pair with the same type
// is a no-op, so molt retries stay idempotent.
func (s *Store) Link(ctx context.Context, source, target uuid.UUID, edgeType string) error {
	if source == target {
		return fmt.Errorf("%w: lineage edge cannot be self-referential", polyp.ErrValidation)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO lineage_edges (source_id, target_id, edge_type, created_at)
		 VALUES (?, ?, ?, ?)`,
		source.String(), target.String(), edgeType, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("link lineage edge: %w", err)
	}
	return nil
}

// #endregion link

// #region successor

// Successor returns the molt successor of id, or false when id is live.
func (s *Store) Successor(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT target_id FROM lineage_edges WHERE source_id = ? AND edge_type = ?`,
		id.String(), EdgeMolted).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup successor: %w", err)
	}
	successor, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parse successor id %q: %w", raw, err)
	}
	return successor, true, nil
}

// Predecessor returns the molt predecessor of id, or false when id is the
// first version of its chain.
func (s *Store) Predecessor(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id FROM lineage_edges WHERE target_id = ? AND edge_type = ?`,
		id.String(), EdgeMolted).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup predecessor: %w", err)
	}
	predecessor, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parse predecessor id %q: %w", raw, err)
	}
	return predecessor, true, nil
}

// #endregion successor

// #region chain

// Chain returns the full molt chain containing id, oldest version first.
// It walks molt edges backwards to the chain's root, then forwards to the
// live head. Walks are hop-bounded; a chain that exceeds the bound errors.
func (s *Store) Chain(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	root := id
	visited := map[uuid.UUID]bool{id: true}
	for hops := 0; ; hops++ {
		if hops >= maxChainHops {
			return nil, fmt.Errorf("lineage chain for %s exceeds %d hops", id, maxChainHops)
		}
		prev, ok, err := s.Predecessor(ctx, root)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if visited[prev] {
			return nil, fmt.Errorf("lineage cycle at %s", prev)
		}
		visited[prev] = true
		root = prev
	}

	chain := []uuid.UUID{root}
	seen := map[uuid.UUID]bool{root: true}
	cur := root
	for hops := 0; ; hops++ {
		if hops >= maxChainHops {
			return nil, fmt.Errorf("lineage chain for %s exceeds %d hops", id, maxChainHops)
		}
		next, ok, err := s.Successor(ctx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return chain, nil
		}
		if seen[next] {
			return nil, fmt.Errorf("lineage cycle at %s", next)
		}
		seen[next] = true
		chain = append(chain, next)
		cur = next
	}
}

// #endregion chain

// #region derived

// DerivedFrom returns the polyps id declares as derivation sources.
func (s *Store) DerivedFrom(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id FROM lineage_edges WHERE source_id = ? AND edge_type = ? ORDER BY id ASC`,
		id.String(), EdgeDerivedFrom)
	if err != nil {
		return nil, fmt.Errorf("list derivation edges: %w", err)
	}
	defer rows.Close()

	var sources []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan derivation edge: %w", err)
		}
		src, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse derivation id %q: %w", raw, err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// #endregion derived
