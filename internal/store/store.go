// Package store provides durable, versioned Polyp storage in SQLite.
// Writes to a single polyp are serialized with optimistic concurrency: a
// transition only applies when the caller's expected state still matches.
package store

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/reefipedia/reef/internal/audit"
	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS polyps (
	id              TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	successor_id    TEXT,
	content         TEXT NOT NULL,
	content_type    TEXT NOT NULL,
	language        TEXT,
	space_key       TEXT NOT NULL,
	model_json      TEXT NOT NULL,
	vector          BLOB NOT NULL,
	quantization    TEXT NOT NULL,
	normalization   TEXT NOT NULL,
	provenance_json TEXT NOT NULL,
	proof_json      TEXT NOT NULL,
	consensus_json  TEXT,
	hardening_json  TEXT,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_polyps_state ON polyps(state, id);
CREATE INDEX IF NOT EXISTS idx_polyps_space ON polyps(space_key, state);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	polyp_id   TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	event      TEXT NOT NULL,
	reason     TEXT,
	epoch      INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	FOREIGN KEY (polyp_id) REFERENCES polyps(id)
);

CREATE TABLE IF NOT EXISTS reputation (
	creator_did TEXT PRIMARY KEY,
	score       REAL NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reference_embeddings (
	space_key  TEXT PRIMARY KEY,
	vector     BLOB NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lineage_edges (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	edge_type  TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(source_id, target_id, edge_type)
);

CREATE INDEX IF NOT EXISTS idx_lineage_source ON lineage_edges(source_id);
CREATE INDEX IF NOT EXISTS idx_lineage_target ON lineage_edges(target_id);
`

// #endregion schema

// #region store-struct

// Store manages polyp records and their lifecycle state in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// New opens a SQLite database at path and runs migrations.
// Transactions take the write lock at BEGIN (_txlock=immediate) so concurrent
// transition attempts serialize instead of deadlocking on lock upgrade; the
// losers then observe the committed state and report polyp.ErrConflict.
func New(path string) (*Store, error) {
	dsn := path + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for sibling packages sharing the
// database (audit reads, reputation, reference embeddings).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region create

// Create validates the subject/proof pair and inserts a new Draft polyp.
// Returns polyp.ErrValidation when the vector dimensionality mismatches the
// model, or when the proof's hashes do not bind the subject's actual content.
func (s *Store) Create(ctx context.Context, sub polyp.Subject, proof polyp.Proof) (polyp.Polyp, error) {
	if err := polyp.ValidateSubject(sub, proof); err != nil {
		return polyp.Polyp{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("new id: %w", err)
	}
	now := time.Now().UTC()

	p := polyp.Polyp{
		ID:        id,
		State:     polyp.StateDraft,
		Subject:   sub,
		Proof:     proof,
		CreatedAt: now,
		UpdatedAt: now,
	}

	modelJSON, provJSON, proofJSON, err := marshalParts(&p)
	if err != nil {
		return polyp.Polyp{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO polyps (id, state, content, content_type, language, space_key,
		                     model_json, vector, quantization, normalization,
		                     provenance_json, proof_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), string(p.State),
		sub.Payload.Content, sub.Payload.ContentType, nullIfEmpty(sub.Payload.Language),
		sub.Vector.ModelID.SpaceKey(), modelJSON, encodeVector(sub.Vector.Values),
		sub.Vector.Quantization, sub.Vector.Normalization,
		provJSON, proofJSON,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("insert polyp: %w", err)
	}

	err = audit.Append(ctx, tx, audit.Entry{
		PolypID:   id.String(),
		FromState: "",
		ToState:   string(polyp.StateDraft),
		Event:     "created",
		CreatedAt: now,
	})
	if err != nil {
		return polyp.Polyp{}, err
	}

	if err := tx.Commit(); err != nil {
		return polyp.Polyp{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// #endregion create

// #region get

// Get retrieves a polyp by ID. Returns polyp.ErrNotFound for unknown IDs.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (polyp.Polyp, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM polyps WHERE id = ?`, id.String())
	p, err := scanPolyp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return polyp.Polyp{}, fmt.Errorf("%w: %s", polyp.ErrNotFound, id)
	}
	return p, err
}

// #endregion get

// #region transition

// TransitionMeta carries the metadata persisted with a state change.
type TransitionMeta struct {
	Event       string
	Reason      string
	Epoch       uint64
	Consensus   *polyp.ConsensusMetadata
	Hardening   *polyp.Lineage
	SuccessorID *uuid.UUID
}

// Transition applies expected -> next with optimistic concurrency. When the
// stored state no longer equals expected, it returns polyp.ErrConflict and
// the caller must re-read before retrying. The new state, its metadata, and
// an audit entry persist atomically, and updated_at never moves backwards.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, expected, next polyp.State, meta TransitionMeta) (polyp.Polyp, error) {
	if !expected.Valid() || !next.Valid() {
		return polyp.Polyp{}, fmt.Errorf("%w: unknown state %q -> %q", polyp.ErrValidation, expected, next)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectColumns+` FROM polyps WHERE id = ?`, id.String())
	cur, err := scanPolyp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return polyp.Polyp{}, fmt.Errorf("%w: %s", polyp.ErrNotFound, id)
	}
	if err != nil {
		return polyp.Polyp{}, err
	}
	if cur.State != expected {
		return polyp.Polyp{}, fmt.Errorf("%w: expected %s, found %s", polyp.ErrConflict, expected, cur.State)
	}

	now := time.Now().UTC()
	if now.Before(cur.UpdatedAt) {
		now = cur.UpdatedAt
	}

	cur.State = next
	cur.UpdatedAt = now
	if meta.Consensus != nil {
		cur.Consensus = meta.Consensus
	}
	if meta.Hardening != nil {
		cur.Hardening = meta.Hardening
	}
	if meta.SuccessorID != nil {
		cur.SuccessorID = meta.SuccessorID
	}

	consensusJSON, err := marshalOptional(cur.Consensus)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("marshal consensus: %w", err)
	}
	hardeningJSON, err := marshalOptional(cur.Hardening)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("marshal hardening: %w", err)
	}
	var successorPtr any
	if cur.SuccessorID != nil {
		successorPtr = cur.SuccessorID.String()
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE polyps
		 SET state = ?, successor_id = ?, consensus_json = ?, hardening_json = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		string(next), successorPtr, consensusJSON, hardeningJSON,
		now.Format(time.RFC3339Nano), id.String(), string(expected),
	)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("update polyp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return polyp.Polyp{}, fmt.Errorf("%w: state changed under us", polyp.ErrConflict)
	}

	err = audit.Append(ctx, tx, audit.Entry{
		PolypID:   id.String(),
		FromState: string(expected),
		ToState:   string(next),
		Event:     meta.Event,
		Reason:    meta.Reason,
		Epoch:     meta.Epoch,
		CreatedAt: now,
	})
	if err != nil {
		return polyp.Polyp{}, err
	}

	if err := tx.Commit(); err != nil {
		return polyp.Polyp{}, fmt.Errorf("commit: %w", err)
	}
	return cur, nil
}

// #endregion transition

// #region list-by-state

// ListByState returns up to limit polyps in the given state with ID greater
// than afterID, ordered by ID ascending. Paging by ID keeps sweeps
// restartable and finite; pass the last ID seen to continue.
func (s *Store) ListByState(ctx context.Context, state polyp.State, afterID string, limit int) ([]polyp.Polyp, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM polyps WHERE state = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		string(state), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by state: %w", err)
	}
	defer rows.Close()
	return scanPolyps(rows)
}

// CountByState returns the number of polyps per lifecycle state.
func (s *Store) CountByState(ctx context.Context) (map[polyp.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM polyps GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[polyp.State]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[polyp.State(state)] = n
	}
	return counts, rows.Err()
}

// #endregion list-by-state

// #region searchable-vectors

// VectorRow is one searchable polyp's geometry, used to rebuild the vector
// index from the store. The index is a derived, rebuildable projection: the
// store remains the source of truth for content and state.
type VectorRow struct {
	ID     uuid.UUID
	Model  polyp.ModelID
	Values []float32
}

// SearchableVectors returns the vectors of all Approved and Hardened polyps.
func (s *Store) SearchableVectors(ctx context.Context) ([]VectorRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_json, vector FROM polyps WHERE state IN (?, ?) ORDER BY id ASC`,
		string(polyp.StateApproved), string(polyp.StateHardened))
	if err != nil {
		return nil, fmt.Errorf("searchable vectors: %w", err)
	}
	defer rows.Close()

	var out []VectorRow
	for rows.Next() {
		var idStr, modelJSON string
		var blob []byte
		if err := rows.Scan(&idStr, &modelJSON, &blob); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse id %s: %w", idStr, err)
		}
		var model polyp.ModelID
		if err := json.Unmarshal([]byte(modelJSON), &model); err != nil {
			return nil, fmt.Errorf("unmarshal model id: %w", err)
		}
		out = append(out, VectorRow{ID: id, Model: model, Values: decodeVector(blob)})
	}
	return out, rows.Err()
}

// #endregion searchable-vectors

// #region helpers

func marshalParts(p *polyp.Polyp) (modelJSON, provJSON, proofJSON string, err error) {
	m, err := json.Marshal(p.Subject.Vector.ModelID)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal model id: %w", err)
	}
	pr, err := json.Marshal(p.Subject.Provenance)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal provenance: %w", err)
	}
	pf, err := json.Marshal(p.Proof)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal proof: %w", err)
	}
	return string(m), string(pr), string(pf), nil
}

func marshalOptional(v any) (any, error) {
	switch t := v.(type) {
	case *polyp.ConsensusMetadata:
		if t == nil {
			return nil, nil
		}
	case *polyp.Lineage:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
