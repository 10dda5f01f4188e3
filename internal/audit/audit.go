// Package audit appends lifecycle transition records to the shared database.
// The log is append-only: rows are inserted on every successful transition and
// never updated or deleted.
package audit

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #endregion

// #region entry

// Entry is one append-only audit row for a polyp transition.
type Entry struct {
	PolypID   string    `json:"polyp_id"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Event     string    `json:"event"`
	Reason    string    `json:"reason,omitempty"`
	Epoch     uint64    `json:"epoch"`
	CreatedAt time.Time `json:"created_at"`
}

// #endregion entry

// #region execer

// Execer is the subset of *sql.DB / *sql.Tx used for appends, so callers can
// write audit rows inside the same transaction as the state change.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// #endregion execer

// #region append

// Append writes one audit entry.
func Append(ctx context.Context, db Execer, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (polyp_id, from_state, to_state, event, reason, epoch, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.PolypID,
		entry.FromState,
		entry.ToState,
		entry.Event,
		nullIfEmpty(entry.Reason),
		entry.Epoch,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// #endregion append

// #region list

// ListByPolyp returns the audit trail for one polyp, oldest first.
func ListByPolyp(ctx context.Context, db *sql.DB, polypID string) ([]Entry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT polyp_id, from_state, to_state, event, reason, epoch, created_at
		 FROM audit_log WHERE polyp_id = ? ORDER BY id ASC`, polypID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reason sql.NullString
		var createdStr string
		if err := rows.Scan(&e.PolypID, &e.FromState, &e.ToState, &e.Event, &reason, &e.Epoch, &createdStr); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list

// #region helpers

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
