package store

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

const selectColumns = `SELECT id, state, successor_id, content, content_type, language,
	model_json, vector, quantization, normalization,
	provenance_json, proof_json, consensus_json, hardening_json,
	created_at, updated_at`

// #region row-scanner

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolyp(row rowScanner) (polyp.Polyp, error) {
	var (
		idStr, state, content, contentType       string
		successorID, language                    sql.NullString
		modelJSON, provJSON, proofJSON           string
		consensusJSON, hardeningJSON             sql.NullString
		vecBlob                                  []byte
		quantization, normalization              string
		createdStr, updatedStr                   string
	)

	err := row.Scan(&idStr, &state, &successorID, &content, &contentType, &language,
		&modelJSON, &vecBlob, &quantization, &normalization,
		&provJSON, &proofJSON, &consensusJSON, &hardeningJSON,
		&createdStr, &updatedStr)
	if err != nil {
		return polyp.Polyp{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("parse id %s: %w", idStr, err)
	}

	p := polyp.Polyp{
		ID:    id,
		State: polyp.State(state),
		Subject: polyp.Subject{
			Payload: polyp.Payload{
				Content:     content,
				ContentType: contentType,
			},
			Vector: polyp.Embedding{
				Values:        decodeVector(vecBlob),
				Quantization:  quantization,
				Normalization: normalization,
			},
		},
	}
	if language.Valid {
		p.Subject.Payload.Language = language.String
	}
	if successorID.Valid {
		sid, err := uuid.Parse(successorID.String)
		if err != nil {
			return polyp.Polyp{}, fmt.Errorf("parse successor id: %w", err)
		}
		p.SuccessorID = &sid
	}

	if err := json.Unmarshal([]byte(modelJSON), &p.Subject.Vector.ModelID); err != nil {
		return polyp.Polyp{}, fmt.Errorf("unmarshal model id: %w", err)
	}
	if err := json.Unmarshal([]byte(provJSON), &p.Subject.Provenance); err != nil {
		return polyp.Polyp{}, fmt.Errorf("unmarshal provenance: %w", err)
	}
	if err := json.Unmarshal([]byte(proofJSON), &p.Proof); err != nil {
		return polyp.Polyp{}, fmt.Errorf("unmarshal proof: %w", err)
	}
	if consensusJSON.Valid {
		p.Consensus = &polyp.ConsensusMetadata{}
		if err := json.Unmarshal([]byte(consensusJSON.String), p.Consensus); err != nil {
			return polyp.Polyp{}, fmt.Errorf("unmarshal consensus: %w", err)
		}
	}
	if hardeningJSON.Valid {
		p.Hardening = &polyp.Lineage{}
		if err := json.Unmarshal([]byte(hardeningJSON.String), p.Hardening); err != nil {
			return polyp.Polyp{}, fmt.Errorf("unmarshal hardening: %w", err)
		}
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return p, nil
}

func scanPolyps(rows *sql.Rows) ([]polyp.Polyp, error) {
	var out []polyp.Polyp
	for rows.Next() {
		p, err := scanPolyp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// #endregion row-scanner
