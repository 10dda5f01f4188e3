// Package polyp defines the core data model of the Reef: the Polyp knowledge
// unit, its lifecycle states, embedding and proof attachments, provenance,
// multi-dimensional trust scores, and the search-result projection.
package polyp

// #region imports
import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #endregion

// #region state

// State is the lifecycle state of a Polyp.
type State string

const (
	// StateDraft is the initial state: created, proof not yet verified.
	StateDraft State = "Draft"
	// StateSoft means the proof verified and hash bindings matched.
	StateSoft State = "Soft"
	// StateUnderReview means the polyp is being evaluated by consensus sweeps.
	StateUnderReview State = "UnderReview"
	// StateApproved means the composite score passed the approval threshold.
	StateApproved State = "Approved"
	// StateHardened means an epoch confirmation finalized the polyp. Terminal.
	StateHardened State = "Hardened"
	// StateRejected means proof failure or insufficient score. Terminal.
	StateRejected State = "Rejected"
	// StateMolted means the polyp was superseded by a successor. Terminal.
	StateMolted State = "Molted"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateSoft, StateUnderReview, StateApproved,
		StateHardened, StateRejected, StateMolted:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s State) Terminal() bool {
	switch s {
	case StateHardened, StateRejected, StateMolted:
		return true
	}
	return false
}

// Searchable reports whether polyps in s may appear in search results.
func (s State) Searchable() bool {
	return s == StateApproved || s == StateHardened
}

// #endregion state

// #region model-id

// ModelID identifies an exact embedding model version. Two vectors are only
// comparable when every field matches; a re-trained model (different weights
// hash) is a distinct vector space.
type ModelID struct {
	Provider    string `json:"provider" yaml:"provider"`
	Name        string `json:"name" yaml:"name"`
	WeightsHash string `json:"weights_hash" yaml:"weights_hash"`
	Dimensions  int    `json:"dimensions" yaml:"dimensions"`
}

// SpaceKey returns the partition key for this model's vector space.
func (m ModelID) SpaceKey() string {
	return fmt.Sprintf("%s/%s/%s/%d", m.Provider, m.Name, m.WeightsHash, m.Dimensions)
}

// #endregion model-id

// #region embedding

// Embedding is a raw float vector tagged with the model that produced it.
type Embedding struct {
	Values        []float32 `json:"values"`
	ModelID       ModelID   `json:"model_id"`
	Quantization  string    `json:"quantization"`
	Normalization string    `json:"normalization"`
}

// #endregion embedding

// #region payload

// Payload is the human-readable knowledge content.
type Payload struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Language    string `json:"language,omitempty"`
}

// #endregion payload

// #region provenance

// SourceAttribution points at the material a polyp was derived from.
// Empty string fields mean the attribute is unknown.
type SourceAttribution struct {
	SourceCID  string    `json:"source_cid,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	Title      string    `json:"title,omitempty"`
	License    string    `json:"license,omitempty"`
	AccessedAt time.Time `json:"accessed_at"`
}

// PipelineStep is one named, versioned step of the processing pipeline.
type PipelineStep struct {
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Params  map[string]any `json:"params,omitempty"`
}

// Pipeline describes the ordered processing that produced a polyp.
type Pipeline struct {
	Steps      []PipelineStep `json:"steps"`
	DurationMS int64          `json:"duration_ms"`
}

// Provenance records who created a polyp and from what. Immutable after
// creation; corrections happen through molting, never in place.
type Provenance struct {
	CreatorHotkey string            `json:"creator_hotkey"`
	CreatorDID    string            `json:"creator_did"`
	Source        SourceAttribution `json:"source"`
	Pipeline      Pipeline          `json:"pipeline"`
}

// #endregion provenance

// #region proof

// Proof attests vector = Model(text). TextHash and VectorHash are hex-encoded
// SHA-256 digests over the source text and the vector's little-endian bytes.
type Proof struct {
	ProofType  string    `json:"proof_type"`
	ProofValue string    `json:"proof_value"`
	VKHash     string    `json:"vk_hash"`
	TextHash   string    `json:"text_hash"`
	VectorHash string    `json:"vector_hash"`
	ModelID    ModelID   `json:"model_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// #endregion proof

// #region subject

// Subject is the knowledge content of a polyp: payload + vector + provenance.
type Subject struct {
	Payload    Payload    `json:"payload"`
	Vector     Embedding  `json:"vector"`
	Provenance Provenance `json:"provenance"`
}

// #endregion subject

// #region consensus-metadata

// ConsensusMetadata is populated once consensus has evaluated a polyp.
type ConsensusMetadata struct {
	Epoch        uint64  `json:"epoch"`
	FinalScore   float64 `json:"final_score"`
	ReviewCycles int     `json:"review_cycles"`
	Hardened     bool    `json:"hardened"`
}

// #endregion consensus-metadata

// #region hardening

// Attestation is one node's signed confirmation of a hardened polyp.
type Attestation struct {
	ValidatorDID string    `json:"validator_did"`
	Signature    string    `json:"signature"`
	SignedAt     time.Time `json:"signed_at"`
}

// Lineage is the immutable hardening record: content address, single-leaf
// merkle commitment SHA-256(id bytes || cid bytes), and confirming evidence.
type Lineage struct {
	CID          string        `json:"cid"`
	MerkleRoot   string        `json:"merkle_root"`
	MerkleProof  []string      `json:"merkle_proof,omitempty"`
	Attestations []Attestation `json:"attestations,omitempty"`
	Epoch        uint64        `json:"epoch"`
	HardenedAt   time.Time     `json:"hardened_at"`
}

// #endregion hardening

// #region polyp

// Polyp is the atomic unit of knowledge in the Reef.
type Polyp struct {
	ID    uuid.UUID `json:"id"`
	State State     `json:"state"`
	// SuccessorID links a Molted polyp to the version that superseded it.
	SuccessorID *uuid.UUID         `json:"successor_id,omitempty"`
	Subject     Subject            `json:"subject"`
	Proof       Proof              `json:"proof"`
	Consensus   *ConsensusMetadata `json:"consensus,omitempty"`
	Hardening   *Lineage           `json:"hardening,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// #endregion polyp

// #region search-result

// SearchResult joins a polyp to a query. Constructed per query, never stored.
type SearchResult struct {
	PolypID       uuid.UUID `json:"polyp_id"`
	CID           string    `json:"cid,omitempty"`
	Payload       Payload   `json:"payload"`
	Similarity    float32   `json:"similarity"`
	TrustScore    float64   `json:"trust_score"`
	CreatorDID    string    `json:"creator_did"`
	State         State     `json:"state"`
	HardenedEpoch *uint64   `json:"hardened_epoch,omitempty"`
}

// #endregion search-result
