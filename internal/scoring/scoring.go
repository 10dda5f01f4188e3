// Package scoring computes the five trust dimensions for a polyp: proof
// validity, novelty against the searchable corpus, creator credibility,
// lexical semantic quality, and embedding quality against the space's
// reference vector. The weighted aggregate drives consensus promotion.
package scoring

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/index"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/reference"
	"github.com/reefipedia/reef/internal/reputation"
	"github.com/reefipedia/reef/internal/verify"
)

// #endregion

// #region config

// Config tunes the heuristic dimensions.
type Config struct {
	// SemanticLengthNorm is the token count at which the length factor
	// saturates. Shorter content is penalized proportionally.
	SemanticLengthNorm float64 `yaml:"semantic_length_norm"`
	// NeutralEmbeddingQuality is assigned when a space has no reference
	// embedding to compare against.
	NeutralEmbeddingQuality float64 `yaml:"neutral_embedding_quality"`
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		SemanticLengthNorm:      64,
		NeutralEmbeddingQuality: 0.5,
	}
}

// #endregion config

// #region scorer

// Scorer computes trust dimensions for a polyp subject.
type Scorer struct {
	verifier   verify.Verifier
	index      *index.Index
	reputation *reputation.Store
	reference  *reference.Store
	config     Config
}

// NewScorer wires a scorer over the verifier, vector index, and the
// reputation and reference stores.
func NewScorer(v verify.Verifier, ix *index.Index, rep *reputation.Store, ref *reference.Store, config Config) *Scorer {
	return &Scorer{verifier: v, index: ix, reputation: rep, reference: ref, config: config}
}

// Score computes all five dimensions for the polyp. The polyp's ID is
// excluded from the novelty comparison so re-scoring an already indexed
// polyp does not see itself as a duplicate.
//
// A verifier outage surfaces as verify.ErrVerifierUnavailable so the
// caller can retry the sweep later instead of rejecting on a 0 score.
func (s *Scorer) Score(ctx context.Context, p polyp.Polyp) (polyp.Scores, error) {
	zk, err := s.zkValidity(ctx, p)
	if err != nil {
		return polyp.Scores{}, err
	}
	novelty := s.novelty(p.ID, p.Subject.Vector)
	credibility, err := s.sourceCredibility(ctx, p.Subject.Provenance.CreatorDID)
	if err != nil {
		return polyp.Scores{}, err
	}
	embQuality, err := s.embeddingQuality(ctx, p.Subject.Vector)
	if err != nil {
		return polyp.Scores{}, err
	}
	return polyp.Scores{
		ZKValidity:        zk,
		Novelty:           novelty,
		SourceCredibility: credibility,
		SemanticQuality:   s.semanticQuality(p.Subject.Payload.Content),
		EmbeddingQuality:  embQuality,
	}, nil
}

// #endregion scorer

// #region zk-validity

// zkValidity is binary: the proof either verifies against the subject's
// content and vector hashes or it does not.
func (s *Scorer) zkValidity(ctx context.Context, p polyp.Polyp) (float64, error) {
	textHash := polyp.TextHash(p.Subject.Payload.Content)
	vectorHash := polyp.VectorHash(p.Subject.Vector.Values)
	ok, err := s.verifier.Verify(ctx, p.Proof, textHash, vectorHash)
	if err != nil {
		return 0, fmt.Errorf("verify proof: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return 1, nil
}

// #endregion zk-validity

// #region novelty

// novelty is 1 minus the best similarity to any searchable polyp in the
// same model space. An empty space scores full novelty; an exact duplicate
// scores zero.
func (s *Scorer) novelty(self uuid.UUID, emb polyp.Embedding) float64 {
	hits, err := s.index.Query(emb.Values, emb.ModelID, 2)
	if err != nil {
		if errors.Is(err, polyp.ErrEmptyIndex) {
			return 1
		}
		return 1
	}
	var best float64
	for _, h := range hits {
		if h.ID == self {
			continue
		}
		if sim := float64(h.Similarity); sim > best {
			best = sim
		}
	}
	return clamp01(1 - best)
}

// #endregion novelty

// #region credibility

func (s *Scorer) sourceCredibility(ctx context.Context, creatorDID string) (float64, error) {
	score, err := s.reputation.Lookup(ctx, creatorDID)
	if err != nil {
		return 0, fmt.Errorf("creator reputation: %w", err)
	}
	return score, nil
}

// #endregion credibility

// #region semantic-quality

// semanticQuality approximates content quality as lexical diversity scaled
// by a saturating length factor. Empty content scores zero.
func (s *Scorer) semanticQuality(content string) float64 {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	diversity := float64(len(unique)) / float64(len(tokens))
	length := math.Tanh(float64(len(tokens)) / s.config.SemanticLengthNorm)
	return clamp01(diversity * length)
}

// #endregion semantic-quality

// #region embedding-quality

// embeddingQuality is cosine similarity against the space's reference
// embedding. Spaces without a reference score the configured neutral.
func (s *Scorer) embeddingQuality(ctx context.Context, emb polyp.Embedding) (float64, error) {
	ref, err := s.reference.Get(ctx, emb.ModelID)
	if err != nil {
		return 0, fmt.Errorf("reference embedding: %w", err)
	}
	if ref == nil {
		return s.config.NeutralEmbeddingQuality, nil
	}
	return clamp01(cosineSimilarity(emb.Values, ref)), nil
}

// #endregion embedding-quality

// #region helpers

// tokenize splits content into lowercase whitespace-delimited tokens.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// cosineSimilarity returns 0 for zero-length or mismatched vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
