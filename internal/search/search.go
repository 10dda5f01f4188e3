// Package search answers trust-weighted semantic queries: embed the query
// text, probe the vector index within the query's model space, join the hits
// back to the store, and project them into results. Only Approved and
// Hardened polyps are indexed, so unreviewed content can never surface here.
package search

// #region imports
import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/embed"
	"github.com/reefipedia/reef/internal/index"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/store"
)

// #endregion

// #region config

// RankMode selects how results are ordered.
type RankMode string

const (
	// RankSimilarity orders by raw cosine similarity.
	RankSimilarity RankMode = "similarity"
	// RankTrustWeighted orders by similarity scaled by the polyp's final
	// consensus score, so well-reviewed knowledge outranks borderline
	// approvals at equal relevance.
	RankTrustWeighted RankMode = "trust_weighted"
)

// Config tunes the searcher.
type Config struct {
	// OverfetchFactor widens the index probe beyond top-k so that hits
	// whose polyps have moved out of a searchable state since the index
	// was last updated can be dropped without shrinking the result page.
	OverfetchFactor int `yaml:"overfetch_factor"`
	// DefaultTopK applies when a request does not set top-k.
	DefaultTopK int `yaml:"default_top_k"`
	// MaxTopK caps a single request.
	MaxTopK int `yaml:"max_top_k"`
}

// DefaultConfig returns the search defaults.
func DefaultConfig() Config {
	return Config{OverfetchFactor: 3, DefaultTopK: 10, MaxTopK: 100}
}

// #endregion config

// #region searcher

// Query is one search request.
type Query struct {
	Text  string
	Model polyp.ModelID
	TopK  int
	Rank  RankMode
}

// Searcher runs semantic queries against the reef.
type Searcher struct {
	embedder embed.Embedder
	index    *index.Index
	store    *store.Store
	config   Config
}

// NewSearcher wires a searcher over the embedder, index, and store.
func NewSearcher(e embed.Embedder, ix *index.Index, st *store.Store, config Config) *Searcher {
	return &Searcher{embedder: e, index: ix, store: st, config: config}
}

// Search embeds the query text and returns up to TopK results from the
// query's model space. An empty space yields an empty slice, not an error.
func (s *Searcher) Search(ctx context.Context, q Query) ([]polyp.SearchResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}
	if topK > s.config.MaxTopK {
		topK = s.config.MaxTopK
	}
	rank := q.Rank
	if rank == "" {
		rank = RankSimilarity
	}

	queryEmb, err := s.embedder.Embed(ctx, q.Text, q.Model)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Query(queryEmb.Values, q.Model, topK*s.config.OverfetchFactor)
	if errors.Is(err, polyp.ErrEmptyIndex) {
		return []polyp.SearchResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]polyp.SearchResult, 0, topK)
	for _, hit := range hits {
		p, err := s.store.Get(ctx, hit.ID)
		if errors.Is(err, polyp.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// The index may briefly trail the store during a sweep.
		if !p.State.Searchable() {
			continue
		}
		results = append(results, project(p, hit.Similarity))
		if len(results) == topK && rank == RankSimilarity {
			break
		}
	}

	if rank == RankTrustWeighted {
		sort.SliceStable(results, func(i, j int) bool {
			wi := float64(results[i].Similarity) * results[i].TrustScore
			wj := float64(results[j].Similarity) * results[j].TrustScore
			if wi != wj {
				return wi > wj
			}
			return lessUUID(results[i].PolypID, results[j].PolypID)
		})
		if len(results) > topK {
			results = results[:topK]
		}
	}
	return results, nil
}

// #endregion searcher

// #region projection

// project flattens a polyp and its query similarity into a result row.
func project(p polyp.Polyp, similarity float32) polyp.SearchResult {
	r := polyp.SearchResult{
		PolypID:    p.ID,
		Payload:    p.Subject.Payload,
		Similarity: similarity,
		CreatorDID: p.Subject.Provenance.CreatorDID,
		State:      p.State,
	}
	if p.Consensus != nil {
		r.TrustScore = p.Consensus.FinalScore
	}
	if p.Hardening != nil {
		r.CID = p.Hardening.CID
		epoch := p.Hardening.Epoch
		r.HardenedEpoch = &epoch
	}
	return r
}

// lessUUID compares identifiers byte-wise for deterministic tie-breaks.
func lessUUID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// #endregion projection
