package search

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/index"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/store"
)

// #region helpers

// fixedEmbedder returns one preset vector for every query.
type fixedEmbedder struct {
	values []float32
}

func (f fixedEmbedder) Embed(_ context.Context, _ string, model polyp.ModelID) (polyp.Embedding, error) {
	return polyp.Embedding{
		Values:        f.values,
		ModelID:       model,
		Quantization:  "float32",
		Normalization: "l2",
	}, nil
}

type searchEnv struct {
	store    *store.Store
	index    *index.Index
	searcher *Searcher
}

func newSearchEnv(t *testing.T, query []float32) *searchEnv {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "reef.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ix := index.New()
	return &searchEnv{
		store:    s,
		index:    ix,
		searcher: NewSearcher(fixedEmbedder{values: query}, ix, s, DefaultConfig()),
	}
}

func searchModel(dims int) polyp.ModelID {
	return polyp.ModelID{Provider: "test", Name: "search-model", WeightsHash: "abc123", Dimensions: dims}
}

// nvec l2-normalizes the given components.
func nvec(components ...float32) []float32 {
	var sum float64
	for _, c := range components {
		sum += float64(c) * float64(c)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(components))
	for i, c := range components {
		out[i] = float32(float64(c) / norm)
	}
	return out
}

// approve creates a polyp, walks it to Approved with the given trust score,
// and indexes it.
func approve(t *testing.T, env *searchEnv, content string, values []float32, trust float64) polyp.Polyp {
	t.Helper()
	ctx := context.Background()
	model := searchModel(len(values))
	sub := polyp.Subject{
		Payload: polyp.Payload{Content: content, ContentType: "text/plain", Language: "en"},
		Vector: polyp.Embedding{
			Values:        values,
			ModelID:       model,
			Quantization:  "float32",
			Normalization: "l2",
		},
		Provenance: polyp.Provenance{
			CreatorHotkey: "deadbeef",
			CreatorDID:    "did:reef:searcher",
			Source:        polyp.SourceAttribution{AccessedAt: time.Now().UTC()},
			Pipeline: polyp.Pipeline{
				Steps: []polyp.PipelineStep{{Name: "embed", Version: "1.0.0"}},
			},
		},
	}
	proof := polyp.Proof{
		ProofType:  "placeholder",
		ProofValue: "0x00",
		TextHash:   polyp.TextHash(content),
		VectorHash: polyp.VectorHash(values),
		ModelID:    model,
	}
	p, err := env.store.Create(ctx, sub, proof)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	steps := []struct {
		expected, next polyp.State
		event          string
	}{
		{polyp.StateDraft, polyp.StateSoft, "proof_verified"},
		{polyp.StateSoft, polyp.StateUnderReview, "review_picked"},
		{polyp.StateUnderReview, polyp.StateApproved, "approved"},
	}
	for _, step := range steps {
		meta := store.TransitionMeta{Event: step.event}
		if step.next == polyp.StateApproved {
			meta.Consensus = &polyp.ConsensusMetadata{FinalScore: trust}
		}
		if p, err = env.store.Transition(ctx, p.ID, step.expected, step.next, meta); err != nil {
			t.Fatalf("transition %s: %v", step.event, err)
		}
	}
	if err := env.index.Upsert(p.ID, values, model); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return p
}

// #endregion helpers

func TestSearchEmptySpaceReturnsEmpty(t *testing.T) {
	env := newSearchEnv(t, nvec(1, 0, 0, 0))

	results, err := env.searcher.Search(context.Background(), Query{Text: "anything", Model: searchModel(4)})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0", len(results))
	}
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	env := newSearchEnv(t, nvec(1, 0, 0, 0))
	ctx := context.Background()

	near := approve(t, env, "closely aligned content", nvec(1, 0.2, 0, 0), 0.8)
	far := approve(t, env, "loosely related content", nvec(1, 1, 1, 0), 0.8)
	approve(t, env, "orthogonal content", nvec(0, 0, 0, 1), 0.8)

	results, err := env.searcher.Search(ctx, Query{Text: "query", Model: searchModel(4), TopK: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].PolypID != near.ID || results[1].PolypID != far.ID {
		t.Fatalf("order = [%s %s], want [%s %s]", results[0].PolypID, results[1].PolypID, near.ID, far.ID)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Fatalf("similarities not descending: %v, %v", results[0].Similarity, results[1].Similarity)
	}
}

func TestSearchSkipsStaleIndexEntries(t *testing.T) {
	env := newSearchEnv(t, nvec(1, 0, 0, 0))
	ctx := context.Background()

	kept := approve(t, env, "still approved", nvec(1, 0.5, 0, 0), 0.8)

	// A hit whose polyp has since vanished from the store must be dropped,
	// not surfaced as live.
	stale := uuid.Must(uuid.NewV7())
	if err := env.index.Upsert(stale, nvec(1, 0, 0, 0), searchModel(4)); err != nil {
		t.Fatalf("Upsert stale: %v", err)
	}

	results, err := env.searcher.Search(ctx, Query{Text: "query", Model: searchModel(4), TopK: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].PolypID != kept.ID {
		t.Fatalf("result = %s, want %s", results[0].PolypID, kept.ID)
	}
}

func TestSearchTrustWeightedRank(t *testing.T) {
	env := newSearchEnv(t, nvec(1, 0, 0, 0))
	ctx := context.Background()

	// Slightly closer but barely trusted, versus slightly farther but
	// strongly trusted.
	borderline := approve(t, env, "borderline approval", nvec(1, 0.1, 0, 0), 0.55)
	trusted := approve(t, env, "well reviewed", nvec(1, 0.2, 0, 0), 0.95)

	bySim, err := env.searcher.Search(ctx, Query{Text: "query", Model: searchModel(4), TopK: 2})
	if err != nil {
		t.Fatalf("Search by similarity: %v", err)
	}
	if bySim[0].PolypID != borderline.ID {
		t.Fatalf("similarity rank head = %s, want %s", bySim[0].PolypID, borderline.ID)
	}

	byTrust, err := env.searcher.Search(ctx, Query{Text: "query", Model: searchModel(4), TopK: 2, Rank: RankTrustWeighted})
	if err != nil {
		t.Fatalf("Search trust weighted: %v", err)
	}
	if byTrust[0].PolypID != trusted.ID {
		t.Fatalf("trust rank head = %s, want %s", byTrust[0].PolypID, trusted.ID)
	}
}

func TestSearchProjectsHardenedFields(t *testing.T) {
	env := newSearchEnv(t, nvec(1, 0, 0, 0))
	ctx := context.Background()

	p := approve(t, env, "about to harden", nvec(1, 0, 0, 0), 0.9)
	cid, err := polyp.ContentCID(&p)
	if err != nil {
		t.Fatalf("ContentCID: %v", err)
	}
	_, err = env.store.Transition(ctx, p.ID, polyp.StateApproved, polyp.StateHardened, store.TransitionMeta{
		Event: "hardened",
		Hardening: &polyp.Lineage{
			CID:        cid,
			MerkleRoot: polyp.MerkleRoot(p.ID, cid),
			Epoch:      7,
			HardenedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}

	results, err := env.searcher.Search(ctx, Query{Text: "query", Model: searchModel(4), TopK: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.State != polyp.StateHardened || r.CID != cid {
		t.Fatalf("result = %+v, want hardened with cid %s", r, cid)
	}
	if r.HardenedEpoch == nil || *r.HardenedEpoch != 7 {
		t.Fatalf("hardened epoch = %v, want 7", r.HardenedEpoch)
	}
}

func TestSearchCapsTopK(t *testing.T) {
	env := newSearchEnv(t, nvec(1, 0, 0, 0))

	for i := 0; i < 3; i++ {
		v := make([]float32, 4)
		v[0] = 1
		v[i+1] = float32(i) * 0.1
		approve(t, env, "filler content", nvec(v...), 0.8)
	}

	results, err := env.searcher.Search(context.Background(), Query{Text: "query", Model: searchModel(4), TopK: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
}
