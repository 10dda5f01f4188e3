package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/reefipedia/reef/internal/consensus"
	"github.com/reefipedia/reef/internal/embed"
	"github.com/reefipedia/reef/internal/index"
	"github.com/reefipedia/reef/internal/metrics"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/reference"
	"github.com/reefipedia/reef/internal/reputation"
	"github.com/reefipedia/reef/internal/scoring"
	"github.com/reefipedia/reef/internal/search"
	"github.com/reefipedia/reef/internal/store"
	"github.com/reefipedia/reef/internal/verify"
)

// #region helpers

type testEnv struct {
	engine *Engine
	store  *store.Store
	index  *index.Index
	source *consensus.ManualSource
}

func newTestEnv(t *testing.T, verifier verify.Verifier) *testEnv {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "reef.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ix := index.New()
	embedder := embed.NewLocalEmbedder()
	wrapped := verify.NewBindingVerifier(verifier)
	scorer := scoring.NewScorer(wrapped, ix, reputation.NewStore(s.DB()), reference.NewStore(s.DB()), scoring.DefaultConfig())
	source := &consensus.ManualSource{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeps := consensus.NewEngine(s, scorer, consensus.NewGate(consensus.DefaultGateConfig()),
		consensus.NewEpochManager(source, 100), ix, logger, consensus.DefaultEngineConfig())
	searcher := search.NewSearcher(embedder, ix, s, search.DefaultConfig())
	m := metrics.New(prometheus.NewRegistry())

	return &testEnv{
		engine: New(s, ix, embedder, wrapped, searcher, sweeps, m, logger),
		store:  s,
		index:  ix,
		source: source,
	}
}

func testModel() polyp.ModelID {
	return polyp.ModelID{Provider: "local", Name: "hash-embed", WeightsHash: "abc123", Dimensions: 32}
}

func testProvenance() polyp.Provenance {
	return polyp.Provenance{
		CreatorHotkey: "deadbeef",
		CreatorDID:    "did:reef:engine",
		Source:        polyp.SourceAttribution{AccessedAt: time.Now().UTC()},
		Pipeline: polyp.Pipeline{
			Steps: []polyp.PipelineStep{{Name: "embed", Version: "1.0.0"}},
		},
	}
}

// richContent builds content with enough distinct tokens to clear the
// approval bar with a neutral creator reputation.
func richContent(topic string) string {
	var b strings.Builder
	b.WriteString(topic)
	b.WriteString(" ")
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "%s%03d ", topic, i)
	}
	return b.String()
}

func submitReq(content string) SubmitRequest {
	return SubmitRequest{
		Content:     content,
		ContentType: "text/plain",
		Language:    "en",
		Model:       testModel(),
		Provenance:  testProvenance(),
	}
}

// #endregion helpers

func TestSubmitVerifiesInline(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())

	p, err := env.engine.Submit(context.Background(), submitReq(richContent("coral")))
	require.NoError(t, err)
	require.Equal(t, polyp.StateSoft, p.State)
}

func TestSubmitEmptyContentRejected(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())

	_, err := env.engine.Submit(context.Background(), submitReq(""))
	require.ErrorIs(t, err, polyp.ErrValidation)
}

func TestSubmitFailedProofRejectedInline(t *testing.T) {
	env := newTestEnv(t, rejectAllVerifier{})

	p, err := env.engine.Submit(context.Background(), submitReq(richContent("coral")))
	require.NoError(t, err)
	require.Equal(t, polyp.StateRejected, p.State)
}

func TestSubmitVerifierOutageLeavesDraft(t *testing.T) {
	env := newTestEnv(t, downVerifier{})

	p, err := env.engine.Submit(context.Background(), submitReq(richContent("coral")))
	require.NoError(t, err)
	require.Equal(t, polyp.StateDraft, p.State)
}

func TestSubmitThenSweepThenSearch(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())
	ctx := context.Background()

	content := richContent("lightspeed")
	p, err := env.engine.Submit(ctx, submitReq(content))
	require.NoError(t, err)

	env.source.SetHeight(50) // Scoring
	_, err = env.engine.Sweep(ctx)
	require.NoError(t, err)

	got, err := env.engine.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, polyp.StateApproved, got.State)

	env.source.SetHeight(80) // Committing
	report, err := env.engine.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Hardened)

	results, err := env.engine.Search(ctx, search.Query{
		Text:  content,
		Model: testModel(),
		TopK:  5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, p.ID, results[0].PolypID)
	require.Equal(t, polyp.StateHardened, results[0].State)
	require.Greater(t, results[0].Similarity, float32(0))
	require.NotEmpty(t, results[0].CID)
}

func TestMoltSupersedesApprovedPolyp(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())
	ctx := context.Background()

	p, err := env.engine.Submit(ctx, submitReq(richContent("anemone")))
	require.NoError(t, err)

	env.source.SetHeight(50)
	_, err = env.engine.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, env.index.Size())

	successor, err := env.engine.Molt(ctx, p.ID, submitReq(richContent("anemones")))
	require.NoError(t, err)
	require.NotEqual(t, p.ID, successor.ID)

	old, err := env.engine.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, polyp.StateMolted, old.State)
	require.NotNil(t, old.SuccessorID)
	require.Equal(t, successor.ID, *old.SuccessorID)

	// The superseded vector left the index; the successor is not yet
	// approved, so nothing is searchable.
	require.Equal(t, 0, env.index.Size())
}

func TestLineageWalksMoltChain(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())
	ctx := context.Background()

	v1, err := env.engine.Submit(ctx, submitReq(richContent("kelp")))
	require.NoError(t, err)
	v2, err := env.engine.Molt(ctx, v1.ID, submitReq(richContent("kelps")))
	require.NoError(t, err)
	v3, err := env.engine.Molt(ctx, v2.ID, submitReq(richContent("kelped")))
	require.NoError(t, err)

	// The chain is the same whichever member anchors the walk.
	for _, anchor := range []polyp.Polyp{v1, v2, v3} {
		chain, err := env.engine.Lineage(ctx, anchor.ID)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		require.Equal(t, v1.ID, chain[0].ID)
		require.Equal(t, v2.ID, chain[1].ID)
		require.Equal(t, v3.ID, chain[2].ID)
	}

	chain, err := env.engine.Lineage(ctx, v1.ID)
	require.NoError(t, err)
	require.Equal(t, polyp.StateMolted, chain[0].State)
	require.Equal(t, polyp.StateMolted, chain[1].State)
	require.Equal(t, polyp.StateSoft, chain[2].State)
}

func TestLineageOfUnmoltedPolyp(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())
	ctx := context.Background()

	p, err := env.engine.Submit(ctx, submitReq(richContent("coral")))
	require.NoError(t, err)

	chain, err := env.engine.Lineage(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	require.Equal(t, p.ID, chain[0].ID)

	missing := p.ID
	missing[0] ^= 0xff
	_, err = env.engine.Lineage(ctx, missing)
	require.ErrorIs(t, err, polyp.ErrNotFound)
}

func TestMoltTerminalStateFails(t *testing.T) {
	env := newTestEnv(t, rejectAllVerifier{})
	ctx := context.Background()

	p, err := env.engine.Submit(ctx, submitReq(richContent("coral")))
	require.NoError(t, err)
	require.Equal(t, polyp.StateRejected, p.State)

	_, err = env.engine.Molt(ctx, p.ID, submitReq(richContent("corals")))
	require.ErrorIs(t, err, polyp.ErrTerminalState)
}

func TestMoltUnknownPolyp(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())

	p, err := env.engine.Submit(context.Background(), submitReq(richContent("coral")))
	require.NoError(t, err)

	missing := p.ID
	missing[0] ^= 0xff
	_, err = env.engine.Molt(context.Background(), missing, submitReq(richContent("corals")))
	require.ErrorIs(t, err, polyp.ErrNotFound)
}

func TestRebuildIndexFromStore(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())
	ctx := context.Background()

	_, err := env.engine.Submit(ctx, submitReq(richContent("sponge")))
	require.NoError(t, err)
	env.source.SetHeight(50)
	_, err = env.engine.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, env.index.Size())

	// A fresh process starts with an empty index and rebuilds it.
	fresh := index.New()
	env.engine.index = fresh
	n, err := env.engine.RebuildIndex(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, fresh.Size())
}

func TestDuplicateResubmissionNeverApproved(t *testing.T) {
	env := newTestEnv(t, verify.NewPlaceholderVerifier())
	ctx := context.Background()

	content := richContent("axiom")
	first, err := env.engine.Submit(ctx, submitReq(content))
	require.NoError(t, err)

	env.source.SetHeight(50)
	_, err = env.engine.Sweep(ctx)
	require.NoError(t, err)
	got, err := env.engine.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, polyp.StateApproved, got.State)

	// Byte-identical resubmission scores zero novelty against the corpus.
	dup, err := env.engine.Submit(ctx, submitReq(content))
	require.NoError(t, err)
	for i := 0; i < consensus.DefaultGateConfig().MaxReviewCycles; i++ {
		_, err = env.engine.Sweep(ctx)
		require.NoError(t, err)
	}

	got, err = env.engine.Get(ctx, dup.ID)
	require.NoError(t, err)
	require.Equal(t, polyp.StateRejected, got.State)
}

type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify(context.Context, polyp.Proof, string, string) (bool, error) {
	return false, nil
}

type downVerifier struct{}

func (downVerifier) Verify(context.Context, polyp.Proof, string, string) (bool, error) {
	return false, verify.ErrVerifierUnavailable
}
