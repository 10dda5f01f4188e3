// Package engine is the reef's facade: it wires the store, index, adapters,
// scorer, and consensus sweeps into the four operations callers see — submit,
// search, get, and molt.
package engine

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/consensus"
	"github.com/reefipedia/reef/internal/embed"
	"github.com/reefipedia/reef/internal/index"
	"github.com/reefipedia/reef/internal/lifecycle"
	"github.com/reefipedia/reef/internal/lineage"
	"github.com/reefipedia/reef/internal/metrics"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/search"
	"github.com/reefipedia/reef/internal/store"
	"github.com/reefipedia/reef/internal/verify"
)

// #endregion

// #region engine

// moltAttempts bounds the optimistic retry loop when superseding a polyp.
const moltAttempts = 3

// Engine exposes the reef's public operations over its wired components.
type Engine struct {
	store    *store.Store
	index    *index.Index
	embedder embed.Embedder
	verifier verify.Verifier
	searcher *search.Searcher
	sweeps   *consensus.Engine
	lineage  *lineage.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New wires an engine. metrics may be nil when instrumentation is unwanted.
func New(st *store.Store, ix *index.Index, e embed.Embedder, v verify.Verifier, searcher *search.Searcher, sweeps *consensus.Engine, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		index:    ix,
		embedder: e,
		verifier: v,
		searcher: searcher,
		sweeps:   sweeps,
		lineage:  lineage.NewStore(st.DB()),
		metrics:  m,
		logger:   logger,
	}
}

// #endregion engine

// #region submit

// SubmitRequest is one ingestion request.
type SubmitRequest struct {
	Content     string
	ContentType string
	Language    string
	Model       polyp.ModelID
	Provenance  polyp.Provenance
	// Proof optionally carries the submitter's attestation. When nil, a
	// placeholder proof binding the embedded vector is synthesized.
	Proof *polyp.Proof
}

// Submit runs the ingestion pipeline: embed, verify, store. The returned
// polyp is Soft when the proof verified inline, Rejected when it failed, and
// Draft when the verifier was unavailable — a Draft is safely retryable by
// the next consensus sweep.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (polyp.Polyp, error) {
	if req.Content == "" {
		return polyp.Polyp{}, fmt.Errorf("%w: empty content", polyp.ErrValidation)
	}

	emb, err := e.embedder.Embed(ctx, req.Content, req.Model)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("embed submission: %w", err)
	}

	textHash := polyp.TextHash(req.Content)
	vectorHash := polyp.VectorHash(emb.Values)
	proof := polyp.Proof{
		ProofType:  "placeholder",
		ProofValue: "0x00",
		TextHash:   textHash,
		VectorHash: vectorHash,
		ModelID:    req.Model,
	}
	if req.Proof != nil {
		proof = *req.Proof
	}

	sub := polyp.Subject{
		Payload: polyp.Payload{
			Content:     req.Content,
			ContentType: req.ContentType,
			Language:    req.Language,
		},
		Vector:     emb,
		Provenance: req.Provenance,
	}
	p, err := e.store.Create(ctx, sub, proof)
	if err != nil {
		return polyp.Polyp{}, err
	}
	if e.metrics != nil {
		e.metrics.SubmissionsTotal.Inc()
	}

	ok, err := e.verifier.Verify(ctx, proof, textHash, vectorHash)
	if err != nil {
		// Transient outage: the polyp stays Draft and the sweep retries.
		e.logger.Warn("inline verification unavailable", "polyp", p.ID, "err", err)
		if e.metrics != nil {
			e.metrics.VerifierDeferrals.Inc()
		}
		return p, nil
	}

	ev := lifecycle.EventProofVerified
	reason := "proof verified at submission"
	if !ok {
		ev = lifecycle.EventProofFailed
		reason = "proof failed verification at submission"
	}
	next, err := lifecycle.Next(p.State, ev)
	if err != nil {
		return polyp.Polyp{}, err
	}
	updated, err := e.store.Transition(ctx, p.ID, p.State, next, store.TransitionMeta{
		Event:  string(ev),
		Reason: reason,
	})
	if errors.Is(err, polyp.ErrConflict) {
		// A sweep got there first; report whatever it decided.
		return e.store.Get(ctx, p.ID)
	}
	if err != nil {
		return polyp.Polyp{}, err
	}
	if e.metrics != nil {
		e.metrics.TransitionsTotal.WithLabelValues(string(updated.State)).Inc()
	}
	return updated, nil
}

// #endregion submit

// #region get-search

// Get returns the polyp by ID, or polyp.ErrNotFound.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (polyp.Polyp, error) {
	return e.store.Get(ctx, id)
}

// Search runs a trust-weighted semantic query.
func (e *Engine) Search(ctx context.Context, q search.Query) ([]polyp.SearchResult, error) {
	start := time.Now()
	results, err := e.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.SearchesTotal.Inc()
		e.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}
	return results, nil
}

// #endregion get-search

// #region molt

// Molt supersedes an existing polyp with a corrected successor. The
// successor enters the normal ingestion pipeline as its own polyp; the old
// record is marked Molted with a link to it and its vector leaves the index
// before the successor can ever be indexed.
func (e *Engine) Molt(ctx context.Context, oldID uuid.UUID, req SubmitRequest) (polyp.Polyp, error) {
	old, err := e.store.Get(ctx, oldID)
	if err != nil {
		return polyp.Polyp{}, err
	}
	if _, err := lifecycle.Next(old.State, lifecycle.EventMolted); err != nil {
		return polyp.Polyp{}, err
	}

	successor, err := e.Submit(ctx, req)
	if err != nil {
		return polyp.Polyp{}, fmt.Errorf("submit successor: %w", err)
	}

	for attempt := 0; ; attempt++ {
		_, err = e.store.Transition(ctx, oldID, old.State, polyp.StateMolted, store.TransitionMeta{
			Event:       string(lifecycle.EventMolted),
			Reason:      fmt.Sprintf("superseded by %s", successor.ID),
			SuccessorID: &successor.ID,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, polyp.ErrConflict) || attempt+1 >= moltAttempts {
			return polyp.Polyp{}, fmt.Errorf("molt %s: %w", oldID, err)
		}
		// Lost the race: re-read and retry from the polyp's new state.
		if old, err = e.store.Get(ctx, oldID); err != nil {
			return polyp.Polyp{}, err
		}
		if _, err := lifecycle.Next(old.State, lifecycle.EventMolted); err != nil {
			return polyp.Polyp{}, err
		}
	}

	if err := e.lineage.Link(ctx, oldID, successor.ID, lineage.EdgeMolted); err != nil {
		return polyp.Polyp{}, err
	}

	e.index.Remove(oldID)
	if e.metrics != nil {
		e.metrics.TransitionsTotal.WithLabelValues(string(polyp.StateMolted)).Inc()
		e.metrics.IndexSize.Set(float64(e.index.Size()))
	}
	return successor, nil
}

// Lineage returns the molt chain containing id, oldest version first.
func (e *Engine) Lineage(ctx context.Context, id uuid.UUID) ([]polyp.Polyp, error) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, err
	}
	chain, err := e.lineage.Chain(ctx, id)
	if err != nil {
		return nil, err
	}
	polyps := make([]polyp.Polyp, 0, len(chain))
	for _, memberID := range chain {
		p, err := e.store.Get(ctx, memberID)
		if err != nil {
			return nil, fmt.Errorf("load lineage member %s: %w", memberID, err)
		}
		polyps = append(polyps, p)
	}
	return polyps, nil
}

// #endregion molt

// #region maintenance

// Sweep runs one consensus sweep and records its duration.
func (e *Engine) Sweep(ctx context.Context) (consensus.Report, error) {
	start := time.Now()
	report, err := e.sweeps.Sweep(ctx)
	if err != nil {
		return report, err
	}
	if e.metrics != nil {
		e.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		e.metrics.IndexSize.Set(float64(e.index.Size()))
		e.metrics.VerifierDeferrals.Add(float64(report.Deferred))
	}
	return report, nil
}

// RebuildIndex reloads the vector index from the store's searchable polyps.
// The index is a derived projection; this runs at startup and is safe to run
// again at any time.
func (e *Engine) RebuildIndex(ctx context.Context) (int, error) {
	rows, err := e.store.SearchableVectors(ctx)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if err := e.index.Upsert(row.ID, row.Values, row.Model); err != nil {
			return 0, fmt.Errorf("rebuild index: %w", err)
		}
	}
	if e.metrics != nil {
		e.metrics.IndexSize.Set(float64(e.index.Size()))
	}
	e.logger.Info("index rebuilt", "vectors", len(rows))
	return len(rows), nil
}

// #endregion maintenance
