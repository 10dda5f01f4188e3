// Package consensus drives the polyp lifecycle: it derives epochs from block
// height, scores pending polyps, promotes or rejects them through the gate,
// and seals approved polyps into immutable hardened records. Sweeps are
// idempotent and conflict-tolerant, so several sweepers can run against the
// same store without coordination.
package consensus

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reefipedia/reef/internal/index"
	"github.com/reefipedia/reef/internal/lifecycle"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/scoring"
	"github.com/reefipedia/reef/internal/store"
	"github.com/reefipedia/reef/internal/verify"
)

// #endregion

// #region config

// EngineConfig tunes the sweep engine.
type EngineConfig struct {
	// PageSize is how many polyps one page of a sweep loads.
	PageSize int `yaml:"page_size"`
	// Parallelism bounds concurrent scoring within a page.
	Parallelism int `yaml:"parallelism"`
}

// DefaultEngineConfig returns the sweep defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{PageSize: 64, Parallelism: 4}
}

// #endregion config

// #region report

// Report summarizes one sweep.
type Report struct {
	Epoch    uint64 `json:"epoch"`
	Phase    Phase  `json:"phase"`
	Scored   int    `json:"scored"`
	Advanced int    `json:"advanced"`
	Held     int    `json:"held"`
	Rejected int    `json:"rejected"`
	Hardened int    `json:"hardened"`
	// Conflicts counts polyps another sweeper transitioned first.
	Conflicts int `json:"conflicts"`
	// Deferred counts polyps skipped because the verifier was unavailable.
	Deferred int `json:"deferred"`
}

type counters struct {
	mu sync.Mutex
	r  Report
}

func (c *counters) add(fn func(*Report)) {
	c.mu.Lock()
	fn(&c.r)
	c.mu.Unlock()
}

// #endregion report

// #region engine

// Engine runs consensus sweeps over the store.
type Engine struct {
	store  *store.Store
	scorer *scoring.Scorer
	gate   *Gate
	epochs *EpochManager
	index  *index.Index
	logger *slog.Logger
	config EngineConfig
}

// NewEngine wires a sweep engine.
func NewEngine(st *store.Store, sc *scoring.Scorer, gate *Gate, epochs *EpochManager, ix *index.Index, logger *slog.Logger, config EngineConfig) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, scorer: sc, gate: gate, epochs: epochs, index: ix, logger: logger, config: config}
}

// Sweep runs the passes appropriate to the current epoch phase. During Open
// only proof gating runs, so freshly submitted drafts move to Soft quickly.
// During Scoring the full promotion pipeline runs. During Committing,
// approved polyps are hardened.
func (e *Engine) Sweep(ctx context.Context) (Report, error) {
	status, err := e.epochs.Status(ctx)
	if err != nil {
		return Report{}, err
	}

	c := &counters{r: Report{Epoch: status.Epoch, Phase: status.Phase}}

	states := []polyp.State{polyp.StateDraft}
	if status.Phase == PhaseScoring {
		states = append(states, polyp.StateSoft, polyp.StateUnderReview)
	}
	for _, state := range states {
		if err := e.sweepState(ctx, status, state, c); err != nil {
			return c.r, err
		}
	}
	if status.Phase == PhaseCommitting {
		if err := e.harden(ctx, status, c); err != nil {
			return c.r, err
		}
	}

	e.logger.Info("sweep complete",
		"epoch", status.Epoch,
		"phase", status.Phase,
		"scored", c.r.Scored,
		"advanced", c.r.Advanced,
		"held", c.r.Held,
		"rejected", c.r.Rejected,
		"hardened", c.r.Hardened,
		"conflicts", c.r.Conflicts,
		"deferred", c.r.Deferred,
	)
	return c.r, nil
}

// #endregion engine

// #region sweep-state

func (e *Engine) sweepState(ctx context.Context, status EpochStatus, state polyp.State, c *counters) error {
	afterID := ""
	for {
		page, err := e.store.ListByState(ctx, state, afterID, e.config.PageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		afterID = page[len(page)-1].ID.String()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.config.Parallelism)
		for _, p := range page {
			p := p
			g.Go(func() error {
				return e.evaluate(gctx, status, p, c)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if len(page) < e.config.PageSize {
			return nil
		}
	}
}

// evaluate scores one polyp and applies the gate's decision. A conflict means
// another sweeper got there first and is not an error.
func (e *Engine) evaluate(ctx context.Context, status EpochStatus, p polyp.Polyp, c *counters) error {
	scores, err := e.scorer.Score(ctx, p)
	if errors.Is(err, verify.ErrVerifierUnavailable) {
		c.add(func(r *Report) { r.Deferred++ })
		e.logger.Warn("verifier unavailable, deferring polyp", "polyp", p.ID, "state", p.State)
		return nil
	}
	if err != nil {
		return fmt.Errorf("score polyp %s: %w", p.ID, err)
	}
	c.add(func(r *Report) { r.Scored++ })

	cycles := 0
	if p.Consensus != nil {
		cycles = p.Consensus.ReviewCycles
	}
	decision := e.gate.Evaluate(p.State, scores, cycles)

	switch decision.Action {
	case ActionAdvance:
		return e.advance(ctx, status, p, decision, cycles, c)
	case ActionReject:
		return e.reject(ctx, status, p, decision, cycles, c)
	case ActionHold:
		return e.hold(ctx, status, p, decision, cycles, c)
	}
	return nil
}

func (e *Engine) advance(ctx context.Context, status EpochStatus, p polyp.Polyp, decision Decision, cycles int, c *counters) error {
	ev := advanceEvent(p.State)
	next, err := lifecycle.Next(p.State, ev)
	if err != nil {
		return fmt.Errorf("advance polyp %s: %w", p.ID, err)
	}
	if p.State == polyp.StateUnderReview {
		cycles++
	}
	updated, err := e.store.Transition(ctx, p.ID, p.State, next, store.TransitionMeta{
		Event:  string(ev),
		Reason: decision.Reason,
		Epoch:  status.Epoch,
		Consensus: &polyp.ConsensusMetadata{
			Epoch:        status.Epoch,
			FinalScore:   decision.Score,
			ReviewCycles: cycles,
		},
	})
	if errors.Is(err, polyp.ErrConflict) {
		c.add(func(r *Report) { r.Conflicts++ })
		return nil
	}
	if err != nil {
		return err
	}
	c.add(func(r *Report) { r.Advanced++ })

	if updated.State == polyp.StateApproved {
		vec := updated.Subject.Vector
		if err := e.index.Upsert(updated.ID, vec.Values, vec.ModelID); err != nil {
			return fmt.Errorf("index approved polyp %s: %w", updated.ID, err)
		}
	}
	return nil
}

func (e *Engine) reject(ctx context.Context, status EpochStatus, p polyp.Polyp, decision Decision, cycles int, c *counters) error {
	ev := lifecycle.EventRejected
	if p.State == polyp.StateDraft {
		ev = lifecycle.EventProofFailed
	}
	_, err := e.store.Transition(ctx, p.ID, p.State, polyp.StateRejected, store.TransitionMeta{
		Event:  string(ev),
		Reason: decision.Reason,
		Epoch:  status.Epoch,
		Consensus: &polyp.ConsensusMetadata{
			Epoch:        status.Epoch,
			FinalScore:   decision.Score,
			ReviewCycles: cycles,
		},
	})
	if errors.Is(err, polyp.ErrConflict) {
		c.add(func(r *Report) { r.Conflicts++ })
		return nil
	}
	if err != nil {
		return err
	}
	c.add(func(r *Report) { r.Rejected++ })
	return nil
}

// hold re-records an UnderReview polyp with its cycle count bumped. State
// does not change; the optimistic check still guards against a concurrent
// sweeper having moved it.
func (e *Engine) hold(ctx context.Context, status EpochStatus, p polyp.Polyp, decision Decision, cycles int, c *counters) error {
	if p.State != polyp.StateUnderReview {
		c.add(func(r *Report) { r.Held++ })
		return nil
	}
	_, err := e.store.Transition(ctx, p.ID, p.State, p.State, store.TransitionMeta{
		Event:  "review_held",
		Reason: decision.Reason,
		Epoch:  status.Epoch,
		Consensus: &polyp.ConsensusMetadata{
			Epoch:        status.Epoch,
			FinalScore:   decision.Score,
			ReviewCycles: cycles + 1,
		},
	})
	if errors.Is(err, polyp.ErrConflict) {
		c.add(func(r *Report) { r.Conflicts++ })
		return nil
	}
	if err != nil {
		return err
	}
	c.add(func(r *Report) { r.Held++ })
	return nil
}

func advanceEvent(state polyp.State) lifecycle.Event {
	switch state {
	case polyp.StateDraft:
		return lifecycle.EventProofVerified
	case polyp.StateSoft:
		return lifecycle.EventReviewPicked
	case polyp.StateUnderReview:
		return lifecycle.EventApproved
	default:
		return lifecycle.EventRejected
	}
}

// #endregion sweep-state
