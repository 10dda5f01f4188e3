package replay

// #region imports
import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reefipedia/reef/internal/consensus"
	"github.com/reefipedia/reef/internal/embed"
	"github.com/reefipedia/reef/internal/engine"
	"github.com/reefipedia/reef/internal/index"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/reference"
	"github.com/reefipedia/reef/internal/reputation"
	"github.com/reefipedia/reef/internal/scoring"
	"github.com/reefipedia/reef/internal/search"
	"github.com/reefipedia/reef/internal/store"
	"github.com/reefipedia/reef/internal/verify"
)

// #endregion

// #region result

// RefResult is the final record for one scripted ref.
type RefResult struct {
	Ref   string      `json:"ref"`
	ID    uuid.UUID   `json:"id"`
	State polyp.State `json:"state"`
}

// Summary aggregates one replay run.
type Summary struct {
	Description string             `json:"description"`
	Refs        []RefResult        `json:"refs"`
	Sweeps      []consensus.Report `json:"sweeps"`
	Failures    []string           `json:"failures,omitempty"`
	Passed      bool               `json:"passed"`
}

// #endregion result

// #region harness

// Harness owns a full engine stack for scripted runs: local deterministic
// embedder, placeholder verifier, manual block source.
type Harness struct {
	engine *engine.Engine
	store  *store.Store
	source *consensus.ManualSource
}

// NewHarness builds a replay stack over the database at dbPath.
func NewHarness(dbPath string, blocksPerEpoch uint64) (*Harness, error) {
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open replay store: %w", err)
	}

	ix := index.New()
	embedder := embed.NewLocalEmbedder()
	verifier := verify.NewBindingVerifier(verify.NewPlaceholderVerifier())
	scorer := scoring.NewScorer(verifier, ix, reputation.NewStore(s.DB()), reference.NewStore(s.DB()), scoring.DefaultConfig())
	source := &consensus.ManualSource{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeps := consensus.NewEngine(s, scorer, consensus.NewGate(consensus.DefaultGateConfig()),
		consensus.NewEpochManager(source, blocksPerEpoch), ix, logger, consensus.DefaultEngineConfig())
	searcher := search.NewSearcher(embedder, ix, s, search.DefaultConfig())

	return &Harness{
		engine: engine.New(s, ix, embedder, verifier, searcher, sweeps, nil, logger),
		store:  s,
		source: source,
	}, nil
}

// Close releases the harness's store.
func (h *Harness) Close() error {
	return h.store.Close()
}

// Run executes the fixture's steps in order and checks its expectations.
func (h *Harness) Run(ctx context.Context, f *Fixture) (Summary, error) {
	if err := f.validate(); err != nil {
		return Summary{}, err
	}

	model := f.Model.ToModelID()
	ids := make(map[string]uuid.UUID)
	var order []string
	summary := Summary{Description: f.Description}

	for i, step := range f.Steps {
		switch {
		case step.Submit != nil:
			p, err := h.engine.Submit(ctx, submitRequest(*step.Submit, model))
			if err != nil {
				return summary, fmt.Errorf("step %d submit %q: %w", i, step.Submit.Ref, err)
			}
			ids[step.Submit.Ref] = p.ID
			order = append(order, step.Submit.Ref)
		case step.Molt != nil:
			successor, err := h.engine.Molt(ctx, ids[step.Molt.Ref], submitRequest(step.Molt.Successor, model))
			if err != nil {
				return summary, fmt.Errorf("step %d molt %q: %w", i, step.Molt.Ref, err)
			}
			ids[step.Molt.Successor.Ref] = successor.ID
			order = append(order, step.Molt.Successor.Ref)
		case step.Block != nil:
			h.source.SetHeight(*step.Block)
		case step.Sweep:
			report, err := h.engine.Sweep(ctx)
			if err != nil {
				return summary, fmt.Errorf("step %d sweep: %w", i, err)
			}
			summary.Sweeps = append(summary.Sweeps, report)
		}
	}

	for _, ref := range order {
		p, err := h.store.Get(ctx, ids[ref])
		if err != nil {
			return summary, fmt.Errorf("read back %q: %w", ref, err)
		}
		summary.Refs = append(summary.Refs, RefResult{Ref: ref, ID: p.ID, State: p.State})
	}

	summary.Passed = true
	states := make(map[string]polyp.State, len(summary.Refs))
	for _, r := range summary.Refs {
		states[r.Ref] = r.State
	}
	for _, exp := range f.Expected {
		if got := states[exp.Ref]; got != polyp.State(exp.State) {
			summary.Passed = false
			summary.Failures = append(summary.Failures,
				fmt.Sprintf("%s: got %s, want %s", exp.Ref, got, exp.State))
		}
	}
	return summary, nil
}

func submitRequest(sub FixtureSubmit, model polyp.ModelID) engine.SubmitRequest {
	creator := sub.CreatorDID
	if creator == "" {
		creator = "did:reef:replay"
	}
	return engine.SubmitRequest{
		Content:     sub.Content,
		ContentType: "text/plain",
		Language:    "en",
		Model:       model,
		Provenance: polyp.Provenance{
			CreatorDID: creator,
			Source:     polyp.SourceAttribution{AccessedAt: time.Now().UTC()},
			Pipeline: polyp.Pipeline{
				Steps: []polyp.PipelineStep{{Name: "replay", Version: "1"}},
			},
		},
	}
}

// #endregion harness
