package consensus

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reefipedia/reef/internal/lifecycle"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/store"
)

// #endregion

// #region harden

// harden seals every Approved polyp into a Hardened record: content address,
// single-leaf merkle commitment, and the sealing epoch. Hardened polyps stay
// searchable but can never change again; corrections arrive as successors
// via molting.
func (e *Engine) harden(ctx context.Context, status EpochStatus, c *counters) error {
	afterID := ""
	for {
		page, err := e.store.ListByState(ctx, polyp.StateApproved, afterID, e.config.PageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		afterID = page[len(page)-1].ID.String()

		for _, p := range page {
			if err := e.hardenOne(ctx, status, p, c); err != nil {
				return err
			}
		}
		if len(page) < e.config.PageSize {
			return nil
		}
	}
}

func (e *Engine) hardenOne(ctx context.Context, status EpochStatus, p polyp.Polyp, c *counters) error {
	cid, err := polyp.ContentCID(&p)
	if err != nil {
		return fmt.Errorf("content cid for %s: %w", p.ID, err)
	}

	consensus := polyp.ConsensusMetadata{Epoch: status.Epoch}
	if p.Consensus != nil {
		consensus = *p.Consensus
	}
	consensus.Hardened = true

	_, err = e.store.Transition(ctx, p.ID, polyp.StateApproved, polyp.StateHardened, store.TransitionMeta{
		Event:     string(lifecycle.EventHardened),
		Reason:    fmt.Sprintf("sealed in epoch %d", status.Epoch),
		Epoch:     status.Epoch,
		Consensus: &consensus,
		Hardening: &polyp.Lineage{
			CID:        cid,
			MerkleRoot: polyp.MerkleRoot(p.ID, cid),
			Epoch:      status.Epoch,
			HardenedAt: time.Now().UTC(),
		},
	})
	if errors.Is(err, polyp.ErrConflict) {
		c.add(func(r *Report) { r.Conflicts++ })
		return nil
	}
	if err != nil {
		return err
	}
	c.add(func(r *Report) { r.Hardened++ })
	return nil
}

// #endregion harden
