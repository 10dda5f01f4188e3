package consensus

// #region imports
import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// #endregion

// #region phase

// Phase is the position of the current epoch in its lifecycle. Submissions
// flow in during Open, scoring sweeps run during Scoring, and hardening
// commits during Committing.
type Phase string

const (
	PhaseOpen       Phase = "open"
	PhaseScoring    Phase = "scoring"
	PhaseCommitting Phase = "committing"
)

// #endregion phase

// #region block-source

// BlockSource reports the current block height. The height is the only
// external clock consensus trusts; epochs and phases derive from it.
type BlockSource interface {
	Height(ctx context.Context) (uint64, error)
}

// ClockSource derives block height from wall time: one block per interval
// since genesis. It is the default source for single-node deployments.
type ClockSource struct {
	genesis  time.Time
	interval time.Duration
}

// NewClockSource creates a clock-driven block source.
func NewClockSource(genesis time.Time, interval time.Duration) *ClockSource {
	return &ClockSource{genesis: genesis, interval: interval}
}

// Height returns the number of whole intervals elapsed since genesis.
func (c *ClockSource) Height(_ context.Context) (uint64, error) {
	elapsed := time.Since(c.genesis)
	if elapsed < 0 {
		return 0, nil
	}
	return uint64(elapsed / c.interval), nil
}

// ManualSource is a block source advanced by hand, for tests and replay.
type ManualSource struct {
	height atomic.Uint64
}

// Height returns the manually set height.
func (m *ManualSource) Height(_ context.Context) (uint64, error) {
	return m.height.Load(), nil
}

// SetHeight moves the source to the given block.
func (m *ManualSource) SetHeight(h uint64) {
	m.height.Store(h)
}

// Advance moves the source forward by n blocks.
func (m *ManualSource) Advance(n uint64) {
	m.height.Add(n)
}

// #endregion block-source

// #region epoch-manager

// DefaultBlocksPerEpoch is the epoch tempo in blocks.
const DefaultBlocksPerEpoch = 360

// EpochStatus is a snapshot of where consensus sits in epoch time.
type EpochStatus struct {
	Block uint64 `json:"block"`
	Epoch uint64 `json:"epoch"`
	Phase Phase  `json:"phase"`
}

// EpochManager maps block height onto epochs and phases. The first half of
// an epoch is Open, the next quarter Scoring, the final quarter Committing.
type EpochManager struct {
	source         BlockSource
	blocksPerEpoch uint64
}

// NewEpochManager creates an epoch manager over source. blocksPerEpoch must
// be positive; zero falls back to DefaultBlocksPerEpoch.
func NewEpochManager(source BlockSource, blocksPerEpoch uint64) *EpochManager {
	if blocksPerEpoch == 0 {
		blocksPerEpoch = DefaultBlocksPerEpoch
	}
	return &EpochManager{source: source, blocksPerEpoch: blocksPerEpoch}
}

// Status reads the block source and derives the current epoch and phase.
func (m *EpochManager) Status(ctx context.Context) (EpochStatus, error) {
	block, err := m.source.Height(ctx)
	if err != nil {
		return EpochStatus{}, fmt.Errorf("block height: %w", err)
	}
	position := block % m.blocksPerEpoch
	status := EpochStatus{
		Block: block,
		Epoch: block / m.blocksPerEpoch,
		Phase: PhaseOpen,
	}
	switch {
	case position*4 >= m.blocksPerEpoch*3:
		status.Phase = PhaseCommitting
	case position*2 >= m.blocksPerEpoch:
		status.Phase = PhaseScoring
	}
	return status, nil
}

// #endregion epoch-manager
