package consensus

// #region imports
import (
	"fmt"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region config

// Thresholds are the weighted-score bars a polyp must clear to advance.
type Thresholds struct {
	// Review is the bar for Soft -> UnderReview.
	Review float64 `yaml:"review"`
	// Approval is the bar for UnderReview -> Approved.
	Approval float64 `yaml:"approval"`
}

// DefaultThresholds returns the protocol default promotion bars.
func DefaultThresholds() Thresholds {
	return Thresholds{Review: 0.55, Approval: 0.70}
}

// GateConfig tunes promotion decisions.
type GateConfig struct {
	Thresholds Thresholds         `yaml:"thresholds"`
	Weights    polyp.ScoreWeights `yaml:"weights"`
	// NoveltyFloor is the similarity-derived novelty below which a polyp is
	// treated as a duplicate and never approved.
	NoveltyFloor float64 `yaml:"novelty_floor"`
	// MaxReviewCycles bounds how many scoring sweeps a polyp may sit in
	// UnderReview before it is rejected instead of held again.
	MaxReviewCycles int `yaml:"max_review_cycles"`
}

// DefaultGateConfig returns the gate defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Thresholds:      DefaultThresholds(),
		Weights:         polyp.DefaultScoreWeights(),
		NoveltyFloor:    1e-6,
		MaxReviewCycles: 3,
	}
}

// #endregion config

// #region decision

// Action is the gate's verdict for one polyp in one sweep.
type Action string

const (
	// ActionAdvance moves the polyp to its next lifecycle state.
	ActionAdvance Action = "advance"
	// ActionHold leaves the polyp where it is for another sweep.
	ActionHold Action = "hold"
	// ActionReject moves the polyp to Rejected.
	ActionReject Action = "reject"
)

// Decision is the outcome of evaluating one polyp.
type Decision struct {
	Action Action
	Reason string
	// Score is the weighted composite, 0 when a hard veto fired.
	Score float64
	// Vetoed marks decisions made by a hard veto rather than the score.
	Vetoed bool
}

// #endregion decision

// #region gate

// Gate turns trust scores into lifecycle decisions. Hard vetoes fire before
// any score is weighed: a failed proof or a duplicate never advances no
// matter how strong its other dimensions are.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate decides what happens to a polyp in the given state with the given
// scores. cycles is how many scoring sweeps the polyp has already spent in
// UnderReview.
//
// Rejection is only reachable from Draft (proof failure) and UnderReview
// (proof failure, or scoring out after bounded cycles). A duplicate is never
// approved: zero novelty blocks the approval bar, and the cycle bound turns
// the block into a rejection.
func (g *Gate) Evaluate(state polyp.State, scores polyp.Scores, cycles int) Decision {
	weighted := scores.Weighted(g.config.Weights)

	switch state {
	case polyp.StateDraft:
		// Drafts are gated on the proof alone; scoring happens later.
		if scores.ZKValidity == 0 {
			return Decision{
				Action: ActionReject,
				Reason: "proof failed verification",
				Vetoed: true,
			}
		}
		return Decision{
			Action: ActionAdvance,
			Reason: "proof verified",
			Score:  weighted,
		}
	case polyp.StateSoft:
		if weighted >= g.config.Thresholds.Review {
			return Decision{
				Action: ActionAdvance,
				Reason: fmt.Sprintf("weighted score %.4f meets review bar %.2f", weighted, g.config.Thresholds.Review),
				Score:  weighted,
			}
		}
		return Decision{
			Action: ActionHold,
			Reason: fmt.Sprintf("weighted score %.4f below review bar %.2f", weighted, g.config.Thresholds.Review),
			Score:  weighted,
		}
	case polyp.StateUnderReview:
		if scores.ZKValidity == 0 {
			return Decision{
				Action: ActionReject,
				Reason: "proof failed verification",
				Vetoed: true,
			}
		}
		duplicate := scores.Novelty <= g.config.NoveltyFloor
		if weighted >= g.config.Thresholds.Approval && !duplicate {
			return Decision{
				Action: ActionAdvance,
				Reason: fmt.Sprintf("weighted score %.4f meets approval bar %.2f", weighted, g.config.Thresholds.Approval),
				Score:  weighted,
			}
		}
		reason := fmt.Sprintf("weighted score %.4f below approval bar %.2f", weighted, g.config.Thresholds.Approval)
		if duplicate {
			reason = "duplicate of existing searchable content"
		}
		if cycles+1 >= g.config.MaxReviewCycles {
			return Decision{
				Action: ActionReject,
				Reason: fmt.Sprintf("%s after %d review cycles", reason, cycles+1),
				Score:  weighted,
				Vetoed: duplicate,
			}
		}
		return Decision{
			Action: ActionHold,
			Reason: reason,
			Score:  weighted,
		}
	default:
		return Decision{
			Action: ActionHold,
			Reason: fmt.Sprintf("state %s is not swept", state),
			Score:  weighted,
		}
	}
}

// #endregion gate
