// Package replay runs scripted ingestion scenarios against a real engine
// stack with a deterministic embedder and a manual block clock. Fixtures
// capture a sequence of submissions, block advances, and sweeps, plus the
// lifecycle state each polyp must end in — regression scenarios for the
// consensus pipeline that run entirely offline.
package replay

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region fixture-types

// Fixture is the top-level JSON structure for a replay scenario.
type Fixture struct {
	Description    string            `json:"description"`
	BlocksPerEpoch uint64            `json:"blocks_per_epoch"`
	Model          FixtureModel      `json:"model"`
	Steps          []FixtureStep     `json:"steps"`
	Expected       []FixtureExpected `json:"expected"`
}

// FixtureModel pins the embedding space the scenario runs in.
type FixtureModel struct {
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	WeightsHash string `json:"weights_hash"`
	Dimensions  int    `json:"dimensions"`
}

// ToModelID converts the fixture model to the domain type.
func (m FixtureModel) ToModelID() polyp.ModelID {
	return polyp.ModelID{
		Provider:    m.Provider,
		Name:        m.Name,
		WeightsHash: m.WeightsHash,
		Dimensions:  m.Dimensions,
	}
}

// FixtureStep is one scripted action. Exactly one field is set.
type FixtureStep struct {
	// Submit ingests content under a symbolic ref for later assertions.
	Submit *FixtureSubmit `json:"submit,omitempty"`
	// Molt supersedes the polyp at Ref with a corrected submission.
	Molt *FixtureMolt `json:"molt,omitempty"`
	// Block moves the manual clock to an absolute height.
	Block *uint64 `json:"block,omitempty"`
	// Sweep runs one consensus sweep.
	Sweep bool `json:"sweep,omitempty"`
}

// FixtureSubmit is a scripted submission.
type FixtureSubmit struct {
	Ref        string `json:"ref"`
	Content    string `json:"content"`
	CreatorDID string `json:"creator_did"`
}

// FixtureMolt supersedes an earlier submission.
type FixtureMolt struct {
	Ref       string        `json:"ref"`
	Successor FixtureSubmit `json:"successor"`
}

// FixtureExpected asserts the final lifecycle state of one ref.
type FixtureExpected struct {
	Ref   string `json:"ref"`
	State string `json:"state"`
}

// #endregion fixture-types

// #region loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, f.validate()
}

func (f *Fixture) validate() error {
	if f.Model.Dimensions <= 0 {
		return fmt.Errorf("fixture: model dimensions must be positive")
	}
	refs := make(map[string]bool)
	for i, step := range f.Steps {
		set := 0
		if step.Submit != nil {
			set++
			if step.Submit.Ref == "" {
				return fmt.Errorf("fixture: step %d submit has no ref", i)
			}
			refs[step.Submit.Ref] = true
		}
		if step.Molt != nil {
			set++
			if !refs[step.Molt.Ref] {
				return fmt.Errorf("fixture: step %d molts unknown ref %q", i, step.Molt.Ref)
			}
			refs[step.Molt.Successor.Ref] = true
		}
		if step.Block != nil {
			set++
		}
		if step.Sweep {
			set++
		}
		if set != 1 {
			return fmt.Errorf("fixture: step %d must set exactly one action, has %d", i, set)
		}
	}
	for _, exp := range f.Expected {
		if !refs[exp.Ref] {
			return fmt.Errorf("fixture: expectation references unknown ref %q", exp.Ref)
		}
		if !polyp.State(exp.State).Valid() {
			return fmt.Errorf("fixture: expectation for %q names unknown state %q", exp.Ref, exp.State)
		}
	}
	return nil
}

// #endregion loader
