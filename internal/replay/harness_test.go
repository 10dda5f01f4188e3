package replay

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reefipedia/reef/internal/polyp"
)

// #region helpers

func testHarness(t *testing.T) *Harness {
	t.Helper()
	h, err := NewHarness(filepath.Join(t.TempDir(), "replay.db"), 100)
	if err != nil {
		t.Fatalf("NewHarness: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func richContent(topic string) string {
	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "%s%03d ", topic, i)
	}
	return b.String()
}

func testFixtureModel() FixtureModel {
	return FixtureModel{Provider: "local", Name: "hash-embed", WeightsHash: "dev", Dimensions: 32}
}

func block(h uint64) FixtureStep {
	return FixtureStep{Block: &h}
}

// #endregion helpers

func TestReplayHappyPathHardens(t *testing.T) {
	h := testHarness(t)

	f := &Fixture{
		Description:    "submit, score, harden",
		BlocksPerEpoch: 100,
		Model:          testFixtureModel(),
		Steps: []FixtureStep{
			{Submit: &FixtureSubmit{Ref: "fact", Content: richContent("coral")}},
			block(50),
			{Sweep: true},
			block(80),
			{Sweep: true},
		},
		Expected: []FixtureExpected{
			{Ref: "fact", State: string(polyp.StateHardened)},
		},
	}

	summary, err := h.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Passed {
		t.Fatalf("fixture failed: %v", summary.Failures)
	}
	if len(summary.Sweeps) != 2 {
		t.Fatalf("sweeps = %d, want 2", len(summary.Sweeps))
	}
	if summary.Sweeps[1].Hardened != 1 {
		t.Fatalf("hardened = %d, want 1", summary.Sweeps[1].Hardened)
	}
}

func TestReplayDuplicateRejected(t *testing.T) {
	h := testHarness(t)
	content := richContent("axiom")

	f := &Fixture{
		Description:    "duplicate never approved",
		BlocksPerEpoch: 100,
		Model:          testFixtureModel(),
		Steps: []FixtureStep{
			{Submit: &FixtureSubmit{Ref: "original", Content: content}},
			block(50),
			{Sweep: true},
			{Submit: &FixtureSubmit{Ref: "copy", Content: content}},
			{Sweep: true},
			{Sweep: true},
			{Sweep: true},
		},
		Expected: []FixtureExpected{
			{Ref: "original", State: string(polyp.StateApproved)},
			{Ref: "copy", State: string(polyp.StateRejected)},
		},
	}

	summary, err := h.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Passed {
		t.Fatalf("fixture failed: %v", summary.Failures)
	}
}

func TestReplayMoltLinksSuccessor(t *testing.T) {
	h := testHarness(t)

	f := &Fixture{
		Description:    "molt supersedes",
		BlocksPerEpoch: 100,
		Model:          testFixtureModel(),
		Steps: []FixtureStep{
			{Submit: &FixtureSubmit{Ref: "v1", Content: richContent("sponge")}},
			{Molt: &FixtureMolt{Ref: "v1", Successor: FixtureSubmit{Ref: "v2", Content: richContent("sponges")}}},
		},
		Expected: []FixtureExpected{
			{Ref: "v1", State: string(polyp.StateMolted)},
			{Ref: "v2", State: string(polyp.StateSoft)},
		},
	}

	summary, err := h.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Passed {
		t.Fatalf("fixture failed: %v", summary.Failures)
	}
}

func TestReplayFailureReported(t *testing.T) {
	h := testHarness(t)

	f := &Fixture{
		Description:    "unmet expectation",
		BlocksPerEpoch: 100,
		Model:          testFixtureModel(),
		Steps: []FixtureStep{
			{Submit: &FixtureSubmit{Ref: "fact", Content: richContent("coral")}},
		},
		Expected: []FixtureExpected{
			{Ref: "fact", State: string(polyp.StateHardened)},
		},
	}

	summary, err := h.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Passed || len(summary.Failures) != 1 {
		t.Fatalf("summary = %+v, want one failure", summary)
	}
}
