package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/reefipedia/reef/internal/consensus"
	"github.com/reefipedia/reef/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	dbPath := flag.String("db", "", "replay database path (default: temp file, discarded)")
	jsonOut := flag.Bool("json", false, "output run summary as JSON")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: reef-replay --fixture path/to/fixture.json [--db path] [--json]")
		os.Exit(2)
	}

	os.Exit(run(*fixturePath, *dbPath, *jsonOut))
}

func run(fixturePath, dbPath string, jsonOut bool) int {
	f, err := replay.LoadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	if dbPath == "" {
		dir, err := os.MkdirTemp("", "reef-replay-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "temp dir: %v\n", err)
			return 2
		}
		defer os.RemoveAll(dir)
		dbPath = filepath.Join(dir, "replay.db")
	}

	blocksPerEpoch := f.BlocksPerEpoch
	if blocksPerEpoch == 0 {
		blocksPerEpoch = consensus.DefaultBlocksPerEpoch
	}

	h, err := replay.NewHarness(dbPath, blocksPerEpoch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build harness: %v\n", err)
		return 2
	}
	defer h.Close()

	summary, err := h.Run(context.Background(), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run fixture: %v\n", err)
		return 2
	}

	if jsonOut {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal summary: %v\n", err)
			return 2
		}
		fmt.Println(string(data))
	} else {
		printSummary(summary)
	}

	if !summary.Passed {
		return 1
	}
	return 0
}

// #endregion main

// #region output

func printSummary(s replay.Summary) {
	fmt.Printf("Fixture: %s\n\n", s.Description)

	fmt.Printf("%-12s| %-36s | %s\n", "Ref", "Polyp", "State")
	fmt.Printf("%-12s+%-38s+%s\n",
		"------------", "--------------------------------------", "------------")
	for _, r := range s.Refs {
		fmt.Printf("%-12s| %-36s | %s\n", r.Ref, r.ID, r.State)
	}

	if len(s.Sweeps) > 0 {
		fmt.Printf("\nSweeps:\n")
		for i, rep := range s.Sweeps {
			fmt.Printf("  %d: epoch=%d phase=%s scored=%d advanced=%d held=%d rejected=%d hardened=%d\n",
				i+1, rep.Epoch, rep.Phase, rep.Scored, rep.Advanced, rep.Held, rep.Rejected, rep.Hardened)
		}
	}

	if len(s.Failures) > 0 {
		fmt.Printf("\nFailures:\n")
		for _, f := range s.Failures {
			fmt.Printf("  %s\n", f)
		}
	}

	if s.Passed {
		fmt.Printf("\nResult: PASS\n")
	} else {
		fmt.Printf("\nResult: FAIL\n")
	}
}

// #endregion output
