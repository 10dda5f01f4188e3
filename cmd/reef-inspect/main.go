package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/reefipedia/reef/internal/audit"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to reef.db")
	stateFilter := flag.String("state", "", "filter list to one lifecycle state")
	id := flag.String("id", "", "show single polyp detail with audit trail")
	last := flag.Int("last", 20, "show N polyps per state")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: reef-inspect --db path/to/reef.db [--state State] [--id uuid] [--last N] [--json]")
		os.Exit(2)
	}

	st, err := store.New(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	if *id != "" {
		err = runDetailMode(ctx, st, *id, *jsonOut)
	} else {
		err = runListMode(ctx, st, *stateFilter, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	ID         string  `json:"id"`
	State      string  `json:"state"`
	Creator    string  `json:"creator_did"`
	FinalScore float64 `json:"final_score"`
	Cycles     int     `json:"review_cycles"`
	CID        string  `json:"cid,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func runListMode(ctx context.Context, st *store.Store, stateFilter string, last int, jsonOut bool) error {
	counts, err := st.CountByState(ctx)
	if err != nil {
		return err
	}

	states := []polyp.State{
		polyp.StateDraft, polyp.StateSoft, polyp.StateUnderReview,
		polyp.StateApproved, polyp.StateHardened, polyp.StateRejected, polyp.StateMolted,
	}
	if stateFilter != "" {
		s := polyp.State(stateFilter)
		if !s.Valid() {
			return fmt.Errorf("unknown state %q", stateFilter)
		}
		states = []polyp.State{s}
	}

	var rows []listRow
	for _, s := range states {
		polyps, err := st.ListByState(ctx, s, "", last)
		if err != nil {
			return err
		}
		for _, p := range polyps {
			rows = append(rows, toListRow(p))
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "no polyps found")
		return nil
	}

	fmt.Printf("%-12s  %-12s  %-24s  %6s  %6s  %s\n",
		"Polyp", "State", "Creator", "Score", "Cycles", "Created")
	fmt.Printf("%-12s+-%-12s+-%-24s+-%6s+-%6s+-%s\n",
		"------------", "------------", "------------------------", "------", "------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-12s  %-12s  %-24s  %6.3f  %6d  %s\n",
			shortID(r.ID), r.State, truncate(r.Creator, 24), r.FinalScore, r.Cycles, r.CreatedAt)
	}

	fmt.Printf("\nState counts:\n")
	for _, s := range states {
		fmt.Printf("  %-12s %d\n", s, counts[s])
	}
	return nil
}

func toListRow(p polyp.Polyp) listRow {
	r := listRow{
		ID:        p.ID.String(),
		State:     string(p.State),
		Creator:   p.Subject.Provenance.CreatorDID,
		CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if p.Consensus != nil {
		r.FinalScore = p.Consensus.FinalScore
		r.Cycles = p.Consensus.ReviewCycles
	}
	if p.Hardening != nil {
		r.CID = p.Hardening.CID
	}
	return r
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Polyp polyp.Polyp   `json:"polyp"`
	Audit []audit.Entry `json:"audit"`
}

func runDetailMode(ctx context.Context, st *store.Store, rawID string, jsonOut bool) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("parse id %q: %w", rawID, err)
	}

	p, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	trail, err := audit.ListByPolyp(ctx, st.DB(), id.String())
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(detailOutput{Polyp: p, Audit: trail})
	}

	fmt.Printf("Polyp:      %s\n", p.ID)
	fmt.Printf("State:      %s\n", p.State)
	fmt.Printf("Creator:    %s\n", p.Subject.Provenance.CreatorDID)
	fmt.Printf("Created:    %s\n", p.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Content:    %s\n", truncate(p.Subject.Payload.Content, 72))
	fmt.Printf("Model:      %s\n", p.Subject.Vector.ModelID.SpaceKey())
	if p.SuccessorID != nil {
		fmt.Printf("Successor:  %s\n", p.SuccessorID)
	}
	if p.Consensus != nil {
		fmt.Printf("\nConsensus:\n")
		fmt.Printf("  Epoch:        %d\n", p.Consensus.Epoch)
		fmt.Printf("  Final Score:  %.4f\n", p.Consensus.FinalScore)
		fmt.Printf("  Cycles:       %d\n", p.Consensus.ReviewCycles)
		fmt.Printf("  Hardened:     %v\n", p.Consensus.Hardened)
	}
	if p.Hardening != nil {
		fmt.Printf("\nHardening:\n")
		fmt.Printf("  CID:          %s\n", p.Hardening.CID)
		fmt.Printf("  Merkle Root:  %s\n", p.Hardening.MerkleRoot)
		fmt.Printf("  Epoch:        %d\n", p.Hardening.Epoch)
		fmt.Printf("  Hardened At:  %s\n", p.Hardening.HardenedAt.Format("2006-01-02T15:04:05Z"))
	}

	fmt.Printf("\nAudit trail:\n")
	for _, e := range trail {
		line := fmt.Sprintf("  %s  %-12s -> %-12s  %s",
			e.CreatedAt.Format("2006-01-02T15:04:05Z"), e.FromState, e.ToState, e.Event)
		if e.Reason != "" {
			line += "  (" + e.Reason + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-1] + "…"
	}
	return s
}

// #endregion output
