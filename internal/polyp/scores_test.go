package polyp

import (
	"math"
	"testing"
)

func TestDefaultWeightsSumToOne(t *testing.T) {
	w := DefaultScoreWeights()
	if !w.Valid() {
		t.Fatalf("default weights sum to %f, want 1.0", w.Sum())
	}
}

func TestWeightedIsPureDotProduct(t *testing.T) {
	cases := []struct {
		name   string
		scores Scores
		want   float64
	}{
		{"all ones", Scores{1, 1, 1, 1, 1}, 1.0},
		{"all zeros", Scores{}, 0.0},
		{"zk only", Scores{ZKValidity: 1}, 0.30},
		{"semantic only", Scores{SemanticQuality: 1}, 0.25},
		{"mixed", Scores{1, 0.8, 0.5, 0.5, 0.5}, 0.30 + 0.25*0.8 + 0.15*0.5 + 0.15*0.5 + 0.15*0.5},
	}
	w := DefaultScoreWeights()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.scores.Weighted(w)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("Weighted = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestWeightedClampsDimensions(t *testing.T) {
	w := DefaultScoreWeights()
	s := Scores{ZKValidity: 2.5, SemanticQuality: -1}
	got := s.Weighted(w)
	if math.Abs(got-0.30) > 1e-12 {
		t.Fatalf("Weighted = %f, want 0.30 (zk clamped to 1, semantic to 0)", got)
	}
}

func TestWeightedIsDeterministic(t *testing.T) {
	w := DefaultScoreWeights()
	s := Scores{0.9, 0.7, 0.3, 0.5, 0.6}
	first := s.Weighted(w)
	for i := 0; i < 100; i++ {
		if s.Weighted(w) != first {
			t.Fatal("Weighted is not deterministic")
		}
	}
}
