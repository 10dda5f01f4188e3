package polyp

// #region scores

// Scores holds the five independent [0,1] quality dimensions of a polyp.
type Scores struct {
	ZKValidity        float64 `json:"zk_validity"`
	SemanticQuality   float64 `json:"semantic_quality"`
	Novelty           float64 `json:"novelty"`
	SourceCredibility float64 `json:"source_credibility"`
	EmbeddingQuality  float64 `json:"embedding_quality"`
}

// #endregion scores

// #region weights

// ScoreWeights combines the five dimensions into one composite.
type ScoreWeights struct {
	ZKValidity        float64 `yaml:"zk_validity"`
	SemanticQuality   float64 `yaml:"semantic_quality"`
	Novelty           float64 `yaml:"novelty"`
	SourceCredibility float64 `yaml:"source_credibility"`
	EmbeddingQuality  float64 `yaml:"embedding_quality"`
}

// DefaultScoreWeights returns the protocol default weight vector.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		ZKValidity:        0.30,
		SemanticQuality:   0.25,
		Novelty:           0.15,
		SourceCredibility: 0.15,
		EmbeddingQuality:  0.15,
	}
}

// Sum returns the total of the weight vector. Must equal 1.0.
func (w ScoreWeights) Sum() float64 {
	return w.ZKValidity + w.SemanticQuality + w.Novelty + w.SourceCredibility + w.EmbeddingQuality
}

// Valid reports whether the weights sum to 1.0 within tolerance.
func (w ScoreWeights) Valid() bool {
	diff := w.Sum() - 1.0
	return diff < 1e-9 && diff > -1e-9
}

// #endregion weights

// #region weighted

// Weighted computes the composite score as a fixed-weight dot product.
// Each dimension is independently clamped to [0,1] before weighting.
// The result is never renormalized.
func (s Scores) Weighted(w ScoreWeights) float64 {
	return clamp01(s.ZKValidity)*w.ZKValidity +
		clamp01(s.SemanticQuality)*w.SemanticQuality +
		clamp01(s.Novelty)*w.Novelty +
		clamp01(s.SourceCredibility)*w.SourceCredibility +
		clamp01(s.EmbeddingQuality)*w.EmbeddingQuality
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion weighted
