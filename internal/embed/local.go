package embed

// #region imports
import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region local-embedder

// LocalEmbedder is a deterministic, offline embedder: it hashes token
// n-grams into a fixed-dimension bag and l2-normalizes the result. Vectors
// carry no semantic meaning beyond lexical overlap, which is exactly what
// fixtures and tests need — identical text always embeds identically, and
// near-identical text lands nearby.
type LocalEmbedder struct{}

// NewLocalEmbedder creates a deterministic hash embedder.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{}
}

// Embed hashes the text's tokens into model.Dimensions buckets.
func (e *LocalEmbedder) Embed(_ context.Context, text string, model polyp.ModelID) (polyp.Embedding, error) {
	values := make([]float32, model.Dimensions)
	for _, tok := range tokenize(text) {
		sum := sha256.Sum256([]byte(tok))
		bucket := int(binary.LittleEndian.Uint32(sum[:4])) % model.Dimensions
		if bucket < 0 {
			bucket += model.Dimensions
		}
		sign := float32(1)
		if sum[4]&1 == 1 {
			sign = -1
		}
		values[bucket] += sign
	}

	var sumSq float64
	for _, v := range values {
		sumSq += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sumSq); norm > 0 {
		for i := range values {
			values[i] = float32(float64(values[i]) / norm)
		}
	} else if model.Dimensions > 0 {
		values[0] = 1 // empty text embeds to a fixed unit vector
	}

	return polyp.Embedding{
		Values:        values,
		ModelID:       model,
		Quantization:  "float32",
		Normalization: "l2",
	}, nil
}

// #endregion local-embedder

// #region tokenize

func tokenize(text string) []string {
	var tokens []string
	var cur []rune
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			cur = append(cur, r)
		case r >= 'A' && r <= 'Z':
			cur = append(cur, r+('a'-'A'))
		default:
			if len(cur) > 0 {
				tokens = append(tokens, string(cur))
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		tokens = append(tokens, string(cur))
	}
	return tokens
}

// #endregion tokenize
