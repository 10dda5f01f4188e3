// Package embed is the embedding-adapter boundary: text in, model-tagged
// vector out. The embedding model itself is an external collaborator; this
// package only wraps the call and normalizes its failure modes.
package embed

// #region imports
import (
	"context"
	"errors"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region errors

// Adapter failure taxonomy. Both are transient from the engine's point of
// view: the caller retries with backoff and the polyp stays in Draft.
var (
	// ErrModelUnavailable indicates the provider cannot serve the model.
	ErrModelUnavailable = errors.New("embed: model unavailable")

	// ErrEmbeddingFailed indicates the provider rejected or failed the call.
	ErrEmbeddingFailed = errors.New("embed: embedding failed")
)

// #endregion errors

// #region embedder

// Embedder produces a vector for text within a specific model's space.
type Embedder interface {
	// Embed returns the embedding of text under model. The returned
	// embedding is tagged with the model identity and validated against its
	// declared dimensionality before being returned.
	Embed(ctx context.Context, text string, model polyp.ModelID) (polyp.Embedding, error)
}

// #endregion embedder
