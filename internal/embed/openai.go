package embed

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region client

// OpenAIEmbedder calls the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
}

// NewOpenAIEmbedder creates an embedder for the given API key.
func NewOpenAIEmbedder(apiKey string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: openai.NewClient(apiKey)}
}

// NewOpenAIEmbedderWithClient creates an embedder with an injected client.
// Used for testing against a stub server.
func NewOpenAIEmbedderWithClient(client *openai.Client) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client}
}

// #endregion client

// #region embed

// Embed requests an embedding of text under model.Name and tags the result
// with the full model identity. Provider errors map onto the adapter
// taxonomy: model/availability problems become ErrModelUnavailable,
// everything else ErrEmbeddingFailed.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, model polyp.ModelID) (polyp.Embedding, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model.Name),
	})
	if err != nil {
		return polyp.Embedding{}, classify(err)
	}
	if len(resp.Data) == 0 {
		return polyp.Embedding{}, fmt.Errorf("%w: provider returned no data", ErrEmbeddingFailed)
	}

	emb := polyp.Embedding{
		Values:        resp.Data[0].Embedding,
		ModelID:       model,
		Quantization:  "float32",
		Normalization: "none",
	}
	if len(emb.Values) != model.Dimensions {
		return polyp.Embedding{}, fmt.Errorf("%w: provider returned %d dimensions, model declares %d",
			ErrEmbeddingFailed, len(emb.Values), model.Dimensions)
	}
	return emb, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusNotFound, http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
}

// #endregion embed
