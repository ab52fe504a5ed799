package memory

import "context"

// Embedder fetches an embedding vector for a piece of text from an external
// API; only consulted when use_embeddings is requested, otherwise Jaccard
// similarity over tokenized content is the default (§4.9).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
