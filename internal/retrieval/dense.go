package retrieval

import (
	"context"
	"errors"
	"math"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// denseIndex is the embedding half of the hybrid index.
type denseIndex struct {
	Model      string      `json:"model"`
	Chunks     []IndexEntry `json:"chunks"`
	Embeddings [][]float32 `json:"embeddings"`
}

// embedBatchSize bounds how many chunks go into one embeddings request.
const embedBatchSize = 64

func buildDenseIndex(ctx context.Context, client embeddingClient, model string, chunks []IndexEntry) (*denseIndex, error) {
	idx := &denseIndex{
		Model:      model,
		Chunks:     chunks,
		Embeddings: make([][]float32, 0, len(chunks)),
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}

		req := &openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(model),
			Input: texts,
		}
		resp, err := client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(resp.Data) != len(texts) {
			return nil, errors.New("retrieval: embedding response size mismatch")
		}
		for _, item := range resp.Data {
			idx.Embeddings = append(idx.Embeddings, item.Embedding)
		}
	}
	return idx, nil
}

// rank returns chunk indexes ordered by cosine similarity to the query
// embedding, best first.
func (d *denseIndex) rank(query []float32) []int {
	scores := make([]float64, len(d.Embeddings))
	for i, emb := range d.Embeddings {
		scores[i] = cosineSimilarity(query, emb)
	}

	ranked := make([]int, len(scores))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})
	return ranked
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
