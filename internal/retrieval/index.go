// Package retrieval builds and queries a per-bot hybrid search index over
// an uploaded document: a dense embedding index and a sparse BM25 index
// over the same chunk set, merged at query time by weighted reciprocal
// rank fusion.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"

	"github.com/docbot-ai/platform/internal/observability/metrics"
	"github.com/docbot-ai/platform/pkg/logging"
)

var retrievalTracer = otel.Tracer("docbot.internal.retrieval")

// ErrIndexNotReady means a query arrived before a successful build: one or
// both persisted artifacts are missing. The whole query fails rather than
// silently degrading to a single retriever.
var ErrIndexNotReady = errors.New("retrieval: index not built for this bot")

const (
	denseFile  = "dense.json"
	sparseFile = "sparse.json"
)

// IndexEntry is one chunk of the source document plus its provenance.
type IndexEntry struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Result is a ranked retrieval hit.
type Result struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// BuildResult reports whether a build did work or found a finished index.
type BuildResult int

const (
	BuildCompleted BuildResult = iota
	BuildSkipped
)

// Weights configures how much each sub-index contributes to the fused
// ranking. Dense and sparse contribute equally by default.
type Weights struct {
	Dense  float64
	Sparse float64
}

// rrfK dampens the influence of rank position in reciprocal rank fusion.
const rrfK = 60

// Service builds and queries hybrid indexes. Chunking is configured once
// here, not negotiated per call.
type Service struct {
	client       embeddingClient
	model        string
	chunkSize    int
	chunkOverlap int
	weights      Weights
	logger       *logging.Logger
	metrics      *metrics.RetrievalMetrics
}

// Option configures the Service.
type Option func(*Service)

// WithChunking overrides the default 800/100 chunk size and overlap.
func WithChunking(size, overlap int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
		if overlap >= 0 {
			s.chunkOverlap = overlap
		}
	}
}

// WithWeights overrides the default equal ensemble weights.
func WithWeights(w Weights) Option {
	return func(s *Service) {
		if w.Dense > 0 || w.Sparse > 0 {
			s.weights = w
		}
	}
}

// WithMetrics attaches retrieval metrics.
func WithMetrics(m *metrics.RetrievalMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a retrieval service around an embeddings client.
func New(client embeddingClient, model string, logger *logging.Logger, opts ...Option) *Service {
	if client == nil {
		panic("retrieval: embedding client cannot be nil")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		client:       client,
		model:        model,
		chunkSize:    800,
		chunkOverlap: 100,
		weights:      Weights{Dense: 0.5, Sparse: 0.5},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build extracts the document, chunks it (unless split is false), embeds
// the chunks, and persists the dense and sparse artifacts under indexDir.
// If both artifacts already exist the build is a no-op: embedding work is
// never duplicated. Callers serialize concurrent builds per bot.
func (s *Service) Build(ctx context.Context, docPath, indexDir string, split bool) (BuildResult, error) {
	ctx, span := retrievalTracer.Start(ctx, "retrieval.build")
	defer span.End()

	if s.built(indexDir) {
		s.logger.Info("index already built, skipping", "dir", indexDir)
		s.metrics.ObserveBuild("skipped")
		return BuildSkipped, nil
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		s.metrics.ObserveBuild("error")
		return 0, fmt.Errorf("retrieval: create index dir: %w", err)
	}

	text, err := ExtractText(docPath)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveBuild("error")
		return 0, err
	}

	var pieces []string
	if split {
		pieces = SplitText(text, s.chunkSize, s.chunkOverlap)
	} else if trimmed := strings.TrimSpace(text); trimmed != "" {
		pieces = []string{trimmed}
	}
	if len(pieces) == 0 {
		s.metrics.ObserveBuild("error")
		return 0, fmt.Errorf("retrieval: document %s produced no text", docPath)
	}

	source := filepath.Base(docPath)
	chunks := make([]IndexEntry, len(pieces))
	for i, piece := range pieces {
		chunks[i] = IndexEntry{Text: piece, Source: source}
	}

	dense, err := buildDenseIndex(ctx, s.client, s.model, chunks)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveBuild("error")
		return 0, fmt.Errorf("retrieval: embed chunks: %w", err)
	}
	sparse := buildSparseIndex(chunks)

	if err := writeJSON(filepath.Join(indexDir, sparseFile), sparse); err != nil {
		s.metrics.ObserveBuild("error")
		return 0, err
	}
	// The dense artifact lands last: its presence marks the build complete.
	if err := writeJSON(filepath.Join(indexDir, denseFile), dense); err != nil {
		s.metrics.ObserveBuild("error")
		return 0, err
	}

	s.logger.Info("index built", "dir", indexDir, "chunks", len(chunks), "source", source)
	s.metrics.ObserveBuild("built")
	return BuildCompleted, nil
}

// Query loads both persisted sub-indexes, ranks candidates from each, and
// fuses them into a single list capped at topK. A missing sub-index fails
// the whole query with ErrIndexNotReady.
func (s *Service) Query(ctx context.Context, indexDir, text string, topK int) ([]Result, error) {
	start := time.Now()
	ctx, span := retrievalTracer.Start(ctx, "retrieval.query")
	defer span.End()

	idx, err := s.load(indexDir)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	req := &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: []string{text},
	}
	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	if len(resp.Data) != 1 {
		return nil, errors.New("retrieval: embedding response size mismatch")
	}

	denseRanks := idx.dense.rank(resp.Data[0].Embedding)
	sparseRanks := idx.sparse.rank(text)
	fused := fuseRankings(s.weights, denseRanks, sparseRanks)

	if len(fused) > topK {
		fused = fused[:topK]
	}
	results := make([]Result, len(fused))
	for i, chunkIdx := range fused {
		entry := idx.dense.Chunks[chunkIdx]
		results[i] = Result{Text: entry.Text, Source: entry.Source}
	}

	s.metrics.ObserveQueryLatency(time.Since(start).Seconds())
	return results, nil
}

// hybridIndex pairs the two loaded sub-indexes over one chunk set.
type hybridIndex struct {
	dense  *denseIndex
	sparse *sparseIndex
}

func (s *Service) built(indexDir string) bool {
	for _, name := range []string{denseFile, sparseFile} {
		if _, err := os.Stat(filepath.Join(indexDir, name)); err != nil {
			return false
		}
	}
	return true
}

func (s *Service) load(indexDir string) (*hybridIndex, error) {
	var dense denseIndex
	if err := readJSON(filepath.Join(indexDir, denseFile), &dense); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotReady
		}
		return nil, fmt.Errorf("retrieval: load dense index: %w", err)
	}
	var sparse sparseIndex
	if err := readJSON(filepath.Join(indexDir, sparseFile), &sparse); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrIndexNotReady
		}
		return nil, fmt.Errorf("retrieval: load sparse index: %w", err)
	}
	return &hybridIndex{dense: &dense, sparse: &sparse}, nil
}

// fuseRankings merges ranked candidate lists by weighted reciprocal rank
// fusion: each list contributes weight/(k+rank) per candidate.
func fuseRankings(w Weights, denseRanks, sparseRanks []int) []int {
	scores := make(map[int]float64)
	for rank, idx := range denseRanks {
		scores[idx] += w.Dense / float64(rrfK+rank+1)
	}
	for rank, idx := range sparseRanks {
		scores[idx] += w.Sparse / float64(rrfK+rank+1)
	}

	fused := make([]int, 0, len(scores))
	for idx := range scores {
		fused = append(fused, idx)
	}
	// Deterministic: score descending, chunk index ascending on ties.
	sort.Slice(fused, func(a, b int) bool {
		if scores[fused[a]] == scores[fused[b]] {
			return fused[a] < fused[b]
		}
		return scores[fused[a]] > scores[fused[b]]
	})
	return fused
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("retrieval: encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("retrieval: create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("retrieval: write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("retrieval: close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("retrieval: publish artifact: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
