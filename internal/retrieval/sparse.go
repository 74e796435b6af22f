package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// sparseIndex is the lexical half of the hybrid index: per-chunk term
// frequencies plus the corpus statistics BM25 needs.
type sparseIndex struct {
	Chunks    []IndexEntry     `json:"chunks"`
	TermFreqs []map[string]int `json:"term_freqs"`
	DocFreq   map[string]int   `json:"doc_freq"`
	DocLens   []int            `json:"doc_lens"`
	AvgDocLen float64          `json:"avg_doc_len"`
}

func buildSparseIndex(chunks []IndexEntry) *sparseIndex {
	idx := &sparseIndex{
		Chunks:    chunks,
		TermFreqs: make([]map[string]int, len(chunks)),
		DocFreq:   make(map[string]int),
		DocLens:   make([]int, len(chunks)),
	}

	total := 0
	for i, chunk := range chunks {
		terms := tokenize(chunk.Text)
		freqs := make(map[string]int, len(terms))
		for _, term := range terms {
			freqs[term]++
		}
		idx.TermFreqs[i] = freqs
		idx.DocLens[i] = len(terms)
		total += len(terms)
		for term := range freqs {
			idx.DocFreq[term]++
		}
	}
	if len(chunks) > 0 {
		idx.AvgDocLen = float64(total) / float64(len(chunks))
	}
	return idx
}

// rank returns chunk indexes ordered by BM25 score, best first. Chunks
// scoring zero are omitted.
func (s *sparseIndex) rank(query string) []int {
	terms := tokenize(query)
	if len(terms) == 0 || len(s.Chunks) == 0 {
		return nil
	}

	n := float64(len(s.Chunks))
	scores := make([]float64, len(s.Chunks))
	for _, term := range terms {
		df, ok := s.DocFreq[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i, freqs := range s.TermFreqs {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(s.DocLens[i])/s.AvgDocLen
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	ranked := make([]int, 0, len(scores))
	for i, score := range scores {
		if score > 0 {
			ranked = append(ranked, i)
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})
	return ranked
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
