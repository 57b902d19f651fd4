// Package retrieval holds the portfolio corpus and answers similarity
// queries used to ground response generation. The corpus is embedded once
// at load time; lookups embed only the query. Lookups are read-only.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultTopK is the number of grounding items returned per query.
const DefaultTopK = 2

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Item is one portfolio artifact (project, case study, testimonial).
type Item struct {
	ID    string   `yaml:"id" json:"id"`
	Title string   `yaml:"title" json:"title"`
	Text  string   `yaml:"text" json:"text"`
	Tags  []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Match is an item with its similarity to the query.
type Match struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"`
}

// Index is an in-memory vector index over the portfolio corpus.
type Index struct {
	embedder Embedder
	logger   *slog.Logger
	topK     int

	mu      sync.RWMutex
	items   []Item
	vectors [][]float32
}

func New(embedder Embedder, topK int, logger *slog.Logger) *Index {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{embedder: embedder, topK: topK, logger: logger}
}

// LoadCorpusFile reads portfolio items from a YAML file.
func LoadCorpusFile(path string) ([]Item, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}

	var doc struct {
		Items []Item `yaml:"items"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse corpus file: %w", err)
	}
	for i, it := range doc.Items {
		if strings.TrimSpace(it.Text) == "" {
			return nil, fmt.Errorf("corpus item %d (%s) has no text", i, it.ID)
		}
	}
	return doc.Items, nil
}

// Load embeds the corpus and replaces the index contents atomically.
func (ix *Index) Load(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		ix.mu.Lock()
		ix.items, ix.vectors = nil, nil
		ix.mu.Unlock()
		return nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Title + "\n" + it.Text
	}

	vecs, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}

	ix.mu.Lock()
	ix.items = items
	ix.vectors = vecs
	ix.mu.Unlock()

	ix.logger.Info("portfolio corpus loaded", "items", len(items))
	return nil
}

// Size returns the number of indexed items.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// TopK returns the most similar portfolio items for a query, best first.
// An empty index yields an empty result, not an error.
func (ix *Index) TopK(ctx context.Context, query string) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.items) == 0 {
		return nil, nil
	}

	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q := vecs[0]

	matches := make([]Match, 0, len(ix.items))
	for i, it := range ix.items {
		matches = append(matches, Match{Item: it, Score: cosine(q, ix.vectors[i])})
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })

	if len(matches) > ix.topK {
		matches = matches[:ix.topK]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
