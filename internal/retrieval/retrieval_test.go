package retrieval_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/garnizeh/talentflow/internal/retrieval"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		v, ok := f.vectors[txt]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func TestTopKOrdering(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"grpc\nbuilt a grpc gateway":     {1, 0, 0},
		"etl\nbatch etl pipelines":       {0, 1, 0},
		"web\nreact storefront":          {-1, 0, 0},
		"golang grpc microservices":      {0.9, 0.1, 0},
	}}
	ix := retrieval.New(emb, 2, nil)

	items := []retrieval.Item{
		{ID: "grpc", Title: "grpc", Text: "built a grpc gateway"},
		{ID: "etl", Title: "etl", Text: "batch etl pipelines"},
		{ID: "web", Title: "web", Text: "react storefront"},
	}
	ctx := context.Background()
	if err := ix.Load(ctx, items); err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	if ix.Size() != 3 {
		t.Fatalf("expected 3 items, got %d", ix.Size())
	}

	matches, err := ix.TopK(ctx, "golang grpc microservices")
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Item.ID != "grpc" {
		t.Fatalf("expected grpc first, got %s", matches[0].Item.ID)
	}
	if matches[0].Score <= matches[1].Score {
		t.Fatalf("matches not ordered: %v", matches)
	}
}

func TestTopKEmptyIndexAndQuery(t *testing.T) {
	emb := &fakeEmbedder{}
	ix := retrieval.New(emb, 0, nil)
	ctx := context.Background()

	matches, err := ix.TopK(ctx, "anything")
	if err != nil || matches != nil {
		t.Fatalf("expected empty result on empty index, got %v %v", matches, err)
	}
	if emb.calls != 0 {
		t.Fatalf("empty index must not call the embedder")
	}

	matches, err = ix.TopK(ctx, "   ")
	if err != nil || matches != nil {
		t.Fatalf("expected empty result on blank query, got %v %v", matches, err)
	}
}

func TestTopKEmbedFailureSurfaces(t *testing.T) {
	emb := &fakeEmbedder{}
	ix := retrieval.New(emb, 2, nil)
	ctx := context.Background()
	if err := ix.Load(ctx, []retrieval.Item{{ID: "a", Title: "a", Text: "a"}}); err != nil {
		t.Fatalf("load: %v", err)
	}

	emb.err = errors.New("embedder down")
	if _, err := ix.TopK(ctx, "query"); err == nil {
		t.Fatalf("expected embed failure to surface")
	}
}

func TestLoadCorpusFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portfolio.yaml")
	data := `items:
  - id: grpc
    title: gRPC gateway
    text: Built a gRPC gateway for a fintech client.
    tags: [go, grpc]
  - id: etl
    title: ETL pipelines
    text: Batch ETL pipelines with checkpointing.
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	items, err := retrieval.LoadCorpusFile(path)
	if err != nil {
		t.Fatalf("load corpus file: %v", err)
	}
	if len(items) != 2 || items[0].ID != "grpc" || len(items[0].Tags) != 2 {
		t.Fatalf("unexpected items: %#v", items)
	}

	// missing text is rejected
	if err := os.WriteFile(path, []byte("items:\n  - id: bad\n    title: Bad\n"), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	if _, err := retrieval.LoadCorpusFile(path); err == nil {
		t.Fatalf("expected error for item without text")
	}
}
