package chromem

import (
	"context"
	"testing"

	"github.com/MarcusD9722/Nova/memory"
	"github.com/MarcusD9722/Nova/memory/embedder/hash"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(Config{Dir: t.TempDir()}, hash.New(0))
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestQueryEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)

	hits, err := idx.Query(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %v, want none", hits)
	}
}

func TestUpsertQueryClampsK(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	err := idx.UpsertBatch(ctx, []memory.Document{
		{ID: "f1", Text: "FACT user favorite_color = blue", Metadata: map[string]string{"kind": "fact"}},
		{ID: "e1", Text: "EVENT 2025-05-01: dentist appointment", Metadata: map[string]string{"kind": "event"}},
	})
	if err != nil {
		t.Fatalf("upsert batch: %v", err)
	}

	hits, err := idx.Query(ctx, "FACT user favorite_color = blue", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "f1" {
		t.Errorf("top hit = %s, want f1", hits[0].ID)
	}
	if hits[0].Distance > 1e-5 {
		t.Errorf("distance of identical text = %f, want ~0", hits[0].Distance)
	}
	if hits[0].Metadata["kind"] != "fact" {
		t.Errorf("metadata = %v", hits[0].Metadata)
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, "p1", "PERSON Ana {}", map[string]string{"kind": "person"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := idx.Upsert(ctx, "p1", `PERSON Ana {"role":"wife"}`, map[string]string{"kind": "person"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, _ := idx.Count(ctx)
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	hits, err := idx.Query(ctx, "Ana", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 || hits[0].Text != `PERSON Ana {"role":"wife"}` {
		t.Errorf("hits = %+v, want replaced text", hits)
	}
}

func TestResetAndDelete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := idx.Upsert(ctx, id, "FACT user note = "+id+"-value", nil); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if err := idx.Delete(ctx, []string{"a"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 2 {
		t.Fatalf("count after delete = %d, want 2", n)
	}

	if err := idx.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Fatalf("count after reset = %d, want 0", n)
	}

	if err := idx.Upsert(ctx, "d", "FACT user note = d", nil); err != nil {
		t.Fatalf("upsert after reset: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}
