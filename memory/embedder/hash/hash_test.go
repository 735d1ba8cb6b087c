package hash

import (
	"context"
	"math"
	"strings"
	"testing"
)

func norm(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

func TestEmbedDeterministicUnitVector(t *testing.T) {
	e := New(0)
	ctx := context.Background()

	a, err := e.EmbedQuery(ctx, "FACT user favorite_color = blue")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	docs, err := e.EmbedDocuments(ctx, []string{"FACT user favorite_color = blue"})
	if err != nil {
		t.Fatalf("embed documents: %v", err)
	}

	if len(a) != DefaultDimensions {
		t.Fatalf("len = %d, want %d", len(a), DefaultDimensions)
	}
	for i := range a {
		if a[i] != docs[0][i] {
			t.Fatalf("query and document embeddings differ at %d", i)
		}
	}
	if n := norm(a); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", n)
	}
}

func TestEmbedEmptyTextIsZero(t *testing.T) {
	v, err := New(16).EmbedQuery(context.Background(), "   ")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if n := norm(v); n != 0 {
		t.Errorf("norm = %f, want 0", n)
	}
}

func TestEmbedCapsTerms(t *testing.T) {
	e := New(0)
	ctx := context.Background()

	base := strings.Repeat("alpha ", maxTerms)
	a, _ := e.EmbedQuery(ctx, base)
	b, _ := e.EmbedQuery(ctx, base+"omega extra words")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("terms past the cap changed the embedding at %d", i)
		}
	}
}

func TestSharedTermsAreCloser(t *testing.T) {
	e := New(0)
	ctx := context.Background()

	q, _ := e.EmbedQuery(ctx, "favorite color blue")
	near, _ := e.EmbedQuery(ctx, "my favorite color is blue")
	far, _ := e.EmbedQuery(ctx, "dentist appointment tuesday")

	dot := func(x, y []float32) float64 {
		var s float64
		for i := range x {
			s += float64(x[i]) * float64(y[i])
		}
		return s
	}
	if dot(q, near) <= dot(q, far) {
		t.Errorf("similarity near=%f far=%f, want near > far", dot(q, near), dot(q, far))
	}
}

func TestEmbedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(0).EmbedDocuments(ctx, []string{"x"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
