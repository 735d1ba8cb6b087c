// Package hash provides a deterministic, model-free embedder. Each
// whitespace-separated term is hashed into one signed bucket of a fixed-size
// vector, which is then scaled to unit length.
package hash

import (
	"context"
	"encoding/binary"
	"math"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/MarcusD9722/Nova/memory"
)

const (
	// DefaultDimensions matches the small sentence-transformer models so the
	// index can be rebuilt with either embedder.
	DefaultDimensions = 384

	maxTerms = 256
)

// Embedder is the hashing embedder. The zero value is not usable; call New.
type Embedder struct {
	dims int
}

var _ memory.Embedder = (*Embedder)(nil)

// New returns an Embedder producing vectors of size dims, or
// DefaultDimensions when dims <= 0.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// EmbedDocuments embeds each text.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(t)
	}
	return out, nil
}

// EmbedQuery embeds text exactly like a document.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

func (e *Embedder) embed(text string) []float32 {
	vec := make([]float32, e.dims)

	terms := strings.Fields(text)
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}
	for _, term := range terms {
		idx, sign := bucket(term, e.dims)
		vec[idx] += sign
	}

	normalize(vec)
	return vec
}

// bucket maps a term to a vector index and a sign using an 8-byte blake2b
// digest: bytes 0..3 pick the index, bit 0 of byte 4 the sign.
func bucket(term string, dims int) (int, float32) {
	h, _ := blake2b.New(8, nil) // only fails for size > 64 or a long key
	h.Write([]byte(term))
	sum := h.Sum(nil)

	idx := int(binary.LittleEndian.Uint32(sum[0:4]) % uint32(dims))
	if sum[4]&1 == 0 {
		return idx, 1
	}
	return idx, -1
}

// normalize scales vec to unit length in place. A zero vector stays zero.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
