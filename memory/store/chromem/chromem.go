// Package chromem implements memory.SemanticIndex on chromem-go, a pure Go
// embedded vector database.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"

	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/memory"
)

var log = logging.For("chromem")

// DefaultCollection is the collection name used when Config leaves it empty.
const DefaultCollection = "nova_memory"

// Config configures an Index.
type Config struct {
	// Dir persists the database. Empty keeps everything in memory.
	Dir string

	// Collection name.
	// Default: "nova_memory"
	Collection string

	// Compress gzips persisted documents.
	Compress bool
}

// Index is a single-collection semantic index.
type Index struct {
	db       *chromem.DB
	name     string
	embedder memory.Embedder

	mu  sync.RWMutex
	col *chromem.Collection
}

var _ memory.SemanticIndex = (*Index)(nil)

// New opens (or creates) the index described by cfg. Embeddings are computed
// with embedder before documents reach chromem.
func New(cfg Config, embedder memory.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("chromem: embedder is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	var db *chromem.DB
	if cfg.Dir != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Dir, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	idx := &Index{db: db, name: cfg.Collection, embedder: embedder}
	col, err := idx.openCollection()
	if err != nil {
		return nil, err
	}
	idx.col = col

	log.WithFields(logrus.Fields{
		"dir":        cfg.Dir,
		"collection": cfg.Collection,
		"documents":  col.Count(),
	}).Debug("semantic index opened")
	return idx, nil
}

func (x *Index) openCollection() (*chromem.Collection, error) {
	col, err := x.db.GetOrCreateCollection(x.name, nil, x.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}
	return col, nil
}

// embeddingFunc lets chromem embed on its own when a document arrives
// without a vector.
func (x *Index) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return x.embedder.EmbedQuery(ctx, text)
	}
}

func (x *Index) collection() *chromem.Collection {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.col
}

// Upsert inserts or replaces the document with the given id.
func (x *Index) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	vecs, err := x.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("%w: embed: %w", memory.ErrSemanticIndex, err)
	}
	if len(vecs) != 1 || isZero(vecs[0]) {
		return fmt.Errorf("%w: empty embedding for %s", memory.ErrSemanticIndex, id)
	}

	err = x.collection().AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: vecs[0],
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("%w: add document: %w", memory.ErrSemanticIndex, err)
	}
	return nil
}

// UpsertBatch embeds all docs in one call and adds them concurrently.
// Documents whose text embeds to the zero vector are skipped.
func (x *Index) UpsertBatch(ctx context.Context, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := x.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embed batch: %w", memory.ErrSemanticIndex, err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d documents",
			memory.ErrSemanticIndex, len(vecs), len(docs))
	}

	batch := make([]chromem.Document, 0, len(docs))
	for i, d := range docs {
		if isZero(vecs[i]) {
			log.WithField("id", d.ID).Warn("skipping document with empty embedding")
			continue
		}
		batch = append(batch, chromem.Document{
			ID:        d.ID,
			Content:   d.Text,
			Embedding: vecs[i],
			Metadata:  d.Metadata,
		})
	}
	if len(batch) == 0 {
		return nil
	}

	if err := x.collection().AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: add documents: %w", memory.ErrSemanticIndex, err)
	}
	return nil
}

// Query returns up to k nearest documents to text.
func (x *Index) Query(ctx context.Context, text string, k int) ([]memory.IndexHit, error) {
	col := x.collection()

	// chromem rejects nResults larger than the collection.
	n := k
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	vec, err := x.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", memory.ErrSemanticIndex, err)
	}
	if isZero(vec) {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", memory.ErrSemanticIndex, err)
	}

	hits := make([]memory.IndexHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, memory.IndexHit{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: r.Metadata,
			Distance: 1 - float64(r.Similarity),
		})
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (x *Index) Count(ctx context.Context) (int, error) {
	return x.collection().Count(), nil
}

// Reset drops and recreates the collection. A persistent directory stays in
// place.
func (x *Index) Reset(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.db.DeleteCollection(x.name); err != nil {
		return fmt.Errorf("%w: delete collection: %w", memory.ErrSemanticIndex, err)
	}
	col, err := x.openCollection()
	if err != nil {
		return fmt.Errorf("%w: %w", memory.ErrSemanticIndex, err)
	}
	x.col = col
	return nil
}

// Delete removes documents by id. Unknown ids are ignored.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.collection().Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("%w: delete: %w", memory.ErrSemanticIndex, err)
	}
	return nil
}

// Close is a no-op; chromem flushes each write as it happens.
func (x *Index) Close() error {
	return nil
}

func isZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
