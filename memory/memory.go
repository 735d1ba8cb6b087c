package memory

import (
	"context"
	"time"
)

// Turn is one utterance in a conversation. Turns are append-only.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // user, assistant, tool
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Fact is a durable (entity, attribute, value) observation. Several facts may
// share an entity/attribute pair; the newest one is "latest".
type Fact struct {
	ID         string    `json:"id"`
	Entity     string    `json:"entity"`
	Attribute  string    `json:"attribute"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Person is keyed by Name. Upserts replace Attributes and keep the first ID.
type Person struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Event is a dated note.
type Event struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is a ranked search result. Hits are never persisted.
type Hit struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Text       string            `json:"text"`
	Score      float64           `json:"score"`
	Provenance map[string]string `json:"provenance"`
}

// Counts tallies the stable record kinds (turns excluded).
type Counts struct {
	Facts  int `json:"facts"`
	People int `json:"people"`
	Events int `json:"events"`
}

// Total returns the sum of all kinds.
func (c Counts) Total() int {
	return c.Facts + c.People + c.Events
}

// FactFilter selects facts for purging. One of ValueIn or ValueLike must be
// set or nothing matches.
type FactFilter struct {
	Entity    string
	Attribute string   // empty = any attribute
	ValueIn   []string // compared case-insensitively
	ValueLike string   // SQL LIKE pattern, compared case-insensitively
}

// DurableStore is the relational source of truth. Its failures are fatal to
// the enclosing operation.
type DurableStore interface {
	EnsureConversation(ctx context.Context, id string) error
	AddTurn(ctx context.Context, turn *Turn) error
	AddFact(ctx context.Context, fact *Fact) error
	UpsertPerson(ctx context.Context, person *Person) (*Person, error)
	AddEvent(ctx context.Context, event *Event) error

	// RecentTurns returns newest turns first. An empty conversationID
	// means any conversation.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)

	SearchFacts(ctx context.Context, substr string, limit int) ([]Fact, error)
	SearchPeople(ctx context.Context, substr string, limit int) ([]Person, error)
	SearchEvents(ctx context.Context, substr string, limit int) ([]Event, error)

	GetFacts(ctx context.Context, entity, attribute string, limit int, newestFirst bool) ([]Fact, error)

	CountRecords(ctx context.Context) (Counts, error)

	// AllFacts, AllPeople and AllEvents treat limit <= 0 as unbounded.
	AllFacts(ctx context.Context, limit int) ([]Fact, error)
	AllPeople(ctx context.Context, limit int) ([]Person, error)
	AllEvents(ctx context.Context, limit int) ([]Event, error)

	FindFactIDs(ctx context.Context, filter FactFilter, limit int) ([]string, error)
	DeleteFactsByIDs(ctx context.Context, ids []string) (int, error)

	Close() error
}

// IndexHit is a nearest-neighbour match from the SemanticIndex.
type IndexHit struct {
	ID       string
	Text     string
	Metadata map[string]string
	Distance float64 // 1 - cosine similarity
}

// SemanticIndex is a derived, disposable similarity index keyed by
// DurableStore record id.
type SemanticIndex interface {
	Upsert(ctx context.Context, id, text string, metadata map[string]string) error
	UpsertBatch(ctx context.Context, docs []Document) error
	Query(ctx context.Context, text string, k int) ([]IndexHit, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// Embedder converts text to vectors. EmbedDocuments and EmbedQuery may
// differ for asymmetric models; the hashing embedder treats them alike.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Cache is an advisory TTL key-value store. A miss means "not cached", never
// "does not exist".
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Close() error
}

// AuditLog appends timestamped records to write-only streams.
type AuditLog interface {
	AppendAudit(ctx context.Context, record map[string]any) error
	AppendSnapshot(ctx context.Context, record map[string]any) error
}
