package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MarcusD9722/Nova/logging"
)

var log = logging.For("memory")

// Unifier fans writes out to every backend and merges reads across them.
// Writes are serialized by a single mutex; reads never take it and may see
// the index or cache lag behind the store. Cached search rankings are keyed
// by a generation that purges and rebuilds advance.
type Unifier struct {
	store  DurableStore
	index  SemanticIndex
	cache  Cache
	audit  AuditLog
	config *Config

	writeMu   sync.Mutex
	searchGen atomic.Uint64
	now       func() time.Time
}

// NewUnifier creates a Unifier over the given backends.
func NewUnifier(store DurableStore, index SemanticIndex, cache Cache, audit AuditLog, config *Config) *Unifier {
	if config == nil {
		config = DefaultConfig
	}
	return &Unifier{
		store:  store,
		index:  index,
		cache:  cache,
		audit:  audit,
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Counts returns the number of stable records in the store.
func (u *Unifier) Counts(ctx context.Context) (Counts, error) {
	c, err := u.store.CountRecords(ctx)
	if err != nil {
		return Counts{}, storeErr("count records", err)
	}
	return c, nil
}

// IngestTurn records one utterance. Turns go to the store, the audit log and
// the cache; they are never indexed.
func (u *Unifier) IngestTurn(ctx context.Context, conversationID, role, content string) (*Turn, error) {
	switch role {
	case "user", "assistant", "tool":
	default:
		return nil, fmt.Errorf("ingest turn: invalid role %q", role)
	}
	if conversationID == "" {
		return nil, errors.New("ingest turn: conversation id is required")
	}

	turn := &Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      u.now(),
	}

	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	_, err := runSaga(ctx, turn.ID, writeSaga{
		op: KindTurn,
		mandatory: func(ctx context.Context) error {
			return u.store.AddTurn(ctx, turn)
		},
		concurrent: []step{
			u.auditStep(map[string]any{
				"kind":            KindTurn,
				"id":              turn.ID,
				"conversation_id": turn.ConversationID,
				"role":            turn.Role,
				"content":         turn.Content,
			}),
			u.cacheStep("turn:"+turn.ID, turn),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ingest turn: %w", err)
	}
	return turn, nil
}

// AddFact applies the write guard and, if the value is acceptable, writes the
// fact. A rejected value returns (nil, nil): nothing is written and no error
// is reported.
func (u *Unifier) AddFact(ctx context.Context, entity, attribute, value string, confidence float64) (*Fact, error) {
	if !AcceptFactValue(attribute, value) {
		log.WithFields(logrus.Fields{
			"entity":    entity,
			"attribute": attribute,
			"value":     value,
		}).Debug("fact rejected by write guard")
		return nil, nil
	}

	fact := &Fact{
		ID:         uuid.NewString(),
		Entity:     entity,
		Attribute:  attribute,
		Value:      value,
		Confidence: clamp01(confidence),
		CreatedAt:  u.now(),
	}
	doc := factDocument(fact)

	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	_, err := runSaga(ctx, fact.ID, writeSaga{
		op: KindFact,
		mandatory: func(ctx context.Context) error {
			return u.store.AddFact(ctx, fact)
		},
		concurrent: []step{
			u.indexStep(doc),
			u.auditStep(map[string]any{
				"kind":       KindFact,
				"id":         fact.ID,
				"entity":     fact.Entity,
				"attribute":  fact.Attribute,
				"value":      fact.Value,
				"confidence": fact.Confidence,
			}),
			u.cacheStep("fact:"+fact.ID, fact),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add fact: %w", err)
	}
	return fact, nil
}

// UpsertPerson writes or replaces the attributes of the person called name.
// The returned person carries the id the store kept.
func (u *Unifier) UpsertPerson(ctx context.Context, name string, attributes map[string]string) (*Person, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("upsert person: name is required")
	}
	if attributes == nil {
		attributes = map[string]string{}
	}

	person := &Person{
		ID:         uuid.NewString(),
		Name:       name,
		Attributes: attributes,
		CreatedAt:  u.now(),
	}

	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	var stored *Person
	_, err := runSaga(ctx, person.ID, writeSaga{
		op: KindPerson,
		mandatory: func(ctx context.Context) error {
			p, err := u.store.UpsertPerson(ctx, person)
			if err != nil {
				return err
			}
			stored = p
			return nil
		},
		concurrent: []step{
			u.auditStep(map[string]any{
				"kind":       KindPerson,
				"name":       person.Name,
				"attributes": person.Attributes,
			}),
			u.cacheStep("person:"+strings.ToLower(name), attributes),
		},
		dependent: []step{{
			backend: backendIndex,
			run: func(ctx context.Context) error {
				d := personDocument(stored)
				return u.index.Upsert(ctx, d.ID, d.Text, d.Metadata)
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("upsert person: %w", err)
	}
	return stored, nil
}

// AddEvent writes a dated note.
func (u *Unifier) AddEvent(ctx context.Context, date, note string) (*Event, error) {
	event := &Event{
		ID:        uuid.NewString(),
		Date:      date,
		Note:      note,
		CreatedAt: u.now(),
	}
	doc := eventDocument(event)

	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	_, err := runSaga(ctx, event.ID, writeSaga{
		op: KindEvent,
		mandatory: func(ctx context.Context) error {
			return u.store.AddEvent(ctx, event)
		},
		concurrent: []step{
			u.indexStep(doc),
			u.auditStep(map[string]any{
				"kind": KindEvent,
				"id":   event.ID,
				"date": event.Date,
				"note": event.Note,
			}),
			u.cacheStep("event:"+event.ID, event),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add event: %w", err)
	}
	return event, nil
}

// GetFacts lists facts for entity, optionally narrowed to attribute.
func (u *Unifier) GetFacts(ctx context.Context, entity, attribute string, limit int, newestFirst bool) ([]Fact, error) {
	if limit <= 0 {
		limit = 25
	}
	facts, err := u.store.GetFacts(ctx, entity, attribute, limit, newestFirst)
	if err != nil {
		return nil, storeErr("get facts", err)
	}
	return facts, nil
}

// LatestFact returns the newest fact for entity/attribute, or ErrNotFound.
func (u *Unifier) LatestFact(ctx context.Context, entity, attribute string) (*Fact, error) {
	facts, err := u.GetFacts(ctx, entity, attribute, 1, true)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, ErrNotFound
	}
	return &facts[0], nil
}

func (u *Unifier) indexStep(doc Document) step {
	return step{
		backend: backendIndex,
		run: func(ctx context.Context) error {
			return u.index.Upsert(ctx, doc.ID, doc.Text, doc.Metadata)
		},
	}
}

func (u *Unifier) auditStep(record map[string]any) step {
	return step{
		backend: backendAudit,
		run: func(ctx context.Context) error {
			return u.audit.AppendAudit(ctx, record)
		},
	}
}

func (u *Unifier) cacheStep(key string, value any) step {
	return step{
		backend: backendCache,
		run: func(ctx context.Context) error {
			b, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", key, err)
			}
			return u.cache.Set(ctx, key, b, u.config.RecordTTL)
		},
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDurableStore, err)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Config holds Unifier tuning.
type Config struct {
	// SearchTTL is how long ranked search results are cached.
	// Default: 120s
	SearchTTL time.Duration

	// RecordTTL is how long freshly written records are cached.
	// Default: 24h
	RecordTTL time.Duration

	// MaxSearchTerms bounds the per-term store queries.
	// Default: 8
	MaxSearchTerms int

	// FactsPerTerm, PeoplePerTerm and EventsPerTerm bound each substring query.
	// Default: 12, 8, 8
	FactsPerTerm  int
	PeoplePerTerm int
	EventsPerTerm int

	// RecentTurns is how many turns of the conversation are scanned.
	// Default: 60
	RecentTurns int

	// TurnWindow drops turns older than this from search.
	// Default: 2h
	TurnWindow time.Duration

	// MinTurnQueryLen is the normalized query length below which recent
	// turns are not consulted.
	// Default: 8
	MinTurnQueryLen int
}

// DefaultConfig returns the defaults used when no Config is given.
var DefaultConfig = &Config{
	SearchTTL:       120 * time.Second,
	RecordTTL:       24 * time.Hour,
	MaxSearchTerms:  8,
	FactsPerTerm:    12,
	PeoplePerTerm:   8,
	EventsPerTerm:   8,
	RecentTurns:     60,
	TurnWindow:      2 * time.Hour,
	MinTurnQueryLen: 8,
}
