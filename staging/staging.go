// Package staging holds facts that wait for the user's approval before they
// are written to memory, keyed by conversation.
package staging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/memory"
)

var log = logging.For("staging")

// DefaultTTL is how long an untouched conversation's pending facts live.
const DefaultTTL = 30 * time.Minute

// PendingFact is a candidate awaiting confirmation.
type PendingFact struct {
	Entity     string  `json:"entity"`
	Attribute  string  `json:"attribute"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`

	// Blurb is shown to the user when asking for approval.
	Blurb string `json:"blurb"`
}

// Store holds pending facts per conversation.
type Store interface {
	// Stage appends facts and refreshes the conversation's expiry.
	Stage(conversationID string, facts ...PendingFact)
	Pending(conversationID string) []PendingFact
	// Take removes and returns the conversation's facts.
	Take(conversationID string) []PendingFact
	Discard(conversationID string)
}

// MemoryStore is an in-process Store. Conversations nobody touches for the
// TTL are dropped by a janitor.
type MemoryStore struct {
	mu sync.Mutex
	c  *cache.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store with the given TTL, or DefaultTTL when
// ttl <= 0.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{c: cache.New(ttl, ttl/3)}
}

func (s *MemoryStore) Stage(conversationID string, facts ...PendingFact) {
	if len(facts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur []PendingFact
	if v, ok := s.c.Get(conversationID); ok {
		cur = v.([]PendingFact)
	}
	next := make([]PendingFact, 0, len(cur)+len(facts))
	next = append(next, cur...)
	next = append(next, facts...)
	s.c.SetDefault(conversationID, next)
}

func (s *MemoryStore) Pending(conversationID string) []PendingFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.c.Get(conversationID); ok {
		return append([]PendingFact(nil), v.([]PendingFact)...)
	}
	return nil
}

func (s *MemoryStore) Take(conversationID string) []PendingFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.c.Get(conversationID)
	if !ok {
		return nil
	}
	s.c.Delete(conversationID)
	return v.([]PendingFact)
}

func (s *MemoryStore) Discard(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Delete(conversationID)
}

// Outcome classifies a reply to an approval prompt.
type Outcome int

const (
	None Outcome = iota
	Confirmed
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Denied:
		return "denied"
	}
	return "none"
}

// Decision is the result of Resolve.
type Decision struct {
	Outcome Outcome
	// Committed counts facts the committer accepted.
	Committed int
}

// Committer writes an approved fact. A nil fact with a nil error means the
// value was rejected and nothing was written.
type Committer interface {
	AddFact(ctx context.Context, entity, attribute, value string, confidence float64) (*memory.Fact, error)
}

var (
	confirmExact    = []string{"yes", "y", "sure", "ok", "okay", "remember", "save", "save it", "remember that"}
	confirmContains = []string{"yes, remember", "please remember", "go ahead and save", "store that", "remember this"}
	denyExact       = []string{"no", "n", "nope", "don't", "do not", "dont", "don't save", "do not save"}
	denyContains    = []string{"don't remember", "do not remember", "please don't save", "no thanks"}
)

// IsConfirmation reports whether utterance approves pending facts.
func IsConfirmation(utterance string) bool {
	return matches(utterance, confirmExact, confirmContains)
}

// IsDenial reports whether utterance rejects pending facts.
func IsDenial(utterance string) bool {
	return matches(utterance, denyExact, denyContains)
}

func matches(utterance string, exact, contains []string) bool {
	q := strings.ToLower(strings.TrimSpace(utterance))
	for _, e := range exact {
		if q == e {
			return true
		}
	}
	for _, c := range contains {
		if strings.Contains(q, c) {
			return true
		}
	}
	return false
}

// Resolve applies utterance to the conversation's pending facts. A
// confirmation commits every fact and clears the queue; a denial clears it;
// anything else leaves it unchanged. Confirmation is checked first.
func Resolve(ctx context.Context, store Store, conversationID, utterance string, committer Committer) (Decision, error) {
	if len(store.Pending(conversationID)) == 0 {
		return Decision{Outcome: None}, nil
	}

	switch {
	case IsConfirmation(utterance):
		facts := store.Take(conversationID)
		d := Decision{Outcome: Confirmed}
		var errs []error
		for _, f := range facts {
			fact, err := committer.AddFact(ctx, f.Entity, f.Attribute, f.Value, f.Confidence)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if fact != nil {
				d.Committed++
			}
		}
		log.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"staged":          len(facts),
			"committed":       d.Committed,
		}).Info("pending facts confirmed")
		return d, errors.Join(errs...)

	case IsDenial(utterance):
		store.Discard(conversationID)
		log.WithField("conversation_id", conversationID).Info("pending facts discarded")
		return Decision{Outcome: Denied}, nil
	}
	return Decision{Outcome: None}, nil
}
