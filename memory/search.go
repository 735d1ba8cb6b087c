package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/metrics"
)

// Source weights for merged search results.
const (
	scoreFact     = 0.95
	scorePerson   = 0.90
	scoreEvent    = 0.60
	scoreSemantic = 0.85
	scoreTurn     = 0.15

	turnDecay = 1800.0 // seconds
)

var termPattern = regexp.MustCompile(`[a-z0-9']+`)

// SearchTerms extracts the query terms used for substring matching: tokens
// of three or more characters, plus the short tokens "ai" and "id", in
// first-seen order without duplicates.
func SearchTerms(qNorm string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, tok := range termPattern.FindAllString(qNorm, -1) {
		if len(tok) < 3 && tok != "ai" && tok != "id" {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}

// Search returns at most limit hits for q, ranked by descending score.
func (u *Unifier) Search(ctx context.Context, q, conversationID string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	start := time.Now()

	qNorm := strings.ToLower(q)
	terms := SearchTerms(qNorm)

	keyBody := qNorm
	if len(terms) > 0 {
		keyBody = strings.Join(terms, "|")
	}
	cacheKey := fmt.Sprintf("search:%d:%s:%s:%d", u.searchGen.Load(), conversationID, keyBody, limit)

	if hits, ok := u.cachedSearch(ctx, cacheKey); ok {
		metrics.SearchLatency.WithLabelValues("hit").Observe(time.Since(start).Seconds())
		return hits, nil
	}

	m := newHitMerger()

	lookups := terms
	if len(lookups) > u.config.MaxSearchTerms {
		lookups = lookups[:u.config.MaxSearchTerms]
	}
	if len(lookups) == 0 {
		lookups = []string{q}
	}
	for _, term := range lookups {
		if err := u.searchStore(ctx, m, term); err != nil {
			return nil, err
		}
	}

	if len(qNorm) >= u.config.MinTurnQueryLen && len(terms) > 0 {
		if err := u.searchTurns(ctx, m, conversationID, terms); err != nil {
			return nil, err
		}
	}

	u.searchIndex(ctx, m, q, limit)

	hits := m.ranked(limit)

	if b, err := json.Marshal(hits); err == nil {
		if err := u.cache.Set(ctx, cacheKey, b, u.config.SearchTTL); err != nil {
			log.WithError(err).Warn("cache search results")
		}
	}
	if err := u.audit.AppendSnapshot(ctx, map[string]any{
		"kind":            "search",
		"q":               q,
		"conversation_id": conversationID,
		"results":         hits,
	}); err != nil {
		log.WithError(err).Warn("append search snapshot")
	}

	metrics.SearchLatency.WithLabelValues("miss").Observe(time.Since(start).Seconds())
	log.WithFields(logrus.Fields{
		"q":     logging.Truncate(q, 50),
		"terms": len(terms),
		"hits":  len(hits),
	}).Debug("search")
	return hits, nil
}

func (u *Unifier) cachedSearch(ctx context.Context, key string) ([]Hit, bool) {
	b, ok, err := u.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("read cached search")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var hits []Hit
	if err := json.Unmarshal(b, &hits); err != nil || len(hits) == 0 {
		return nil, false
	}
	return hits, true
}

func (u *Unifier) searchStore(ctx context.Context, m *hitMerger, term string) error {
	facts, err := u.store.SearchFacts(ctx, term, u.config.FactsPerTerm)
	if err != nil {
		return storeErr("search facts", err)
	}
	for i := range facts {
		m.add(Hit{
			ID:         facts[i].ID,
			Kind:       KindFact,
			Text:       FactText(&facts[i]),
			Score:      scoreFact,
			Provenance: map[string]string{"backend": backendStore, "table": "facts"},
		})
	}

	people, err := u.store.SearchPeople(ctx, term, u.config.PeoplePerTerm)
	if err != nil {
		return storeErr("search people", err)
	}
	for i := range people {
		m.add(Hit{
			ID:         people[i].ID,
			Kind:       KindPerson,
			Text:       PersonText(&people[i]),
			Score:      scorePerson,
			Provenance: map[string]string{"backend": backendStore, "table": "people"},
		})
	}

	events, err := u.store.SearchEvents(ctx, term, u.config.EventsPerTerm)
	if err != nil {
		return storeErr("search events", err)
	}
	for i := range events {
		m.add(Hit{
			ID:         events[i].ID,
			Kind:       KindEvent,
			Text:       EventText(&events[i]),
			Score:      scoreEvent,
			Provenance: map[string]string{"backend": backendStore, "table": "events"},
		})
	}
	return nil
}

func (u *Unifier) searchTurns(ctx context.Context, m *hitMerger, conversationID string, terms []string) error {
	turns, err := u.store.RecentTurns(ctx, conversationID, u.config.RecentTurns)
	if err != nil {
		return storeErr("recent turns", err)
	}

	now := u.now()
	window := u.config.TurnWindow.Seconds()
	for _, t := range turns {
		content := strings.ToLower(t.Content)
		if !containsAny(content, terms) {
			continue
		}
		age := math.Max(1, now.Sub(t.CreatedAt).Seconds())
		if age > window {
			continue
		}
		m.add(Hit{
			ID:         t.ID,
			Kind:       KindTurn,
			Text:       t.Role + ": " + t.Content,
			Score:      scoreTurn / (1 + age/turnDecay),
			Provenance: map[string]string{"backend": backendStore, "table": "turns"},
		})
	}
	return nil
}

// searchIndex adds nearest neighbours from the index. Index failures are
// logged and otherwise ignored.
func (u *Unifier) searchIndex(ctx context.Context, m *hitMerger, q string, limit int) {
	results, err := u.index.Query(ctx, q, limit)
	if err != nil {
		log.WithError(err).Warn("semantic query failed")
		return
	}
	for _, r := range results {
		kind := r.Metadata["kind"]
		if strings.HasPrefix(kind, KindTurn) || r.Metadata["role"] == "assistant" {
			continue
		}
		prov := map[string]string{"backend": backendIndex}
		for k, v := range r.Metadata {
			prov[k] = v
		}
		m.add(Hit{
			ID:         r.ID,
			Kind:       kind,
			Text:       r.Text,
			Score:      scoreSemantic * math.Max(0, 1-r.Distance),
			Provenance: prov,
		})
	}
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// hitMerger keeps the best-scoring hit per id in first-seen order.
type hitMerger struct {
	hits  []Hit
	index map[string]int
}

func newHitMerger() *hitMerger {
	return &hitMerger{index: make(map[string]int)}
}

func (m *hitMerger) add(h Hit) {
	if i, ok := m.index[h.ID]; ok {
		if h.Score > m.hits[i].Score {
			m.hits[i] = h
		}
		return
	}
	m.index[h.ID] = len(m.hits)
	m.hits = append(m.hits, h)
}

func (m *hitMerger) ranked(limit int) []Hit {
	out := make([]Hit, len(m.hits))
	copy(out, m.hits)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
