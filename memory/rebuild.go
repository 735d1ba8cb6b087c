package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const defaultPurgeLimit = 500

// RebuildSemanticIndex resets the index and re-inserts every fact, person and
// event from the store. It holds the write lock so no write lands between the
// reset and the reinsertion.
func (u *Unifier) RebuildSemanticIndex(ctx context.Context) (Counts, error) {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	return u.rebuildLocked(ctx)
}

func (u *Unifier) rebuildLocked(ctx context.Context) (Counts, error) {
	facts, err := u.store.AllFacts(ctx, 0)
	if err != nil {
		return Counts{}, storeErr("rebuild: all facts", err)
	}
	people, err := u.store.AllPeople(ctx, 0)
	if err != nil {
		return Counts{}, storeErr("rebuild: all people", err)
	}
	events, err := u.store.AllEvents(ctx, 0)
	if err != nil {
		return Counts{}, storeErr("rebuild: all events", err)
	}

	docs := make([]Document, 0, len(facts)+len(people)+len(events))
	for i := range facts {
		docs = append(docs, factDocument(&facts[i]))
	}
	for i := range people {
		docs = append(docs, personDocument(&people[i]))
	}
	for i := range events {
		docs = append(docs, eventDocument(&events[i]))
	}

	if err := u.index.Reset(ctx); err != nil {
		return Counts{}, fmt.Errorf("rebuild: %w: %w", ErrSemanticIndex, err)
	}
	if err := u.index.UpsertBatch(ctx, docs); err != nil {
		return Counts{}, fmt.Errorf("rebuild: %w: %w", ErrSemanticIndex, err)
	}

	u.searchGen.Add(1)
	counts := Counts{Facts: len(facts), People: len(people), Events: len(events)}
	if err := u.audit.AppendSnapshot(ctx, map[string]any{
		"kind":   "semantic_index_rebuild",
		"facts":  counts.Facts,
		"people": counts.People,
		"events": counts.Events,
	}); err != nil {
		log.WithError(err).Warn("append rebuild snapshot")
	}

	log.WithFields(logrus.Fields{
		"facts":  counts.Facts,
		"people": counts.People,
		"events": counts.Events,
	}).Info("semantic index rebuilt")
	return counts, nil
}

// Initialize rebuilds the index when the store holds records but the index
// is empty (or cannot be counted). It reports whether a rebuild ran.
func (u *Unifier) Initialize(ctx context.Context) (bool, Counts, error) {
	stable, err := u.store.CountRecords(ctx)
	if err != nil {
		return false, Counts{}, storeErr("initialize", err)
	}

	indexed, err := u.index.Count(ctx)
	if err != nil {
		log.WithError(err).Warn("count semantic index, assuming empty")
		indexed = 0
	}

	if stable.Total() <= 0 || indexed > 0 {
		return false, Counts{}, nil
	}

	log.WithFields(logrus.Fields{
		"records": stable.Total(),
		"indexed": indexed,
	}).Info("semantic index empty, rebuilding")
	counts, err := u.RebuildSemanticIndex(ctx)
	if err != nil {
		return false, Counts{}, err
	}
	return true, counts, nil
}

// PurgeRequest selects facts of one entity for deletion. Nothing is deleted
// unless Apply is set.
type PurgeRequest struct {
	Entity    string
	Attribute string
	ValueIn   []string
	// ValueLike is a LIKE pattern; "*" is accepted as a wildcard.
	ValueLike string
	Apply     bool
	// Limit caps matched ids.
	// Default: 500
	Limit int
}

// PurgeResult reports what a purge matched and deleted.
type PurgeResult struct {
	Entity    string   `json:"entity"`
	Attribute string   `json:"attribute,omitempty"`
	ValueIn   []string `json:"value_in,omitempty"`
	ValueLike string   `json:"value_ilike,omitempty"`
	DryRun    bool     `json:"dry_run"`
	Matched   int      `json:"matched"`
	Deleted   int      `json:"deleted"`
	IDs       []string `json:"ids"`
}

// PurgeFacts finds facts matching req and, when req.Apply is set, deletes
// them from the store and best-effort from the index and cache.
func (u *Unifier) PurgeFacts(ctx context.Context, req PurgeRequest) (*PurgeResult, error) {
	if strings.TrimSpace(req.Entity) == "" {
		return nil, errors.New("purge facts: entity is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPurgeLimit
	}
	like := strings.ReplaceAll(req.ValueLike, "*", "%")

	res := &PurgeResult{
		Entity:    req.Entity,
		Attribute: req.Attribute,
		ValueIn:   req.ValueIn,
		ValueLike: like,
		DryRun:    !req.Apply,
		IDs:       []string{},
	}

	if req.Apply {
		u.writeMu.Lock()
		defer u.writeMu.Unlock()
	}

	ids, err := u.store.FindFactIDs(ctx, FactFilter{
		Entity:    req.Entity,
		Attribute: req.Attribute,
		ValueIn:   req.ValueIn,
		ValueLike: like,
	}, limit)
	if err != nil {
		return nil, storeErr("purge facts", err)
	}
	res.IDs = append(res.IDs, ids...)
	res.Matched = len(ids)

	if req.Apply && len(ids) > 0 {
		n, err := u.store.DeleteFactsByIDs(ctx, ids)
		if err != nil {
			return nil, storeErr("purge facts", err)
		}
		res.Deleted = n
		u.searchGen.Add(1)

		if err := u.index.Delete(ctx, ids); err != nil {
			log.WithError(err).WithField("ids", len(ids)).Warn("purge: delete from semantic index")
		}
		for _, id := range ids {
			if _, err := u.cache.Delete(ctx, "fact:"+id); err != nil {
				log.WithError(err).Warn("purge: evict cached fact")
				break
			}
		}
	}

	if err := u.audit.AppendSnapshot(ctx, map[string]any{
		"kind":        "purge_facts",
		"entity":      res.Entity,
		"attribute":   res.Attribute,
		"value_in":    res.ValueIn,
		"value_ilike": res.ValueLike,
		"dry_run":     res.DryRun,
		"matched":     res.Matched,
		"deleted":     res.Deleted,
	}); err != nil {
		log.WithError(err).Warn("append purge snapshot")
	}
	return res, nil
}
