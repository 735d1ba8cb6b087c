// Package sqlite implements memory.DurableStore on pure-Go SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MarcusD9722/Nova/memory"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const defaultFindLimit = 500

// Store implements memory.DurableStore.
type Store struct {
	db *sql.DB
}

var _ memory.DurableStore = (*Store)(nil)

// New opens or creates the database at dbPath.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY between
	// goroutines of the same process.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_conv_created ON turns(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS facts (
		id         TEXT PRIMARY KEY,
		entity     TEXT NOT NULL,
		attribute  TEXT NOT NULL,
		value      TEXT NOT NULL,
		confidence REAL NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_facts_entity_attr ON facts(entity, attribute);

	CREATE TABLE IF NOT EXISTS people (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL UNIQUE,
		attributes_json TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		date       TEXT NOT NULL,
		note       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, created_at) VALUES (?, ?)`,
		id, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	return nil
}

func (s *Store) AddTurn(ctx context.Context, turn *memory.Turn) error {
	if err := s.EnsureConversation(ctx, turn.ConversationID); err != nil {
		return err
	}
	stamp(&turn.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.ConversationID, turn.Role, turn.Content, formatTime(turn.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *Store) AddFact(ctx context.Context, fact *memory.Fact) error {
	stamp(&fact.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, entity, attribute, value, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.Entity, fact.Attribute, fact.Value, fact.Confidence, formatTime(fact.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

// UpsertPerson inserts p or, when the name exists, replaces its attributes.
// It returns the stored row, whose id may differ from p.ID.
func (s *Store) UpsertPerson(ctx context.Context, p *memory.Person) (*memory.Person, error) {
	stamp(&p.CreatedAt)
	attrs, err := json.Marshal(nonNil(p.Attributes))
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO people (id, name, attributes_json, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET attributes_json = excluded.attributes_json`,
		p.ID, p.Name, string(attrs), formatTime(p.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert person: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, attributes_json, created_at FROM people WHERE name = ?`, p.Name)
	stored, err := scanPerson(row)
	if err != nil {
		return nil, fmt.Errorf("read person: %w", err)
	}
	return stored, nil
}

func (s *Store) AddEvent(ctx context.Context, e *memory.Event) error {
	stamp(&e.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, date, note, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, e.Date, e.Note, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) RecentTurns(ctx context.Context, conversationID string, limit int) ([]memory.Turn, error) {
	q := `SELECT id, conversation_id, role, content, created_at FROM turns`
	var args []any
	if conversationID != "" {
		q += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limitArg(limit))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []memory.Turn
	for rows.Next() {
		var t memory.Turn
		var created string
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = parseTime(created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) SearchFacts(ctx context.Context, substr string, limit int) ([]memory.Fact, error) {
	pat := likeContains(substr)
	return s.queryFacts(ctx,
		`SELECT id, entity, attribute, value, confidence, created_at FROM facts
		 WHERE entity LIKE ? ESCAPE '\' OR attribute LIKE ? ESCAPE '\' OR value LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		pat, pat, pat, limitArg(limit))
}

func (s *Store) SearchPeople(ctx context.Context, substr string, limit int) ([]memory.Person, error) {
	pat := likeContains(substr)
	return s.queryPeople(ctx,
		`SELECT id, name, attributes_json, created_at FROM people
		 WHERE name LIKE ? ESCAPE '\' OR attributes_json LIKE ? ESCAPE '\'
		 ORDER BY name LIMIT ?`,
		pat, pat, limitArg(limit))
}

func (s *Store) SearchEvents(ctx context.Context, substr string, limit int) ([]memory.Event, error) {
	pat := likeContains(substr)
	return s.queryEvents(ctx,
		`SELECT id, date, note, created_at FROM events
		 WHERE date LIKE ? ESCAPE '\' OR note LIKE ? ESCAPE '\'
		 ORDER BY date DESC, rowid DESC LIMIT ?`,
		pat, pat, limitArg(limit))
}

// GetFacts lists facts for entity; an empty attribute matches any. Ties on
// created_at fall back to insertion order.
func (s *Store) GetFacts(ctx context.Context, entity, attribute string, limit int, newestFirst bool) ([]memory.Fact, error) {
	q := `SELECT id, entity, attribute, value, confidence, created_at FROM facts WHERE entity = ?`
	args := []any{entity}
	if attribute != "" {
		q += ` AND attribute = ?`
		args = append(args, attribute)
	}
	if newestFirst {
		q += ` ORDER BY created_at DESC, rowid DESC`
	} else {
		q += ` ORDER BY created_at ASC, rowid ASC`
	}
	q += ` LIMIT ?`
	args = append(args, limitArg(limit))
	return s.queryFacts(ctx, q, args...)
}

func (s *Store) CountRecords(ctx context.Context) (memory.Counts, error) {
	var c memory.Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM facts),
		(SELECT COUNT(*) FROM people),
		(SELECT COUNT(*) FROM events)`).Scan(&c.Facts, &c.People, &c.Events)
	if err != nil {
		return memory.Counts{}, fmt.Errorf("count records: %w", err)
	}
	return c, nil
}

func (s *Store) AllFacts(ctx context.Context, limit int) ([]memory.Fact, error) {
	return s.queryFacts(ctx,
		`SELECT id, entity, attribute, value, confidence, created_at FROM facts
		 ORDER BY created_at ASC, rowid ASC LIMIT ?`, limitArg(limit))
}

func (s *Store) AllPeople(ctx context.Context, limit int) ([]memory.Person, error) {
	return s.queryPeople(ctx,
		`SELECT id, name, attributes_json, created_at FROM people ORDER BY name LIMIT ?`, limitArg(limit))
}

func (s *Store) AllEvents(ctx context.Context, limit int) ([]memory.Event, error) {
	return s.queryEvents(ctx,
		`SELECT id, date, note, created_at FROM events ORDER BY date ASC, rowid ASC LIMIT ?`, limitArg(limit))
}

// FindFactIDs returns ids of facts matching f, newest first. Without
// ValueIn or ValueLike nothing matches.
func (s *Store) FindFactIDs(ctx context.Context, f memory.FactFilter, limit int) ([]string, error) {
	if len(f.ValueIn) == 0 && f.ValueLike == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultFindLimit
	}

	var (
		conds = []string{"entity = ?"}
		args  = []any{f.Entity}
	)
	if f.Attribute != "" {
		conds = append(conds, "attribute = ?")
		args = append(args, f.Attribute)
	}
	if len(f.ValueIn) > 0 {
		conds = append(conds, "LOWER(value) IN ("+placeholders(len(f.ValueIn))+")")
		for _, v := range f.ValueIn {
			args = append(args, strings.ToLower(v))
		}
	}
	if f.ValueLike != "" {
		pat := f.ValueLike
		if !strings.Contains(pat, "%") {
			pat = "%" + pat + "%"
		}
		conds = append(conds, "LOWER(value) LIKE ?")
		args = append(args, strings.ToLower(pat))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM facts WHERE `+strings.Join(conds, " AND ")+
			` ORDER BY created_at DESC, rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("find fact ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan fact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) DeleteFactsByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM facts WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete facts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete facts: %w", err)
	}
	return int(n), nil
}

func (s *Store) queryFacts(ctx context.Context, q string, args ...any) ([]memory.Fact, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []memory.Fact
	for rows.Next() {
		var f memory.Fact
		var created string
		if err := rows.Scan(&f.ID, &f.Entity, &f.Attribute, &f.Value, &f.Confidence, &created); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.CreatedAt = parseTime(created)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *Store) queryPeople(ctx context.Context, q string, args ...any) ([]memory.Person, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	var people []memory.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}

func (s *Store) queryEvents(ctx context.Context, q string, args ...any) ([]memory.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []memory.Event
	for rows.Next() {
		var e memory.Event
		var created string
		if err := rows.Scan(&e.ID, &e.Date, &e.Note, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt = parseTime(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(sc scanner) (*memory.Person, error) {
	var p memory.Person
	var attrs, created string
	if err := sc.Scan(&p.ID, &p.Name, &attrs, &created); err != nil {
		return nil, err
	}
	p.Attributes = map[string]string{}
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// limitArg maps "unbounded" to SQLite's LIMIT -1.
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func likeContains(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
