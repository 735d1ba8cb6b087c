package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record kinds as they appear in index metadata, audit lines and hits.
const (
	KindFact   = "fact"
	KindPerson = "person"
	KindEvent  = "event"
	KindTurn   = "turn"
)

// Document is one SemanticIndex entry. ID equals the DurableStore record id.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// FactText renders the canonical index text of a fact.
func FactText(f *Fact) string {
	return fmt.Sprintf("FACT %s %s = %s", f.Entity, f.Attribute, f.Value)
}

// PersonText renders the canonical index text of a person. Attribute keys are
// sorted so the text is stable across upserts.
func PersonText(p *Person) string {
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	// encoding/json sorts map keys.
	b, _ := json.Marshal(attrs)
	return fmt.Sprintf("PERSON %s %s", p.Name, b)
}

// EventText renders the canonical index text of an event.
func EventText(e *Event) string {
	return fmt.Sprintf("EVENT %s: %s", e.Date, e.Note)
}

func factDocument(f *Fact) Document {
	return Document{
		ID:   f.ID,
		Text: FactText(f),
		Metadata: map[string]string{
			"kind":       KindFact,
			"entity":     f.Entity,
			"attribute":  f.Attribute,
			"created_at": formatTime(f.CreatedAt),
		},
	}
}

func personDocument(p *Person) Document {
	return Document{
		ID:   p.ID,
		Text: PersonText(p),
		Metadata: map[string]string{
			"kind":       KindPerson,
			"name":       p.Name,
			"created_at": formatTime(p.CreatedAt),
		},
	}
}

func eventDocument(e *Event) Document {
	return Document{
		ID:   e.ID,
		Text: EventText(e),
		Metadata: map[string]string{
			"kind":       KindEvent,
			"date":       e.Date,
			"created_at": formatTime(e.CreatedAt),
		},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
