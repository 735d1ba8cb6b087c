// Package extract pulls personal facts out of user messages with a fixed,
// ordered table of rules.
package extract

import (
	"regexp"
	"strings"
)

// Kind selects how a rule turns its match into candidates.
type Kind int

const (
	// Single writes the "value" group as is.
	Single Kind = iota
	// NameList splits the "value" group into title-cased names.
	NameList
	// Pet writes "Name|species".
	Pet
	// Children splits the "value" group into at most six child names and
	// adds a children_type fact when the "rel" group says sons or daughters.
	Children
)

// MaxChildren bounds how many names a Children rule emits.
const MaxChildren = 6

// Rule is one row of the extraction table. Patterns expose the captured
// text as a group named "value"; spouse and children rules also use "who"
// and "rel".
type Rule struct {
	Name       string
	Pattern    *regexp.Regexp
	Entity     string
	Attribute  string
	Confidence float64

	// Approval marks facts that are staged until the user confirms them.
	Approval bool
	Kind     Kind

	// Species is the pet species for Pet rules.
	Species string

	// Blurb is the approval text. "{value}" and "{who}" are substituted.
	Blurb string

	// Person also upserts a person record named by the value.
	Person bool

	// SkipIf names an earlier rule; this rule is skipped when that rule
	// produced candidates.
	SkipIf string
}

// Candidate is a fact proposed by a rule.
type Candidate struct {
	Rule       string  `json:"rule"`
	Entity     string  `json:"entity"`
	Attribute  string  `json:"attribute"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Approval   bool    `json:"approval"`
	Blurb      string  `json:"blurb,omitempty"`

	// PersonAttributes is set when the value should also be upserted as a
	// person.
	PersonAttributes map[string]string `json:"person_attributes,omitempty"`
}

// A capitalised name, optionally several words long. Only the surrounding
// phrase is case-insensitive.
const properName = `[A-Z][A-Za-z\-']+(?:\s+[A-Z][A-Za-z\-']+)*`

func rx(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

// DefaultRules is the table Extract evaluates, in order.
var DefaultRules = []Rule{
	{
		Name:    "name",
		Pattern: rx(`(?i)\bmy\s+name\s+is\s+(?P<value>[A-Za-z][A-Za-z0-9_-]{1,40})\b`),
		Entity:  "user", Attribute: "name", Confidence: 0.9, Person: true,
	},
	{
		Name:    "location",
		Pattern: rx(`(?i)\bi\s+live\s+in\s+(?P<value>[A-Za-z][A-Za-z0-9 _-]{2,60})\b`),
		Entity:  "user", Attribute: "location", Confidence: 0.75,
	},
	{
		Name:    "spouse",
		Pattern: rx(`(?i)\bmy\s+(?P<who>wife|husband|spouse)(?:['’]s)?\b(?:\s+name\s+is|\s+is|\s+named)?\s+(?P<value>[A-Za-z][A-Za-z0-9'_-]{1,40})\b`),
		Entity:  "user", Attribute: "spouse", Confidence: 0.85, Approval: true,
		Blurb: "Your {who}'s name is {value}.",
	},
	{
		Name:    "children",
		Pattern: rx(`(?i)\b(?:i\s+have|my)\s+(?:two\s+|three\s+|four\s+|\d+\s+)?(?P<rel>sons|son|daughters|daughter|kids|children)\b(?:\s+(?:named|are)|\s*:)?\s+(?P<value>.+)$`),
		Entity:  "user", Attribute: "child", Confidence: 0.80, Approval: true, Kind: Children,
		Blurb: "You have a child named {value}.",
	},
	{
		Name:    "children_names",
		Pattern: rx(`(?i)\b(?P<rel>sons|son|daughters|daughter|kids|children)\b.*?\btheir\s+names?\s+(?:are|is)\s+(?P<value>.+)$`),
		Entity:  "user", Attribute: "child", Confidence: 0.80, Approval: true, Kind: Children,
		Blurb:  "You have a child named {value}.",
		SkipIf: "children",
	},
	parent("mother", `(?i:\bmy\s+(?:mom|mother)\s+(?:is|=))`),
	parent("father", `(?i:\bmy\s+(?:dad|father)\s+(?:is|=))`),
	parent("mother", `(?i:\bmy\s+(?:mom|mother)['’]s\s+name\s+is)`),
	parent("father", `(?i:\bmy\s+(?:dad|father)['’]s\s+name\s+is)`),
	parent("mother", `(?i:\bi\s+have\s+a\s+mom\s+and\s+her\s+name\s+is)`),
	parent("father", `(?i:\bi\s+have\s+a\s+dad\s+and\s+his\s+name\s+is)`),
	list("cousin", "cousins?"),
	list("friend", "friends?"),
	list("sibling", "siblings?"),
	list("sibling", "brothers?"),
	list("sibling", "sisters?"),
	singular("cousin", `(?i:\bmy\s+cousin)\s+(?:(?i:is|named)\s+)?`),
	singular("friend", `(?i:\bmy\s+friend)\s+(?:(?i:is|named)\s+)?`),
	singular("sibling", `(?i:\bmy\s+brother)\s+(?:(?i:is|named)\s+)?`),
	singular("sibling", `(?i:\bmy\s+sister)\s+(?:(?i:is|named)\s+)?`),
	singular("sibling", `(?i:\bi\s+have\s+a\s+brother\s+(?:named|name\s+is|is))\s+`),
	singular("sibling", `(?i:\bi\s+have\s+a\s+sister\s+(?:named|name\s+is|is))\s+`),
	pet("dog", `(?i:\bmy\s+dog\s+(?:is|named))`),
	pet("dog", `(?i:\bi\s+have\s+a\s+dog\s+named)`),
	pet("cat", `(?i:\bmy\s+cat\s+(?:is|named))`),
	pet("cat", `(?i:\bi\s+have\s+a\s+cat\s+named)`),
}

func parent(attribute, lead string) Rule {
	return Rule{
		Name:    attribute,
		Pattern: rx(lead + `\s+(?P<value>` + properName + `)`),
		Entity:  "user", Attribute: attribute, Confidence: 0.90,
	}
}

func list(attribute, noun string) Rule {
	return Rule{
		Name:    attribute + "_list",
		Pattern: rx(`(?i)\bmy\s+` + noun + `\s+(?:are|=)\s+(?P<value>[^.\n]+)`),
		Entity:  "user", Attribute: attribute, Confidence: 0.85, Kind: NameList,
	}
}

func singular(attribute, lead string) Rule {
	return Rule{
		Name:    attribute,
		Pattern: rx(lead + `(?P<value>` + properName + `)\b`),
		Entity:  "user", Attribute: attribute, Confidence: 0.85,
	}
}

func pet(species, lead string) Rule {
	return Rule{
		Name:    "pet_" + species,
		Pattern: rx(lead + `\s+(?P<value>[A-Z][A-Za-z\-']+)\b`),
		Entity:  "user", Attribute: "pet", Confidence: 0.90, Kind: Pet, Species: species,
	}
}

// Extract runs DefaultRules over msg.
func Extract(msg string) []Candidate {
	return Apply(DefaultRules, msg)
}

// Apply evaluates rules in order. Duplicate entity/attribute/value triples
// are reported once.
func Apply(rules []Rule, msg string) []Candidate {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}

	var out []Candidate
	fired := make(map[string]bool)
	seen := make(map[string]bool)
	add := func(c Candidate) {
		key := c.Entity + "\x00" + c.Attribute + "\x00" + strings.ToLower(c.Value)
		if c.Value == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	for _, r := range rules {
		if r.SkipIf != "" && fired[r.SkipIf] {
			continue
		}
		m := r.Pattern.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		groups := namedGroups(r.Pattern, m)
		cands := r.candidates(groups)
		if len(cands) == 0 {
			continue
		}
		fired[r.Name] = true
		for _, c := range cands {
			add(c)
		}
	}
	return out
}

func (r Rule) candidates(groups map[string]string) []Candidate {
	value := strings.TrimSpace(groups["value"])
	base := Candidate{
		Rule:       r.Name,
		Entity:     r.Entity,
		Attribute:  r.Attribute,
		Confidence: r.Confidence,
		Approval:   r.Approval,
	}
	one := func(v string) Candidate {
		c := base
		c.Value = v
		if r.Blurb != "" {
			c.Blurb = strings.NewReplacer("{value}", v, "{who}", strings.ToLower(groups["who"])).Replace(r.Blurb)
		}
		if r.Person {
			c.PersonAttributes = map[string]string{"relation": r.Entity}
		}
		return c
	}

	switch r.Kind {
	case NameList:
		var out []Candidate
		for _, n := range SplitNameList(value) {
			out = append(out, one(n))
		}
		return out

	case Pet:
		return []Candidate{one(PetValue(value, r.Species))}

	case Children:
		names := childNames(value)
		if len(names) == 0 {
			return nil
		}
		var out []Candidate
		for _, n := range names {
			out = append(out, one(n))
		}
		if kind := childrenType(groups["rel"]); kind != "" {
			out = append(out, Candidate{
				Rule:       r.Name,
				Entity:     r.Entity,
				Attribute:  "children_type",
				Value:      kind,
				Confidence: 0.70,
				Approval:   r.Approval,
				Blurb:      "You mentioned your children are " + kind + ".",
			})
		}
		return out
	}
	return []Candidate{one(value)}
}

func namedGroups(re *regexp.Regexp, m []string) map[string]string {
	g := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(m) {
			g[name] = m[i]
		}
	}
	return g
}

var (
	childSeparator = regexp.MustCompile(`\s*(?:,|\band\b|&|\+)\s*`)
	childName      = regexp.MustCompile(`^[A-Z][A-Za-z0-9'_-]{1,40}$`)
	trailingPunct  = regexp.MustCompile(`[.?!]+$`)
)

func childNames(tail string) []string {
	tail = strings.TrimSpace(trailingPunct.ReplaceAllString(strings.TrimSpace(tail), ""))
	var names []string
	for _, p := range childSeparator.Split(tail, -1) {
		p = strings.TrimSpace(p)
		if p == "" || !childName.MatchString(p) {
			continue
		}
		names = append(names, p)
		if len(names) == MaxChildren {
			break
		}
	}
	return names
}

func childrenType(rel string) string {
	switch strings.ToLower(rel) {
	case "son", "sons":
		return "sons"
	case "daughter", "daughters":
		return "daughters"
	}
	return ""
}

var (
	listSeparator = regexp.MustCompile(`(?i)\s*(?:,|&|\band\b)\s*`)
	nonNameChars  = regexp.MustCompile(`[^A-Za-z\-'\s]`)
)

// SplitNameList turns "Jake, sarah and Noel" into [Jake Sarah Noel].
// Fragments shorter than two letters are dropped and names are de-duplicated
// case-insensitively, keeping the first spelling.
func SplitNameList(text string) []string {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}
	t = listSeparator.ReplaceAllString(t, "|")

	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(t, "|") {
		p = strings.Trim(p, " .;:!\n\t")
		p = strings.TrimSpace(nonNameChars.ReplaceAllString(p, ""))
		if len(p) < 2 {
			continue
		}
		words := strings.Fields(p)
		for i, w := range words {
			words[i] = capitalize(w)
		}
		name := strings.Join(words, " ")
		if key := strings.ToLower(name); !seen[key] {
			seen[key] = true
			out = append(out, name)
		}
	}
	return out
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}

// PetValue encodes a pet as "Name|species".
func PetValue(name, species string) string {
	name = strings.TrimSpace(name)
	species = strings.ToLower(strings.TrimSpace(species))
	if species == "" {
		return name
	}
	return name + "|" + species
}

// PetName strips the species from a value written by PetValue.
func PetName(value string) string {
	name, _, _ := strings.Cut(value, "|")
	return name
}
