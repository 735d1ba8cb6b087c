package memory

import (
	"strings"
	"unicode"
)

// placeholderValues lists, per relationship attribute, the tokens that
// extraction tends to capture instead of a real name ("my wife's name is...").
var placeholderValues = map[string][]string{
	"spouse":   {"name", "names", "spouse", "wife", "husband", "partner"},
	"child":    {"name", "names", "child", "children", "kid", "kids", "son", "sons", "daughter", "daughters"},
	"parent":   {"name", "names", "parent", "parents", "mom", "mother", "dad", "father"},
	"mother":   {"name", "names", "mom", "mother"},
	"father":   {"name", "names", "dad", "father"},
	"sibling":  {"name", "names", "sibling", "siblings", "brother", "brothers", "sister", "sisters"},
	"cousin":   {"name", "names", "cousin", "cousins"},
	"friend":   {"name", "names", "friend", "friends", "buddy", "buddies"},
	"pet":      {"name", "names", "pet", "pets", "dog", "dogs", "cat", "cats"},
	"coworker": {"name", "names", "coworker", "coworkers", "colleague", "colleagues"},
}

// AcceptFactValue applies the write guard. Attributes outside the
// relationship table are always accepted.
func AcceptFactValue(attribute, value string) bool {
	tokens, ok := placeholderValues[strings.ToLower(strings.TrimSpace(attribute))]
	if !ok {
		return true
	}

	v := strings.TrimSpace(value)
	if len([]rune(v)) < 2 {
		return false
	}

	lower := strings.ToLower(v)
	for _, t := range tokens {
		if lower == t {
			return false
		}
	}

	return strings.IndexFunc(v, unicode.IsLetter) >= 0
}
