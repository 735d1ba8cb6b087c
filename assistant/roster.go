package assistant

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/MarcusD9722/Nova/extract"
	"github.com/MarcusD9722/Nova/memory"
)

var questionLead = regexp.MustCompile(`^(who|what|do you|can you|tell me|list)\b`)

func isQuestionLike(msg string) bool {
	q := strings.ToLower(strings.TrimSpace(msg))
	return strings.Contains(q, "?") || questionLead.MatchString(q)
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// rosterAnswer answers questions about the user's people and pets straight
// from stored facts. ok is false when msg is not such a question.
func (a *Assistant) rosterAnswer(ctx context.Context, msg string) (text string, ok bool, err error) {
	if !isQuestionLike(msg) {
		return "", false, nil
	}
	q := strings.ToLower(strings.TrimSpace(msg))
	asksNames := strings.Contains(q, "name")
	r := roster{a: a, ctx: ctx}

	switch {
	case containsAny(q, "who do you know", "what do you know"):
		text = r.overview(q)
	case containsAny(q, "son", "daughter", "kid", "child") && asksNames:
		text = r.children()
	case containsAny(q, "mom", "mother", "dad", "father", "parents") && asksNames:
		text = r.parents(q)
	case containsAny(q, "pet", "dog", "cat") && asksNames:
		text = r.pets()
	case containsAny(q, "wife", "husband", "spouse") && asksNames:
		if v := r.latest("spouse"); v != "" {
			text = "Your spouse's name is " + v + "."
		} else {
			text = "I don't have your spouse's name saved yet."
		}
	case containsAny(q, "friend") && asksNames:
		text = r.list("friend", 50, "I don't have any friends' names saved yet.", "One friend I know is %s.", "Your friends are: %s.")
	case containsAny(q, "brother", "sister", "sibling") && asksNames:
		single := "Your sibling's name is %s."
		if strings.Contains(q, "brother") {
			single = "Your brother's name is %s."
		} else if strings.Contains(q, "sister") {
			single = "Your sister's name is %s."
		}
		text = r.list("sibling", 25, "I don't have your sibling's name saved yet.", single, "Your siblings are: %s.")
	default:
		return "", false, nil
	}
	if r.err != nil {
		return "", false, r.err
	}
	return text, true, nil
}

// roster reads the user's relationship facts, remembering the first store
// error.
type roster struct {
	a   *Assistant
	ctx context.Context
	err error
}

func (r *roster) values(attribute string, limit int) []string {
	if r.err != nil {
		return nil
	}
	facts, err := r.a.memory.GetFacts(r.ctx, r.a.cfg.UserEntity, attribute, limit, true)
	if err != nil {
		r.err = err
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, f := range facts {
		v := strings.TrimSpace(f.Value)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}

func (r *roster) latest(attribute string) string {
	if r.err != nil {
		return ""
	}
	f, err := r.a.memory.LatestFact(r.ctx, r.a.cfg.UserEntity, attribute)
	if err != nil {
		if !errors.Is(err, memory.ErrNotFound) {
			r.err = err
		}
		return ""
	}
	return f.Value
}

func (r *roster) list(attribute string, limit int, none, one, many string) string {
	vals := r.values(attribute, limit)
	switch len(vals) {
	case 0:
		return none
	case 1:
		return strings.Replace(one, "%s", vals[0], 1)
	}
	return strings.Replace(many, "%s", strings.Join(vals, ", "), 1)
}

func (r *roster) children() string {
	return r.list("child", 25, "I don't have your children's names saved yet.", "Your child's name is %s.", "Your children are: %s.")
}

func (r *roster) pets() string {
	vals := r.values("pet", 25)
	for i, v := range vals {
		vals[i] = extract.PetName(v)
	}
	switch len(vals) {
	case 0:
		return "I don't have any pet names saved yet."
	case 1:
		return "Your pet's name is " + vals[0] + "."
	}
	return "Your pets are: " + strings.Join(vals, ", ") + "."
}

func (r *roster) parents(q string) string {
	mother, father := r.latest("mother"), r.latest("father")
	if containsAny(q, "mom", "mother") && mother != "" {
		return "Your mom's name is " + mother + "."
	}
	if containsAny(q, "dad", "father") && father != "" {
		return "Your dad's name is " + father + "."
	}
	var names []string
	for _, n := range []string{mother, father} {
		if n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "I don't have your parents' names saved yet."
	}
	return "Your parents are: " + strings.Join(names, ", ") + "."
}

func (r *roster) overview(q string) string {
	wantsFamily := strings.Contains(q, "family")
	wantsFriends := containsAny(q, "friend", "people", "life")

	var parts []string
	if v := r.latest("spouse"); v != "" {
		parts = append(parts, "spouse: "+v)
	}
	if v := r.values("child", 25); len(v) > 0 {
		parts = append(parts, "children: "+strings.Join(v, ", "))
	}
	var parents []string
	for _, attr := range []string{"mother", "father"} {
		if v := r.latest(attr); v != "" {
			parents = append(parents, v)
		}
	}
	if len(parents) > 0 {
		parts = append(parts, "parents: "+strings.Join(parents, ", "))
	}
	if v := r.values("sibling", 25); len(v) > 0 {
		parts = append(parts, "siblings: "+strings.Join(v, ", "))
	}
	if v := r.values("cousin", 50); len(v) > 0 {
		parts = append(parts, "cousins: "+strings.Join(v, ", "))
	}
	if v := r.values("pet", 25); len(v) > 0 {
		for i := range v {
			v[i] = extract.PetName(v[i])
		}
		parts = append(parts, "pets: "+strings.Join(v, ", "))
	}
	if wantsFriends && !wantsFamily {
		if v := r.values("friend", 50); len(v) > 0 {
			parts = append(parts, "friends: "+strings.Join(v, ", "))
		}
	}

	switch {
	case len(parts) == 0:
		return "I don't have any family information saved yet."
	case wantsFamily && !wantsFriends:
		return "I know your " + strings.Join(parts, "; ") + "."
	}
	return "Here's who I know: " + strings.Join(parts, "; ") + "."
}
