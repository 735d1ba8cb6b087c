package assistant

import (
	"regexp"
	"strings"
)

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespace = regexp.MustCompile(`\s+`)

	greetings = map[string]bool{
		"hi": true, "hey": true, "hello": true, "yo": true, "sup": true,
		"what s up": true, "whats up": true,
		"good morning": true, "good afternoon": true, "good evening": true,
		"hey nova": true, "hi nova": true, "hello nova": true, "yo nova": true, "sup nova": true,
	}
	greetingOpeners = []string{"hi ", "hey ", "hello ", "yo ", "sup "}

	taskPhrases = []string{
		"find ", "search ", "look up", "google ", "open ", "create ", "make ", "build ", "write ", "fix ", "debug ",
		"plan ", "schedule ", "remind ", "email ", "text ", "call ", "run ", "execute ", "scaffold ", "generate ",
		"summarize ", "analyze ", "compare ",
	}

	recallPhrases = []string{
		"what did i say", "what did we say", "what have we talked about", "what did we talk about",
		"what did we discuss", "what have we discussed", "what questions have i asked", "what did i ask",
		"summarize this conversation", "summarize our conversation",
		"earlier", "previous", "last time", "recap", "remind me", "as we discussed", "continue",
	}
)

// IsSmalltalk reports whether msg is a greeting or casual chatter that
// should be answered without planning tool use. Short messages count as
// smalltalk unless they ask a question or contain a task verb.
func IsSmalltalk(msg string) bool {
	q := strings.ToLower(strings.TrimSpace(msg))
	if q == "" {
		return true
	}

	q2 := nonAlnum.ReplaceAllString(q, " ")
	q2 = strings.TrimSpace(whitespace.ReplaceAllString(q2, " "))
	short := len(q2) <= 20

	if greetings[q2] {
		return true
	}
	if short {
		for _, g := range greetingOpeners {
			if strings.HasPrefix(q2, g) {
				return true
			}
		}
	}
	if strings.Contains(q, "?") {
		return false
	}
	for _, t := range taskPhrases {
		if strings.Contains(q2, t) {
			return false
		}
	}
	return short
}

// wantsTurnRecall reports whether msg asks about the conversation itself, in
// which case turn hits are kept in the memory context.
func wantsTurnRecall(msg string) bool {
	q := strings.ToLower(msg)
	for _, p := range recallPhrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}
