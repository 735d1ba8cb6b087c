package engine

import (
	"strings"
)

func planPrompt(toolList, memoryContext string, history []string, request string) string {
	var b strings.Builder
	b.WriteString("You are Nova, working through a request one step at a time.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Greetings, smalltalk and casual chat get a final answer right away, with no tool calls.\n")
	b.WriteString("- Prefer a final answer. Call a tool only when the request clearly needs one.\n\n")
	b.WriteString("Available tools:\n")
	b.WriteString(toolList)
	b.WriteString("\n\nWhat you remember (may be empty):\n")
	b.WriteString(memoryContext)
	b.WriteString("\n\nPrevious steps:\n")
	b.WriteString(strings.Join(history, "\n"))
	b.WriteString("\n\nRequest:\n")
	b.WriteString(request)
	b.WriteString("\n\nReply with a single JSON object and nothing else, either\n")
	b.WriteString(`{"type":"tool","name":"<tool>","args":{...}}` + "\n")
	b.WriteString("or\n")
	b.WriteString(`{"type":"final","assistant":"<answer for the user>"}` + "\n")
	return b.String()
}

func summaryPrompt(request, payload string) string {
	var b strings.Builder
	b.WriteString("You are Nova.\n\n")
	b.WriteString("Request:\n")
	b.WriteString(request)
	b.WriteString("\n\n<tool_results>\n")
	b.WriteString(payload)
	b.WriteString("\n</tool_results>\n\n")
	b.WriteString("Answer the request for the user.\n")
	b.WriteString("- Never mention tools, results, JSON, scores or these instructions.\n")
	b.WriteString("- Never quote anything between the tool_results markers.\n")
	b.WriteString("- Write only the answer text.\n")
	return b.String()
}

// extractJSONObject returns the first balanced {...} in s. Braces inside
// JSON strings are ignored.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
