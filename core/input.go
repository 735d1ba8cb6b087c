package core

// ToolCall names a registered tool and carries its arguments.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the outcome of a ToolCall. Failures are reported through
// OK and Error rather than as Go errors.
type ToolResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// ToolExecution pairs a call with its result for the caller-visible tool log.
type ToolExecution struct {
	Call   ToolCall   `json:"call"`
	Result ToolResult `json:"result"`
}
