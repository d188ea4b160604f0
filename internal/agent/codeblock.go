package agent

import "strings"

// ExtractCode strips markdown fences from an LLM response. Models are asked
// to return only a fenced code block, but some prepend prose or use a bare
// fence, so this handles ```go, ``` and fence-less responses alike.
func ExtractCode(response string) string {
	if idx := strings.Index(response, "```go"); idx >= 0 {
		rest := response[idx+len("```go"):]
		// Skip the rest of the fence line ("```go" and "```golang" alike).
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	if idx := strings.Index(response, "```"); idx >= 0 {
		rest := response[idx+len("```"):]
		// Drop a language tag on the fence line, if any.
		if nl := strings.Index(rest, "\n"); nl >= 0 && !strings.ContainsAny(rest[:nl], " \t") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	return strings.TrimSpace(response)
}

// ExtraFenceCount reports how many fenced blocks beyond the first a response
// carries. Only the first block is executed; callers surface the rest in the
// trace so discarded alternatives stay visible.
func ExtraFenceCount(response string) int {
	blocks := strings.Count(response, "```") / 2
	if blocks <= 1 {
		return 0
	}
	return blocks - 1
}
