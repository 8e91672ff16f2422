package chat

import "strings"

// sanitizeQuestion produces the canonical question used for retrieval and
// prompting. Each newline becomes a single space and surrounding whitespace
// is trimmed; interior spacing is otherwise untouched. Idempotent.
//
// History stores the raw input, never the sanitized form, so users see
// their message exactly as they sent it.
func sanitizeQuestion(q string) string {
	return strings.TrimSpace(strings.ReplaceAll(q, "\n", " "))
}
