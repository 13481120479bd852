package pipeline

import (
	"fmt"
	"strings"

	"github.com/quality-agent/backend/internal/session"
)

// renderHistory flattens the last n conversation turns into the compact
// "role: content" form embedded in prompts.
func renderHistory(history []session.Message, n int) string {
	if len(history) == 0 || n <= 0 {
		return ""
	}

	start := len(history) - n
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, msg := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
