// File: cmd/format.go
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

const goalPreviewRunes = 40

// relativeTime renders how long ago t was, the way chat history lists it.
func relativeTime(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Format(time.DateOnly)
	}
}

// goalPreview is the first line of the goal, clipped.
func goalPreview(goal string) string {
	line, _, _ := strings.Cut(goal, "\n")
	runes := []rune(strings.TrimSpace(line))
	if len(runes) > goalPreviewRunes {
		return string(runes[:goalPreviewRunes]) + "..."
	}
	return string(runes)
}

func stepLabel(status schemas.SessionStatus, current, total int) string {
	if total > 0 {
		return fmt.Sprintf("%s (step %d/%d)", status, current, total)
	}
	return string(status)
}
