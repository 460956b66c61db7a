// File: cmd/format_test.go
package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{2 * 24 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "2025-05-11"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, relativeTime(now, now.Add(-tt.ago)))
		})
	}
}

func TestGoalPreview(t *testing.T) {
	assert.Equal(t, "", goalPreview(""))
	assert.Equal(t, "Build a todo app", goalPreview("Build a todo app\n\nAdditional instruction: dark mode"))

	long := strings.Repeat("ü", 50)
	assert.Equal(t, strings.Repeat("ü", goalPreviewRunes)+"...", goalPreview(long))
}

func TestStepLabel(t *testing.T) {
	assert.Equal(t, "Running", stepLabel(schemas.StatusRunning, 0, 0))
	assert.Equal(t, "Paused (step 2/5)", stepLabel(schemas.StatusPaused, 2, 5))
}
