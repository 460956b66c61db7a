package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

func TestPlaceholderHost(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := NewPlaceholderHost(zap.New(core))
	ctx := context.Background()

	dom, err := h.CaptureSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderDOM, dom)

	actions := []schemas.Action{
		schemas.ClickAction{Selector: "#go"},
		schemas.TypeAction{Selector: "#name", Text: "todo"},
		schemas.OpaqueAction{ActionName: "deploy"},
	}
	for _, a := range actions {
		res, err := h.Execute(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, schemas.ExecSuccess, res.Status)
		assert.Equal(t, "Simulated "+a.Name()+" action.", res.Message)
	}
	assert.Equal(t, 3, logs.FilterMessage("No browser attached. Action not executed.").Len())
	assert.NoError(t, h.Close())
}

func TestPlaceholderHost_CanceledContext(t *testing.T) {
	h := NewPlaceholderHost(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.CaptureSnapshot(ctx)
	assert.ErrorIs(t, err, schemas.ErrSnapshotUnavailable)

	res, err := h.Execute(ctx, schemas.ClickAction{Selector: "#go"})
	assert.ErrorIs(t, err, schemas.ErrActionExecutionFailed)
	assert.Equal(t, schemas.ExecError, res.Status)
}

func TestNewHost(t *testing.T) {
	h, err := NewHost(context.Background(), config.BrowserConfig{Mode: config.BrowserPlaceholder}, 0, zap.NewNop())
	require.NoError(t, err)
	dom, err := h.CaptureSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PlaceholderDOM, dom)

	_, err = NewHost(context.Background(), config.BrowserConfig{Mode: "firefox"}, 0, zap.NewNop())
	assert.Error(t, err)
}
