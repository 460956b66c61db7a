package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// PlaceholderDOM is returned when no browser is attached.
const PlaceholderDOM = `<body><p>This is a placeholder DOM. Run in extension context to see real page content.</p></body>`

// PlaceholderHost stands in for a browser. Snapshots are fixed and every
// action reports a simulated success without touching anything.
type PlaceholderHost struct {
	logger *zap.Logger
}

func NewPlaceholderHost(logger *zap.Logger) *PlaceholderHost {
	return &PlaceholderHost{logger: logger.Named("browser.placeholder")}
}

func (h *PlaceholderHost) CaptureSnapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", schemas.ErrSnapshotUnavailable, err)
	}
	h.logger.Warn("No browser attached. Returning placeholder DOM.")
	return PlaceholderDOM, nil
}

func (h *PlaceholderHost) Execute(ctx context.Context, action schemas.Action) (schemas.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		ae := schemas.NewActionError(schemas.ErrCodeActionExecutionFailed, action.Name(), err.Error(), err)
		return schemas.FailedResult(ae), ae
	}
	h.logger.Warn("No browser attached. Action not executed.", zap.String("action", action.Name()))
	return schemas.ExecResult{
		Status:  schemas.ExecSuccess,
		Message: fmt.Sprintf("Simulated %s action.", action.Name()),
	}, nil
}

func (h *PlaceholderHost) Close() error { return nil }
