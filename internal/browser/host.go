package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

// NewHost builds the browser host selected by cfg.Mode, wrapped so that all
// sessions share it one call at a time.
func NewHost(ctx context.Context, cfg config.BrowserConfig, snapshotMaxBytes int, logger *zap.Logger) (*Serialized, error) {
	switch cfg.Mode {
	case config.BrowserPlaceholder, "":
		return NewSerialized(NewPlaceholderHost(logger)), nil
	case config.BrowserRemote, config.BrowserLaunch:
		h, err := NewCDPHost(ctx, cfg, snapshotMaxBytes, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start browser host: %w", err)
		}
		return NewSerialized(h), nil
	default:
		return nil, fmt.Errorf("unknown browser mode: %q", cfg.Mode)
	}
}

var (
	_ schemas.BrowserHost = (*PlaceholderHost)(nil)
	_ schemas.BrowserHost = (*CDPHost)(nil)
	_ schemas.BrowserHost = (*Serialized)(nil)
)
