// internal/browser/cdp.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/config"
)

const (
	defaultActionTimeout     = 15 * time.Second
	defaultSnapshotTimeout   = 20 * time.Second
	defaultNavigationTimeout = 60 * time.Second
	connectTimeout           = 30 * time.Second
	closeTimeout             = 15 * time.Second
)

// CDPHost drives a Chrome tab over the DevTools protocol. In remote mode it
// attaches to a page of an already running browser; in launch mode it starts
// its own browser and drives the first tab.
type CDPHost struct {
	cfg      config.BrowserConfig
	maxBytes int
	logger   *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.Mutex
	tabCtx    context.Context
	tabCancel context.CancelFunc
	targetID  target.ID
	closed    bool
}

// NewCDPHost connects to (or launches) the browser described by cfg and
// selects the tab to drive. Snapshots are sanitized and cut to maxBytes.
func NewCDPHost(ctx context.Context, cfg config.BrowserConfig, maxBytes int, logger *zap.Logger) (*CDPHost, error) {
	h := &CDPHost{
		cfg:      cfg,
		maxBytes: maxBytes,
		logger:   logger.Named("browser.cdp"),
	}

	base := detach(ctx)
	switch cfg.Mode {
	case config.BrowserRemote:
		h.allocCtx, h.allocCancel = chromedp.NewRemoteAllocator(base, cfg.RemoteURL)
	case config.BrowserLaunch:
		h.allocCtx, h.allocCancel = chromedp.NewExecAllocator(base, AllocatorOptions(cfg)...)
	default:
		return nil, fmt.Errorf("browser mode %q does not use the DevTools protocol", cfg.Mode)
	}
	h.browserCtx, h.browserCancel = chromedp.NewContext(h.allocCtx,
		chromedp.WithLogf(h.logger.Sugar().Debugf),
		chromedp.WithErrorf(h.logger.Sugar().Debugf),
	)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if _, err := h.tab(connectCtx); err != nil {
		_ = h.Close()
		return nil, err
	}

	if cfg.Mode == config.BrowserLaunch && cfg.StartURL != "" && cfg.StartURL != "about:blank" {
		if _, err := h.navigate(connectCtx, schemas.NavigateAction{URL: cfg.StartURL}); err != nil {
			h.logger.Warn("Failed to open start URL.", zap.String("url", cfg.StartURL), zap.Error(err))
		}
	}

	h.logger.Info("Browser host ready.", zap.String("mode", string(cfg.Mode)), zap.String("target_id", string(h.targetID)))
	return h, nil
}

// AllocatorOptions builds the exec allocator flags for launch mode.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		key, value, found := strings.Cut(arg, "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// pickTarget returns the first ordinary page whose URL contains filter.
func pickTarget(infos []*target.Info, filter string) (*target.Info, bool) {
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		if strings.HasPrefix(info.URL, "devtools://") || strings.HasPrefix(info.URL, "chrome-extension://") {
			continue
		}
		if filter == "" || strings.Contains(info.URL, filter) {
			return info, true
		}
	}
	return nil, false
}

// tab returns the context of the driven tab, selecting one if the previous
// tab went away.
func (h *CDPHost) tab(ctx context.Context) (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("%w: browser host closed", schemas.ErrNoActiveTab)
	}
	if h.tabCtx != nil && h.tabCtx.Err() == nil {
		return h.tabCtx, nil
	}

	if h.cfg.Mode == config.BrowserLaunch {
		// The first context owns the launched browser and its initial tab.
		if err := chromedp.Run(h.browserCtx); err != nil {
			return nil, fmt.Errorf("%w: failed to start browser: %v", schemas.ErrNoActiveTab, err)
		}
		h.tabCtx, h.tabCancel = h.browserCtx, func() {}
		if c := chromedp.FromContext(h.browserCtx); c != nil && c.Target != nil {
			h.targetID = c.Target.TargetID
		}
		return h.tabCtx, nil
	}

	infos, err := targets(ctx, h.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list browser targets: %v", schemas.ErrNoActiveTab, err)
	}
	info, ok := pickTarget(infos, h.cfg.TargetURLContains)
	if !ok {
		return nil, fmt.Errorf("%w: no page matches %q", schemas.ErrNoActiveTab, h.cfg.TargetURLContains)
	}

	tabCtx, tabCancel := chromedp.NewContext(h.browserCtx, chromedp.WithTargetID(info.TargetID))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("%w: failed to attach to tab: %v", schemas.ErrNoActiveTab, err)
	}
	h.tabCtx, h.tabCancel, h.targetID = tabCtx, tabCancel, info.TargetID
	h.logger.Info("Attached to tab.", zap.String("target_id", string(info.TargetID)), zap.String("url", info.URL))
	return h.tabCtx, nil
}

// targets lists browser targets, bounded by ctx.
func targets(ctx, browserCtx context.Context) ([]*target.Info, error) {
	type result struct {
		infos []*target.Info
		err   error
	}
	done := make(chan result, 1)
	go func() {
		infos, err := chromedp.Targets(browserCtx)
		done <- result{infos, err}
	}()
	select {
	case r := <-done:
		return r.infos, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dropTab forgets the current tab when its context ended so the next call
// selects a fresh one.
func (h *CDPHost) dropTab(tabCtx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tabCtx == tabCtx && tabCtx.Err() != nil {
		h.tabCancel()
		h.tabCtx, h.tabCancel = nil, nil
	}
}

func (h *CDPHost) CaptureSnapshot(ctx context.Context) (string, error) {
	tabCtx, err := h.tab(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", schemas.ErrSnapshotUnavailable, err)
	}
	opCtx, cancel := combineContext(tabCtx, ctx, orDefault(h.cfg.SnapshotTimeout, defaultSnapshotTimeout))
	defer cancel()

	var dom string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &dom, chromedp.ByQuery)); err != nil {
		if tabCtx.Err() != nil {
			h.dropTab(tabCtx)
			return "", fmt.Errorf("%w: %w: tab closed", schemas.ErrSnapshotUnavailable, schemas.ErrNoActiveTab)
		}
		return "", fmt.Errorf("%w: %w: %v", schemas.ErrSnapshotUnavailable, schemas.ErrScriptInjectionFailed, err)
	}
	raw := len(dom)
	dom = Sanitize(dom, h.maxBytes)
	h.logger.Debug("Captured page snapshot.", zap.Int("raw_bytes", raw), zap.Int("bytes", len(dom)))
	return dom, nil
}

func (h *CDPHost) Execute(ctx context.Context, action schemas.Action) (schemas.ExecResult, error) {
	if err := action.Validate(); err != nil {
		return schemas.FailedResult(err), err
	}

	var (
		res schemas.ExecResult
		err error
	)
	switch a := action.(type) {
	case schemas.ClickAction:
		res, err = h.evaluate(ctx, a.Name(), clickScript(a.Selector))
	case schemas.TypeAction:
		res, err = h.evaluate(ctx, a.Name(), typeScript(a.Selector, a.Text))
	case schemas.NavigateAction:
		res, err = h.navigate(ctx, a)
	default:
		err = schemas.NewActionError(schemas.ErrCodeUnsupportedAction, action.Name(),
			fmt.Sprintf("Unsupported action: %s", action.Name()), nil)
	}
	if err != nil {
		return schemas.FailedResult(err), err
	}
	return res, nil
}

// evaluate runs a page script that reports its outcome as a scriptResult.
func (h *CDPHost) evaluate(ctx context.Context, name, script string) (schemas.ExecResult, error) {
	tabCtx, err := h.tab(ctx)
	if err != nil {
		return schemas.ExecResult{}, schemas.NewActionError(schemas.ErrCodeNoActiveTab, name, "No active tab found to execute action.", err)
	}
	opCtx, cancel := combineContext(tabCtx, ctx, orDefault(h.cfg.ActionTimeout, defaultActionTimeout))
	defer cancel()

	var out scriptResult
	err = chromedp.Run(opCtx, chromedp.Evaluate(script, &out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true).WithUserGesture(true)
	}))
	if err != nil {
		return schemas.ExecResult{}, h.runError(tabCtx, opCtx, name, err)
	}
	if out.Status != string(schemas.ExecSuccess) {
		code := schemas.ErrorCode(out.Code)
		if code == "" {
			code = schemas.ErrCodeActionExecutionFailed
		}
		return schemas.ExecResult{}, schemas.NewActionError(code, name, out.Error, nil)
	}
	return schemas.ExecResult{Status: schemas.ExecSuccess, Message: out.Message}, nil
}

func (h *CDPHost) navigate(ctx context.Context, a schemas.NavigateAction) (schemas.ExecResult, error) {
	tabCtx, err := h.tab(ctx)
	if err != nil {
		return schemas.ExecResult{}, schemas.NewActionError(schemas.ErrCodeNoActiveTab, a.Name(), "No active tab found to execute action.", err)
	}
	timeout := orDefault(h.cfg.NavigationTimeout, defaultNavigationTimeout)
	opCtx, cancel := combineContext(tabCtx, ctx, timeout)
	defer cancel()

	h.logger.Debug("Navigating to URL", zap.String("url", a.URL))
	if err := chromedp.Run(opCtx, chromedp.Navigate(a.URL)); err != nil {
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return schemas.ExecResult{}, schemas.NewActionError(schemas.ErrCodeActionExecutionFailed, a.Name(),
				fmt.Sprintf("Navigation timed out after %s: %s", timeout, a.URL), err)
		}
		return schemas.ExecResult{}, h.runError(tabCtx, opCtx, a.Name(), err)
	}
	return schemas.ExecResult{Status: schemas.ExecSuccess, Message: fmt.Sprintf("Navigated to %s", a.URL)}, nil
}

// runError classifies a failed chromedp.Run.
func (h *CDPHost) runError(tabCtx, opCtx context.Context, name string, err error) error {
	if tabCtx.Err() != nil {
		h.dropTab(tabCtx)
		return schemas.NewActionError(schemas.ErrCodeNoActiveTab, name, "The active tab was closed.", err)
	}
	if opCtx.Err() != nil {
		return schemas.NewActionError(schemas.ErrCodeActionExecutionFailed, name, fmt.Sprintf("Execution of %s timed out.", name), err)
	}
	return schemas.NewActionError(schemas.ErrCodeActionExecutionFailed, name, fmt.Sprintf("Execution of %s failed: %v", name, err), err)
}

// Close disconnects from the browser. A launched browser is shut down
// gracefully; a remote browser is only disconnected.
func (h *CDPHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	var err error
	if h.cfg.Mode == config.BrowserLaunch {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(h.browserCtx) }()
		select {
		case err = <-done:
			if errors.Is(err, context.Canceled) {
				err = nil
			}
		case <-time.After(closeTimeout):
			h.logger.Warn("Browser shutdown timed out. Proceeding forcefully.", zap.Duration("timeout", closeTimeout))
		}
		h.browserCancel()
	}
	h.allocCancel()
	return err
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
