// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// combineContext derives from tabCtx, which carries the chromedp target, and
// is also canceled when opCtx is. The result gets a timeout when timeout > 0.
func combineContext(tabCtx, opCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(opCtx, cancel)

	if timeout <= 0 {
		return combined, func() {
			stop()
			cancel()
		}
	}
	timed, timedCancel := context.WithTimeout(combined, timeout)
	return timed, func() {
		timedCancel()
		stop()
		cancel()
	}
}

// detach keeps ctx's values but drops its deadline and cancellation, so the
// browser connection outlives the call that opened it.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
