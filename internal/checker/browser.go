package checker

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

// ClientCollector produces a ClientReport without a human-driven browser.
type ClientCollector interface {
	Collect(ctx context.Context, pageURL string) (*ClientReport, error)
}

// BrowserCollector runs collector.js in headless Chrome through chromedp.
type BrowserCollector struct {
	ExecPath string // empty = look up Chrome on PATH
	Timeout  time.Duration
	// Addresses is checked against the page host before Chrome starts.
	Addresses AddressPolicy
	Logger    *zap.Logger
}

// Collect opens pageURL (about:blank when empty), evaluates the collector
// and decodes its result.
func (b *BrowserCollector) Collect(ctx context.Context, pageURL string) (*ClientReport, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = consts.DefaultBrowserTimeout
	}
	if pageURL == "" {
		pageURL = "about:blank"
	} else if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
		if err := b.Addresses.CheckHost(ctx, nil, u.Hostname()); err != nil {
			return nil, err
		}
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", false),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}

	runCtx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(runCtx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))
	defer cancelTab()

	start := time.Now()
	var report ClientReport
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.Evaluate(collectExpression, &report, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrBrowserFailure, err)
	}
	logger.Debug("collected browser report",
		zap.String("url", pageURL),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("ice_candidates", len(report.WebRTC.Candidates)),
	)
	if err := report.Validate(); err != nil {
		return nil, err
	}
	return &report, nil
}
