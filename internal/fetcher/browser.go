package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/safeurl"
	"github.com/prodlens/prodlens/internal/types"
)

// BrowserFetcher is the rendered transport: it loads the URL in a
// headless Chromium page, waits for a bounded settle period, and
// captures the rendered document. Pages come from a fixed-size pool.
type BrowserFetcher struct {
	browser    *rod.Browser
	pool       *PagePool
	cfg        *config.Config
	revalidate Revalidator
	logger     *slog.Logger
}

// NewBrowserFetcher launches Chromium and pre-creates the page pool.
func NewBrowserFetcher(cfg *config.Config, revalidate Revalidator, logger *slog.Logger) (*BrowserFetcher, error) {
	launchURL, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	pages := make([]*rod.Page, 0, cfg.Browser.PoolSize)
	for i := 0; i < cfg.Browser.PoolSize; i++ {
		page, err := stealth.Page(browser)
		if err != nil {
			for _, p := range pages {
				_ = p.Close()
			}
			_ = browser.Close()
			return nil, fmt.Errorf("create stealth page: %w", err)
		}
		pages = append(pages, page)
	}

	bf := &BrowserFetcher{
		browser:    browser,
		pool:       NewPagePool(pages, cfg.Browser.AcquireWait, logger),
		cfg:        cfg,
		revalidate: revalidate,
		logger:     logger.With("component", "browser_fetcher"),
	}

	bf.logger.Info("browser fetcher ready", "pool_size", cfg.Browser.PoolSize)
	return bf, nil
}

// Fetch renders the target page and returns its document HTML. The
// page is returned to the pool on every exit path.
func (bf *BrowserFetcher) Fetch(ctx context.Context, target *safeurl.Target) (*types.FetchResult, error) {
	start := time.Now()

	page, err := bf.pool.Acquire(ctx)
	if err != nil {
		return nil, &types.FetchError{
			URL:       target.String(),
			Transport: types.TransportRendered,
			Err:       err,
			Retryable: errors.Is(err, types.ErrResourceExhausted),
		}
	}
	defer bf.releasePage(page)

	// Bind the page to the attempt context so the deadline cancels
	// navigation and settle together.
	p := page.Context(ctx)

	// Pre-flight every document request, redirect hops included,
	// through the validator before Chromium issues it. This is the
	// rendered counterpart of the lightweight transport's manual hop
	// loop: a forbidden hop is failed in the browser, never fetched.
	var navMu sync.Mutex
	var navErr error
	router := p.HijackRequests()
	addErr := router.Add("*", proto.NetworkResourceTypeDocument, func(h *rod.Hijack) {
		if err := bf.navigationAllowed(ctx, h.Request.URL().String()); err != nil {
			navMu.Lock()
			if navErr == nil {
				navErr = err
			}
			navMu.Unlock()
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if addErr != nil {
		return nil, bf.wrap(target, addErr)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	blocked := func() error {
		navMu.Lock()
		defer navMu.Unlock()
		return navErr
	}

	if err := p.Navigate(target.String()); err != nil {
		if berr := blocked(); berr != nil {
			return nil, berr
		}
		return nil, bf.wrap(target, err)
	}

	// Settle: wait until the DOM stops mutating for the configured
	// window, bounded by the attempt deadline through ctx.
	if err := p.WaitStable(bf.cfg.Browser.Settle); err != nil {
		if ctx.Err() != nil {
			return nil, bf.wrap(target, ctx.Err())
		}
		bf.logger.Warn("settle wait ended early, capturing anyway",
			"url", target.String(), "error", err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, bf.wrap(target, err)
	}
	// A script-driven navigation during settle may have been denied
	// after the initial load succeeded; the capture is then tainted.
	if berr := blocked(); berr != nil {
		return nil, berr
	}
	if int64(len(html)) > bf.cfg.Fetcher.MaxBodySize {
		return nil, &types.FetchError{
			URL:       target.String(),
			Transport: types.TransportRendered,
			Err:       types.ErrTooLarge,
		}
	}

	finalURL := target.String()
	if info, err := p.Info(); err == nil && info != nil && info.URL != "" {
		finalURL = info.URL
	}

	result := &types.FetchResult{
		Body:      []byte(html),
		FinalURL:  finalURL,
		Transport: types.TransportRendered,
		Elapsed:   time.Since(start),
	}

	bf.logger.Debug("rendered fetch complete",
		"url", target.String(),
		"final_url", finalURL,
		"size", len(html),
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// Transport returns the transport identifier.
func (bf *BrowserFetcher) Transport() types.Transport { return types.TransportRendered }

// Close shuts down the pool and the browser.
func (bf *BrowserFetcher) Close() error {
	bf.pool.Close()
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// navigationAllowed runs a document URL through the validator and
// reports whether the browser may issue the request.
func (bf *BrowserFetcher) navigationAllowed(ctx context.Context, rawURL string) error {
	_, err := bf.revalidate(ctx, rawURL)
	return err
}

// releaseBlankTimeout bounds the about:blank navigation in
// releasePage; the caller's context may already be cancelled.
const releaseBlankTimeout = 3 * time.Second

// releasePage blanks the page to free the last document's memory and
// hands it back to the pool.
func (bf *BrowserFetcher) releasePage(page *rod.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseBlankTimeout)
	defer cancel()
	_ = page.Context(ctx).Navigate("about:blank")
	bf.pool.Release(page)
}

func (bf *BrowserFetcher) wrap(target *safeurl.Target, err error) error {
	return &types.FetchError{
		URL:       target.String(),
		Transport: types.TransportRendered,
		Err:       mapNetErr(err),
	}
}
