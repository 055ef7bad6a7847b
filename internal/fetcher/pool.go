package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/prodlens/prodlens/internal/types"
)

// PagePool bounds the number of concurrently rendering browser pages.
// Acquire blocks up to the queue-wait ceiling and then fails fast so a
// burst of rendered fetches cannot queue unboundedly.
type PagePool struct {
	pages  chan *rod.Page
	wait   time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	// closePage disposes of a page that cannot rejoin the pool.
	// Replaceable in tests, where pages are placeholders.
	closePage func(*rod.Page)
}

// NewPagePool builds a pool over pre-created pages.
func NewPagePool(pages []*rod.Page, wait time.Duration, logger *slog.Logger) *PagePool {
	ch := make(chan *rod.Page, len(pages))
	for _, p := range pages {
		ch <- p
	}
	return &PagePool{
		pages:     ch,
		wait:      wait,
		logger:    logger.With("component", "page_pool"),
		closePage: func(p *rod.Page) { _ = p.Close() },
	}
}

// Acquire takes a page from the pool. It fails with
// ErrResourceExhausted once the wait ceiling passes or the pool is
// closed, or with the context's error if the attempt deadline lands
// first.
func (p *PagePool) Acquire(ctx context.Context) (*rod.Page, error) {
	if p.isClosed() {
		return nil, types.ErrResourceExhausted
	}

	select {
	case page := <-p.pages:
		return page, nil
	default:
	}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()

	select {
	case page := <-p.pages:
		return page, nil
	case <-timer.C:
		p.logger.Warn("pool saturated", "wait", p.wait)
		return nil, types.ErrResourceExhausted
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", types.ErrTimeout, ctx.Err())
	}
}

// Release returns a page to the pool. Safe to call on every exit path,
// including after Close: an in-flight fetch finishing during shutdown
// hands its page straight to the closer instead of the pool.
func (p *PagePool) Release(page *rod.Page) {
	if page == nil {
		return
	}
	if p.isClosed() {
		p.closePage(page)
		return
	}
	select {
	case p.pages <- page:
	default:
		// Pool already full: this page is a stray, close it.
		p.closePage(page)
	}
}

// Close marks the pool closed and disposes of the pages currently idle
// in it. Pages still out on loan are closed by their Release. The
// channel itself is never closed, so a late Release cannot panic.
func (p *PagePool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case page := <-p.pages:
			p.closePage(page)
		default:
			return
		}
	}
}

func (p *PagePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
