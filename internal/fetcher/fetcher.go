package fetcher

import (
	"context"

	"github.com/prodlens/prodlens/internal/safeurl"
	"github.com/prodlens/prodlens/internal/types"
)

// Fetcher retrieves page content for a validated target. Two
// implementations exist: the lightweight HTTP transport and the
// rendered browser transport.
type Fetcher interface {
	// Fetch retrieves the content at the target URL. The context
	// deadline is the attempt's share of the request budget; exceeding
	// it aborts the underlying I/O.
	Fetch(ctx context.Context, target *safeurl.Target) (*types.FetchResult, error)

	// Transport returns the transport identifier.
	Transport() types.Transport

	// Close releases any resources held by the fetcher.
	Close() error
}

// Revalidator resubmits a URL to the URL validator. The fetchers call
// it on every redirect hop: a validated URL never exempts subsequent
// hops from the SSRF checks.
type Revalidator func(ctx context.Context, rawURL string) (*safeurl.Target, error)
