package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/safeurl"
	"github.com/prodlens/prodlens/internal/types"
)

// aliexpressCookie pins AliExpress storefronts to the global site with
// USD pricing so price extraction sees a stable currency.
const aliexpressCookie = "aep_usuc_f=site=glo&b_locale=en_US&c_tp=USD&region=US"

// HTTPFetcher is the lightweight transport: a plain GET with no script
// execution. Redirects are followed manually so every hop can be
// revalidated before it is dialed.
type HTTPFetcher struct {
	client     *http.Client
	cfg        *config.FetcherConfig
	revalidate Revalidator
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64
}

// pinnedAddrsKey carries the validated address set for the current hop
// so the dialer connects to what the validator resolved, closing the
// rebinding window between validation and dial.
type pinnedAddrsKey struct{}

// pinnedDial dials the hop's validated addresses instead of resolving
// the hostname again. Hops without a pinned set (trusted domains keep
// theirs empty) fall through to a normal dial.
func pinnedDial(dialer *net.Dialer) func(ctx context.Context, network, address string) (net.Conn, error) {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		addrs, _ := ctx.Value(pinnedAddrsKey{}).([]netip.Addr)
		if len(addrs) == 0 {
			return dialer.DialContext(ctx, network, address)
		}
		_, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, addr := range addrs {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(addr.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

// NewHTTPFetcher creates the lightweight transport.
func NewHTTPFetcher(cfg *config.FetcherConfig, revalidate Revalidator, logger *slog.Logger) *HTTPFetcher {
	transport := &http.Transport{
		DialContext: pinnedDial(&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}),
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns / 2,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSInsecure,
		},
		DisableCompression: true, // we decompress ourselves, including brotli
	}

	client := &http.Client{
		Transport: transport,
		// Redirects are handled in Fetch so each hop gets revalidated.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &HTTPFetcher{
		client:     client,
		cfg:        cfg,
		revalidate: revalidate,
		logger:     logger.With("component", "http_fetcher"),
		userAgents: cfg.UserAgents,
	}
}

// Fetch issues a GET, following redirects up to the hop limit with
// per-hop revalidation, enforcing the byte cap, and aborting on the
// context deadline.
func (f *HTTPFetcher) Fetch(ctx context.Context, target *safeurl.Target) (*types.FetchResult, error) {
	start := time.Now()
	current := target

	for hop := 0; ; hop++ {
		hopCtx := ctx
		if len(current.Addrs) > 0 {
			hopCtx = context.WithValue(ctx, pinnedAddrsKey{}, current.Addrs)
		}
		resp, err := f.doWithRetry(hopCtx, current)
		if err != nil {
			return nil, err
		}

		if location := redirectLocation(resp); location != "" {
			drain(resp)
			if hop >= f.cfg.MaxRedirects {
				return nil, &types.FetchError{
					URL:       target.String(),
					Transport: types.TransportLightweight,
					Err:       fmt.Errorf("%w: max redirects (%d) reached", types.ErrTransport, f.cfg.MaxRedirects),
				}
			}
			next, err := current.URL.Parse(location)
			if err != nil {
				return nil, &types.FetchError{
					URL:       target.String(),
					Transport: types.TransportLightweight,
					Err:       fmt.Errorf("%w: bad redirect location %q", types.ErrTransport, location),
				}
			}
			// The new location goes through the full validator again.
			current, err = f.revalidate(ctx, next.String())
			if err != nil {
				return nil, err
			}
			f.logger.Debug("following redirect", "hop", hop+1, "location", next.String())
			continue
		}

		body, err := f.readCapped(resp)
		if err != nil {
			drain(resp)
			return nil, &types.FetchError{
				URL:        target.String(),
				Transport:  types.TransportLightweight,
				StatusCode: resp.StatusCode,
				Err:        err,
			}
		}
		resp.Body.Close()

		result := &types.FetchResult{
			Body:       body,
			FinalURL:   current.String(),
			Transport:  types.TransportLightweight,
			StatusCode: resp.StatusCode,
			Elapsed:    time.Since(start),
		}

		f.logger.Debug("fetch complete",
			"url", target.String(),
			"final_url", result.FinalURL,
			"status", resp.StatusCode,
			"size", len(body),
			"elapsed", result.Elapsed,
		)
		return result, nil
	}
}

// Transport returns the transport identifier.
func (f *HTTPFetcher) Transport() types.Transport { return types.TransportLightweight }

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// doWithRetry performs one GET with a small fixed retry count for
// transient network failures. Context cancellation never retries.
func (f *HTTPFetcher) doWithRetry(ctx context.Context, target *safeurl.Target) (*http.Response, error) {
	var lastErr error
	attempts := f.cfg.RetryAttempts + 1

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, f.wrapf(target, ctx.Err())
			case <-time.After(f.cfg.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, f.wrapf(target, err)
		}
		f.setHeaders(req, target)

		resp, err := f.client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
		f.logger.Debug("retrying after transient error", "url", target.String(), "attempt", i+1, "error", err)
	}
	return nil, f.wrapf(target, lastErr)
}

func (f *HTTPFetcher) setHeaders(req *http.Request, target *safeurl.Target) {
	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")

	if strings.Contains(target.Host, "aliexpress") {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Cookie", aliexpressCookie)
	} else {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9,ar;q=0.6")
	}
}

// readCapped reads the (decompressed) body, failing with ErrTooLarge
// once the cap is exceeded instead of truncating silently.
func (f *HTTPFetcher) readCapped(resp *http.Response) ([]byte, error) {
	max := f.cfg.MaxBodySize

	reader, err := decompressReader(resp, io.LimitReader(resp.Body, max+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	// Transcode legacy encodings (windows-1256 Arabic storefronts in
	// particular) to UTF-8 before the extractors see the bytes.
	reader, err = charset.NewReader(reader, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	// Cap again after decompression so a compressed bomb cannot blow
	// past the limit.
	body, err := io.ReadAll(io.LimitReader(reader, max+1))
	if err != nil {
		return nil, mapNetErr(err)
	}
	if int64(len(body)) > max {
		return nil, types.ErrTooLarge
	}
	return body, nil
}

func (f *HTTPFetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return "prodlens/" + config.Version
	}
	idx := f.uaIndex.Add(1) % int64(len(f.userAgents))
	return f.userAgents[idx]
}

func (f *HTTPFetcher) wrapf(target *safeurl.Target, err error) error {
	return &types.FetchError{
		URL:       target.String(),
		Transport: types.TransportLightweight,
		Err:       mapNetErr(err),
		Retryable: isRetryableError(err),
	}
}

// redirectLocation returns the Location header for 3xx responses.
func redirectLocation(resp *http.Response) string {
	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		return ""
	}
	return resp.Header.Get("Location")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// mapNetErr folds transport-level errors into the sentinel kinds.
func mapNetErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", types.ErrTimeout, err)
	case errors.Is(err, types.ErrTooLarge),
		errors.Is(err, types.ErrForbiddenHost),
		errors.Is(err, types.ErrInvalidURL):
		return err
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %v", types.ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
}

// isRetryableError checks if a network error warrants a retry: timeouts,
// connection resets, unexpected EOF, connection refused.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}
