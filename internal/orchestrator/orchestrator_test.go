package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/fetcher"
	"github.com/prodlens/prodlens/internal/safeurl"
	"github.com/prodlens/prodlens/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const completePage = `<html><head>
<meta property="og:title" content="Camping Lantern"/>
<meta property="og:image" content="https://cdn.example.com/lantern.jpg"/>
</head><body><div class="price">$19.99</div></body></html>`

const shellPage = `<html><head>
<meta property="og:title" content="Camping Lantern"/>
</head><body><div id="app"></div></body></html>`

// fakeFetcher serves canned bodies and records the URLs it was asked
// to fetch.
type fakeFetcher struct {
	transport types.Transport
	body      string
	err       error
	delay     time.Duration

	mu   sync.Mutex
	urls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, target *safeurl.Target) (*types.FetchResult, error) {
	f.mu.Lock()
	f.urls = append(f.urls, target.String())
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, types.ErrTimeout
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.FetchResult{
		Body:       []byte(f.body),
		FinalURL:   target.String(),
		Transport:  f.transport,
		StatusCode: 200,
	}, nil
}

func (f *fakeFetcher) Transport() types.Transport { return f.transport }
func (f *fakeFetcher) Close() error               { return nil }

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Budget.Overall = 5 * time.Second
	cfg.Budget.Lightweight = 2 * time.Second
	cfg.Budget.Rendered = 3 * time.Second
	cfg.Budget.RenderedMin = 500 * time.Millisecond
	return cfg
}

func testValidator(hosts map[string][]string) *safeurl.Validator {
	resolver := func(_ context.Context, host string) ([]netip.Addr, error) {
		raw, ok := hosts[host]
		if !ok {
			return nil, fmt.Errorf("no such host %q", host)
		}
		addrs := make([]netip.Addr, 0, len(raw))
		for _, s := range raw {
			addrs = append(addrs, netip.MustParseAddr(s))
		}
		return addrs, nil
	}
	return safeurl.NewValidator(&config.PolicyConfig{MaxURLLength: 2048}, testLogger,
		safeurl.WithResolver(resolver))
}

func newTestOrchestrator(cfg *config.Config, hosts map[string][]string, light, rendered fetcher.Fetcher) *Orchestrator {
	norm := currency.NewNormalizer(&cfg.Currency, testLogger)
	return New(cfg, testValidator(hosts), light, rendered, norm, nil, testLogger)
}

func TestExtractLightweightComplete(t *testing.T) {
	light := &fakeFetcher{transport: types.TransportLightweight, body: completePage}
	rendered := &fakeFetcher{transport: types.TransportRendered, body: completePage}
	o := newTestOrchestrator(testConfig(), map[string][]string{
		"example-shop.test": {"93.184.216.34"},
	}, light, rendered)

	rec, err := o.Extract(context.Background(), ExtractRequest{URL: "https://example-shop.test/item/42"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !rec.Complete {
		t.Error("expected complete record")
	}
	if rec.Transport != types.TransportLightweight {
		t.Errorf("transport = %s", rec.Transport)
	}
	if rec.Title != "Camping Lantern" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Price == nil || rec.Price.Original.Amount.String() != "19.99" {
		t.Errorf("price = %+v", rec.Price)
	}
	if rendered.calls() != 0 {
		t.Error("rendered transport should not run when lightweight is complete")
	}
	if rec.RequestID == "" {
		t.Error("request id not assigned")
	}
}

func TestExtractEscalatesToRendered(t *testing.T) {
	light := &fakeFetcher{transport: types.TransportLightweight, body: shellPage}
	rendered := &fakeFetcher{transport: types.TransportRendered, body: completePage}
	o := newTestOrchestrator(testConfig(), map[string][]string{
		"example-shop.test": {"93.184.216.34"},
	}, light, rendered)

	rec, err := o.Extract(context.Background(), ExtractRequest{URL: "https://example-shop.test/item/42"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if light.calls() != 1 || rendered.calls() != 1 {
		t.Fatalf("calls: lightweight=%d rendered=%d", light.calls(), rendered.calls())
	}
	if rec.Transport != types.TransportRendered {
		t.Errorf("transport = %s", rec.Transport)
	}
	if !rec.Complete {
		t.Error("expected complete record after escalation")
	}
}

func TestExtractRenderedFirstForAliExpress(t *testing.T) {
	light := &fakeFetcher{transport: types.TransportLightweight, body: completePage}
	rendered := &fakeFetcher{transport: types.TransportRendered, body: `<html><body><script>
window.runParams = {"titleModule":{"subject":"Earbuds"},"priceModule":{"formatedPrice":"US $9.99"}};
</script></body></html>`}
	o := newTestOrchestrator(testConfig(), map[string][]string{
		"www.aliexpress.com": {"47.246.1.1"},
	}, light, rendered)

	rec, err := o.Extract(context.Background(), ExtractRequest{URL: "https://www.aliexpress.com/item/100.html"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if light.calls() != 0 {
		t.Error("lightweight should be skipped for a render-required platform")
	}
	if rec.Platform != types.StrategyAliExpress || rec.Title != "Earbuds" {
		t.Errorf("record = %+v", rec)
	}
}

func TestExtractBudgetExhaustionNonStrict(t *testing.T) {
	cfg := testConfig()
	cfg.Budget.Overall = 400 * time.Millisecond
	cfg.Budget.Lightweight = 300 * time.Millisecond
	cfg.Budget.RenderedMin = 300 * time.Millisecond

	light := &fakeFetcher{transport: types.TransportLightweight, body: shellPage, delay: 200 * time.Millisecond}
	rendered := &fakeFetcher{transport: types.TransportRendered, body: completePage}
	o := newTestOrchestrator(cfg, map[string][]string{
		"example-shop.test": {"93.184.216.34"},
	}, light, rendered)

	rec, err := o.Extract(context.Background(), ExtractRequest{URL: "https://example-shop.test/item/42"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rendered.calls() != 0 {
		t.Error("rendered attempt should be skipped below the minimum budget")
	}
	if rec.Complete {
		t.Error("record should be incomplete")
	}
	if rec.Title != "Camping Lantern" {
		t.Errorf("title = %q", rec.Title)
	}
}

func TestExtractBudgetExhaustionStrict(t *testing.T) {
	cfg := testConfig()
	cfg.Budget.Overall = 400 * time.Millisecond
	cfg.Budget.Lightweight = 300 * time.Millisecond
	cfg.Budget.RenderedMin = 300 * time.Millisecond

	light := &fakeFetcher{transport: types.TransportLightweight, body: shellPage, delay: 200 * time.Millisecond}
	rendered := &fakeFetcher{transport: types.TransportRendered, body: completePage}
	o := newTestOrchestrator(cfg, map[string][]string{
		"example-shop.test": {"93.184.216.34"},
	}, light, rendered)

	_, err := o.Extract(context.Background(), ExtractRequest{URL: "https://example-shop.test/item/42", Strict: true})
	if !errors.Is(err, types.ErrPartialResult) {
		t.Fatalf("err = %v, want ErrPartialResult", err)
	}
}

func TestExtractForbiddenHostNoFetch(t *testing.T) {
	light := &fakeFetcher{transport: types.TransportLightweight, body: completePage}
	o := newTestOrchestrator(testConfig(), map[string][]string{
		"internal.test": {"127.0.0.1"},
	}, light, nil)

	_, err := o.Extract(context.Background(), ExtractRequest{URL: "https://internal.test/admin"})
	if !errors.Is(err, types.ErrForbiddenHost) {
		t.Fatalf("err = %v, want ErrForbiddenHost", err)
	}
	if light.calls() != 0 {
		t.Error("no fetch may run after a validation failure")
	}
}

func TestExtractAllAttemptsFail(t *testing.T) {
	empty := `<html><body><p>nothing here</p></body></html>`
	light := &fakeFetcher{transport: types.TransportLightweight, body: empty}
	rendered := &fakeFetcher{transport: types.TransportRendered, body: empty}
	o := newTestOrchestrator(testConfig(), map[string][]string{
		"example-shop.test": {"93.184.216.34"},
	}, light, rendered)

	_, err := o.Extract(context.Background(), ExtractRequest{URL: "https://example-shop.test/item/42"})
	if !errors.Is(err, types.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	if light.calls() != 1 || rendered.calls() != 1 {
		t.Errorf("calls: lightweight=%d rendered=%d", light.calls(), rendered.calls())
	}
}

func TestExtractHintMergedWhenNoCategory(t *testing.T) {
	light := &fakeFetcher{transport: types.TransportLightweight, body: completePage}
	o := newTestOrchestrator(testConfig(), map[string][]string{
		"example-shop.test": {"93.184.216.34"},
	}, light, nil)

	rec, err := o.Extract(context.Background(), ExtractRequest{
		URL:  "https://example-shop.test/item/42",
		Hint: "camping gear",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Category != "camping gear" {
		t.Errorf("category = %q", rec.Category)
	}
}

func TestExtractShopifyJSONRewrite(t *testing.T) {
	body := `{"product":{"title":"Canvas Tote","variants":[{"title":"Default","price":"24.00"}]}}`
	light := &fakeFetcher{transport: types.TransportLightweight, body: body}
	o := newTestOrchestrator(testConfig(), map[string][]string{
		"totes.myshopify.com": {"23.227.38.74"},
	}, light, nil)

	rec, err := o.Extract(context.Background(), ExtractRequest{URL: "https://totes.myshopify.com/products/canvas-tote"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if want := "https://totes.myshopify.com/products/canvas-tote.json"; light.urls[0] != want {
		t.Errorf("fetched %q, want %q", light.urls[0], want)
	}
	if rec.Platform != types.StrategyShopify || rec.Title != "Canvas Tote" {
		t.Errorf("record = %+v", rec)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateValidating:  "validating",
		StateClassifying: "classifying",
		StateFetching:    "fetching",
		StateExtracting:  "extracting",
		StateEvaluating:  "evaluating",
		StateDone:        "done",
		StateFailed:      "failed",
		State(99):        "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
