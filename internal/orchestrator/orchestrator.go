package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prodlens/prodlens/internal/archive"
	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/extract"
	"github.com/prodlens/prodlens/internal/fetcher"
	"github.com/prodlens/prodlens/internal/platform"
	"github.com/prodlens/prodlens/internal/safeurl"
	"github.com/prodlens/prodlens/internal/types"
)

// State is one step of the per-request pipeline.
type State int

const (
	StateValidating State = iota
	StateClassifying
	StateFetching
	StateExtracting
	StateEvaluating
	StateDone
	StateFailed
)

var stateNames = [...]string{
	"validating", "classifying", "fetching", "extracting",
	"evaluating", "done", "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ExtractRequest is one inbound extraction job.
type ExtractRequest struct {
	// URL is the caller-supplied product page URL.
	URL string

	// Language is the caller's preferred content language. Informational
	// for now; the fetchers negotiate their own Accept-Language.
	Language string

	// Strict requires scrape-backed title and price: an incomplete best
	// attempt fails the request instead of returning a partial record.
	Strict bool

	// Hint is an optional pre-computed category guess from an image
	// recognition pass run by the caller. Merged into the record only
	// when scraping yields no category of its own.
	Hint string
}

// Orchestrator drives one extraction request through validation,
// classification, up to two fetch attempts, and extraction, under a
// single time budget. Safe for concurrent use; per-request work shares
// nothing but the read-only configuration and the rendered transport's
// page pool.
type Orchestrator struct {
	cfg         *config.Config
	validator   *safeurl.Validator
	lightweight fetcher.Fetcher
	rendered    fetcher.Fetcher
	norm        *currency.Normalizer
	archive     archive.Archive
	logger      *slog.Logger
}

// New assembles an orchestrator. rendered may be nil when no browser
// is available; escalation is then skipped. arch may be nil.
func New(
	cfg *config.Config,
	validator *safeurl.Validator,
	lightweight, rendered fetcher.Fetcher,
	norm *currency.Normalizer,
	arch archive.Archive,
	logger *slog.Logger,
) *Orchestrator {
	if arch == nil {
		arch = archive.Noop{}
	}
	return &Orchestrator{
		cfg:         cfg,
		validator:   validator,
		lightweight: lightweight,
		rendered:    rendered,
		norm:        norm,
		archive:     arch,
		logger:      logger.With("component", "orchestrator"),
	}
}

// attemptOutcome is one fetch+extract attempt's result.
type attemptOutcome struct {
	rec       *types.ProductRecord
	transport types.Transport
	err       error
}

// Extract runs one request to a terminal state. The caller receives
// either a record (possibly incomplete, unless Strict) or exactly one
// of the package's error kinds.
func (o *Orchestrator) Extract(ctx context.Context, req ExtractRequest) (*types.ProductRecord, error) {
	requestID := uuid.NewString()
	logger := o.logger.With("request_id", requestID)

	deadline := time.Now().Add(o.cfg.Budget.Overall)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	remaining := func() time.Duration { return time.Until(deadline) }

	logger.Info("request start", "state", StateValidating, "url", req.URL,
		"strict", req.Strict, "language", req.Language)

	target, err := o.validator.Validate(ctx, req.URL)
	if err != nil {
		logger.Warn("validation rejected", "state", StateFailed, "error", err)
		return nil, err
	}

	strategy := platform.Classify(target)
	logger.Debug("classified", "state", StateClassifying, "strategy", strategy)

	var outcomes []attemptOutcome

	renderFirst := platform.RequiresRendering(strategy) && o.rendered != nil
	if !renderFirst {
		out := o.attempt(ctx, logger, o.lightweight, o.cfg.Budget.Lightweight, remaining(), target, strategy)
		outcomes = append(outcomes, out)
		if out.err == nil && out.rec.Complete {
			return o.done(ctx, logger, out.rec, requestID, req)
		}
	}

	// Escalate to the rendered transport when the first attempt came up
	// short, provided enough budget remains to make it worth starting.
	if o.rendered != nil {
		if left := remaining(); left >= o.cfg.Budget.RenderedMin {
			out := o.attempt(ctx, logger, o.rendered, o.cfg.Budget.Rendered, left, target, strategy)
			outcomes = append(outcomes, out)
		} else {
			logger.Debug("rendered attempt skipped", "remaining", left,
				"minimum", o.cfg.Budget.RenderedMin)
		}
	}

	best := bestOutcome(outcomes)
	logger.Debug("evaluating", "state", StateEvaluating,
		"attempts", len(outcomes), "has_record", best.rec != nil)
	if best.rec == nil {
		err := lastError(outcomes)
		logger.Warn("all attempts failed", "state", StateFailed, "error", err)
		return nil, err
	}
	if req.Strict && !best.rec.Complete {
		logger.Warn("strict shortfall", "state", StateFailed,
			"has_title", best.rec.HasTitle(), "has_price", best.rec.HasPrice())
		return nil, &types.ExtractError{
			URL:      req.URL,
			Strategy: strategy,
			Err:      types.ErrPartialResult,
		}
	}
	return o.done(ctx, logger, best.rec, requestID, req)
}

// attempt runs one fetch+extract cycle on the given transport, bounded
// by the smaller of the phase budget and the remaining overall budget.
func (o *Orchestrator) attempt(
	ctx context.Context,
	logger *slog.Logger,
	f fetcher.Fetcher,
	phase, remaining time.Duration,
	target *safeurl.Target,
	strategy types.Strategy,
) attemptOutcome {
	budget := phase
	if remaining < budget {
		budget = remaining
	}
	if budget <= 0 {
		return attemptOutcome{transport: f.Transport(), err: &types.FetchError{
			URL: target.String(), Transport: f.Transport(), Err: types.ErrTimeout,
		}}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	fetchTarget := target
	if strategy == types.StrategyShopify && f.Transport() == types.TransportLightweight {
		fetchTarget = o.shopifyJSONTarget(attemptCtx, logger, target)
	}

	logger.Debug("fetch attempt", "state", StateFetching,
		"transport", f.Transport(), "budget", budget, "url", fetchTarget.String())

	res, err := f.Fetch(attemptCtx, fetchTarget)
	if err != nil {
		logger.Debug("fetch failed", "transport", f.Transport(), "error", err)
		return attemptOutcome{transport: f.Transport(), err: err}
	}
	if !res.IsSuccess() {
		err := &types.FetchError{
			URL: fetchTarget.String(), Transport: f.Transport(),
			StatusCode: res.StatusCode, Err: types.ErrTransport,
		}
		logger.Debug("fetch non-2xx", "transport", f.Transport(), "status", res.StatusCode)
		return attemptOutcome{transport: f.Transport(), err: err}
	}

	logger.Debug("extracting", "state", StateExtracting,
		"transport", f.Transport(), "bytes", len(res.Body), "elapsed", res.Elapsed)

	ex := extract.ForStrategy(strategy, o.norm, logger)
	rec, err := ex.Extract(res)
	if err != nil {
		return attemptOutcome{transport: f.Transport(), err: err}
	}
	return attemptOutcome{rec: rec, transport: f.Transport()}
}

// shopifyJSONTarget rewrites a Shopify product page URL to the
// storefront JSON endpoint and revalidates it. Falls back to the
// original target when the rewrite or revalidation fails.
func (o *Orchestrator) shopifyJSONTarget(ctx context.Context, logger *slog.Logger, target *safeurl.Target) *safeurl.Target {
	jsonURL := extract.ShopifyProductJSONURL(target.String())
	if jsonURL == target.String() {
		return target
	}
	rewritten, err := o.validator.Validate(ctx, jsonURL)
	if err != nil {
		logger.Debug("product json rewrite rejected", "url", jsonURL, "error", err)
		return target
	}
	return rewritten
}

// done finalizes a record: request metadata, hint merge, evaluation
// log, and the optional archive write.
func (o *Orchestrator) done(ctx context.Context, logger *slog.Logger, rec *types.ProductRecord, requestID string, req ExtractRequest) (*types.ProductRecord, error) {
	rec.RequestID = requestID
	if rec.SourceURL == "" {
		rec.SourceURL = req.URL
	}
	if rec.Category == "" && req.Hint != "" {
		rec.Category = req.Hint
	}

	logger.Info("request done", "state", StateDone,
		"transport", rec.Transport, "complete", rec.Complete,
		"fields", rec.FieldCount())

	if err := o.archive.Store(ctx, rec); err != nil {
		// Archival is best-effort; the caller still gets the record.
		logger.Warn("archive store failed", "error", err)
	}
	return rec, nil
}

// bestOutcome picks the attempt with the richest record. Complete
// beats incomplete; field count breaks ties. Later attempts win equal
// scores, so a rendered re-fetch supersedes a thin lightweight record.
func bestOutcome(outcomes []attemptOutcome) attemptOutcome {
	var best attemptOutcome
	bestScore := -1
	for _, out := range outcomes {
		if out.rec == nil {
			continue
		}
		score := out.rec.FieldCount()
		if out.rec.Complete {
			score += 100
		}
		if score >= bestScore {
			best = out
			bestScore = score
		}
	}
	return best
}

// lastError surfaces the most specific failure: validation and policy
// errors from any attempt win over generic transport noise.
func lastError(outcomes []attemptOutcome) error {
	var last error
	for _, out := range outcomes {
		if out.err == nil {
			continue
		}
		last = out.err
		if errors.Is(out.err, types.ErrForbiddenHost) || errors.Is(out.err, types.ErrTooLarge) {
			return out.err
		}
	}
	if last == nil {
		last = types.ErrNoData
	}
	return last
}

// Close shuts down the transports and the archive.
func (o *Orchestrator) Close() error {
	var first error
	if err := o.lightweight.Close(); err != nil {
		first = err
	}
	if o.rendered != nil {
		if err := o.rendered.Close(); err != nil && first == nil {
			first = err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.archive.Close(ctx); err != nil && first == nil {
		first = err
	}
	return first
}
