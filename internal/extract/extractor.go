package extract

import (
	"log/slog"

	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/types"
)

// Extractor parses fetched content into a canonical product record.
// An extractor tolerates partially-missing fields; it fails with
// ErrNoData only when it can determine neither a title nor a price.
type Extractor interface {
	// Strategy returns the platform tag this extractor serves.
	Strategy() types.Strategy

	// Extract parses one fetch result into a product record.
	Extract(res *types.FetchResult) (*types.ProductRecord, error)
}

// ForStrategy returns the extractor for a strategy. The strategy set
// is closed, so the generic extractor doubles as the default arm.
func ForStrategy(s types.Strategy, norm *currency.Normalizer, logger *slog.Logger) Extractor {
	switch s {
	case types.StrategyAliExpress:
		return NewAliExpress(norm, logger)
	case types.StrategyAmazon:
		return NewAmazon(norm, logger)
	case types.StrategyShopify:
		return NewShopify(norm, logger)
	default:
		return NewGeneric(norm, logger)
	}
}

// finish applies the usefulness rule shared by all extractors: a
// record without a title and without a price is no record at all.
func finish(rec *types.ProductRecord, res *types.FetchResult) (*types.ProductRecord, error) {
	if !rec.HasTitle() && !rec.HasPrice() {
		return nil, &types.ExtractError{
			URL:      res.FinalURL,
			Strategy: rec.Platform,
			Err:      types.ErrNoData,
		}
	}
	rec.Transport = res.Transport
	rec.FinalURL = res.FinalURL
	rec.Complete = rec.HasTitle() && rec.HasPrice()
	return rec, nil
}
