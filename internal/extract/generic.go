package extract

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/types"
)

// Generic handles any storefront without a dedicated extractor by
// layering structured-data sources over text heuristics.
type Generic struct {
	norm   *currency.Normalizer
	logger *slog.Logger
}

// NewGeneric creates the fallback extractor.
func NewGeneric(norm *currency.Normalizer, logger *slog.Logger) *Generic {
	return &Generic{
		norm:   norm,
		logger: logger.With("component", "extract_generic"),
	}
}

// Strategy returns the platform tag.
func (e *Generic) Strategy() types.Strategy { return types.StrategyGeneric }

// priceNodeXPath targets elements whose class or id advertises a
// price. XPath lets us match attribute substrings in one pass.
const priceNodeXPath = `//*[contains(@class,"price") or contains(@id,"price") or contains(@itemprop,"price")]`

// visiblePriceRe finds a currency-marked amount in free text.
var visiblePriceRe = regexp.MustCompile(`(?:[$€£¥₹]|USD|EUR|GBP|SAR|AED|KWD|QAR|OMR|BHD|YER|ر\.س|د\.إ|ريال|درهم|دينار)\s*[0-9][0-9.,٠-٩]*|[0-9][0-9.,٠-٩]*\s*(?:[$€£¥₹]|USD|EUR|GBP|SAR|AED|KWD|QAR|OMR|BHD|YER|ر\.س|د\.إ|ريال|درهم|دينار)`)

// Extract parses an arbitrary product page.
func (e *Generic) Extract(res *types.FetchResult) (*types.ProductRecord, error) {
	rec := types.NewProductRecord(res.FinalURL, types.StrategyGeneric)

	doc, err := res.Document()
	if err != nil {
		return nil, &types.ExtractError{URL: res.FinalURL, Strategy: types.StrategyGeneric, Err: err}
	}

	if ld := findProductLD(doc); ld != nil {
		applyProductLD(rec, ld)
		if ld.PriceText != "" {
			if price, err := e.norm.Normalize(ld.PriceText + " " + ld.Currency); err == nil {
				rec.Price = price
			}
		}
	}

	og := pageOpenGraph(res.Body)
	if rec.Title == "" {
		rec.Title = CleanTitle(firstNonEmpty(
			og.Title,
			twitterMeta(doc, "title"),
			docTitle(doc),
		))
	}
	for _, img := range og.Images {
		rec.AddImage(NormalizeImageURL(img.URL))
	}
	if len(rec.Images) == 0 {
		rec.AddImage(NormalizeImageURL(twitterMeta(doc, "image")))
	}
	if rec.Description == "" {
		rec.Description = firstNonEmpty(og.Description, twitterMeta(doc, "description"))
	}

	if !rec.HasPrice() {
		if name, price, cur, image := microdataProduct(doc); price != "" || name != "" {
			if rec.Title == "" {
				rec.Title = CleanTitle(name)
			}
			if price != "" {
				if p, err := e.norm.Normalize(price + " " + cur); err == nil {
					rec.Price = p
				}
			}
			rec.AddImage(NormalizeImageURL(image))
		}
	}

	if !rec.HasPrice() {
		if amount, cur := metaPrice(doc); amount != "" {
			if price, err := e.norm.Normalize(amount + " " + cur); err == nil {
				rec.Price = price
			}
		}
	}

	if !rec.HasPrice() {
		e.priceFromNodes(rec, res.Body)
	}

	return finish(rec, res)
}

// priceFromNodes scans price-ish elements, then the whole visible
// text, for a parseable amount.
func (e *Generic) priceFromNodes(rec *types.ProductRecord, body []byte) {
	root, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return
	}

	nodes, err := htmlquery.QueryAll(root, priceNodeXPath)
	if err == nil {
		for _, node := range nodes {
			text := strings.TrimSpace(htmlquery.InnerText(node))
			if text == "" || len(text) > 120 {
				continue
			}
			m := visiblePriceRe.FindString(text)
			if m == "" {
				continue
			}
			if price, err := e.norm.Normalize(m); err == nil {
				rec.Price = price
				return
			}
		}
	}

	// Whole-page sweep as the last resort. Keeps the first match that
	// parses, which on product pages is usually the headline price.
	text := htmlquery.InnerText(root)
	for _, m := range visiblePriceRe.FindAllString(text, 10) {
		if price, err := e.norm.Normalize(m); err == nil {
			rec.Price = price
			return
		}
	}
}
