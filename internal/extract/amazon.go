package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/types"
)

// Amazon reads the retail page's stable DOM ids and falls back to the
// inline offer JSON the buybox widgets ship with.
type Amazon struct {
	norm   *currency.Normalizer
	logger *slog.Logger
}

// NewAmazon creates the Amazon extractor.
func NewAmazon(norm *currency.Normalizer, logger *slog.Logger) *Amazon {
	return &Amazon{
		norm:   norm,
		logger: logger.With("component", "extract_amazon"),
	}
}

// Strategy returns the platform tag.
func (e *Amazon) Strategy() types.Strategy { return types.StrategyAmazon }

var amazonPriceAmountRe = regexp.MustCompile(`"priceAmount"\s*:\s*([0-9]+(?:\.[0-9]+)?)`)

// Extract parses an Amazon product page.
func (e *Amazon) Extract(res *types.FetchResult) (*types.ProductRecord, error) {
	rec := types.NewProductRecord(res.FinalURL, types.StrategyAmazon)

	doc, err := res.Document()
	if err != nil {
		return nil, &types.ExtractError{URL: res.FinalURL, Strategy: types.StrategyAmazon, Err: err}
	}

	if ld := findProductLD(doc); ld != nil {
		applyProductLD(rec, ld)
		if ld.PriceText != "" {
			if price, err := e.norm.Normalize(ld.PriceText + " " + ld.Currency); err == nil {
				rec.Price = price
			}
		}
	}

	if name, price, cur, image := microdataProduct(doc); name != "" || price != "" {
		if rec.Title == "" {
			rec.Title = CleanTitle(name)
		}
		if !rec.HasPrice() && price != "" {
			if p, err := e.norm.Normalize(price + " " + cur); err == nil {
				rec.Price = p
			}
		}
		rec.AddImage(NormalizeImageURL(image))
	}

	e.fromDOM(rec, doc)

	if !rec.HasPrice() {
		if m := amazonPriceAmountRe.FindSubmatch(res.Body); m != nil {
			if price, err := e.norm.Normalize("$" + string(m[1])); err == nil {
				rec.Price = price
			}
		}
	}

	if !rec.HasTitle() || len(rec.Images) == 0 {
		og := pageOpenGraph(res.Body)
		if rec.Title == "" {
			rec.Title = CleanTitle(firstNonEmpty(og.Title, docTitle(doc)))
		}
		for _, img := range og.Images {
			rec.AddImage(NormalizeImageURL(img.URL))
		}
	}

	return finish(rec, res)
}

// fromDOM reads the retail template's well-known ids and classes.
func (e *Amazon) fromDOM(rec *types.ProductRecord, doc *goquery.Document) {
	if rec.Title == "" {
		rec.Title = CleanTitle(doc.Find("#productTitle").First().Text())
	}

	if !rec.HasPrice() {
		raw := strings.TrimSpace(doc.Find(".a-price .a-offscreen").First().Text())
		if raw == "" {
			whole := strings.TrimSpace(doc.Find(".a-price-whole").First().Text())
			frac := strings.TrimSpace(doc.Find(".a-price-fraction").First().Text())
			if whole != "" {
				raw = strings.TrimSuffix(whole, ".")
				if frac != "" {
					raw += "." + frac
				}
				sym := strings.TrimSpace(doc.Find(".a-price-symbol").First().Text())
				raw = sym + raw
			}
		}
		if raw != "" {
			if price, err := e.norm.Normalize(raw); err == nil {
				rec.Price = price
			}
		}
	}

	if img, ok := doc.Find("#landingImage").First().Attr("src"); ok {
		rec.AddImage(NormalizeImageURL(img))
	}
	if img, ok := doc.Find("#imgBlkFront").First().Attr("src"); ok {
		rec.AddImage(NormalizeImageURL(img))
	}

	// Breadcrumb rail.
	doc.Find("#wayfinding-breadcrumbs_feature_div a").Each(func(_ int, sel *goquery.Selection) {
		if crumb := strings.TrimSpace(sel.Text()); crumb != "" {
			rec.Breadcrumbs = append(rec.Breadcrumbs, crumb)
		}
	})
	if n := len(rec.Breadcrumbs); n > 0 && rec.Category == "" {
		rec.Category = rec.Breadcrumbs[n-1]
	}

	// Feature bullets double as a short description.
	if rec.Description == "" {
		var bullets []string
		doc.Find("#feature-bullets li span.a-list-item").Each(func(_ int, sel *goquery.Selection) {
			if b := strings.TrimSpace(sel.Text()); b != "" {
				bullets = append(bullets, b)
			}
		})
		rec.Description = strings.Join(bullets, " ")
	}

	// Product detail table feeds the spec map.
	doc.Find("#productDetails_techSpec_section_1 tr").Each(func(_ int, sel *goquery.Selection) {
		key := strings.TrimSpace(sel.Find("th").Text())
		val := strings.TrimSpace(sel.Find("td").Text())
		rec.SetSpec(key, val)
	})
}
