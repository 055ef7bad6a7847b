package extract

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/types"
)

// Shopify prefers the storefront's public product JSON endpoint; when
// handed an HTML page instead it falls back to the structured data all
// Shopify themes emit.
type Shopify struct {
	norm   *currency.Normalizer
	logger *slog.Logger
}

// NewShopify creates the Shopify extractor.
func NewShopify(norm *currency.Normalizer, logger *slog.Logger) *Shopify {
	return &Shopify{
		norm:   norm,
		logger: logger.With("component", "extract_shopify"),
	}
}

// Strategy returns the platform tag.
func (e *Shopify) Strategy() types.Strategy { return types.StrategyShopify }

// ShopifyProductJSONURL rewrites a /products/{handle} page URL to the
// storefront's product JSON endpoint. It returns the input unchanged
// when the path does not contain a product handle.
func ShopifyProductJSONURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	idx := strings.Index(u.Path, "/products/")
	if idx < 0 {
		return raw
	}
	handle := strings.Trim(u.Path[idx+len("/products/"):], "/")
	if handle == "" || strings.Contains(handle, "/") {
		return raw
	}
	if strings.HasSuffix(handle, ".json") {
		return raw
	}
	u.Path = u.Path[:idx] + "/products/" + handle + ".json"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// shopifyProduct mirrors the storefront product JSON document.
type shopifyProduct struct {
	Product struct {
		Title       string `json:"title"`
		BodyHTML    string `json:"body_html"`
		ProductType string `json:"product_type"`
		Vendor      string `json:"vendor"`
		Variants    []struct {
			Title string `json:"title"`
			Price string `json:"price"`
		} `json:"variants"`
		Options []struct {
			Name   string   `json:"name"`
			Values []string `json:"values"`
		} `json:"options"`
		Images []struct {
			Src string `json:"src"`
		} `json:"images"`
	} `json:"product"`
}

// Extract parses either a product JSON body or a Shopify theme page.
func (e *Shopify) Extract(res *types.FetchResult) (*types.ProductRecord, error) {
	rec := types.NewProductRecord(res.FinalURL, types.StrategyShopify)

	if looksLikeJSON(res.Body) {
		if e.fromProductJSON(rec, res.Body) {
			return finish(rec, res)
		}
	}

	e.fromThemePage(rec, res)
	return finish(rec, res)
}

func looksLikeJSON(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (e *Shopify) fromProductJSON(rec *types.ProductRecord, body []byte) bool {
	var doc shopifyProduct
	if err := json.Unmarshal(body, &doc); err != nil || doc.Product.Title == "" {
		return false
	}
	p := doc.Product

	rec.Title = CleanTitle(p.Title)
	rec.Category = p.ProductType
	rec.Description = stripTags(p.BodyHTML)
	if p.Vendor != "" {
		rec.SetSpec("Vendor", p.Vendor)
	}

	// The product JSON carries the amount in the shop's own currency
	// without naming it, so the price stays currency-undetected.
	if len(p.Variants) > 0 && p.Variants[0].Price != "" {
		if amount, err := decimal.NewFromString(p.Variants[0].Price); err == nil {
			if price, err := e.norm.FromAmount(amount, ""); err == nil {
				rec.Price = price
			}
		}
	}

	for _, opt := range p.Options {
		rec.SetVariant(opt.Name, opt.Values)
	}
	for _, img := range p.Images {
		rec.AddImage(NormalizeImageURL(img.Src))
	}
	return true
}

// fromThemePage reads JSON-LD and meta tags, which every Shopify theme
// renders.
func (e *Shopify) fromThemePage(rec *types.ProductRecord, res *types.FetchResult) {
	doc, err := res.Document()
	if err != nil {
		return
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
		rec.Title = CleanTitle(firstNonEmpty(og.Title, docTitle(doc)))
	}
	for _, img := range og.Images {
		rec.AddImage(NormalizeImageURL(img.URL))
	}

	if !rec.HasPrice() {
		if amount, cur := metaPrice(doc); amount != "" {
			if price, err := e.norm.Normalize(amount + " " + cur); err == nil {
				rec.Price = price
			}
		}
	}
}
