package extract

import (
	"log/slog"
	"regexp"

	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/types"
)

// AliExpress pulls product state out of the JSON payload the site's
// front-end serializes into script content, falling back to DOM
// heuristics when no payload survives into the fetched document.
type AliExpress struct {
	norm   *currency.Normalizer
	logger *slog.Logger
}

// NewAliExpress creates the AliExpress-family extractor.
func NewAliExpress(norm *currency.Normalizer, logger *slog.Logger) *AliExpress {
	return &AliExpress{
		norm:   norm,
		logger: logger.With("component", "extract_aliexpress"),
	}
}

// Strategy returns the platform tag.
func (e *AliExpress) Strategy() types.Strategy { return types.StrategyAliExpress }

// titlePaths, imagePaths, pricePaths walk the module layout the
// storefront serializes. Layouts drift between generations, so each
// field has several candidate paths tried in order.
var (
	aeTitlePaths = [][]string{
		{"titleModule", "subject"},
		{"pageModule", "title"},
		{"productInfoComponent", "subject"},
		{"data", "titleModule", "subject"},
		{"subject"},
	}
	aeImagePaths = [][]string{
		{"imageModule", "imagePathList"},
		{"imageModule", "imagePaths"},
		{"data", "imageModule", "imagePathList"},
		{"imageList"},
	}
	aePricePaths = [][]string{
		{"priceModule", "formatedActivityPrice"},
		{"priceModule", "formatedPrice"},
		{"priceModule", "actSkuCalPrice"},
		{"priceModule", "skuCalPrice"},
		{"data", "priceModule", "formatedActivityPrice"},
		{"data", "priceModule", "formatedPrice"},
		{"price", "formatedAmount"},
	}
)

// aePriceRegexps is the last-resort price scan over raw script text,
// in storefront-preference order.
var aePriceRegexps = []*regexp.Regexp{
	regexp.MustCompile(`"tradePrice"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`"discountedPrice"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`"salePrice"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`"actSkuCalPrice"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`"skuCalPrice"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`"currentPrice"\s*:\s*"([^"]+)"`),
}

// Extract parses an AliExpress product page.
func (e *AliExpress) Extract(res *types.FetchResult) (*types.ProductRecord, error) {
	rec := types.NewProductRecord(res.FinalURL, types.StrategyAliExpress)

	if data, ok := extractScriptJSON(res.Body, aliexpressMarkers); ok {
		e.fromStateJSON(rec, data)
	} else {
		e.logger.Debug("no embedded state payload", "url", res.FinalURL)
	}

	// DOM fallback for whatever the payload did not carry.
	if !rec.HasTitle() || !rec.HasPrice() || len(rec.Images) == 0 {
		e.domFallback(rec, res)
	}

	return finish(rec, res)
}

// fromStateJSON walks the serialized module tree.
func (e *AliExpress) fromStateJSON(rec *types.ProductRecord, data map[string]any) {
	root := data
	if inner, ok := walk(data, "data").(map[string]any); ok {
		// Some generations nest everything one level down.
		if _, hasModules := inner["titleModule"]; hasModules {
			root = inner
		}
	}

	for _, path := range aeTitlePaths {
		if title := walkString(root, path...); title != "" {
			rec.Title = CleanTitle(title)
			break
		}
	}

	for _, path := range aeImagePaths {
		imgs := walkList(root, path...)
		if len(imgs) == 0 {
			continue
		}
		for _, img := range imgs {
			if s, ok := img.(string); ok {
				rec.AddImage(NormalizeImageURL(s))
			}
		}
		if len(rec.Images) > 0 {
			break
		}
	}

	for _, path := range aePricePaths {
		raw := walkString(root, path...)
		if raw == "" {
			continue
		}
		if price, err := e.norm.Normalize(raw); err == nil {
			rec.Price = price
			break
		}
	}
	// SKU ladder: take the first/default variant's price when the
	// price module came up empty.
	if !rec.HasPrice() {
		e.priceFromSKULadder(rec, root)
	}

	e.variantsFromSKUModule(rec, root)

	for _, prop := range walkList(root, "specsModule", "props") {
		if m, ok := prop.(map[string]any); ok {
			rec.SetSpec(stringField(m, "attrName"), stringField(m, "attrValue"))
		}
	}

	for _, crumb := range walkList(root, "crossLinkModule", "breadCrumbPathList") {
		if m, ok := crumb.(map[string]any); ok {
			if name := stringField(m, "name"); name != "" {
				rec.Breadcrumbs = append(rec.Breadcrumbs, name)
			}
		}
	}
	if n := len(rec.Breadcrumbs); n > 0 && rec.Category == "" {
		rec.Category = rec.Breadcrumbs[n-1]
	}
}

func (e *AliExpress) priceFromSKULadder(rec *types.ProductRecord, root map[string]any) {
	ladder := walkList(root, "skuModule", "skuPriceList")
	if len(ladder) == 0 {
		return
	}
	first, ok := ladder[0].(map[string]any)
	if !ok {
		return
	}
	skuVal, ok := first["skuVal"].(map[string]any)
	if !ok {
		return
	}
	raw := firstNonEmpty(
		stringField(skuVal, "actSkuCalPrice"),
		stringField(skuVal, "skuCalPrice"),
	)
	if raw == "" {
		return
	}
	if price, err := e.norm.Normalize(raw); err == nil {
		rec.Price = price
	}
}

func (e *AliExpress) variantsFromSKUModule(rec *types.ProductRecord, root map[string]any) {
	for _, group := range walkList(root, "skuModule", "productSKUPropertyList") {
		m, ok := group.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(m, "skuPropertyName")
		var values []string
		for _, v := range walkList(m, "skuPropertyValues") {
			if vm, ok := v.(map[string]any); ok {
				if display := firstNonEmpty(
					stringField(vm, "propertyValueDisplayName"),
					stringField(vm, "propertyValueName"),
				); display != "" {
					values = append(values, display)
				}
			}
		}
		rec.SetVariant(name, values)
	}
}

// domFallback covers shell pages and stripped payloads with meta tags,
// JSON-LD, and the raw price regex ladder.
func (e *AliExpress) domFallback(rec *types.ProductRecord, res *types.FetchResult) {
	doc, err := res.Document()
	if err != nil {
		return
	}

	if !rec.HasTitle() {
		og := pageOpenGraph(res.Body)
		rec.Title = CleanTitle(firstNonEmpty(og.Title, docTitle(doc)))
	}

	if ld := findProductLD(doc); ld != nil {
		applyProductLD(rec, ld)
		if !rec.HasPrice() && ld.PriceText != "" {
			if price, err := e.norm.Normalize(ld.PriceText + " " + ld.Currency); err == nil {
				rec.Price = price
			}
		}
	}

	if !rec.HasPrice() {
		text := string(res.Body)
		for _, re := range aePriceRegexps {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if price, err := e.norm.Normalize(m[1]); err == nil {
				rec.Price = price
				break
			}
		}
	}

	if len(rec.Images) == 0 {
		og := pageOpenGraph(res.Body)
		for _, img := range og.Images {
			rec.AddImage(NormalizeImageURL(img.URL))
		}
	}
}
