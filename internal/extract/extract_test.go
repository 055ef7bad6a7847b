package extract

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testNormalizer() *currency.Normalizer {
	return currency.NewNormalizer(&config.CurrencyConfig{
		Reporting: "YER",
		Rates: map[string]float64{
			"USD": 250,
			"EUR": 270,
			"SAR": 66.7,
		},
	}, testLogger)
}

func htmlResult(url, body string) *types.FetchResult {
	return &types.FetchResult{
		Body:       []byte(body),
		FinalURL:   url,
		Transport:  types.TransportLightweight,
		StatusCode: 200,
	}
}

func TestGenericExtractOpenGraph(t *testing.T) {
	page := `<html><head>
<title>Widget Deluxe | Buy Online Cheap</title>
<meta property="og:title" content="Widget Deluxe"/>
<meta property="og:image" content="//cdn.example.com/widget.jpg"/>
<meta property="og:description" content="A very good widget."/>
</head><body>
<div class="product-price">$19.99</div>
</body></html>`

	rec, err := NewGeneric(testNormalizer(), testLogger).Extract(htmlResult("https://shop.example.com/widget", page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Title != "Widget Deluxe" {
		t.Errorf("title = %q", rec.Title)
	}
	if !rec.HasPrice() {
		t.Fatal("expected a price")
	}
	if got := rec.Price.Original.Amount.String(); got != "19.99" {
		t.Errorf("amount = %s", got)
	}
	if rec.Price.Original.Currency != "USD" {
		t.Errorf("currency = %s", rec.Price.Original.Currency)
	}
	if rec.Price.Converted == nil || rec.Price.Converted.Amount.String() != "4997.5" {
		t.Errorf("converted = %+v", rec.Price.Converted)
	}
	if len(rec.Images) != 1 || rec.Images[0] != "https://cdn.example.com/widget.jpg" {
		t.Errorf("images = %v", rec.Images)
	}
	if !rec.Complete {
		t.Error("record with title and price should be complete")
	}
}

func TestGenericExtractJSONLD(t *testing.T) {
	page := `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product",
 "name":"Trail Backpack 40L","image":["https://img.example.com/pack.jpg"],
 "category":"Outdoor","offers":{"@type":"Offer","price":"89.50","priceCurrency":"EUR"}}
</script></head><body></body></html>`

	rec, err := NewGeneric(testNormalizer(), testLogger).Extract(htmlResult("https://shop.example.com/pack", page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Title != "Trail Backpack 40L" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Price.Original.Currency != "EUR" || rec.Price.Original.Amount.String() != "89.5" {
		t.Errorf("price = %+v", rec.Price.Original)
	}
	if rec.Category != "Outdoor" {
		t.Errorf("category = %q", rec.Category)
	}
}

func TestGenericExtractNoData(t *testing.T) {
	page := `<html><head></head><body><p>hello</p></body></html>`

	_, err := NewGeneric(testNormalizer(), testLogger).Extract(htmlResult("https://example.com/x", page))
	if !errors.Is(err, types.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	var xerr *types.ExtractError
	if !errors.As(err, &xerr) {
		t.Fatal("want *types.ExtractError")
	}
}

func TestAliExpressExtractRunParams(t *testing.T) {
	page := `<html><head><title>x</title></head><body><script>
window.runParams = {"titleModule":{"subject":"Wireless Earbuds Pro"},
"priceModule":{"formatedActivityPrice":"US $12.34"},
"imageModule":{"imagePathList":["//ae01.alicdn.com/kf/a_640x640.jpg","//ae01.alicdn.com/kf/b_640x640.jpg"]},
"skuModule":{"productSKUPropertyList":[{"skuPropertyName":"Color","skuPropertyValues":[{"propertyValueDisplayName":"Black"},{"propertyValueDisplayName":"White"}]}]},
"specsModule":{"props":[{"attrName":"Brand Name","attrValue":"Acme"}]},
"crossLinkModule":{"breadCrumbPathList":[{"name":"Electronics"},{"name":"Earphones"}]}};
</script></body></html>`

	rec, err := NewAliExpress(testNormalizer(), testLogger).Extract(htmlResult("https://www.aliexpress.com/item/100.html", page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Title != "Wireless Earbuds Pro" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Price.Original.Amount.String() != "12.34" || rec.Price.Original.Currency != "USD" {
		t.Errorf("price = %+v", rec.Price.Original)
	}
	if len(rec.Images) != 2 || rec.Images[0] != "https://ae01.alicdn.com/kf/a.jpg" {
		t.Errorf("images = %v", rec.Images)
	}
	if got := rec.Variants["Color"]; len(got) != 2 || got[0] != "Black" {
		t.Errorf("variants = %v", rec.Variants)
	}
	if rec.Specs["Brand Name"] != "Acme" {
		t.Errorf("specs = %v", rec.Specs)
	}
	if rec.Category != "Earphones" {
		t.Errorf("category = %q", rec.Category)
	}
}

func TestAliExpressSKULadderFallback(t *testing.T) {
	page := `<html><body><script>
window.runParams = {"titleModule":{"subject":"Phone Case"},
"skuModule":{"skuPriceList":[{"skuVal":{"actSkuCalPrice":"3.50","skuCalPrice":"4.00"}}]}};
</script></body></html>`

	rec, err := NewAliExpress(testNormalizer(), testLogger).Extract(htmlResult("https://www.aliexpress.com/item/101.html", page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !rec.HasPrice() || rec.Price.Original.Amount.String() != "3.5" {
		t.Errorf("price = %+v", rec.Price)
	}
}

func TestAliExpressRegexFallback(t *testing.T) {
	page := `<html><head><meta property="og:title" content="Gadget"/></head>
<body><script>var state = {"foo":1,"salePrice":"US $7.77","bar":2};</script></body></html>`

	rec, err := NewAliExpress(testNormalizer(), testLogger).Extract(htmlResult("https://ar.aliexpress.com/item/102.html", page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !rec.HasPrice() || rec.Price.Original.Amount.String() != "7.77" {
		t.Errorf("price = %+v", rec.Price)
	}
}

func TestAmazonExtractDOM(t *testing.T) {
	page := `<html><head><title>Amazon.com: Mechanical Keyboard</title></head><body>
<span id="productTitle">  Mechanical Keyboard RGB  </span>
<span class="a-price"><span class="a-offscreen">$54.99</span></span>
<img id="landingImage" src="https://m.media-amazon.com/images/I/kbd.jpg"/>
<div id="wayfinding-breadcrumbs_feature_div"><a>Electronics</a><a>Keyboards</a></div>
</body></html>`

	rec, err := NewAmazon(testNormalizer(), testLogger).Extract(htmlResult("https://www.amazon.com/dp/B000", page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Title != "Mechanical Keyboard RGB" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Price.Original.Amount.String() != "54.99" || rec.Price.Original.Currency != "USD" {
		t.Errorf("price = %+v", rec.Price.Original)
	}
	if len(rec.Images) == 0 || rec.Images[0] != "https://m.media-amazon.com/images/I/kbd.jpg" {
		t.Errorf("images = %v", rec.Images)
	}
	if rec.Category != "Keyboards" {
		t.Errorf("category = %q", rec.Category)
	}
}

func TestAmazonPriceAmountFallback(t *testing.T) {
	page := `<html><body>
<span id="productTitle">USB Hub</span>
<script>var buybox = {"priceAmount":23.45,"currencySymbol":"$"};</script>
</body></html>`

	rec, err := NewAmazon(testNormalizer(), testLogger).Extract(htmlResult("https://www.amazon.com/dp/B001", page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !rec.HasPrice() || rec.Price.Original.Amount.String() != "23.45" {
		t.Errorf("price = %+v", rec.Price)
	}
}

func TestShopifyExtractProductJSON(t *testing.T) {
	body := `{"product":{"title":"Canvas Tote","body_html":"<p>Sturdy &amp; simple.</p>",
"product_type":"Bags","vendor":"ToteCo",
"variants":[{"title":"Natural","price":"24.00"},{"title":"Black","price":"26.00"}],
"options":[{"name":"Color","values":["Natural","Black"]}],
"images":[{"src":"https://cdn.shopify.com/tote.jpg"}]}}`

	res := &types.FetchResult{Body: []byte(body), FinalURL: "https://totes.example.com/products/canvas-tote.json", Transport: types.TransportLightweight, StatusCode: 200}
	rec, err := NewShopify(testNormalizer(), testLogger).Extract(res)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Title != "Canvas Tote" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Price.Original.Amount.String() != "24" {
		t.Errorf("price = %+v", rec.Price.Original)
	}
	// The JSON endpoint never names its currency, so none may be assumed
	// and no conversion may run.
	if rec.Price.Original.Currency != "" {
		t.Errorf("currency = %q, want undetected", rec.Price.Original.Currency)
	}
	if rec.Price.Converted != nil {
		t.Errorf("converted = %+v, want nil", rec.Price.Converted)
	}
	if rec.Category != "Bags" {
		t.Errorf("category = %q", rec.Category)
	}
	if rec.Description != "Sturdy & simple." {
		t.Errorf("description = %q", rec.Description)
	}
	if got := rec.Variants["Color"]; len(got) != 2 {
		t.Errorf("variants = %v", rec.Variants)
	}
	if rec.Specs["Vendor"] != "ToteCo" {
		t.Errorf("specs = %v", rec.Specs)
	}
}

func TestShopifyExtractThemePage(t *testing.T) {
	page := `<html><head>
<meta property="og:title" content="Enamel Mug"/>
<meta property="og:image" content="https://cdn.shopify.com/mug.jpg"/>
<meta property="product:price:amount" content="15.00"/>
<meta property="product:price:currency" content="USD"/>
</head><body></body></html>`

	rec, err := NewShopify(testNormalizer(), testLogger).Extract(htmlResult("https://mugs.example.com/products/enamel-mug", page))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if rec.Title != "Enamel Mug" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Price.Original.Amount.String() != "15" || rec.Price.Original.Currency != "USD" {
		t.Errorf("price = %+v", rec.Price.Original)
	}
}

func TestShopifyProductJSONURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://shop.example.com/products/canvas-tote", "https://shop.example.com/products/canvas-tote.json"},
		{"https://shop.example.com/collections/bags/products/tote?variant=1", "https://shop.example.com/collections/bags/products/tote.json"},
		{"https://shop.example.com/products/tote.json", "https://shop.example.com/products/tote.json"},
		{"https://shop.example.com/pages/about", "https://shop.example.com/pages/about"},
	}
	for _, tc := range cases {
		if got := ShopifyProductJSONURL(tc.in); got != tc.want {
			t.Errorf("ShopifyProductJSONURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Amazon.com: Mechanical Keyboard", "Mechanical Keyboard"},
		{"Widget Deluxe | Buy Online Cheap", "Widget Deluxe"},
		{"Lamp  -  AliExpress 12", "Lamp"},
		{"  Plain   Title  ", "Plain Title"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanTitle(tc.in); got != tc.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeImageURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"//cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"https://ae01.alicdn.com/kf/x_640x640.jpg", "https://ae01.alicdn.com/kf/x.jpg"},
		{"data:image/png;base64,xxxx", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeImageURL(tc.in); got != tc.want {
			t.Errorf("NormalizeImageURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestForStrategy(t *testing.T) {
	norm := testNormalizer()
	for _, s := range []types.Strategy{types.StrategyAliExpress, types.StrategyAmazon, types.StrategyShopify, types.StrategyGeneric} {
		ex := ForStrategy(s, norm, testLogger)
		if ex.Strategy() != s {
			t.Errorf("ForStrategy(%s).Strategy() = %s", s, ex.Strategy())
		}
	}
}
