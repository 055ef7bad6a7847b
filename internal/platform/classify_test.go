package platform

import (
	"net/url"
	"testing"

	"github.com/prodlens/prodlens/internal/safeurl"
	"github.com/prodlens/prodlens/internal/types"
)

func mustTarget(t *testing.T, raw string) *safeurl.Target {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return &safeurl.Target{URL: u, Host: u.Hostname()}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		url  string
		want types.Strategy
	}{
		{"https://www.aliexpress.com/item/1005001234.html", types.StrategyAliExpress},
		{"https://ar.aliexpress.com/item/1005001234.html", types.StrategyAliExpress},
		{"https://aliexpress.us/item/1005001234.html", types.StrategyAliExpress},
		{"https://www.amazon.com/dp/B08N5WRWNW", types.StrategyAmazon},
		{"https://amazon.ae/dp/B08N5WRWNW", types.StrategyAmazon},
		{"https://www.amazon.co.uk/gp/product/B08N5WRWNW", types.StrategyAmazon},
		{"https://cool-store.myshopify.com/products/blue-shirt", types.StrategyShopify},
		{"https://shop.example.com/products/blue-shirt", types.StrategyShopify},
		{"https://example-shop.test/item/42", types.StrategyGeneric},
		{"https://blog.example.org/post/123", types.StrategyGeneric},
		// Lookalike hosts must not match by substring.
		{"https://notamazon.example.com/dp/B000", types.StrategyGeneric},
		{"https://amazon.example.com/dp/B000", types.StrategyGeneric},
	}

	for _, tc := range cases {
		got := Classify(mustTarget(t, tc.url))
		if got != tc.want {
			t.Errorf("Classify(%s) = %s, want %s", tc.url, got, tc.want)
		}
	}
}

func TestRequiresRendering(t *testing.T) {
	if !RequiresRendering(types.StrategyAliExpress) {
		t.Error("aliexpress should pre-select rendering")
	}
	for _, s := range []types.Strategy{types.StrategyAmazon, types.StrategyShopify, types.StrategyGeneric} {
		if RequiresRendering(s) {
			t.Errorf("%s should not pre-select rendering", s)
		}
	}
}
