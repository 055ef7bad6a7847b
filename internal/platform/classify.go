package platform

import (
	"strings"

	"github.com/prodlens/prodlens/internal/safeurl"
	"github.com/prodlens/prodlens/internal/types"
)

// aliexpressHosts and amazonHosts list the marketplace domains matched
// by suffix. The set mirrors the storefront TLDs the extractors were
// built against.
var (
	aliexpressHosts = []string{
		"aliexpress.com", "aliexpress.us", "aliexpress.ru",
	}
	amazonHosts = []string{
		"amazon.com", "amazon.ae", "amazon.sa", "amazon.co.uk",
		"amazon.de", "amazon.fr", "amazon.it", "amazon.es",
		"amazon.ca", "amazon.in", "amazon.co.jp",
	}
)

// Classify maps a validated target to an extraction strategy. Pure
// function of the host and path; always returns a value, falling back
// to the generic strategy for anything unmatched.
func Classify(target *safeurl.Target) types.Strategy {
	host := target.Host

	switch {
	case hostMatches(host, aliexpressHosts):
		return types.StrategyAliExpress
	case hostMatches(host, amazonHosts):
		return types.StrategyAmazon
	case isShopify(host, target.URL.Path):
		return types.StrategyShopify
	default:
		return types.StrategyGeneric
	}
}

// RequiresRendering reports whether a strategy's pages only populate
// product data client-side, in which case the orchestrator starts with
// the rendered transport instead of escalating to it.
func RequiresRendering(s types.Strategy) bool {
	// AliExpress ships an embedded JSON payload, but region-gated
	// storefronts frequently serve a script-only shell to plain HTTP
	// clients.
	return s == types.StrategyAliExpress
}

func hostMatches(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// isShopify recognizes hosted Shopify stores and the canonical
// /products/{handle} path custom-domain stores keep.
func isShopify(host, path string) bool {
	if host == "myshopify.com" || strings.HasSuffix(host, ".myshopify.com") {
		return true
	}
	return strings.Contains(path, "/products/")
}
