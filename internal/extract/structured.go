package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"

	"github.com/prodlens/prodlens/internal/types"
)

// productLD is the subset of a schema.org Product node the extractors
// care about.
type productLD struct {
	Name        string
	Description string
	Images      []string
	PriceText   string
	Currency    string
	Category    string
}

// findProductLD scans <script type="application/ld+json"> blocks for a
// Product node, descending into @graph arrays.
func findProductLD(doc *goquery.Document) *productLD {
	var found *productLD

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return true
		}

		var nodes []map[string]any
		var single map[string]any
		if err := json.Unmarshal([]byte(raw), &single); err == nil {
			nodes = append(nodes, single)
		} else {
			var arr []map[string]any
			if err := json.Unmarshal([]byte(raw), &arr); err == nil {
				nodes = arr
			}
		}

		for i := 0; i < len(nodes); i++ {
			node := nodes[i]
			if graph, ok := node["@graph"].([]any); ok {
				for _, g := range graph {
					if m, ok := g.(map[string]any); ok {
						nodes = append(nodes, m)
					}
				}
			}
			if !isProductType(node["@type"]) {
				continue
			}
			found = productFromNode(node)
			return false
		}
		return true
	})

	return found
}

func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, "Product")
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

func productFromNode(node map[string]any) *productLD {
	p := &productLD{
		Name:        stringField(node, "name"),
		Description: stringField(node, "description"),
		Category:    stringField(node, "category"),
	}

	switch img := node["image"].(type) {
	case string:
		p.Images = []string{img}
	case []any:
		for _, e := range img {
			if s, ok := e.(string); ok {
				p.Images = append(p.Images, s)
			}
		}
	case map[string]any:
		if u := stringField(img, "url"); u != "" {
			p.Images = []string{u}
		}
	}

	switch offers := node["offers"].(type) {
	case map[string]any:
		p.PriceText, p.Currency = offerPrice(offers)
	case []any:
		for _, o := range offers {
			if m, ok := o.(map[string]any); ok {
				if price, cur := offerPrice(m); price != "" {
					p.PriceText, p.Currency = price, cur
					break
				}
			}
		}
	}
	return p
}

// offerPrice pulls a usable price string out of an Offer node,
// following AggregateOffer lowPrice when price is absent.
func offerPrice(offer map[string]any) (string, string) {
	price := firstNonEmpty(
		anyToString(offer["price"]),
		anyToString(offer["lowPrice"]),
	)
	if price == "" || price == "0" || price == "0.0" {
		return "", ""
	}
	return price, stringField(offer, "priceCurrency")
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return ""
	}
}

// pageOpenGraph parses og: tags out of the raw body.
func pageOpenGraph(body []byte) *opengraph.OpenGraph {
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(body)); err != nil {
		return opengraph.NewOpenGraph()
	}
	return og
}

// metaPrice reads product:price:amount / og:price:amount meta tags.
// Returns the amount text and currency, either possibly "".
func metaPrice(doc *goquery.Document) (string, string) {
	amount, _ := doc.Find(`meta[property="product:price:amount"], meta[property="og:price:amount"]`).First().Attr("content")
	cur, _ := doc.Find(`meta[property="product:price:currency"], meta[property="og:price:currency"]`).First().Attr("content")
	return strings.TrimSpace(amount), strings.TrimSpace(cur)
}

// microdataProduct reads itemscope/itemprop Product markup. Only name,
// price, and image are worth pulling; schema.org microdata on retail
// pages rarely carries more that is trustworthy.
func microdataProduct(doc *goquery.Document) (name, price, currency, image string) {
	doc.Find(`[itemscope][itemtype*="schema.org/Product"]`).EachWithBreak(func(_ int, scope *goquery.Selection) bool {
		name = itempropValue(scope, "name")
		image = itempropValue(scope, "image")
		price = itempropValue(scope, "price")
		currency = itempropValue(scope, "priceCurrency")
		return !(name != "" || price != "")
	})
	return
}

func itempropValue(scope *goquery.Selection, prop string) string {
	sel := scope.Find(`[itemprop="` + prop + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"content", "href", "src"} {
		if v, ok := sel.Attr(attr); ok && v != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(sel.Text())
}

// docTitle returns the <title> text.
func docTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// twitterMeta reads a twitter: card meta value by suffix name.
func twitterMeta(doc *goquery.Document, name string) string {
	v, _ := doc.Find(`meta[name="twitter:`+name+`"], meta[property="twitter:`+name+`"]`).First().Attr("content")
	return strings.TrimSpace(v)
}

// applyProductLD copies a JSON-LD product node onto a record without
// overwriting fields already populated by a stronger source.
func applyProductLD(rec *types.ProductRecord, p *productLD) {
	if p == nil {
		return
	}
	if rec.Title == "" {
		rec.Title = CleanTitle(p.Name)
	}
	if rec.Description == "" {
		rec.Description = p.Description
	}
	if rec.Category == "" {
		rec.Category = p.Category
	}
	for _, img := range p.Images {
		rec.AddImage(NormalizeImageURL(img))
	}
}
