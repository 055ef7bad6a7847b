package extract

import (
	"regexp"
	"strings"
)

// Title cleanup: storefront titles drag marketplace branding and
// "| Buy online" tails that are noise in a canonical record.
var (
	amazonPrefixRe   = regexp.MustCompile(`(?i)Amazon\.[a-z.]+:\s*`)
	buyTailRe        = regexp.MustCompile(`(?i)\s*\|\s*Buy.*$`)
	storeTailRe      = regexp.MustCompile(`(?i)\s*–\s*[\w\s]+?Store.*$`)
	marketplaceTail  = regexp.MustCompile(`(?i)\s*[|\-–]\s*(?:eBay|AliExpress|Noon|Daraz|Amazon).*$`)
	multiSpaceRe     = regexp.MustCompile(`\s{2,}`)
	resizeSuffixRe   = regexp.MustCompile(`_(?:\d+x\d+|\d+x|x\d+)(?:q\d+)?(\.(?:jpg|jpeg|png|webp))(?:_\.webp)?$`)
)

// CleanTitle strips marketplace prefixes/suffixes and collapses
// whitespace.
func CleanTitle(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return ""
	}
	t = amazonPrefixRe.ReplaceAllString(t, "")
	t = buyTailRe.ReplaceAllString(t, "")
	t = storeTailRe.ReplaceAllString(t, "")
	t = marketplaceTail.ReplaceAllString(t, "")
	t = multiSpaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// NormalizeImageURL upgrades scheme-relative URLs and strips CDN
// resize suffixes so two sizes of the same image dedupe to one entry.
// Returns "" for anything that isn't an http(s) image URL.
func NormalizeImageURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ""
	}
	u = resizeSuffixRe.ReplaceAllString(u, "$1")
	return u
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// stripTags flattens an HTML fragment to plain text. Good enough for
// short descriptions; full documents go through goquery instead.
func stripTags(fragment string) string {
	t := tagRe.ReplaceAllString(fragment, " ")
	t = strings.ReplaceAll(t, "&amp;", "&")
	t = strings.ReplaceAll(t, "&nbsp;", " ")
	t = multiSpaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// firstNonEmpty returns the first non-blank string.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
