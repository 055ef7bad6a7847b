package currency

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/types"
)

// currencyPattern pairs a detection regex with an ISO-4217-like code.
// Order matters: explicit codes and Arabic currency words are checked
// before bare symbols so "US $" and "ر.س" win over "$" and "﷼".
type currencyPattern struct {
	re   *regexp.Regexp
	code string
}

var currencyPatterns = []currencyPattern{
	{regexp.MustCompile(`(?i)\bUSD\b|US\s*\$|دولار`), "USD"},
	{regexp.MustCompile(`(?i)\bEUR\b|يورو`), "EUR"},
	{regexp.MustCompile(`(?i)\bGBP\b`), "GBP"},
	{regexp.MustCompile(`(?i)\bYER\b|ر\.ي|يمني`), "YER"},
	{regexp.MustCompile(`(?i)\bSAR\b|ر\.س|سعودي`), "SAR"},
	{regexp.MustCompile(`(?i)\bAED\b|د\.إ|درهم`), "AED"},
	{regexp.MustCompile(`(?i)\bKWD\b|د\.ك|كويتي`), "KWD"},
	{regexp.MustCompile(`(?i)\bQAR\b|ر\.ق|قطري`), "QAR"},
	{regexp.MustCompile(`(?i)\bOMR\b|ر\.ع|عماني`), "OMR"},
	{regexp.MustCompile(`(?i)\bBHD\b|د\.ب|بحريني`), "BHD"},
	{regexp.MustCompile(`(?i)\bPKR\b|₨|روبية`), "PKR"},
	{regexp.MustCompile(`(?i)\bINR\b|₹`), "INR"},
	{regexp.MustCompile(`(?i)\bCNY\b|\bRMB\b|￥`), "CNY"},
	{regexp.MustCompile(`(?i)\bJPY\b`), "JPY"},
	{regexp.MustCompile(`\$`), "USD"},
	{regexp.MustCompile(`€`), "EUR"},
	{regexp.MustCompile(`£`), "GBP"},
	{regexp.MustCompile(`﷼`), "SAR"},
	{regexp.MustCompile(`¥`), "CNY"},
}

var numberPattern = regexp.MustCompile(`\d[\d.,\x{00A0} ]*`)

// arabicDigits maps Arabic-Indic digits to ASCII.
var arabicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// Detect returns the currency code found in or adjacent to a price
// string, defaulting to USD when nothing matches.
func Detect(text string) string {
	for _, p := range currencyPatterns {
		if p.re.MatchString(text) {
			return p.code
		}
	}
	return "USD"
}

// Parse extracts the first numeric amount from a price string and the
// detected currency code. Handles Arabic-Indic digits and both
// "1,234.56" and "1.234,56" separator conventions.
func Parse(text string) (decimal.Decimal, string, error) {
	code := Detect(text)

	normalized := arabicDigits.Replace(text)
	match := numberPattern.FindString(normalized)
	if match == "" {
		return decimal.Zero, code, types.ErrUnparseablePrice
	}

	cleaned := normalizeSeparators(match)
	amount, err := decimal.NewFromString(cleaned)
	if err != nil || amount.IsNegative() {
		return decimal.Zero, code, types.ErrUnparseablePrice
	}
	return amount, code, nil
}

// normalizeSeparators rewrites a human-formatted number into a plain
// decimal string. When both separators appear, whichever comes last is
// the decimal point. A lone comma followed by exactly two digits is a
// decimal comma; anything else is grouping.
func normalizeSeparators(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == ' ' {
			return -1
		}
		return r
	}, s)
	s = strings.Trim(s, ".,")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		decimals := len(s) - lastComma - 1
		if strings.Count(s, ",") == 1 && (decimals == 1 || decimals == 2) {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		// Multiple dots can only be grouping ("1.234.567").
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

// Normalizer converts extracted prices into the reporting currency
// using a configured rate table. The table is read-only after
// construction, safe for concurrent use.
type Normalizer struct {
	reporting string
	rates     map[string]decimal.Decimal
	logger    *slog.Logger
}

// NewNormalizer builds a Normalizer from configuration. Rates are
// units of the reporting currency per one unit of the keyed currency.
func NewNormalizer(cfg *config.CurrencyConfig, logger *slog.Logger) *Normalizer {
	rates := make(map[string]decimal.Decimal, len(cfg.Rates)+1)
	for code, rate := range cfg.Rates {
		rates[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	rates[strings.ToUpper(cfg.Reporting)] = decimal.NewFromInt(1)

	return &Normalizer{
		reporting: strings.ToUpper(cfg.Reporting),
		rates:     rates,
		logger:    logger.With("component", "currency"),
	}
}

// Reporting returns the canonical reporting currency code.
func (n *Normalizer) Reporting() string { return n.reporting }

// Normalize parses a raw price string and attaches a converted view in
// the reporting currency. A missing rate is not an error: the original
// price stands alone and the caller sees Converted == nil.
func (n *Normalizer) Normalize(raw string) (*types.Price, error) {
	amount, code, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return n.FromAmount(amount, code)
}

// FromAmount builds a Price from an already-parsed amount, for
// extractors that read numeric prices out of structured data.
func (n *Normalizer) FromAmount(amount decimal.Decimal, code string) (*types.Price, error) {
	code = strings.ToUpper(code)
	original, err := types.NewMoney(amount, code)
	if err != nil {
		return nil, err
	}

	price := &types.Price{Original: original}
	if rate, ok := n.rates[code]; ok {
		converted := original.Convert(rate, n.reporting)
		price.Converted = &converted
	} else {
		n.logger.Debug("no conversion rate", "currency", code)
	}
	return price, nil
}
