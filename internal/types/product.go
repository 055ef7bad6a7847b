package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy identifies the extraction strategy selected for a URL.
// The set is closed: adding a platform means adding a constant here
// plus an extractor implementation for it.
type Strategy string

const (
	StrategyAliExpress Strategy = "aliexpress"
	StrategyAmazon     Strategy = "amazon"
	StrategyShopify    Strategy = "shopify"
	StrategyGeneric    Strategy = "generic"
)

// Money is a fixed-point amount in a single currency. Amounts are
// decimal, never binary floats, so conversions don't drift.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money value, rejecting negative amounts.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, ErrUnparseablePrice
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Convert produces a converted view of the amount. The receiver is
// never mutated.
func (m Money) Convert(rate decimal.Decimal, currency string) Money {
	return Money{
		Amount:   m.Amount.Mul(rate).Round(2),
		Currency: currency,
	}
}

// Price holds the extracted price and, when a conversion rate was
// available, a converted view alongside the original. Converted is nil
// when no rate was configured for the original currency.
type Price struct {
	Original  Money  `json:"original"`
	Converted *Money `json:"converted,omitempty"`
}

// ProductRecord is the canonical extraction output for one URL.
type ProductRecord struct {
	Title       string              `json:"title"`
	Price       *Price              `json:"price,omitempty"`
	Images      []string            `json:"images,omitempty"`
	Category    string              `json:"category,omitempty"`
	Breadcrumbs []string            `json:"breadcrumbs,omitempty"`
	Variants    map[string][]string `json:"variants,omitempty"`
	Specs       map[string]string   `json:"specs,omitempty"`
	Description string              `json:"description,omitempty"`

	Platform  Strategy  `json:"platform"`
	Transport Transport `json:"transport"`
	Complete  bool      `json:"complete"`

	SourceURL string    `json:"source_url"`
	FinalURL  string    `json:"final_url,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewProductRecord creates an empty record for a source URL.
func NewProductRecord(sourceURL string, platform Strategy) *ProductRecord {
	return &ProductRecord{
		Platform:  platform,
		SourceURL: sourceURL,
		FetchedAt: time.Now(),
	}
}

// AddImage appends an image URL, preserving order and dropping
// duplicates.
func (r *ProductRecord) AddImage(u string) {
	if u == "" {
		return
	}
	for _, existing := range r.Images {
		if existing == u {
			return
		}
	}
	r.Images = append(r.Images, u)
}

// SetVariant records one option group (e.g. "Color" -> [Red, Blue]).
func (r *ProductRecord) SetVariant(name string, values []string) {
	if name == "" || len(values) == 0 {
		return
	}
	if r.Variants == nil {
		r.Variants = make(map[string][]string)
	}
	r.Variants[name] = values
}

// SetSpec records one specification attribute.
func (r *ProductRecord) SetSpec(name, value string) {
	if name == "" || value == "" {
		return
	}
	if r.Specs == nil {
		r.Specs = make(map[string]string)
	}
	r.Specs[name] = value
}

// HasTitle reports whether a non-empty title was extracted.
func (r *ProductRecord) HasTitle() bool { return r.Title != "" }

// HasPrice reports whether a price was extracted.
func (r *ProductRecord) HasPrice() bool { return r.Price != nil }

// FieldCount is a rough usefulness measure for choosing between two
// incomplete attempts.
func (r *ProductRecord) FieldCount() int {
	n := 0
	if r.HasTitle() {
		n++
	}
	if r.HasPrice() {
		n++
	}
	if len(r.Images) > 0 {
		n++
	}
	if r.Category != "" {
		n++
	}
	if len(r.Breadcrumbs) > 0 {
		n++
	}
	if len(r.Variants) > 0 {
		n++
	}
	if len(r.Specs) > 0 {
		n++
	}
	if r.Description != "" {
		n++
	}
	return n
}
