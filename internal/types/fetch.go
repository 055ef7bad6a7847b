package types

import (
	"bytes"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Transport identifies how a page was retrieved.
type Transport string

const (
	// TransportLightweight is a plain HTTP GET with no script execution.
	TransportLightweight Transport = "lightweight"

	// TransportRendered is a headless-browser load that executes the
	// page's client-side script before capture.
	TransportRendered Transport = "rendered"
)

// FetchResult is the raw outcome of one fetch attempt. It is owned by
// the orchestrator for the duration of the attempt and discarded after
// extraction.
type FetchResult struct {
	// Body is the response content, capped at the configured maximum.
	Body []byte

	// FinalURL is the URL after any redirects.
	FinalURL string

	// Transport is the transport that produced this result.
	Transport Transport

	// StatusCode is the HTTP status, 0 when the transport cannot
	// observe one.
	StatusCode int

	// Elapsed is how long the fetch took.
	Elapsed time.Duration

	doc *goquery.Document
}

// Document returns a parsed goquery document for the body, lazily
// initializing it so extractors that only regex-scan never pay for a
// DOM parse.
func (fr *FetchResult) Document() (*goquery.Document, error) {
	if fr.doc != nil {
		return fr.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fr.Body))
	if err != nil {
		return nil, err
	}
	fr.doc = doc
	return doc, nil
}

// IsSuccess returns true for 2xx responses. Rendered fetches that
// cannot observe a status report 0 and count as success.
func (fr *FetchResult) IsSuccess() bool {
	return fr.StatusCode == 0 || (fr.StatusCode >= 200 && fr.StatusCode < 300)
}
