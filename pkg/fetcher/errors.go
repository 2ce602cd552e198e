package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the fetcher.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while
	// waiting for a limiter slot or a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// Class represents a classification of fetch and conversion failures.
type Class string

const (
	// ClassTransport represents connection, DNS and timeout errors.
	ClassTransport Class = "transport"

	// ClassHTTPStatus represents non-2xx HTTP responses.
	ClassHTTPStatus Class = "http_status"

	// ClassValidation represents unsupported formats or rejected content.
	ClassValidation Class = "validation"

	// ClassIO represents local disk read/write errors.
	ClassIO Class = "io"

	// ClassEncode represents image/PDF encoding errors.
	ClassEncode Class = "encode"
)

// Failure describes one failed item. It is the error half of a fetch
// result and the record type accumulated by the ledger.
type Failure struct {
	SourceLabel string
	URL         string
	Message     string
	Detail      string
	StatusCode  int
	PageIndex   int
	Class       Class
	Err         error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", f.Class, f.Detail, f.Message, f.Err)
	}
	return fmt.Sprintf("%s error (%s): %s", f.Class, f.Detail, f.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (f *Failure) Unwrap() error {
	return f.Err
}

// EndOfDocument reports whether this failure is the expected
// end-of-document signal during sequential page probing. A 404 while
// probing page N+1 of a document is a control signal, not an error.
func (f *Failure) EndOfDocument() bool {
	return f.StatusCode == http.StatusNotFound
}

// shouldRetry determines if a failure class warrants another attempt.
// Client errors (4xx) never retry: the response will not change.
func shouldRetry(f *Failure) bool {
	switch f.Class {
	case ClassTransport:
		return true
	case ClassHTTPStatus:
		return f.StatusCode >= 500
	default:
		return false
	}
}
