package extraction

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned by constructors when a provider is missing credentials
	ErrNotConfigured = errors.New("extraction provider not configured")

	// ErrProvider wraps transport and upstream failures from a provider
	ErrProvider = errors.New("extraction provider failed")

	// ErrMalformedOutput is returned when the model reply fails JSON parsing or schema validation
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrUnsupportedImage is returned when a screenshot cannot be decoded
	ErrUnsupportedImage = errors.New("unsupported screenshot")
)

// TransactionType distinguishes money going out from money coming in
type TransactionType string

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

// Valid reports whether t is one of the known transaction types
func (t TransactionType) Valid() bool {
	return t == Debit || t == Credit
}

// Result is a structured expense extracted from raw capture text.
// Amount is in the base currency unit with no symbol. Confidence is the
// model's self-reported 0-100 band, used as a UX hint only.
type Result struct {
	Amount     float64         `json:"amount"`
	Merchant   string          `json:"merchant"`
	Type       TransactionType `json:"type"`
	Confidence float64         `json:"confidence"`
}

// Extractor turns OCR text into a Result
type Extractor interface {
	// Name identifies the provider in logs
	Name() string
	// Available reports whether the provider is configured
	Available() bool
	// Extract sends the OCR text to the model and parses the structured reply
	Extract(ctx context.Context, ocrText string) (*Result, error)
	// Close releases provider resources
	Close() error
}

// ImageExtractor is implemented by providers that can read a screenshot directly
type ImageExtractor interface {
	Extractor
	ExtractImage(ctx context.Context, imageData []byte, contentType string) (*Result, error)
}
