package capture

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zombor/expense-capture/internal/extraction"
)

// Status is the outcome carried by an Envelope
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Envelope wraps an extraction result, or a failure, for delivery over a channel
type Envelope struct {
	Status  Status   `json:"status"`
	Data    *Payload `json:"data,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Payload is the extraction result as written by the host environment.
// The amount is decoded leniently since hosts are not trusted to send numbers.
type Payload struct {
	Amount     Amount                     `json:"amount"`
	Merchant   string                     `json:"merchant"`
	Type       extraction.TransactionType `json:"type"`
	Confidence float64                    `json:"confidence"`
}

// Amount is a possibly absent amount. Numbers and numeric strings are
// accepted; anything else decodes as unset.
type Amount struct {
	Value float64
	Set   bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	*a = Amount{}

	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*a = Amount{Value: n, Set: true}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*a = Amount{Value: v, Set: true}
		}
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Set || math.IsNaN(a.Value) || math.IsInf(a.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

// Usable reports whether the amount is present, finite and positive
func (a Amount) Usable() bool {
	return a.Set && !math.IsNaN(a.Value) && !math.IsInf(a.Value, 0) && a.Value > 0
}

// SuccessEnvelope wraps an extractor result
func SuccessEnvelope(r *extraction.Result) Envelope {
	return Envelope{
		Status: StatusSuccess,
		Data: &Payload{
			Amount:     Amount{Value: r.Amount, Set: true},
			Merchant:   r.Merchant,
			Type:       r.Type,
			Confidence: r.Confidence,
		},
	}
}

// ErrorEnvelope signals a failed extraction
func ErrorEnvelope(message string) Envelope {
	return Envelope{Status: StatusError, Message: message}
}

// DecodeEnvelope parses a serialized envelope
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return env, nil
}

// ImageRef describes a screenshot shared into the app before OCR ran
type ImageRef struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
}

// DecodeImageRef parses a serialized shared-image reference
func DecodeImageRef(data []byte) (ImageRef, error) {
	var ref ImageRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return ImageRef{}, fmt.Errorf("decoding image reference: %w", err)
	}
	return ref, nil
}
