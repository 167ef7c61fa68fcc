package capture

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/zombor/expense-capture/internal/extraction"
)

var (
	ErrAmountMissing   = errors.New("amount is required")
	ErrAmountInvalid   = errors.New("amount must be a positive number of at least 0.01")
	ErrCategoryMissing = errors.New("category is required")
)

// MaxAmount is the largest amount a draft may carry
const MaxAmount = 1e12

// AmountText is the amount as the user typed it. JSON numbers and strings
// both decode.
type AmountText string

func (a *AmountText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = AmountText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = AmountText(n.String())
	return nil
}

// Draft is the user-editable expense built from a reconciled session
type Draft struct {
	Amount     AmountText                 `json:"amount"`
	Merchant   string                     `json:"merchant"`
	CategoryID string                     `json:"categoryId"`
	Type       extraction.TransactionType `json:"type,omitempty"`
	Source     string                     `json:"source,omitempty"`
	Attachment string                     `json:"attachment,omitempty"`
}

// Value parses the amount. Validate first.
func (d Draft) Value() float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(string(d.Amount)), 64)
	return v
}

// Cents is the amount in minor units, rounded to the nearest cent
func (d Draft) Cents() int64 {
	return int64(math.Round(d.Value() * 100))
}

// Validate checks that a draft can be saved
func Validate(d Draft) error {
	text := strings.TrimSpace(string(d.Amount))
	if text == "" {
		return ErrAmountMissing
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > MaxAmount {
		return ErrAmountInvalid
	}
	// Must survive conversion to whole cents
	if math.Round(v*100) < 1 {
		return ErrAmountInvalid
	}

	if strings.TrimSpace(d.CategoryID) == "" {
		return ErrCategoryMissing
	}
	return nil
}
