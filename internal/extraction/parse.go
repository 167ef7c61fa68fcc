package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripCodeFences removes leading and trailing markdown fence markers
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ParseResult parses a model reply into a Result.
// Fields are type-checked, never coerced: a numeric string amount is rejected.
func ParseResult(text string) (*Result, error) {
	text = stripCodeFences(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling json: %v", ErrMalformedOutput, err)
	}

	amount, ok := raw["amount"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: amount is not a number", ErrMalformedOutput)
	}
	merchant, ok := raw["merchant"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: merchant is not a string", ErrMalformedOutput)
	}
	kind, ok := raw["type"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: type is not a string", ErrMalformedOutput)
	}
	txType := TransactionType(kind)
	if !txType.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrMalformedOutput, kind)
	}

	var confidence float64
	if v, present := raw["confidence"]; present && v != nil {
		c, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: confidence is not a number", ErrMalformedOutput)
		}
		confidence = c
	}

	return &Result{
		Amount:     amount,
		Merchant:   merchant,
		Type:       txType,
		Confidence: confidence,
	}, nil
}
