// Package sms extracts expenses from bank SMS alerts without calling a model.
package sms

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zombor/expense-capture/internal/extraction"
)

// DefaultDescription labels a transaction whose merchant could not be found
const DefaultDescription = "SMS Transaction"

const maxDescriptionLen = 50

var (
	amountPattern    = regexp.MustCompile(`(?i)(?:(?:^|\P{L})(?:rs\.?|inr)|₹)\s*(\d[\d,]*(?:\.\d+)?)`)
	merchantSplitter = regexp.MustCompile(`(?i) (?:to|at) `)
)

// Extract pulls an amount and a short description out of an SMS body.
// It returns nil when the message is not expense-like; callers skip those
// messages rather than surfacing an error. Type is left empty and
// Confidence is zero: heuristic results are accept or reject only.
func Extract(body string) *extraction.Result {
	for _, match := range amountPattern.FindAllStringSubmatch(body, -1) {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return &extraction.Result{
			Amount:   amount,
			Merchant: describe(body),
		}
	}
	return nil
}

// describe takes the three words after " to " or " at " in debit messages
func describe(body string) string {
	lower := strings.ToLower(body)
	if !strings.Contains(lower, "debited") && !strings.Contains(lower, "spent") {
		return DefaultDescription
	}

	parts := merchantSplitter.Split(body, 2)
	if len(parts) < 2 {
		return DefaultDescription
	}

	words := strings.Fields(parts[1])
	if len(words) == 0 {
		return DefaultDescription
	}
	if len(words) > 3 {
		words = words[:3]
	}

	desc := strings.Join(words, " ")
	if runes := []rune(desc); len(runes) > maxDescriptionLen {
		desc = string(runes[:maxDescriptionLen])
	}
	return desc
}
