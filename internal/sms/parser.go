package sms

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/expense-capture/internal/extraction"
)

// Message is one SMS as read from the device inbox
type Message struct {
	Body       string    `json:"body"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Transaction is a parsed, expense-like SMS
type Transaction struct {
	extraction.Result
	Date              string `json:"date"` // YYYY-MM-DD
	Sender            string `json:"sender,omitempty"`
	SuggestedCategory string `json:"suggestedCategory"`
	Source            string `json:"source"`
}

// Options control ParseAll filtering
type Options struct {
	OnlyDebits bool
	Dedupe     bool
}

// DefaultOptions keeps debits only and drops duplicates
func DefaultOptions() Options {
	return Options{OnlyDebits: true, Dedupe: true}
}

var (
	debitWords  = regexp.MustCompile(`(?i)debited|spent|paid|purchase|withdrawn`)
	creditWords = regexp.MustCompile(`(?i)credited|received|refund|deposit`)
)

// categoryKeywords maps category names to merchant and content keywords
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"Food & Dining", []string{"swiggy", "zomato", "uber eats", "food", "restaurant", "cafe", "dominos", "mcdonald", "kfc", "pizza", "burger"}},
	{"Transportation", []string{"uber", "ola", "rapido", "metro", "bus", "taxi", "fuel", "petrol", "diesel", "parking"}},
	{"Shopping", []string{"amazon", "flipkart", "myntra", "ajio", "shopping", "mall", "retail", "store"}},
	{"Entertainment", []string{"netflix", "amazon prime", "hotstar", "spotify", "movie", "cinema", "pvr", "inox", "gaming"}},
	{"Bills & Utilities", []string{"electricity", "water", "gas", "mobile", "internet", "broadband", "bill", "recharge", "airtel", "jio", "vodafone"}},
	{"Groceries", []string{"grocery", "supermarket", "dmart", "reliance fresh", "big bazaar", "milk", "vegetables"}},
	{"Health", []string{"hospital", "medical", "pharmacy", "medicine", "doctor", "clinic", "apollo", "health"}},
	{"Education", []string{"course", "book", "education", "school", "college", "university", "tuition", "udemy", "coursera"}},
}

// OtherCategory is suggested when no keyword matches
const OtherCategory = "Other"

// transactionType defaults to debit when neither keyword set matches
func transactionType(body string) extraction.TransactionType {
	if debitWords.MatchString(body) {
		return extraction.Debit
	}
	if creditWords.MatchString(body) {
		return extraction.Credit
	}
	return extraction.Debit
}

// SuggestCategory picks the category with the most keyword hits
func SuggestCategory(body, merchant string) string {
	text := strings.ToLower(body)
	name := strings.ToLower(merchant)

	best, bestHits := OtherCategory, 0
	for _, c := range categoryKeywords {
		hits := 0
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) || strings.Contains(name, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = c.category, hits
		}
	}
	return best
}

// Parse turns one message into a Transaction. ok is false when the message
// is not expense-like.
func Parse(msg Message) (tx *Transaction, ok bool) {
	result := Extract(msg.Body)
	if result == nil || result.Amount <= 0 {
		return nil, false
	}
	result.Type = transactionType(msg.Body)

	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}

	return &Transaction{
		Result:            *result,
		Date:              received.Format("2006-01-02"),
		Sender:            msg.Sender,
		SuggestedCategory: SuggestCategory(msg.Body, result.Merchant),
		Source:            "SMS",
	}, true
}

// ParseAll parses a batch of messages, skipping anything not expense-like
func ParseAll(messages []Message, opts Options) []Transaction {
	txs := make([]Transaction, 0, len(messages))
	seen := make(map[string]struct{})

	for _, msg := range messages {
		tx, ok := Parse(msg)
		if !ok {
			continue
		}
		if opts.OnlyDebits && tx.Type != extraction.Debit {
			continue
		}
		if opts.Dedupe {
			key := fmt.Sprintf("%v-%s-%s", tx.Amount, tx.Date, tx.Merchant)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		txs = append(txs, *tx)
	}
	return txs
}
