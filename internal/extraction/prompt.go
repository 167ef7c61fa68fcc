package extraction

import "strings"

// expensePromptRules is shared by every provider so that all of them honour the
// same reply schema and confidence bands.
const expensePromptRules = `You are an expert at reading financial transactions from OCR text captured on a phone. The text can come from:
- Payment apps (Google Pay, PhonePe, Paytm, BHIM and other UPI apps)
- Food delivery apps (Swiggy, Zomato)
- E-commerce apps (Amazon, Flipkart, Myntra)
- Bank SMS alerts

Extract exactly four fields:

1. **amount**: the transaction amount as a plain number with no currency symbol.
   - Prefer numbers next to a currency marker: "₹", "Rs", "Rs.", "INR".
   - Otherwise prefer numbers next to action or keyword tokens: "Add to cart", "Add item", "Buy now", "Total", "Grand Total", "Amount", "Paid", "Sent", "Debited", "Credited".
   - Never use phone numbers (10 digits, optionally prefixed by +91 or 0).
   - Never use transaction IDs or UTR/reference numbers (long digit runs, usually 12 or more digits).
   - Never use 4-digit years such as 2024 or 2025.
   - Never use account numbers or card fragments ("A/c XX1234", "Account 1234").
   - If no amount can be found, use 0.

2. **merchant**: who the money went to or came from.
   - Use the text following "To", "Paid to" or "Received from".
   - For food delivery and e-commerce screens, use the store or item name.
   - If no merchant can be found, use "Payment".

3. **type**: "debit" or "credit".
   - "debit" for paid, sent, debited, spent, purchase, order, payment successful.
   - "credit" for received, credited, refund, cashback.

4. **confidence**: an integer from 0 to 100.
   - 90-100: the amount has a currency symbol and the merchant is unambiguous.
   - 70-89: the amount was found without a currency marker, or the merchant is unclear.
   - 50-69: the amount was inferred purely from context.
   - 0-49: several plausible amounts or the text is highly ambiguous.

Respond with ONE JSON object in exactly this format:
{
  "amount": 0,
  "merchant": "string",
  "type": "debit",
  "confidence": 0
}

Important:
- amount and confidence must be numbers, not strings
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// BuildPrompt returns the instruction prompt with the OCR text embedded
func BuildPrompt(ocrText string) string {
	var b strings.Builder
	b.WriteString(expensePromptRules)
	b.WriteString("\n\nOCR Text:\n\"\"\"\n")
	b.WriteString(ocrText)
	b.WriteString("\n\"\"\"")
	return b.String()
}

// BuildImagePrompt returns the instruction prompt for a screenshot sent as an image
func BuildImagePrompt() string {
	return expensePromptRules + "\n\nRead all text in the attached screenshot and apply the rules above."
}
