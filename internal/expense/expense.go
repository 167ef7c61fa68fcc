package expense

import (
	"time"

	"github.com/zombor/expense-capture/internal/extraction"
)

// QuickSaveDescription is used when a draft has no merchant
const QuickSaveDescription = "Quick Save"

// Expense is a saved transaction
type Expense struct {
	ID             string                     `json:"id"`
	Description    string                     `json:"description"`
	Amount         int                        `json:"amount"` // Amount in minor units (paise/cents)
	Type           extraction.TransactionType `json:"type"`
	CategoryID     string                     `json:"category_id"`
	Date           time.Time                  `json:"date"`
	Source         string                     `json:"source"`
	Attachment     string                     `json:"attachment,omitempty"` // stored screenshot, if any
	AttachmentType string                     `json:"attachment_type,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// Category groups expenses
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DefaultCategories are seeded into an empty database
var DefaultCategories = []Category{
	{ID: "food", Name: "Food & Dining", Color: "#f97316"},
	{ID: "transportation", Name: "Transportation", Color: "#3b82f6"},
	{ID: "shopping", Name: "Shopping", Color: "#ec4899"},
	{ID: "entertainment", Name: "Entertainment", Color: "#a855f7"},
	{ID: "bills", Name: "Bills & Utilities", Color: "#eab308"},
	{ID: "groceries", Name: "Groceries", Color: "#22c55e"},
	{ID: "health", Name: "Health", Color: "#ef4444"},
	{ID: "education", Name: "Education", Color: "#06b6d4"},
	{ID: "other", Name: "Other", Color: "#6b7280"},
}

// CategoryIDByName maps a category name to its seeded ID
func CategoryIDByName(name string) string {
	for _, c := range DefaultCategories {
		if c.Name == name {
			return c.ID
		}
	}
	return "other"
}
