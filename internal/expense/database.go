package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	expenseBucketName  = "expenses"
	categoryBucketName = "categories"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrAttachmentInUse is returned when a screenshot already belongs to
	// another expense
	ErrAttachmentInUse = errors.New("attachment belongs to another expense")
)

// DB defines the interface for database operations
type DB interface {
	// SaveExpense creates or replaces an expense. An attachment may belong
	// to one expense only.
	SaveExpense(expense *Expense) error

	GetExpense(id string) (*Expense, error)

	// ListExpenses returns all expenses, newest first
	ListExpenses() ([]*Expense, error)

	DeleteExpense(id string) error

	GetCategory(id string) (*Category, error)
	ListCategories() ([]*Category, error)

	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens the database and seeds the default categories on first use
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(expenseBucketName)); err != nil {
			return err
		}
		categories, err := tx.CreateBucketIfNotExists([]byte(categoryBucketName))
		if err != nil {
			return err
		}
		if k, _ := categories.Cursor().First(); k != nil {
			return nil
		}
		for _, c := range DefaultCategories {
			data, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("marshaling category: %w", err)
			}
			if err := categories.Put([]byte(c.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// Bolt exposes the underlying handle so other stores can share the file
func (b *BoltDB) Bolt() *bbolt.DB {
	return b.db
}

// SaveExpense saves an expense to the database
func (b *BoltDB) SaveExpense(expense *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucketName))
		if expense.Attachment != "" {
			err := bucket.ForEach(func(k, v []byte) error {
				if string(k) == expense.ID {
					return nil
				}
				var other Expense
				if err := json.Unmarshal(v, &other); err != nil {
					return fmt.Errorf("unmarshaling expense: %w", err)
				}
				if other.Attachment == expense.Attachment {
					return fmt.Errorf("%w: %s", ErrAttachmentInUse, other.ID)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put([]byte(expense.ID), data)
	})
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(id string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expenseBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &expense)
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns all expenses sorted by date, newest first
func (b *BoltDB) ListExpenses() ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expenseBucketName)).ForEach(func(k, v []byte) error {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				return fmt.Errorf("unmarshaling expense: %w", err)
			}
			expenses = append(expenses, &expense)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Date.After(expenses[j].Date)
	})
	return expenses, nil
}

// DeleteExpense removes an expense from the database
func (b *BoltDB) DeleteExpense(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// GetCategory retrieves a category by ID
func (b *BoltDB) GetCategory(id string) (*Category, error) {
	var category *Category
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(categoryBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &category)
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// ListCategories returns all categories in key order
func (b *BoltDB) ListCategories() ([]*Category, error) {
	categories := make([]*Category, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(categoryBucketName)).ForEach(func(k, v []byte) error {
			var category Category
			if err := json.Unmarshal(v, &category); err != nil {
				return fmt.Errorf("unmarshaling category: %w", err)
			}
			categories = append(categories, &category)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
