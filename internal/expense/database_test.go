package expense

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-capture/internal/extraction"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newExpense := func(id string, date time.Time) *Expense {
		return &Expense{
			ID:          id,
			Description: "Swiggy",
			Amount:      45000,
			Type:        extraction.Debit,
			CategoryID:  "food",
			Date:        date,
			Source:      "OCR",
			CreatedAt:   date,
			UpdatedAt:   date,
		}
	}

	Describe("SaveExpense", func() {
		var err error

		JustBeforeEach(func() {
			err = db.SaveExpense(newExpense("test-id", time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)))
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should save the expense to the database", func() {
				saved, getErr := db.GetExpense("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Amount).To(Equal(45000))
				Expect(saved.Type).To(Equal(extraction.Debit))
			})
		})
	})

	Describe("SaveExpense with an attachment", func() {
		BeforeEach(func() {
			first := newExpense("first", time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC))
			first.Attachment = "shot.png"
			Expect(db.SaveExpense(first)).To(Succeed())
		})

		It("should let the owner be saved again", func() {
			again := newExpense("first", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
			again.Attachment = "shot.png"
			Expect(db.SaveExpense(again)).To(Succeed())
		})

		It("should refuse a second expense pointing at the same file", func() {
			second := newExpense("second", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
			second.Attachment = "shot.png"
			err := db.SaveExpense(second)
			Expect(errors.Is(err, ErrAttachmentInUse)).To(BeTrue())

			_, err = db.GetExpense("second")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("GetExpense", func() {
		When("expense does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetExpense("missing")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("ListExpenses", func() {
		When("expenses exist", func() {
			BeforeEach(func() {
				Expect(db.SaveExpense(newExpense("old", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveExpense(newExpense("new", time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			})

			It("should return newest first", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(HaveLen(2))
				Expect(expenses[0].ID).To(Equal("new"))
			})
		})

		When("no expenses exist", func() {
			It("should return an empty slice", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).NotTo(BeNil())
				Expect(expenses).To(BeEmpty())
			})
		})
	})

	Describe("DeleteExpense", func() {
		It("should remove an existing expense", func() {
			Expect(db.SaveExpense(newExpense("gone", time.Now()))).To(Succeed())
			Expect(db.DeleteExpense("gone")).To(Succeed())
			_, err := db.GetExpense("gone")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("returns ErrNotFound for a missing expense", func() {
			Expect(errors.Is(db.DeleteExpense("missing"), ErrNotFound)).To(BeTrue())
		})
	})

	Describe("categories", func() {
		It("should seed the default categories", func() {
			categories, err := db.ListCategories()
			Expect(err).NotTo(HaveOccurred())
			Expect(categories).To(HaveLen(len(DefaultCategories)))
		})

		It("should look up a category by ID", func() {
			category, err := db.GetCategory("bills")
			Expect(err).NotTo(HaveOccurred())
			Expect(category.Name).To(Equal("Bills & Utilities"))
		})

		It("returns ErrNotFound for an unknown category", func() {
			_, err := db.GetCategory("yachts")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("reopening", func() {
		It("should keep expenses and not reseed categories", func() {
			Expect(db.SaveExpense(newExpense("kept", time.Now()))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			_, err = db.GetExpense("kept")
			Expect(err).NotTo(HaveOccurred())
			categories, err := db.ListCategories()
			Expect(err).NotTo(HaveOccurred())
			Expect(categories).To(HaveLen(len(DefaultCategories)))
		})
	})
})
