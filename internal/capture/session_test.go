package capture

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.etcd.io/bbolt"

	"github.com/zombor/expense-capture/internal/extraction"
)

type mockSaver struct {
	saved []Draft
	err   error
}

func (m *mockSaver) SaveDraft(ctx context.Context, d Draft) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, d)
	return "expense-1", nil
}

var _ = Describe("Validate", func() {
	DescribeTable("draft validation",
		func(d Draft, expected error) {
			err := Validate(d)
			if expected == nil {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(errors.Is(err, expected)).To(BeTrue())
		},
		Entry("valid", Draft{Amount: "250.50", CategoryID: "food"}, nil),
		Entry("missing amount", Draft{CategoryID: "food"}, ErrAmountMissing),
		Entry("blank amount", Draft{Amount: "  ", CategoryID: "food"}, ErrAmountMissing),
		Entry("non-numeric amount", Draft{Amount: "abc", CategoryID: "food"}, ErrAmountInvalid),
		Entry("zero amount", Draft{Amount: "0", CategoryID: "food"}, ErrAmountInvalid),
		Entry("negative amount", Draft{Amount: "-10", CategoryID: "food"}, ErrAmountInvalid),
		Entry("infinite amount", Draft{Amount: "Inf", CategoryID: "food"}, ErrAmountInvalid),
		Entry("sub-cent amount", Draft{Amount: "0.001", CategoryID: "food"}, ErrAmountInvalid),
		Entry("amount rounding to one cent", Draft{Amount: "0.005", CategoryID: "food"}, nil),
		Entry("huge exponent", Draft{Amount: "1e300", CategoryID: "food"}, ErrAmountInvalid),
		Entry("twenty digit amount", Draft{Amount: "99999999999999999999", CategoryID: "food"}, ErrAmountInvalid),
		Entry("largest allowed amount", Draft{Amount: "1000000000000", CategoryID: "food"}, nil),
		Entry("missing category", Draft{Amount: "10"}, ErrCategoryMissing),
	)

	It("should convert to whole cents", func() {
		Expect(Draft{Amount: "245.5"}.Cents()).To(Equal(int64(24550)))
		Expect(Draft{Amount: "0.016"}.Cents()).To(Equal(int64(2)))
		Expect(Draft{Amount: "1000000000000"}.Cents()).To(Equal(int64(100000000000000)))
	})

	It("should accept JSON numbers and strings for the amount", func() {
		var d Draft
		Expect(json.Unmarshal([]byte(`{"amount": 99.5, "categoryId": "food"}`), &d)).To(Succeed())
		Expect(string(d.Amount)).To(Equal("99.5"))

		Expect(json.Unmarshal([]byte(`{"amount": "12", "categoryId": "food"}`), &d)).To(Succeed())
		Expect(d.Value()).To(Equal(12.0))
	})
})

var _ = Describe("Session", func() {
	var (
		session *Session
		saver   *mockSaver
	)

	BeforeEach(func() {
		saver = &mockSaver{}
	})

	When("no amount was detected", func() {
		BeforeEach(func() {
			session = sessionFromEnvelope(OCRResult, Envelope{
				Status: StatusSuccess,
				Data:   &Payload{Merchant: "Swiggy", Type: extraction.Debit},
			})
		})

		It("should refuse to save", func() {
			_, err := session.Save(context.Background(), saver)
			Expect(errors.Is(err, ErrNotReady)).To(BeTrue())
			Expect(saver.saved).To(BeEmpty())
		})

		It("should move to ready on manual entry with an empty amount", func() {
			Expect(session.RequestManualEntry()).To(Succeed())
			Expect(session.State).To(Equal(StateReady))
			Expect(session.Draft.Amount).To(BeEmpty())
			Expect(session.Draft.Merchant).To(Equal("Swiggy"))
		})

		It("should save once the user fills the amount and category", func() {
			Expect(session.RequestManualEntry()).To(Succeed())
			session.SetAmount("180")
			session.SelectCategory("food")

			id, err := session.Save(context.Background(), saver)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("expense-1"))
			Expect(saver.saved).To(HaveLen(1))
			Expect(saver.saved[0].Source).To(Equal("OCR"))
		})
	})

	When("the session is ready", func() {
		BeforeEach(func() {
			session = sessionFromEnvelope(NativeBridge, SuccessEnvelope(&extraction.Result{
				Amount: 500, Merchant: "Rahul", Type: extraction.Debit, Confidence: 95,
			}))
		})

		It("should not allow manual entry", func() {
			err := session.RequestManualEntry()
			Expect(errors.Is(err, ErrInvalidTransition)).To(BeTrue())
		})

		It("should require a category before saving", func() {
			_, err := session.Save(context.Background(), saver)
			Expect(errors.Is(err, ErrCategoryMissing)).To(BeTrue())
			Expect(saver.saved).To(BeEmpty())
		})

		It("should wrap saver errors", func() {
			saver.err = errors.New("db closed")
			session.SelectCategory("food")
			_, err := session.Save(context.Background(), saver)
			Expect(err).To(MatchError(ContainSubstring("db closed")))
		})
	})
})

var _ = Describe("BoltSlots", func() {
	var (
		path  string
		db    *bbolt.DB
		slots *BoltSlots
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "slots.db")
		var err error
		db, err = bbolt.Open(path, 0600, nil)
		Expect(err).NotTo(HaveOccurred())
		slots, err = NewBoltSlots(db)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		db.Close()
	})

	It("should read and remove a value", func() {
		Expect(slots.Put("a", OCRDataKey, []byte("one"))).To(Succeed())

		v, ok, err := slots.Take("a", OCRDataKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("one"))

		_, ok, err = slots.Take("a", OCRDataKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("should keep scopes apart", func() {
		Expect(slots.Put("a", SharedImageKey, []byte("x"))).To(Succeed())
		_, ok, _ := slots.Take("b", SharedImageKey)
		Expect(ok).To(BeFalse())
	})

	It("should delete several keys", func() {
		Expect(slots.Put("a", OCRDataKey, []byte("1"))).To(Succeed())
		Expect(slots.Put("a", SharedImageKey, []byte("2"))).To(Succeed())
		Expect(slots.Delete("a", OCRDataKey, SharedImageKey)).To(Succeed())

		_, ok, _ := slots.Take("a", OCRDataKey)
		Expect(ok).To(BeFalse())
		_, ok, _ = slots.Take("a", SharedImageKey)
		Expect(ok).To(BeFalse())
	})

	It("should persist pending values across reopen", func() {
		Expect(slots.Put("a", OCRDataKey, []byte("kept"))).To(Succeed())
		Expect(db.Close()).To(Succeed())

		var err error
		db, err = bbolt.Open(path, 0600, nil)
		Expect(err).NotTo(HaveOccurred())
		slots, err = NewBoltSlots(db)
		Expect(err).NotTo(HaveOccurred())

		v, ok, err := slots.Take("a", OCRDataKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("kept"))
	})
})
