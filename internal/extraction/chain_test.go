package extraction

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubExtractor struct {
	name      string
	available bool
	result    *Result
	err       error
	calls     int
}

func (s *stubExtractor) Name() string    { return s.name }
func (s *stubExtractor) Available() bool { return s.available }
func (s *stubExtractor) Close() error    { return nil }

func (s *stubExtractor) Extract(ctx context.Context, ocrText string) (*Result, error) {
	s.calls++
	return s.result, s.err
}

var _ = Describe("Chain", func() {
	var (
		primary   *stubExtractor
		secondary *stubExtractor
		chain     *Chain
	)

	BeforeEach(func() {
		primary = &stubExtractor{name: "groq", available: true}
		secondary = &stubExtractor{name: "gemini", available: true, result: &Result{Amount: 10, Merchant: "X", Type: Debit}}
		chain = NewChain(primary, nil, secondary)
	})

	It("should name the members in order", func() {
		Expect(chain.Name()).To(Equal("groq>gemini"))
	})

	When("the first provider fails at the transport level", func() {
		BeforeEach(func() {
			primary.err = fmt.Errorf("%w: connection refused", ErrProvider)
		})

		It("should fall over to the next provider", func() {
			result, err := chain.Extract(context.Background(), "text")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Amount).To(Equal(10.0))
			Expect(secondary.calls).To(Equal(1))
		})
	})

	When("the first provider returns malformed output", func() {
		BeforeEach(func() {
			primary.err = fmt.Errorf("groq: %w", ErrMalformedOutput)
		})

		It("should stop without calling the next provider", func() {
			_, err := chain.Extract(context.Background(), "text")
			Expect(errors.Is(err, ErrMalformedOutput)).To(BeTrue())
			Expect(secondary.calls).To(BeZero())
		})
	})

	When("every provider fails", func() {
		BeforeEach(func() {
			primary.err = fmt.Errorf("%w: a", ErrProvider)
			secondary.err = fmt.Errorf("%w: b", ErrProvider)
			secondary.result = nil
		})

		It("returns the last provider error", func() {
			_, err := chain.Extract(context.Background(), "text")
			Expect(errors.Is(err, ErrProvider)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("b"))
		})
	})

	When("no member is available", func() {
		BeforeEach(func() {
			primary.available = false
			secondary.available = false
		})

		It("should report itself unavailable", func() {
			Expect(chain.Available()).To(BeFalse())
		})

		It("returns ErrNotConfigured", func() {
			_, err := chain.Extract(context.Background(), "text")
			Expect(errors.Is(err, ErrNotConfigured)).To(BeTrue())
		})
	})
})

type stubImageExtractor struct {
	stubExtractor
	images int
}

func (s *stubImageExtractor) ExtractImage(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	s.images++
	return s.result, s.err
}

var _ = Describe("Chain.ExtractImage", func() {
	It("should skip members that cannot read images", func() {
		textOnly := &stubExtractor{name: "groq", available: true}
		vision := &stubImageExtractor{stubExtractor: stubExtractor{name: "gemini", available: true, result: &Result{Amount: 42}}}

		result, err := NewChain(textOnly, vision).ExtractImage(context.Background(), []byte("png"), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Amount).To(Equal(42.0))
		Expect(textOnly.calls).To(BeZero())
		Expect(vision.images).To(Equal(1))
	})

	It("returns ErrNotConfigured when no member reads images", func() {
		_, err := NewChain(&stubExtractor{name: "groq", available: true}).ExtractImage(context.Background(), nil, "")
		Expect(errors.Is(err, ErrNotConfigured)).To(BeTrue())
	})
})
