package expense

import (
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	const name = "id-1_screenshot.png"

	var (
		dir     string
		storage *LocalStorage
	)

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), "attachments")
		var err error
		storage, err = NewLocalStorage(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create the directory", func() {
		Expect(dir).To(BeADirectory())
	})

	When("an attachment is saved", func() {
		BeforeEach(func() {
			saved, err := storage.Save(name, []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(Equal(name))
		})

		It("should write it to disk", func() {
			Expect(filepath.Join(dir, name)).To(BeAnExistingFile())
		})

		It("should read it back", func() {
			data, err := storage.Get(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("png bytes"))
		})

		It("should delete it", func() {
			Expect(storage.Delete(name)).To(Succeed())
			Expect(filepath.Join(dir, name)).NotTo(BeAnExistingFile())
		})
	})

	When("the attachment does not exist", func() {
		It("returns read errors", func() {
			_, err := storage.Get("missing.png")
			Expect(err).To(MatchError(ContainSubstring("reading attachment")))
		})

		It("returns delete errors", func() {
			Expect(storage.Delete("missing.png")).To(MatchError(ContainSubstring("deleting attachment")))
		})
	})

	Describe("names", func() {
		It("should reject names that leave the directory", func() {
			_, err := storage.Save("../escape.png", []byte("x"))
			Expect(errors.Is(err, ErrInvalidName)).To(BeTrue())

			_, err = storage.Get("sub/dir.png")
			Expect(errors.Is(err, ErrInvalidName)).To(BeTrue())

			Expect(errors.Is(storage.Delete(""), ErrInvalidName)).To(BeTrue())
		})

		It("should reject hidden files", func() {
			_, err := storage.Save(".env", []byte("x"))
			Expect(errors.Is(err, ErrInvalidName)).To(BeTrue())
		})
	})
})
