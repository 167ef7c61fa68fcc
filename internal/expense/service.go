package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/expense-capture/internal/capture"
	"github.com/zombor/expense-capture/internal/extraction"
)

var (
	// ErrUnknownCategory is returned when a draft names a category that does not exist
	ErrUnknownCategory = errors.New("unknown category")

	// ErrInvalidAttachment is returned when a draft names a screenshot that
	// was never stored
	ErrInvalidAttachment = errors.New("unknown attachment")
)

// IDGenerator generates unique IDs for expenses and attachments
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles extraction and expense operations
type Service struct {
	db          DB
	storage     Storage
	extractor   extraction.Extractor
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service. extractor may be nil when no provider is
// configured; extraction calls then fail with extraction.ErrNotConfigured.
func NewService(db DB, storage Storage, extractor extraction.Extractor) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, extractor extraction.Extractor, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up long phone-generated screenshot names
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, "_"))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "screenshot"
	}
	return base + ext
}

// ExtractionAvailable reports whether a provider can serve requests
func (s *Service) ExtractionAvailable() bool {
	return s.extractor != nil && s.extractor.Available()
}

// ParseText runs the configured extractor over OCR text
func (s *Service) ParseText(ctx context.Context, text string) (*extraction.Result, error) {
	if !s.ExtractionAvailable() {
		return nil, extraction.ErrNotConfigured
	}

	result, err := s.extractor.Extract(ctx, text)
	if err != nil {
		slog.Error("Failed to extract expense",
			"provider", s.extractor.Name(),
			"text_length", len(text),
			"error", err,
		)
		return nil, fmt.Errorf("extracting expense: %w", err)
	}
	return result, nil
}

// ParseImage stores a screenshot and extracts an expense from it. The
// returned attachment name can be passed back on the draft.
func (s *Service) ParseImage(ctx context.Context, filename string, data []byte, contentType string) (*extraction.Result, string, error) {
	if !s.ExtractionAvailable() {
		return nil, "", extraction.ErrNotConfigured
	}
	imageExtractor, ok := s.extractor.(extraction.ImageExtractor)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s cannot read images", extraction.ErrNotConfigured, s.extractor.Name())
	}

	name, err := s.storage.Save(fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename)), data)
	if err != nil {
		return nil, "", fmt.Errorf("saving screenshot: %w", err)
	}

	result, err := imageExtractor.ExtractImage(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to extract expense from screenshot",
			"provider", s.extractor.Name(),
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// Clean up the saved file since extraction failed
		if delErr := s.storage.Delete(name); delErr != nil {
			slog.Warn("Failed to delete screenshot", "filename", name, "error", delErr)
		}
		return nil, "", fmt.Errorf("extracting expense from screenshot: %w", err)
	}

	return result, name, nil
}

// SaveDraft implements capture.DraftSaver
func (s *Service) SaveDraft(ctx context.Context, d capture.Draft) (string, error) {
	expense, err := s.CreateExpense(d)
	if err != nil {
		return "", err
	}
	return expense.ID, nil
}

// CreateExpense validates a draft and stores it
func (s *Service) CreateExpense(d capture.Draft) (*Expense, error) {
	if err := capture.Validate(d); err != nil {
		return nil, err
	}
	if _, err := s.db.GetCategory(d.CategoryID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, d.CategoryID)
		}
		return nil, fmt.Errorf("getting category: %w", err)
	}

	now := s.timeSource.Now()
	description := strings.TrimSpace(d.Merchant)
	if description == "" {
		description = QuickSaveDescription
	}
	txType := d.Type
	if !txType.Valid() {
		txType = extraction.Debit
	}
	source := d.Source
	if source == "" {
		source = "OCR"
	}

	expense := &Expense{
		ID:          s.idGenerator.Generate(),
		Description: description,
		Amount:      int(d.Cents()),
		Type:        txType,
		CategoryID:  d.CategoryID,
		Date:        now,
		Source:      source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d.Attachment != "" {
		if _, err := s.storage.Get(d.Attachment); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAttachment, d.Attachment)
		}
		expense.Attachment = d.Attachment
		expense.AttachmentType = mime.TypeByExtension(filepath.Ext(d.Attachment))
	}

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense to database: %w", err)
	}

	slog.Info("Expense created",
		"id", expense.ID,
		"amount", expense.Amount,
		"category", expense.CategoryID,
		"source", expense.Source,
	)
	return expense, nil
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses
func (s *Service) ListExpenses() ([]*Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense and its attachment
func (s *Service) DeleteExpense(id string) error {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	if expense.Attachment != "" {
		if err := s.storage.Delete(expense.Attachment); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete attachment", "filename", expense.Attachment, "error", err)
		}
	}

	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// GetAttachment retrieves the screenshot stored with an expense
func (s *Service) GetAttachment(id string) ([]byte, string, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense: %w", err)
	}
	if expense.Attachment == "" {
		return nil, "", fmt.Errorf("attachment for expense %s: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(expense.Attachment)
	if err != nil {
		return nil, "", fmt.Errorf("getting attachment: %w", err)
	}

	contentType := expense.AttachmentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// ListCategories returns all categories
func (s *Service) ListCategories() ([]*Category, error) {
	categories, err := s.db.ListCategories()
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}
