package expense

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/expense-capture/internal/capture"
	"github.com/zombor/expense-capture/internal/extraction"
	applog "github.com/zombor/expense-capture/internal/log"
	"github.com/zombor/expense-capture/internal/sms"
)

const (
	maxJSONBody  = int64(1 << 20)  // 1MB
	maxImageBody = int64(50 << 20) // 50MB
)

// corsError writes a plain-text error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.FromContext(r.Context()).Error("Error encoding response", "error", err)
	}
}

// writeError writes the {error, message} body used by every JSON endpoint
func writeError(w http.ResponseWriter, r *http.Request, code int, title, message string) {
	setCORSHeaders(w)
	writeJSON(w, r, code, map[string]string{
		"error":   title,
		"message": message,
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
}

// decodeText reads a {"text": "..."} body. Missing, non-string and blank
// text are all rejected.
func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil ||
		req.Text == nil || strings.TrimSpace(*req.Text) == "" {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "Text field is required")
		return "", false
	}
	return *req.Text, true
}

// writeExtractionError maps extraction failures to status codes. Provider
// specific reasons are logged by the service, never returned.
func writeExtractionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, extraction.ErrNotConfigured):
		writeError(w, r, http.StatusServiceUnavailable, "Service unavailable", "Extraction provider not configured")
	case errors.Is(err, extraction.ErrUnsupportedImage):
		writeError(w, r, http.StatusBadRequest, "Invalid request", "Unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF)")
	default:
		writeError(w, r, http.StatusInternalServerError, "Parsing failed", "Could not extract expense from text")
	}
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":     "ok",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"extraction": s.service.ExtractionAvailable(),
	})
}

// handleParseText extracts an expense from OCR text
func (s *Server) handleParseText(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}

	// A missing provider is a deployment problem, checked before any work
	if !s.service.ExtractionAvailable() {
		writeExtractionError(w, r, extraction.ErrNotConfigured)
		return
	}

	result, err := s.service.ParseText(r.Context(), text)
	if err != nil {
		writeExtractionError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
	})
}

// contentTypeFor falls back to the file extension when the part has no type
func contentTypeFor(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleParseImage extracts an expense from an uploaded screenshot
func (s *Server) handleParseImage(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	if !s.service.ExtractionAvailable() {
		writeExtractionError(w, r, extraction.ErrNotConfigured)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	if err := r.ParseMultipartForm(maxImageBody); err != nil {
		logger.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "File is too large. Maximum size is 50MB."
		}
		writeError(w, r, http.StatusBadRequest, "Invalid request", message)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "No screenshot was provided")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, r, http.StatusInternalServerError, "Upload failed", "Error reading file. Please try again.")
		return
	}

	contentType := contentTypeFor(header.Header.Get("Content-Type"), header.Filename)
	result, attachment, err := s.service.ParseImage(r.Context(), header.Filename, data, contentType)
	if err != nil {
		writeExtractionError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"success":    true,
		"data":       result,
		"attachment": attachment,
	})
}

// handleParseSMS parses a batch of SMS messages without a model
func (s *Server) handleParseSMS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages       []sms.Message `json:"messages"`
		IncludeCredits bool          `json:"includeCredits"`
		KeepDuplicates bool          `json:"keepDuplicates"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil || req.Messages == nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "Messages field is required")
		return
	}

	txs := sms.ParseAll(req.Messages, sms.Options{
		OnlyDebits: !req.IncludeCredits,
		Dedupe:     !req.KeepDuplicates,
	})

	type suggestion struct {
		sms.Transaction
		SuggestedCategoryID string `json:"suggestedCategoryId"`
	}
	data := make([]suggestion, 0, len(txs))
	for _, tx := range txs {
		data = append(data, suggestion{Transaction: tx, SuggestedCategoryID: CategoryIDByName(tx.SuggestedCategory)})
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(data),
		"data":    data,
	})
}

// handlePublishBridge stores an envelope pushed by the native host
func (s *Server) handlePublishBridge(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil || len(body) == 0 {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "Envelope is required")
		return
	}
	s.hub.PublishBridge(r.PathValue("scope"), body)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeSlot(w http.ResponseWriter, r *http.Request, write func(scope string, payload []byte) error) {
	body, err := readBody(w, r)
	if err != nil || len(body) == 0 {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "Slot value is required")
		return
	}
	if err := write(r.PathValue("scope"), body); err != nil {
		applog.FromContext(r.Context()).Error("Error writing capture slot", "error", err)
		writeError(w, r, http.StatusInternalServerError, "Storage error", "Could not store capture")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWriteOCRSlot stores a serialized envelope as-is
func (s *Server) handleWriteOCRSlot(w http.ResponseWriter, r *http.Request) {
	s.writeSlot(w, r, s.hub.WriteOCR)
}

// handleWriteSharedImageSlot signals that a screenshot was shared into the app
func (s *Server) handleWriteSharedImageSlot(w http.ResponseWriter, r *http.Request) {
	s.writeSlot(w, r, s.hub.WriteSharedImage)
}

// handleCaptureText runs extraction and leaves the outcome in the OCR slot
// for the scope's reconciler, success or not.
func (s *Server) handleCaptureText(w http.ResponseWriter, r *http.Request) {
	text, ok := decodeText(w, r)
	if !ok {
		return
	}

	env := capture.ErrorEnvelope("Extraction provider not configured")
	code := http.StatusServiceUnavailable
	if s.service.ExtractionAvailable() {
		result, err := s.service.ParseText(r.Context(), text)
		if err != nil {
			env, code = capture.ErrorEnvelope("Could not extract expense from text"), http.StatusOK
		} else {
			env, code = capture.SuccessEnvelope(result), http.StatusOK
		}
	}

	if err := s.hub.WriteEnvelope(r.PathValue("scope"), env); err != nil {
		applog.FromContext(r.Context()).Error("Error writing capture slot", "error", err)
		writeError(w, r, http.StatusInternalServerError, "Storage error", "Could not store capture")
		return
	}
	writeJSON(w, r, code, env)
}

// handleReconcile blocks until the scope's channels resolve. Closing the
// request cancels the session and wipes the channels.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	session := s.hub.Reconcile(r.Context(), r.PathValue("scope"))
	if session.State == capture.StateCancelled {
		// Client is gone
		return
	}
	writeJSON(w, r, http.StatusOK, session)
}

// handleClearCapture discards anything pending for the scope
func (s *Server) handleClearCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Clear(r.PathValue("scope")); err != nil {
		applog.FromContext(r.Context()).Error("Error clearing capture", "error", err)
		writeError(w, r, http.StatusInternalServerError, "Storage error", "Could not clear capture")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateExpense saves a confirmed draft
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var draft capture.Draft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&draft); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "Invalid request body")
		return
	}

	expense, err := s.service.CreateExpense(draft)
	if err != nil {
		writeSaveError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, expense)
}

// writeSaveError maps draft validation and storage failures to status codes
func writeSaveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, capture.ErrAmountMissing),
		errors.Is(err, capture.ErrAmountInvalid),
		errors.Is(err, capture.ErrCategoryMissing):
		writeError(w, r, http.StatusBadRequest, "Missing Information", "Please fill in amount and category: "+err.Error())
	case errors.Is(err, ErrUnknownCategory):
		writeError(w, r, http.StatusBadRequest, "Missing Information", err.Error())
	case errors.Is(err, ErrInvalidAttachment), errors.Is(err, ErrAttachmentInUse):
		writeError(w, r, http.StatusBadRequest, "Invalid attachment", err.Error())
	case errors.Is(err, capture.ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, "Not found", "Capture session not found")
	case errors.Is(err, capture.ErrNotReady), errors.Is(err, capture.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, "Invalid state", err.Error())
	default:
		applog.FromContext(r.Context()).Error("Error creating expense", "error", err)
		writeError(w, r, http.StatusInternalServerError, "Save failed", "Could not save expense")
	}
}

// handleGetSession returns a reconciled session that is still editable
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.hub.Session(r.PathValue("scope"), r.PathValue("id"))
	if err != nil {
		writeSaveError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, session)
}

// handleManualEntry opens a no-amount session for typing the amount
func (s *Server) handleManualEntry(w http.ResponseWriter, r *http.Request) {
	session, err := s.hub.ManualEntry(r.PathValue("scope"), r.PathValue("id"))
	if err != nil {
		writeSaveError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, session)
}

// handleSaveSession applies the user's edits and saves the session's draft
func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var edit capture.Edit
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&edit); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request", "Invalid request body")
		return
	}

	id, err := s.hub.SaveSession(r.Context(), r.PathValue("scope"), r.PathValue("id"), edit, s.service)
	if err != nil {
		writeSaveError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]string{"id": id})
}

// handleListExpenses returns all expenses
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses()
	if err != nil {
		applog.FromContext(r.Context()).Error("Error listing expenses", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, expenses)
}

// handleGetExpense returns a single expense
func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.GetExpense(r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Expense not found", http.StatusNotFound)
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).Error("Error getting expense", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, expense)
}

// handleGetAttachment returns the screenshot saved with an expense
func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetAttachment(r.PathValue("id"))
	if err != nil {
		corsError(w, "Attachment not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteExpense deletes an expense
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteExpense(r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Expense not found", http.StatusNotFound)
		return
	}
	if err != nil {
		applog.FromContext(r.Context()).Error("Error deleting expense", "error", err)
		corsError(w, "Error deleting expense", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListCategories returns the category list for the picker
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.ListCategories()
	if err != nil {
		applog.FromContext(r.Context()).Error("Error listing categories", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, categories)
}
