package expense

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/expense-capture/internal/capture"
	applog "github.com/zombor/expense-capture/internal/log"
)

// Server handles HTTP requests for extraction, capture and expenses
type Server struct {
	service   *Service
	hub       *capture.Hub
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, hub *capture.Hub, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, hub, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, hub *capture.Hub, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		hub:       hub,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Expense Capture"`)
			corsError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Extraction gateway
	s.mux.HandleFunc("POST /api/ocr/parse", s.requireAuth(s.handleParseText))
	s.mux.HandleFunc("POST /api/ocr/image", s.requireAuth(s.handleParseImage))
	s.mux.HandleFunc("POST /api/sms/parse", s.requireAuth(s.handleParseSMS))

	// Capture channels, written by the host app and drained by reconcile
	s.mux.HandleFunc("POST /api/capture/{scope}/bridge", s.requireAuth(s.handlePublishBridge))
	s.mux.HandleFunc("PUT /api/capture/{scope}/slots/ocr", s.requireAuth(s.handleWriteOCRSlot))
	s.mux.HandleFunc("PUT /api/capture/{scope}/slots/shared-image", s.requireAuth(s.handleWriteSharedImageSlot))
	s.mux.HandleFunc("POST /api/capture/{scope}/text", s.requireAuth(s.handleCaptureText))
	s.mux.HandleFunc("POST /api/capture/{scope}/reconcile", s.requireAuth(s.handleReconcile))
	s.mux.HandleFunc("DELETE /api/capture/{scope}", s.requireAuth(s.handleClearCapture))
	s.mux.HandleFunc("GET /api/capture/{scope}/sessions/{id}", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("POST /api/capture/{scope}/sessions/{id}/manual", s.requireAuth(s.handleManualEntry))
	s.mux.HandleFunc("POST /api/capture/{scope}/sessions/{id}/save", s.requireAuth(s.handleSaveSession))

	// Expenses (most specific paths first)
	s.mux.HandleFunc("GET /api/expenses/{id}/attachment", s.requireAuth(s.handleGetAttachment))
	s.mux.HandleFunc("GET /api/expenses/{id}", s.requireAuth(s.handleGetExpense))
	s.mux.HandleFunc("DELETE /api/expenses/{id}", s.requireAuth(s.handleDeleteExpense))
	s.mux.HandleFunc("GET /api/expenses", s.requireAuth(s.handleListExpenses))
	s.mux.HandleFunc("POST /api/expenses", s.requireAuth(s.handleCreateExpense))

	s.mux.HandleFunc("GET /api/categories", s.requireAuth(s.handleListCategories))
}

// Handler wraps the mux with request logging and CORS
func (s *Server) Handler(logger *slog.Logger) http.Handler {
	return applog.Middleware(logger)(corsMiddleware(s.mux))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corsMiddleware(s.mux).ServeHTTP(w, r)
}
