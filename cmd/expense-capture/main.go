package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-capture/internal/capture"
	"github.com/zombor/expense-capture/internal/expense"
	"github.com/zombor/expense-capture/internal/extraction"
	applog "github.com/zombor/expense-capture/internal/log"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type providerConfig struct {
	geminiKey   string
	geminiModel string
	groqKey     string
	groqURL     string
	groqModel   string
	ollamaURL   string
	ollamaModel string
}

// newProvider builds one extractor by name. A missing key is not fatal: the
// server still runs and answers 503 on extraction endpoints.
func newProvider(name string, cfg providerConfig) (extraction.Extractor, error) {
	var (
		p   extraction.Extractor
		err error
	)
	switch name {
	case "":
		return nil, nil
	case "gemini":
		key := cfg.geminiKey
		if key == "" {
			key = os.Getenv("GEMINI_API_KEY")
		}
		p, err = extraction.NewGemini(key, cfg.geminiModel)
	case "groq":
		key := cfg.groqKey
		if key == "" {
			key = os.Getenv("GROQ_API_KEY")
		}
		p, err = extraction.NewGroq(key, cfg.groqURL, cfg.groqModel)
	case "ollama":
		p, err = extraction.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("unknown provider %q (valid: gemini, groq, ollama)", name)
	}
	if errors.Is(err, extraction.ErrNotConfigured) {
		slog.Warn("Extraction provider not configured, extraction endpoints will return 503", "provider", name)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	slog.Info("Initialized extraction provider", "provider", p.Name())
	return p, nil
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("expense-capture")
	var (
		port           = fs.IntLong("port", 5000, "HTTP server port")
		dbPath         = fs.StringLong("db", "expense-capture.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./attachments", "Screenshot storage directory path")
		provider       = fs.StringLong("provider", "groq", "Extraction provider: 'gemini', 'groq' or 'ollama'")
		fallback       = fs.StringLong("fallback-provider", "", "Provider tried when the primary is unreachable (optional)")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-flash-latest", "Google Gemini model name")
		groqKey        = fs.StringLong("groq-key", "", "Groq API key (or set GROQ_API_KEY env var)")
		groqURL        = fs.StringLong("groq-url", "https://api.groq.com/openai/v1", "OpenAI-compatible API base URL")
		groqModel      = fs.StringLong("groq-model", "llama-3.3-70b-versatile", "Groq model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl, llama3.1)")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		logFormat      = fs.StringLong("log-format", "text", "Log format: text or json")
		captureTimeout = fs.DurationLong("capture-timeout", 3*time.Second, "How long reconcile waits for a capture")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_CAPTURE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := applog.New(applog.Config{Level: *logLevel, Format: *logFormat, Output: os.Stdout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// Initialize extraction providers
	cfg := providerConfig{
		geminiKey:   *geminiKey,
		geminiModel: *geminiModel,
		groqKey:     *groqKey,
		groqURL:     *groqURL,
		groqModel:   *groqModel,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
	}
	primary, err := newProvider(*provider, cfg)
	if err != nil {
		slog.Error("Failed to initialize extraction provider", "provider", *provider, "error", err)
		os.Exit(1)
	}
	secondary, err := newProvider(*fallback, cfg)
	if err != nil {
		slog.Error("Failed to initialize fallback provider", "provider", *fallback, "error", err)
		os.Exit(1)
	}

	var extractor extraction.Extractor
	switch {
	case primary != nil && secondary != nil:
		extractor = extraction.NewChain(primary, secondary)
	case primary != nil:
		extractor = primary
	case secondary != nil:
		extractor = secondary
	}
	if extractor != nil {
		defer extractor.Close()
	}

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := expense.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slots, err := capture.NewBoltSlots(db.Bolt())
	if err != nil {
		slog.Error("Failed to initialize capture slots", "error", err)
		os.Exit(1)
	}
	schedule := capture.DefaultSchedule()
	schedule.Timeout = *captureTimeout
	hub := capture.NewHub(slots, schedule)

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := expense.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := expense.NewService(db, store, extractor)
	server := expense.NewServer(service, hub, expense.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
