package application

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/confref/internal/api"
	"github.com/eugenenazirov/confref/internal/config"
	"github.com/eugenenazirov/confref/internal/document"
	"github.com/eugenenazirov/confref/internal/metrics"
	"github.com/eugenenazirov/confref/internal/resolver"
	"github.com/eugenenazirov/confref/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage  storage.Storage
	resolver *resolver.Resolver
	metrics  *metrics.Metrics
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	docs := storage.NewMemoryStorage()
	if err := LoadDocuments(docs, cfg.Documents, logger); err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	res, err := resolver.New(
		resolver.WithDelimiters(cfg.OpenDelimiter, cfg.CloseDelimiter),
		resolver.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	var instruments *metrics.Metrics
	if cfg.EnableMetrics {
		instruments = metrics.New()
	}

	handler := api.NewHandler(res, docs,
		api.WithMaxBodyBytes(cfg.MaxDocumentBytes),
		api.WithMetrics(instruments),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithInstrumentation(instruments),
	)

	return &App{
		storage:  docs,
		resolver: res,
		metrics:  instruments,
		handler:  handler,
		router:   apiRouter,
		logger:   logger,
		server:   NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// LoadDocuments reads each file and stores it under its base name without
// the extension, so "conf/app.yaml" becomes "app".
func LoadDocuments(docs storage.Storage, paths []string, logger *zap.Logger) error {
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		name := DocumentName(path)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("documents %s and %s share the name %q", prev, path, name)
		}
		seen[name] = path

		tree, err := document.LoadFile(path)
		if err != nil {
			return err
		}
		if _, err := docs.PutDocument(name, tree); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
		logger.Info("document loaded", zap.String("name", name), zap.String("path", path), zap.Int("keys", tree.Len()))
	}
	return nil
}

// DocumentName derives a storage name from a file path.
func DocumentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// BuildRootHandler constructs the root HTTP handler that routes API requests.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
