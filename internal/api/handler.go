package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/eugenenazirov/confref/internal/document"
	"github.com/eugenenazirov/confref/internal/metrics"
	"github.com/eugenenazirov/confref/internal/resolver"
	"github.com/eugenenazirov/confref/internal/storage"
	"github.com/eugenenazirov/confref/internal/store"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const defaultMaxBodyBytes = 1 << 20

// Resolver rewrites the placeholders of a store and reports the keys it touched.
type Resolver interface {
	Resolve(s store.Store) (resolver.Report, error)
}

// Handler wires resolver and storage dependencies into HTTP handlers.
type Handler struct {
	resolver Resolver
	storage  storage.Storage

	clock        func() time.Time
	maxBodyBytes int64
	metrics      *metrics.Metrics
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMaxBodyBytes caps the size of request documents.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithMetrics records resolution outcomes on m.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(res Resolver, docs storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		resolver: res,
		storage:  docs,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	src, err := requestStore(body, document.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid document", err.Error())
		return
	}

	start := time.Now()
	report, err := h.resolve(src)
	elapsed := time.Since(start)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	resp := resolveResponse{
		Config:           report.Store.All(),
		Resolved:         nonNilKeys(report.Resolved),
		ResolutionTimeMs: elapsed.Milliseconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	_ = r
	docs, err := h.storage.ListDocuments()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := documentListResponse{Documents: make([]documentSummary, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, documentSummary{
			Name:      doc.Name,
			Keys:      doc.Tree.Len(),
			UpdatedAt: doc.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := storage.ValidateName(name); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid document name", err.Error())
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	tree, err := document.Decode(body, document.FormatFromContentType(r.Header.Get("Content-Type")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid document", err.Error())
		return
	}

	doc, err := h.storage.PutDocument(name, tree)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	resp := documentResponse{
		Name:      doc.Name,
		Config:    doc.Tree,
		UpdatedAt: doc.UpdatedAt,
		Message:   "Document stored successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.storage.GetDocument(r.PathValue("name"))
	if err != nil {
		writeStorageError(w, err)
		return
	}

	query := r.URL.Query()
	resp := documentResponse{
		Name:      doc.Name,
		Config:    doc.Tree,
		UpdatedAt: doc.UpdatedAt,
	}

	if raw := query.Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", "resolved must be a boolean")
			return
		}
		if resolved {
			report, err := h.resolve(store.NewMemoryStore(doc.Tree))
			if err != nil {
				writeResolveError(w, err)
				return
			}
			resp.Config = report.Store.All()
			resp.Resolved = nonNilKeys(report.Resolved)
		}
	}

	if raw := query.Get("format"); raw != "" {
		format, err := document.ParseFormat(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		if format == document.FormatYAML {
			writeYAML(w, http.StatusOK, resp.Config)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.DeleteDocument(r.PathValue("name")); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolve(src store.Store) (resolver.Report, error) {
	report, err := h.resolver.Resolve(src)
	h.metrics.ObserveResolution(err, len(report.Resolved))
	return report, err
}

// readBody reads the request body up to the configured limit, writing an
// error response and returning false on failure.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Document too large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to read request body")
		return nil, false
	}
	return body, true
}

// requestStore decodes a request document into an in-memory store. JSON is
// still parsed by gjson, but resolution never runs against the raw bytes.
func requestStore(body []byte, format document.Format) (*store.MemoryStore, error) {
	tree, err := document.Decode(body, format)
	if err != nil {
		return nil, err
	}
	return store.NewMemoryStore(tree), nil
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func nonNilKeys(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}

type resolveResponse struct {
	Config           *store.Tree `json:"config"`
	Resolved         []string    `json:"resolved"`
	ResolutionTimeMs int64       `json:"resolutionTimeMs"`
}

type documentResponse struct {
	Name      string      `json:"name"`
	Config    *store.Tree `json:"config"`
	Resolved  []string    `json:"resolved,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Message   string      `json:"message,omitempty"`
}

type documentSummary struct {
	Name      string    `json:"name"`
	Keys      int       `json:"keys"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type documentListResponse struct {
	Documents []documentSummary `json:"documents"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeYAML(w http.ResponseWriter, status int, tree *store.Tree) {
	data, err := document.EncodeYAML(tree)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeResolveError(w http.ResponseWriter, err error) {
	var notFound *resolver.ReferenceNotFoundError
	switch {
	case errors.As(err, &notFound):
		suggestion := fmt.Sprintf("Define %q in the document or remove %s from %q", notFound.Reference, notFound.Token, notFound.Key)
		writeError(w, http.StatusUnprocessableEntity, "Unresolved reference", err.Error(), suggestion)
	case errors.Is(err, resolver.ErrCircularReference):
		writeError(w, http.StatusUnprocessableEntity, "Circular reference", err.Error(),
			"Replace one of the placeholders in the cycle with a literal value")
	case errors.Is(err, store.ErrUnsupportedValue), errors.Is(err, store.ErrInvalidKey):
		writeError(w, http.StatusUnprocessableEntity, "Cannot resolve document", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "Invalid document name", err.Error())
	case errors.Is(err, storage.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "Document not found", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
