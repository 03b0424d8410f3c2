package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docket/internal/document/models"
	"docket/internal/platform/metrics"
	"docket/internal/platform/middleware"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/httputil"
	"docket/pkg/platform/middleware/metadata"
	"docket/pkg/platform/middleware/requesttime"
	strutil "docket/pkg/platform/strings"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.Document, error)
	Get(ctx context.Context, ref string) (*models.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	Query(ctx context.Context, f models.Filter) (*models.Page, error)
	ReadContent(ctx context.Context, doc *models.Document) ([]byte, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) (*models.Document, error)
	Transition(ctx context.Context, id uuid.UUID, target models.State, reason string) (*models.Document, error)
	SyncContent(ctx context.Context, id uuid.UUID) (*models.SyncResult, error)
	Link(ctx context.Context, from, to uuid.UUID, kind string) (*models.Relationship, error)
	Lineage(ctx context.Context, id uuid.UUID, req models.LineageRequest) (*models.Lineage, error)
	AuditTrail(ctx context.Context, id uuid.UUID) ([]models.AuditEntry, error)
	Sweep(ctx context.Context, req models.SweepRequest) (*models.SweepReport, error)
	Health(ctx context.Context) *models.Health
}

// Handler serves the document registry endpoints.
type Handler struct {
	logger   *slog.Logger
	registry Service
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// New creates a document Handler. A zero timeout uses 30s.
func New(registry Service, logger *slog.Logger, metrics *metrics.Metrics, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		timeout:  timeout,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	docRouter := chi.NewRouter()
	docRouter.Use(middleware.Recovery(h.logger))
	docRouter.Use(middleware.RequestID)
	docRouter.Use(metadata.ClientMetadata)
	docRouter.Use(middleware.Actor)
	docRouter.Use(requesttime.Middleware)
	docRouter.Use(middleware.Logger(h.logger))
	docRouter.Use(middleware.Timeout(h.timeout))
	docRouter.Use(middleware.ContentTypeJSON)
	docRouter.Use(middleware.LatencyMiddleware(h.metrics))

	docRouter.Get("/health", h.handleHealth)
	docRouter.Get("/documents", h.handleQuery)
	docRouter.Post("/documents", h.handleRegister)
	docRouter.Get("/documents/{ref}", h.handleGet)
	docRouter.Get("/documents/{id}/content", h.handleContent)
	docRouter.Patch("/documents/{id}/metadata", h.handleUpdateMetadata)
	docRouter.Post("/documents/{id}/transitions", h.handleTransition)
	docRouter.Post("/documents/{id}/sync", h.handleSync)
	docRouter.Post("/documents/{id}/links", h.handleLink)
	docRouter.Get("/documents/{id}/lineage", h.handleLineage)
	docRouter.Get("/documents/{id}/audit", h.handleAudit)
	docRouter.Post("/sweep", h.handleSweep)

	r.Mount("/", docRouter)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.registry.Health(r.Context())
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, health)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.registry.Register(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to register document", err)
		return
	}
	w.Header().Set("Location", "/documents/"+doc.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// handleGet accepts either a document id or a repository-relative path.
// Paths contain slashes, so they arrive URL-escaped.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, err := url.PathUnescape(chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid document reference"))
		return
	}
	doc, err := h.registry.Get(ctx, ref)
	if err != nil {
		h.fail(ctx, w, "failed to get document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.registry.GetByID(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to get document", err)
		return
	}
	body, err := h.registry.ReadContent(ctx, doc)
	if err != nil {
		h.fail(ctx, w, "failed to read document content", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("ETag", strconv.Quote(doc.ContentHash))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		h.fail(ctx, w, "invalid query", err)
		return
	}
	page, err := h.registry.Query(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "failed to query documents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var patch map[string]any
	if !h.decode(w, r, &patch) {
		return
	}
	doc, err := h.registry.UpdateMetadata(ctx, id, patch)
	if err != nil {
		h.fail(ctx, w, "failed to update metadata", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req models.TransitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.registry.Transition(ctx, id, req.State, req.Reason)
	if err != nil {
		h.fail(ctx, w, "failed to transition document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	result, err := h.registry.SyncContent(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to sync document content", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req models.LinkRequest
	if !h.decode(w, r, &req) {
		return
	}
	rel, err := h.registry.Link(ctx, id, req.To, req.Kind)
	if err != nil {
		h.fail(ctx, w, "failed to link documents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rel)
}

func (h *Handler) handleLineage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req := models.LineageRequest{Direction: models.Direction(r.URL.Query().Get("direction"))}
	if raw := r.URL.Query().Get("depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(ctx, w, "invalid lineage depth", dErrors.Newf(dErrors.CodeValidation, "depth must be an integer, got %q", raw))
			return
		}
		req.MaxDepth = depth
	}
	lineage, err := h.registry.Lineage(ctx, id, req)
	if err != nil {
		h.fail(ctx, w, "failed to walk lineage", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lineage)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.registry.AuditTrail(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to read audit trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.SweepRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	report, err := h.registry.Sweep(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to run retention sweep", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid document id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}

// fail logs client errors at warn and everything else at error, then
// writes the coded response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err.Error(),
	}
	if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	f := models.Filter{
		Types: splitValues(q["type"]),
		Owner: q.Get("owner"),
		Tag:   q.Get("tag"),
		Text:  q.Get("q"),
	}
	for _, s := range splitValues(q["state"]) {
		state, err := models.ParseState(s)
		if err != nil {
			return f, err
		}
		f.States = append(f.States, state)
	}
	var err error
	if f.ModifiedAfter, err = parseTime(q.Get("modified_after"), "modified_after"); err != nil {
		return f, err
	}
	if f.ModifiedBefore, err = parseTime(q.Get("modified_before"), "modified_before"); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

// splitValues accepts both repeated parameters and comma lists.
func splitValues(values []string) []string {
	return strutil.SplitList(values...)
}

func parseTime(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s must be RFC3339, got %q", name, raw)
	}
	t = t.UTC()
	return &t, nil
}

func parseInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeValidation, "%s must be an integer, got %q", name, raw)
	}
	return n, nil
}
