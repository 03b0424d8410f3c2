package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"docket/internal/platform/metrics"
	"docket/internal/platform/middleware"
	"docket/internal/resolve"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/httputil"
	"docket/pkg/platform/middleware/metadata"
	"docket/pkg/platform/middleware/requesttime"
)

// maxBodyBytes caps resolve request bodies; templates are prompt-sized.
const maxBodyBytes = 1 << 20

// Engine expands templates.
type Engine interface {
	Resolve(ctx context.Context, template string, vars map[string]string, opts resolve.Options) (*resolve.Result, error)
	Kinds() []string
}

// Planner injects workflow references into variables.
type Planner interface {
	Plan(workflow string, vars map[string]string) map[string]string
	Has(workflow string) bool
}

// Request is the POST /resolve body.
type Request struct {
	Template string            `json:"template"`
	Vars     map[string]string `json:"vars,omitempty"`
	Workflow string            `json:"workflow,omitempty"`
	Options  resolve.Options   `json:"options"`
}

type Handler struct {
	logger  *slog.Logger
	engine  Engine
	planner Planner
	metrics *metrics.Metrics
	timeout time.Duration
}

// New creates a resolve Handler. planner may be nil when no workflows are
// configured.
func New(engine Engine, planner Planner, logger *slog.Logger, metrics *metrics.Metrics, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		logger:  logger,
		engine:  engine,
		planner: planner,
		metrics: metrics,
		timeout: timeout,
	}
}

// Register mounts the resolution routes under /resolve.
func (h *Handler) Register(r chi.Router) {
	resolveRouter := chi.NewRouter()
	resolveRouter.Use(middleware.Recovery(h.logger))
	resolveRouter.Use(middleware.RequestID)
	resolveRouter.Use(metadata.ClientMetadata)
	resolveRouter.Use(middleware.Actor)
	resolveRouter.Use(requesttime.Middleware)
	resolveRouter.Use(middleware.Logger(h.logger))
	resolveRouter.Use(middleware.Timeout(h.timeout))
	resolveRouter.Use(middleware.ContentTypeJSON)
	resolveRouter.Use(middleware.LatencyMiddleware(h.metrics))

	resolveRouter.Post("/", h.handleResolve)
	resolveRouter.Get("/kinds", h.handleKinds)

	r.Mount("/resolve", resolveRouter)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Template) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "template is required"))
		return
	}

	vars := req.Vars
	if req.Workflow != "" {
		if h.planner == nil || !h.planner.Has(req.Workflow) {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown workflow %q", req.Workflow))
			return
		}
		vars = h.planner.Plan(req.Workflow, req.Vars)
	}

	result, err := h.engine.Resolve(ctx, req.Template, vars, req.Options)
	if err != nil {
		attrs := []any{
			"request_id", middleware.GetRequestID(ctx),
			"code", dErrors.CodeOf(err),
			"error", err.Error(),
		}
		if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "failed to resolve template", attrs...)
		} else {
			h.logger.WarnContext(ctx, "failed to resolve template", attrs...)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleKinds(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"kinds": h.engine.Kinds()})
}
