// Package resolve expands @kind:value references embedded in templates.
//
// The Engine substitutes {{name}} variables, scans references, dispatches
// each distinct one to the Resolver registered for its kind, and re-scans
// resolver output up to a depth limit. Every call owns a Context holding
// its cache, its visited set and its chain, so concurrent calls share only
// the Registry.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docket/internal/resolve/metrics"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/requestcontext"
)

// DefaultMaxDepth bounds nested re-resolution.
const DefaultMaxDepth = 3

var tracer = otel.Tracer("docket.resolve")

// Options tune one Resolve call.
type Options struct {
	// MaxDepth is the deepest nesting level that may still contain
	// references. Zero uses the engine default.
	MaxDepth int `json:"max_depth,omitempty"`
	// Strict fails when unescaped references survive resolution.
	Strict bool `json:"strict,omitempty"`
	// Lenient replaces unknown kinds, resolver failures and depth overruns
	// with empty text and a warning.
	Lenient bool `json:"lenient,omitempty"`
}

// Result is the outcome of a Resolve call.
type Result struct {
	Text       string    `json:"text"`
	Warnings   []Warning `json:"warnings,omitempty"`
	References int       `json:"references"`
	CacheHits  int       `json:"cache_hits"`
}

// Engine resolves templates against a Registry.
type Engine struct {
	registry *Registry
	maxDepth int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMaxDepth sets the default depth limit for calls that do not name one.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

func NewEngine(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		maxDepth: DefaultMaxDepth,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kinds lists the reference kinds the engine can dispatch.
func (e *Engine) Kinds() []string {
	return e.registry.Kinds()
}

// Resolve expands template. Without Lenient the first failure aborts the
// call; cycles abort it in every mode.
func (e *Engine) Resolve(ctx context.Context, template string, vars map[string]string, opts Options) (*Result, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = e.maxDepth
	}
	if opts.Strict && opts.Lenient {
		return nil, dErrors.New(dErrors.CodeValidation, "strict and lenient modes are exclusive")
	}

	ctx, span := tracer.Start(ctx, "resolve.Engine.Resolve",
		trace.WithAttributes(
			attribute.Int("resolve.template_bytes", len(template)),
			attribute.Int("resolve.max_depth", opts.MaxDepth),
			attribute.Bool("resolve.strict", opts.Strict),
			attribute.Bool("resolve.lenient", opts.Lenient),
		),
	)
	defer span.End()

	rc := newContext(vars, opts)
	text := Substitute(template, rc.vars)
	refs, values, err := e.resolveAll(ctx, rc, text)
	if err == nil && opts.Strict {
		if left := Scan(splice(text, refs, values, nil)); len(left) > 0 {
			err = dErrors.Newf(dErrors.CodeUnresolvedReference, "unresolved reference %s remains after resolution", left[0].Raw)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.countResolution("failed")
		e.logger.WarnContext(ctx, "template resolution failed",
			"code", dErrors.CodeOf(err),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	// Only escapes written in the template are consumed; resolved content is
	// spliced as the resolver returned it.
	result := &Result{
		Text:       splice(text, refs, values, Unescape),
		Warnings:   rc.warnings,
		References: rc.references,
		CacheHits:  rc.cacheHits,
	}
	span.SetAttributes(
		attribute.Int("resolve.references", result.References),
		attribute.Int("resolve.cache_hits", result.CacheHits),
		attribute.Int("resolve.warnings", len(result.Warnings)),
	)
	if len(result.Warnings) > 0 {
		e.countResolution("warned")
	} else {
		e.countResolution("ok")
	}
	return result, nil
}

func (e *Engine) resolveText(ctx context.Context, rc *Context, text string) (string, error) {
	refs, values, err := e.resolveAll(ctx, rc, text)
	if err != nil {
		return "", err
	}
	return splice(text, refs, values, nil), nil
}

func (e *Engine) resolveAll(ctx context.Context, rc *Context, text string) ([]Reference, []string, error) {
	refs := Scan(text)
	values := make([]string, len(refs))
	for i, ref := range refs {
		v, err := e.resolveRef(ctx, rc, ref)
		if err != nil {
			return nil, nil, err
		}
		values[i] = v
	}
	return refs, values, nil
}

// splice replaces refs in text with values, right to left so the offsets of
// earlier references stay valid. literal, when set, rewrites the text
// between references.
func splice(text string, refs []Reference, values []string, literal func(string) string) string {
	if len(refs) == 0 && literal == nil {
		return text
	}
	if literal == nil {
		literal = func(s string) string { return s }
	}
	parts := make([]string, 0, 2*len(refs)+1)
	end := len(text)
	for i := len(refs) - 1; i >= 0; i-- {
		parts = append(parts, literal(text[refs[i].End:end]), values[i])
		end = refs[i].Start
	}
	parts = append(parts, literal(text[:end]))
	slices.Reverse(parts)
	return strings.Join(parts, "")
}

func (e *Engine) resolveRef(ctx context.Context, rc *Context, ref Reference) (string, error) {
	key := ref.Key()
	if v, ok := rc.cache[key]; ok {
		rc.cacheHits++
		e.countReference(ref.Kind, "cache_hit")
		return v, nil
	}
	if rc.visiting(key) {
		e.countReference(ref.Kind, "failed")
		return "", cycleError(rc.chain, key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resolver, err := e.registry.Lookup(ref.Kind)
	if err != nil {
		return e.degrade(rc, ref, err)
	}

	rc.push(key)
	defer rc.pop(key)

	out, err := e.dispatch(ctx, rc, ref, resolver)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return e.degrade(rc, ref, dErrors.Wrap(err, dErrors.CodeResolverFailure, fmt.Sprintf("resolve %s", ref.Raw)))
	}

	// Output is re-scanned with variables substituted; output without
	// references keeps its placeholders verbatim.
	if candidate := Substitute(out, rc.vars); HasReferences(candidate) {
		if rc.depth >= rc.maxDepth {
			return e.degrade(rc, ref, depthError(rc.chain, rc.maxDepth))
		}
		rc.depth++
		nested, err := e.resolveText(ctx, rc, candidate)
		rc.depth--
		if err != nil {
			return "", err
		}
		out = nested
	}

	rc.cache[key] = out
	rc.references++
	e.countReference(ref.Kind, "resolved")
	return out, nil
}

func (e *Engine) dispatch(ctx context.Context, rc *Context, ref Reference, resolver Resolver) (string, error) {
	ctx, span := tracer.Start(ctx, "resolve.dispatch",
		trace.WithAttributes(
			attribute.String("resolve.kind", ref.Kind),
			attribute.Int("resolve.depth", rc.depth),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := resolver.Resolve(ctx, ref.Value, rc)
	if e.metrics != nil {
		e.metrics.ObserveResolver(ref.Kind, start)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// degrade applies lenient mode: a degradable failure becomes an empty
// substitution plus a warning, cached so the reference is not retried.
func (e *Engine) degrade(rc *Context, ref Reference, err error) (string, error) {
	if !rc.lenient || !degradable(err) {
		e.countReference(ref.Kind, "failed")
		return "", err
	}
	rc.warnings = append(rc.warnings, Warning{
		Reference: ref.Raw,
		Code:      warningCode(err),
		Message:   err.Error(),
	})
	rc.cache[ref.Key()] = ""
	e.countReference(ref.Kind, "degraded")
	return "", nil
}

func warningCode(err error) string {
	if errors.Is(err, ErrDepthExceeded) {
		return "depth_exceeded"
	}
	return string(dErrors.CodeOf(err))
}

func (e *Engine) countResolution(outcome string) {
	if e.metrics != nil {
		e.metrics.IncrementResolution(outcome)
	}
}

func (e *Engine) countReference(kind, outcome string) {
	if e.metrics != nil {
		e.metrics.IncrementReference(kind, outcome)
	}
}
