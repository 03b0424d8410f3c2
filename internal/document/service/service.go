package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docket/internal/content"
	"docket/internal/document/lifecycle"
	"docket/internal/document/metrics"
	"docket/internal/document/models"
	"docket/pkg/platform/retry"
	"docket/pkg/requestcontext"
)

// Store is the catalog persistence the registry needs. Mutations must join
// the transaction RunInTx places in ctx.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
	Create(ctx context.Context, doc *models.Document) error
	Update(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	LockScope(ctx context.Context, docType, scope string) error
	FindByPath(ctx context.Context, path string) (*models.Document, error)
	ListByState(ctx context.Context, state models.State, docType string) ([]*models.Document, error)
	Query(ctx context.Context, f models.Filter) (*models.Page, error)
	AddRelationship(ctx context.Context, rel models.Relationship) (bool, error)
	Outgoing(ctx context.Context, id uuid.UUID) ([]models.Relationship, error)
	Incoming(ctx context.Context, id uuid.UUID) ([]models.Relationship, error)
	AppendAudit(ctx context.Context, entries ...models.AuditEntry) error
	AuditTrail(ctx context.Context, entityID string) ([]models.AuditEntry, error)
}

// EventPublisher receives lifecycle events after their transaction commits.
// Publish failures are logged and never undo the change.
type EventPublisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
}

// DefaultTypes is the document type set used when none is configured.
var DefaultTypes = []string{
	"requirements-doc",
	"architecture-doc",
	"planning-epic",
	"work-item",
	"quality-report",
	"generic",
}

const (
	DefaultScopeKey    = "scope"
	DefaultArchiveRoot = "_archive"
)

// Config holds registry policy.
type Config struct {
	// Types is the set of accepted document types.
	Types []string
	// ScopeKey names the metadata key that partitions the one-active rule.
	ScopeKey string
	// ArchiveRoot is where archived content moves, relative to the content root.
	ArchiveRoot   string
	Retention     lifecycle.Policies
	ExcerptLength int
}

// Service is the document registry: catalog, lifecycle state machine and
// retention enforcement over a Store and a content.Store.
type Service struct {
	store   Store
	content content.Store
	cfg     Config
	types   map[string]struct{}
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  EventPublisher
	retry   retry.Policy
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.events = publisher
	}
}

func WithRetryPolicy(policy retry.Policy) Option {
	return func(s *Service) {
		s.retry = policy
	}
}

// New constructs a Service.
func New(store Store, contentStore content.Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	if contentStore == nil {
		return nil, errors.New("content store is required")
	}
	if len(cfg.Types) == 0 {
		cfg.Types = DefaultTypes
	}
	if cfg.ScopeKey == "" {
		cfg.ScopeKey = DefaultScopeKey
	}
	if cfg.ArchiveRoot == "" {
		cfg.ArchiveRoot = DefaultArchiveRoot
	}
	cfg.ArchiveRoot = models.CleanPath(cfg.ArchiveRoot)

	s := &Service{
		store:   store,
		content: contentStore,
		cfg:     cfg,
		types:   make(map[string]struct{}, len(cfg.Types)),
		logger:  slog.New(slog.DiscardHandler),
		retry:   retry.DefaultPolicy,
	}
	for _, t := range cfg.Types {
		s.types[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ArchiveRoot returns the configured archive root.
func (s *Service) ArchiveRoot() string {
	return s.cfg.ArchiveRoot
}

// ScopeKey returns the metadata key that scopes the one-active rule.
func (s *Service) ScopeKey() string {
	return s.cfg.ScopeKey
}

// inTx runs fn in a storage transaction and codes any error it or the
// commit returns.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return wrapStoreErr(s.store.RunInTx(ctx, fn), "transaction failed")
}

func (s *Service) newAudit(ctx context.Context, entityType, entityID, field, oldValue, newValue string) models.AuditEntry {
	return models.AuditEntry{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		Actor:      requestcontext.Actor(ctx),
		At:         requestcontext.Now(ctx),
	}
}

func (s *Service) publish(ctx context.Context, events []models.LifecycleEvent) {
	if s.events == nil {
		return
	}
	for _, event := range events {
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to publish lifecycle event",
				"document_id", event.DocumentID,
				"to", event.To,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(operation, start)
}
