package service

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docket/internal/content"
	"docket/internal/document/models"
	"docket/internal/markdown"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/retry"
	"docket/pkg/platform/sentinel"
	"docket/pkg/requestcontext"
)

// Register starts tracking the content at req.Path. Registering as active
// demotes the current active document of the same (type, scope) inside the
// same transaction.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.Document, error) {
	start := time.Now()
	defer s.observe("register", start)

	if err := models.ValidatePath(req.Path); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, ok := s.types[req.Type]; !ok {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown document type %q", req.Type)
	}
	if req.Retention != "" && !s.cfg.Retention.Known(req.Retention) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown retention policy %q", req.Retention)
	}
	meta, err := models.NormalizeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}
	for _, reserved := range []string{models.MetaTombstone, models.MetaContentDeletedAt, models.MetaArchivePath} {
		if _, ok := meta[reserved]; ok {
			return nil, dErrors.Newf(dErrors.CodeValidation, "metadata key %q is reserved", reserved)
		}
	}

	data, err := s.readPath(ctx, req.Path)
	if err != nil {
		return nil, err
	}
	body := s.summarize(data)

	now := requestcontext.Now(ctx)
	doc := &models.Document{
		ID:             uuid.New(),
		Path:           req.Path,
		Type:           req.Type,
		State:          req.State,
		ContentHash:    body.hash,
		Title:          body.title,
		Excerpt:        body.excerpt,
		CreatedAt:      now,
		ModifiedAt:     now,
		StateChangedAt: now,
		Owner:          req.Owner,
		Reviewer:       req.Reviewer,
		ReviewDueAt:    req.ReviewDueAt,
		Retention:      req.Retention,
		Metadata:       meta,
	}

	var events []models.LifecycleEvent
	err = s.inTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.FindByPath(txCtx, doc.Path); err == nil {
			return dErrors.Newf(dErrors.CodeAlreadyRegistered, "path %s is already registered", doc.Path)
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return wrapStoreErr(err, "failed to check path")
		}

		if doc.State == models.StateActive {
			demoted, err := s.demoteActive(txCtx, doc, "superseded by "+doc.Path)
			if err != nil {
				return err
			}
			events = demoted
		}
		if err := s.store.Create(txCtx, doc); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return dErrors.Newf(dErrors.CodeAlreadyRegistered, "path %s is already registered", doc.Path)
			}
			return wrapStoreErr(err, "failed to register document")
		}
		entries := []models.AuditEntry{
			s.newAudit(txCtx, models.EntityDocument, doc.ID.String(), models.FieldRegistered, "", doc.Path),
			s.newAudit(txCtx, models.EntityDocument, doc.ID.String(), models.FieldState, "", string(doc.State)),
		}
		return wrapStoreErr(s.store.AppendAudit(txCtx, entries...), "failed to write audit log")
	})
	if err != nil {
		return nil, err
	}

	events = append(events, models.LifecycleEvent{
		DocumentID: doc.ID,
		Path:       doc.Path,
		Type:       doc.Type,
		To:         doc.State,
		Reason:     "registered",
		Actor:      requestcontext.Actor(ctx),
		At:         now,
	})
	s.publish(ctx, events)
	if s.metrics != nil {
		s.metrics.IncrementRegistered()
	}
	s.logger.InfoContext(ctx, "document registered",
		"document_id", doc.ID,
		"path", doc.Path,
		"type", doc.Type,
		"state", doc.State,
		"request_id", requestcontext.RequestID(ctx),
	)
	return doc, nil
}

// Get resolves ref as a document id, falling back to a path.
func (s *Service) Get(ctx context.Context, ref string) (*models.Document, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		doc, err := s.GetByID(ctx, id)
		if err == nil || !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return doc, err
		}
	}
	return s.GetByPath(ctx, ref)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*models.Document, error) {
		doc, err := s.store.FindByID(ctx, id)
		return doc, wrapStoreErr(err, "failed to load document")
	})
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "document %s not found", id)
	}
	return doc, err
}

func (s *Service) GetByPath(ctx context.Context, p string) (*models.Document, error) {
	if err := models.ValidatePath(p); err != nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "document %q not found", p)
	}
	clean := models.CleanPath(p)
	doc, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*models.Document, error) {
		doc, err := s.store.FindByPath(ctx, clean)
		return doc, wrapStoreErr(err, "failed to load document")
	})
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "document %s not found", clean)
	}
	return doc, err
}

// Query returns one page of documents matching every predicate in f.
func (s *Service) Query(ctx context.Context, f models.Filter) (*models.Page, error) {
	start := time.Now()
	defer s.observe("query", start)

	if err := f.Normalize(); err != nil {
		return nil, err
	}
	return retry.Do(ctx, s.retry, func(ctx context.Context) (*models.Page, error) {
		page, err := s.store.Query(ctx, f)
		return page, wrapStoreErr(err, "failed to query documents")
	})
}

// ReadContent returns the document's current bytes from its live or archive
// location. Tombstoned documents have no content.
func (s *Service) ReadContent(ctx context.Context, doc *models.Document) ([]byte, error) {
	if doc.Tombstoned() {
		return nil, dErrors.Newf(dErrors.CodeContentIO, "content of %s was deleted by retention", doc.Path)
	}
	return s.readPath(ctx, doc.ContentPath(s.cfg.ArchiveRoot))
}

// SyncContent re-reads a document's content. Body fields follow the file;
// lifecycle state stays with the registry, and a front-matter status that
// disagrees is reported rather than applied.
func (s *Service) SyncContent(ctx context.Context, id uuid.UUID) (*models.SyncResult, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.ReadContent(ctx, current)
	if err != nil {
		return nil, err
	}
	body := s.summarize(data)

	result := &models.SyncResult{}
	err = s.inTx(ctx, func(txCtx context.Context) error {
		doc, err := s.store.LockByID(txCtx, id)
		if err != nil {
			return wrapStoreErr(err, "failed to load document")
		}
		result.Document = doc
		if status := body.status; status != "" && !strings.EqualFold(status, string(doc.State)) {
			result.StatusConflict = &models.StatusConflict{Stored: doc.State, FrontMatter: status}
		}
		if doc.ContentHash == body.hash {
			return nil
		}
		oldHash := doc.ContentHash
		doc.ContentHash = body.hash
		doc.Title = body.title
		doc.Excerpt = body.excerpt
		doc.ModifiedAt = requestcontext.Now(txCtx)
		if err := s.store.Update(txCtx, doc); err != nil {
			return wrapStoreErr(err, "failed to update document")
		}
		result.ContentChanged = true
		entry := s.newAudit(txCtx, models.EntityDocument, doc.ID.String(), models.FieldContentHash, oldHash, doc.ContentHash)
		return wrapStoreErr(s.store.AppendAudit(txCtx, entry), "failed to write audit log")
	})
	if err != nil {
		return nil, err
	}
	if result.StatusConflict != nil {
		s.logger.WarnContext(ctx, "front matter status disagrees with registry",
			"document_id", id,
			"stored", result.StatusConflict.Stored,
			"front_matter", result.StatusConflict.FrontMatter,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return result, nil
}

// Health pings the catalog and stats the content root.
func (s *Service) Health(ctx context.Context) *models.Health {
	h := &models.Health{Status: "ok", Store: "ok", Content: "ok"}
	if err := s.store.Ping(ctx); err != nil {
		h.Status, h.Store = "degraded", err.Error()
	}
	if _, err := s.content.Stat(ctx, ""); err != nil {
		h.Status, h.Content = "degraded", err.Error()
	}
	return h
}

type summary struct {
	hash, title, excerpt, status string
}

func (s *Service) summarize(data []byte) summary {
	front, body, err := markdown.Split(data)
	if err != nil {
		body = data
	}
	sum := summary{
		hash:    content.Hash(data),
		title:   markdown.Title(body),
		excerpt: markdown.Excerpt(body, s.cfg.ExcerptLength),
	}
	for _, key := range []string{"status", "state"} {
		if v, ok := front[key].(string); ok && v != "" {
			sum.status = strings.TrimSpace(v)
			break
		}
	}
	if title, ok := front["title"].(string); ok && sum.title == "" {
		sum.title = title
	}
	return sum
}

func (s *Service) readPath(ctx context.Context, p string) ([]byte, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		data, err := s.content.Read(ctx, p)
		if errors.Is(err, content.ErrNotExist) {
			return nil, retry.Permanent(dErrors.Wrap(err, dErrors.CodeContentIO, "no content at "+path.Clean(p)))
		}
		return data, wrapContentErr(err, "failed to read content at "+p)
	})
}
