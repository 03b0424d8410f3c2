package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"docket/internal/document/lifecycle"
	"docket/internal/document/models"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/requestcontext"
)

// Transition moves a document to target.
//
// The document is re-read under lock inside one storage transaction. Target
// active first demotes the other active documents of the same (type, scope).
// Target archived moves content into the archive root as the last step of the
// transaction: a failed move aborts with no state change, and a failed
// commit moves the content back.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target models.State, reason string) (*models.Document, error) {
	start := time.Now()
	defer s.observe("transition", start)

	doc, events, err := s.transition(ctx, id, target, reason)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementTransitionFailure(codeLabel(err))
		}
		return nil, err
	}
	s.publish(ctx, events)
	if s.metrics != nil {
		for _, event := range events {
			s.metrics.IncrementTransition(string(event.From), string(event.To))
		}
	}
	for _, event := range events {
		s.logger.InfoContext(ctx, "document transitioned",
			"document_id", event.DocumentID,
			"path", event.Path,
			"from", event.From,
			"to", event.To,
			"reason", event.Reason,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return doc, nil
}

// Archive is Transition to archived.
func (s *Service) Archive(ctx context.Context, id uuid.UUID, reason string) (*models.Document, error) {
	return s.Transition(ctx, id, models.StateArchived, reason)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, target models.State, reason string) (*models.Document, []models.LifecycleEvent, error) {
	var (
		result  *models.Document
		events  []models.LifecycleEvent
		moveSrc string
		moveDst string
		moved   bool
	)

	err := s.inTx(ctx, func(txCtx context.Context) error {
		doc, err := s.store.LockByID(txCtx, id)
		if err != nil {
			return wrapStoreErr(err, "failed to load document")
		}
		if err := lifecycle.ValidateTransition(doc.State, target); err != nil {
			return err
		}

		now := requestcontext.Now(txCtx)
		from := doc.State
		if target == models.StateActive {
			demoted, err := s.demoteActive(txCtx, doc, "superseded by "+doc.Path)
			if err != nil {
				return err
			}
			events = append(events, demoted...)
		}

		doc.State = target
		doc.StateChangedAt = now
		doc.ModifiedAt = now
		if target == models.StateArchived {
			moveSrc = doc.Path
			moveDst = models.ArchiveLocation(s.cfg.ArchiveRoot, doc.Path)
			doc.ArchivedAt = &now
			if doc.Metadata == nil {
				doc.Metadata = models.Metadata{}
			}
			doc.Metadata[models.MetaArchivePath] = moveDst
		}
		if err := s.store.Update(txCtx, doc); err != nil {
			return wrapStoreErr(err, "failed to update document")
		}
		entry := s.newAudit(txCtx, models.EntityDocument, doc.ID.String(), models.FieldState, string(from), string(target))
		if err := s.store.AppendAudit(txCtx, entry); err != nil {
			return wrapStoreErr(err, "failed to write audit log")
		}

		if target == models.StateArchived {
			if err := s.content.Move(txCtx, moveSrc, moveDst); err != nil {
				return wrapContentErr(err, "failed to move content to "+moveDst)
			}
			moved = true
		}

		result = doc
		events = append(events, models.LifecycleEvent{
			DocumentID: doc.ID,
			Path:       doc.Path,
			Type:       doc.Type,
			From:       from,
			To:         target,
			Reason:     reason,
			Actor:      requestcontext.Actor(txCtx),
			At:         now,
		})
		return nil
	})
	if err != nil {
		if moved {
			s.compensateMove(ctx, id, moveDst, moveSrc, err)
		}
		return nil, nil, err
	}
	return result, events, nil
}

// compensateMove puts archived content back after the transaction that
// recorded the archival failed to commit.
func (s *Service) compensateMove(ctx context.Context, id uuid.UUID, src, dst string, cause error) {
	// The request context may be what failed the commit.
	moveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.content.Move(moveCtx, src, dst); err != nil {
		s.logger.ErrorContext(ctx, "failed to restore content after aborted archival",
			"document_id", id,
			"archive_path", src,
			"path", dst,
			"cause", cause,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementCompensation()
	}
	s.logger.WarnContext(ctx, "restored content after aborted archival",
		"document_id", id,
		"path", dst,
		"cause", cause,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// demoteActive moves every other active document sharing doc's (type, scope)
// to obsolete. It must run inside the caller's transaction, and takes the
// scope lock before reading so concurrent activations see each other.
func (s *Service) demoteActive(ctx context.Context, doc *models.Document, reason string) ([]models.LifecycleEvent, error) {
	scope := doc.ScopeValue(s.cfg.ScopeKey)
	if err := s.store.LockScope(ctx, doc.Type, scope); err != nil {
		return nil, wrapStoreErr(err, "failed to lock scope")
	}
	active, err := s.store.ListByState(ctx, models.StateActive, doc.Type)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list active documents")
	}
	now := requestcontext.Now(ctx)

	var events []models.LifecycleEvent
	for _, other := range active {
		if other.ID == doc.ID || other.ScopeValue(s.cfg.ScopeKey) != scope {
			continue
		}
		locked, err := s.store.LockByID(ctx, other.ID)
		if err != nil {
			return nil, wrapStoreErr(err, "failed to lock active document")
		}
		if locked.State != models.StateActive {
			continue
		}
		locked.State = models.StateObsolete
		locked.StateChangedAt = now
		locked.ModifiedAt = now
		if err := s.store.Update(ctx, locked); err != nil {
			return nil, wrapStoreErr(err, "failed to demote document")
		}
		entry := s.newAudit(ctx, models.EntityDocument, locked.ID.String(), models.FieldState,
			string(models.StateActive), string(models.StateObsolete))
		if err := s.store.AppendAudit(ctx, entry); err != nil {
			return nil, wrapStoreErr(err, "failed to write audit log")
		}
		events = append(events, models.LifecycleEvent{
			DocumentID: locked.ID,
			Path:       locked.Path,
			Type:       locked.Type,
			From:       models.StateActive,
			To:         models.StateObsolete,
			Reason:     reason,
			Actor:      requestcontext.Actor(ctx),
			At:         now,
		})
	}
	return events, nil
}

// checkScopeChange rejects moving an active document to another scope.
func (s *Service) checkScopeChange(doc *models.Document, newScope string) error {
	if doc.State != models.StateActive || doc.ScopeValue(s.cfg.ScopeKey) == newScope {
		return nil
	}
	return dErrors.Newf(dErrors.CodeConflict,
		"cannot change %q of active document %s; transition it out of active first", s.cfg.ScopeKey, doc.Path)
}
