package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"docket/internal/content"
	"docket/internal/document/lifecycle"
	"docket/internal/document/models"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/retry"
	"docket/pkg/requestcontext"
)

// Sweep enforces retention in two phases. Phase one archives obsolete
// documents whose policy window has passed. Phase two re-lists archived
// documents and deletes the content of those whose deletion window has
// passed, leaving a tombstone on the row. Per-document failures are
// collected in the report; a dry run reports the same decisions without
// touching anything.
func (s *Service) Sweep(ctx context.Context, req models.SweepRequest) (*models.SweepReport, error) {
	start := time.Now()
	defer s.observe("sweep", start)

	now := req.Now
	if now.IsZero() {
		now = requestcontext.Now(ctx)
	}
	now = now.UTC()
	ctx = requestcontext.WithTime(ctx, now)

	report := &models.SweepReport{
		DryRun:   req.DryRun,
		Now:      now,
		Archived: []models.SweepAction{},
		Deleted:  []models.SweepAction{},
		Skipped:  []models.SweepAction{},
		Failures: []models.SweepFailure{},
	}

	obsolete, err := s.listByState(ctx, models.StateObsolete)
	if err != nil {
		return nil, err
	}
	for _, doc := range obsolete {
		if err := ctx.Err(); err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeTimeout, "sweep interrupted")
		}
		policy, ok := s.cfg.Retention.For(doc)
		if !ok || !lifecycle.ArchiveDue(doc, policy, now) {
			continue
		}
		action := sweepAction(doc, models.ActionArchive, policy)
		if req.DryRun {
			report.Archived = append(report.Archived, action)
			s.countSweep(action.Action, "planned")
			continue
		}
		if _, err := s.Transition(ctx, doc.ID, models.StateArchived, "retention: policy "+policy.Name); err != nil {
			report.Failures = append(report.Failures, models.SweepFailure{SweepAction: action, Error: err.Error()})
			s.countSweep(action.Action, "failed")
			continue
		}
		report.Archived = append(report.Archived, action)
		s.countSweep(action.Action, "done")
	}

	archived, err := s.listByState(ctx, models.StateArchived)
	if err != nil {
		return report, err
	}
	for _, doc := range archived {
		if err := ctx.Err(); err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeTimeout, "sweep interrupted")
		}
		policy, ok := s.cfg.Retention.For(doc)
		if !ok {
			continue
		}
		if doc.Tombstoned() {
			s.purgeLeftover(ctx, doc, policy, report)
			continue
		}
		if !lifecycle.DeleteDue(doc, policy, now) {
			continue
		}
		action := sweepAction(doc, models.ActionDeleteContent, policy)
		if tag := s.cfg.Retention.Blocked(doc); tag != "" {
			report.Skipped = append(report.Skipped, action)
			s.countSweep(action.Action, "skipped")
			s.logger.InfoContext(ctx, "retention deletion blocked by tag",
				"document_id", doc.ID,
				"path", doc.Path,
				"tag", tag,
				"request_id", requestcontext.RequestID(ctx),
			)
			continue
		}
		if req.DryRun {
			report.Deleted = append(report.Deleted, action)
			s.countSweep(action.Action, "planned")
			continue
		}
		if err := s.deleteContent(ctx, doc.ID, policy); err != nil {
			report.Failures = append(report.Failures, models.SweepFailure{SweepAction: action, Error: err.Error()})
			s.countSweep(action.Action, "failed")
			continue
		}
		report.Deleted = append(report.Deleted, action)
		s.countSweep(action.Action, "done")
	}

	s.logger.InfoContext(ctx, "retention sweep finished",
		"dry_run", req.DryRun,
		"archived", len(report.Archived),
		"deleted", len(report.Deleted),
		"skipped", len(report.Skipped),
		"failures", len(report.Failures),
		"request_id", requestcontext.RequestID(ctx),
	)
	return report, nil
}

// deleteContent tombstones an archived document and, once the tombstone has
// committed, removes its content. The row and its relationships are kept. A
// failed removal leaves content behind for the next sweep to purge.
func (s *Service) deleteContent(ctx context.Context, id uuid.UUID, policy models.RetentionPolicy) error {
	var archivePath string
	err := s.inTx(ctx, func(txCtx context.Context) error {
		doc, err := s.store.LockByID(txCtx, id)
		if err != nil {
			return wrapStoreErr(err, "failed to load document")
		}
		now := requestcontext.Now(txCtx)
		if !lifecycle.DeleteDue(doc, policy, now) {
			return dErrors.Newf(dErrors.CodeConflict, "document %s is no longer due for deletion", doc.Path)
		}
		archivePath = doc.ArchivePath(s.cfg.ArchiveRoot)

		if doc.Metadata == nil {
			doc.Metadata = models.Metadata{}
		}
		doc.Metadata[models.MetaTombstone] = true
		doc.Metadata[models.MetaContentDeletedAt] = now.Format(time.RFC3339)
		doc.ModifiedAt = now
		if err := s.store.Update(txCtx, doc); err != nil {
			return wrapStoreErr(err, "failed to tombstone document")
		}
		entry := s.newAudit(txCtx, models.EntityDocument, doc.ID.String(), models.FieldTombstone,
			"false", "true")
		return wrapStoreErr(s.store.AppendAudit(txCtx, entry), "failed to write audit log")
	})
	if err != nil {
		return err
	}
	return s.removeContent(ctx, archivePath)
}

// purgeLeftover removes content still present under a tombstoned document,
// left there by a removal that failed after its tombstone committed.
func (s *Service) purgeLeftover(ctx context.Context, doc *models.Document, policy models.RetentionPolicy, report *models.SweepReport) {
	archivePath := doc.ArchivePath(s.cfg.ArchiveRoot)
	if _, err := s.content.Stat(ctx, archivePath); err != nil {
		if !errors.Is(err, content.ErrNotExist) {
			s.logger.WarnContext(ctx, "failed to stat tombstoned content",
				"document_id", doc.ID,
				"path", archivePath,
				"error", err,
			)
		}
		return
	}
	action := sweepAction(doc, models.ActionDeleteContent, policy)
	if report.DryRun {
		report.Deleted = append(report.Deleted, action)
		s.countSweep(action.Action, "planned")
		return
	}
	if err := s.removeContent(ctx, archivePath); err != nil {
		report.Failures = append(report.Failures, models.SweepFailure{SweepAction: action, Error: err.Error()})
		s.countSweep(action.Action, "failed")
		return
	}
	report.Deleted = append(report.Deleted, action)
	s.countSweep(action.Action, "done")
}

func (s *Service) removeContent(ctx context.Context, archivePath string) error {
	if err := s.content.Delete(ctx, archivePath); err != nil && !errors.Is(err, content.ErrNotExist) {
		return wrapContentErr(err, "failed to delete content at "+archivePath)
	}
	return nil
}

func (s *Service) listByState(ctx context.Context, state models.State) ([]*models.Document, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) ([]*models.Document, error) {
		docs, err := s.store.ListByState(ctx, state, "")
		return docs, wrapStoreErr(err, "failed to list "+string(state)+" documents")
	})
}

func (s *Service) countSweep(action, outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementSweepAction(action, outcome)
	}
}

func sweepAction(doc *models.Document, action string, policy models.RetentionPolicy) models.SweepAction {
	return models.SweepAction{
		DocumentID: doc.ID,
		Path:       doc.Path,
		Action:     action,
		Policy:     policy.Name,
	}
}
