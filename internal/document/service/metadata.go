package service

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"

	"docket/internal/document/models"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/requestcontext"
)

var reservedMetadataKeys = map[string]struct{}{
	models.MetaTombstone:        {},
	models.MetaContentDeletedAt: {},
	models.MetaArchivePath:      {},
}

// UpdateMetadata shallow-merges patch into the document's metadata. A nil
// value removes the key. Each changed key gets its own audit entry.
func (s *Service) UpdateMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) (*models.Document, error) {
	start := time.Now()
	defer s.observe("update_metadata", start)

	if len(patch) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata patch is empty")
	}
	for key := range patch {
		if key == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "metadata keys must not be empty")
		}
		if _, ok := reservedMetadataKeys[key]; ok {
			return nil, dErrors.Newf(dErrors.CodeValidation, "metadata key %q is managed by retention", key)
		}
	}
	normalized, err := models.NormalizeMetadata(patch)
	if err != nil {
		return nil, err
	}

	var result *models.Document
	err = s.inTx(ctx, func(txCtx context.Context) error {
		doc, err := s.store.LockByID(txCtx, id)
		if err != nil {
			return wrapStoreErr(err, "failed to load document")
		}
		if doc.Metadata == nil {
			doc.Metadata = models.Metadata{}
		}

		merged := doc.Metadata.Clone()
		for key, value := range normalized {
			if value == nil {
				delete(merged, key)
				continue
			}
			merged[key] = value
		}
		if err := s.checkScopeChange(doc, merged.String(s.cfg.ScopeKey)); err != nil {
			return err
		}

		keys := make([]string, 0, len(normalized))
		for key := range normalized {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var entries []models.AuditEntry
		for _, key := range keys {
			oldValue, had := doc.Metadata[key]
			newValue, has := merged[key]
			if had == has && reflect.DeepEqual(oldValue, newValue) {
				continue
			}
			entries = append(entries, s.newAudit(txCtx, models.EntityDocument, doc.ID.String(),
				"metadata."+key, models.FormatValue(oldValue), models.FormatValue(newValue)))
		}
		result = doc
		if len(entries) == 0 {
			return nil
		}

		doc.Metadata = merged
		doc.ModifiedAt = requestcontext.Now(txCtx)
		if err := s.store.Update(txCtx, doc); err != nil {
			return wrapStoreErr(err, "failed to update document")
		}
		return wrapStoreErr(s.store.AppendAudit(txCtx, entries...), "failed to write audit log")
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "document metadata updated",
		"document_id", id,
		"keys", len(patch),
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}
