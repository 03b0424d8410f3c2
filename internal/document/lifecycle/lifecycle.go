// Package lifecycle holds the pure rules of the document state machine: which
// transitions are legal and when retention makes a document due for archival
// or content deletion. It performs no I/O; the document service executes the
// decisions inside storage transactions.
package lifecycle

import (
	"strings"
	"time"

	"docket/internal/document/models"
	dErrors "docket/pkg/domain-errors"
)

// DefaultBlockingTags prevent content deletion when present on a document.
var DefaultBlockingTags = []string{"legal-hold", "retain"}

// ValidateTransition returns an invalid_transition error naming both states
// unless the table allows from -> to.
func ValidateTransition(from, to models.State) error {
	if !to.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown target state %q", to)
	}
	if from == to {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "document is already %s", from)
	}
	if !from.CanTransitionTo(to) {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot transition document from %s to %s", from, to)
	}
	return nil
}

// Policies resolves the retention policy that governs a document.
type Policies struct {
	ByName map[string]models.RetentionPolicy
	// TypeDefaults maps document type to policy name.
	TypeDefaults map[string]string
	// Default names the policy used when neither document nor type names one.
	Default      string
	BlockingTags []string
}

// For returns the policy for doc: its own Retention, then its type default,
// then the global default. ok is false when none resolves.
func (p Policies) For(doc *models.Document) (models.RetentionPolicy, bool) {
	for _, name := range []string{doc.Retention, p.TypeDefaults[doc.Type], p.Default} {
		if name == "" {
			continue
		}
		if policy, ok := p.ByName[name]; ok {
			if policy.Name == "" {
				policy.Name = name
			}
			return policy, true
		}
	}
	return models.RetentionPolicy{}, false
}

// Known reports whether name is a configured policy.
func (p Policies) Known(name string) bool {
	_, ok := p.ByName[name]
	return ok
}

// ArchiveDue reports whether an obsolete document has outlived ObsoleteAfter.
func ArchiveDue(doc *models.Document, policy models.RetentionPolicy, now time.Time) bool {
	if doc.State != models.StateObsolete || policy.ObsoleteAfter <= 0 {
		return false
	}
	return !now.Before(doc.StateChangedAt.Add(policy.ObsoleteAfter))
}

// DeleteDue reports whether an archived document's retention window has
// passed and the policy allows deleting its content. Blocking tags are
// checked separately by Blocked so callers can report the skip.
func DeleteDue(doc *models.Document, policy models.RetentionPolicy, now time.Time) bool {
	if doc.State != models.StateArchived || doc.Tombstoned() {
		return false
	}
	if !policy.AllowDelete || policy.DeleteAfter <= 0 || doc.ArchivedAt == nil {
		return false
	}
	return !now.Before(doc.ArchivedAt.Add(policy.DeleteAfter))
}

// Blocked returns the first blocking tag carried by doc, or "".
func (p Policies) Blocked(doc *models.Document) string {
	tags := p.BlockingTags
	if tags == nil {
		tags = DefaultBlockingTags
	}
	for _, tag := range tags {
		if doc.Metadata.HasTag(strings.TrimSpace(tag)) {
			return tag
		}
	}
	return ""
}
