package models

import (
	"time"

	"github.com/google/uuid"
)

// RetentionPolicy decides when documents leave circulation. Zero durations
// disable the corresponding step.
type RetentionPolicy struct {
	Name string `json:"name" yaml:"name"`
	// ObsoleteAfter is how long a document may stay obsolete before the
	// sweep archives it, measured from StateChangedAt.
	ObsoleteAfter time.Duration `json:"obsolete_after" yaml:"obsolete_after"`
	// DeleteAfter is how long archived content is kept, measured from
	// ArchivedAt. Deletion also requires AllowDelete.
	DeleteAfter time.Duration `json:"delete_after" yaml:"delete_after"`
	AllowDelete bool          `json:"allow_delete" yaml:"allow_delete"`
}

// SweepRequest runs retention as of Now. DryRun reports without acting.
type SweepRequest struct {
	Now    time.Time `json:"now"`
	DryRun bool      `json:"dry_run"`
}

// Sweep actions.
const (
	ActionArchive       = "archive"
	ActionDeleteContent = "delete_content"
)

// SweepAction is one retention decision.
type SweepAction struct {
	DocumentID uuid.UUID `json:"document_id"`
	Path       string    `json:"path"`
	Action     string    `json:"action"`
	Policy     string    `json:"policy"`
}

// SweepFailure is a decision that could not be carried out.
type SweepFailure struct {
	SweepAction
	Error string `json:"error"`
}

// SweepReport lists what a sweep did (or, for a dry run, would do).
type SweepReport struct {
	DryRun   bool           `json:"dry_run"`
	Now      time.Time      `json:"now"`
	Archived []SweepAction  `json:"archived"`
	Deleted  []SweepAction  `json:"deleted"`
	Skipped  []SweepAction  `json:"skipped,omitempty"`
	Failures []SweepFailure `json:"failures,omitempty"`
}

// Changed reports whether the sweep acted on anything.
func (r *SweepReport) Changed() bool {
	return len(r.Archived) > 0 || len(r.Deleted) > 0
}
