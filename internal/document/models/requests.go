package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "docket/pkg/domain-errors"
)

// RegisterRequest starts tracking content that already exists at Path.
type RegisterRequest struct {
	Path        string         `json:"path"`
	Type        string         `json:"type"`
	State       State          `json:"state,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner,omitempty"`
	Reviewer    string         `json:"reviewer,omitempty"`
	ReviewDueAt *time.Time     `json:"review_due_at,omitempty"`
	Retention   string         `json:"retention,omitempty"`
}

// Normalize trims input and applies the default initial state.
func (r *RegisterRequest) Normalize() {
	r.Path = CleanPath(r.Path)
	r.Type = strings.TrimSpace(r.Type)
	r.Owner = strings.TrimSpace(r.Owner)
	r.Reviewer = strings.TrimSpace(r.Reviewer)
	r.Retention = strings.TrimSpace(r.Retention)
	if r.State == "" {
		r.State = StateDraft
	}
}

// Validate checks shape only; type membership is checked by the service,
// which owns the configured type set.
func (r *RegisterRequest) Validate() error {
	if err := ValidatePath(r.Path); err != nil {
		return err
	}
	if r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	if r.State != StateDraft && r.State != StateActive {
		return dErrors.Newf(dErrors.CodeValidation, "documents register as draft or active, not %q", r.State)
	}
	return nil
}

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 200
)

// Filter is a conjunction of optional predicates over the catalog.
type Filter struct {
	Types          []string   `json:"types,omitempty"`
	States         []State    `json:"states,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	Tag            string     `json:"tag,omitempty"`
	ModifiedAfter  *time.Time `json:"modified_after,omitempty"`
	ModifiedBefore *time.Time `json:"modified_before,omitempty"`
	Text           string     `json:"text,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}

// Normalize clamps paging and validates states.
func (f *Filter) Normalize() error {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Text = strings.TrimSpace(f.Text)
	f.Owner = strings.TrimSpace(f.Owner)
	f.Tag = strings.TrimSpace(f.Tag)
	for _, s := range f.States {
		if !s.IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown document state %q", s)
		}
	}
	return nil
}

// Page is one window of a query result.
type Page struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
	Limit     int         `json:"limit"`
	Offset    int         `json:"offset"`
}

// StatusConflict reports a front-matter status that disagrees with the
// registry. The registry value is kept.
type StatusConflict struct {
	Stored      State  `json:"stored"`
	FrontMatter string `json:"front_matter"`
}

// SyncResult describes what SyncContent changed.
type SyncResult struct {
	Document       *Document       `json:"document"`
	ContentChanged bool            `json:"content_changed"`
	StatusConflict *StatusConflict `json:"status_conflict,omitempty"`
}

// LifecycleEvent is published after a committed state change.
type LifecycleEvent struct {
	DocumentID uuid.UUID `json:"document_id"`
	Path       string    `json:"path"`
	Type       string    `json:"type"`
	From       State     `json:"from"`
	To         State     `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	Actor      string    `json:"actor"`
	At         time.Time `json:"at"`
}

// Health reports whether the registry's dependencies respond.
type Health struct {
	Status  string `json:"status"`
	Store   string `json:"store"`
	Content string `json:"content"`
}

// TransitionRequest asks for a lifecycle change.
type TransitionRequest struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// LinkRequest adds an edge from the addressed document to To.
type LinkRequest struct {
	To   uuid.UUID `json:"to"`
	Kind string    `json:"kind,omitempty"`
}
