package models

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "docket/pkg/domain-errors"
)

// State is a document's lifecycle state.
type State string

const (
	StateDraft    State = "draft"
	StateActive   State = "active"
	StateObsolete State = "obsolete"
	StateArchived State = "archived"
)

// States lists every lifecycle state in lifecycle order.
var States = []State{StateDraft, StateActive, StateObsolete, StateArchived}

var transitions = map[State][]State{
	StateDraft:    {StateActive, StateArchived},
	StateActive:   {StateObsolete, StateArchived},
	StateObsolete: {StateArchived},
	StateArchived: {},
}

func (s State) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s State) String() string {
	return string(s)
}

// CanTransitionTo reports whether the lifecycle table allows s -> target.
// Same-state requests are never allowed.
func (s State) CanTransitionTo(target State) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Targets returns the states reachable from s in one transition.
func (s State) Targets() []State {
	return append([]State(nil), transitions[s]...)
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// ParseState validates a state name.
func ParseState(raw string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown document state %q", raw)
	}
	return s, nil
}

// Well-known metadata keys.
const (
	MetaTags             = "tags"
	MetaTombstone        = "tombstone"
	MetaContentDeletedAt = "content_deleted_at"
	MetaArchivePath      = "archive_path"
)

// Metadata is the open key/value bag attached to a document. Values are
// JSON-compatible (string, float64, bool, nil, []any, map[string]any).
type Metadata map[string]any

// NormalizeMetadata round-trips m through JSON so that stored and in-memory
// values have identical shapes regardless of the caller's Go types.
func NormalizeMetadata(m map[string]any) (Metadata, error) {
	if len(m) == 0 {
		return Metadata{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "metadata must be JSON-encodable")
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "metadata must be a JSON object")
	}
	return out, nil
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Metadata(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// String returns the value at key rendered as text, or "" when absent.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// Tags returns the sorted string values of the tags key. A single string is
// treated as a one-element list.
func (m Metadata) Tags() []string {
	var tags []string
	switch v := m[MetaTags].(type) {
	case string:
		tags = []string{v}
	case []string:
		tags = append(tags, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// HasTag reports whether tag is present in the tags list.
func (m Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags() {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// FormatValue renders a metadata value as text. Scalars render bare; lists
// and objects render as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool, float64, float32, int, int64:
		return fmt.Sprint(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}

// Document is a tracked unit of content.
//
// Invariants:
//   - Path is unique and never changes, including across archival
//   - at most one active Document exists per (Type, scope value)
//   - State only moves along the lifecycle table; archived is terminal
//   - a tombstoned Document keeps its row and relationships; only its
//     content is gone
type Document struct {
	ID             uuid.UUID  `json:"id"`
	Path           string     `json:"path"`
	Type           string     `json:"type"`
	State          State      `json:"state"`
	ContentHash    string     `json:"content_hash"`
	Title          string     `json:"title,omitempty"`
	Excerpt        string     `json:"excerpt,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ModifiedAt     time.Time  `json:"modified_at"`
	StateChangedAt time.Time  `json:"state_changed_at"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	Reviewer       string     `json:"reviewer,omitempty"`
	ReviewDueAt    *time.Time `json:"review_due_at,omitempty"`
	Retention      string     `json:"retention,omitempty"`
	Metadata       Metadata   `json:"metadata"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Metadata = d.Metadata.Clone()
	if d.ArchivedAt != nil {
		at := *d.ArchivedAt
		out.ArchivedAt = &at
	}
	if d.ReviewDueAt != nil {
		at := *d.ReviewDueAt
		out.ReviewDueAt = &at
	}
	return &out
}

// ScopeValue returns the document's value for the uniqueness scope key.
// Missing or null means the default scope "".
func (d *Document) ScopeValue(scopeKey string) string {
	return d.Metadata.String(scopeKey)
}

// Tombstoned reports whether the document's content has been deleted.
func (d *Document) Tombstoned() bool {
	v, _ := d.Metadata[MetaTombstone].(bool)
	return v
}

// ArchivePath returns where archived content lives, relative to the content
// root.
func (d *Document) ArchivePath(archiveRoot string) string {
	if p := d.Metadata.String(MetaArchivePath); p != "" {
		return p
	}
	return ArchiveLocation(archiveRoot, d.Path)
}

// ContentPath returns where the document's content currently lives.
func (d *Document) ContentPath(archiveRoot string) string {
	if d.State == StateArchived {
		return d.ArchivePath(archiveRoot)
	}
	return d.Path
}

// ArchiveLocation maps a logical path into the archive root.
func ArchiveLocation(archiveRoot, docPath string) string {
	return path.Join(archiveRoot, CleanPath(docPath))
}

// CleanPath normalises a logical document path: slash-separated, relative,
// no dot segments.
func CleanPath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// ValidatePath rejects empty paths and paths that climb out of the root.
func ValidatePath(p string) error {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		return dErrors.New(dErrors.CodeValidation, "path is required")
	}
	for _, part := range strings.Split(strings.ReplaceAll(trimmed, "\\", "/"), "/") {
		if part == ".." {
			return dErrors.Newf(dErrors.CodeValidation, "path %q escapes the content root", p)
		}
	}
	if CleanPath(trimmed) == "" {
		return dErrors.Newf(dErrors.CodeValidation, "path %q names the content root", p)
	}
	return nil
}
