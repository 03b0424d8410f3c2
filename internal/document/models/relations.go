package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "docket/pkg/domain-errors"
)

// Relationship is a directed edge: From is upstream of To (a PRD derives an
// epic, so prd -> epic). Several kinds may connect the same pair.
type Relationship struct {
	FromID    uuid.UUID `json:"from_id"`
	ToID      uuid.UUID `json:"to_id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultRelationshipKind is used when Link is called without a kind.
const DefaultRelationshipKind = "relates"

// Direction selects which edges a lineage walk follows.
type Direction string

const (
	DirectionAncestors   Direction = "ancestors"
	DirectionDescendants Direction = "descendants"
	DirectionBoth        Direction = "both"
)

const (
	DefaultLineageDepth = 5
	MaxLineageDepth     = 20
)

// LineageRequest bounds a lineage walk.
type LineageRequest struct {
	Direction Direction `json:"direction"`
	MaxDepth  int       `json:"max_depth"`
}

// Normalize applies defaults and validates the direction.
func (r *LineageRequest) Normalize() error {
	r.Direction = Direction(strings.ToLower(strings.TrimSpace(string(r.Direction))))
	switch r.Direction {
	case "":
		r.Direction = DirectionBoth
	case DirectionAncestors, DirectionDescendants, DirectionBoth:
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unknown lineage direction %q", r.Direction)
	}
	if r.MaxDepth <= 0 {
		r.MaxDepth = DefaultLineageDepth
	}
	if r.MaxDepth > MaxLineageDepth {
		r.MaxDepth = MaxLineageDepth
	}
	return nil
}

// LineageNode is one document reached by a lineage walk.
type LineageNode struct {
	ID         uuid.UUID `json:"id"`
	Path       string    `json:"path"`
	Type       string    `json:"type"`
	State      State     `json:"state"`
	Depth      int       `json:"depth"`
	Direction  Direction `json:"direction"`
	Tombstoned bool      `json:"tombstoned,omitempty"`
}

// Lineage is the result of walking relationships from a root document.
type Lineage struct {
	Root  *Document      `json:"root"`
	Nodes []LineageNode  `json:"nodes"`
	Edges []Relationship `json:"edges"`
}

// Audit entity types.
const (
	EntityDocument     = "document"
	EntityRelationship = "relationship"
)

// Audited fields beyond metadata keys, which are recorded as "metadata.<key>".
const (
	FieldRegistered  = "registered"
	FieldState       = "state"
	FieldContentHash = "content_hash"
	FieldLink        = "link"
	FieldTombstone   = "tombstone"
)

// AuditEntry is an immutable record of one field change.
type AuditEntry struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Field      string    `json:"field"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Actor      string    `json:"actor"`
	At         time.Time `json:"at"`
}
