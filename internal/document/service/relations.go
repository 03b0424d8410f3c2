package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docket/internal/document/models"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/retry"
	"docket/pkg/requestcontext"
)

// Link records that from is upstream of to. Linking the same pair with the
// same kind twice is a no-op.
func (s *Service) Link(ctx context.Context, from, to uuid.UUID, kind string) (*models.Relationship, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = models.DefaultRelationshipKind
	}
	if from == to {
		return nil, dErrors.Newf(dErrors.CodeSelfReference, "document %s cannot link to itself", from)
	}

	rel := models.Relationship{FromID: from, ToID: to, Kind: kind}
	created := false
	err := s.inTx(ctx, func(txCtx context.Context) error {
		for _, id := range []uuid.UUID{from, to} {
			if _, err := s.store.FindByID(txCtx, id); err != nil {
				if dErrors.HasCode(wrapStoreErr(err, ""), dErrors.CodeNotFound) {
					return dErrors.Newf(dErrors.CodeUnknownDocument, "document %s is not registered", id)
				}
				return wrapStoreErr(err, "failed to load document")
			}
		}
		rel.CreatedAt = requestcontext.Now(txCtx)
		ok, err := s.store.AddRelationship(txCtx, rel)
		if err != nil {
			return wrapStoreErr(err, "failed to add relationship")
		}
		if !ok {
			return nil
		}
		created = true
		entry := s.newAudit(txCtx, models.EntityRelationship, from.String(), models.FieldLink,
			"", fmt.Sprintf("%s -[%s]-> %s", from, kind, to))
		return wrapStoreErr(s.store.AppendAudit(txCtx, entry), "failed to write audit log")
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.InfoContext(ctx, "documents linked",
			"from", from,
			"to", to,
			"kind", kind,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return &rel, nil
}

type lineageStep struct {
	id    uuid.UUID
	depth int
	dir   models.Direction
}

// Lineage walks relationships breadth-first from id. Ancestors follow
// incoming edges, descendants follow outgoing edges. Each document appears
// once at its shallowest depth.
func (s *Service) Lineage(ctx context.Context, id uuid.UUID, req models.LineageRequest) (*models.Lineage, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	root, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &models.Lineage{Root: root, Nodes: []models.LineageNode{}, Edges: []models.Relationship{}}
	visited := map[uuid.UUID]struct{}{id: {}}
	seenEdge := map[string]struct{}{}

	var queue []lineageStep
	if req.Direction != models.DirectionDescendants {
		queue = append(queue, lineageStep{id: id, dir: models.DirectionAncestors})
	}
	if req.Direction != models.DirectionAncestors {
		queue = append(queue, lineageStep{id: id, dir: models.DirectionDescendants})
	}

	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]
		if step.depth >= req.MaxDepth {
			continue
		}

		edges, err := s.edges(ctx, step.id, step.dir)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			key := edge.FromID.String() + "|" + edge.Kind + "|" + edge.ToID.String()
			if _, ok := seenEdge[key]; !ok {
				seenEdge[key] = struct{}{}
				out.Edges = append(out.Edges, edge)
			}

			next := edge.ToID
			if step.dir == models.DirectionAncestors {
				next = edge.FromID
			}
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}

			doc, err := s.GetByID(ctx, next)
			if err != nil {
				return nil, err
			}
			out.Nodes = append(out.Nodes, models.LineageNode{
				ID:         doc.ID,
				Path:       doc.Path,
				Type:       doc.Type,
				State:      doc.State,
				Depth:      step.depth + 1,
				Direction:  step.dir,
				Tombstoned: doc.Tombstoned(),
			})
			queue = append(queue, lineageStep{id: next, depth: step.depth + 1, dir: step.dir})
		}
	}
	return out, nil
}

func (s *Service) edges(ctx context.Context, id uuid.UUID, dir models.Direction) ([]models.Relationship, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) ([]models.Relationship, error) {
		var (
			edges []models.Relationship
			err   error
		)
		if dir == models.DirectionAncestors {
			edges, err = s.store.Incoming(ctx, id)
		} else {
			edges, err = s.store.Outgoing(ctx, id)
		}
		return edges, wrapStoreErr(err, "failed to load relationships")
	})
}

// AuditTrail returns the change history of a document in commit order,
// including the links it originated.
func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID) ([]models.AuditEntry, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return retry.Do(ctx, s.retry, func(ctx context.Context) ([]models.AuditEntry, error) {
		entries, err := s.store.AuditTrail(ctx, id.String())
		return entries, wrapStoreErr(err, "failed to load audit trail")
	})
}
