package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,EventPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"docket/internal/content"
	"docket/internal/document/lifecycle"
	"docket/internal/document/metrics"
	"docket/internal/document/models"
	"docket/internal/document/service/mocks"
	docstore "docket/internal/document/store"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/platform/retry"
	"docket/pkg/requestcontext"
)

// =============================================================================
// Registry Test Suite
// =============================================================================
// Justification for unit tests: the registry owns the lifecycle invariants
// (transition table, one active document per type and scope, atomic archival,
// retention). These run against the in-memory store and content adapter so
// every property is checked without a database.

var (
	t0       = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fastTry  = retry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	standard = models.RetentionPolicy{Name: "standard", ObsoleteAfter: 24 * time.Hour, DeleteAfter: 48 * time.Hour, AllowDelete: true}
)

const prdV1 = `---
status: active
---
# Checkout PRD

Ship checkout v1.

## Goals

Fewer abandoned carts.
`

type RegistrySuite struct {
	suite.Suite
	store   *docstore.InMemoryStore
	content *content.Memory
	metrics *metrics.Metrics
	service *Service
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = docstore.NewInMemory()
	s.content = content.NewMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	svc, err := New(s.store, s.content, Config{
		Retention: lifecycle.Policies{
			ByName:  map[string]models.RetentionPolicy{"standard": standard},
			Default: "standard",
		},
	},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithRetryPolicy(fastTry),
	)
	s.Require().NoError(err)
	s.service = svc
}

func at(d time.Duration) context.Context {
	ctx := requestcontext.WithActor(context.Background(), "alice")
	return requestcontext.WithTime(ctx, t0.Add(d))
}

func (s *RegistrySuite) register(p, docType string, state models.State, meta map[string]any) *models.Document {
	s.T().Helper()
	if !s.content.Exists(p) {
		s.content.Put(p, "# "+p+"\n\nBody of "+p+".\n")
	}
	doc, err := s.service.Register(at(0), models.RegisterRequest{Path: p, Type: docType, State: state, Metadata: meta})
	s.Require().NoError(err)
	return doc
}

func (s *RegistrySuite) reload(id uuid.UUID) *models.Document {
	s.T().Helper()
	doc, err := s.service.GetByID(context.Background(), id)
	s.Require().NoError(err)
	return doc
}

func (s *RegistrySuite) activeCount(docType, scope string) int {
	s.T().Helper()
	docs, err := s.store.ListByState(context.Background(), models.StateActive, docType)
	s.Require().NoError(err)
	n := 0
	for _, doc := range docs {
		if doc.ScopeValue(DefaultScopeKey) == scope {
			n++
		}
	}
	return n
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *RegistrySuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.content, Config{})
		s.ErrorContains(err, "document store is required")
	})

	s.Run("nil content store returns error", func() {
		_, err := New(s.store, nil, Config{})
		s.ErrorContains(err, "content store is required")
	})

	s.Run("defaults are applied", func() {
		svc, err := New(s.store, s.content, Config{ArchiveRoot: "/old//archive/"})
		s.Require().NoError(err)
		s.Equal("old/archive", svc.ArchiveRoot())
		s.Equal(DefaultScopeKey, svc.ScopeKey())
		s.Contains(svc.types, "requirements-doc")
	})
}

// =============================================================================
// Registration and lookup
// =============================================================================

func (s *RegistrySuite) TestRegister() {
	s.Run("round trip by id and path", func() {
		s.content.Put("docs/prd.md", prdV1)
		doc, err := s.service.Register(at(0), models.RegisterRequest{
			Path:     "/docs/./prd.md",
			Type:     "requirements-doc",
			Owner:    " pm ",
			Metadata: map[string]any{"tags": []string{"checkout"}},
		})
		s.Require().NoError(err)
		s.Equal("docs/prd.md", doc.Path)
		s.Equal(models.StateDraft, doc.State)
		s.Equal("Checkout PRD", doc.Title)
		s.Equal("Ship checkout v1.", doc.Excerpt)
		s.Equal(content.Hash([]byte(prdV1)), doc.ContentHash)
		s.Equal("pm", doc.Owner)
		s.Equal(t0, doc.CreatedAt)

		byID, err := s.service.Get(context.Background(), doc.ID.String())
		s.Require().NoError(err)
		byPath, err := s.service.Get(context.Background(), "docs/prd.md")
		s.Require().NoError(err)
		s.Equal(doc, byID)
		s.Equal(doc, byPath)

		trail, err := s.service.AuditTrail(context.Background(), doc.ID)
		s.Require().NoError(err)
		s.Require().Len(trail, 2)
		s.Equal(models.FieldRegistered, trail[0].Field)
		s.Equal("alice", trail[0].Actor)
		s.Equal(string(models.StateDraft), trail[1].NewValue)
	})

	s.Run("duplicate path is already registered", func() {
		_, err := s.service.Register(at(0), models.RegisterRequest{Path: "docs/prd.md", Type: "generic"})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRegistered), err)
	})

	s.Run("rejects bad input", func() {
		s.content.Put("notes.md", "# Notes\n")
		cases := []models.RegisterRequest{
			{Path: "notes.md", Type: "recipe"},
			{Path: "../etc/passwd", Type: "generic"},
			{Path: "notes.md", Type: "generic", State: models.StateObsolete},
			{Path: "notes.md", Type: "generic", Retention: "forever"},
			{Path: "notes.md", Type: "generic", Metadata: map[string]any{models.MetaTombstone: true}},
		}
		for _, req := range cases {
			_, err := s.service.Register(at(0), req)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "%+v: %v", req, err)
		}
	})

	s.Run("missing content fails content_io", func() {
		_, err := s.service.Register(at(0), models.RegisterRequest{Path: "missing.md", Type: "generic"})
		s.True(dErrors.HasCode(err, dErrors.CodeContentIO), err)
		_, err = s.service.GetByPath(context.Background(), "missing.md")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown reference is not found", func() {
		_, err := s.service.Get(context.Background(), uuid.NewString())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Registered))
}

func (s *RegistrySuite) TestRegisterMissingContentIsNotRetried() {
	reads := 0
	s.content.FailRead = func(string) error {
		reads++
		return nil
	}

	_, err := s.service.Register(at(0), models.RegisterRequest{Path: "docs/missing.md", Type: "generic"})
	s.True(dErrors.HasCode(err, dErrors.CodeContentIO), err)
	s.ErrorContains(err, "no content at docs/missing.md")
	s.Equal(1, reads)
}

func (s *RegistrySuite) TestRegisterActiveDemotesCurrent() {
	old := s.register("prd-v1.md", "requirements-doc", models.StateActive, nil)
	other := s.register("billing.md", "requirements-doc", models.StateActive, map[string]any{"scope": "billing"})
	next := s.register("prd-v2.md", "requirements-doc", models.StateActive, nil)

	s.Equal(models.StateObsolete, s.reload(old.ID).State)
	s.Equal(models.StateActive, s.reload(other.ID).State)
	s.Equal(models.StateActive, s.reload(next.ID).State)
	s.Equal(1, s.activeCount("requirements-doc", ""))
	s.Equal(1, s.activeCount("requirements-doc", "billing"))
}

func (s *RegistrySuite) TestQuery() {
	s.register("a.md", "generic", models.StateDraft, map[string]any{"tags": []any{"alpha"}})
	s.register("b.md", "generic", models.StateActive, nil)

	page, err := s.service.Query(context.Background(), models.Filter{Tag: "alpha"})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal("a.md", page.Documents[0].Path)

	_, err = s.service.Query(context.Background(), models.Filter{States: []models.State{"gone"}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// =============================================================================
// Lifecycle transitions
// =============================================================================
// Justification: the transition table is the core invariant of the registry;
// every (from, to) pair is exercised through the service, not just the pure
// table.

func (s *RegistrySuite) TestTransitionTable() {
	paths := map[models.State][]models.State{
		models.StateDraft:    {},
		models.StateActive:   {models.StateActive},
		models.StateObsolete: {models.StateActive, models.StateObsolete},
		models.StateArchived: {models.StateArchived},
	}
	for _, from := range models.States {
		for _, to := range models.States {
			s.Run(string(from)+"->"+string(to), func() {
				s.SetupTest()
				doc := s.register("doc.md", "generic", models.StateDraft, nil)
				for _, step := range paths[from] {
					_, err := s.service.Transition(at(time.Minute), doc.ID, step, "setup")
					s.Require().NoError(err)
				}

				_, err := s.service.Transition(at(time.Hour), doc.ID, to, "test")
				if from.CanTransitionTo(to) {
					s.Require().NoError(err)
					s.Equal(to, s.reload(doc.ID).State)
					return
				}
				s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), err)
				s.Contains(err.Error(), string(from))
				s.Equal(from, s.reload(doc.ID).State)
			})
		}
	}
}

func (s *RegistrySuite) TestTransitionUnknownTarget() {
	doc := s.register("doc.md", "generic", models.StateDraft, nil)
	_, err := s.service.Transition(at(0), doc.ID, "published", "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Transition(at(0), uuid.New(), models.StateActive, "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TransitionFailure.WithLabelValues("not_found")))
}

func (s *RegistrySuite) TestPRDActivationScenario() {
	v1 := s.register("prd-v1.md", "requirements-doc", models.StateActive, nil)
	v2 := s.register("prd-v2.md", "requirements-doc", models.StateDraft, nil)

	doc, err := s.service.Transition(at(time.Hour), v2.ID, models.StateActive, "approved")
	s.Require().NoError(err)
	s.Equal(models.StateActive, doc.State)
	s.Equal(t0.Add(time.Hour), doc.StateChangedAt)

	s.Equal(models.StateObsolete, s.reload(v1.ID).State)
	s.Equal(1, s.activeCount("requirements-doc", ""))

	trail, err := s.service.AuditTrail(context.Background(), v1.ID)
	s.Require().NoError(err)
	last := trail[len(trail)-1]
	s.Equal(models.FieldState, last.Field)
	s.Equal(string(models.StateActive), last.OldValue)
	s.Equal(string(models.StateObsolete), last.NewValue)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("active", "obsolete")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("draft", "active")))
}

func (s *RegistrySuite) TestArchiveMovesContent() {
	doc := s.register("docs/old.md", "generic", models.StateDraft, nil)

	archived, err := s.service.Archive(at(time.Hour), doc.ID, "cleanup")
	s.Require().NoError(err)
	s.Equal(models.StateArchived, archived.State)
	s.Require().NotNil(archived.ArchivedAt)
	s.Equal(t0.Add(time.Hour), *archived.ArchivedAt)
	s.Equal("_archive/docs/old.md", archived.Metadata.String(models.MetaArchivePath))
	s.False(s.content.Exists("docs/old.md"))
	s.True(s.content.Exists("_archive/docs/old.md"))

	data, err := s.service.ReadContent(context.Background(), s.reload(doc.ID))
	s.Require().NoError(err)
	s.Contains(string(data), "Body of docs/old.md")
}

func (s *RegistrySuite) TestArchiveMoveFailureLeavesStateUnchanged() {
	doc := s.register("docs/old.md", "generic", models.StateDraft, nil)
	s.content.FailMove = func(string, string) error { return errors.New("disk full") }

	_, err := s.service.Archive(at(time.Hour), doc.ID, "cleanup")
	s.True(dErrors.HasCode(err, dErrors.CodeContentIO), err)

	stored := s.reload(doc.ID)
	s.Equal(models.StateDraft, stored.State)
	s.Nil(stored.ArchivedAt)
	s.Empty(stored.Metadata.String(models.MetaArchivePath))
	s.True(s.content.Exists("docs/old.md"))

	trail, err := s.service.AuditTrail(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Len(trail, 2)
}

// =============================================================================
// Metadata, links and lineage
// =============================================================================

func (s *RegistrySuite) TestUpdateMetadata() {
	doc := s.register("doc.md", "generic", models.StateActive, map[string]any{"team": "core", "priority": 1})

	updated, err := s.service.UpdateMetadata(at(time.Hour), doc.ID, map[string]any{
		"team":     "growth",
		"priority": nil,
		"tags":     []string{"q3"},
	})
	s.Require().NoError(err)
	s.Equal("growth", updated.Metadata["team"])
	s.NotContains(updated.Metadata, "priority")
	s.Equal([]string{"q3"}, updated.Metadata.Tags())
	s.Equal(t0.Add(time.Hour), updated.ModifiedAt)

	trail, err := s.service.AuditTrail(context.Background(), doc.ID)
	s.Require().NoError(err)
	var fields []string
	for _, entry := range trail[2:] {
		fields = append(fields, entry.Field)
	}
	s.Equal([]string{"metadata.priority", "metadata.tags", "metadata.team"}, fields)

	s.Run("unchanged patch writes nothing", func() {
		_, err := s.service.UpdateMetadata(at(2*time.Hour), doc.ID, map[string]any{"team": "growth"})
		s.Require().NoError(err)
		after, err := s.service.AuditTrail(context.Background(), doc.ID)
		s.Require().NoError(err)
		s.Len(after, len(trail))
	})

	s.Run("active document cannot change scope", func() {
		_, err := s.service.UpdateMetadata(at(0), doc.ID, map[string]any{"scope": "billing"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict), err)
	})

	s.Run("reserved keys are rejected", func() {
		_, err := s.service.UpdateMetadata(at(0), doc.ID, map[string]any{models.MetaArchivePath: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RegistrySuite) TestLink() {
	prd := s.register("prd.md", "requirements-doc", models.StateDraft, nil)
	epic := s.register("epic.md", "planning-epic", models.StateDraft, nil)

	rel, err := s.service.Link(at(0), prd.ID, epic.ID, "")
	s.Require().NoError(err)
	s.Equal(models.DefaultRelationshipKind, rel.Kind)

	_, err = s.service.Link(at(0), prd.ID, epic.ID, "relates")
	s.Require().NoError(err)
	out, err := s.store.Outgoing(context.Background(), prd.ID)
	s.Require().NoError(err)
	s.Len(out, 1)

	_, err = s.service.Link(at(0), prd.ID, prd.ID, "derives")
	s.True(dErrors.HasCode(err, dErrors.CodeSelfReference))

	_, err = s.service.Link(at(0), prd.ID, uuid.New(), "derives")
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownDocument))
}

func (s *RegistrySuite) TestLineage() {
	prd := s.register("prd.md", "requirements-doc", models.StateDraft, nil)
	arch := s.register("arch.md", "architecture-doc", models.StateDraft, nil)
	epic := s.register("epic.md", "planning-epic", models.StateDraft, nil)
	story := s.register("story.md", "work-item", models.StateDraft, nil)

	for _, edge := range [][2]uuid.UUID{{prd.ID, arch.ID}, {arch.ID, epic.ID}, {prd.ID, epic.ID}, {epic.ID, story.ID}, {story.ID, prd.ID}} {
		_, err := s.service.Link(at(0), edge[0], edge[1], "derives")
		s.Require().NoError(err)
	}

	s.Run("descendants by shallowest depth", func() {
		lineage, err := s.service.Lineage(context.Background(), prd.ID, models.LineageRequest{Direction: models.DirectionDescendants})
		s.Require().NoError(err)
		depths := map[string]int{}
		for _, node := range lineage.Nodes {
			depths[node.Path] = node.Depth
		}
		s.Equal(map[string]int{"arch.md": 1, "epic.md": 1, "story.md": 2}, depths)
	})

	s.Run("depth bound", func() {
		lineage, err := s.service.Lineage(context.Background(), prd.ID, models.LineageRequest{Direction: models.DirectionAncestors, MaxDepth: 1})
		s.Require().NoError(err)
		s.Require().Len(lineage.Nodes, 1)
		s.Equal("story.md", lineage.Nodes[0].Path)
		s.Equal(models.DirectionAncestors, lineage.Nodes[0].Direction)
	})

	s.Run("unknown direction", func() {
		_, err := s.service.Lineage(context.Background(), prd.ID, models.LineageRequest{Direction: "sideways"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Content sync
// =============================================================================

func (s *RegistrySuite) TestSyncContent() {
	s.content.Put("docs/prd.md", prdV1)
	doc, err := s.service.Register(at(0), models.RegisterRequest{Path: "docs/prd.md", Type: "requirements-doc"})
	s.Require().NoError(err)

	s.Run("status conflict is reported, not applied", func() {
		result, err := s.service.SyncContent(at(time.Hour), doc.ID)
		s.Require().NoError(err)
		s.False(result.ContentChanged)
		s.Require().NotNil(result.StatusConflict)
		s.Equal(models.StateDraft, result.StatusConflict.Stored)
		s.Equal("active", result.StatusConflict.FrontMatter)
		s.Equal(models.StateDraft, s.reload(doc.ID).State)
	})

	s.Run("body changes follow the file", func() {
		s.content.Put("docs/prd.md", "# Checkout PRD v2\n\nShip checkout v2.\n")
		result, err := s.service.SyncContent(at(2*time.Hour), doc.ID)
		s.Require().NoError(err)
		s.True(result.ContentChanged)
		s.Nil(result.StatusConflict)
		s.Equal("Checkout PRD v2", result.Document.Title)
		s.Equal(t0.Add(2*time.Hour), s.reload(doc.ID).ModifiedAt)
	})
}

// =============================================================================
// Retention sweep
// =============================================================================
// Justification: sweeps run unattended; idempotence and dry-run fidelity are
// what make them safe to schedule.

func (s *RegistrySuite) TestSweep() {
	old := s.register("prd-v1.md", "requirements-doc", models.StateActive, nil)
	held := s.register("legal.md", "generic", models.StateActive, map[string]any{"tags": []any{"legal-hold"}})
	s.register("prd-v2.md", "requirements-doc", models.StateActive, nil)
	_, err := s.service.Transition(at(0), held.ID, models.StateObsolete, "superseded")
	s.Require().NoError(err)

	firstSweep := t0.Add(25 * time.Hour)

	s.Run("dry run reports without acting", func() {
		report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: firstSweep, DryRun: true})
		s.Require().NoError(err)
		s.True(report.DryRun)
		s.Len(report.Archived, 2)
		s.Equal(models.StateObsolete, s.reload(old.ID).State)
		s.True(s.content.Exists("prd-v1.md"))
	})

	s.Run("archives expired obsolete documents", func() {
		report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: firstSweep})
		s.Require().NoError(err)
		s.Len(report.Archived, 2)
		s.Empty(report.Failures)
		s.Equal("standard", report.Archived[0].Policy)
		doc := s.reload(old.ID)
		s.Equal(models.StateArchived, doc.State)
		s.Equal(firstSweep, *doc.ArchivedAt)
		s.True(s.content.Exists("_archive/prd-v1.md"))
	})

	s.Run("immediate second sweep changes nothing", func() {
		report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: firstSweep})
		s.Require().NoError(err)
		s.False(report.Changed())
	})

	secondSweep := firstSweep.Add(48 * time.Hour)

	s.Run("deletes content past the delete window", func() {
		report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: secondSweep})
		s.Require().NoError(err)
		s.Require().Len(report.Deleted, 1)
		s.Equal(old.ID, report.Deleted[0].DocumentID)
		s.Require().Len(report.Skipped, 1)
		s.Equal(held.ID, report.Skipped[0].DocumentID)

		doc := s.reload(old.ID)
		s.True(doc.Tombstoned())
		s.Equal(models.StateArchived, doc.State)
		s.False(s.content.Exists("_archive/prd-v1.md"))
		s.True(s.content.Exists("_archive/legal.md"))

		_, err = s.service.ReadContent(context.Background(), doc)
		s.True(dErrors.HasCode(err, dErrors.CodeContentIO))
	})

	s.Run("tombstoned documents are not swept again", func() {
		report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: secondSweep})
		s.Require().NoError(err)
		s.False(report.Changed())
		s.Len(report.Skipped, 1)
	})

	s.Equal(2.0, testutil.ToFloat64(s.metrics.SweepActions.WithLabelValues(models.ActionArchive, "done")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SweepActions.WithLabelValues(models.ActionDeleteContent, "done")))
}

func (s *RegistrySuite) TestSweepCollectsFailures() {
	doc := s.register("prd-v1.md", "requirements-doc", models.StateActive, nil)
	s.register("prd-v2.md", "requirements-doc", models.StateActive, nil)
	s.content.FailMove = func(string, string) error { return errors.New("read-only filesystem") }

	report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: t0.Add(48 * time.Hour)})
	s.Require().NoError(err)
	s.Empty(report.Archived)
	s.Require().Len(report.Failures, 1)
	s.Equal(doc.ID, report.Failures[0].DocumentID)
	s.Contains(report.Failures[0].Error, "read-only filesystem")
	s.Equal(models.StateObsolete, s.reload(doc.ID).State)
}

func (s *RegistrySuite) TestSweepKeepsTombstoneWhenContentRemovalFails() {
	old := s.register("prd-v1.md", "requirements-doc", models.StateActive, nil)
	s.register("prd-v2.md", "requirements-doc", models.StateActive, nil)
	_, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: t0.Add(25 * time.Hour)})
	s.Require().NoError(err)
	deleteAt := t0.Add(73 * time.Hour)

	s.content.FailDelete = func(string) error { return errors.New("device busy") }
	report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: deleteAt})
	s.Require().NoError(err)
	s.Require().Len(report.Failures, 1)
	s.Contains(report.Failures[0].Error, "device busy")
	s.True(s.reload(old.ID).Tombstoned())
	s.True(s.content.Exists("_archive/prd-v1.md"))

	s.Run("next sweep purges the leftover content", func() {
		s.content.FailDelete = nil
		report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: deleteAt})
		s.Require().NoError(err)
		s.Require().Len(report.Deleted, 1)
		s.Equal(old.ID, report.Deleted[0].DocumentID)
		s.Empty(report.Failures)
		s.False(s.content.Exists("_archive/prd-v1.md"))
	})

	s.Run("and then has nothing left to do", func() {
		report, err := s.service.Sweep(context.Background(), models.SweepRequest{Now: deleteAt})
		s.Require().NoError(err)
		s.False(report.Changed())
	})
}

func (s *RegistrySuite) TestLineageReportsTombstonedEndpoints() {
	prd := s.register("prd-v1.md", "requirements-doc", models.StateActive, nil)
	epic := s.register("epic.md", "planning-epic", models.StateDraft, nil)
	_, err := s.service.Link(at(0), prd.ID, epic.ID, "derives")
	s.Require().NoError(err)
	s.register("prd-v2.md", "requirements-doc", models.StateActive, nil)

	_, err = s.service.Sweep(context.Background(), models.SweepRequest{Now: t0.Add(25 * time.Hour)})
	s.Require().NoError(err)
	_, err = s.service.Sweep(context.Background(), models.SweepRequest{Now: t0.Add(80 * time.Hour)})
	s.Require().NoError(err)

	lineage, err := s.service.Lineage(context.Background(), epic.ID, models.LineageRequest{Direction: models.DirectionAncestors})
	s.Require().NoError(err)
	s.Require().Len(lineage.Nodes, 1)
	s.Equal(prd.ID, lineage.Nodes[0].ID)
	s.True(lineage.Nodes[0].Tombstoned)
}

func (s *RegistrySuite) TestHealth() {
	s.content.Put("readme.md", "# Readme\n")
	h := s.service.Health(context.Background())
	s.Equal("ok", h.Status)
}

// =============================================================================
// Failure paths (gomock)
// =============================================================================
// Justification: commit failures and transient storage errors cannot be
// produced by the in-memory store, so these paths use mocks.

type ServiceMockSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	publisher *mocks.MockEventPublisher
	content   *content.Memory
	metrics   *metrics.Metrics
	service   *Service
}

func TestServiceMockSuite(t *testing.T) {
	suite.Run(t, new(ServiceMockSuite))
}

func (s *ServiceMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.publisher = mocks.NewMockEventPublisher(s.ctrl)
	s.content = content.NewMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	svc, err := New(s.store, s.content, Config{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithEventPublisher(s.publisher),
		WithRetryPolicy(fastTry),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceMockSuite) TearDownTest() {
	s.ctrl.Finish()
}

func draftDoc(p string) *models.Document {
	return &models.Document{
		ID:       uuid.New(),
		Path:     p,
		Type:     "generic",
		State:    models.StateDraft,
		Metadata: models.Metadata{},
	}
}

func (s *ServiceMockSuite) TestArchiveCommitFailureRestoresContent() {
	doc := draftDoc("docs/design.md")
	s.content.Put(doc.Path, "# Design\n")

	s.store.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			if err := fn(ctx); err != nil {
				return err
			}
			return errors.New("commit: disk I/O error")
		})
	s.store.EXPECT().LockByID(gomock.Any(), doc.ID).Return(doc, nil)
	s.store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().AppendAudit(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.Archive(context.Background(), doc.ID, "cleanup")
	s.True(dErrors.HasCode(err, dErrors.CodeStorageIO), err)
	s.True(s.content.Exists("docs/design.md"))
	s.False(s.content.Exists("_archive/docs/design.md"))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Compensations))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TransitionFailure.WithLabelValues("storage_io")))
}

func (s *ServiceMockSuite) TestTombstoneCommitFailureKeepsContent() {
	archivedAt := t0
	doc := draftDoc("docs/design.md")
	doc.State = models.StateArchived
	doc.ArchivedAt = &archivedAt
	doc.Metadata[models.MetaArchivePath] = "_archive/docs/design.md"
	s.content.Put("_archive/docs/design.md", "# Design\n")
	policy := models.RetentionPolicy{Name: "short", DeleteAfter: time.Hour, AllowDelete: true}

	s.store.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			if err := fn(ctx); err != nil {
				return err
			}
			return errors.New("commit: disk I/O error")
		})
	s.store.EXPECT().LockByID(gomock.Any(), doc.ID).Return(doc, nil)
	s.store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().AppendAudit(gomock.Any(), gomock.Any()).Return(nil)

	err := s.service.deleteContent(at(2*time.Hour), doc.ID, policy)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageIO), err)
	s.True(s.content.Exists("_archive/docs/design.md"))
}

func (s *ServiceMockSuite) TestPublishFailureDoesNotUndoTransition() {
	doc := draftDoc("docs/design.md")

	s.store.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) })
	s.store.EXPECT().LockByID(gomock.Any(), doc.ID).Return(doc, nil)
	s.store.EXPECT().LockScope(gomock.Any(), "generic", "").Return(nil)
	s.store.EXPECT().ListByState(gomock.Any(), models.StateActive, "generic").Return(nil, nil)
	s.store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil)
	s.store.EXPECT().AppendAudit(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, event models.LifecycleEvent) error {
			s.Equal(models.StateDraft, event.From)
			s.Equal(models.StateActive, event.To)
			s.Equal("system", event.Actor)
			return errors.New("broker unavailable")
		})

	updated, err := s.service.Transition(context.Background(), doc.ID, models.StateActive, "approved")
	s.Require().NoError(err)
	s.Equal(models.StateActive, updated.State)
}

func (s *ServiceMockSuite) TestActivationTakesScopeLockBeforeReadingPeers() {
	doc := draftDoc("docs/design.md")
	doc.Metadata["scope"] = "payments"

	s.store.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) })
	s.store.EXPECT().LockByID(gomock.Any(), doc.ID).Return(doc, nil)
	s.store.EXPECT().LockScope(gomock.Any(), "generic", "payments").Return(errors.New("canceling statement due to lock timeout"))

	_, err := s.service.Transition(context.Background(), doc.ID, models.StateActive, "approved")
	s.True(dErrors.HasCode(err, dErrors.CodeStorageIO), err)
	s.Equal(models.StateDraft, doc.State)
}

func (s *ServiceMockSuite) TestReadsRetryTransientErrors() {
	doc := draftDoc("docs/design.md")
	gomock.InOrder(
		s.store.EXPECT().FindByID(gomock.Any(), doc.ID).Return(nil, errors.New("database is locked")),
		s.store.EXPECT().FindByID(gomock.Any(), doc.ID).Return(doc, nil),
	)

	got, err := s.service.GetByID(context.Background(), doc.ID)
	s.Require().NoError(err)
	s.Equal(doc.ID, got.ID)
}

func (s *ServiceMockSuite) TestReadsGiveUpAfterAttempts() {
	id := uuid.New()
	s.store.EXPECT().FindByID(gomock.Any(), id).Return(nil, errors.New("database is locked")).Times(fastTry.Attempts)

	_, err := s.service.GetByID(context.Background(), id)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageIO), err)
}

func (s *ServiceMockSuite) TestHealthReportsDegradedStore() {
	s.store.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))

	h := s.service.Health(context.Background())
	s.Equal("degraded", h.Status)
	s.Contains(h.Store, "connection refused")
}
