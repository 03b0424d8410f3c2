package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"docket/internal/document/handler/mocks"
	"docket/internal/document/models"
	"docket/internal/platform/metrics"
	dErrors "docket/pkg/domain-errors"
	"docket/pkg/requestcontext"
	"docket/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler-mocks.go -package=mocks Service
type DocumentHandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *mocks.MockService
}

func TestDocumentHandlerSuite(t *testing.T) {
	suite.Run(t, new(DocumentHandlerSuite))
}

func (s *DocumentHandlerSuite) SetupTest() {
	s.router, s.service = newTestHandler(s.T())
}

func newTestHandler(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := New(mockService, logger, metrics.New(prometheus.NewRegistry()), time.Second)
	r := chi.NewRouter()
	handler.Register(r)
	return r, mockService
}

var fixedDoc = &models.Document{
	ID:          uuid.MustParse("6c1f2a9e-0d7b-4c3e-9a51-2f4b8e1d7c00"),
	Path:        "docs/prd.md",
	Type:        "requirements-doc",
	State:       models.StateDraft,
	ContentHash: "abc123",
}

func (s *DocumentHandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, req)
}

func (s *DocumentHandlerSuite) TestRegister() {
	s.Run("created with location", func() {
		s.service.EXPECT().Register(gomock.Any(), models.RegisterRequest{
			Path: "docs/prd.md",
			Type: "requirements-doc",
		}).DoAndReturn(func(ctx context.Context, _ models.RegisterRequest) (*models.Document, error) {
			s.Equal("alice", requestcontext.Actor(ctx))
			s.NotEmpty(requestcontext.RequestID(ctx))
			return fixedDoc, nil
		})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents", map[string]string{
			"path": "docs/prd.md",
			"type": "requirements-doc",
		})
		req.Header.Set("X-Actor", "alice")
		rr := s.do(req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		s.Equal("/documents/"+fixedDoc.ID.String(), rr.Header().Get("Location"))
		got := testutil.UnmarshalResponse[models.Document](s.T(), rr)
		s.Equal(fixedDoc.ID, got.ID)
	})

	s.Run("duplicate maps to 409", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAlreadyRegistered, "docs/prd.md is already registered"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents", map[string]string{"path": "docs/prd.md", "type": "generic"}))
		testutil.AssertError(s.T(), rr, dErrors.CodeAlreadyRegistered)
	})

	s.Run("malformed body", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents", "{"))
		testutil.AssertError(s.T(), rr, dErrors.CodeValidation)
	})

	s.Run("non json body", func() {
		req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("path=x"))
		req.Header.Set("Content-Type", "text/plain")
		testutil.AssertStatus(s.T(), s.do(req), http.StatusUnsupportedMediaType)
	})
}

func (s *DocumentHandlerSuite) TestGetByPathRef() {
	s.service.EXPECT().Get(gomock.Any(), "docs/prd.md").Return(fixedDoc, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/documents/docs%2Fprd.md"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "path", "docs/prd.md")
}

func (s *DocumentHandlerSuite) TestGetNotFound() {
	s.service.EXPECT().Get(gomock.Any(), "missing.md").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "document not found"))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/documents/missing.md"))
	testutil.AssertError(s.T(), rr, dErrors.CodeNotFound)
}

func (s *DocumentHandlerSuite) TestContent() {
	s.service.EXPECT().GetByID(gomock.Any(), fixedDoc.ID).Return(fixedDoc, nil)
	s.service.EXPECT().ReadContent(gomock.Any(), fixedDoc).Return([]byte("# PRD\n"), nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/documents/"+fixedDoc.ID.String()+"/content"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal("# PRD\n", rr.Body.String())
	s.Equal(`"abc123"`, rr.Header().Get("ETag"))
}

func (s *DocumentHandlerSuite) TestQueryParsesFilter() {
	after := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.service.EXPECT().Query(gomock.Any(), models.Filter{
		Types:         []string{"work-item", "planning-epic"},
		States:        []models.State{models.StateActive, models.StateDraft},
		Tag:           "payments",
		Text:          "checkout",
		ModifiedAfter: &after,
		Limit:         10,
	}).Return(&models.Page{Documents: []*models.Document{fixedDoc}, Total: 1, Limit: 10}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet,
		"/documents?type=work-item,planning-epic&state=active&state=draft&tag=payments&q=checkout&modified_after=2026-03-01T00:00:00Z&limit=10"))

	testutil.AssertStatusOK(s.T(), rr)
	page := testutil.UnmarshalResponse[models.Page](s.T(), rr)
	s.Equal(1, page.Total)
}

func (s *DocumentHandlerSuite) TestQueryRejectsBadParameters() {
	for _, query := range []string{"state=published", "limit=ten", "modified_before=yesterday"} {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/documents?"+query))
		testutil.AssertError(s.T(), rr, dErrors.CodeValidation)
	}
}

func (s *DocumentHandlerSuite) TestTransition() {
	s.Run("ok", func() {
		archived := *fixedDoc
		archived.State = models.StateArchived
		s.service.EXPECT().Transition(gomock.Any(), fixedDoc.ID, models.StateArchived, "superseded").Return(&archived, nil)

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents/"+fixedDoc.ID.String()+"/transitions",
			models.TransitionRequest{State: models.StateArchived, Reason: "superseded"}))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "state", "archived")
	})

	s.Run("illegal transition", func() {
		s.service.EXPECT().Transition(gomock.Any(), fixedDoc.ID, models.StateDraft, "").
			Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot move from archived to draft"))

		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents/"+fixedDoc.ID.String()+"/transitions",
			models.TransitionRequest{State: models.StateDraft}))
		testutil.AssertError(s.T(), rr, dErrors.CodeInvalidTransition)
	})

	s.Run("bad id", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents/not-a-uuid/transitions",
			models.TransitionRequest{State: models.StateActive}))
		testutil.AssertError(s.T(), rr, dErrors.CodeValidation)
	})
}

func (s *DocumentHandlerSuite) TestUpdateMetadata() {
	s.service.EXPECT().UpdateMetadata(gomock.Any(), fixedDoc.ID, map[string]any{"owner": "bob", "tags": nil}).Return(fixedDoc, nil)

	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/documents/"+fixedDoc.ID.String()+"/metadata",
		`{"owner":"bob","tags":null}`))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *DocumentHandlerSuite) TestLinkAndLineage() {
	to := uuid.New()
	s.service.EXPECT().Link(gomock.Any(), fixedDoc.ID, to, "derives").
		Return(&models.Relationship{FromID: fixedDoc.ID, ToID: to, Kind: "derives"}, nil)
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/documents/"+fixedDoc.ID.String()+"/links",
		models.LinkRequest{To: to, Kind: "derives"}))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)

	s.service.EXPECT().Lineage(gomock.Any(), fixedDoc.ID, models.LineageRequest{Direction: models.DirectionDescendants, MaxDepth: 2}).
		Return(&models.Lineage{Root: fixedDoc}, nil)
	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/documents/"+fixedDoc.ID.String()+"/lineage?direction=descendants&depth=2"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONHasKey(s.T(), rr, "root")
}

func (s *DocumentHandlerSuite) TestAuditTrail() {
	s.service.EXPECT().AuditTrail(gomock.Any(), fixedDoc.ID).Return([]models.AuditEntry{{
		EntityType: models.EntityDocument,
		EntityID:   fixedDoc.ID.String(),
		Field:      models.FieldState,
		OldValue:   "draft",
		NewValue:   "active",
		Actor:      "alice",
	}}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/documents/"+fixedDoc.ID.String()+"/audit"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Contains(rr.Body.String(), `"new_value":"active"`)
}

func (s *DocumentHandlerSuite) TestSweep() {
	s.service.EXPECT().Sweep(gomock.Any(), models.SweepRequest{DryRun: true}).
		Return(&models.SweepReport{DryRun: true}, nil)
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/sweep", models.SweepRequest{DryRun: true}))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "dry_run", true)

	s.service.EXPECT().Sweep(gomock.Any(), models.SweepRequest{}).Return(&models.SweepReport{}, nil)
	rr = s.do(testutil.NewRequest(s.T(), http.MethodPost, "/sweep"))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *DocumentHandlerSuite) TestStorageFailureHidesNothingButInternal() {
	s.service.EXPECT().SyncContent(gomock.Any(), fixedDoc.ID).
		Return(nil, errors.New("pq: connection reset"))

	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/documents/"+fixedDoc.ID.String()+"/sync"))
	testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
	s.NotContains(rr.Body.String(), "connection reset")
}

func (s *DocumentHandlerSuite) TestHealth() {
	s.service.EXPECT().Health(gomock.Any()).Return(&models.Health{Status: "ok", Store: "ok", Content: "ok"})
	testutil.AssertStatusOK(s.T(), s.do(testutil.NewRequest(s.T(), http.MethodGet, "/health")))

	s.service.EXPECT().Health(gomock.Any()).Return(&models.Health{Status: "degraded", Store: "unreachable", Content: "ok"})
	testutil.AssertStatus(s.T(), s.do(testutil.NewRequest(s.T(), http.MethodGet, "/health")), http.StatusServiceUnavailable)
}
