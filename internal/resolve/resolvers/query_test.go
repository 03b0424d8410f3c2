package resolvers

//go:generate mockgen -source=query.go -destination=mocks/query-mocks.go -package=mocks Catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"docket/internal/document/models"
	"docket/internal/resolve"
	"docket/internal/resolve/resolvers/mocks"
	dErrors "docket/pkg/domain-errors"
)

func owners() []map[string]any {
	return []map[string]any{
		{"team": "core", "lead": "ana", "size": 4},
		{"team": "payments", "lead": "bo", "size": 7},
		{"team": "growth", "lead": "cy|d", "size": 2},
	}
}

func queryEngine(t *testing.T, q *Query) *resolve.Engine {
	t.Helper()
	reg := resolve.NewRegistry()
	require.NoError(t, reg.Register("query", q))
	return resolve.NewEngine(reg)
}

func TestQueryStaticTable(t *testing.T) {
	q := NewQuery(map[string]Source{"owners": NewStatic(owners())}, 0)

	out, err := q.Resolve(context.Background(), "owners", nil)
	require.NoError(t, err)
	assert.Equal(t, "| lead | size | team |\n"+
		"| --- | --- | --- |\n"+
		"| ana | 4 | core |\n"+
		"| bo | 7 | payments |\n"+
		`| cy\|d | 2 | growth |`+"\n", out)
}

func TestQueryPredicateWithVars(t *testing.T) {
	q := NewQuery(map[string]Source{"owners": NewStatic(owners())}, 0)
	engine := queryEngine(t, q)

	res, err := engine.Resolve(context.Background(),
		"@query:{owners | team == vars.team || size > 6 | fields team,lead}",
		map[string]string{"team": "core"}, resolve.Options{})
	require.NoError(t, err)
	assert.Equal(t, "| team | lead |\n| --- | --- |\n| core | ana |\n| payments | bo |\n", res.Text)
}

func TestQueryLimitIsClamped(t *testing.T) {
	q := NewQuery(map[string]Source{"owners": NewStatic(owners())}, 2)

	out, err := q.Resolve(context.Background(), "owners | limit 10 | fields team", nil)
	require.NoError(t, err)
	assert.Equal(t, "| team |\n| --- |\n| core |\n| payments |\n", out)

	out, err = q.Resolve(context.Background(), "owners | limit 1 | fields team", nil)
	require.NoError(t, err)
	assert.Equal(t, "| team |\n| --- |\n| core |\n", out)
}

func TestQueryNoRows(t *testing.T) {
	q := NewQuery(map[string]Source{"owners": NewStatic(owners())}, 0)

	out, err := q.Resolve(context.Background(), `owners | team == "none"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "_No results._\n", out)
}

func TestQueryErrors(t *testing.T) {
	q := NewQuery(map[string]Source{"owners": NewStatic(owners())}, 0)
	ctx := context.Background()

	cases := map[string]dErrors.Code{
		"":                             dErrors.CodeValidation,
		"teams":                        dErrors.CodeNotFound,
		"owners | limit none":          dErrors.CodeValidation,
		"owners | size > 1 | size < 9": dErrors.CodeValidation,
		"owners | size >":              dErrors.CodeValidation,
		"owners | lead":                dErrors.CodeValidation,
	}
	for value, code := range cases {
		t.Run(value, func(t *testing.T) {
			_, err := q.Resolve(ctx, value, nil)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, code), "got %v", err)
		})
	}
}

func TestSplitPipes(t *testing.T) {
	assert.Equal(t, []string{"documents ", ` a || b `, " limit 2"}, splitPipes("documents | a || b | limit 2"))
	assert.Equal(t, []string{"documents"}, splitPipes("documents"))
}

func TestDocumentsSourcePagesThroughCatalog(t *testing.T) {
	ctrl := gomock.NewController(t)
	catalog := mocks.NewMockCatalog(ctrl)
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	page := func(offset int, docs ...*models.Document) *models.Page {
		return &models.Page{Documents: docs, Total: models.MaxQueryLimit + 1, Limit: models.MaxQueryLimit, Offset: offset}
	}
	first := make([]*models.Document, models.MaxQueryLimit)
	for i := range first {
		first[i] = &models.Document{ID: uuid.New(), Path: "docs/draft.md", Type: "generic", State: models.StateDraft, ModifiedAt: modified}
	}
	epic := &models.Document{
		ID: uuid.New(), Path: "plan/epic.md", Type: "planning-epic", State: models.StateActive,
		Title: "Wallet", Owner: "ana", ModifiedAt: modified,
		Metadata: models.Metadata{"tags": []any{"q2"}},
	}

	gomock.InOrder(
		catalog.EXPECT().Query(gomock.Any(), models.Filter{Limit: models.MaxQueryLimit}).Return(page(0, first...), nil),
		catalog.EXPECT().Query(gomock.Any(), models.Filter{Limit: models.MaxQueryLimit, Offset: models.MaxQueryLimit}).
			Return(page(models.MaxQueryLimit, epic), nil),
	)

	q := NewQuery(map[string]Source{"documents": NewDocuments(catalog)}, 0)
	out, err := q.Resolve(context.Background(), `documents | state == "active" && "q2" in tags`, nil)
	require.NoError(t, err)
	assert.Equal(t, "| path | type | state | title | owner | modified_at |\n"+
		"| --- | --- | --- | --- | --- | --- |\n"+
		"| plan/epic.md | planning-epic | active | Wallet | ana | 2026-03-01T12:00:00Z |\n", out)
}

func TestSourcesRejectsShadowedDocuments(t *testing.T) {
	_, err := Sources(nil, map[string][]map[string]any{"documents": nil})
	assert.Error(t, err)

	sources, err := Sources(nil, map[string][]map[string]any{"owners": owners()})
	require.NoError(t, err)
	assert.Contains(t, sources, "documents")
	assert.Contains(t, sources, "owners")
}
