package resolvers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"docket/internal/document/models"
	"docket/internal/resolve"
	dErrors "docket/pkg/domain-errors"
)

// DefaultRowCap bounds every @query: result.
const DefaultRowCap = 50

// maxScan stops a filtered scan that keeps missing.
const maxScan = 2000

// Row is one record of a query source.
type Row map[string]any

// Source is a read-only row set. Scan calls yield until it returns false.
type Source interface {
	Columns() []string
	Scan(ctx context.Context, yield func(Row) bool) error
}

// Query resolves @query:<source> and
// @query:{<source> | <predicate> | limit N | fields a,b}.
type Query struct {
	sources map[string]Source
	rowCap  int

	mu       sync.Mutex
	programs map[string]*vm.Program
}

var _ resolve.Resolver = (*Query)(nil)

// NewQuery builds the resolver; rowCap below one means DefaultRowCap.
func NewQuery(sources map[string]Source, rowCap int) *Query {
	if rowCap < 1 {
		rowCap = DefaultRowCap
	}
	return &Query{sources: sources, rowCap: rowCap, programs: make(map[string]*vm.Program)}
}

type queryPlan struct {
	source    string
	predicate string
	limit     int
	fields    []string
}

func (q *Query) Resolve(ctx context.Context, value string, rc *resolve.Context) (string, error) {
	plan, err := parseQuery(value)
	if err != nil {
		return "", err
	}
	src, ok := q.sources[plan.source]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "unknown query source %q", plan.source)
	}
	limit := plan.limit
	if limit <= 0 || limit > q.rowCap {
		limit = q.rowCap
	}
	columns := plan.fields
	if len(columns) == 0 {
		columns = src.Columns()
	}

	var program *vm.Program
	if plan.predicate != "" {
		if program, err = q.compile(plan.predicate); err != nil {
			return "", err
		}
	}
	vars := map[string]string{}
	if rc != nil {
		vars = rc.Vars()
	}

	var (
		rows    []Row
		scanned int
		evalErr error
	)
	err = src.Scan(ctx, func(row Row) bool {
		scanned++
		if program != nil {
			keep, err := matches(program, row, vars)
			if err != nil {
				evalErr = err
				return false
			}
			if !keep {
				return scanned < maxScan
			}
		}
		rows = append(rows, row)
		return len(rows) < limit && scanned < maxScan
	})
	if err != nil {
		return "", err
	}
	if evalErr != nil {
		return "", evalErr
	}
	return RenderTable(columns, rows), nil
}

func (q *Query) compile(predicate string) (*vm.Program, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p, ok := q.programs[predicate]; ok {
		return p, nil
	}
	p, err := exprlang.Compile(predicate,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid query predicate")
	}
	if len(q.programs) >= 256 {
		clear(q.programs)
	}
	q.programs[predicate] = p
	return p, nil
}

func matches(program *vm.Program, row Row, vars map[string]string) (bool, error) {
	env := make(map[string]any, len(row)+1)
	for k, v := range row {
		env[k] = v
	}
	env["vars"] = vars
	out, err := exprlang.Run(program, env)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeValidation, "evaluate query predicate")
	}
	keep, ok := out.(bool)
	if !ok {
		return false, dErrors.Newf(dErrors.CodeValidation, "query predicate returned %T, want bool", out)
	}
	return keep, nil
}

func parseQuery(value string) (queryPlan, error) {
	parts := splitPipes(value)
	plan := queryPlan{source: strings.TrimSpace(parts[0])}
	if plan.source == "" {
		return plan, dErrors.New(dErrors.CodeValidation, "@query: needs a source")
	}
	for _, raw := range parts[1:] {
		part := strings.TrimSpace(raw)
		switch {
		case part == "":
			continue
		case strings.HasPrefix(part, "limit "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(part, "limit ")))
			if err != nil || n < 1 {
				return plan, dErrors.Newf(dErrors.CodeValidation, "invalid query limit %q", part)
			}
			plan.limit = n
		case strings.HasPrefix(part, "fields "):
			for _, f := range strings.Split(strings.TrimPrefix(part, "fields "), ",") {
				if f = strings.TrimSpace(f); f != "" {
					plan.fields = append(plan.fields, f)
				}
			}
		default:
			if plan.predicate != "" {
				return plan, dErrors.New(dErrors.CodeValidation, "@query: accepts one predicate")
			}
			plan.predicate = part
		}
	}
	return plan, nil
}

// splitPipes splits on single '|' so predicates may use '||'.
func splitPipes(s string) []string {
	var (
		parts []string
		start int
	)
	for i := 0; i < len(s); i++ {
		if s[i] != '|' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '|' {
			i++
			continue
		}
		parts = append(parts, s[start:i])
		start = i + 1
	}
	return append(parts, s[start:])
}

// RenderTable formats rows as a markdown table over columns.
func RenderTable(columns []string, rows []Row) string {
	if len(rows) == 0 {
		return "_No results._\n"
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = cell(row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []string:
		return cellEscaper.Replace(strings.Join(val, ", "))
	default:
		return cellEscaper.Replace(models.FormatValue(val))
	}
}

// Catalog is the registry surface the documents source pages through.
type Catalog interface {
	Query(ctx context.Context, f models.Filter) (*models.Page, error)
}

// Documents exposes the registry as the "documents" query source.
type Documents struct {
	catalog Catalog
}

func NewDocuments(catalog Catalog) *Documents {
	return &Documents{catalog: catalog}
}

func (d *Documents) Columns() []string {
	return []string{"path", "type", "state", "title", "owner", "modified_at"}
}

func (d *Documents) Scan(ctx context.Context, yield func(Row) bool) error {
	f := models.Filter{Limit: models.MaxQueryLimit}
	for {
		page, err := d.catalog.Query(ctx, f)
		if err != nil {
			return err
		}
		for _, doc := range page.Documents {
			if !yield(documentRow(doc)) {
				return nil
			}
		}
		f.Offset += len(page.Documents)
		if len(page.Documents) == 0 || f.Offset >= page.Total {
			return nil
		}
	}
}

func documentRow(doc *models.Document) Row {
	tags := doc.Metadata.Tags()
	if tags == nil {
		tags = []string{}
	}
	meta := map[string]any{}
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	return Row{
		"id":           doc.ID.String(),
		"path":         doc.Path,
		"type":         doc.Type,
		"state":        string(doc.State),
		"title":        doc.Title,
		"excerpt":      doc.Excerpt,
		"owner":        doc.Owner,
		"reviewer":     doc.Reviewer,
		"retention":    doc.Retention,
		"content_hash": doc.ContentHash,
		"tags":         tags,
		"metadata":     meta,
		"created_at":   doc.CreatedAt.UTC().Format(time.RFC3339),
		"modified_at":  doc.ModifiedAt.UTC().Format(time.RFC3339),
	}
}

// Static is a fixed, configured row set.
type Static struct {
	columns []string
	rows    []Row
}

// NewStatic builds a table; with no columns given they are the sorted union
// of the row keys.
func NewStatic(rows []map[string]any, columns ...string) *Static {
	t := &Static{columns: columns}
	seen := map[string]bool{}
	for _, r := range rows {
		row := make(Row, len(r))
		for k, v := range r {
			row[k] = v
			if !seen[k] {
				seen[k] = true
				if len(columns) == 0 {
					t.columns = append(t.columns, k)
				}
			}
		}
		t.rows = append(t.rows, row)
	}
	if len(columns) == 0 {
		sort.Strings(t.columns)
	}
	return t
}

func (s *Static) Columns() []string { return s.columns }

func (s *Static) Scan(ctx context.Context, yield func(Row) bool) error {
	for _, row := range s.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !yield(row) {
			return nil
		}
	}
	return nil
}

// Sources assembles the documents source plus configured static tables.
func Sources(catalog Catalog, tables map[string][]map[string]any) (map[string]Source, error) {
	out := map[string]Source{"documents": NewDocuments(catalog)}
	for name, rows := range tables {
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("query source %q already defined", name)
		}
		out[name] = NewStatic(rows)
	}
	return out, nil
}
