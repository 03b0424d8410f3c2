package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"docket/internal/document/models"
)

// dialect isolates the SQL that differs between SQLite and Postgres. Queries
// are written with ? placeholders and rebound per dialect.
type dialect interface {
	name() string
	rebind(query string) string
	timeArg(t time.Time) any
	schema() []string
	forUpdate() string
	// scopeLock serializes activations within one (type, scope). Empty
	// when the transaction itself already serializes writers.
	scopeLock() string
	isUniqueViolation(err error) bool
	tagPredicate() string
	syncFTS(ctx context.Context, ex execer, doc *models.Document) error
	searchJoin() string
	searchPredicate() string
	// searchOrder may bind the search text once more.
	searchOrder() string
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }

func (sqliteDialect) rebind(query string) string { return query }

func (sqliteDialect) timeArg(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

func (sqliteDialect) schema() []string { return sqliteSchema }

// SQLite transactions are opened with _txlock=immediate, which already
// serializes writers.
func (sqliteDialect) forUpdate() string { return "" }

func (sqliteDialect) scopeLock() string { return "" }

func (sqliteDialect) isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (sqliteDialect) tagPredicate() string {
	return `EXISTS (SELECT 1 FROM json_each(d.metadata, '$.tags') WHERE lower(json_each.value) = lower(?))`
}

func (sqliteDialect) syncFTS(ctx context.Context, ex execer, doc *models.Document) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM documents_fts WHERE doc_id = ?`, doc.ID.String()); err != nil {
		return err
	}
	f := ftsFieldsOf(doc)
	_, err := ex.ExecContext(ctx,
		`INSERT INTO documents_fts (doc_id, path, title, excerpt, tags) VALUES (?, ?, ?, ?, ?)`,
		doc.ID.String(), f.path, f.title, f.excerpt, f.tags)
	return err
}

func (sqliteDialect) searchJoin() string {
	return ` JOIN documents_fts ON documents_fts.doc_id = d.id`
}

func (sqliteDialect) searchPredicate() string {
	return `documents_fts MATCH ?`
}

func (sqliteDialect) searchOrder() string {
	return `bm25(documents_fts), d.modified_at DESC, d.path`
}

// ftsQuery quotes every term so user input never reaches FTS5 syntax.
func ftsQuery(text string) string {
	terms := searchTerms(text)
	for i, term := range terms {
		terms[i] = `"` + strings.ReplaceAll(term, `"`, "") + `"`
	}
	return strings.Join(terms, " ")
}

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (postgresDialect) timeArg(t time.Time) any { return t.UTC() }

func (postgresDialect) schema() []string { return postgresSchema }

func (postgresDialect) forUpdate() string { return " FOR UPDATE" }

// Row locks cannot cover a document that is about to become active, so
// activations take a transaction-scoped advisory lock on the pair instead.
func (postgresDialect) scopeLock() string {
	return `SELECT pg_advisory_xact_lock(hashtext(?), hashtext(?))`
}

func (postgresDialect) isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (postgresDialect) tagPredicate() string {
	return `EXISTS (SELECT 1 FROM jsonb_array_elements_text(
		CASE WHEN jsonb_typeof(d.metadata->'tags') = 'array' THEN d.metadata->'tags' ELSE '[]'::jsonb END
	) AS tag(value) WHERE lower(tag.value) = lower(?))`
}

func (postgresDialect) syncFTS(ctx context.Context, ex execer, doc *models.Document) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO documents_fts (doc_id, body) VALUES ($1, to_tsvector('simple', $2))
		ON CONFLICT (doc_id) DO UPDATE SET body = EXCLUDED.body
	`, doc.ID.String(), ftsFieldsOf(doc).joined())
	return err
}

func (postgresDialect) searchJoin() string {
	return ` JOIN documents_fts f ON f.doc_id = d.id`
}

func (postgresDialect) searchPredicate() string {
	return `f.body @@ plainto_tsquery('simple', ?)`
}

func (postgresDialect) searchOrder() string {
	return `ts_rank(f.body, plainto_tsquery('simple', ?)) DESC, d.modified_at DESC, d.path`
}
