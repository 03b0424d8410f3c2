package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docket/internal/document/models"
	"docket/pkg/platform/sentinel"
	txcontext "docket/pkg/platform/tx"
)

// SQLStore persists the catalog in SQLite or Postgres. Mutations join the
// transaction carried in ctx (see pkg/platform/tx) when there is one.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// NewSQLite constructs a store over a database opened with the modernc
// "sqlite" driver. Open it with _txlock=immediate so RunInTx takes the write
// lock up front.
func NewSQLite(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, d: sqliteDialect{}}
}

// NewPostgres constructs a store over a database opened with the pgx stdlib
// driver.
func NewPostgres(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, d: postgresDialect{}}
}

// Dialect names the backing database.
func (s *SQLStore) Dialect() string {
	return s.d.name()
}

// Migrate creates the schema when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s schema: %w", s.d.name(), err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) execer(ctx context.Context) execer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *SQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, fn)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const documentColumns = `d.id, d.path, d.type, d.state, d.content_hash, d.title, d.excerpt,
	d.created_at, d.modified_at, d.state_changed_at, d.archived_at,
	d.owner, d.reviewer, d.review_due_at, d.retention, d.metadata`

func (s *SQLStore) Create(ctx context.Context, doc *models.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := s.d.rebind(`
		INSERT INTO documents (id, path, type, state, content_hash, title, excerpt,
			created_at, modified_at, state_changed_at, archived_at,
			owner, reviewer, review_due_at, retention, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	ex := s.execer(ctx)
	_, err = ex.ExecContext(ctx, query,
		doc.ID.String(), doc.Path, doc.Type, string(doc.State), doc.ContentHash, doc.Title, doc.Excerpt,
		s.d.timeArg(doc.CreatedAt), s.d.timeArg(doc.ModifiedAt), s.d.timeArg(doc.StateChangedAt), s.optTime(doc.ArchivedAt),
		doc.Owner, doc.Reviewer, s.optTime(doc.ReviewDueAt), doc.Retention, string(meta),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert document: %w", err)
	}
	if err := s.d.syncFTS(ctx, ex, doc); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, doc *models.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := s.d.rebind(`
		UPDATE documents SET
			type = ?, state = ?, content_hash = ?, title = ?, excerpt = ?,
			modified_at = ?, state_changed_at = ?, archived_at = ?,
			owner = ?, reviewer = ?, review_due_at = ?, retention = ?, metadata = ?
		WHERE id = ? AND path = ?
	`)
	ex := s.execer(ctx)
	res, err := ex.ExecContext(ctx, query,
		doc.Type, string(doc.State), doc.ContentHash, doc.Title, doc.Excerpt,
		s.d.timeArg(doc.ModifiedAt), s.d.timeArg(doc.StateChangedAt), s.optTime(doc.ArchivedAt),
		doc.Owner, doc.Reviewer, s.optTime(doc.ReviewDueAt), doc.Retention, string(meta),
		doc.ID.String(), doc.Path,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	if err := s.d.syncFTS(ctx, ex, doc); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	return nil
}

func (s *SQLStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.findOne(ctx, `d.id = ?`, "", id.String())
}

// LockByID reads the row for update. On Postgres this takes a row lock held
// until the ambient transaction ends.
func (s *SQLStore) LockByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.findOne(ctx, `d.id = ?`, s.d.forUpdate(), id.String())
}

// LockScope blocks until no other transaction is activating a document of
// the same type and scope. The lock is released when the ambient transaction
// ends, so it must be called inside RunInTx.
func (s *SQLStore) LockScope(ctx context.Context, docType, scope string) error {
	stmt := s.d.scopeLock()
	if stmt == "" {
		return nil
	}
	if _, ok := txcontext.From(ctx); !ok {
		return fmt.Errorf("lock scope %s/%s: no transaction in context", docType, scope)
	}
	if _, err := s.execer(ctx).ExecContext(ctx, s.d.rebind(stmt), docType, scope); err != nil {
		return fmt.Errorf("lock scope %s/%s: %w", docType, scope, err)
	}
	return nil
}

func (s *SQLStore) FindByPath(ctx context.Context, path string) (*models.Document, error) {
	return s.findOne(ctx, `d.path = ?`, "", path)
}

func (s *SQLStore) findOne(ctx context.Context, where, suffix string, arg any) (*models.Document, error) {
	query := s.d.rebind(`SELECT ` + documentColumns + ` FROM documents d WHERE ` + where + suffix)
	doc, err := scanDocument(s.execer(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (s *SQLStore) ListByState(ctx context.Context, state models.State, docType string) ([]*models.Document, error) {
	where := []string{`d.state = ?`}
	args := []any{string(state)}
	if docType != "" {
		where = append(where, `d.type = ?`)
		args = append(args, docType)
	}
	query := s.d.rebind(`SELECT ` + documentColumns + ` FROM documents d WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY d.path`)
	return s.queryDocuments(ctx, query, args...)
}

func (s *SQLStore) Query(ctx context.Context, f models.Filter) (*models.Page, error) {
	var (
		where []string
		args  []any
		join  string
	)
	if len(f.Types) > 0 {
		where = append(where, `d.type IN (`+placeholders(len(f.Types))+`)`)
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if len(f.States) > 0 {
		where = append(where, `d.state IN (`+placeholders(len(f.States))+`)`)
		for _, st := range f.States {
			args = append(args, string(st))
		}
	}
	if f.Owner != "" {
		where = append(where, `lower(d.owner) = lower(?)`)
		args = append(args, f.Owner)
	}
	if f.Tag != "" {
		where = append(where, s.d.tagPredicate())
		args = append(args, f.Tag)
	}
	if f.ModifiedAfter != nil {
		where = append(where, `d.modified_at >= ?`)
		args = append(args, s.d.timeArg(*f.ModifiedAfter))
	}
	if f.ModifiedBefore != nil {
		where = append(where, `d.modified_at <= ?`)
		args = append(args, s.d.timeArg(*f.ModifiedBefore))
	}

	order := `d.modified_at DESC, d.path`
	var orderArgs []any
	if len(searchTerms(f.Text)) > 0 {
		search := f.Text
		if s.d.name() == "sqlite" {
			search = ftsQuery(f.Text)
		}
		join = s.d.searchJoin()
		where = append(where, s.d.searchPredicate())
		args = append(args, search)
		order = s.d.searchOrder()
		if strings.Contains(order, "?") {
			orderArgs = append(orderArgs, search)
		}
	}

	clause := ""
	if len(where) > 0 {
		clause = ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	countQuery := s.d.rebind(`SELECT COUNT(*) FROM documents d` + join + clause)
	if err := s.execer(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	listArgs := append(append(append([]any{}, args...), orderArgs...), f.Limit, f.Offset)
	listQuery := s.d.rebind(`SELECT ` + documentColumns + ` FROM documents d` + join + clause +
		` ORDER BY ` + order + ` LIMIT ? OFFSET ?`)
	docs, err := s.queryDocuments(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	return &models.Page{Documents: docs, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *SQLStore) queryDocuments(ctx context.Context, query string, args ...any) ([]*models.Document, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *SQLStore) AddRelationship(ctx context.Context, rel models.Relationship) (bool, error) {
	query := s.d.rebind(`
		INSERT INTO relationships (from_id, to_id, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (from_id, to_id, kind) DO NOTHING
	`)
	res, err := s.execer(ctx).ExecContext(ctx, query,
		rel.FromID.String(), rel.ToID.String(), rel.Kind, s.d.timeArg(rel.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert relationship: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert relationship rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *SQLStore) Outgoing(ctx context.Context, id uuid.UUID) ([]models.Relationship, error) {
	return s.relationships(ctx, `from_id = ?`, id)
}

func (s *SQLStore) Incoming(ctx context.Context, id uuid.UUID) ([]models.Relationship, error) {
	return s.relationships(ctx, `to_id = ?`, id)
}

func (s *SQLStore) relationships(ctx context.Context, where string, id uuid.UUID) ([]models.Relationship, error) {
	query := s.d.rebind(`SELECT from_id, to_id, kind, created_at FROM relationships WHERE ` + where +
		` ORDER BY created_at, from_id, to_id, kind`)
	rows, err := s.execer(ctx).QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()

	var rels []models.Relationship
	for rows.Next() {
		var (
			rel       models.Relationship
			createdAt dbTime
		)
		if err := rows.Scan(&rel.FromID, &rel.ToID, &rel.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rel.CreatedAt = createdAt.Time
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationships: %w", err)
	}
	return rels, nil
}

func (s *SQLStore) AppendAudit(ctx context.Context, entries ...models.AuditEntry) error {
	query := s.d.rebind(`
		INSERT INTO audit_log (id, entity_type, entity_id, field, old_value, new_value, actor, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	ex := s.execer(ctx)
	for _, entry := range entries {
		_, err := ex.ExecContext(ctx, query,
			entry.ID.String(), entry.EntityType, entry.EntityID, entry.Field,
			entry.OldValue, entry.NewValue, entry.Actor, s.d.timeArg(entry.At))
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) AuditTrail(ctx context.Context, entityID string) ([]models.AuditEntry, error) {
	query := s.d.rebind(`
		SELECT id, entity_type, entity_id, field, old_value, new_value, actor, at
		FROM audit_log WHERE entity_id = ? ORDER BY seq
	`)
	rows, err := s.execer(ctx).QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			entry models.AuditEntry
			at    dbTime
		)
		if err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Field,
			&entry.OldValue, &entry.NewValue, &entry.Actor, &at); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.At = at.Time
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}

func (s *SQLStore) optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return s.d.timeArg(*t)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc                                   models.Document
		state                                 string
		meta                                  []byte
		createdAt, modifiedAt, stateChangedAt dbTime
		archivedAt, reviewDueAt               dbTime
	)
	if err := row.Scan(
		&doc.ID, &doc.Path, &doc.Type, &state, &doc.ContentHash, &doc.Title, &doc.Excerpt,
		&createdAt, &modifiedAt, &stateChangedAt, &archivedAt,
		&doc.Owner, &doc.Reviewer, &reviewDueAt, &doc.Retention, &meta,
	); err != nil {
		return nil, err
	}
	doc.State = models.State(state)
	doc.CreatedAt = createdAt.Time
	doc.ModifiedAt = modifiedAt.Time
	doc.StateChangedAt = stateChangedAt.Time
	doc.ArchivedAt = archivedAt.ptr()
	doc.ReviewDueAt = reviewDueAt.ptr()
	doc.Metadata = models.Metadata{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &doc, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
