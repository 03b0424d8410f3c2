// Package store persists the document catalog: documents, relationships, the
// audit log and the full-text index. InMemoryStore serves tests and embedded
// use; SQLStore runs on SQLite (modernc.org/sqlite, FTS5) or Postgres (pgx,
// tsvector). Stores are pure I/O and report facts through sentinel errors.
package store

import (
	"fmt"
	"strings"
	"time"

	"docket/internal/document/models"
)

type ftsFields struct {
	path, title, excerpt, tags string
}

// ftsFieldsOf lists what the full-text index covers. Tombstoned documents
// stay findable by path and title but lose their excerpt.
func ftsFieldsOf(doc *models.Document) ftsFields {
	f := ftsFields{path: doc.Path, title: doc.Title, tags: strings.Join(doc.Metadata.Tags(), " ")}
	if !doc.Tombstoned() {
		f.excerpt = doc.Excerpt
	}
	return f
}

func (f ftsFields) joined() string {
	return strings.Join([]string{f.path, f.title, f.excerpt, f.tags}, " ")
}

// sqliteTimeLayout is fixed-width so TEXT columns sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// dbTime scans TIMESTAMPTZ (time.Time) and SQLite TEXT timestamps alike.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	if s == "" {
		t.Time, t.Valid = time.Time{}, false
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("parse time %q", s)
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	at := t.Time
	return &at
}
