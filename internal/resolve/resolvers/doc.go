// Package resolvers holds the built-in reference kinds: @doc:, @checklist:,
// @query: and @context:.
package resolvers

import (
	"context"
	"strings"
	"time"

	"docket/internal/document/models"
	"docket/internal/markdown"
	"docket/internal/resolve"
	dErrors "docket/pkg/domain-errors"
)

// DocumentSource is the slice of the registry the doc resolver reads.
type DocumentSource interface {
	Get(ctx context.Context, ref string) (*models.Document, error)
	ReadContent(ctx context.Context, doc *models.Document) ([]byte, error)
}

// Doc resolves @doc:<ref>, @doc:<ref>#<heading> and @doc:<ref>:<field>,
// where ref is a document path or id.
type Doc struct {
	docs DocumentSource
}

func NewDoc(docs DocumentSource) *Doc {
	return &Doc{docs: docs}
}

var _ resolve.Resolver = (*Doc)(nil)

var docFields = map[string]func(*models.Document) string{
	"id":           func(d *models.Document) string { return d.ID.String() },
	"path":         func(d *models.Document) string { return d.Path },
	"type":         func(d *models.Document) string { return d.Type },
	"state":        func(d *models.Document) string { return string(d.State) },
	"title":        func(d *models.Document) string { return d.Title },
	"excerpt":      func(d *models.Document) string { return d.Excerpt },
	"owner":        func(d *models.Document) string { return d.Owner },
	"reviewer":     func(d *models.Document) string { return d.Reviewer },
	"retention":    func(d *models.Document) string { return d.Retention },
	"content_hash": func(d *models.Document) string { return d.ContentHash },
	"created_at":   func(d *models.Document) string { return d.CreatedAt.Format(time.RFC3339) },
	"modified_at":  func(d *models.Document) string { return d.ModifiedAt.Format(time.RFC3339) },
	"review_due_at": func(d *models.Document) string {
		if d.ReviewDueAt == nil {
			return ""
		}
		return d.ReviewDueAt.Format(time.RFC3339)
	},
}

type docSelector struct {
	ref     string
	section string
	field   string
}

// parseDocValue splits a selector off the reference. A trailing ":name" is
// a field only when name is a known field, so paths may contain colons.
func parseDocValue(value string) docSelector {
	if ref, section, ok := strings.Cut(value, "#"); ok {
		return docSelector{ref: ref, section: section}
	}
	if i := strings.LastIndex(value, ":"); i > 0 {
		field := value[i+1:]
		if isDocField(field) {
			return docSelector{ref: value[:i], field: field}
		}
	}
	return docSelector{ref: value}
}

func isDocField(field string) bool {
	if _, ok := docFields[field]; ok {
		return true
	}
	for _, prefix := range []string{"metadata.", "frontmatter."} {
		if strings.HasPrefix(field, prefix) && len(field) > len(prefix) {
			return true
		}
	}
	return false
}

func (d *Doc) Resolve(ctx context.Context, value string, _ *resolve.Context) (string, error) {
	sel := parseDocValue(strings.TrimSpace(value))
	if sel.ref == "" {
		return "", dErrors.New(dErrors.CodeValidation, "@doc: needs a path or id")
	}
	doc, err := d.docs.Get(ctx, sel.ref)
	if err != nil {
		return "", err
	}

	if get, ok := docFields[sel.field]; ok {
		return get(doc), nil
	}
	if key, ok := strings.CutPrefix(sel.field, "metadata."); ok {
		v, present := doc.Metadata[key]
		if !present {
			return "", dErrors.Newf(dErrors.CodeNotFound, "%s has no metadata key %q", doc.Path, key)
		}
		return models.FormatValue(v), nil
	}

	data, err := d.docs.ReadContent(ctx, doc)
	if err != nil {
		return "", err
	}
	front, body, err := markdown.Split(data)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeContentIO, "parse "+doc.Path)
	}

	if key, ok := strings.CutPrefix(sel.field, "frontmatter."); ok {
		v, present := front[key]
		if !present {
			return "", dErrors.Newf(dErrors.CodeNotFound, "%s has no front matter key %q", doc.Path, key)
		}
		return models.FormatValue(v), nil
	}
	if sel.section != "" {
		section, found := markdown.Section(body, sel.section)
		if !found {
			return "", dErrors.Newf(dErrors.CodeNotFound, "%s has no section %q", doc.Path, sel.section)
		}
		return section, nil
	}
	return string(body), nil
}
