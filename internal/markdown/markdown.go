// Package markdown extracts the pieces of a markdown document the registry
// and the doc resolver care about: YAML front matter, the title, a plain-text
// excerpt and heading-delimited sections.
package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// DefaultExcerptLength bounds Excerpt output in runes.
const DefaultExcerptLength = 280

var parser = goldmark.New().Parser()

// Split separates leading YAML front matter (between "---" fences) from the
// body. Content without front matter returns a nil map and the input as body.
func Split(data []byte) (map[string]any, []byte, error) {
	rest, ok := cutFence(data)
	if !ok {
		return nil, data, nil
	}
	end, next := -1, 0
	for offset := 0; offset < len(rest); {
		line := rest[offset:]
		nl := bytes.IndexByte(line, '\n')
		if nl >= 0 {
			line = line[:nl]
		}
		trimmed := strings.TrimRight(string(line), "\r \t")
		if trimmed == "---" || trimmed == "..." {
			end = offset
			if nl >= 0 {
				next = offset + nl + 1
			} else {
				next = len(rest)
			}
			break
		}
		if nl < 0 {
			break
		}
		offset += nl + 1
	}
	if end < 0 {
		return nil, data, nil
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal(rest[:end], &meta); err != nil {
		return nil, data, fmt.Errorf("parse front matter: %w", err)
	}
	return meta, rest[next:], nil
}

func cutFence(data []byte) ([]byte, bool) {
	for _, fence := range []string{"---\n", "---\r\n"} {
		if bytes.HasPrefix(data, []byte(fence)) {
			return data[len(fence):], true
		}
	}
	return nil, false
}

// Body returns data without its front matter. Malformed front matter is left
// in place.
func Body(data []byte) []byte {
	_, body, err := Split(data)
	if err != nil {
		return data
	}
	return body
}

// Title returns the text of the first heading in body, or "" when there is
// none.
func Title(body []byte) string {
	doc := parser.Parse(text.NewReader(body))
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if heading, ok := child.(*ast.Heading); ok {
			return strings.TrimSpace(nodeText(heading, body))
		}
	}
	return ""
}

// Excerpt returns the first paragraph of body as whitespace-collapsed plain
// text, truncated to max runes.
func Excerpt(body []byte, max int) string {
	if max <= 0 {
		max = DefaultExcerptLength
	}
	doc := parser.Parse(text.NewReader(body))
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if child.Kind() != ast.KindParagraph {
			continue
		}
		plain := strings.Join(strings.Fields(nodeText(child, body)), " ")
		if plain == "" {
			continue
		}
		return truncate(plain, max)
	}
	return ""
}

// Heading is one top-level heading with its byte offsets in the body.
type Heading struct {
	Level int
	Text  string
	Slug  string
	Start int
}

// Headings lists the document-level headings of body in order.
func Headings(body []byte) []Heading {
	doc := parser.Parse(text.NewReader(body))
	var out []Heading
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		heading, ok := child.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}
		title := strings.TrimSpace(nodeText(heading, body))
		out = append(out, Heading{
			Level: heading.Level,
			Text:  title,
			Slug:  Slug(title),
			Start: lineStart(body, heading.Lines().At(0).Start),
		})
	}
	return out
}

// Section returns the part of body that starts at the heading matching name
// and runs until the next heading of the same or a higher level. name matches
// the heading text case-insensitively or its slug. Nested sub-headings are
// included.
func Section(body []byte, name string) (string, bool) {
	want := strings.TrimSpace(name)
	wantSlug := Slug(want)
	headings := Headings(body)
	for i, h := range headings {
		if !strings.EqualFold(h.Text, want) && h.Slug != wantSlug {
			continue
		}
		end := len(body)
		for _, next := range headings[i+1:] {
			if next.Level <= h.Level {
				end = next.Start
				break
			}
		}
		return strings.TrimRight(string(body[h.Start:end]), "\n\r\t ") + "\n", true
	}
	return "", false
}

// Slug lowercases s and joins its alphanumeric runs with single hyphens.
func Slug(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func lineStart(src []byte, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	if i := bytes.LastIndexByte(src[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
