package resolve

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Reference is one @kind:value token found in a text. Start and End are
// byte offsets of Raw in the scanned text.
type Reference struct {
	Kind  string
	Value string
	Raw   string
	Start int
	End   int
}

// Key identifies the reference for caching and cycle detection. Two tokens
// with the same kind and value are the same reference.
func (r Reference) Key() string {
	return r.Kind + ":" + r.Value
}

// trailingPunct is trimmed from bare values so prose like "see @doc:a.md."
// references a.md.
const trailingPunct = ".,;:!?)]"

// Scan returns the references in text in order of appearance. An '@' that
// follows a letter or digit (an email address) or a backslash is not a
// token, nor is one whose brace block never closes.
func Scan(text string) []Reference {
	var refs []Reference
	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		if i > 0 {
			if text[i-1] == '\\' {
				continue
			}
			prev, _ := utf8.DecodeLastRuneInString(text[:i])
			if unicode.IsLetter(prev) || unicode.IsDigit(prev) {
				continue
			}
		}
		ref, ok := scanAt(text, i)
		if !ok {
			continue
		}
		refs = append(refs, ref)
		i = ref.End - 1
	}
	return refs
}

// HasReferences reports whether text contains at least one token.
func HasReferences(text string) bool {
	if !strings.Contains(text, "@") {
		return false
	}
	return len(Scan(text)) > 0
}

// Unescape turns every "\@" into a literal "@". The engine applies it to
// template text only, never to resolver output.
func Unescape(text string) string {
	return strings.ReplaceAll(text, `\@`, "@")
}

func scanAt(text string, at int) (Reference, bool) {
	i := at + 1
	if i >= len(text) || text[i] < 'a' || text[i] > 'z' {
		return Reference{}, false
	}
	kindStart := i
	for i < len(text) && isKindByte(text[i]) {
		i++
	}
	if i >= len(text) || text[i] != ':' {
		return Reference{}, false
	}
	kind := text[kindStart:i]
	i++

	if i < len(text) && text[i] == '{' {
		end, ok := closeBrace(text, i)
		if !ok {
			return Reference{}, false
		}
		value := strings.TrimSpace(text[i+1 : end])
		if value == "" {
			return Reference{}, false
		}
		return Reference{Kind: kind, Value: value, Raw: text[at : end+1], Start: at, End: end + 1}, true
	}

	valueStart := i
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			break
		}
		i += size
	}
	end := i
	for end > valueStart && strings.IndexByte(trailingPunct, text[end-1]) >= 0 {
		end--
	}
	if end == valueStart {
		return Reference{}, false
	}
	return Reference{Kind: kind, Value: text[valueStart:end], Raw: text[at:end], Start: at, End: end}, true
}

func isKindByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
}

// closeBrace returns the index of the brace closing the one at open.
func closeBrace(text string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Substitute replaces {{name}} placeholders with vars[name]. Unknown names
// and malformed placeholders stay literal.
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for {
		open := strings.Index(text, "{{")
		if open < 0 {
			b.WriteString(text)
			return b.String()
		}
		closeAt := strings.Index(text[open+2:], "}}")
		if closeAt < 0 {
			b.WriteString(text)
			return b.String()
		}
		name := strings.TrimSpace(text[open+2 : open+2+closeAt])
		b.WriteString(text[:open])
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(text[open : open+2+closeAt+2])
		}
		text = text[open+2+closeAt+2:]
	}
}
