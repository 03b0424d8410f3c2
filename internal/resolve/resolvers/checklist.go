package resolvers

import (
	"context"
	"fmt"
	"strings"

	"docket/internal/checklist"
	"docket/internal/resolve"
)

// Checklist renders @checklist:<name> and @checklist:<name>#<severity> as a
// markdown task list.
type Checklist struct {
	source checklist.Source
}

func NewChecklist(source checklist.Source) *Checklist {
	return &Checklist{source: source}
}

var _ resolve.Resolver = (*Checklist)(nil)

func (c *Checklist) Resolve(ctx context.Context, value string, _ *resolve.Context) (string, error) {
	name, severity, _ := strings.Cut(strings.TrimSpace(value), "#")
	if err := checklist.ValidateName(name); err != nil {
		return "", err
	}
	list, err := c.source.Load(ctx, name)
	if err != nil {
		return "", err
	}
	return RenderChecklist(list.WithSeverity(strings.TrimSpace(severity))), nil
}

// RenderChecklist formats list as a heading plus unchecked task items.
func RenderChecklist(list *checklist.Checklist) string {
	var b strings.Builder
	b.WriteString("### ")
	b.WriteString(list.Name)
	if list.Version != "" {
		fmt.Fprintf(&b, " (v%s)", list.Version)
	}
	b.WriteString("\n\n")
	if list.Description != "" {
		b.WriteString(strings.TrimSpace(list.Description))
		b.WriteString("\n\n")
	}
	if len(list.Items) == 0 {
		b.WriteString("_No items._\n")
		return b.String()
	}
	for _, item := range list.Items {
		fmt.Fprintf(&b, "- [ ] **%s** %s", item.ID, oneLine(item.Text))
		var notes []string
		if item.Severity != "" {
			notes = append(notes, item.Severity)
		}
		if item.Automation != "" {
			notes = append(notes, "automation: "+item.Automation)
		}
		if len(notes) > 0 {
			fmt.Fprintf(&b, " _(%s)_", strings.Join(notes, "; "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
