// Package planner adds workflow-specific references to a resolution's
// variables before the template is expanded.
package planner

import (
	"regexp"
	"sort"
	"strings"

	dErrors "docket/pkg/domain-errors"
)

// AutoContextVar collects the entries that do not name a variable.
const AutoContextVar = "auto_context"

// Entry injects Ref into variable Var, or into AutoContextVar when Var is
// empty.
type Entry struct {
	Var string `json:"var,omitempty"`
	Ref string `json:"ref"`
}

type Planner struct {
	workflows map[string][]Entry
}

var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// New validates and copies workflows.
func New(workflows map[string][]Entry) (*Planner, error) {
	p := &Planner{workflows: make(map[string][]Entry, len(workflows))}
	for name, entries := range workflows {
		for i, e := range entries {
			if strings.TrimSpace(e.Ref) == "" {
				return nil, dErrors.Newf(dErrors.CodeValidation, "workflow %s entry %d has no ref", name, i)
			}
			if e.Var != "" && !varName.MatchString(e.Var) {
				return nil, dErrors.Newf(dErrors.CodeValidation, "workflow %s entry %d has invalid var %q", name, i, e.Var)
			}
		}
		p.workflows[name] = append([]Entry(nil), entries...)
	}
	return p, nil
}

// Plan returns a new variable map for workflow. Caller variables always
// win; an unknown workflow yields a plain copy.
func (p *Planner) Plan(workflow string, vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		out[k] = v
	}

	var auto []string
	for _, e := range p.workflows[workflow] {
		if e.Var == "" {
			auto = append(auto, e.Ref)
			continue
		}
		if _, set := vars[e.Var]; !set {
			out[e.Var] = e.Ref
		}
	}
	if len(auto) > 0 {
		if _, set := vars[AutoContextVar]; !set {
			out[AutoContextVar] = strings.Join(auto, "\n")
		}
	}
	return out
}

// Has reports whether workflow is configured.
func (p *Planner) Has(workflow string) bool {
	_, ok := p.workflows[workflow]
	return ok
}

// Workflows lists the configured workflow names in order.
func (p *Planner) Workflows() []string {
	names := make([]string, 0, len(p.workflows))
	for name := range p.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
