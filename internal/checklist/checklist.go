// Package checklist loads named, versioned checklists for the @checklist:
// resolver. Checklists are read-only here; their owners edit the YAML.
package checklist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	dErrors "docket/pkg/domain-errors"
)

// Item is one checklist line.
type Item struct {
	ID         string `yaml:"id" json:"id"`
	Text       string `yaml:"text" json:"text"`
	Severity   string `yaml:"severity" json:"severity"`
	Automation string `yaml:"automation,omitempty" json:"automation,omitempty"`
}

// Checklist is a named item list.
type Checklist struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Items       []Item `yaml:"items" json:"items"`
}

// WithSeverity returns a copy holding only items of severity
// (case-insensitive). An empty severity keeps everything.
func (c *Checklist) WithSeverity(severity string) *Checklist {
	out := *c
	out.Items = nil
	for _, item := range c.Items {
		if severity == "" || strings.EqualFold(item.Severity, severity) {
			out.Items = append(out.Items, item)
		}
	}
	return &out
}

// Validate checks that items carry ids and text and that ids are unique.
func (c *Checklist) Validate() error {
	if c.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "checklist name is required")
	}
	seen := make(map[string]struct{}, len(c.Items))
	for i, item := range c.Items {
		if item.ID == "" || strings.TrimSpace(item.Text) == "" {
			return dErrors.Newf(dErrors.CodeValidation, "checklist %s item %d needs an id and text", c.Name, i)
		}
		if _, dup := seen[item.ID]; dup {
			return dErrors.Newf(dErrors.CodeValidation, "checklist %s repeats item id %q", c.Name, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// Source loads checklists by name.
type Source interface {
	Load(ctx context.Context, name string) (*Checklist, error)
}

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateName rejects names that could address files outside a source.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return dErrors.Newf(dErrors.CodeValidation, "invalid checklist name %q", name)
	}
	return nil
}

// Memory is a fixed in-process Source.
type Memory struct {
	mu    sync.RWMutex
	lists map[string]*Checklist
}

func NewMemory(lists ...*Checklist) *Memory {
	m := &Memory{lists: make(map[string]*Checklist, len(lists))}
	for _, c := range lists {
		m.lists[c.Name] = c
	}
	return m
}

// Put adds or replaces a checklist.
func (m *Memory) Put(c *Checklist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[c.Name] = c
}

func (m *Memory) Load(ctx context.Context, name string) (*Checklist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.lists[name]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "checklist %q not found", name)
	}
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	return &out, nil
}

// Dir reads <dir>/<name>.yaml (or .yml). Parsed files are cached until their
// modification time changes.
type Dir struct {
	dir string

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	modTime time.Time
	list    *Checklist
}

func NewDir(dir string) *Dir {
	return &Dir{dir: dir, cache: make(map[string]cached)}
}

func (d *Dir) Load(ctx context.Context, name string) (*Checklist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path, info, err := d.locate(name)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	hit, ok := d.cache[name]
	d.mu.Unlock()
	if ok && hit.modTime.Equal(info.ModTime()) {
		return hit.list.WithSeverity(""), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeContentIO, fmt.Sprintf("read checklist %s", name))
	}
	var list Checklist
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("parse checklist %s", name))
	}
	if list.Name == "" {
		list.Name = name
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache[name] = cached{modTime: info.ModTime(), list: &list}
	d.mu.Unlock()
	return list.WithSeverity(""), nil
}

// Names lists the checklists present in the directory.
func (d *Dir) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeContentIO, "list checklists")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func (d *Dir) locate(name string) (string, os.FileInfo, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(d.dir, name+ext)
		info, err := os.Stat(path)
		if err == nil {
			return path, info, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, dErrors.Wrap(err, dErrors.CodeContentIO, fmt.Sprintf("stat checklist %s", name))
		}
	}
	return "", nil, dErrors.Newf(dErrors.CodeNotFound, "checklist %q not found", name)
}
