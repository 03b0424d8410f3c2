package content

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store for tests. Fail hooks let tests inject I/O
// failures per operation.
type Memory struct {
	mu    sync.RWMutex
	files map[string]memFile

	// FailMove, when set, is consulted before every Move.
	FailMove func(src, dst string) error
	// FailRead, when set, is consulted before every Read.
	FailRead func(path string) error
	// FailDelete, when set, is consulted before every Delete.
	FailDelete func(path string) error
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{files: make(map[string]memFile)}
}

// Put seeds content without going through Write.
func (m *Memory) Put(p string, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[cleanRel(p)] = memFile{data: []byte(data), modTime: time.Now().UTC()}
}

// Exists reports whether p holds content.
func (m *Memory) Exists(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[cleanRel(p)]
	return ok
}

func (m *Memory) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.FailRead != nil {
		if err := m.FailRead(p); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[cleanRel(p)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	return append([]byte(nil), f.data...), nil
}

func (m *Memory) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[cleanRel(p)] = memFile{data: append([]byte(nil), data...), modTime: time.Now().UTC()}
	return nil
}

func (m *Memory) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailMove != nil {
		if err := m.FailMove(src, dst); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := cleanRel(src), cleanRel(dst)
	f, ok := m.files[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotExist, src)
	}
	if _, taken := m.files[to]; taken {
		return fmt.Errorf("%w: %s", ErrExist, dst)
	}
	delete(m.files, from)
	m.files[to] = f
	return nil
}

func (m *Memory) Stat(ctx context.Context, p string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := cleanRel(p)
	if key == "" {
		return Info{IsDir: true}, nil
	}
	if f, ok := m.files[key]; ok {
		return Info{Path: key, Size: int64(len(f.data)), ModTime: f.modTime}, nil
	}
	prefix := key + "/"
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			return Info{Path: key, IsDir: true}, nil
		}
	}
	return Info{}, fmt.Errorf("%w: %s", ErrNotExist, p)
}

func (m *Memory) List(ctx context.Context, dir string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	base := cleanRel(dir)
	prefix := ""
	if base != "" {
		prefix = base + "/"
	}
	seen := make(map[string]Info)
	for name, f := range m.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if child, _, nested := strings.Cut(rest, "/"); nested {
			full := path.Join(base, child)
			seen[full] = Info{Path: full, IsDir: true}
			continue
		}
		seen[name] = Info{Path: name, Size: int64(len(f.data)), ModTime: f.modTime}
	}
	infos := make([]Info, 0, len(seen))
	for _, info := range seen {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

func (m *Memory) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailDelete != nil {
		if err := m.FailDelete(p); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cleanRel(p)
	if _, ok := m.files[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	delete(m.files, key)
	return nil
}
