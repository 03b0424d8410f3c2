package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FS stores content as files beneath Root.
type FS struct {
	root string
}

// NewFS returns an FS rooted at root. The directory is created if missing.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create content root %q: %w", abs, err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FS) Root() string {
	return s.root
}

// resolve maps a relative slash path to an absolute path under root.
func (s *FS) resolve(p string) (string, error) {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(cleanRel(p))), nil
}

// cleanRel normalises p to a slash path without a leading slash; the root is "".
func cleanRel(p string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
}

func (s *FS) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, mapErr(p, err)
	}
	return data, nil
}

// Write replaces the content at p atomically (temp file then rename).
func (s *FS) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".docket-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", p, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", p, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return fmt.Errorf("rename into %s: %w", p, err)
	}
	return nil
}

// Move renames src to dst, creating dst's parent directories. An occupied
// destination fails with ErrExist rather than being overwritten.
func (s *FS) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := s.resolve(src)
	if err != nil {
		return err
	}
	to, err := s.resolve(dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(from); err != nil {
		return mapErr(src, err)
	}
	if _, err := os.Stat(to); err == nil {
		return fmt.Errorf("%w: %s", ErrExist, dst)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", dst, err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return nil
}

func (s *FS) Stat(ctx context.Context, p string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return Info{}, mapErr(p, err)
	}
	return Info{Path: cleanRel(p), Size: fi.Size(), ModTime: fi.ModTime().UTC(), IsDir: fi.IsDir()}, nil
}

// List returns the direct children of dir sorted by path.
func (s *FS) List(ctx context.Context, dir string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, mapErr(dir, err)
	}
	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".docket-") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Path:    path.Join(cleanRel(dir), entry.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime().UTC(),
			IsDir:   entry.IsDir(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

func (s *FS) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return mapErr(p, err)
	}
	return nil
}

func mapErr(p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotExist, p)
	}
	return fmt.Errorf("%s: %w", p, err)
}
