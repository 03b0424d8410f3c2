// Package content is the I/O primitive beneath the document registry: read,
// write, move, stat, list and delete bytes at slash-separated paths relative
// to a root. It applies no policy; the registry decides what to move where.
package content

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/zeebo/blake3"
)

var (
	// ErrNotExist is returned when the path has no content.
	ErrNotExist = errors.New("content does not exist")
	// ErrExist is returned by Move when the destination is occupied.
	ErrExist = errors.New("content already exists")
	// ErrOutsideRoot is returned for paths that escape the store root.
	ErrOutsideRoot = errors.New("path escapes content root")
)

// Info describes one stored entry.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Store is the content adapter contract. Implementations must honour ctx
// cancellation before starting any I/O.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Move(ctx context.Context, src, dst string) error
	Stat(ctx context.Context, path string) (Info, error)
	List(ctx context.Context, dir string) ([]Info, error)
	Delete(ctx context.Context, path string) error
}

// Hash returns the hex BLAKE3-256 digest used as a document's content hash.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
