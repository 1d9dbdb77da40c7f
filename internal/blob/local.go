package blob

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// LocalStore reads blobs from a directory on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store rooted at root (the working directory when empty).
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: resolve local root %s", root)
	}
	return &LocalStore{root: abs}, nil
}

// Download reads the file at path relative to the store root. Paths may not
// escape the root.
func (s *LocalStore) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "blob: local %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read local %s", path)
	}
	return data, nil
}

func (s *LocalStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(path))
	if clean == "/" {
		return "", eris.Errorf("blob: empty path")
	}
	full := filepath.Join(s.root, clean)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", eris.Errorf("blob: path %q escapes the storage root", path)
	}
	return full, nil
}
