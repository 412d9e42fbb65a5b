package gallery

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileStore resolves image references relative to a root directory, the way
// uploaded report photos are laid out on disk.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: filepath.Clean(root)}
}

func (s *FileStore) Root() string { return s.root }

// Resolve maps a reference to a path inside the root. References may be plain
// relative paths or absolute URLs, in which case only the URL path is used.
func (s *FileStore) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.Wrap(ErrImageNotFound, "empty reference")
	}

	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		ref = u.Path
	}

	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(ref, "/")))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", errors.Wrapf(ErrUnsafeReference, "reference %q", ref)
	}

	return filepath.Join(s.root, rel), nil
}

func (s *FileStore) Load(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrImageNotFound, "reference %q", ref)
		}
		return nil, errors.Wrapf(err, "can't read image %q", ref)
	}
	return data, nil
}
