package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"userapi/pkg/sentinel"
)

// FileStore persists uploaded files. Paths are relative, slash-separated and
// returned by Save; callers keep them in the database and never touch the
// filesystem layout directly.
type FileStore interface {
	Save(ctx context.Context, dir, filename string, r io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
	RemoveAll(ctx context.Context, dir string) error
}

// UserDir is the root of everything stored for one user.
func UserDir(userID uuid.UUID) string {
	return fmt.Sprintf("users/%s", userID)
}

// AvatarDir is where a user's avatar lives.
func AvatarDir(userID uuid.UUID) string {
	return fmt.Sprintf("users/%s/avatar", userID)
}

// DocumentDir is where a user's verification documents live.
func DocumentDir(userID uuid.UUID) string {
	return fmt.Sprintf("users/%s/docs", userID)
}

// DiskStore is a FileStore rooted at a single directory on local disk.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: root}
}

func (s *DiskStore) Save(_ context.Context, dir, filename string, r io.Reader) (string, error) {
	name := sanitize(filename)
	if name == "" {
		return "", fmt.Errorf("storage: empty filename")
	}
	rel := filepath.ToSlash(filepath.Join(dir, name))
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("storage: create dir: %w", err)
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(abs)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return rel, nil
}

func (s *DiskStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if os.IsNotExist(err) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	return f, nil
}

func (s *DiskStore) Remove(_ context.Context, path string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// RemoveAll deletes a whole directory under the root, tolerating absence.
// Used when a user is deleted and their uploads go with them.
func (s *DiskStore) RemoveAll(_ context.Context, dir string) error {
	abs, err := s.resolve(dir)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: remove dir: %w", err)
	}
	return nil
}

// resolve joins a relative path onto the root and refuses traversal outside it.
func (s *DiskStore) resolve(rel string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	root := filepath.Clean(s.root)
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: path %q escapes the files root", rel)
	}
	return abs, nil
}

func sanitize(filename string) string {
	name := filepath.Base(filepath.Clean(filename))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
