package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes finished report files under a single root directory. Files are
// named <job id>.<format> so paths never contain caller input.
type Store struct {
	root string
}

// NewStore creates the storage root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create report storage %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Create opens the output file for a job and returns its stored path.
func (s *Store) Create(jobID uuid.UUID, format string) (*os.File, string, error) {
	name := fmt.Sprintf("%s.%s", jobID, format)
	f, err := os.Create(filepath.Join(s.root, name))
	if err != nil {
		return nil, "", fmt.Errorf("create report file %s: %w", name, err)
	}
	return f, name, nil
}

// Open returns a reader and the size for a stored report file. The path must
// be one previously returned by Create; anything resolving outside the root
// is rejected.
func (s *Store) Open(path string) (io.ReadCloser, int64, error) {
	if path != filepath.Base(path) {
		return nil, 0, fmt.Errorf("invalid report path %q", path)
	}
	f, err := os.Open(filepath.Join(s.root, path))
	if err != nil {
		return nil, 0, fmt.Errorf("open report file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat report file %s: %w", path, err)
	}
	return f, info.Size(), nil
}

// Remove deletes a stored report file. Missing files are not an error.
func (s *Store) Remove(path string) error {
	if path != filepath.Base(path) {
		return fmt.Errorf("invalid report path %q", path)
	}
	if err := os.Remove(filepath.Join(s.root, path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
