package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"vecsearch/internal/domain"
	"vecsearch/internal/port"
)

var _ port.BlobStore = (*FS)(nil)

const (
	tmpSuffix = ".tmp"
	bakSuffix = ".bak"
)

// FS stores each artifact as a file directly under a root directory.
type FS struct {
	root string
}

// NewFS creates an FS store rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FS{root: abs}, nil
}

func (s *FS) resolve(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: bad artifact key %q", domain.ErrInvalidInput, key)
	}
	return filepath.Join(s.root, key), nil
}

func (s *FS) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", key, domain.ErrNotFound)
	}
	return data, err
}

// PutAll writes every blob to a temporary file first and renames them into
// place only after all writes succeeded. Replaced artifacts are hard-linked
// to a backup before their rename; if any commit step fails, the already
// committed artifacts are restored, so a failed PutAll leaves the previous
// artifacts untouched.
func (s *FS) PutAll(_ context.Context, blobs []port.Blob) error {
	tmps := make([]string, 0, len(blobs))
	cleanup := func() {
		for _, t := range tmps {
			os.Remove(t)
		}
	}

	for _, b := range blobs {
		path, err := s.resolve(b.Key)
		if err != nil {
			cleanup()
			return err
		}
		tmp, err := writeTemp(path, b.Data)
		if err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", b.Key, err)
		}
		tmps = append(tmps, tmp)
	}

	var done []commit
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			done[i].undo()
		}
		cleanup()
	}
	for i, b := range blobs {
		path, _ := s.resolve(b.Key)
		backup, err := linkBackup(path)
		if err != nil {
			rollback()
			return fmt.Errorf("back up %s: %w", b.Key, err)
		}
		c := commit{path: path, backup: backup}
		if err := os.Rename(tmps[i], path); err != nil {
			if backup != "" {
				os.Remove(backup)
			}
			rollback()
			return fmt.Errorf("commit %s: %w", b.Key, err)
		}
		done = append(done, c)
	}
	for _, c := range done {
		if c.backup != "" {
			os.Remove(c.backup)
		}
	}
	return syncDir(s.root)
}

// commit is one artifact renamed into place. backup is empty when no
// artifact existed before.
type commit struct {
	path   string
	backup string
}

func (c commit) undo() {
	if c.backup == "" {
		os.Remove(c.path)
		return
	}
	os.Rename(c.backup, c.path)
}

// linkBackup hard-links the current artifact at path to a backup name and
// returns it, or "" when there is no artifact yet.
func linkBackup(path string) (string, error) {
	backup := path + bakSuffix
	if err := os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	err := os.Link(path, backup)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return backup, nil
}

func writeTemp(path string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems do not support fsync on directories.
	_ = d.Sync()
	return nil
}

// Delete removes the named artifacts. It tries every key and returns the
// joined errors of the removals that failed.
func (s *FS) Delete(_ context.Context, keys ...string) error {
	var errs []error
	for _, k := range keys {
		path, err := s.resolve(k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FS) Close() error {
	return nil
}
