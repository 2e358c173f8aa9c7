package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/albertocavalcante/go-modrt/resource"
)

const (
	// filePermissions is owner read/write only.
	filePermissions = 0o600
	dirPermissions  = 0o700

	stateFile  = "state.cbor"
	bundlesDir = "bundles"
	contentDir = "content"
)

var _ Storage = (*FS)(nil)

// FS is a Storage rooted at a directory.
type FS struct {
	dir string
	mu  sync.Mutex
}

// NewFS opens or creates a storage area at dir.
func NewFS(dir string) (*FS, error) {
	s := &FS{dir: dir}
	if err := s.mkdirs(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the storage area directory.
func (s *FS) Dir() string { return s.dir }

func (s *FS) mkdirs() error {
	for _, d := range []string{bundlesDir, contentDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, d), dirPermissions); err != nil {
			return fmt.Errorf("failed to create storage area: %w", err)
		}
	}
	return nil
}

func (s *FS) bundlePath(id int64) string {
	return filepath.Join(s.dir, bundlesDir, strconv.FormatInt(id, 10)+".cbor")
}

func (s *FS) contentPath(h Handle) string {
	return filepath.Join(s.dir, contentDir, string(h)+".zst")
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FS) writeRecord(rec BundleRecord) error {
	data, err := marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode bundle %d: %w", rec.ID, err)
	}
	if err := writeFile(s.bundlePath(rec.ID), data); err != nil {
		return fmt.Errorf("failed to write bundle %d: %w", rec.ID, err)
	}
	return nil
}

func (s *FS) readRecord(path string) (BundleRecord, error) {
	var rec BundleRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// PersistRevision implements Storage.
func (s *FS) PersistRevision(ctx context.Context, rec BundleRecord, content resource.Content) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	packed, sum, err := packContent(content)
	if err != nil {
		return "", err
	}
	h := Handle(sum)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.contentPath(h)); errors.Is(err, fs.ErrNotExist) {
		if err := writeFile(s.contentPath(h), packed); err != nil {
			return "", fmt.Errorf("failed to write content: %w", err)
		}
	}
	rec.Handle = h
	if err := s.writeRecord(rec); err != nil {
		return "", err
	}
	return h, s.collect()
}

// SaveBundle implements Storage.
func (s *FS) SaveBundle(ctx context.Context, rec BundleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.bundlePath(rec.ID)); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: bundle %d", ErrNotFound, rec.ID)
	}
	return s.writeRecord(rec)
}

// LoadPersisted implements Storage.
func (s *FS) LoadPersisted(ctx context.Context) ([]BundleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records()
}

func (s *FS) records() ([]BundleRecord, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, bundlesDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list bundles: %w", err)
	}
	var out []BundleRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".cbor") {
			continue
		}
		rec, err := s.readRecord(filepath.Join(s.dir, bundlesDir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b BundleRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// OpenContent implements Storage.
func (s *FS) OpenContent(ctx context.Context, h Handle) (resource.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	packed, err := os.ReadFile(s.contentPath(h))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: content %s", ErrNotFound, h)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content %s: %w", h, err)
	}
	return unpackContent(packed, string(h))
}

// Remove implements Storage.
func (s *FS) Remove(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.bundlePath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove bundle %d: %w", id, err)
	}
	return s.collect()
}

// collect deletes content files no bundle row references.
func (s *FS) collect() error {
	recs, err := s.records()
	if err != nil {
		return err
	}
	live := map[string]bool{}
	for _, r := range recs {
		live[string(r.Handle)+".zst"] = true
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, contentDir))
	if err != nil {
		return fmt.Errorf("failed to list content: %w", err)
	}
	for _, e := range entries {
		if !live[e.Name()] {
			if err := os.Remove(filepath.Join(s.dir, contentDir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove content: %w", err)
			}
		}
	}
	return nil
}

// SaveState implements Storage.
func (s *FS) SaveState(ctx context.Context, st FrameworkState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode framework state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFile(filepath.Join(s.dir, stateFile), data); err != nil {
		return fmt.Errorf("failed to write framework state: %w", err)
	}
	return nil
}

// LoadState implements Storage.
func (s *FS) LoadState(ctx context.Context) (FrameworkState, bool, error) {
	var st FrameworkState
	if err := ctx.Err(); err != nil {
		return st, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if errors.Is(err, fs.ErrNotExist) {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("failed to read framework state: %w", err)
	}
	if err := unmarshal(data, &st); err != nil {
		return st, false, fmt.Errorf("failed to decode framework state: %w", err)
	}
	return st, true, nil
}

// Clean implements Storage.
func (s *FS) Clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to clean storage area: %w", err)
	}
	return s.mkdirs()
}
