package resource

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Content gives read access to the entries of a revision. Entry names use
// forward slashes and never start with '/'. Missing entries return an error
// wrapping fs.ErrNotExist.
type Content interface {
	ReadFile(name string) ([]byte, error)
	Entries() []string
}

// MapContent is in-memory content keyed by entry name.
type MapContent map[string][]byte

// ReadFile implements Content.
func (m MapContent) ReadFile(name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return b, nil
}

// Entries implements Content.
func (m MapContent) Entries() []string {
	return slices.Sorted(maps.Keys(m))
}

// DirContent reads entries from a directory on disk.
type DirContent struct {
	root string
}

// NewDirContent returns content rooted at dir.
func NewDirContent(dir string) *DirContent {
	return &DirContent{root: dir}
}

// ReadFile implements Content.
func (d *DirContent) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return os.ReadFile(filepath.Join(d.root, filepath.FromSlash(name)))
}

// Entries implements Content.
func (d *DirContent) Entries() []string {
	var out []string
	_ = fs.WalkDir(os.DirFS(d.root), ".", func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !e.IsDir() {
			out = append(out, p)
		}
		return nil
	})
	slices.Sort(out)
	return out
}

// ZipContent reads entries from a zip archive held in memory.
type ZipContent struct {
	files map[string]*zip.File
	names []string
}

// NewZipContent opens a zip archive.
func NewZipContent(data []byte) (*ZipContent, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip content: %w", err)
	}
	z := &ZipContent{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		z.files[f.Name] = f
		z.names = append(z.names, f.Name)
	}
	slices.Sort(z.names)
	return z, nil
}

// ReadFile implements Content.
func (z *ZipContent) ReadFile(name string) ([]byte, error) {
	f, ok := z.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Entries implements Content.
func (z *ZipContent) Entries() []string { return z.names }

// prefixContent exposes the entries under a directory prefix.
type prefixContent struct {
	base   Content
	prefix string
}

func (p *prefixContent) ReadFile(name string) ([]byte, error) {
	return p.base.ReadFile(p.prefix + name)
}

func (p *prefixContent) Entries() []string {
	var out []string
	for _, e := range p.base.Entries() {
		if rest, ok := strings.CutPrefix(e, p.prefix); ok {
			out = append(out, rest)
		}
	}
	return out
}

// ClasspathContent resolves a Bundle-ClassPath entry against c. "." is c
// itself, a directory entry is a sub-tree, and a ".jar"/".zip" entry is a
// nested archive.
func ClasspathContent(c Content, entry string) (Content, error) {
	entry = strings.Trim(path.Clean(entry), "/")
	if entry == "." || entry == "" {
		return c, nil
	}
	if strings.HasSuffix(entry, ".jar") || strings.HasSuffix(entry, ".zip") {
		data, err := c.ReadFile(entry)
		if err != nil {
			return nil, err
		}
		return NewZipContent(data)
	}
	prefix := entry + "/"
	for _, e := range c.Entries() {
		if strings.HasPrefix(e, prefix) {
			return &prefixContent{base: c, prefix: prefix}, nil
		}
	}
	return nil, &fs.PathError{Op: "classpath", Path: entry, Err: fs.ErrNotExist}
}
