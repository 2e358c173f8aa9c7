package modrt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/go-modrt/container"
)

// ParseBundleSetFile reads and parses a YAML bundle set from disk. Relative
// bundle paths are resolved against the file's directory.
func ParseBundleSetFile(filename string) (*BundleSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle set: %w", err)
	}
	set, err := ParseBundleSetContent(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	base := filepath.Dir(filename)
	for i := range set.Bundles {
		if p := set.Bundles[i].Path; p != "" && !filepath.IsAbs(p) {
			set.Bundles[i].Path = filepath.Join(base, p)
		}
	}
	return set, nil
}

// ParseBundleSetContent parses a YAML bundle set. Unknown fields are
// rejected.
func ParseBundleSetContent(data []byte) (*BundleSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var set BundleSet
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse bundle set: %w", err)
	}
	for i, b := range set.Bundles {
		if b.location() == "" {
			return nil, fmt.Errorf("bundle %d: location or path is required", i)
		}
		if b.StartLevel < 0 {
			return nil, fmt.Errorf("bundle %s: negative start level %d", b.location(), b.StartLevel)
		}
	}
	return &set, nil
}

// InstallSet installs the bundles of set in order, assigns their start
// levels and marks the requested ones started. A bundle that fails does not
// stop the others; the errors are joined. The framework must be
// initialized.
func (f *Framework) InstallSet(ctx context.Context, set *BundleSet) ([]*Bundle, error) {
	c := f.Container()
	if c == nil {
		return nil, ErrNotInitialized
	}

	var (
		installed []*Bundle
		errs      []error
	)
	for _, spec := range set.Bundles {
		b, err := f.installSpec(ctx, c, spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("bundle %s: %w", spec.location(), err))
		}
		if b != nil {
			installed = append(installed, b)
		}
	}
	return installed, errors.Join(errs...)
}

func (f *Framework) installSpec(ctx context.Context, c *container.Container, spec BundleSpec) (*Bundle, error) {
	content, err := spec.Content()
	if err != nil {
		return nil, err
	}
	var headers map[string]string
	if len(spec.Headers) > 0 {
		headers = spec.Headers
	}
	b, err := c.Install(ctx, spec.location(), headers, content)
	if err != nil {
		return nil, err
	}
	if spec.StartLevel > 0 && spec.StartLevel != b.StartLevel() {
		if err := c.SetBundleStartLevel(ctx, b, spec.StartLevel); err != nil {
			return b, err
		}
	}
	if !spec.Start && !spec.Lazy {
		return b, nil
	}
	var opts container.StartOptions
	if spec.Lazy {
		opts |= container.StartActivationPolicy
	}
	return b, c.Start(ctx, b, opts)
}
