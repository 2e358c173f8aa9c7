package modrt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/go-modrt/container"
	"github.com/albertocavalcante/go-modrt/resource"
)

// Version is the framework version, exposed as framework.version and as
// the system bundle's version.
const Version = "0.4.0"

// Re-exported container types, so embedders rarely import container.
type (
	Bundle         = container.Bundle
	BundleContext  = container.BundleContext
	BundleEvent    = container.BundleEvent
	FrameworkEvent = container.FrameworkEvent
	State          = container.State
)

// BundleSet is a list of bundles to install together, plus framework
// properties. It is usually read from YAML with ParseBundleSetFile.
type BundleSet struct {
	// Properties are framework properties applied before Config values
	// given on the command line.
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Bundles are installed in order.
	Bundles []BundleSpec `json:"bundles" yaml:"bundles"`
}

// BundleSpec describes one bundle of a BundleSet.
type BundleSpec struct {
	// Location is the install location. Defaults to Path.
	Location string `json:"location,omitempty" yaml:"location,omitempty"`

	// Path is a directory or a zip archive holding the bundle content.
	// Relative paths are resolved against the bundle set file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Headers, when set, replace the manifest found in the content.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Start marks the bundle persistently started.
	Start bool `json:"start,omitempty" yaml:"start,omitempty"`

	// Lazy starts the bundle with its declared activation policy.
	Lazy bool `json:"lazy,omitempty" yaml:"lazy,omitempty"`

	// StartLevel is the bundle start level. Zero keeps the default.
	StartLevel int `json:"startLevel,omitempty" yaml:"startLevel,omitempty"`
}

// location returns the install location of the bundle.
func (s BundleSpec) location() string {
	if s.Location != "" {
		return s.Location
	}
	return s.Path
}

// Content opens the bundle content: a directory, a zip archive (.zip,
// .jar), or an empty content when Path is unset.
func (s BundleSpec) Content() (resource.Content, error) {
	if s.Path == "" {
		return resource.MapContent{}, nil
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("bundle content %s: %w", s.Path, err)
	}
	if info.IsDir() {
		return resource.NewDirContent(s.Path), nil
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".zip", ".jar":
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("bundle content %s: %w", s.Path, err)
		}
		return resource.NewZipContent(data)
	}
	return nil, fmt.Errorf("bundle content %s: not a directory or zip archive", s.Path)
}
