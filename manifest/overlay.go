package manifest

import (
	"bytes"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/albertocavalcante/go-modrt/resource"
)

// MinOverlayVersion is the lowest versions/{N} directory that is honored.
// Lower-numbered directories are ignored like any other content.
const MinOverlayVersion = 9

// reservedOverlayPrefixes may not be overridden by a versioned entry.
var reservedOverlayPrefixes = []string{
	"META-INF/services/",
	"META-INF/MANIFEST.MF",
	"META-INF/versions/",
	"OSGI-INF/",
}

// OverlaySet indexes the multi-release entries of one content tree.
type OverlaySet struct {
	paths    map[string][]int
	versions []int
}

// NewOverlaySet collects META-INF/versions/{N}/... entries from content
// entry names. Entries that override reserved namespaces or escape the
// versioned root are left out of the set and reported in an *OverlayError;
// the returned set is usable either way.
func NewOverlaySet(entries []string) (*OverlaySet, error) {
	s := &OverlaySet{paths: map[string][]int{}}
	var rejected []RejectedOverlay
	seen := map[int]bool{}

	for _, e := range entries {
		rest, ok := strings.CutPrefix(e, VersionsDir)
		if !ok {
			continue
		}
		dir, logical, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(dir)
		if err != nil || n < MinOverlayVersion {
			continue
		}
		if logical == supplementalPath {
			continue
		}
		if reason := overlayViolation(logical); reason != "" {
			rejected = append(rejected, RejectedOverlay{Path: e, Reason: reason})
			continue
		}
		s.paths[logical] = append(s.paths[logical], n)
		if !seen[n] {
			seen[n] = true
			s.versions = append(s.versions, n)
		}
	}
	for k := range s.paths {
		slices.Sort(s.paths[k])
	}
	slices.Sort(s.versions)

	if len(rejected) > 0 {
		return s, &OverlayError{Rejected: rejected}
	}
	return s, nil
}

func overlayViolation(logical string) string {
	if logical == "" || strings.HasPrefix(logical, "/") {
		return "absolute or empty path"
	}
	for _, seg := range strings.Split(logical, "/") {
		if seg == ".." {
			return "path escapes the versioned root"
		}
	}
	if path.Clean(logical) != logical {
		return "path is not clean"
	}
	for _, p := range reservedOverlayPrefixes {
		if logical == p || strings.HasPrefix(logical, p) {
			return "overrides reserved path " + strings.TrimSuffix(p, "/")
		}
	}
	return ""
}

// Versions returns the overlay versions present, ascending.
func (s *OverlaySet) Versions() []int { return s.versions }

// Select returns the physical entry that serves logical for a runtime at
// version runtime: the highest overlay version not exceeding runtime that
// provides logical, else logical itself.
func (s *OverlaySet) Select(runtime int, logical string) string {
	v, ok := SelectOverlay(runtime, s.paths[logical])
	if !ok {
		return logical
	}
	return VersionsDir + strconv.Itoa(v) + "/" + logical
}

// SelectOverlay picks the highest of available (ascending) that does not
// exceed runtime.
func SelectOverlay(runtime int, available []int) (int, bool) {
	i, found := slices.BinarySearch(available, runtime)
	if found {
		return runtime, true
	}
	if i == 0 {
		return 0, false
	}
	return available[i-1], true
}

// Logical maps a physical versioned entry back to its logical path.
func Logical(entry string) string {
	rest, ok := strings.CutPrefix(entry, VersionsDir)
	if !ok {
		return entry
	}
	dir, logical, ok := strings.Cut(rest, "/")
	if !ok {
		return entry
	}
	if n, err := strconv.Atoi(dir); err != nil || n < MinOverlayVersion {
		return entry
	}
	return logical
}

// supplementedHeaders are the headers a versioned supplemental manifest may
// replace.
var supplementedHeaders = []string{HeaderImportPackage, HeaderRequireCapability}

// ApplyMultiRelease returns headers adjusted for runtime: when the bundle is
// Multi-Release, the supplemental manifest of the highest version not
// exceeding runtime replaces Import-Package and Require-Capability. The
// input map is not modified.
func ApplyMultiRelease(headers map[string]string, content resource.Content, runtime int) (map[string]string, error) {
	if !strings.EqualFold(strings.TrimSpace(headers[HeaderMultiRelease]), "true") || content == nil {
		return headers, nil
	}

	var available []int
	for _, e := range content.Entries() {
		rest, ok := strings.CutPrefix(e, VersionsDir)
		if !ok {
			continue
		}
		dir, logical, _ := strings.Cut(rest, "/")
		if logical != supplementalPath {
			continue
		}
		if n, err := strconv.Atoi(dir); err == nil && n >= MinOverlayVersion {
			available = append(available, n)
		}
	}
	slices.Sort(available)
	v, ok := SelectOverlay(runtime, available)
	if !ok {
		return headers, nil
	}

	data, err := content.ReadFile(VersionsDir + strconv.Itoa(v) + "/" + supplementalPath)
	if err != nil {
		return nil, headerError(HeaderMultiRelease, err, "read supplemental manifest for version %d", v)
	}
	supp, err := ReadManifest(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(headers))
	for k, val := range headers {
		out[k] = val
	}
	for _, h := range supplementedHeaders {
		if val, ok := supp[h]; ok {
			out[h] = val
		} else {
			delete(out, h)
		}
	}
	return out, nil
}
