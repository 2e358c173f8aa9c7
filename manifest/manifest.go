package manifest

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

// Manifest file locations within bundle content.
const (
	ManifestPath      = "META-INF/MANIFEST.MF"
	DescriptorPath    = "BUNDLE.bazel"
	VersionsDir       = "META-INF/versions/"
	supplementalPath  = "OSGI-INF/MANIFEST.MF"
	maxManifestLineSz = 72
)

// ReadManifest reads the main section of a MANIFEST.MF file. Continuation
// lines start with a single space. Header names are case-sensitive; later
// duplicates are an error.
func ReadManifest(r io.Reader) (map[string]string, error) {
	headers := map[string]string{}
	sc := bufio.NewScanner(r)
	var name string
	var value strings.Builder
	lineNo := 0

	flush := func() error {
		if name == "" {
			return nil
		}
		if _, dup := headers[name]; dup {
			return headerError(name, nil, "duplicate header")
		}
		headers[name] = strings.TrimSpace(value.String())
		name = ""
		value.Reset()
		return nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			// end of main section
			break
		}
		if line[0] == ' ' {
			if name == "" {
				return nil, headerError("", nil, "line %d: continuation without header", lineNo)
			}
			value.WriteString(line[1:])
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		n, v, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(n) == "" {
			return nil, headerError("", nil, "line %d: expected 'Name: value'", lineNo)
		}
		name = strings.TrimSpace(n)
		value.WriteString(strings.TrimPrefix(v, " "))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return headers, nil
}

// WriteManifest writes headers in MANIFEST.MF format with sorted names,
// Manifest-Version first, wrapping long lines.
func WriteManifest(w io.Writer, headers map[string]string) error {
	names := slices.Sorted(maps.Keys(headers))
	if i := slices.Index(names, "Manifest-Version"); i > 0 {
		names = append([]string{"Manifest-Version"}, slices.Delete(names, i, i+1)...)
	}
	bw := bufio.NewWriter(w)
	for _, n := range names {
		line := n + ": " + headers[n]
		first := true
		for len(line) > 0 {
			limit := maxManifestLineSz
			if !first {
				limit--
				bw.WriteByte(' ')
			}
			k := min(limit, len(line))
			bw.WriteString(line[:k])
			bw.WriteString("\r\n")
			line = line[k:]
			first = false
		}
	}
	bw.WriteString("\r\n")
	return bw.Flush()
}
