package manifest

import (
	"strings"

	"github.com/albertocavalcante/go-modrt/filter"
	"github.com/albertocavalcante/go-modrt/resource"
)

// Native-code clause parameters.
const (
	nativeOSName          = "osname"
	nativeProcessor       = "processor"
	nativeOSVersion       = "osversion"
	nativeLanguage        = "language"
	nativeSelectionFilter = "selection-filter"
)

// parseNativeCode reads Bundle-NativeCode. The clause grammar allows a
// parameter to repeat (osname=Linux;osname=Solaris), so the value is split
// by hand instead of through ParseClauses.
func (d *Descriptor) parseNativeCode() error {
	raw := strings.TrimSpace(d.Headers[HeaderNativeCode])
	if raw == "" {
		return nil
	}
	nc, err := ParseNativeCode(raw)
	if err != nil {
		return err
	}
	d.NativeCode = nc
	return nil
}

// ParseNativeCode parses a Bundle-NativeCode header value. A trailing "*"
// clause marks native code as optional; "*" anywhere else is an error.
func ParseNativeCode(raw string) (resource.NativeCode, error) {
	var nc resource.NativeCode
	clauses := splitQuoted(raw, ',')
	for i, text := range clauses {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if text == "*" {
			if i != len(clauses)-1 {
				return nc, headerError(HeaderNativeCode, nil, "'*' must be the last clause")
			}
			nc.Optional = true
			continue
		}

		var clause resource.NativeClause
		params := false
		for _, piece := range splitQuoted(text, ';') {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			eq := indexUnquoted(piece, '=')
			if eq < 0 {
				if params {
					return nc, headerError(HeaderNativeCode, nil, "path %q follows parameters", piece)
				}
				clause.Paths = append(clause.Paths, unquote(piece))
				continue
			}
			params = true
			key := strings.ToLower(strings.TrimSpace(piece[:eq]))
			val := unquote(strings.TrimSpace(piece[eq+1:]))
			switch key {
			case nativeOSName:
				clause.OSNames = append(clause.OSNames, val)
			case nativeProcessor:
				clause.Processors = append(clause.Processors, val)
			case nativeOSVersion:
				clause.OSVersions = append(clause.OSVersions, val)
			case nativeLanguage:
				clause.Languages = append(clause.Languages, val)
			case nativeSelectionFilter:
				if clause.SelectionFilter != nil {
					return nc, headerError(HeaderNativeCode, nil, "duplicate selection-filter in %q", text)
				}
				f, err := filter.Parse(val)
				if err != nil {
					return nc, headerError(HeaderNativeCode, err, "unparsable selection-filter")
				}
				clause.SelectionFilter = f
			default:
				return nc, headerError(HeaderNativeCode, nil, "unknown parameter %q", key)
			}
		}
		if len(clause.Paths) == 0 {
			return nc, headerError(HeaderNativeCode, nil, "clause %q has no library path", text)
		}
		nc.Clauses = append(nc.Clauses, clause)
	}
	return nc, nil
}
