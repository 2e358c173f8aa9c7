package resolver

import (
	"strings"

	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/version"
)

// osAliases maps canonical operating system names to accepted spellings.
var osAliases = map[string][]string{
	"darwin":  {"macos", "macosx", "mac os x", "mac os"},
	"linux":   {"linux"},
	"windows": {"win32", "windows 10", "windows 11", "windows server"},
	"freebsd": {"freebsd"},
	"solaris": {"sunos", "solaris"},
	"aix":     {"aix"},
}

// processorAliases maps canonical processor names to accepted spellings.
var processorAliases = map[string][]string{
	"amd64": {"x86-64", "x86_64", "em64t", "x64"},
	"386":   {"x86", "i386", "i486", "i586", "i686", "pentium", "ia32"},
	"arm64": {"aarch64"},
	"arm":   {"armv7", "armv7l", "arm_le"},
	"ppc64": {"ppc64", "power64"},
	"s390x": {"s390x", "zarch_64"},
}

// normalize maps name to its canonical form using aliases.
func normalize(name string, aliases map[string][]string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for canonical, names := range aliases {
		if name == canonical {
			return canonical
		}
		for _, n := range names {
			if name == n {
				return canonical
			}
		}
	}
	return name
}

// SelectNativeClause returns the first clause of code matching props. A nil
// clause with ok set means no native code is required: either the revision
// declares none, or no clause matched and the list ends with "*". ok is
// false when no clause matched and native code is mandatory.
func SelectNativeClause(code resource.NativeCode, props map[string]string) (clause *resource.NativeClause, ok bool) {
	if code.Empty() {
		return nil, true
	}
	for i := range code.Clauses {
		if clauseMatches(code.Clauses[i], props) {
			c := code.Clauses[i]
			return &c, true
		}
	}
	return nil, code.Optional
}

func clauseMatches(c resource.NativeClause, props map[string]string) bool {
	if len(c.OSNames) > 0 && !anyEqual(c.OSNames, props[PropOSName], osAliases) {
		return false
	}
	if len(c.Processors) > 0 && !anyEqual(c.Processors, props[PropProcessor], processorAliases) {
		return false
	}
	if len(c.OSVersions) > 0 && !osVersionMatches(c.OSVersions, props[PropOSVersion]) {
		return false
	}
	if len(c.Languages) > 0 && !anyEqual(c.Languages, props[PropLanguage], nil) {
		return false
	}
	if c.SelectionFilter != nil && !c.SelectionFilter.MatchProperties(props) {
		return false
	}
	return true
}

func anyEqual(declared []string, actual string, aliases map[string][]string) bool {
	if actual == "" {
		return false
	}
	want := normalize(actual, aliases)
	for _, d := range declared {
		if normalize(d, aliases) == want {
			return true
		}
	}
	return false
}

func osVersionMatches(ranges []string, actual string) bool {
	v, err := version.Parse(leadingVersion(actual))
	if err != nil {
		return false
	}
	for _, raw := range ranges {
		r, err := version.ParseRange(raw)
		if err != nil {
			continue
		}
		if r.Includes(v) {
			return true
		}
	}
	return false
}

// leadingVersion keeps the dotted numeric prefix of an OS version such as
// "6.8.0-45-generic".
func leadingVersion(s string) string {
	end := 0
	dots := 0
	for end < len(s) {
		ch := s[end]
		if ch == '.' {
			if dots == 2 || end+1 >= len(s) || s[end+1] < '0' || s[end+1] > '9' {
				break
			}
			dots++
		} else if ch < '0' || ch > '9' {
			break
		}
		end++
	}
	return s[:end]
}

// selectNative picks a native clause for every pending revision. Revisions
// without a matching clause fail for the whole call.
func (s *session) selectNative() {
	for _, rev := range s.pending {
		if len(s.base[rev]) > 0 {
			continue
		}
		code := rev.NativeCode()
		clause, ok := SelectNativeClause(code, s.props)
		if !ok {
			var tried []string
			for _, c := range code.Clauses {
				tried = append(tried, c.String())
			}
			s.base[rev] = append(s.base[rev], Cause{
				Requirement: code.Requirement(rev),
				Reason:      ReasonNativeCodeNoMatch,
				Detail:      "no clause matches: " + strings.Join(tried, ", "),
			})
			continue
		}
		if clause != nil {
			s.native[rev] = clause
		}
	}
}
