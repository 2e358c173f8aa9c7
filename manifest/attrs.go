package manifest

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/albertocavalcante/go-modrt/version"
)

// typedAttributes converts clause attributes according to their declared
// types: String (default), Version, Long, Double, and List<...> of those.
func typedAttributes(header string, c Clause) (map[string]any, error) {
	out := make(map[string]any, len(c.Attributes))
	for k, raw := range c.Attributes {
		typ := c.Types[k]
		v, err := convertAttribute(typ, raw)
		if err != nil {
			return nil, headerError(header, err, "attribute %s of type %s", k, typ)
		}
		out[k] = v
	}
	return out, nil
}

func convertAttribute(typ, raw string) (any, error) {
	switch typ {
	case "", "String":
		return raw, nil
	case "Version":
		return version.Parse(raw)
	case "Long":
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case "Double":
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	}

	elem, ok := strings.CutPrefix(typ, "List")
	if !ok {
		return nil, &strconv.NumError{Func: "convert", Num: raw, Err: strconv.ErrSyntax}
	}
	elem = strings.TrimSuffix(strings.TrimPrefix(elem, "<"), ">")
	items := splitCSV(raw)
	switch elem {
	case "", "String":
		return items, nil
	case "Version":
		vs := make([]version.Version, 0, len(items))
		for _, it := range items {
			v, err := version.Parse(it)
			if err != nil {
				return nil, err
			}
			vs = append(vs, v)
		}
		return vs, nil
	case "Long":
		ns := make([]any, 0, len(items))
		for _, it := range items {
			n, err := strconv.ParseInt(it, 10, 64)
			if err != nil {
				return nil, err
			}
			ns = append(ns, n)
		}
		return ns, nil
	}
	return nil, &strconv.NumError{Func: "convert", Num: raw, Err: strconv.ErrSyntax}
}

// coerceVersion turns a string attribute into a version.Version in place.
func coerceVersion(header string, attrs map[string]any, key string) error {
	s, ok := attrs[key].(string)
	if !ok {
		return nil
	}
	v, err := version.Parse(s)
	if err != nil {
		return headerError(header, err, "malformed %s", key)
	}
	attrs[key] = v
	return nil
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
