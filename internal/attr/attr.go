// Package attr implements the attribute engine (spec §4.2): parsing a
// manifest JSON value into a typed table, evaluating "${func arg}"
// interpolation, and merging per-platform/per-configuration
// conditional blocks and dependee-contributed configuration.
package attr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/standardbeagle/bake/internal/bakeerr"
)

// Value is one of: bool, float64, string, []Value (heterogeneous).
// This mirrors the shapes encoding/json already produces for an
// untyped manifest value, so no extra boxing type is introduced.
type Value = interface{}

// Table is a per-driver attribute map, keyed by attribute name.
type Table map[string]Value

// LocateFunc resolves a project id + locate-kind name (one of
// package/include/etc/lib/app/bin/src/devsrc/template) to a path, or
// "" if not found. Supplied by the caller (internal/pathenv) so attr
// has no dependency on the path resolver's concrete type.
type LocateFunc func(id, kind string) string

// Context carries everything an interpolation needs to resolve a
// "${...}" occurrence: the enclosing project's identity, the
// indirect (dependee) project's id for "$$" references, the build
// target/configuration, and the current driver's own attribute table
// for "${driver-attr ...}".
type Context struct {
	ProjectID   string
	IndirectID  string
	Language    string
	Target      string
	Config      string
	DriverAttrs Table
	Locate      LocateFunc
}

// Interpolate replaces every "${func [arg]}" occurrence in s. Two
// consecutive "$" before the opening brace ("$${func}") select the
// indirect project id for functions that resolve against a project
// id; a single "$" selects the direct (enclosing) project id.
func Interpolate(s string, ctx *Context) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		start := strings.IndexByte(s[i:], '$')
		if start < 0 {
			b.WriteString(s[i:])
			break
		}
		start += i
		b.WriteString(s[i:start])

		indirect := false
		j := start
		for j < len(s) && s[j] == '$' {
			j++
		}
		dollarCount := j - start
		if dollarCount >= 2 {
			indirect = true
		}

		if j >= len(s) || s[j] != '{' {
			// Not an interpolation; emit the dollar run literally.
			b.WriteString(s[start:j])
			i = j
			continue
		}

		end := strings.IndexByte(s[j:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated ${...} in %q", s)
		}
		end += j
		expr := s[j+1 : end]

		result, err := evalExpr(expr, ctx, indirect)
		if err != nil {
			return "", err
		}
		b.WriteString(result)
		i = end + 1
	}
	return b.String(), nil
}

func evalExpr(expr string, ctx *Context, indirect bool) (string, error) {
	fn, arg, _ := strings.Cut(strings.TrimSpace(expr), " ")
	arg = strings.TrimSpace(arg)
	id := ctx.ProjectID
	if indirect {
		id = ctx.IndirectID
	}

	switch fn {
	case "locate":
		if ctx.Locate == nil {
			return "", nil
		}
		return ctx.Locate(id, arg), nil
	case "os", "target":
		if arg == "" {
			return ctx.Target, nil
		}
		return boolStr(strings.EqualFold(arg, ctx.Target)), nil
	case "language", "lang":
		if arg == "" {
			return ctx.Language, nil
		}
		return boolStr(strings.EqualFold(arg, ctx.Language)), nil
	case "config", "cfg":
		if arg == "" {
			return ctx.Config, nil
		}
		return boolStr(strings.EqualFold(arg, ctx.Config)), nil
	case "id":
		return idForm(id, arg), nil
	case "driver-attr":
		v, ok := ctx.DriverAttrs[arg]
		if !ok {
			return "", nil
		}
		return fmt.Sprintf("%v", v), nil
	default:
		return "", fmt.Errorf("unknown interpolation function %q", fn)
	}
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func idForm(id, form string) string {
	switch form {
	case "", "base":
		parts := strings.Split(id, ".")
		if form == "base" {
			return parts[len(parts)-1]
		}
		return id
	case "upper":
		return strings.ToUpper(id)
	case "dash":
		return strings.ReplaceAll(id, ".", "-")
	case "underscore":
		return strings.ReplaceAll(id, ".", "_")
	case "camelcase":
		return camelOrPascal(id, false)
	case "pascalcase":
		return camelOrPascal(id, true)
	default:
		return id
	}
}

func camelOrPascal(id string, pascal bool) string {
	parts := strings.FieldsFunc(id, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		if i == 0 && !pascal {
			b.WriteString(strings.ToLower(string(r[0])))
		} else {
			b.WriteString(strings.ToUpper(string(r[0])))
		}
		for _, c := range r[1:] {
			b.WriteRune(unicode.ToLower(c))
		}
	}
	return b.String()
}

// ParseObject turns a decoded JSON object (map[string]any, as produced
// by encoding/json) into a Table: conditional blocks are resolved and
// merged first, then every string value (recursively through arrays)
// is interpolated.
func ParseObject(raw map[string]Value, ctx *Context) (Table, error) {
	resolved, err := resolveConditionals(raw, ctx)
	if err != nil {
		return nil, err
	}
	out := make(Table, len(resolved))
	for k, v := range resolved {
		iv, err := interpolateValue(v, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = iv
	}
	return out, nil
}

// resolveConditionals merges "${...}": {...} conditional keys into
// the surrounding object, per spec §4.2: a key whose evaluated value
// is "1"/"true" merges its (object-valued) contents in; "0"/"false"
// drops it; an ordinary key passes through untouched.
func resolveConditionals(raw map[string]Value, ctx *Context) (map[string]Value, error) {
	out := make(map[string]Value, len(raw))
	for k, v := range raw {
		if !looksLikeConditionalKey(k) {
			out[k] = v
			continue
		}
		evaluated, err := Interpolate(k, ctx)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(evaluated) {
		case "1", "true":
			obj, ok := v.(map[string]Value)
			if !ok {
				return nil, fmt.Errorf("conditional key %q must have an object value", k)
			}
			merged, err := resolveConditionals(obj, ctx)
			if err != nil {
				return nil, err
			}
			for mk, mv := range merged {
				out[mk] = mv
			}
		case "0", "false":
			// dropped
		default:
			// Evaluated to neither 1 nor 0: treat the literal key as
			// a plain attribute name (rare, but not an error).
			out[k] = v
		}
	}
	return out, nil
}

func looksLikeConditionalKey(k string) bool {
	return strings.Contains(k, "${")
}

func interpolateValue(v Value, ctx *Context) (Value, error) {
	switch t := v.(type) {
	case string:
		return Interpolate(t, ctx)
	case []Value:
		out := make([]Value, len(t))
		for i, e := range t {
			iv, err := interpolateValue(e, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	default:
		return v, nil
	}
}

// MergeDependee implements the dependee merge contract from spec
// §4.2: arrays concatenate with duplicate elimination by value
// equality; scalars must match exactly, otherwise it is a hard
// KindConfigConflict error.
func MergeDependee(base, contrib Table) (Table, error) {
	out := make(Table, len(base)+len(contrib))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range contrib {
		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}
		merged, err := mergeValue(k, existing, v)
		if err != nil {
			return nil, err
		}
		out[k] = merged
	}
	return out, nil
}

func mergeValue(name string, a, b Value) (Value, error) {
	aArr, aIsArr := asValueSlice(a)
	bArr, bIsArr := asValueSlice(b)
	if aIsArr || bIsArr {
		if !aIsArr {
			aArr = []Value{a}
		}
		if !bIsArr {
			bArr = []Value{b}
		}
		return dedupConcat(aArr, bArr), nil
	}
	if !reflect.DeepEqual(a, b) {
		return nil, bakeerr.Wrap(bakeerr.KindConfigConflict, "merge-dependee", name,
			fmt.Errorf("scalar attribute %q conflicts: %v vs %v", name, a, b))
	}
	return a, nil
}

func asValueSlice(v Value) ([]Value, bool) {
	t, ok := v.([]Value)
	return t, ok
}

func dedupConcat(a, b []Value) []Value {
	out := make([]Value, 0, len(a)+len(b))
	seen := make([]Value, 0, len(a)+len(b))
	add := func(v Value) {
		for _, s := range seen {
			if reflect.DeepEqual(s, v) {
				return
			}
		}
		seen = append(seen, v)
		out = append(out, v)
	}
	for _, v := range a {
		add(v)
	}
	for _, v := range b {
		add(v)
	}
	return out
}

// GetString, GetBool, GetNumber fetch a typed attribute, matching the
// driver-host query callbacks from spec §4.4 (get_attr_string,
// get_attr_bool, ...).
func (t Table) GetString(name string) (string, bool) {
	v, ok := t[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (t Table) GetBool(name string) (bool, bool) {
	v, ok := t[name]
	if !ok {
		return false, false
	}
	switch s := v.(type) {
	case bool:
		return s, true
	case string:
		b, err := strconv.ParseBool(s)
		return b, err == nil
	default:
		return false, false
	}
}

func (t Table) GetArray(name string) ([]Value, bool) {
	v, ok := t[name]
	if !ok {
		return nil, false
	}
	arr, ok := asValueSlice(v)
	return arr, ok
}
