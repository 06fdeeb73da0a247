package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/standardbeagle/bake/internal/attr"
	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/pathenv"
)

// validManifestTypes is the enum project.json's "type" key is
// restricted to (legacy aliases included; normalizeType maps them).
var validManifestTypes = map[string]bool{
	"application": true, "package": true, "tool": true, "template": true,
	"executable": true, "library": true, "": true,
}

// rawManifest mirrors the project.json top level (spec §4.3). Extra
// top-level keys (anything besides id/type/value/dependee/bundle) are
// driver-config blocks and captured in Extra. Populated by hand from
// a decoded map[string]attr.Value (see LoadManifest) rather than by
// encoding/json struct tags, since unrecognized keys must be routed
// to Extra instead of rejected.
type rawManifest struct {
	ID       string
	Type     string
	Value    map[string]attr.Value
	Dependee map[string]attr.Value
	Bundle   map[string]attr.Value
	Extra    map[string]attr.Value
}

// LoadManifest reads and parses a project.json at path, returning the
// raw, not-yet-interpolated manifest fields needed to construct a
// Project. Comments ("//" and "/* */") are tolerated per spec §6.
func LoadManifest(path string) (*rawManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bakeerr.Wrap(bakeerr.KindFilesystem, "load-manifest", "", err)
	}

	stripped := stripJSONComments(data)

	var generic map[string]attr.Value
	if err := json.Unmarshal(stripped, &generic); err != nil {
		return nil, bakeerr.Wrap(bakeerr.KindManifestParse, "parse-json", "", err)
	}

	if t, ok := generic["type"].(string); ok && !validManifestTypes[t] {
		return nil, bakeerr.Wrap(bakeerr.KindManifestParse, "validate", "",
			fmt.Errorf("project.json at %s has unknown type %q", path, t))
	}

	m := &rawManifest{Extra: make(map[string]attr.Value)}
	for k, v := range generic {
		switch k {
		case "id":
			s, _ := v.(string)
			m.ID = s
		case "type":
			s, _ := v.(string)
			m.Type = s
		case "value":
			obj, _ := v.(map[string]attr.Value)
			m.Value = obj
		case "dependee":
			obj, _ := v.(map[string]attr.Value)
			m.Dependee = obj
		case "bundle":
			obj, _ := v.(map[string]attr.Value)
			m.Bundle = obj
		default:
			obj, ok := v.(map[string]attr.Value)
			if ok {
				m.Extra[k] = obj
			}
		}
	}

	if m.ID == "" {
		return nil, bakeerr.Wrap(bakeerr.KindManifestParse, "validate", "",
			fmt.Errorf("project.json at %s is missing required \"id\"", path))
	}
	if !pathenv.ValidID(m.ID) {
		return nil, bakeerr.Wrap(bakeerr.KindManifestParse, "validate", m.ID,
			fmt.Errorf("invalid project id %q", m.ID))
	}

	return m, nil
}

// stripJSONComments removes "//" line comments and "/* */" block
// comments outside of string literals, so encoding/json can parse a
// manifest written with the tolerance spec §6 requires. No
// comment-tolerant JSON library exists anywhere in the retrieval pack
// (see DESIGN.md); this hand-rolled scanner is the documented
// exception.
func stripJSONComments(src []byte) []byte {
	out := make([]byte, 0, len(src))
	inString := false
	inLineComment := false
	inBlockComment := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		if inLineComment {
			if c == '\n' {
				inLineComment = false
				out = append(out, c)
			}
			continue
		}
		if inBlockComment {
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				inBlockComment = false
				i++
			}
			continue
		}
		if inString {
			out = append(out, c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			inLineComment = true
			i++
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			inBlockComment = true
			i++
		default:
			out = append(out, c)
		}
	}
	return out
}

// LoadProject reads project.json at dir/project.json and builds a
// Project with its declared (not yet driver-bound) fields. Attribute
// interpolation and driver binding happen later, once the language
// and config are known (the Attribute engine needs the project's own
// id/language to interpolate, a chicken-and-egg the teacher's own
// two-pass config load sidesteps the same way: decode structure first,
// resolve values second).
func LoadProject(dir string) (*Project, error) {
	manifestPath := filepath.Join(dir, "project.json")
	raw, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	p := New(raw.ID)
	p.Type = normalizeType(raw.Type)
	absPath, err := filepath.Abs(dir)
	if err != nil {
		absPath = dir
	}
	p.Path = absPath

	p.Sources = []string{"src"}
	p.Includes = []string{"include"}

	if raw.Value != nil {
		applyValueBlock(p, raw.Value)
	}
	p.Dependee = raw.Dependee

	for driverID, rawCfg := range raw.Extra {
		obj, ok := rawCfg.(map[string]attr.Value)
		if !ok {
			continue
		}
		p.Drivers[driverID] = &DriverBinding{DriverID: driverID, Raw: obj}
	}

	return p, nil
}

func applyValueBlock(p *Project, v map[string]attr.Value) {
	if s, ok := v["language"].(string); ok {
		p.Language = s
		p.LanguageDriverID = "lang." + s
	}
	if s, ok := v["version"].(string); ok {
		p.Version = s
	}
	if b, ok := v["public"].(bool); ok {
		p.Public = b
	}
	if b, ok := v["standalone"].(bool); ok {
		p.Standalone = b
	}
	p.Use = stringList(v["use"])
	p.UsePrivate = stringList(v["use-private"])
	p.UseBuild = stringList(v["use-build"])
	p.UseRuntime = stringList(v["use-runtime"])
	p.UseBundle = stringList(v["use-bundle"])
	p.Link = stringList(v["link"])
	if srcs := stringList(v["sources"]); len(srcs) > 0 {
		p.Sources = srcs
	}
	if incs := stringList(v["includes"]); len(incs) > 0 {
		p.Includes = incs
	}
}

func stringList(v attr.Value) []string {
	arr, ok := v.([]attr.Value)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
