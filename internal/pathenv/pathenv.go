// Package pathenv computes the canonical environment paths described
// in spec §3 ("Environment paths") and §4.1 (the Path/Env resolver),
// and implements locate(), the process-wide, memoized project lookup
// that every other component depends on.
package pathenv

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// Kind enumerates what locate() can resolve a project id to.
type Kind int

const (
	KindMeta Kind = iota
	KindInclude
	KindEtc
	KindLib
	KindStaticLib
	KindApp
	KindAnyBinary
	KindSource
	KindDevSource
	KindTemplate
	KindRepository
)

// Env holds the resolved set of paths rooted at Home, plus the
// platform triple and configuration name used to compute the
// platform-specific subtree. One Env is constructed per process and
// threaded explicitly through every component (see the design note in
// SPEC_FULL.md §4.4 on making what the teacher does via globals/TLS
// explicit instead).
type Env struct {
	Home          string // $BAKE_HOME
	Target        string // build target directory, defaults to cwd
	Config        string // "debug", "release", ...
	PlatformTriple string // "<cpu>-<os>"

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
	group singleflight.Group
}

type cacheKey struct {
	hash uint64
}

type cacheEntry struct {
	path  string
	found bool
}

// Init computes an Env from explicit parameters, falling back to
// BAKE_-prefixed environment variables, then to built-in defaults, per
// spec §4.1.
func Init(home, target, config string) *Env {
	if home == "" {
		home = envOr("BAKE_HOME", defaultHome())
	}
	if target == "" {
		target = envOr("BAKE_TARGET", cwdOrDot())
	}
	if config == "" {
		config = envOr("BAKE_CONFIG", "debug")
	}
	platform := envOr("BAKE_PLATFORM", defaultPlatformTriple())

	return &Env{
		Home:           home,
		Target:         target,
		Config:         config,
		PlatformTriple: platform,
		cache:          make(map[cacheKey]cacheEntry),
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func defaultHome() string {
	if runtime.GOOS == "windows" {
		if up := os.Getenv("USERPROFILE"); up != "" {
			return filepath.Join(up, "bake")
		}
	}
	if hd, err := os.UserHomeDir(); err == nil {
		return filepath.Join(hd, "bake")
	}
	return filepath.Join(".", "bake")
}

func cwdOrDot() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func defaultPlatformTriple() string {
	return runtime.GOARCH + "-" + runtime.GOOS
}

// MetaDir returns $target|home/meta/<id>.
func (e *Env) MetaDir(root, id string) string { return filepath.Join(root, "meta", id) }

// IncludeDir returns $home/include/<id-dash>.dir.
func (e *Env) IncludeDir(id string) string {
	return filepath.Join(e.Home, "include", DashID(id)+".dir")
}

// EtcDir returns $home/etc/<id>.
func (e *Env) EtcDir(id string) string { return filepath.Join(e.Home, "etc", id) }

// LibDir returns $home/lib.
func (e *Env) LibDir() string { return filepath.Join(e.Home, "lib") }

// BinDir returns $home/bin.
func (e *Env) BinDir() string { return filepath.Join(e.Home, "bin") }

// SrcDir returns $home/src.
func (e *Env) SrcDir() string { return filepath.Join(e.Home, "src") }

// TemplatesDir returns $home/templates.
func (e *Env) TemplatesDir() string { return filepath.Join(e.Home, "templates") }

// PlatformDir returns $home/platform/<triple>-<config>.
func (e *Env) PlatformDir() string {
	return filepath.Join(e.Home, "platform", e.PlatformTriple+"-"+e.Config)
}

// DashID, UnderscoreID, BaseID implement the three derivable id forms
// from spec §3 and §8 (round-trip laws).
func DashID(id string) string        { return strings.ReplaceAll(id, ".", "-") }
func UnderscoreID(id string) string  { return strings.ReplaceAll(id, ".", "_") }
func BaseID(id string) string {
	parts := strings.Split(id, ".")
	return parts[len(parts)-1]
}

// ValidID reports whether id satisfies spec §3's invariant: first
// character a letter, remaining characters letters/digits/_/.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	for i, r := range id {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 {
			if !isLetter {
				return false
			}
			continue
		}
		isDigit := r >= '0' && r <= '9'
		if !(isLetter || isDigit || r == '_' || r == '.') {
			return false
		}
	}
	return true
}

// binaryProbe names, in search order, the platform-specific filenames
// locate() tries for library/app/any-binary kinds.
func binaryProbeNames(underscored string) []string {
	return []string{
		"lib" + underscored + ".so",
		"lib" + underscored + ".dylib",
		"lib" + underscored + ".a",
		underscored + ".exe",
		underscored,
	}
}

// Locate resolves a project id to a path for the given kind, or ""
// if not found. Results are memoized process-wide: a failed lookup is
// cached too, so repeated misses do not re-scan the filesystem.
// Concurrent callers for the same (id, kind) collapse into a single
// filesystem probe via singleflight (see SPEC_FULL.md §4.1 expansion).
func (e *Env) Locate(id string, kind Kind) string {
	key := cacheKey{hash: hashKey(id, kind)}

	e.mu.Lock()
	if entry, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return entry.path
	}
	e.mu.Unlock()

	v, _, _ := e.group.Do(keyString(id, kind), func() (interface{}, error) {
		path := e.resolve(id, kind)
		e.mu.Lock()
		e.cache[key] = cacheEntry{path: path, found: path != ""}
		e.mu.Unlock()
		return path, nil
	})
	return v.(string)
}

func hashKey(id string, kind Kind) uint64 {
	h := xxhash.New()
	h.WriteString(id)
	h.Write([]byte{byte(kind)})
	return h.Sum64()
}

func keyString(id string, kind Kind) string {
	var b strings.Builder
	b.WriteString(id)
	b.WriteByte(0)
	b.WriteByte(byte(kind))
	return b.String()
}

// Reset invalidates the memoized results for id (and, as explained
// below, for every other id too), without unloading anything (unloading a driver whose symbols
// are in use would be unsafe). Per spec §4.1, this is best-effort.
func (e *Env) Reset(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Cache keys hash (id, kind) together and cannot be reversed, so a
	// single-id reset clears the whole cache. This trades a rarer
	// bulk-invalidate for O(1) Locate hits, the read path that matters.
	e.cache = make(map[cacheKey]cacheEntry)
}

// resolve performs the actual filesystem search described in spec
// §4.1: target/meta/<id> then home/meta/<id>, newer project.json wins;
// binary kinds probe platform-specific filenames.
func (e *Env) resolve(id string, kind Kind) string {
	switch kind {
	case KindMeta:
		return e.resolveMeta(id)
	case KindInclude:
		dir := e.IncludeDir(id)
		if dirExists(dir) {
			return dir
		}
		return ""
	case KindEtc:
		dir := e.EtcDir(id)
		if dirExists(dir) {
			return dir
		}
		return ""
	case KindTemplate:
		dir := filepath.Join(e.TemplatesDir(), id)
		if dirExists(dir) {
			return dir
		}
		return ""
	case KindSource, KindDevSource:
		dir := filepath.Join(e.SrcDir(), id)
		if dirExists(dir) {
			return dir
		}
		return ""
	case KindRepository:
		meta := e.resolveMeta(id)
		if meta == "" {
			return ""
		}
		src := filepath.Join(meta, "source.txt")
		if b, err := os.ReadFile(src); err == nil {
			return strings.TrimSpace(string(b))
		}
		return ""
	case KindLib, KindStaticLib, KindApp, KindAnyBinary:
		return e.resolveBinary(id, kind)
	default:
		return ""
	}
}

func (e *Env) resolveMeta(id string) string {
	targetMeta := e.MetaDir(e.Target, id)
	homeMeta := e.MetaDir(e.Home, id)

	targetJSON := filepath.Join(targetMeta, "project.json")
	homeJSON := filepath.Join(homeMeta, "project.json")

	tInfo, tErr := os.Stat(targetJSON)
	hInfo, hErr := os.Stat(homeJSON)

	switch {
	case tErr == nil && hErr == nil:
		if tInfo.ModTime().After(hInfo.ModTime()) {
			return targetMeta
		}
		return homeMeta
	case tErr == nil:
		return targetMeta
	case hErr == nil:
		return homeMeta
	default:
		return ""
	}
}

func (e *Env) resolveBinary(id string, kind Kind) string {
	underscored := UnderscoreID(id)
	dirs := []string{e.PlatformDir(), e.LibDir(), e.BinDir()}

	for _, names := range binaryProbeCandidates(underscored, kind) {
		for _, dir := range dirs {
			p := filepath.Join(dir, names)
			if fileExists(p) {
				return p
			}
		}
	}
	return ""
}

func binaryProbeCandidates(underscored string, kind Kind) []string {
	all := binaryProbeNames(underscored)
	switch kind {
	case KindLib:
		return all[:2] // .so, .dylib
	case KindStaticLib:
		return all[2:3] // .a
	case KindApp:
		return all[3:] // .exe, bare
	default: // KindAnyBinary
		return all
	}
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
