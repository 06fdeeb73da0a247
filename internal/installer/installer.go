// Package installer implements the three install phases (spec §4.7):
// reflecting a built project into the environment so other projects
// can discover and link against it.
package installer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/standardbeagle/bake/internal/bakeerr"
	"github.com/standardbeagle/bake/internal/obs"
	"github.com/standardbeagle/bake/internal/pathenv"
	"github.com/standardbeagle/bake/internal/project"
)

// Installer reflects projects into one Env.
type Installer struct {
	Env *pathenv.Env
}

// New returns an Installer rooted at env.
func New(env *pathenv.Env) *Installer { return &Installer{Env: env} }

// InstallMetadata copies project.json, LICENSE (if present), and a
// serialized dependee block into env/meta/<id>/, plus a source.txt
// pointing back at the project's source directory (spec §4.7
// "install-metadata").
func (in *Installer) InstallMetadata(p *project.Project) error {
	if !p.Public {
		return nil
	}
	dir := in.Env.MetaDir(in.Env.Home, p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "install-metadata", p.ID, err)
	}

	if err := copyFile(filepath.Join(p.Path, "project.json"), filepath.Join(dir, "project.json")); err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "install-metadata", p.ID, err)
	}
	if licensePath := findLicense(p.Path); licensePath != "" {
		_ = copyFile(licensePath, filepath.Join(dir, filepath.Base(licensePath)))
	}
	if p.Dependee != nil {
		data, err := json.Marshal(p.Dependee)
		if err != nil {
			return bakeerr.Wrap(bakeerr.KindFilesystem, "install-metadata", p.ID, err)
		}
		if err := os.WriteFile(filepath.Join(dir, "dependee.json"), data, 0o644); err != nil {
			return bakeerr.Wrap(bakeerr.KindFilesystem, "install-metadata", p.ID, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "source.txt"), []byte(p.Path+"\n"), 0o644); err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "install-metadata", p.ID, err)
	}

	obs.Installer("installed metadata for %s -> %s", p.ID, dir)
	return nil
}

// InstallPrebuild copies each declared include directory into
// env/include/<id-dashed>.dir/ (symlinks where supported), the etc/
// tree into env/etc/<id>/, and lib/ for packages (spec §4.7
// "install-prebuild").
func (in *Installer) InstallPrebuild(p *project.Project) error {
	includeDst := in.Env.IncludeDir(p.ID)
	includeDirs := p.IncludeDirs()
	if len(includeDirs) == 0 {
		includeDirs = []string{filepath.Join(p.Path, "include")}
	}
	for _, src := range includeDirs {
		if err := mirrorTree(src, includeDst); err != nil {
			return bakeerr.Wrap(bakeerr.KindFilesystem, "install-prebuild", p.ID, err)
		}
	}
	if err := in.validateIncludeTree(p, includeDst); err != nil {
		return err
	}

	if etcSrc := filepath.Join(p.Path, "etc"); dirExists(etcSrc) {
		if err := mirrorTree(etcSrc, in.Env.EtcDir(p.ID)); err != nil {
			return bakeerr.Wrap(bakeerr.KindFilesystem, "install-prebuild", p.ID, err)
		}
	}
	if p.Type == project.TypePackage {
		if libSrc := filepath.Join(p.Path, "lib"); dirExists(libSrc) {
			if err := mirrorTree(libSrc, in.Env.LibDir()); err != nil {
				return bakeerr.Wrap(bakeerr.KindFilesystem, "install-prebuild", p.ID, err)
			}
		}
	}

	obs.Installer("ran install-prebuild for %s", p.ID)
	return nil
}

// InstallPostbuild copies the built artefact into env/bin (for
// applications) or env/lib (for packages) (spec §4.7
// "install-postbuild").
func (in *Installer) InstallPostbuild(p *project.Project, platformTriple, config string) error {
	if p.ArtefactPath == "" || !fileExists(p.ArtefactPath) {
		return nil
	}
	var dst string
	switch p.Type {
	case project.TypeApplication:
		dst = filepath.Join(in.Env.BinDir(), filepath.Base(p.ArtefactPath))
	default:
		dst = filepath.Join(in.Env.LibDir(), filepath.Base(p.ArtefactPath))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "install-postbuild", p.ID, err)
	}
	if err := copyFile(p.ArtefactPath, dst); err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "install-postbuild", p.ID, err)
	}
	obs.Installer("installed artefact for %s -> %s", p.ID, dst)
	return nil
}

// Uninstall removes env/meta/<id>/, env/etc/<id>/,
// env/include/<id-dashed>.dir/, and, for each of the lib, static-lib
// and app kinds, the one binary Env.Locate resolves for the project
// (the first existing candidate under the current platform directory,
// lib/ or bin/). Other candidate filenames, and other platforms'
// directories, are left in place (spec §4.7 "Uninstall").
func (in *Installer) Uninstall(p *project.Project) error {
	paths := []string{
		in.Env.MetaDir(in.Env.Home, p.ID),
		in.Env.EtcDir(p.ID),
		in.Env.IncludeDir(p.ID),
	}
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			return bakeerr.Wrap(bakeerr.KindFilesystem, "uninstall", p.ID, err)
		}
	}
	for _, kind := range []pathenv.Kind{pathenv.KindLib, pathenv.KindStaticLib, pathenv.KindApp} {
		if bin := in.Env.Locate(p.ID, kind); bin != "" {
			_ = os.Remove(bin)
		}
	}
	obs.Installer("uninstalled %s", p.ID)
	return nil
}

// validateIncludeTree enforces spec §4.7's "no stray top-level files"
// rule: only <id-base>.h (renamed to <id-underscored>.h when the id is
// nested) and a directory named <id-dashed>/ are permitted.
func (in *Installer) validateIncludeTree(p *project.Project, dst string) error {
	entries, err := os.ReadDir(dst)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return bakeerr.Wrap(bakeerr.KindFilesystem, "validate-include", p.ID, err)
	}

	base := p.IDBase() + ".h"
	underscored := p.IDUnderscore() + ".h"
	dashDir := p.IDDash()
	nested := strings.Contains(p.ID, ".")

	for _, e := range entries {
		name := e.Name()
		switch {
		case !e.IsDir() && name == base:
			if nested {
				if err := os.Rename(filepath.Join(dst, name), filepath.Join(dst, underscored)); err != nil {
					return bakeerr.Wrap(bakeerr.KindFilesystem, "validate-include", p.ID, err)
				}
			}
		case !e.IsDir() && name == underscored:
			// already in renamed form
		case e.IsDir() && name == dashDir:
			// permitted
		default:
			return bakeerr.Wrap(bakeerr.KindFilesystem, "validate-include", p.ID,
				fmt.Errorf("stray top-level entry %q in include tree for %s", name, p.ID))
		}
	}
	return nil
}

func findLicense(root string) string {
	for _, name := range []string{"LICENSE", "LICENSE.txt", "LICENSE.md", "COPYING"} {
		p := filepath.Join(root, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// mirrorTree copies src's contents into dst, as symlinks where the
// platform supports them, else plain file copies (spec §4.7
// "install-prebuild").
func mirrorTree(src, dst string) error {
	if !dirExists(src) {
		return nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		_ = os.Remove(target)
		if runtime.GOOS != "windows" {
			if err := os.Symlink(path, target); err == nil {
				return nil
			}
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
