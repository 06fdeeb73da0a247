// Package bakeerr defines the eight error kinds surfaced by the bake
// core (see spec §7) as a single typed error with wrapping, so the
// orchestrator can decide per-kind whether a project is skipped,
// marked failed, or treated as a hard abort.
package bakeerr

import "fmt"

// Kind identifies one of the eight error classes the core produces.
type Kind int

const (
	// KindManifestParse covers malformed JSON, unknown project type,
	// or an illegal id character. The project is skipped; crawling
	// continues.
	KindManifestParse Kind = iota
	// KindDriverRegistration covers a rule naming a missing
	// dependency or a node re-declared with a conflicting kind. The
	// driver's error flag is set; projects using it cannot be built.
	KindDriverRegistration
	// KindDriverCallback covers an action that set the project's
	// error flag. The project is marked failed; dependents still walk.
	KindDriverCallback
	// KindSubprocessExec covers a nonzero exit or signal from exec.
	// Surfaces as KindDriverCallback's sibling.
	KindSubprocessExec
	// KindFilesystem covers a missing file, permission error, or
	// rename failure.
	KindFilesystem
	// KindCycle is reported once at the end of a walk whose
	// built-count fell short of the total project count.
	KindCycle
	// KindAmbiguousDependency is a hard error raised before any build
	// begins: the same project id was found at two different paths.
	KindAmbiguousDependency
	// KindConfigConflict is a hard error raised during post-discovery
	// when a dependee contributes a scalar attribute that conflicts
	// with an already-set value.
	KindConfigConflict
)

func (k Kind) String() string {
	switch k {
	case KindManifestParse:
		return "manifest-parse"
	case KindDriverRegistration:
		return "driver-registration"
	case KindDriverCallback:
		return "driver-callback"
	case KindSubprocessExec:
		return "subprocess-exec"
	case KindFilesystem:
		return "filesystem"
	case KindCycle:
		return "cycle"
	case KindAmbiguousDependency:
		return "ambiguous-dependency"
	case KindConfigConflict:
		return "config-conflict"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by every core component. Op names
// the operation that failed (e.g. "locate", "rule-engine:ARTEFACT");
// Project is the logical id of the project in scope, if any.
type Error struct {
	Kind    Kind
	Op      string
	Project string
	Err     error
}

func (e *Error) Error() string {
	if e.Project != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Op, e.Project, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds a *Error, attributing it to the given op/project.
func Wrap(kind Kind, op, project string, err error) *Error {
	return &Error{Kind: kind, Op: op, Project: project, Err: err}
}

// Is reports whether err is a bakeerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var be *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			be = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return be != nil && be.Kind == kind
}
