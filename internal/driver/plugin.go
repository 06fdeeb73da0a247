// Package driver implements the driver host (spec §4.4): loading a
// driver by logical id and handing it a vtable of registration and
// query callbacks. Go has no need for the teacher's shared-object +
// thread-local-context trick the spec describes for its original
// host language; a Plugin is a Go value registered in a process-wide
// Registry, and the (driver, project, config) triple the spec passes
// through thread-local storage is instead an explicit *CallContext
// argument threaded through every call (see SPEC_FULL.md §4.4).
package driver

// Plugin is the minimum every driver implements: an identity and a
// Register callback that declares its rule-graph nodes. Lifecycle and
// query hooks beyond Register are optional — a driver implements only
// the subset of Initializer/Generator/Builder/... below that applies
// to it, the same optional-interface idiom as io.Writer/io.Closer.
type Plugin interface {
	ID() string
	Register(reg *RegistrationContext) error
}

// Initializer is the optional "init" lifecycle callback (spec §4.4/§4.8
// step 2): runs once per project, before dependency checking.
type Initializer interface {
	Init(ctx *CallContext) error
}

// SetupRunner is the optional "setup" lifecycle callback. None of the
// orchestrator's build phases invokes it.
type SetupRunner interface {
	Setup(ctx *CallContext) error
}

// Generator is the optional "generate" lifecycle callback (spec §4.8
// step 4): codegen, run before the GENERATED-SOURCES subtree is
// evaluated.
type Generator interface {
	Generate(ctx *CallContext) error
}

// Prebuilder is the optional "prebuild" lifecycle callback (spec §4.8
// step 6).
type Prebuilder interface {
	Prebuild(ctx *CallContext) error
}

// Builder is the optional "build" lifecycle callback (spec §4.8 step 7),
// invoked after link resolution and before the rule engine runs on
// ARTEFACT.
type Builder interface {
	Build(ctx *CallContext) error
}

// Postbuilder is the optional "postbuild" lifecycle callback (spec
// §4.8 step 8).
type Postbuilder interface {
	Postbuild(ctx *CallContext) error
}

// Tester is the optional "test" lifecycle callback, invoked by the
// `bake test` subcommand.
type Tester interface {
	Test(ctx *CallContext) error
}

// Coverager is the optional "coverage" lifecycle callback, invoked by
// the `bake coverage` subcommand.
type Coverager interface {
	Coverage(ctx *CallContext) error
}

// Cleaner is the optional "clean" lifecycle callback (spec §4.8 clean
// phase).
type Cleaner interface {
	Clean(ctx *CallContext) error
}

// ArtefactNamer lets a driver compute the project's artefact filename
// (spec §4.4 "artefact-name... callbacks"). Most language drivers
// implement this; a driver that doesn't falls back to the project's
// id-underscored form.
type ArtefactNamer interface {
	ArtefactName(ctx *CallContext) (string, error)
}

// LinkResolver resolves one entry of a project's `link` attribute to
// an actual library path (spec §4.8 step 7 "link-to-lib callback").
// Only the language driver a project is bound to needs this.
type LinkResolver interface {
	LinkToLib(ctx *CallContext, libName string) (string, error)
}
