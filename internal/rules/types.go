// Package rules implements the rule engine (spec §4.5): the
// demand-driven evaluation graph of patterns and rules that drives
// incremental compilation for one project.
package rules

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// NodeKind distinguishes the four rule-graph node variants (spec §3
// "Rule-graph node").
type NodeKind int

const (
	KindPattern NodeKind = iota
	KindFile
	KindRule
	KindDependencyRule
)

// TargetKind distinguishes a Rule's three target forms (spec §3/§4.5).
type TargetKind int

const (
	// TargetMap is a 1-to-1 input->output mapping via a callback.
	TargetMap TargetKind = iota
	// TargetPattern aggregates N inputs into outputs named by other
	// nodes' patterns (N-to-1).
	TargetPattern
	// TargetFile aggregates N inputs into a single literal file.
	TargetFile
)

// SourceRef is one entry in a Rule's source spec: either a reference
// to another registered node by name, or an inline glob pattern
// evaluated in place (spec §3: "naming one or more dependency nodes
// and/or inline patterns").
type SourceRef struct {
	NodeName string // non-empty: a named dependency
	Pattern  string // non-empty when NodeName == "": an inline glob
}

// MapFunc computes an output filename from an input filename, for a
// Map-target rule.
type MapFunc func(ctx *EvalContext, input File) (string, error)

// ActionFunc is the callback a rule invokes when its output is stale.
// For a Map target, input/output are the single pair being rebuilt.
// For a Pattern/File target, input is the space-joined source list
// and output is the resolved single target path, or "" when more than
// one target file exists and the action must infer it (spec §4.5). A
// nil ActionFunc is a legal no-op rule used for pure aggregation (spec
// §9 design notes).
type ActionFunc func(ctx *EvalContext, input, output string) error

// ConditionFunc disables a node for a given project/config when it
// returns false (spec §3 "condition predicate").
type ConditionFunc func(ctx *EvalContext) bool

// ExpandFunc dynamically grows a DependencyRule's dependency set at
// evaluation time (spec §3: "used e.g. for compiler-generated .d
// files").
type ExpandFunc func(ctx *EvalContext) ([]SourceRef, error)

// Target describes what a Rule produces.
type Target struct {
	Kind  TargetKind
	Map   MapFunc  // TargetMap
	Nodes []string // TargetPattern: referenced node names, possibly "$NAME" for inherited
	File  string   // TargetFile: literal path (interpolated)
}

// Node is one registered rule-graph node.
type Node struct {
	Name      string
	Kind      NodeKind
	Glob      string // Pattern
	FilePath  string // File
	Source    []SourceRef
	Target    Target
	Action    ActionFunc
	Condition ConditionFunc
	Expand    ExpandFunc // DependencyRule only
}

// File is one record in a File-list: a base path, a filename relative
// to it, the combined path, and its modification time (spec §3
// "File-list").
type File struct {
	Base  string
	Name  string
	Path  string
	MTime time.Time
}

// Key returns a stable hash of the combined path, used to dedup
// File-lists without repeated string comparison (grounded in the
// teacher's FileID hashing — see SPEC_FULL.md §3 expansion).
func (f File) Key() uint64 {
	return xxhash.Sum64String(f.Path)
}

// FileList is the currency passed between rule-graph nodes.
type FileList []File

// Union returns the deduplicated concatenation of lists, preserving
// first-seen order.
func Union(lists ...FileList) FileList {
	seen := make(map[uint64]bool)
	var out FileList
	for _, l := range lists {
		for _, f := range l {
			k := f.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, f)
		}
	}
	return out
}

// MaxMTime returns the latest modification time in the list, or the
// zero Time if the list is empty (treated as mtime 0 per spec §4.5).
func (l FileList) MaxMTime() time.Time {
	var max time.Time
	for _, f := range l {
		if f.MTime.After(max) {
			max = f.MTime
		}
	}
	return max
}

// Paths returns the combined paths of every entry, in order.
func (l FileList) Paths() []string {
	out := make([]string, len(l))
	for i, f := range l {
		out[i] = f.Path
	}
	return out
}
