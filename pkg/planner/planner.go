package planner

import (
	"sort"
	"strings"

	"github.com/fsmirror/fsmirror/pkg/scanner"
)

// Mode selects how the destination is reconciled against the source.
type Mode string

const (
	// ModeUpdateOnly copies new and newer files; destination-only items are
	// left untouched.
	ModeUpdateOnly Mode = "update-only"
	// ModeMirror makes the destination an exact reflection of the source,
	// including deletions.
	ModeMirror Mode = "mirror"
)

// Kind is the kind of a planned action.
type Kind string

const (
	KindCreateDirectory Kind = "create-directory"
	KindCopyFile        Kind = "copy-file"
	KindDeleteFile      Kind = "delete-file"
	KindDeleteDirectory Kind = "delete-directory"
	// KindSkip marks a path the planner refuses to touch, currently only
	// file/directory type mismatches. Skips are reported, never executed.
	KindSkip Kind = "skip"
)

// Action is one planned change to the destination tree. Actions are value
// objects generated once by Plan and consumed exactly once by the executor.
type Action struct {
	Kind Kind
	// Entry is the source entry for creates and copies, the destination
	// entry for deletes and skips.
	Entry scanner.Entry
	// TargetPath is the destination-relative path the action operates on.
	TargetPath string
	// Depth is the number of path separators in TargetPath. Creates and
	// copies run shallow-first, deletes deep-first.
	Depth  int
	Reason string
}

// Options configures plan generation.
type Options struct {
	Mode Mode
}

// Plan diffs two metadata snapshots into an ordered action list. Pure
// function: no I/O, deterministic for identical inputs.
//
// The returned slice encodes the execution order: creates before copies
// before file deletions before directory deletions; creates and copies
// shallow-first so parents exist before their children, deletions deep-first
// so children are removed before their parent.
func Plan(source, dest []scanner.Entry, opts Options) []Action {
	destByPath := make(map[string]scanner.Entry, len(dest))
	for _, d := range dest {
		destByPath[d.RelPath] = d
	}

	var actions []Action

	for _, s := range source {
		d, exists := destByPath[s.RelPath]
		switch {
		case !exists:
			kind := KindCopyFile
			if s.IsDir {
				kind = KindCreateDirectory
			}
			actions = append(actions, newAction(kind, s, "missing from destination"))
		case s.IsDir != d.IsDir:
			actions = append(actions, newAction(KindSkip, d, "type mismatch"))
		case !s.IsDir && s.ModTime.After(d.ModTime):
			// Strictly newer only; equal timestamps are in sync.
			actions = append(actions, newAction(KindCopyFile, s, "source newer"))
		}
	}

	if opts.Mode == ModeMirror {
		sourceByPath := make(map[string]scanner.Entry, len(source))
		for _, s := range source {
			sourceByPath[s.RelPath] = s
		}
		for _, d := range dest {
			if _, exists := sourceByPath[d.RelPath]; exists {
				continue
			}
			kind := KindDeleteFile
			if d.IsDir {
				kind = KindDeleteDirectory
			}
			actions = append(actions, newAction(kind, d, "missing from source"))
		}
	}

	sortActions(actions)
	return actions
}

func newAction(kind Kind, entry scanner.Entry, reason string) Action {
	return Action{
		Kind:       kind,
		Entry:      entry,
		TargetPath: entry.RelPath,
		Depth:      strings.Count(entry.RelPath, "/"),
		Reason:     reason,
	}
}

var kindRank = map[Kind]int{
	KindCreateDirectory: 0,
	KindCopyFile:        1,
	KindDeleteFile:      2,
	KindDeleteDirectory: 3,
	KindSkip:            4,
}

func sortActions(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Kind != b.Kind {
			return kindRank[a.Kind] < kindRank[b.Kind]
		}
		switch a.Kind {
		case KindDeleteFile, KindDeleteDirectory:
			if a.Depth != b.Depth {
				return a.Depth > b.Depth
			}
		case KindCreateDirectory, KindCopyFile:
			if a.Depth != b.Depth {
				return a.Depth < b.Depth
			}
		}
		return a.TargetPath < b.TargetPath
	})
}
