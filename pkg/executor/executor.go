package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/fsmirror/fsmirror/pkg/logger"
	"github.com/fsmirror/fsmirror/pkg/planner"
	"github.com/fsmirror/fsmirror/pkg/progress"
)

const defaultConcurrency = 8

// Result is the outcome of one action.
type Result struct {
	Action planner.Action
	Error  error
}

// Options configures an executor.
type Options struct {
	Concurrency int
	Logger      logger.Logger
	Progress    *progress.Tracker
}

// Executor applies a plan to the destination filesystem. It never mutates
// the source.
type Executor struct {
	source      billy.Filesystem
	dest        billy.Filesystem
	concurrency int
	log         logger.Logger
	tracker     *progress.Tracker
}

// New creates an executor copying from source to dest.
func New(source, dest billy.Filesystem, opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	log := opts.Logger
	if log == nil {
		log = logger.Null{}
	}
	tracker := opts.Progress
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	return &Executor{
		source:      source,
		dest:        dest,
		concurrency: opts.Concurrency,
		log:         log,
		tracker:     tracker,
	}
}

// groupOrder is the correctness-critical execution order: a file cannot be
// copied into a directory that does not yet exist, and a directory cannot be
// removed while the plan still holds files inside it.
var groupOrder = []planner.Kind{
	planner.KindCreateDirectory,
	planner.KindCopyFile,
	planner.KindDeleteFile,
	planner.KindDeleteDirectory,
}

// Execute applies the action list grouped by kind. Directory creation runs
// sequentially; the other groups run with bounded parallelism, with a join
// barrier between groups. A failed action is logged and abandoned without
// stopping sibling actions or later groups.
func (e *Executor) Execute(ctx context.Context, actions []planner.Action) []Result {
	results := make([]Result, len(actions))
	for i, a := range actions {
		results[i] = Result{Action: a}
	}

	for _, kind := range groupOrder {
		var group []int
		for i, a := range actions {
			if a.Kind == kind {
				group = append(group, i)
			}
		}
		if len(group) == 0 {
			continue
		}

		e.tracker.BeginPhase(phaseFor(kind), int64(len(group)), groupBytes(kind, actions, group))

		if kind == planner.KindCreateDirectory {
			// Sequential: idempotent and cheap, parallelism buys nothing here.
			for _, idx := range group {
				results[idx].Error = e.run(ctx, actions[idx])
			}
			continue
		}

		sem := make(chan struct{}, e.concurrency)
		var wg sync.WaitGroup
		for _, idx := range group {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()

				sem <- struct{}{}
				defer func() { <-sem }()

				results[idx].Error = e.run(ctx, actions[idx])
			}(idx)
		}
		wg.Wait()
	}

	e.tracker.Finish()
	return results
}

// run applies a single action, logs any failure with its kind and path, and
// records progress whether or not the action succeeded.
func (e *Executor) run(ctx context.Context, a planner.Action) error {
	err := ctx.Err()
	if err == nil {
		e.log.Action(string(a.Kind), a.TargetPath)
		err = e.apply(a)
	}
	if err != nil {
		e.log.Error("%s %s: %v", a.Kind, a.TargetPath, err)
	}
	e.tracker.Item(a.TargetPath, actionBytes(a))
	return err
}

func (e *Executor) apply(a planner.Action) error {
	switch a.Kind {
	case planner.KindCreateDirectory:
		return e.createDirectory(a)
	case planner.KindCopyFile:
		return e.copyFile(a)
	case planner.KindDeleteFile:
		return e.deleteFile(a)
	case planner.KindDeleteDirectory:
		return e.deleteDirectory(a)
	default:
		return nil
	}
}

func (e *Executor) createDirectory(a planner.Action) error {
	if err := e.dest.MkdirAll(a.TargetPath, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return nil
}

func (e *Executor) copyFile(a planner.Action) error {
	// The directory group has already run, but re-check the parent in case
	// an external actor removed it in the meantime.
	if parent := path.Dir(a.TargetPath); parent != "." {
		if err := e.dest.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("create parent directory: %w", err)
		}
	}

	src, err := e.source.Open(a.Entry.RelPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := e.dest.Create(a.TargetPath)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close target: %w", err)
	}

	// Preserve the source mtime where the filesystem supports it, so a
	// re-run plans no copy for this file. Best effort.
	if ch, ok := e.dest.(billy.Change); ok {
		_ = ch.Chtimes(a.TargetPath, a.Entry.ModTime, a.Entry.ModTime)
	}
	return nil
}

func (e *Executor) deleteFile(a planner.Action) error {
	err := e.dest.Remove(a.TargetPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (e *Executor) deleteDirectory(a planner.Action) error {
	if err := util.RemoveAll(e.dest, a.TargetPath); err != nil {
		return fmt.Errorf("delete directory: %w", err)
	}
	return nil
}

func phaseFor(kind planner.Kind) progress.Phase {
	switch kind {
	case planner.KindCreateDirectory:
		return progress.PhaseCreateDirectory
	case planner.KindCopyFile:
		return progress.PhaseCopyFile
	case planner.KindDeleteFile:
		return progress.PhaseDeleteFile
	default:
		return progress.PhaseDeleteDirectory
	}
}

// groupBytes sums source file sizes for a copy group. Byte totals are only
// meaningful for copies.
func groupBytes(kind planner.Kind, actions []planner.Action, group []int) int64 {
	if kind != planner.KindCopyFile {
		return 0
	}
	var total int64
	for _, idx := range group {
		total += actions[idx].Entry.Size
	}
	return total
}

func actionBytes(a planner.Action) int64 {
	if a.Kind == planner.KindCopyFile {
		return a.Entry.Size
	}
	return 0
}
