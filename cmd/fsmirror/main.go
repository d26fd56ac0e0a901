package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/fsmirror/fsmirror/pkg/executor"
	"github.com/fsmirror/fsmirror/pkg/logger"
	"github.com/fsmirror/fsmirror/pkg/planner"
	"github.com/fsmirror/fsmirror/pkg/progress"
	"github.com/fsmirror/fsmirror/pkg/scanner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var (
	mirror         bool
	dryRun         bool
	excludes       []string
	quiet          bool
	verbose        bool
	concurrency    int
	planJSONFile   string
	resultJSONFile string
)

// PlanResult represents the planned operations before execution
type PlanResult struct {
	Files   []PlanFile  `json:"files"`
	Summary PlanSummary `json:"summary"`
}

type PlanFile struct {
	Action string `json:"action"` // "skip", "create", "update", "delete"
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

type PlanSummary struct {
	Skip   int `json:"skip"`
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
}

// SyncResult represents the actual execution results
type SyncResult struct {
	Files   []ResultFile  `json:"files"`
	Errors  []ErrorFile   `json:"errors"`
	Summary ResultSummary `json:"summary"`
}

type ResultFile struct {
	Action string `json:"action"` // "skipped", "created", "updated", "deleted"
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
}

type ErrorFile struct {
	Action string `json:"action"`
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

type ResultSummary struct {
	Skipped int `json:"skipped"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "fsmirror <SourceDir> <DestDir>",
		Short: "Metadata-driven directory tree synchronization tool",
		Long: `fsmirror synchronizes a destination directory tree to match a source tree,
using file metadata (path, size, modification time) to decide what to copy
or delete. No file content is compared.`,
		Version: fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:    cobra.ExactArgs(2),
		RunE:    run,
	}

	rootCmd.Flags().BoolVar(&mirror, "mirror", false, "Delete destination items not in source")
	rootCmd.Flags().BoolVar(&dryRun, "dryrun", false, "Shows operations without executing")
	rootCmd.Flags().StringSliceVar(&excludes, "exclude", nil, "Exclude patterns (multiple allowed)")
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress non-error output")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "Log progress details")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 8, "Number of concurrent operations")
	rootCmd.Flags().StringVar(&planJSONFile, "plan-json-file", "", "Path to output plan as JSON file")
	rootCmd.Flags().StringVar(&resultJSONFile, "result-json-file", "", "Path to output result as JSON file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	sourceRoot, err := validateRoot(args[0])
	if err != nil {
		return err
	}
	destRoot, err := ensureRoot(args[1])
	if err != nil {
		return err
	}

	ctx := context.Background()
	log := &logger.Std{Quiet: quiet, Verbose: verbose}
	tracker := progress.NewTracker(progressSink(log))
	started := time.Now()

	sourceFS := osfs.New(sourceRoot)
	destFS := osfs.New(destRoot)

	sourceEntries, err := scanner.Scan(sourceFS, scanner.Options{
		Root:     sourceRoot,
		Excludes: excludes,
		Logger:   log,
		Progress: tracker,
	})
	if err != nil {
		return fmt.Errorf("failed to scan source: %w", err)
	}

	destEntries, err := scanner.Scan(destFS, scanner.Options{
		Root:     destRoot,
		Excludes: excludes,
		Logger:   log,
		Progress: tracker,
	})
	if err != nil {
		return fmt.Errorf("failed to scan destination: %w", err)
	}

	mode := planner.ModeUpdateOnly
	if mirror {
		mode = planner.ModeMirror
	}

	tracker.BeginPhase(progress.PhaseComparing, progress.TotalUnknown, progress.TotalUnknown)
	actions := planner.Plan(sourceEntries, destEntries, planner.Options{Mode: mode})

	for _, a := range actions {
		if a.Kind == planner.KindSkip {
			log.Warn("skipping %s: %s", a.TargetPath, a.Reason)
		}
	}

	if planJSONFile != "" {
		if err := writePlanResult(planJSONFile, actions, sourceRoot, destRoot); err != nil {
			return fmt.Errorf("failed to write plan JSON: %w", err)
		}
	}

	if dryRun {
		for _, a := range actions {
			if a.Kind != planner.KindSkip {
				log.Action(string(a.Kind), filepath.Join(destRoot, filepath.FromSlash(a.TargetPath)))
			}
		}
		return nil
	}

	exec := executor.New(sourceFS, destFS, executor.Options{
		Concurrency: concurrency,
		Logger:      log,
		Progress:    tracker,
	})
	results := exec.Execute(ctx, actions)

	syncResult := buildSyncResult(results, sourceRoot, destRoot)

	if resultJSONFile != "" {
		if err := writeSyncResult(resultJSONFile, syncResult); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	log.PrintSummary(logger.Summary{
		Created:     syncResult.Summary.Created,
		Updated:     syncResult.Summary.Updated,
		Deleted:     syncResult.Summary.Deleted,
		Skipped:     syncResult.Summary.Skipped,
		Failed:      syncResult.Summary.Failed,
		BytesCopied: copiedBytes(results),
		Duration:    time.Since(started),
	})

	if syncResult.Summary.Failed > 0 {
		return fmt.Errorf("%d actions failed", syncResult.Summary.Failed)
	}
	return nil
}

// validateRoot resolves a root argument and requires it to be an existing
// directory.
func validateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root is not a directory: %s", abs)
	}
	return abs, nil
}

// ensureRoot resolves the destination argument, creating the directory when
// it does not exist yet.
func ensureRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", fmt.Errorf("create destination: %w", err)
		}
		return abs, nil
	}
	if err != nil {
		return "", fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root is not a directory: %s", abs)
	}
	return abs, nil
}

// progressSink turns progress reports into verbose log lines. Terminal
// rendering of a progress bar is left to callers embedding the packages.
func progressSink(log logger.Logger) progress.Func {
	return func(r progress.Report) {
		if r.TotalItems == progress.TotalUnknown {
			log.Debug("[%s] %d items, current: %s", r.Phase, r.ItemsProcessed, r.CurrentItem)
			return
		}
		log.Debug("[%s] %d/%d items, %s/%s", r.Phase, r.ItemsProcessed, r.TotalItems,
			logger.FormatBytes(r.BytesProcessed), logger.FormatBytes(r.TotalBytes))
	}
}

func writePlanResult(path string, actions []planner.Action, sourceRoot, destRoot string) error {
	plan := PlanResult{Files: []PlanFile{}}

	for _, a := range actions {
		target := filepath.Join(destRoot, filepath.FromSlash(a.TargetPath))
		var file PlanFile
		switch a.Kind {
		case planner.KindCreateDirectory, planner.KindCopyFile:
			action := planActionName(a)
			file = PlanFile{
				Action: action,
				Source: filepath.Join(sourceRoot, filepath.FromSlash(a.Entry.RelPath)),
				Target: target,
				Reason: a.Reason,
			}
			if action == "create" {
				plan.Summary.Create++
			} else {
				plan.Summary.Update++
			}
		case planner.KindDeleteFile, planner.KindDeleteDirectory:
			file = PlanFile{
				Action: "delete",
				Target: target,
				Reason: a.Reason,
			}
			plan.Summary.Delete++
		case planner.KindSkip:
			file = PlanFile{
				Action: "skip",
				Target: target,
				Reason: a.Reason,
			}
			plan.Summary.Skip++
		}
		plan.Files = append(plan.Files, file)
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func buildSyncResult(results []executor.Result, sourceRoot, destRoot string) SyncResult {
	syncResult := SyncResult{
		Files:  []ResultFile{},
		Errors: []ErrorFile{},
	}

	for _, result := range results {
		a := result.Action
		target := filepath.Join(destRoot, filepath.FromSlash(a.TargetPath))

		if result.Error != nil {
			errorFile := ErrorFile{
				Action: planActionName(a),
				Target: target,
				Error:  result.Error.Error(),
			}
			if a.Kind == planner.KindCreateDirectory || a.Kind == planner.KindCopyFile {
				errorFile.Source = filepath.Join(sourceRoot, filepath.FromSlash(a.Entry.RelPath))
			}
			syncResult.Errors = append(syncResult.Errors, errorFile)
			syncResult.Summary.Failed++
			continue
		}

		switch a.Kind {
		case planner.KindCreateDirectory, planner.KindCopyFile:
			action := "created"
			if planActionName(a) == "update" {
				action = "updated"
				syncResult.Summary.Updated++
			} else {
				syncResult.Summary.Created++
			}
			syncResult.Files = append(syncResult.Files, ResultFile{
				Action: action,
				Source: filepath.Join(sourceRoot, filepath.FromSlash(a.Entry.RelPath)),
				Target: target,
			})
		case planner.KindDeleteFile, planner.KindDeleteDirectory:
			syncResult.Files = append(syncResult.Files, ResultFile{
				Action: "deleted",
				Target: target,
			})
			syncResult.Summary.Deleted++
		case planner.KindSkip:
			syncResult.Files = append(syncResult.Files, ResultFile{
				Action: "skipped",
				Target: target,
			})
			syncResult.Summary.Skipped++
		}
	}

	return syncResult
}

func writeSyncResult(path string, result SyncResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// planActionName maps an action to the create/update/delete/skip vocabulary
// of the JSON reports.
func planActionName(a planner.Action) string {
	switch a.Kind {
	case planner.KindCreateDirectory:
		return "create"
	case planner.KindCopyFile:
		if a.Reason == "source newer" {
			return "update"
		}
		return "create"
	case planner.KindDeleteFile, planner.KindDeleteDirectory:
		return "delete"
	default:
		return "skip"
	}
}

func copiedBytes(results []executor.Result) int64 {
	var total int64
	for _, r := range results {
		if r.Error == nil && r.Action.Kind == planner.KindCopyFile {
			total += r.Action.Entry.Size
		}
	}
	return total
}
