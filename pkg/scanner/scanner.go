package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"

	"github.com/fsmirror/fsmirror/pkg/logger"
	"github.com/fsmirror/fsmirror/pkg/progress"
)

// Entry is the metadata of one scanned item. Entries are immutable once
// returned and are never re-scanned mid-sync.
type Entry struct {
	FullPath string // display path, scan root joined with RelPath
	RelPath  string // forward-slash path relative to the scan root, unique per scan
	Name     string
	Size     int64     // 0 for directories
	ModTime  time.Time // UTC
	IsDir    bool
	Mode     os.FileMode // platform attribute bits, passed through unevaluated
}

// Options configures a scan.
type Options struct {
	// Root is the display path of the scanned tree, used to build FullPath.
	// The filesystem passed to Scan is already rooted there.
	Root string

	// Excludes are doublestar patterns matched against RelPath. A pattern
	// ending in "/" excludes a whole subtree.
	Excludes []string

	Logger   logger.Logger
	Progress *progress.Tracker
}

// Scan walks the filesystem depth-first with an explicit directory stack and
// returns metadata for every item under the root, root excluded. No file
// content is read. Enumeration failures below the root are logged and the
// affected item or subtree is skipped; only a root that cannot be enumerated
// fails the scan.
func Scan(fsys billy.Filesystem, opts Options) ([]Entry, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Null{}
	}
	if opts.Progress != nil {
		opts.Progress.BeginPhase(progress.PhaseScanning, progress.TotalUnknown, progress.TotalUnknown)
	}

	var entries []Entry

	// Directories are recorded as entries when first seen, then expanded
	// later from the stack. The root itself is not recorded.
	stack := []string{"."}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := fsys.ReadDir(dir)
		if err != nil {
			if dir == "." {
				return nil, fmt.Errorf("scan root %s: %w", opts.Root, err)
			}
			log.Error("scan %s: %v", filepath.Join(opts.Root, filepath.FromSlash(dir)), err)
			continue
		}

		for _, child := range children {
			rel := child.Name()
			if dir != "." {
				rel = dir + "/" + child.Name()
			}

			if isExcluded(rel, opts.Excludes) {
				continue
			}

			entry := Entry{
				FullPath: filepath.Join(opts.Root, filepath.FromSlash(rel)),
				RelPath:  rel,
				Name:     child.Name(),
				ModTime:  child.ModTime().UTC(),
				IsDir:    child.IsDir(),
				Mode:     child.Mode(),
			}
			if !child.IsDir() {
				entry.Size = child.Size()
			}
			entries = append(entries, entry)

			if opts.Progress != nil {
				opts.Progress.Item(rel, 0)
			}

			if child.IsDir() {
				stack = append(stack, rel)
			}
		}
	}

	return entries, nil
}

// isExcluded checks a relative path against the exclude patterns. Directory
// patterns (trailing "/") match the directory itself and everything below it.
func isExcluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			dirPattern := strings.TrimSuffix(pattern, "/")
			if matched, _ := doublestar.Match(dirPattern, rel); matched {
				return true
			}
			parts := strings.Split(rel, "/")
			for i := 1; i <= len(parts); i++ {
				if matched, _ := doublestar.Match(dirPattern, strings.Join(parts[:i], "/")); matched {
					return true
				}
			}
			continue
		}
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}
