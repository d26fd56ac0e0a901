package logger

import (
	"fmt"
	"os"
	"time"
)

// Logger receives human-facing sync output. Implementations must be safe for
// concurrent use; the executor logs from multiple workers.
type Logger interface {
	Info(format string, args ...any)
	Debug(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	// Action logs one planned or executed action as "kind: path".
	Action(kind, path string)
}

// Std writes to stdout/stderr, honoring the quiet and verbose flags.
type Std struct {
	Quiet   bool
	Verbose bool
}

func (l *Std) Info(format string, args ...any) {
	if !l.Quiet {
		fmt.Printf(format+"\n", args...)
	}
}

func (l *Std) Debug(format string, args ...any) {
	if l.Verbose && !l.Quiet {
		fmt.Printf("DEBUG: "+format+"\n", args...)
	}
}

func (l *Std) Warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "WARNING: "+format+"\n", args...)
}

func (l *Std) Error(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
}

func (l *Std) Action(kind, path string) {
	if !l.Quiet {
		fmt.Printf("%s: %s\n", kind, path)
	}
}

// Summary is the end-of-run accounting printed by the CLI.
type Summary struct {
	Created     int
	Updated     int
	Deleted     int
	Skipped     int
	Failed      int
	BytesCopied int64
	Duration    time.Duration
}

// PrintSummary prints the end-of-run summary. Suppressed in quiet mode
// unless something failed.
func (l *Std) PrintSummary(s Summary) {
	if l.Quiet && s.Failed == 0 {
		return
	}

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Created: %d\n", s.Created)
	fmt.Printf("Updated: %d\n", s.Updated)
	fmt.Printf("Deleted: %d\n", s.Deleted)
	fmt.Printf("Copied: %s\n", FormatBytes(s.BytesCopied))
	if s.Skipped > 0 {
		fmt.Printf("Skipped: %d\n", s.Skipped)
	}
	if s.Failed > 0 {
		fmt.Printf("Failed: %d\n", s.Failed)
	}
	fmt.Printf("Duration: %s\n", s.Duration.Round(time.Millisecond))
}

// Null discards everything.
type Null struct{}

func (Null) Info(format string, args ...any)  {}
func (Null) Debug(format string, args ...any) {}
func (Null) Warn(format string, args ...any)  {}
func (Null) Error(format string, args ...any) {}
func (Null) Action(kind, path string)         {}

// FormatBytes formats bytes in human readable format.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
