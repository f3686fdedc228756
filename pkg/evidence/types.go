// Package evidence implements the verification of claimed task
// completion against real repository state: parsing evidence hooks
// out of tasks.md, resolving each against the filesystem, and
// classifying the result into a deterministic verdict.
package evidence

import "time"

// HookKind names the predicate a hook checks.
type HookKind string

const (
	HookCode HookKind = "code"
	HookTest HookKind = "test"
	HookDoc  HookKind = "doc"
)

// Hook is a single `evidence:` line attached to a task.
type Hook struct {
	Kind     HookKind
	Path     string
	Symbol   string
	Contains string
	Regex    string
	Line     int // 1-based line number within tasks.md
	Raw      string
}

// Task is one unit of claimed work inside tasks.md.
type Task struct {
	ID       string
	Title    string
	Claimed  bool // checkbox is [x]
	Priority int  // not set by ParseTasks or Verify; see Verdict.Priority (priorityFor)
	Hooks    []Hook
	Line     int
}

// Classification is the deterministic outcome of verifying one task.
type Classification string

const (
	ClassUnverifiable   Classification = "unverifiable" // zero evidence hooks
	ClassNotImplemented Classification = "not_implemented"
	ClassMissingTests   Classification = "missing_tests"
	ClassMissingCode    Classification = "missing_code"
	ClassNamingIssue    Classification = "naming_issue"
	ClassSymbolIssue    Classification = "symbol_issue"
	ClassContentIssue   Classification = "content_issue"
	ClassVerified       Classification = "verified"
)

// Suggestion is a candidate repaired path offered for a naming_issue.
type Suggestion struct {
	Path       string
	Similarity float64
}

// Verdict is the classification result for one task.
type Verdict struct {
	TaskID         string
	Title          string
	Classification Classification
	Priority       int
	Reasons        []string
	Suggestions    []Suggestion
	FailedHooks    []Hook
}

// Report aggregates verdicts for an entire tasks.md file.
type Report struct {
	GeneratedAt time.Time
	Verdicts    []Verdict
	Counts      map[Classification]int
}

// NewReport tallies Counts from the given verdicts.
func NewReport(verdicts []Verdict, generatedAt time.Time) Report {
	counts := map[Classification]int{
		ClassUnverifiable:   0,
		ClassNotImplemented: 0,
		ClassMissingTests:   0,
		ClassMissingCode:    0,
		ClassNamingIssue:    0,
		ClassSymbolIssue:    0,
		ClassContentIssue:   0,
		ClassVerified:       0,
	}
	for _, v := range verdicts {
		counts[v.Classification]++
	}
	return Report{GeneratedAt: generatedAt, Verdicts: verdicts, Counts: counts}
}
