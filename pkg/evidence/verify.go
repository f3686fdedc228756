package evidence

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// fuzzyThreshold is the minimum similarity score for a naming_issue
// suggestion to be offered.
const fuzzyThreshold = 0.55

// maxSuggestions bounds how many candidate paths are offered per hook.
const maxSuggestions = 3

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".spec": true,
}

// Verifier resolves evidence hooks against a repository root.
type Verifier struct {
	root string
}

// NewVerifier returns a Verifier rooted at root.
func NewVerifier(root string) *Verifier {
	return &Verifier{root: root}
}

// Verify classifies every task in tasks against the filesystem at v.root.
func (v *Verifier) Verify(tasks []Task) (Report, error) {
	verdicts := make([]Verdict, 0, len(tasks))
	for _, t := range tasks {
		verdicts = append(verdicts, v.verifyTask(t))
	}
	return NewReport(verdicts, time.Now().UTC()), nil
}

// hookOutcome is the per-hook resolution result. pathExists is tracked
// separately from fullyResolved so task-level classification can tell
// "this hook's path was never found" apart from "the path exists but a
// symbol/content predicate on it failed".
type hookOutcome struct {
	pathExists   bool
	fullyResolved bool
	reason       string
	naming       []Suggestion
	symbolIssue  bool
	contentIssue bool
}

func (v *Verifier) verifyTask(t Task) Verdict {
	verdict := Verdict{TaskID: t.ID, Title: t.Title}

	if len(t.Hooks) == 0 {
		verdict.Classification = ClassUnverifiable
		verdict.Reasons = []string{"task has no evidence hooks"}
		verdict.Priority = priorityFor(t.Claimed, ClassUnverifiable)
		return verdict
	}

	outcomes := make([]hookOutcome, len(t.Hooks))
	hasCode, hasTest := false, false
	codePathAny, testPathAny := false, false
	for i, h := range t.Hooks {
		o := v.resolveHook(h)
		outcomes[i] = o
		if h.Kind == HookTest {
			hasTest = true
			if o.pathExists {
				testPathAny = true
			}
		} else {
			hasCode = true
			if o.pathExists {
				codePathAny = true
			}
		}
		if !o.fullyResolved {
			verdict.Reasons = append(verdict.Reasons, o.reason)
			verdict.FailedHooks = append(verdict.FailedHooks, h)
			verdict.Suggestions = append(verdict.Suggestions, o.naming...)
		}
	}

	noCodeResolves := !hasCode || !codePathAny
	noTestResolves := !hasTest || !testPathAny

	switch {
	case noCodeResolves && noTestResolves:
		verdict.Classification = ClassNotImplemented
	case !noCodeResolves && noTestResolves:
		verdict.Classification = ClassMissingTests
	case !noTestResolves && noCodeResolves:
		verdict.Classification = ClassMissingCode
	default:
		verdict.Classification = worstPartialClass(outcomes)
	}

	verdict.Priority = priorityFor(t.Claimed, verdict.Classification)
	return verdict
}

// worstPartialClass is reached once both the code and test categories
// have at least one hook whose path was found; it reports the most
// severe remaining defect among the individual hooks, in the fixed
// order naming > symbol > content.
func worstPartialClass(outcomes []hookOutcome) Classification {
	hasNaming, hasSymbol, hasContent := false, false, false
	for _, o := range outcomes {
		if o.fullyResolved {
			continue
		}
		switch {
		case len(o.naming) > 0:
			hasNaming = true
		case o.symbolIssue:
			hasSymbol = true
		case o.contentIssue:
			hasContent = true
		}
	}
	switch {
	case hasNaming:
		return ClassNamingIssue
	case hasSymbol:
		return ClassSymbolIssue
	case hasContent:
		return ClassContentIssue
	}
	return ClassVerified
}

// resolveHook checks a single hook against the filesystem.
func (v *Verifier) resolveHook(h Hook) hookOutcome {
	full := filepath.Join(v.root, filepath.FromSlash(h.Path))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		suggestions := v.suggestPaths(h.Path)
		return hookOutcome{reason: "path not found: " + h.Path, naming: suggestions}
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return hookOutcome{pathExists: true, reason: "unable to read " + h.Path + ": " + err.Error()}
	}
	content := string(data)

	if h.Symbol != "" && !FindSymbol(content, h.Symbol) {
		return hookOutcome{pathExists: true, reason: "symbol not found: " + h.Symbol, symbolIssue: true}
	}
	if h.Contains != "" && !ContainsLiteral(content, h.Contains) {
		return hookOutcome{pathExists: true, reason: "literal not found in " + h.Path, contentIssue: true}
	}
	if h.Regex != "" && !MatchesRegex(content, h.Regex) {
		return hookOutcome{pathExists: true, reason: "regex did not match in " + h.Path, contentIssue: true}
	}

	return hookOutcome{pathExists: true, fullyResolved: true}
}

// suggestPaths finds up to maxSuggestions files similar to want's
// basename, scoped to want's parent directory. If that parent directory
// doesn't exist either, there is nothing in scope to suggest from.
func (v *Verifier) suggestPaths(want string) []Suggestion {
	parentRel := filepath.Dir(filepath.FromSlash(want))
	parentFull := filepath.Join(v.root, parentRel)
	entries, err := os.ReadDir(parentFull)
	if err != nil {
		return nil
	}

	type scored struct {
		path string
		sim  float64
	}
	var candidates []scored
	base := filepath.Base(want)
	for _, entry := range entries {
		if entry.IsDir() || skipDirs[entry.Name()] {
			continue
		}
		sim := similarity(base, entry.Name())
		if sim >= fuzzyThreshold {
			rel := filepath.ToSlash(filepath.Join(parentRel, entry.Name()))
			candidates = append(candidates, scored{rel, sim})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })

	n := maxSuggestions
	if len(candidates) < n {
		n = len(candidates)
	}
	out := make([]Suggestion, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Suggestion{Path: candidates[i].path, Similarity: candidates[i].sim})
	}
	return out
}

// priorityFor implements the fixed priority assignment: claimed tasks
// that fail verification outrank unclaimed gaps, which outrank
// symbol/content mismatches, which outrank naming suggestions.
func priorityFor(claimed bool, class Classification) int {
	if class == ClassVerified {
		return 0
	}
	if claimed {
		return 1
	}
	switch class {
	case ClassUnverifiable, ClassNotImplemented, ClassMissingTests, ClassMissingCode:
		return 2
	case ClassSymbolIssue, ClassContentIssue:
		return 3
	case ClassNamingIssue:
		return 4
	}
	return 4
}
