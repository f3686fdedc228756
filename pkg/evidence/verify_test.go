package evidence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, root string, rel string, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestVerifyClassifications(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "pkg/widget/widget.go", "package widget\n\nfunc New() *Widget { return nil }\n")
	writeFixture(t, root, "pkg/widget/widget_test.go", "package widget\n\nfunc TestNew(t *testing.T) {}\n")

	tasks := []Task{
		{ID: "zero-hooks", Claimed: true},
		{ID: "not-implemented", Claimed: false, Hooks: []Hook{{Kind: HookCode, Path: "pkg/widget/missing.go"}}},
		{ID: "missing-tests", Claimed: false, Hooks: []Hook{
			{Kind: HookCode, Path: "pkg/widget/widget.go"},
			{Kind: HookTest, Path: "pkg/widget/missing_test.go"},
		}},
		{ID: "missing-code", Claimed: false, Hooks: []Hook{
			{Kind: HookCode, Path: "pkg/widget/missing.go"},
			{Kind: HookTest, Path: "pkg/widget/widget_test.go"},
		}},
		{ID: "symbol-issue", Claimed: false, Hooks: []Hook{
			{Kind: HookCode, Path: "pkg/widget/widget.go", Symbol: "Nope"},
			{Kind: HookTest, Path: "pkg/widget/widget_test.go"},
		}},
		{ID: "content-issue", Claimed: false, Hooks: []Hook{
			{Kind: HookCode, Path: "pkg/widget/widget.go", Contains: "not-there"},
			{Kind: HookTest, Path: "pkg/widget/widget_test.go"},
		}},
		{ID: "verified", Claimed: true, Hooks: []Hook{
			{Kind: HookCode, Path: "pkg/widget/widget.go", Symbol: "New"},
			{Kind: HookTest, Path: "pkg/widget/widget_test.go"},
		}},
	}

	v := NewVerifier(root)
	report, err := v.Verify(tasks)
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 7)

	byID := map[string]Verdict{}
	for _, vd := range report.Verdicts {
		byID[vd.TaskID] = vd
	}

	require.Equal(t, ClassUnverifiable, byID["zero-hooks"].Classification)
	require.Equal(t, 1, byID["zero-hooks"].Priority)

	require.Equal(t, ClassNotImplemented, byID["not-implemented"].Classification)
	require.Equal(t, 2, byID["not-implemented"].Priority)

	require.Equal(t, ClassMissingTests, byID["missing-tests"].Classification)
	require.Equal(t, ClassMissingCode, byID["missing-code"].Classification)
	require.Equal(t, ClassSymbolIssue, byID["symbol-issue"].Classification)
	require.Equal(t, ClassContentIssue, byID["content-issue"].Classification)
	require.Equal(t, ClassVerified, byID["verified"].Classification)
	require.Equal(t, 0, byID["verified"].Priority)
}

func TestVerifyNamingIssueSuggestsSimilarPath(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "pkg/widget/widget.go", "package widget\n")
	writeFixture(t, root, "pkg/widget/widget_test.go", "package widget\n")

	tasks := []Task{
		{ID: "typo", Hooks: []Hook{
			{Kind: HookCode, Path: "pkg/widget/widgett.go"},
			{Kind: HookTest, Path: "pkg/widget/widget_test.go"},
		}},
	}
	v := NewVerifier(root)
	report, err := v.Verify(tasks)
	require.NoError(t, err)
	require.Equal(t, ClassNamingIssue, report.Verdicts[0].Classification)
	require.NotEmpty(t, report.Verdicts[0].Suggestions)
	require.LessOrEqual(t, len(report.Verdicts[0].Suggestions), maxSuggestions)
}

func TestSuggestPathsScopedToParentDirectory(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "pkg/widget/widget.go", "package widget\n")
	// Same basename in an unrelated directory must never be suggested
	// for a typo under pkg/widget/.
	writeFixture(t, root, "pkg/other/widget.go", "package other\n")

	v := NewVerifier(root)
	suggestions := v.suggestPaths("pkg/widget/widgett.go")
	require.NotEmpty(t, suggestions)
	for _, s := range suggestions {
		require.Equal(t, "pkg/widget/widget.go", s.Path)
	}
}

func TestSuggestPathsEmptyWhenParentDirectoryMissing(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "pkg/widget/widget.go", "package widget\n")

	v := NewVerifier(root)
	suggestions := v.suggestPaths("pkg/nonexistent/widgett.go")
	require.Empty(t, suggestions)
}

func TestVerifyIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.go", "package a\nfunc F() {}\n")
	writeFixture(t, root, "a_test.go", "package a\nfunc TestF(t *testing.T) {}\n")
	tasks := []Task{{ID: "t", Hooks: []Hook{
		{Kind: HookCode, Path: "a.go", Symbol: "F"},
		{Kind: HookTest, Path: "a_test.go"},
	}}}

	v1 := NewVerifier(root)
	r1, err := v1.Verify(tasks)
	require.NoError(t, err)

	v2 := NewVerifier(root)
	r2, err := v2.Verify(tasks)
	require.NoError(t, err)

	require.Equal(t, r1.Verdicts, r2.Verdicts)
	require.Equal(t, r1.Counts, r2.Counts)
}
