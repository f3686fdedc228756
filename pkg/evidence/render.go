package evidence

import (
	"fmt"
	"strings"
)

// Render produces the human-readable Markdown rendering of a Report,
// kept deliberately separate from the structured Report so callers that
// only need the counts never pay for string building.
func Render(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Verification Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))

	fmt.Fprintf(&b, "## Summary\n\n")
	for _, c := range []Classification{
		ClassVerified, ClassUnverifiable, ClassNotImplemented, ClassMissingTests, ClassMissingCode,
		ClassNamingIssue, ClassSymbolIssue, ClassContentIssue,
	} {
		fmt.Fprintf(&b, "- %s: %d\n", c, r.Counts[c])
	}
	b.WriteString("\n## Tasks\n\n")

	for _, v := range r.Verdicts {
		fmt.Fprintf(&b, "### %s\n\n", v.Title)
		fmt.Fprintf(&b, "- id: `%s`\n", v.TaskID)
		fmt.Fprintf(&b, "- classification: **%s**\n", v.Classification)
		fmt.Fprintf(&b, "- priority: %d\n", v.Priority)
		for _, reason := range v.Reasons {
			fmt.Fprintf(&b, "- reason: %s\n", reason)
		}
		for _, s := range v.Suggestions {
			fmt.Fprintf(&b, "- suggestion: `%s` (similarity %.2f)\n", s.Path, s.Similarity)
		}
		b.WriteString("\n")
	}

	return b.String()
}
