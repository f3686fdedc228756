package evidence

import (
	"regexp"
	"strings"
)

// symbolPatterns are language-agnostic heuristics for "this line defines
// an identifier": a leading keyword (func/class/def/type/...) or an
// assignment, generalized from per-language symbol extraction into one
// repo-wide scan since evidence hooks never declare a language.
var symbolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(?:pub\s+|export\s+|public\s+|private\s+|protected\s+|static\s+|async\s+)*(?:func|function|def|fn|class|struct|interface|type|enum|module|const|var|let)\s+(\w+)\b`),
	regexp.MustCompile(`(?m)^\s*func\s*\([^)]*\)\s*(\w+)\s*\(`), // Go method receiver form
	regexp.MustCompile(`(?m)^\s*(\w+)\s*[:=]\s*(?:function|func|\([^)]*\)\s*(?:=>|\{))`),
}

// FindSymbol reports whether the given identifier appears as a
// definition (not merely a reference) anywhere in content.
func FindSymbol(content, symbol string) bool {
	if symbol == "" {
		return true
	}
	for _, pat := range symbolPatterns {
		for _, m := range pat.FindAllStringSubmatch(content, -1) {
			if len(m) > 1 && m[1] == symbol {
				return true
			}
		}
	}
	return false
}

// ExtractDefinedSymbols returns every identifier content defines,
// used to build fuzzy-match candidates when a named symbol is missing.
func ExtractDefinedSymbols(content string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, pat := range symbolPatterns {
		for _, m := range pat.FindAllStringSubmatch(content, -1) {
			if len(m) > 1 && !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}

// ContainsLiteral reports whether content contains the literal substring.
func ContainsLiteral(content, literal string) bool {
	return strings.Contains(content, literal)
}

// MatchesRegex reports whether content matches the given pattern anywhere.
func MatchesRegex(content, pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(content)
}
