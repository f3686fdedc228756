package evidence

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/smartspec/smartspec/pkg/apperr"
)

var (
	headingRe = regexp.MustCompile(`^(##|###)\s+(.*)$`)
	listRe    = regexp.MustCompile(`^(\s*)[-*]\s+\[([ xX])\]\s*(.*)$`)
	evidenceRe = regexp.MustCompile(`^\s*evidence:\s*(code|test|doc)\s+(.*)$`)
	attrRe     = regexp.MustCompile(`(\w+)=(?:"([^"]*)"|/((?:[^/\\]|\\.)*)/|(\S+))`)
)

// ParseTasks extracts Tasks and their evidence Hooks from a tasks.md
// document. Task identity is the nearest enclosing H2/H3 heading
// combined with the checklist item text; evidence lines are attached
// to the task whose list item (or, lacking one, heading) most
// recently preceded them.
func ParseTasks(content string) ([]Task, error) {
	var tasks []Task
	var current *Task
	var currentHeading string

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if m := headingRe.FindStringSubmatch(line); m != nil {
			currentHeading = strings.TrimSpace(m[2])
			current = nil
			continue
		}

		if m := listRe.FindStringSubmatch(line); m != nil {
			claimed := strings.EqualFold(m[2], "x")
			title := strings.TrimSpace(m[3])
			id := taskID(currentHeading, title, len(tasks))
			tasks = append(tasks, Task{ID: id, Title: title, Claimed: claimed, Line: lineNum})
			current = &tasks[len(tasks)-1]
			continue
		}

		if m := evidenceRe.FindStringSubmatch(line); m != nil {
			hook, err := parseHook(HookKind(m[1]), m[2], lineNum, line)
			if err != nil {
				return nil, err
			}
			if current == nil {
				// Evidence line with no enclosing task item: attach to a
				// synthetic task keyed by the heading alone so it is still
				// reported rather than silently dropped.
				id := taskID(currentHeading, "", len(tasks))
				tasks = append(tasks, Task{ID: id, Title: currentHeading, Line: lineNum})
				current = &tasks[len(tasks)-1]
			}
			current.Hooks = append(current.Hooks, hook)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.IO(err, "reading tasks document")
	}

	return tasks, nil
}

func parseHook(kind HookKind, rest string, line int, raw string) (Hook, error) {
	h := Hook{Kind: kind, Line: line, Raw: strings.TrimSpace(raw)}

	hasContains, hasRegex := false, false
	for _, m := range attrRe.FindAllStringSubmatch(rest, -1) {
		key := m[1]
		var val string
		switch {
		case m[2] != "":
			val = m[2]
		case m[3] != "":
			val = m[3]
		default:
			val = m[4]
		}
		switch key {
		case "path":
			h.Path = val
		case "symbol":
			h.Symbol = val
		case "contains":
			h.Contains = val
			hasContains = true
		case "regex":
			h.Regex = val
			hasRegex = true
		}
	}

	if h.Path == "" {
		return Hook{}, apperr.Validation("evidence hook at line %d is missing a path attribute", line)
	}
	if hasContains && hasRegex {
		return Hook{}, apperr.Validation("evidence hook at line %d specifies both contains and regex", line)
	}
	if isUnsafePath(h.Path) {
		return Hook{}, apperr.Validation("evidence hook at line %d references an unsafe path %q", line, h.Path)
	}
	if hasRegex {
		if _, err := regexp.Compile(h.Regex); err != nil {
			return Hook{}, apperr.Validation("evidence hook at line %d has an invalid regex: %v", line, err)
		}
	}

	return h, nil
}

// isUnsafePath rejects parent-directory traversal and absolute paths;
// evidence hooks may only reference paths inside the repository tree.
func isUnsafePath(p string) bool {
	if p == "" {
		return true
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return true
	}
	if len(p) > 1 && p[1] == ':' { // windows drive letter
		return true
	}
	for _, seg := range strings.Split(filepathSplit(p), "\x00") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func filepathSplit(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.ReplaceAll(p, "/", "\x00")
}

func taskID(heading, title string, ordinal int) string {
	base := strings.TrimSpace(heading)
	if title != "" {
		base = base + " / " + title
	}
	slug := slugify(base)
	if slug == "" {
		return "task-" + strconv.Itoa(ordinal+1)
	}
	return slug
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
