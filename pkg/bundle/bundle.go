// Package bundle manages one spec's governed artifacts on disk:
// spec.md, plan.md, tasks.md, and the testplan/ subtree under
// specs/<category>/<spec-id>/, enforcing the scope discipline that
// separates governed artifacts from runtime reports under .spec/**.
package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/smartspec/smartspec/internal/fileutil"
	"github.com/smartspec/smartspec/pkg/apperr"
)

// Scope names one of the two write-allowed root directories.
type Scope string

const (
	ScopeGoverned Scope = "specs" // governed artifacts, requires apply
	ScopeRuntime  Scope = ".spec" // engine reports/prompts/scripts
)

// Manager roots every governed read/write under repoRoot and enforces
// the specs/** vs .spec/** prefix discipline before any file open,
// generalizing the teacher's single-rooted workdir manager into two
// disjoint scopes plus a per-spec-id write mutex.
type Manager struct {
	repoRoot string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager roots a Manager at repoRoot, which must already exist.
func NewManager(repoRoot string) (*Manager, error) {
	if repoRoot == "" {
		repoRoot = "."
	}
	if !fileutil.IsDir(repoRoot) {
		return nil, fmt.Errorf("bundle: repo root %q is not a directory", repoRoot)
	}
	return &Manager{repoRoot: repoRoot, locks: make(map[string]*sync.Mutex)}, nil
}

// BundlePath returns the governed directory for a spec id:
// specs/<category>/<spec-id>/.
func (m *Manager) BundlePath(category, specID string) string {
	return filepath.Join(m.repoRoot, string(ScopeGoverned), category, specID)
}

// ReportPath returns the runtime-report directory for one workflow run:
// .spec/reports/<workflow>/<run-id>/.
func (m *Manager) ReportPath(workflow, runID string) string {
	return filepath.Join(m.repoRoot, string(ScopeRuntime), "reports", workflow, runID)
}

// PromptPackPath returns the runtime prompt-pack directory for one run:
// .spec/prompts/<run-id>/.
func (m *Manager) PromptPackPath(runID string) string {
	return filepath.Join(m.repoRoot, string(ScopeRuntime), "prompts", runID)
}

// checkScope enforces that path falls under specs/** or .spec/**
// before any open, matching the engine's mandated prefix check.
func (m *Manager) checkScope(path string) error {
	rel, err := filepath.Rel(m.repoRoot, path)
	if err != nil {
		return apperr.Validation("path %q is not under the repository root", path)
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "..") {
		return apperr.Validation("path %q escapes the repository root", path)
	}
	if !strings.HasPrefix(rel, string(ScopeGoverned)+"/") && !strings.HasPrefix(rel, string(ScopeRuntime)+"/") {
		return apperr.Validation("path %q is outside specs/** and .spec/**", path)
	}
	return nil
}

// ReadFile reads a file from either scope; readers are unrestricted.
func (m *Manager) ReadFile(path string) ([]byte, error) {
	if err := m.checkScope(path); err != nil {
		return nil, err
	}
	data, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, apperr.IO(err, "reading %q", path)
	}
	return data, nil
}

// WriteFile writes path, enforcing scope and the per-spec-id write
// lock for governed paths. Runtime-scope paths (.spec/**) are never
// serialized: only one writer at a time per spec id is required.
func (m *Manager) WriteFile(specID, path string, data []byte, perm os.FileMode) error {
	if err := m.checkScope(path); err != nil {
		return err
	}
	if isUnderGoverned(m.repoRoot, path) {
		unlock, err := m.TryLock(specID)
		if err != nil {
			return err
		}
		defer unlock()
	}
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return apperr.IO(err, "creating directory for %q", path)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return apperr.IO(err, "writing %q", path)
	}
	return nil
}

func isUnderGoverned(repoRoot, path string) bool {
	rel, err := filepath.Rel(filepath.Join(repoRoot, string(ScopeGoverned)), path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

// TryLock acquires the bundle-scoped write mutex for specID,
// satisfying pkg/engine.BundleLocker. Contention returns
// apperr.BundleBusy rather than blocking.
func (m *Manager) TryLock(specID string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[specID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[specID] = l
	}
	m.mu.Unlock()

	if !l.TryLock() {
		return nil, apperr.BundleBusy(specID)
	}
	return l.Unlock, nil
}
