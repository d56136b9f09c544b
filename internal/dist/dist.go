package dist

import (
	"fmt"
	"path/filepath"
)

// Requirement is a pinned package requirement, e.g. "requests==2.31.0".
type Requirement struct {
	Name    string
	Version string
}

// String returns the requirement in requirements-file form.
func (r Requirement) String() string {
	return fmt.Sprintf("%s==%s", r.Name, r.Version)
}

// Target is a requirement bound to the directory it installs into.
type Target struct {
	Requirement
	Path string // root/<name>/<version>
}

// DestinationPath returns the install directory for name and version under root.
// The result depends only on its inputs.
func DestinationPath(root, name, version string) string {
	return filepath.Join(root, name, version)
}

// NewTarget binds req to its destination under root.
func NewTarget(root string, req Requirement) Target {
	return Target{
		Requirement: req,
		Path:        DestinationPath(root, req.Name, req.Version),
	}
}

// WithinRoot reports whether t.Path is exactly root/<name>/<version>, with
// no component removed or escaping root when the path is cleaned. Names such
// as "..", "." or "a/b" fail.
func (t Target) WithinRoot(root string) bool {
	if t.Name == "." || t.Name == ".." {
		return false
	}
	rel, err := filepath.Rel(root, t.Path)
	if err != nil {
		return false
	}
	if rel != filepath.Join(t.Name, t.Version) {
		return false
	}
	return filepath.Base(filepath.Dir(t.Path)) == t.Name
}

// Status describes what happened to a target during a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInstalled Status = "installed"
	StatusSkipped   Status = "skipped"
)
