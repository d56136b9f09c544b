package installer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/frederic-klein/reqinstall/internal/dist"
)

// Runner executes an external command. ExecRunner is the real implementation;
// tests substitute their own.
type Runner interface {
	Run(ctx context.Context, name string, args []string, dir string) (output string, err error)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns combined stdout and stderr.
// The process is killed when ctx is cancelled.
func (ExecRunner) Run(ctx context.Context, name string, args []string, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return out.String(), err
}

// DefaultPipCommand invokes pip through the interpreter so the pip matching
// python3 is used.
var DefaultPipCommand = []string{"python3", "-m", "pip"}

// containerTarget is where the destination directory is mounted inside Docker.
const containerTarget = "/target"

// Command builds the pip invocation for a target.
type Command struct {
	Pip         []string
	DockerImage string // If set, run pip inside this image
}

// Build returns the program and arguments that install exactly target's
// pinned release, without dependencies, into target.Path.
func (c Command) Build(target dist.Target) (string, []string, error) {
	pip := c.Pip
	if len(pip) == 0 {
		pip = DefaultPipCommand
	}

	if c.DockerImage == "" {
		args := append(append([]string{}, pip[1:]...), pipInstallArgs(target.Path, target.Requirement)...)
		return pip[0], args, nil
	}

	hostPath, err := filepath.Abs(target.Path)
	if err != nil {
		return "", nil, fmt.Errorf("resolving %s: %w", target.Path, err)
	}
	args := []string{"run", "--rm",
		"-v", hostPath + ":" + containerTarget,
		c.DockerImage,
	}
	args = append(args, pip...)
	args = append(args, pipInstallArgs(containerTarget, target.Requirement)...)
	return "docker", args, nil
}

func pipInstallArgs(dest string, req dist.Requirement) []string {
	return []string{
		"install",
		"--no-deps",
		"--no-input",
		"--disable-pip-version-check",
		"--target", dest,
		req.String(),
	}
}

// tail returns the last n lines of output.
func tail(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
