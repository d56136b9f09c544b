package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/reqinstall/internal/dist"
	"github.com/frederic-klein/reqinstall/internal/receipt"
)

func TestPlanner_Plan(t *testing.T) {
	reqs := []dist.Requirement{
		{Name: "p", Version: "1"},
		{Name: "q", Version: "2"},
		{Name: "r", Version: "3.0"},
	}

	tests := []struct {
		name        string
		existing    []string // relative dirs created before planning
		wantTargets []string
		wantSkipped []string
	}{
		{
			name:        "nothing installed",
			wantTargets: []string{"p", "q", "r"},
		},
		{
			name:        "one installed",
			existing:    []string{"q/2"},
			wantTargets: []string{"p", "r"},
			wantSkipped: []string{"q"},
		},
		{
			name:        "other version installed",
			existing:    []string{"q/1"},
			wantTargets: []string{"p", "q", "r"},
		},
		{
			name:        "all installed",
			existing:    []string{"p/1", "q/2", "r/3.0"},
			wantSkipped: []string{"p", "q", "r"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			root := t.TempDir()
			for _, dir := range tt.existing {
				require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
			}

			// Act
			plan := NewPlanner(false).Plan(reqs, root)

			// Assert
			assert.Equal(t, root, plan.Root)
			assert.Equal(t, tt.wantTargets, names(plan.Targets))
			assert.Equal(t, tt.wantSkipped, names(plan.Skipped))
			assert.Equal(t, len(tt.wantTargets) == 0, plan.Empty())
			for _, target := range plan.Targets {
				assert.Equal(t, dist.DestinationPath(root, target.Name, target.Version), target.Path)
			}
		})
	}
}

func TestPlanner_Plan_Empty(t *testing.T) {
	plan := NewPlanner(false).Plan(nil, t.TempDir())

	assert.True(t, plan.Empty())
	assert.Nil(t, plan.Targets)
}

func TestPlanner_Plan_VerifyReceipts(t *testing.T) {
	// Arrange
	root := t.TempDir()
	complete := dist.Requirement{Name: "done", Version: "1"}
	partial := dist.Requirement{Name: "half", Version: "1"}
	stale := dist.Requirement{Name: "stale", Version: "2"}

	completeDir := dist.DestinationPath(root, complete.Name, complete.Version)
	require.NoError(t, os.MkdirAll(completeDir, 0755))
	require.NoError(t, receipt.Write(completeDir, receipt.New(complete, "", nil)))

	require.NoError(t, os.MkdirAll(dist.DestinationPath(root, partial.Name, partial.Version), 0755))

	staleDir := dist.DestinationPath(root, stale.Name, stale.Version)
	require.NoError(t, os.MkdirAll(staleDir, 0755))
	require.NoError(t, receipt.Write(staleDir, receipt.New(dist.Requirement{Name: "stale", Version: "1"}, "", nil)))

	reqs := []dist.Requirement{complete, partial, stale}

	// Act
	strict := NewPlanner(true).Plan(reqs, root)
	lenient := NewPlanner(false).Plan(reqs, root)

	// Assert
	assert.Equal(t, []string{"half", "stale"}, names(strict.Targets))
	assert.Equal(t, []string{"done"}, names(strict.Skipped))
	assert.Empty(t, lenient.Targets)
}

func names(targets []dist.Target) []string {
	var out []string
	for _, t := range targets {
		out = append(out, t.Name)
	}
	return out
}
