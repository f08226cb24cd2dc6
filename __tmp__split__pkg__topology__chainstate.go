package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ChainState is a snapshot of a topology run's progress, written to
// {projectDir}/docs/.workflow/chain-state.md whenever a run aborts.
type ChainState struct {
	RunID           string
	ProjectName     string
	ProjectDir      string
	TopologyName    string
	CompletedPhases []string
	FailedPhase     string
	FailureReason   string
}

// Write renders the snapshot to its well-known location under
// cs.ProjectDir, creating the docs/.workflow directory if needed.
func (cs *ChainState) Write() error {
	dir := filepath.Join(cs.ProjectDir, "docs", ".workflow")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Chain state\n\n")
	fmt.Fprintf(&b, "- Run: %s\n", cs.RunID)
	fmt.Fprintf(&b, "- Project: %s\n", cs.ProjectName)
	fmt.Fprintf(&b, "- Topology: %s\n", cs.TopologyName)
	fmt.Fprintf(&b, "- Completed phases: %s\n", strings.Join(cs.CompletedPhases, ", "))
	if cs.FailedPhase != "" {
		fmt.Fprintf(&b, "- Failed phase: %s\n", cs.FailedPhase)
		fmt.Fprintf(&b, "- Failure reason: %s\n", cs.FailureReason)
	}

	return os.WriteFile(filepath.Join(dir, "chain-state.md"), []byte(b.String()), 0o644)
}


