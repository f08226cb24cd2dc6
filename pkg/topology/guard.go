package topology

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/omegacortex/omega/pkg/omegaerr"
)

var (
	guardMu   sync.Mutex
	guardRefs = map[string]int{}
)

// AgentFilesGuard refcounts the deployment of a topology's agent persona
// files into a workspace's .claude/agents/ directory, so concurrent runs
// against the same workspace reuse one copy and only the last to finish
// cleans it up.
type AgentFilesGuard struct {
	dir      string
	released bool
}

// AcquireAgentFiles writes every agent's persona body to
// {workspace}/.claude/agents/{name}.md, reusing the files in place if
// another run already deployed them. Call Release (typically via defer)
// when the run finishes.
func AcquireAgentFiles(workspace string, agents map[string]*Agent) (*AgentFilesGuard, error) {
	dir := filepath.Join(workspace, ".claude", "agents")

	guardMu.Lock()
	refs := guardRefs[dir]
	guardRefs[dir] = refs + 1
	guardMu.Unlock()

	if refs == 0 {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, omegaerr.Configf(err, "create agent files directory %q", dir)
		}
		for name, a := range agents {
			path := filepath.Join(dir, name+".md")
			if err := os.WriteFile(path, []byte(a.Body), 0o644); err != nil {
				return nil, omegaerr.Configf(err, "write agent file %q", path)
			}
		}
	}

	return &AgentFilesGuard{dir: dir}, nil
}

// Release decrements the refcount for this guard's directory, removing
// the directory entirely once the last holder releases.
func (g *AgentFilesGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true

	guardMu.Lock()
	defer guardMu.Unlock()

	guardRefs[g.dir]--
	if guardRefs[g.dir] <= 0 {
		delete(guardRefs, g.dir)
		_ = os.RemoveAll(g.dir)
	}
}
