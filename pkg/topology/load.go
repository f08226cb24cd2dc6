package topology

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/omegacortex/omega/assets"
	"github.com/omegacortex/omega/pkg/omegaerr"
)

const defaultTopologyName = "default"

// Load resolves {dataDir}/topologies/{name}/, deploying the bundled
// default assets first if the directory doesn't exist yet, then parses
// topology.toml and every agent persona file it references.
func Load(dataDir, name string) (*Topology, error) {
	dir := filepath.Join(dataDir, "topologies", name)

	if _, err := os.Stat(dir); os.IsNotExist(err) && name == defaultTopologyName {
		if err := deployDefault(dir); err != nil {
			return nil, omegaerr.Configf(err, "deploy bundled default topology")
		}
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "topology.toml"))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, omegaerr.Configf(err, "read topology %q", name)
	}

	var t Topology
	if err := v.Unmarshal(&t); err != nil {
		return nil, omegaerr.Configf(err, "parse topology %q", name)
	}

	wanted := map[string]bool{}
	for _, p := range t.Phases {
		if p.Agent != "" {
			wanted[p.Agent] = true
		}
		if p.Retry != nil && p.Retry.FixAgent != "" {
			wanted[p.Retry.FixAgent] = true
		}
	}

	agents, err := loadAgents(filepath.Join(dir, "agents"), wanted)
	if err != nil {
		return nil, err
	}
	t.Agents = agents
	return &t, nil
}

// loadAgents parses every *.md file in dir, in addition to whatever's
// named in wanted — a topology's agents directory may carry personas
// beyond the ones any phase currently references.
func loadAgents(dir string, wanted map[string]bool) (map[string]*Agent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, omegaerr.Configf(err, "read agents directory %q", dir)
	}

	agents := map[string]*Agent{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		a, err := parseAgentFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if a.Name == "" {
			a.Name = name
		}
		agents[name] = a
	}

	for name := range wanted {
		if _, ok := agents[name]; !ok {
			return nil, omegaerr.Config("agent persona \""+name+"\" referenced by a phase but not found in agents directory", nil)
		}
	}
	return agents, nil
}

func parseAgentFile(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, omegaerr.Configf(err, "read agent file %q", path)
	}

	text := string(data)
	var fm agentFrontmatter
	body := text

	if strings.HasPrefix(text, "---\n") {
		rest := text[len("---\n"):]
		if end := strings.Index(rest, "\n---"); end != -1 {
			frontmatter := rest[:end]
			if err := yaml.Unmarshal([]byte(frontmatter), &fm); err != nil {
				return nil, omegaerr.Configf(err, "parse frontmatter in %q", path)
			}
			afterMarker := rest[end+len("\n---"):]
			body = strings.TrimPrefix(afterMarker, "\n")
		}
	}

	return &Agent{Name: fm.Name, Description: fm.Description, Body: strings.TrimSpace(body)}, nil
}

// deployDefault copies the embedded default topology into dir, skipping
// any file that already exists so a user's local edits are never
// overwritten.
func deployDefault(dir string) error {
	root := "topologies/default"
	return fs.WalkDir(assets.DefaultTopologyFS, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, root)
		target := filepath.Join(dir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if _, statErr := os.Stat(target); statErr == nil {
			return nil
		}
		data, err := assets.DefaultTopologyFS.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
