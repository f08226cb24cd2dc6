// Package topology drives multi-phase build pipelines defined in TOML
// (§4.10): a topology names an ordered list of phases, each backed by an
// agent persona file, with validation gates and a retry loop for the
// verification phase.
package topology

// PhaseType selects how a phase's agent output is dispatched and parsed.
type PhaseType string

const (
	PhaseStandard       PhaseType = "standard"
	PhaseParseBrief     PhaseType = "parse-brief"
	PhaseCorrectiveLoop PhaseType = "corrective-loop"
	PhaseParseSummary   PhaseType = "parse-summary"
)

// ModelTier picks between the fast and complex model pools a topology's
// phases can be routed to.
type ModelTier string

const (
	TierFast    ModelTier = "fast"
	TierComplex ModelTier = "complex"
)

// Retry configures the corrective-loop phase's fix-and-recheck cycle.
type Retry struct {
	Max      int    `mapstructure:"max"`
	FixAgent string `mapstructure:"fix_agent"`
}

// PreValidation gates a phase from starting until its preconditions hold.
type PreValidation struct {
	Type     string   `mapstructure:"type"` // "file_exists" | "file_patterns"
	Paths    []string `mapstructure:"paths"`
	Patterns []string `mapstructure:"patterns"`
}

// Phase is one step of a topology's pipeline.
type Phase struct {
	Name           string         `mapstructure:"name"`
	Agent          string         `mapstructure:"agent"`
	ModelTier      ModelTier      `mapstructure:"model_tier"`
	MaxTurns       int            `mapstructure:"max_turns"`
	PhaseType      PhaseType      `mapstructure:"phase_type"`
	Retry          *Retry         `mapstructure:"retry"`
	PreValidation  *PreValidation `mapstructure:"pre_validation"`
	PostValidation []string       `mapstructure:"post_validation"`
}

// Topology is a parsed pipeline definition plus its agent personas.
type Topology struct {
	Name        string  `mapstructure:"name"`
	Description string  `mapstructure:"description"`
	Version     string  `mapstructure:"version"`
	Phases      []Phase `mapstructure:"phases"`

	Agents map[string]*Agent `mapstructure:"-"`
}

// Agent is one persona file: YAML frontmatter plus a Markdown body that is
// sent to the model verbatim as its system persona.
type Agent struct {
	Name        string
	Description string
	Body        string
}

type agentFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}


