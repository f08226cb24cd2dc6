package topology

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegacortex/omega/pkg/provider"
)

func TestValidateProjectName(t *testing.T) {
	assert.NoError(t, ValidateProjectName("my-project_1.0"))
	assert.Error(t, ValidateProjectName(".hidden"))
	assert.Error(t, ValidateProjectName("has..dots"))
	assert.Error(t, ValidateProjectName(""))
	assert.Error(t, ValidateProjectName("has spaces"))
}

func TestParseBrief_ExtractsFieldsAndComponents(t *testing.T) {
	text := "PROJECT_NAME: todo-api\nLANGUAGE: Go\nDATABASE: sqlite\nFRONTEND: none\n" +
		"SCOPE: a small todo list API\nCOMPONENTS:\n- HTTP server\n- storage layer\n"

	brief, err := parseBrief(text)
	require.NoError(t, err)
	assert.Equal(t, "todo-api", brief.ProjectName)
	assert.Equal(t, "Go", brief.Language)
	assert.Equal(t, []string{"HTTP server", "storage layer"}, brief.Components)
}

func TestParseBrief_RejectsMissingField(t *testing.T) {
	_, err := parseBrief("PROJECT_NAME: x\nLANGUAGE: Go\n")
	assert.Error(t, err)
}

func TestParseBuildComplete_ExtractsFields(t *testing.T) {
	text := "Here you go:\n\nBUILD_COMPLETE\nPROJECT: todo-api\nLOCATION: /data/projects/todo-api\n" +
		"LANGUAGE: Go\nSUMMARY: a todo API\nUSAGE: go run ./cmd/server\n"

	bs, err := parseBuildComplete(text)
	require.NoError(t, err)
	assert.Equal(t, "todo-api", bs.Project)
	assert.Equal(t, "go run ./cmd/server", bs.Usage)
}

func TestRunPostValidation_RejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	err := runPostValidation([]string{"../escape"}, dir)
	assert.Error(t, err)
}

func TestRunPostValidation_RequiresExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))

	assert.NoError(t, runPostValidation([]string{"README.md"}, dir))
	assert.Error(t, runPostValidation([]string{"missing.txt"}, dir))
}

func TestAgentFilesGuard_RefcountsAcrossConcurrentRuns(t *testing.T) {
	workspace := t.TempDir()
	agents := map[string]*Agent{"brief": {Name: "brief", Body: "persona"}}

	g1, err := AcquireAgentFiles(workspace, agents)
	require.NoError(t, err)
	g2, err := AcquireAgentFiles(workspace, agents)
	require.NoError(t, err)

	dir := filepath.Join(workspace, ".claude", "agents")
	_, err = os.Stat(filepath.Join(dir, "brief.md"))
	require.NoError(t, err)

	g1.Release()
	_, err = os.Stat(dir)
	assert.NoError(t, err, "directory should survive while g2 still holds it")

	g2.Release()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "directory should be removed once the last guard releases")
}

func TestLoad_DeploysBundledDefaultTopology(t *testing.T) {
	dataDir := t.TempDir()

	topo, err := Load(dataDir, "default")
	require.NoError(t, err)
	assert.Equal(t, "default", topo.Name)
	assert.NotEmpty(t, topo.Phases)
	assert.Contains(t, topo.Agents, "brief")
	assert.Contains(t, topo.Agents, "verify")
	assert.Contains(t, topo.Agents, "fixer")
}

type sequenceProvider struct {
	texts []string
	i     int
}

func (p *sequenceProvider) Complete(ctx context.Context, c *provider.Context) (provider.CompletionResult, error) {
	if p.i >= len(p.texts) {
		return provider.CompletionResult{Text: "HEARTBEAT_OK"}, nil
	}
	text := p.texts[p.i]
	p.i++
	return provider.CompletionResult{Text: text}, nil
}
func (p *sequenceProvider) IsTransientError(err error) bool       { return false }
func (p *sequenceProvider) IsSessionNotFoundError(err error) bool { return false }

func TestRunner_Run_HappyPath(t *testing.T) {
	dataDir := t.TempDir()

	prov := &sequenceProvider{texts: []string{
		"PROJECT_NAME: todo-api\nLANGUAGE: Go\nDATABASE: sqlite\nFRONTEND: none\n" +
			"SCOPE: a small todo API\nCOMPONENTS:\n- server\n",
		"Implemented the server.",
		"VERIFICATION: PASS",
		"BUILD_COMPLETE\nPROJECT: todo-api\nLOCATION: " + filepath.Join(dataDir, "projects", "todo-api") +
			"\nLANGUAGE: Go\nSUMMARY: a todo API\nUSAGE: go run ./cmd/server\n",
	}}

	r := &Runner{Provider: prov, DataDir: dataDir}
	result, err := r.Run(context.Background(), "default", "build me a todo API")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	require.NotNil(t, result.Summary)
	assert.Equal(t, "todo-api", result.Summary.Project)
}

func TestRunner_Run_AbortsAndWritesChainStateOnExhaustedVerification(t *testing.T) {
	dataDir := t.TempDir()

	prov := &sequenceProvider{texts: []string{
		"PROJECT_NAME: todo-api\nLANGUAGE: Go\nDATABASE: sqlite\nFRONTEND: none\n" +
			"SCOPE: a small todo API\nCOMPONENTS:\n- server\n",
		"Implemented the server, poorly.",
		"VERIFICATION: FAIL\nbroken build",
		"attempted fix",
		"VERIFICATION: FAIL\nstill broken",
		"attempted fix",
		"VERIFICATION: FAIL\nstill broken",
	}}

	r := &Runner{Provider: prov, DataDir: dataDir}
	result, err := r.Run(context.Background(), "default", "build me a todo API")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)

	chainState := filepath.Join(result.ProjectDir, "docs", ".workflow", "chain-state.md")
	_, statErr := os.Stat(chainState)
	assert.NoError(t, statErr)
}
