package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/chatmeter/pkg/schema"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `name: summarizer
description: Summarizes long documents
provider: mock
model: mock-1
temperature: 0.2
max_tokens: 512
steps:
  - name: outline
    type: chat
    prompt: "Outline the document: {{.Input}}"
  - name: fetch
    type: tool
    tool: web-fetch
`)

	agent, err := LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, "summarizer", agent.Name)
	require.NotEmpty(t, agent.ID)
	require.Len(t, agent.Steps, 2)
	require.Equal(t, schema.StepChat, agent.Steps[0].Type)
	require.Equal(t, schema.StepTool, agent.Steps[1].Type)
	require.NotNil(t, agent.Temperature)
	require.InDelta(t, 0.2, *agent.Temperature, 1e-9)
	require.Equal(t, 512, agent.MaxTokens)
	require.False(t, agent.CreatedAt.IsZero())
}

func TestLoadManifestRejectsInvalidAgent(t *testing.T) {
	path := writeManifest(t, "name: empty\nsteps: []\n")

	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifestRejectsUnknownStepType(t *testing.T) {
	path := writeManifest(t, `name: bad
steps:
  - name: run
    type: shell
    prompt: whoami
`)

	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
