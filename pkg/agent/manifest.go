package agent

import (
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/zen-systems/chatmeter/pkg/schema"
)

// LoadManifest reads an agent definition from a YAML file and validates
// it. The returned agent carries a fresh ID and zero usage count.
func LoadManifest(path string) (*schema.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var agent schema.Agent
	if err := yaml.Unmarshal(data, &agent); err != nil {
		return nil, err
	}
	if err := agent.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	agent.ID = uuid.NewString()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	return &agent, nil
}
