package schema

import (
	"fmt"
	"strings"
	"time"
)

// StepType identifies how an agent step executes.
type StepType string

const (
	// StepChat renders a prompt and calls the AI router.
	StepChat StepType = "chat"
	// StepTool dispatches to a named tool handler.
	StepTool StepType = "tool"
	// StepAPI performs an external call through a tool handler.
	StepAPI StepType = "api"
)

// AgentStep is one step in an agent workflow. Steps are value objects
// embedded in the agent, not standalone entities.
type AgentStep struct {
	Name   string            `yaml:"name" json:"name"`
	Type   StepType          `yaml:"type" json:"type"`
	Prompt string            `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Model  string            `yaml:"model,omitempty" json:"model,omitempty"`
	Tool   string            `yaml:"tool,omitempty" json:"tool,omitempty"`
	Config map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}

// Validate rejects malformed steps. Unknown step types are a construction
// error, never a runtime dispatch default.
func (s AgentStep) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("step name is required")
	}
	switch s.Type {
	case StepChat:
		if strings.TrimSpace(s.Prompt) == "" {
			return fmt.Errorf("step %s: chat steps require a prompt", s.Name)
		}
	case StepTool, StepAPI:
		if strings.TrimSpace(s.Tool) == "" {
			return fmt.Errorf("step %s: %s steps require a tool name", s.Name, s.Type)
		}
	default:
		return fmt.Errorf("step %s: unknown step type %q", s.Name, s.Type)
	}
	return nil
}

// Agent is a named, reusable multi-step workflow definition.
type Agent struct {
	ID          string      `yaml:"-"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Prompt      string      `yaml:"prompt,omitempty"`
	Provider    string      `yaml:"provider,omitempty"`
	Model       string      `yaml:"model,omitempty"`
	Temperature *float64    `yaml:"temperature,omitempty"`
	MaxTokens   int         `yaml:"max_tokens,omitempty"`
	Steps       []AgentStep `yaml:"steps"`
	UsageCount  int64       `yaml:"-"`
	CreatedAt   time.Time   `yaml:"-"`
	UpdatedAt   time.Time   `yaml:"-"`
}

// Validate checks the agent configuration for errors.
func (a *Agent) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("agent name is required")
	}
	if len(a.Steps) == 0 {
		return fmt.Errorf("agent %s must define at least one step", a.Name)
	}
	seen := make(map[string]struct{})
	for _, step := range a.Steps {
		if err := step.Validate(); err != nil {
			return err
		}
		if _, ok := seen[step.Name]; ok {
			return fmt.Errorf("duplicate step name: %s", step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}
