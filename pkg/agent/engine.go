// Package agent executes named multi-step workflows against the AI router
// and the shared usage ledger.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"text/template"
	"time"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/router"
	"github.com/zen-systems/chatmeter/pkg/schema"
	"github.com/zen-systems/chatmeter/pkg/storage"
)

// Execution is the aggregate outcome of a successful agent run.
type Execution struct {
	Output        string
	StepsExecuted int
	ExecutionTime time.Duration
	Metadata      map[string]string
}

// StepError reports the step at which an execution aborted. Output
// produced by earlier steps is discarded; the contract is all-or-nothing.
type StepError struct {
	AgentID       string
	Step          string
	StepsExecuted int
	Err           error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("agent %s failed at step %s after %d completed steps: %v", e.AgentID, e.Step, e.StepsExecuted, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Engine runs agents step by step, strictly sequentially: each step's
// textual output becomes part of the next step's input context.
type Engine struct {
	store  storage.Store
	router *router.Router
	tools  ToolInvoker
}

// NewEngine creates an engine over its collaborators.
func NewEngine(store storage.Store, rt *router.Router, tools ToolInvoker) *Engine {
	return &Engine{store: store, router: rt, tools: tools}
}

// promptData is the template context available to chat step prompts.
type promptData struct {
	Input   string
	Context string
	Memory  map[string]string
}

// Execute runs the agent's steps against the input. On success the
// agent's usage counter is incremented by one; on any step failure the
// remaining steps are skipped and no output is returned.
func (e *Engine) Execute(ctx context.Context, agentID, input, userID string) (*Execution, error) {
	start := time.Now()

	agent, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	// Memory is read-only execution context; nothing in a run writes it.
	memory := make(map[string]string)
	if userID != "" {
		entries, err := e.store.ListMemory(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			memory[entry.Key] = entry.Value
		}
	}

	var outputs []string
	runningContext := input

	for i, step := range agent.Steps {
		text, err := e.runStep(ctx, agent, step, input, runningContext, memory)
		if err != nil {
			return nil, &StepError{AgentID: agent.ID, Step: step.Name, StepsExecuted: i, Err: err}
		}
		outputs = append(outputs, text)
		runningContext = runningContext + "\n" + text
	}

	count, err := e.store.IncrementAgentUsage(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	log.Printf("[agent] %s executed %d steps for user %s (run #%d)", agent.Name, len(agent.Steps), userID, count)

	return &Execution{
		Output:        strings.Join(outputs, "\n"),
		StepsExecuted: len(agent.Steps),
		ExecutionTime: time.Since(start),
		Metadata: map[string]string{
			"agent":    agent.Name,
			"provider": agent.Provider,
			"model":    agent.Model,
		},
	}, nil
}

func (e *Engine) runStep(ctx context.Context, agent schema.Agent, step schema.AgentStep, input, runningContext string, memory map[string]string) (string, error) {
	switch step.Type {
	case schema.StepChat:
		return e.runChatStep(ctx, agent, step, input, runningContext, memory)
	case schema.StepTool, schema.StepAPI:
		if e.tools == nil {
			return "", fault.Newf(fault.CodeValidation, "no tool invoker configured for step %s", step.Name)
		}
		return e.tools.Invoke(ctx, step.Tool, runningContext)
	default:
		// Unreachable for agents stored through PutAgent; a corrupt step
		// type is a configuration error, never a retry candidate.
		return "", fault.Newf(fault.CodeValidation, "unknown step type %q", step.Type)
	}
}

func (e *Engine) runChatStep(ctx context.Context, agent schema.Agent, step schema.AgentStep, input, runningContext string, memory map[string]string) (string, error) {
	prompt, err := renderPrompt(step.Prompt, promptData{
		Input:   input,
		Context: runningContext,
		Memory:  memory,
	})
	if err != nil {
		return "", fault.Wrap(fault.CodeValidation, "render prompt for step "+step.Name, err)
	}
	if agent.Prompt != "" {
		prompt = agent.Prompt + "\n\n" + prompt
	}

	model := step.Model
	if model == "" {
		model = agent.Model
	}
	provider, model, err := e.router.ResolveModel(agent.Provider, model)
	if err != nil {
		return "", err
	}

	resp, err := e.router.Chat(ctx, router.Request{
		Provider:    provider,
		Model:       model,
		Messages:    []schema.ChatMessage{{Role: schema.RoleUser, Content: prompt}},
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func renderPrompt(text string, data promptData) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
