package schema

import "testing"

func TestParsePlan(t *testing.T) {
	cases := []struct {
		in      string
		want    Plan
		wantErr bool
	}{
		{"FREE", PlanFree, false},
		{"pro", PlanPro, false},
		{" Business ", PlanBusiness, false},
		{"ENTERPRISE", PlanEnterprise, false},
		{"", PlanFree, false},
		{"platinum", PlanFree, true},
	}
	for _, tc := range cases {
		got, err := ParsePlan(tc.in)
		if tc.wantErr && err == nil {
			t.Fatalf("ParsePlan(%q): expected error", tc.in)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("ParsePlan(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParsePlan(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestBootstrapCredits(t *testing.T) {
	cases := map[Plan]int64{
		PlanFree:       1000,
		PlanPro:        5000,
		PlanBusiness:   20000,
		PlanEnterprise: 100000,
	}
	for plan, want := range cases {
		if got := plan.BootstrapCredits(); got != want {
			t.Fatalf("%s: expected %d credits, got %d", plan, want, got)
		}
	}
}

func TestAgentValidate(t *testing.T) {
	valid := Agent{
		Name: "summarizer",
		Steps: []AgentStep{
			{Name: "draft", Type: StepChat, Prompt: "Summarize: {{.Input}}"},
			{Name: "fetch", Type: StepTool, Tool: "web-fetch"},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid agent rejected: %v", err)
	}

	noSteps := Agent{Name: "empty"}
	if err := noSteps.Validate(); err == nil {
		t.Fatalf("agent without steps must be rejected")
	}

	duplicate := Agent{
		Name: "dup",
		Steps: []AgentStep{
			{Name: "one", Type: StepChat, Prompt: "a"},
			{Name: "one", Type: StepChat, Prompt: "b"},
		},
	}
	if err := duplicate.Validate(); err == nil {
		t.Fatalf("duplicate step names must be rejected")
	}
}

func TestAgentStepValidate(t *testing.T) {
	cases := []struct {
		name    string
		step    AgentStep
		wantErr bool
	}{
		{"chat with prompt", AgentStep{Name: "s", Type: StepChat, Prompt: "p"}, false},
		{"chat without prompt", AgentStep{Name: "s", Type: StepChat}, true},
		{"tool with name", AgentStep{Name: "s", Type: StepTool, Tool: "grep"}, false},
		{"tool without name", AgentStep{Name: "s", Type: StepTool}, true},
		{"api with name", AgentStep{Name: "s", Type: StepAPI, Tool: "http"}, false},
		{"unknown type", AgentStep{Name: "s", Type: "shell"}, true},
		{"missing name", AgentStep{Type: StepChat, Prompt: "p"}, true},
	}
	for _, tc := range cases {
		err := tc.step.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
	}
}
