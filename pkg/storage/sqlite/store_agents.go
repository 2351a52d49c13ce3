package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

// PutAgent persists an agent record, replacing any existing row with the
// same ID. UsageCount is not writable through this path.
func (s *Store) PutAgent(ctx context.Context, agent schema.Agent) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(agent.ID) == "" {
		return fault.New(fault.CodeValidation, "agent id is required")
	}
	if err := agent.Validate(); err != nil {
		return fault.Wrap(fault.CodeValidation, "invalid agent", err)
	}

	steps, err := json.Marshal(agent.Steps)
	if err != nil {
		return fault.Wrap(fault.CodeDatabase, "marshal steps", err)
	}

	var temperature sql.NullFloat64
	if agent.Temperature != nil {
		temperature = sql.NullFloat64{Float64: *agent.Temperature, Valid: true}
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO agents (
	id, name, description, prompt, provider, model, temperature, max_tokens, steps, usage_count, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	description = excluded.description,
	prompt = excluded.prompt,
	provider = excluded.provider,
	model = excluded.model,
	temperature = excluded.temperature,
	max_tokens = excluded.max_tokens,
	steps = excluded.steps,
	updated_at = excluded.updated_at
`,
		agent.ID,
		agent.Name,
		agent.Description,
		agent.Prompt,
		agent.Provider,
		agent.Model,
		temperature,
		agent.MaxTokens,
		string(steps),
		toMillis(agent.CreatedAt),
		toMillis(agent.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fault.Wrap(fault.CodeConflict, "agent name already in use", err)
		}
		return fault.Wrap(fault.CodeDatabase, "put agent", err)
	}
	return nil
}

// GetAgent fetches an agent record by ID.
func (s *Store) GetAgent(ctx context.Context, agentID string) (schema.Agent, error) {
	if err := s.ready(); err != nil {
		return schema.Agent{}, err
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return schema.Agent{}, fault.New(fault.CodeValidation, "agent id is required")
	}
	return s.getAgentWhere(ctx, "id = ?", agentID)
}

// GetAgentByName fetches an agent record by its unique name.
func (s *Store) GetAgentByName(ctx context.Context, name string) (schema.Agent, error) {
	if err := s.ready(); err != nil {
		return schema.Agent{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.Agent{}, fault.New(fault.CodeValidation, "agent name is required")
	}
	return s.getAgentWhere(ctx, "name = ?", name)
}

// ListAgents returns all agents ordered by name.
func (s *Store) ListAgents(ctx context.Context) ([]schema.Agent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, description, prompt, provider, model, temperature, max_tokens, steps, usage_count, created_at, updated_at
FROM agents
ORDER BY name ASC
`)
	if err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list agents", err)
	}
	defer rows.Close()

	var agents []schema.Agent
	for rows.Next() {
		agent, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fault.Wrap(fault.CodeDatabase, "scan agent", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list agents", err)
	}
	return agents, nil
}

// IncrementAgentUsage bumps the agent's execution counter by one and
// returns the new count. The counter only ever increases.
func (s *Store) IncrementAgentUsage(ctx context.Context, agentID string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return 0, fault.New(fault.CodeValidation, "agent id is required")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE agents SET usage_count = usage_count + 1 WHERE id = ?`, agentID)
	if err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "increment agent usage", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "increment agent usage", err)
	}
	if affected == 0 {
		return 0, fault.Newf(fault.CodeNotFound, "agent %s not found", agentID)
	}

	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT usage_count FROM agents WHERE id = ?`, agentID).Scan(&count); err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "read agent usage", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "commit agent usage", err)
	}
	return count, nil
}

func (s *Store) getAgentWhere(ctx context.Context, where string, arg any) (schema.Agent, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, description, prompt, provider, model, temperature, max_tokens, steps, usage_count, created_at, updated_at
FROM agents
WHERE `+where, arg)

	agent, err := scanAgent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Agent{}, fault.Newf(fault.CodeNotFound, "agent %v not found", arg)
		}
		return schema.Agent{}, fault.Wrap(fault.CodeDatabase, "get agent", err)
	}
	return agent, nil
}

func scanAgent(scan func(dest ...any) error) (schema.Agent, error) {
	var agent schema.Agent
	var temperature sql.NullFloat64
	var steps string
	var createdAt, updatedAt int64
	err := scan(
		&agent.ID,
		&agent.Name,
		&agent.Description,
		&agent.Prompt,
		&agent.Provider,
		&agent.Model,
		&temperature,
		&agent.MaxTokens,
		&steps,
		&agent.UsageCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return schema.Agent{}, err
	}
	if temperature.Valid {
		agent.Temperature = &temperature.Float64
	}
	if err := json.Unmarshal([]byte(steps), &agent.Steps); err != nil {
		return schema.Agent{}, err
	}
	agent.CreatedAt = fromMillis(createdAt)
	agent.UpdatedAt = fromMillis(updatedAt)
	return agent, nil
}
