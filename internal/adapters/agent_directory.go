package adapters

import (
	"context"
	"errors"
	"fmt"

	"tripdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AgentDirectory resolves agent ids to contact details for notifications.
type AgentDirectory struct {
	pool *pgxpool.Pool
}

func NewAgentDirectory(pool *pgxpool.Pool) *AgentDirectory {
	return &AgentDirectory{pool: pool}
}

func (a *AgentDirectory) GetAgentEmail(ctx context.Context, agentID uuid.UUID) (string, error) {
	var email string
	err := a.pool.QueryRow(ctx,
		`SELECT email FROM td_agents WHERE id = $1`, agentID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("agent not found")
		}
		return "", fmt.Errorf("failed to fetch agent email: %w", err)
	}
	return email, nil
}
