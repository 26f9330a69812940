// Package suppliers manages supplier-type contact records.
// Settlement resolves each line item's supplier here before recording
// the supplier-payment expense.
package suppliers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripdesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Supplier is a supplier-type contact owned by an agent.
type Supplier struct {
	ID        uuid.UUID `db:"id"`
	AgentID   uuid.UUID `db:"agent_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Repository provides database operations for supplier contacts.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new suppliers repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindOrCreate resolves a supplier by exact name match scoped to the owning
// agent, creating it when absent. The upsert rides the unique index on
// (agent_id, lower(name)) so concurrent settlements of the same new supplier
// name converge on a single row instead of creating duplicates.
func (r *Repository) FindOrCreate(ctx context.Context, agentID uuid.UUID, name string) (*Supplier, error) {
	if name == "" {
		return nil, apperr.Validation("supplier name is required")
	}

	now := time.Now()
	query := `
		INSERT INTO td_suppliers (id, agent_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (agent_id, lower(name)) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id, agent_id, name, created_at, updated_at`

	var s Supplier
	err := r.pool.QueryRow(ctx, query, uuid.New(), agentID, name, now).Scan(
		&s.ID, &s.AgentID, &s.Name, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve supplier %q: %w", name, err)
	}
	return &s, nil
}

// GetByID fetches a supplier contact.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Supplier, error) {
	query := `SELECT id, agent_id, name, created_at, updated_at FROM td_suppliers WHERE id = $1`

	var s Supplier
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.AgentID, &s.Name, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("supplier not found")
		}
		return nil, fmt.Errorf("failed to fetch supplier: %w", err)
	}
	return &s, nil
}
