// Package repository provides database operations for fulfillment tasks.
package repository

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

// ── Status enums ──────────────────────────────────────────────────────────────

// Task lifecycle statuses. Completed and cancelled are terminal.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
	StatusCancelled  = "cancelled"
)

// Task priorities, strongest first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task modes. API tasks carry a prepared booking payload and complete through
// the execution gate; manual tasks complete by hand with a confirmation ref.
const (
	ModeAPI    = "api"
	ModeManual = "manual"
)

// Task types. Booking tasks match the quote item they fulfil; the upload task
// collects supplier confirmations; general covers ad-hoc agent work.
const (
	TypeBookFlight         = "book_flight"
	TypeBookHotel          = "book_hotel"
	TypeBookActivity       = "book_activity"
	TypeBookTransfer       = "book_transfer"
	TypeUploadConfirmation = "upload_confirmation"
	TypeGeneral            = "general"
)

// ── Domain Model ──────────────────────────────────────────────────────────────

// Task is the database model for one unit of fulfillment work.
type Task struct {
	ID              uuid.UUID  `db:"id"`
	QuoteID         uuid.UUID  `db:"quote_id"`
	ItemID          *uuid.UUID `db:"item_id"`
	PaymentID       *uuid.UUID `db:"payment_id"`
	AgentID         uuid.UUID  `db:"agent_id"`
	Type            string     `db:"type"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	Status          string     `db:"status"`
	Priority        string     `db:"priority"`
	Mode            string     `db:"mode"`
	Provider        *string    `db:"provider"`
	IsReady         bool       `db:"is_ready"`
	RequestPreview  []byte     `db:"request_preview"`
	BlockedReason   *string    `db:"blocked_reason"`
	ConfirmationRef *string    `db:"confirmation_ref"`
	EvidenceFileKey *string    `db:"evidence_file_key"`
	DueAt           *time.Time `db:"due_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// StatusCounts aggregates tasks for the agent dashboard.
type StatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Blocked    int `json:"blocked"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
	DueToday   int `json:"dueToday"`
	DueSoon    int `json:"dueSoon"`
}

const taskNotFoundMsg = "task not found"

const taskColumns = `id, quote_id, item_id, payment_id, agent_id, type, title, description,
       status, priority, mode, provider, is_ready, request_preview,
       blocked_reason, confirmation_ref, evidence_file_key,
       due_at, completed_at, created_at, updated_at`

// Repository provides database operations for tasks.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new tasks repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.QuoteID, &t.ItemID, &t.PaymentID, &t.AgentID, &t.Type, &t.Title, &t.Description,
		&t.Status, &t.Priority, &t.Mode, &t.Provider, &t.IsReady, &t.RequestPreview,
		&t.BlockedReason, &t.ConfirmationRef, &t.EvidenceFileKey,
		&t.DueAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(taskNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return &t, nil
}

// Create inserts a new task.
func (r *Repository) Create(ctx context.Context, t *Task) error {
	query := `
		INSERT INTO td_tasks (id, quote_id, item_id, payment_id, agent_id, type,
			title, description, status, priority, mode, provider, is_ready,
			request_preview, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.QuoteID, t.ItemID, t.PaymentID, t.AgentID, t.Type,
		t.Title, t.Description, t.Status, t.Priority, t.Mode, t.Provider, t.IsReady,
		t.RequestPreview, t.DueAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID fetches a single task.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM td_tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// ListByAgent lists an agent's tasks in working order: strongest priority
// first, then earliest due date, undated tasks last. An empty status lists
// all non-terminal tasks.
func (r *Repository) ListByAgent(ctx context.Context, agentID uuid.UUID, status string) ([]Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM td_tasks
		WHERE agent_id = $1
		  AND ($2 = '' AND status NOT IN ('completed', 'cancelled') OR status = $2)
		ORDER BY CASE priority
				WHEN 'urgent' THEN 0
				WHEN 'high' THEN 1
				WHEN 'medium' THEN 2
				ELSE 3
			END,
			due_at ASC NULLS LAST,
			created_at ASC`

	return r.queryTasks(ctx, query, agentID, status)
}

// ListByQuote lists all tasks attached to a quote.
func (r *Repository) ListByQuote(ctx context.Context, quoteID uuid.UUID) ([]Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM td_tasks
		WHERE quote_id = $1
		ORDER BY created_at ASC`

	return r.queryTasks(ctx, query, quoteID)
}

// ListOverdue lists non-terminal tasks whose due time has passed. Used by the
// scheduler's reminder sweep.
func (r *Repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM td_tasks
		WHERE due_at IS NOT NULL
		  AND due_at < $1
		  AND status NOT IN ('completed', 'cancelled')
		ORDER BY due_at ASC
		LIMIT $2`

	return r.queryTasks(ctx, query, now, limit)
}

func (r *Repository) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateStatus moves a task to a new status. The service layer owns transition
// validation; the repository guards against concurrent moves by requiring the
// expected current status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE td_tasks SET status = $3, blocked_reason = NULL, updated_at = $4
		 WHERE id = $1 AND status = $2`,
		id, fromStatus, toStatus, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("task status changed concurrently")
	}
	return nil
}

// SetBlocked moves a task to blocked and records why.
func (r *Repository) SetBlocked(ctx context.Context, id uuid.UUID, fromStatus, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE td_tasks SET status = $3, blocked_reason = $4, updated_at = $5
		 WHERE id = $1 AND status = $2`,
		id, fromStatus, StatusBlocked, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to block task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("task status changed concurrently")
	}
	return nil
}

// Complete moves a task to completed, recording the confirmation reference
// when one exists.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, fromStatus string, confirmationRef *string) error {
	now := time.Now()
	tag, err := r.pool.Exec(ctx,
		`UPDATE td_tasks
		 SET status = $3, confirmation_ref = COALESCE($4, confirmation_ref),
		     completed_at = $5, updated_at = $5
		 WHERE id = $1 AND status = $2`,
		id, fromStatus, StatusCompleted, confirmationRef, now)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("task status changed concurrently")
	}
	return nil
}

// Reassign hands the task to another agent. Terminal tasks stay with whoever
// closed them.
func (r *Repository) Reassign(ctx context.Context, id, agentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE td_tasks SET agent_id = $2, updated_at = $3
		 WHERE id = $1 AND status NOT IN ('completed', 'cancelled')`,
		id, agentID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reassign task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("task not found or already closed")
	}
	return nil
}

// SetEvidenceFileKey attaches an uploaded confirmation document to the task.
func (r *Repository) SetEvidenceFileKey(ctx context.Context, id uuid.UUID, fileKey string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE td_tasks SET evidence_file_key = $2, updated_at = $3 WHERE id = $1`,
		id, fileKey, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set evidence file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(taskNotFoundMsg)
	}
	return nil
}

// CountByAgent aggregates the agent's task counts for the dashboard summary.
// Due soon means within the next three days, excluding today.
func (r *Repository) CountByAgent(ctx context.Context, agentID uuid.UUID, now time.Time) (*StatusCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COUNT(*) FILTER (WHERE status = 'blocked'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status NOT IN ('completed', 'cancelled') AND due_at < $2),
			COUNT(*) FILTER (WHERE status NOT IN ('completed', 'cancelled')
				AND due_at >= $2 AND due_at < $2::date + INTERVAL '1 day'),
			COUNT(*) FILTER (WHERE status NOT IN ('completed', 'cancelled')
				AND due_at >= $2::date + INTERVAL '1 day'
				AND due_at < $2::date + INTERVAL '4 days')
		FROM td_tasks
		WHERE agent_id = $1`

	var c StatusCounts
	err := r.pool.QueryRow(ctx, query, agentID, now).Scan(
		&c.Pending, &c.InProgress, &c.Blocked, &c.Completed,
		&c.Overdue, &c.DueToday, &c.DueSoon,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	return &c, nil
}
