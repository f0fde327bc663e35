package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/db"
)

// NamedQueryRepository handles stored named-query template lookups
type NamedQueryRepository struct {
	db *db.DB
}

// NewNamedQueryRepository creates a new named-query repository
func NewNamedQueryRepository(db *db.DB) *NamedQueryRepository {
	return &NamedQueryRepository{db: db}
}

// GetByName retrieves a customer's template by name, falling back to
// global templates. Returns (nil, nil) when no template exists.
func (r *NamedQueryRepository) GetByName(ctx context.Context, customer int, name string) (*models.NamedQuery, error) {
	query := `
		SELECT customer, name, template, global
		FROM named_queries
		WHERE name = $2 AND (customer = $1 OR global = true)
		ORDER BY global ASC
		LIMIT 1
	`

	nq := &models.NamedQuery{}
	err := r.db.QueryRow(ctx, query, customer, name).Scan(
		&nq.Customer,
		&nq.Name,
		&nq.Template,
		&nq.Global,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get named query %q: %w", name, err)
	}
	return nq, nil
}
