package repository

import (
	"context"
	"fmt"

	"github.com/SergeiKhy/link-tracker/internal/models"
)

type VariableRepository interface {
	Create(ctx context.Context, variable *models.LinkVariable) error
	ListByLink(ctx context.Context, linkID int64) ([]models.LinkVariable, error)
	Delete(ctx context.Context, linkID, variableID int64) error
}

type variableRepository struct {
	db *PostgresDB
}

func NewVariableRepository(db *PostgresDB) VariableRepository {
	return &variableRepository{db: db}
}

func (r *variableRepository) Create(ctx context.Context, variable *models.LinkVariable) error {
	query := `
		INSERT INTO link_variables (link_id, name, placeholder)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		variable.LinkID,
		variable.Name,
		variable.Placeholder,
	).Scan(&variable.ID)

	if err != nil {
		return fmt.Errorf("failed to create link variable: %w", err)
	}

	return nil
}

// ListByLink возвращает переменные в порядке создания
func (r *variableRepository) ListByLink(ctx context.Context, linkID int64) ([]models.LinkVariable, error) {
	query := `
		SELECT id, link_id, name, placeholder
		FROM link_variables
		WHERE link_id = $1
		ORDER BY id
	`

	rows, err := r.db.Pool.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list link variables: %w", err)
	}
	defer rows.Close()

	variables := []models.LinkVariable{}
	for rows.Next() {
		var v models.LinkVariable
		if err := rows.Scan(&v.ID, &v.LinkID, &v.Name, &v.Placeholder); err != nil {
			return nil, fmt.Errorf("failed to scan link variable: %w", err)
		}
		variables = append(variables, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating link variables: %w", err)
	}

	return variables, nil
}

func (r *variableRepository) Delete(ctx context.Context, linkID, variableID int64) error {
	query := `DELETE FROM link_variables WHERE id = $1 AND link_id = $2`

	result, err := r.db.Pool.Exec(ctx, query, variableID, linkID)
	if err != nil {
		return fmt.Errorf("failed to delete link variable: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrVariableNotFound
	}

	return nil
}
