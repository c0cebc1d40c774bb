package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	ErrLinkNotFound     = errors.New("link not found")
	ErrCodeExists       = errors.New("short id already exists")
	ErrVariableNotFound = errors.New("link variable not found")
)

// Счётчик увеличивается выражением по полю, параллельные клики не затирают друг друга
const incrementClicksQuery = `UPDATE links SET total_clicks = total_clicks + 1 WHERE id = $1`

type LinkRepository interface {
	// Create сохраняет ссылку вместе с link.Variables в одной транзакции
	Create(ctx context.Context, link *models.Link) error
	GetByShortID(ctx context.Context, shortID string) (*models.Link, error)
	ListByOwner(ctx context.Context, owner string) ([]models.Link, error)
	Delete(ctx context.Context, owner, shortID string) error
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	linkQuery := `
		INSERT INTO links (owner, short_id, original_url, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, total_clicks
	`
	variableQuery := `
		INSERT INTO link_variables (link_id, name, placeholder)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, linkQuery,
			link.Owner,
			link.ShortID,
			link.OriginalURL,
			link.Name,
			link.CreatedAt,
		).Scan(&link.ID, &link.CreatedAt, &link.TotalClicks)
		if err != nil {
			return err
		}

		for i := range link.Variables {
			v := &link.Variables[i]
			v.LinkID = link.ID
			if err := tx.QueryRow(ctx, variableQuery, v.LinkID, v.Name, v.Placeholder).Scan(&v.ID); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		if isUniqueViolation(err, "links_short_id_key") {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetByShortID(ctx context.Context, shortID string) (*models.Link, error) {
	query := `
		SELECT id, owner, short_id, original_url, name, created_at, total_clicks
		FROM links
		WHERE short_id = $1
	`

	link := &models.Link{}
	err := r.db.Pool.QueryRow(ctx, query, shortID).Scan(
		&link.ID,
		&link.Owner,
		&link.ShortID,
		&link.OriginalURL,
		&link.Name,
		&link.CreatedAt,
		&link.TotalClicks,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, owner string) ([]models.Link, error) {
	query := `
		SELECT id, owner, short_id, original_url, name, created_at, total_clicks
		FROM links
		WHERE owner = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := []models.Link{}
	for rows.Next() {
		var link models.Link
		if err := rows.Scan(
			&link.ID,
			&link.Owner,
			&link.ShortID,
			&link.OriginalURL,
			&link.Name,
			&link.CreatedAt,
			&link.TotalClicks,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

func (r *linkRepository) Delete(ctx context.Context, owner, shortID string) error {
	query := `DELETE FROM links WHERE short_id = $1 AND owner = $2`

	result, err := r.db.Pool.Exec(ctx, query, shortID, owner)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}
