package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

const clicksLinkForeignKey = "clicks_link_id_fkey"

type ClickRepository interface {
	// RecordClick сохраняет клик, его переменные и инкремент счётчика атомарно.
	// Если ссылку удалили параллельно, возвращает ErrLinkNotFound.
	RecordClick(ctx context.Context, click *models.Click) error
	// ListClicks возвращает клики ссылки по времени, старые первыми.
	// nil window означает всё время.
	ListClicks(ctx context.Context, linkID int64, window *models.TimeRange) ([]models.Click, error)
	GetStats(ctx context.Context, linkID int64) (*models.ClickStats, error)
	// GetOwnerSummary считает ссылки и клики владельца и возвращает
	// recentLimit последних кликов по всем его ссылкам.
	GetOwnerSummary(ctx context.Context, owner string, recentLimit int) (*models.OwnerSummary, error)
}

type clickRepository struct {
	db   *PostgresDB
	psql squirrel.StatementBuilderType
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{
		db:   db,
		psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *clickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	clickQuery := `
		INSERT INTO clicks (link_id, clicked_at, ip_address, user_agent, device_type, country, weekday, hour, visitor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	variableQuery := `
		INSERT INTO click_variables (click_id, variable_id, value)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, clickQuery,
			click.LinkID,
			click.ClickedAt,
			click.IPAddress,
			click.UserAgent,
			click.DeviceType,
			click.Country,
			click.Weekday,
			click.Hour,
			click.VisitorID,
		).Scan(&click.ID)
		if err != nil {
			return fmt.Errorf("insert click: %w", err)
		}

		for i := range click.Variables {
			v := &click.Variables[i]
			v.ClickID = click.ID
			if err := tx.QueryRow(ctx, variableQuery, v.ClickID, v.VariableID, v.Value).Scan(&v.ID); err != nil {
				return fmt.Errorf("insert click variable %q: %w", v.Name, err)
			}
		}

		// Строка ссылки уже заблокирована внешним ключом вставленного клика
		if _, err := tx.Exec(ctx, incrementClicksQuery, click.LinkID); err != nil {
			return fmt.Errorf("increment clicks: %w", err)
		}
		return nil
	})

	if err != nil {
		return recordClickError(err)
	}

	return nil
}

// recordClickError превращает удаление ссылки между резолвом и записью
// в ErrLinkNotFound, остальные ошибки считаются временными
func recordClickError(err error) error {
	if isForeignKeyViolation(err, clicksLinkForeignKey) {
		return fmt.Errorf("failed to record click: %w", ErrLinkNotFound)
	}
	return fmt.Errorf("failed to record click: %w", err)
}

func (r *clickRepository) ListClicks(ctx context.Context, linkID int64, window *models.TimeRange) ([]models.Click, error) {
	sb := r.psql.
		Select("id", "link_id", "clicked_at", "ip_address", "user_agent", "device_type", "country", "weekday", "hour", "visitor_id").
		From("clicks").
		Where(squirrel.Eq{"link_id": linkID}).
		OrderBy("clicked_at ASC", "id ASC")
	if window != nil {
		sb = sb.Where(squirrel.GtOrEq{"clicked_at": window.From}).
			Where(squirrel.LtOrEq{"clicked_at": window.To})
	}

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build clicks query: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	defer rows.Close()

	clicks := []models.Click{}
	index := make(map[int64]int)
	for rows.Next() {
		var c models.Click
		if err := rows.Scan(
			&c.ID,
			&c.LinkID,
			&c.ClickedAt,
			&c.IPAddress,
			&c.UserAgent,
			&c.DeviceType,
			&c.Country,
			&c.Weekday,
			&c.Hour,
			&c.VisitorID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		index[c.ID] = len(clicks)
		clicks = append(clicks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clicks: %w", err)
	}

	if len(clicks) == 0 {
		return clicks, nil
	}

	if err := r.attachVariables(ctx, linkID, window, clicks, index); err != nil {
		return nil, err
	}

	return clicks, nil
}

func (r *clickRepository) attachVariables(ctx context.Context, linkID int64, window *models.TimeRange, clicks []models.Click, index map[int64]int) error {
	sb := r.psql.
		Select("cv.id", "cv.click_id", "cv.variable_id", "lv.name", "cv.value").
		From("click_variables cv").
		Join("clicks c ON c.id = cv.click_id").
		Join("link_variables lv ON lv.id = cv.variable_id").
		Where(squirrel.Eq{"c.link_id": linkID}).
		OrderBy("cv.id ASC")
	if window != nil {
		sb = sb.Where(squirrel.GtOrEq{"c.clicked_at": window.From}).
			Where(squirrel.LtOrEq{"c.clicked_at": window.To})
	}

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build click variables query: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to list click variables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v models.ClickVariable
		if err := rows.Scan(&v.ID, &v.ClickID, &v.VariableID, &v.Name, &v.Value); err != nil {
			return fmt.Errorf("failed to scan click variable: %w", err)
		}
		if i, ok := index[v.ClickID]; ok {
			clicks[i].Variables = append(clicks[i].Variables, v)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating click variables: %w", err)
	}

	return nil
}

func (r *clickRepository) GetStats(ctx context.Context, linkID int64) (*models.ClickStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_clicks,
			COUNT(DISTINCT visitor_id) AS unique_visitors
		FROM clicks
		WHERE link_id = $1
	`

	stats := &models.ClickStats{}
	err := r.db.Pool.QueryRow(ctx, query, linkID).Scan(
		&stats.TotalClicks,
		&stats.UniqueVisitors,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get click stats: %w", err)
	}

	return stats, nil
}

func (r *clickRepository) GetOwnerSummary(ctx context.Context, owner string, recentLimit int) (*models.OwnerSummary, error) {
	totalsQuery := `
		SELECT
			COUNT(DISTINCT l.id) AS total_links,
			COUNT(c.id) AS total_clicks
		FROM links l
		LEFT JOIN clicks c ON c.link_id = l.id
		WHERE l.owner = $1
	`

	summary := &models.OwnerSummary{RecentClicks: []models.OwnerClick{}}
	if err := r.db.Pool.QueryRow(ctx, totalsQuery, owner).Scan(&summary.TotalLinks, &summary.TotalClicks); err != nil {
		return nil, fmt.Errorf("failed to get owner totals: %w", err)
	}

	sb := r.psql.
		Select("l.short_id", "c.clicked_at", "c.country", "c.device_type").
		From("clicks c").
		Join("links l ON l.id = c.link_id").
		Where(squirrel.Eq{"l.owner": owner}).
		OrderBy("c.clicked_at DESC", "c.id DESC")
	if recentLimit > 0 {
		sb = sb.Limit(uint64(recentLimit))
	}

	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build recent clicks query: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent clicks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.OwnerClick
		if err := rows.Scan(&c.ShortID, &c.Timestamp, &c.Country, &c.DeviceType); err != nil {
			return nil, fmt.Errorf("failed to scan recent click: %w", err)
		}
		summary.RecentClicks = append(summary.RecentClicks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent clicks: %w", err)
	}

	return summary, nil
}
