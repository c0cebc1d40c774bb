package repository

import (
	"context"
	"fmt"
)

const (
	linksSchema = `CREATE TABLE IF NOT EXISTS links (
		id           BIGSERIAL PRIMARY KEY,
		owner        TEXT NOT NULL DEFAULT '',
		short_id     VARCHAR(32) NOT NULL,
		original_url TEXT NOT NULL,
		name         VARCHAR(200),
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		total_clicks BIGINT NOT NULL DEFAULT 0,
		CONSTRAINT links_short_id_key UNIQUE (short_id)
	);

	CREATE INDEX IF NOT EXISTS idx_links_owner_created_at ON links(owner, created_at DESC);`

	linkVariablesSchema = `CREATE TABLE IF NOT EXISTS link_variables (
		id          BIGSERIAL PRIMARY KEY,
		link_id     BIGINT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		name        VARCHAR(50) NOT NULL,
		placeholder VARCHAR(100) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_link_variables_link_id ON link_variables(link_id);`

	clicksSchema = `CREATE TABLE IF NOT EXISTS clicks (
		id          BIGSERIAL PRIMARY KEY,
		link_id     BIGINT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		clicked_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		ip_address  TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		device_type VARCHAR(50) NOT NULL DEFAULT 'Unknown',
		country     VARCHAR(100) NOT NULL DEFAULT 'Unknown',
		weekday     SMALLINT NOT NULL DEFAULT 0,
		hour        SMALLINT NOT NULL DEFAULT 0,
		visitor_id  VARCHAR(100) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clicks_link_id_clicked_at ON clicks(link_id, clicked_at);
	CREATE INDEX IF NOT EXISTS idx_clicks_link_id_visitor_id ON clicks(link_id, visitor_id);`

	clickVariablesSchema = `CREATE TABLE IF NOT EXISTS click_variables (
		id          BIGSERIAL PRIMARY KEY,
		click_id    BIGINT NOT NULL REFERENCES clicks(id) ON DELETE CASCADE,
		variable_id BIGINT NOT NULL REFERENCES link_variables(id) ON DELETE CASCADE,
		value       VARCHAR(255) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_click_variables_click_id ON click_variables(click_id);
	CREATE INDEX IF NOT EXISTS idx_click_variables_variable_value ON click_variables(variable_id, value);`
)

// Migrate создаёт таблицы и индексы, если их ещё нет
func Migrate(ctx context.Context, db *PostgresDB) error {
	steps := []struct {
		table  string
		schema string
	}{
		{"links", linksSchema},
		{"link_variables", linkVariablesSchema},
		{"clicks", clicksSchema},
		{"click_variables", clickVariablesSchema},
	}

	for _, step := range steps {
		if _, err := db.Pool.Exec(ctx, step.schema); err != nil {
			return fmt.Errorf("failed to create table %s: %w", step.table, err)
		}
	}

	return nil
}
