package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/config"
	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/SergeiKhy/link-tracker/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testEnv хранит окружение для интеграционных тестов
type testEnv struct {
	db        *repository.PostgresDB
	redis     *repository.RedisDB
	links     repository.LinkRepository
	variables repository.VariableRepository
	clicks    repository.ClickRepository
	quota     repository.QuotaRepository
}

// setupTestEnv поднимает PostgreSQL и Redis в контейнерах
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	ctx := context.Background()

	dbContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("tracker"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbContainer.Terminate(context.Background()) })

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(context.Background()) })

	dbHost, err := dbContainer.Host(ctx)
	require.NoError(t, err)
	dbPort, err := dbContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	db, err := repository.NewPostgresDB(ctx, config.DBConfig{
		Host:     dbHost,
		Port:     dbPort.Port(),
		User:     "user",
		Password: "password",
		Name:     "tracker",
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, repository.Migrate(ctx, db))
	// Повторная миграция не ломает схему
	require.NoError(t, repository.Migrate(ctx, db))

	rdb, err := repository.NewRedisClient(ctx, config.RedisConfig{
		Host: redisHost,
		Port: redisPort.Port(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return &testEnv{
		db:        db,
		redis:     rdb,
		links:     repository.NewLinkRepository(db),
		variables: repository.NewVariableRepository(db),
		clicks:    repository.NewClickRepository(db),
		quota:     repository.NewQuotaRepository(rdb),
	}
}

func newLink(shortID string, vars ...string) *models.Link {
	link := &models.Link{
		Owner:       "alice",
		ShortID:     shortID,
		OriginalURL: "https://example.com/" + shortID,
		CreatedAt:   time.Now().UTC(),
	}
	for _, v := range vars {
		link.Variables = append(link.Variables, models.LinkVariable{Name: v, Placeholder: "{" + v + "}"})
	}
	return link
}

func variableValue(c models.Click, name string) string {
	for _, v := range c.Variables {
		if v.Name == name {
			return v.Value
		}
	}
	return ""
}

func TestIntegration_Repositories(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		link := newLink("aaaaaa", "campaign", "source")
		require.NoError(t, env.links.Create(ctx, link))
		assert.NotZero(t, link.ID)
		require.Len(t, link.Variables, 2)
		assert.NotZero(t, link.Variables[0].ID)

		got, err := env.links.GetByShortID(ctx, "aaaaaa")
		require.NoError(t, err)
		assert.Equal(t, link.OriginalURL, got.OriginalURL)
		assert.Zero(t, got.TotalClicks)

		vars, err := env.variables.ListByLink(ctx, link.ID)
		require.NoError(t, err)
		require.Len(t, vars, 2)
		assert.Equal(t, "campaign", vars[0].Name)
	})

	t.Run("DuplicateShortID", func(t *testing.T) {
		require.NoError(t, env.links.Create(ctx, newLink("dup123")))

		err := env.links.Create(ctx, newLink("dup123"))
		assert.ErrorIs(t, err, repository.ErrCodeExists)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := env.links.GetByShortID(ctx, "absent")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		err = env.links.Delete(ctx, "bob", "aaaaaa")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	})

	t.Run("ConcurrentClicks", func(t *testing.T) {
		link := newLink("conc01", "campaign")
		require.NoError(t, env.links.Create(ctx, link))

		const n = 40
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				click := &models.Click{
					LinkID:     link.ID,
					ClickedAt:  time.Now().UTC(),
					IPAddress:  "203.0.113.1",
					DeviceType: "Desktop",
					Country:    "Germany",
					VisitorID:  "visitor",
				}
				if i%2 == 0 {
					click.Variables = []models.ClickVariable{{VariableID: link.Variables[0].ID, Name: "campaign", Value: "summer"}}
				}
				assert.NoError(t, env.clicks.RecordClick(ctx, click))
			}(i)
		}
		wg.Wait()

		got, err := env.links.GetByShortID(ctx, "conc01")
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.TotalClicks)

		clicks, err := env.clicks.ListClicks(ctx, link.ID, nil)
		require.NoError(t, err)
		assert.Len(t, clicks, n)

		withVars := 0
		for _, c := range clicks {
			if variableValue(c, "campaign") == "summer" {
				withVars++
			}
		}
		assert.Equal(t, n/2, withVars)

		stats, err := env.clicks.GetStats(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(n), stats.TotalClicks)
		assert.Equal(t, int64(1), stats.UniqueVisitors)
	})

	t.Run("RecordClickUnknownLink", func(t *testing.T) {
		err := env.clicks.RecordClick(ctx, &models.Click{LinkID: 999999, ClickedAt: time.Now().UTC()})
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	})

	t.Run("RecordClickAfterDelete", func(t *testing.T) {
		link := newLink("gone01", "campaign")
		require.NoError(t, env.links.Create(ctx, link))
		require.NoError(t, env.links.Delete(ctx, "alice", "gone01"))

		err := env.clicks.RecordClick(ctx, &models.Click{
			LinkID:    link.ID,
			ClickedAt: time.Now().UTC(),
			Variables: []models.ClickVariable{{VariableID: link.Variables[0].ID, Value: "x"}},
		})
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	})

	t.Run("ListClicksWindow", func(t *testing.T) {
		link := newLink("window")
		require.NoError(t, env.links.Create(ctx, link))

		base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		for _, at := range []time.Time{base.AddDate(0, 0, -2), base, base.AddDate(0, 0, 2)} {
			require.NoError(t, env.clicks.RecordClick(ctx, &models.Click{LinkID: link.ID, ClickedAt: at, VisitorID: "v"}))
		}

		clicks, err := env.clicks.ListClicks(ctx, link.ID, &models.TimeRange{From: base.AddDate(0, 0, -1), To: base.AddDate(0, 0, 1)})
		require.NoError(t, err)
		require.Len(t, clicks, 1)
		assert.True(t, clicks[0].ClickedAt.Equal(base))

		all, err := env.clicks.ListClicks(ctx, link.ID, nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].ClickedAt.Before(all[2].ClickedAt))
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		link := newLink("cascad", "campaign")
		require.NoError(t, env.links.Create(ctx, link))
		require.NoError(t, env.clicks.RecordClick(ctx, &models.Click{
			LinkID:    link.ID,
			ClickedAt: time.Now().UTC(),
			Variables: []models.ClickVariable{{VariableID: link.Variables[0].ID, Value: "x"}},
		}))

		require.NoError(t, env.links.Delete(ctx, "alice", "cascad"))

		var remaining int
		err := env.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM clicks WHERE link_id = $1`, link.ID).Scan(&remaining)
		require.NoError(t, err)
		assert.Zero(t, remaining)
	})

	t.Run("Variables", func(t *testing.T) {
		link := newLink("vars01")
		require.NoError(t, env.links.Create(ctx, link))

		v := &models.LinkVariable{LinkID: link.ID, Name: "source", Placeholder: "{source}"}
		require.NoError(t, env.variables.Create(ctx, v))
		assert.NotZero(t, v.ID)

		require.NoError(t, env.variables.Delete(ctx, link.ID, v.ID))
		assert.ErrorIs(t, env.variables.Delete(ctx, link.ID, v.ID), repository.ErrVariableNotFound)
	})

	t.Run("OwnerSummary", func(t *testing.T) {
		base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
		for i, code := range []string{"carol1", "carol2"} {
			link := newLink(code)
			link.Owner = "carol"
			require.NoError(t, env.links.Create(ctx, link))
			for j := 0; j <= i*11; j++ {
				require.NoError(t, env.clicks.RecordClick(ctx, &models.Click{
					LinkID:     link.ID,
					ClickedAt:  base.Add(time.Duration(i*100+j) * time.Minute),
					Country:    "Germany",
					DeviceType: "Mobile",
				}))
			}
		}
		empty := newLink("carol3")
		empty.Owner = "carol"
		require.NoError(t, env.links.Create(ctx, empty))

		summary, err := env.clicks.GetOwnerSummary(ctx, "carol", 10)
		require.NoError(t, err)
		assert.Equal(t, int64(3), summary.TotalLinks)
		assert.Equal(t, int64(13), summary.TotalClicks)
		require.Len(t, summary.RecentClicks, 10)
		assert.Equal(t, "carol2", summary.RecentClicks[0].ShortID)
		assert.True(t, summary.RecentClicks[0].Timestamp.Equal(base.Add(111*time.Minute)))

		none, err := env.clicks.GetOwnerSummary(ctx, "nobody", 10)
		require.NoError(t, err)
		assert.Zero(t, none.TotalLinks)
		assert.Empty(t, none.RecentClicks)
	})

	t.Run("ListByOwner", func(t *testing.T) {
		links, err := env.links.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.NotEmpty(t, links)
		for _, l := range links {
			assert.Equal(t, "alice", l.Owner)
		}

		none, err := env.links.ListByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestIntegration_Quota(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := env.quota.Take(ctx, "geo-test", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "take %d", i+1)
	}

	ok, err := env.quota.Take(ctx, "geo-test", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.quota.Take(ctx, "geo-unlimited", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
