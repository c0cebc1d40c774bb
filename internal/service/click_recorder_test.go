package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/enrichment"
	"github.com/SergeiKhy/link-tracker/internal/metrics"
	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/SergeiKhy/link-tracker/internal/repository"
	"github.com/SergeiKhy/link-tracker/internal/service/mocks"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

type recorderFixture struct {
	recorder  *clickRecorder
	linkRepo  *mocks.MockLinkRepository
	clickRepo *mocks.MockClickRepository
	link      *models.Link
}

func setupRecorder(t *testing.T) *recorderFixture {
	t.Helper()

	linkRepo := mocks.NewMockLinkRepository()
	variableRepo := mocks.NewMockVariableRepository(linkRepo)
	clickRepo := mocks.NewMockClickRepository(linkRepo)

	link := &models.Link{
		Owner:       "alice",
		ShortID:     "abc123",
		OriginalURL: "https://example.com/landing",
		Variables:   []models.LinkVariable{{Name: "campaign", Placeholder: "{campaign}"}},
	}
	require.NoError(t, linkRepo.Create(context.Background(), link))

	recorder := NewClickRecorder(
		linkRepo,
		variableRepo,
		clickRepo,
		enrichment.NewDeviceClassifier(),
		enrichment.NewGeoResolver(nil, nil, time.Second, zap.NewNop()),
		zap.NewNop(),
	).(*clickRecorder)
	recorder.retryDelay = time.Millisecond

	return &recorderFixture{recorder: recorder, linkRepo: linkRepo, clickRepo: clickRepo, link: link}
}

func (f *recorderFixture) totalClicks(t *testing.T) int64 {
	t.Helper()
	link, err := f.linkRepo.GetByShortID(context.Background(), f.link.ShortID)
	require.NoError(t, err)
	return link.TotalClicks
}

func TestClickRecorder_UnknownLink(t *testing.T) {
	f := setupRecorder(t)

	outcome, err := f.recorder.RecordClick(context.Background(), "nope42", ClickRequest{RemoteAddr: "8.8.8.8:1234"})

	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	assert.Nil(t, outcome)
	assert.Empty(t, f.clickRepo.Clicks())
	assert.Zero(t, f.clickRepo.RecordCalls)
}

func TestClickRecorder_RecordsClick(t *testing.T) {
	f := setupRecorder(t)

	outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{
		RemoteAddr: "127.0.0.1:51000",
		UserAgent:  iphoneUA,
	})
	require.NoError(t, err)

	assert.Equal(t, f.link.OriginalURL, outcome.Destination)
	require.NotNil(t, outcome.Click)
	assert.Equal(t, enrichment.DeviceMobile, outcome.Click.DeviceType)
	assert.Equal(t, enrichment.CountryLocal, outcome.Click.Country)
	assert.Equal(t, "127.0.0.1", outcome.Click.IPAddress)
	assert.Equal(t, iphoneUA, outcome.Click.UserAgent)
	assert.Equal(t, int64(1), f.totalClicks(t))
	assert.Len(t, f.clickRepo.Clicks(), 1)
}

func TestClickRecorder_ConcurrentClicks(t *testing.T) {
	f := setupRecorder(t)
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{RemoteAddr: "10.0.0.1:80"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(n), f.totalClicks(t))
	assert.Len(t, f.clickRepo.Clicks(), n)
}

func TestClickRecorder_UnparseableUserAgent(t *testing.T) {
	f := setupRecorder(t)

	for _, ua := range []string{"", "   ", "%%%"} {
		outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{
			RemoteAddr: "8.8.8.8:443",
			UserAgent:  ua,
		})
		require.NoError(t, err)
		assert.Equal(t, f.link.OriginalURL, outcome.Destination)
		require.NotNil(t, outcome.Click)
		assert.Equal(t, enrichment.DeviceUnknown, outcome.Click.DeviceType)
		assert.Equal(t, enrichment.CountryUnknown, outcome.Click.Country)
	}
}

func TestClickRecorder_ClientIP(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		remote    string
		wantIP    string
		country   string
	}{
		{"forwarded first entry", "203.0.113.7, 10.0.0.1", "10.0.0.2:80", "203.0.113.7", enrichment.CountryUnknown},
		{"forwarded loopback", "127.0.0.1", "8.8.8.8:80", "127.0.0.1", enrichment.CountryLocal},
		{"remote addr with port", "", "192.168.1.5:5555", "192.168.1.5", enrichment.CountryLocal},
		{"ipv6 remote addr", "", "[::1]:8080", "::1", enrichment.CountryLocal},
		{"blank forwarded", " , 1.1.1.1", "172.16.0.1:1", "172.16.0.1", enrichment.CountryLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupRecorder(t)

			outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{
				RemoteAddr:   tt.remote,
				ForwardedFor: tt.forwarded,
			})
			require.NoError(t, err)
			require.NotNil(t, outcome.Click)
			assert.Equal(t, tt.wantIP, outcome.Click.IPAddress)
			assert.Equal(t, tt.country, outcome.Click.Country)
		})
	}
}

func TestClickRecorder_Variables(t *testing.T) {
	f := setupRecorder(t)

	outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{
		RemoteAddr: "8.8.8.8:1",
		Query:      url.Values{"campaign": {"summer"}, "other": {"x"}},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Click.Variables, 1)
	assert.Equal(t, "summer", outcome.Click.Variables[0].Value)
	assert.Equal(t, f.link.Variables[0].ID, outcome.Click.Variables[0].VariableID)

	for _, query := range []url.Values{nil, {}, {"campaign": {""}}} {
		outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{
			RemoteAddr: "8.8.8.8:1",
			Query:      query,
		})
		require.NoError(t, err)
		assert.Empty(t, outcome.Click.Variables)
	}

	long := strings.Repeat("v", 300)
	outcome, err = f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{
		RemoteAddr: "8.8.8.8:1",
		Query:      url.Values{"campaign": {long}},
	})
	require.NoError(t, err)
	require.Len(t, outcome.Click.Variables, 1)
	assert.Len(t, outcome.Click.Variables[0].Value, 255)
}

func TestClickRecorder_VisitorID(t *testing.T) {
	f := setupRecorder(t)
	ctx := context.Background()

	outcome, err := f.recorder.RecordClick(ctx, f.link.ShortID, ClickRequest{RemoteAddr: "8.8.8.8:1"})
	require.NoError(t, err)
	assert.True(t, outcome.NewVisitor)
	_, err = uuid.Parse(outcome.VisitorID)
	assert.NoError(t, err)
	assert.Equal(t, outcome.VisitorID, outcome.Click.VisitorID)

	returning, err := f.recorder.RecordClick(ctx, f.link.ShortID, ClickRequest{RemoteAddr: "8.8.8.8:1", VisitorID: outcome.VisitorID})
	require.NoError(t, err)
	assert.False(t, returning.NewVisitor)
	assert.Equal(t, outcome.VisitorID, returning.VisitorID)

	oversized, err := f.recorder.RecordClick(ctx, f.link.ShortID, ClickRequest{RemoteAddr: "8.8.8.8:1", VisitorID: strings.Repeat("x", 101)})
	require.NoError(t, err)
	assert.True(t, oversized.NewVisitor)
	assert.NotEqual(t, strings.Repeat("x", 101), oversized.VisitorID)
}

func TestClickRecorder_WeekdayAndHour(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		weekday int
		hour    int
	}{
		{"monday", time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC), 0, 15},
		{"sunday", time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC), 6, 23},
		{"converted to utc", time.Date(2024, 3, 4, 1, 30, 0, 0, time.FixedZone("MSK", 3*3600)), 6, 22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupRecorder(t)
			f.recorder.now = func() time.Time { return tt.now }

			outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{RemoteAddr: "8.8.8.8:1"})
			require.NoError(t, err)
			assert.Equal(t, tt.weekday, outcome.Click.Weekday)
			assert.Equal(t, tt.hour, outcome.Click.Hour)
			assert.Equal(t, time.UTC, outcome.Click.ClickedAt.Location())
		})
	}
}

func TestClickRecorder_RetriesPersistence(t *testing.T) {
	f := setupRecorder(t)
	f.clickRepo.FailNext(2)

	outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{RemoteAddr: "8.8.8.8:1"})

	require.NoError(t, err)
	assert.NotNil(t, outcome.Click)
	assert.Equal(t, 3, f.clickRepo.RecordCalls)
	assert.Equal(t, int64(1), f.totalClicks(t))
}

func TestClickRecorder_PersistenceFailureStillRedirects(t *testing.T) {
	f := setupRecorder(t)
	f.clickRepo.FailNext(10)

	outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{RemoteAddr: "8.8.8.8:1"})

	require.NoError(t, err)
	assert.Equal(t, f.link.OriginalURL, outcome.Destination)
	assert.Nil(t, outcome.Click)
	assert.Equal(t, persistAttempts, f.clickRepo.RecordCalls)
	assert.Zero(t, f.totalClicks(t))
}

func TestClickRecorder_CancelledRequestStillPersists(t *testing.T) {
	f := setupRecorder(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := f.recorder.RecordClick(ctx, f.link.ShortID, ClickRequest{RemoteAddr: "127.0.0.1:1"})

	require.NoError(t, err)
	assert.NotNil(t, outcome.Click)
	assert.Equal(t, int64(1), f.totalClicks(t))
}

// deletingGeo удаляет ссылку во время обогащения клика, то есть между резолвом и записью
type deletingGeo struct {
	links *mocks.MockLinkRepository
	link  *models.Link
}

func (g deletingGeo) Resolve(ctx context.Context, ip string) string {
	_ = g.links.Delete(ctx, g.link.Owner, g.link.ShortID)
	return enrichment.CountryUnknown
}

func TestClickRecorder_LinkDeletedBeforePersist(t *testing.T) {
	f := setupRecorder(t)
	f.recorder.geo = deletingGeo{links: f.linkRepo, link: f.link}
	f.recorder.retryDelay = time.Second
	failuresBefore := testutil.ToFloat64(metrics.ClickPersistFailures)

	start := time.Now()
	outcome, err := f.recorder.RecordClick(context.Background(), f.link.ShortID, ClickRequest{RemoteAddr: "8.8.8.8:1"})

	require.NoError(t, err)
	assert.Equal(t, f.link.OriginalURL, outcome.Destination)
	assert.Nil(t, outcome.Click)
	assert.Equal(t, 1, f.clickRepo.RecordCalls, "deleted link must not be retried")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, f.clickRepo.Clicks())
	assert.Equal(t, failuresBefore, testutil.ToFloat64(metrics.ClickPersistFailures))
}
