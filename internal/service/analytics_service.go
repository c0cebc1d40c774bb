package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/config"
	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/SergeiKhy/link-tracker/internal/repository"
	"go.uber.org/zap"
)

var ErrInvalidRange = errors.New("невалидный период")

// Количество последних кликов в сводке владельца
const ownerRecentClicksLimit = 10

// RangeQuery период аналитики из параметров запроса.
// From и To задают календарные дни включительно; Days используется, если From не задан.
type RangeQuery struct {
	From *time.Time
	To   *time.Time
	Days int
}

// ParseRangeQuery разбирает параметры from/to (YYYY-MM-DD) и days
func ParseRangeQuery(from, to, days string) (RangeQuery, error) {
	var q RangeQuery

	if from = strings.TrimSpace(from); from != "" {
		t, err := time.Parse(dayLayout, from)
		if err != nil {
			return q, fmt.Errorf("%w: from=%q", ErrInvalidRange, from)
		}
		q.From = &t
	}

	if to = strings.TrimSpace(to); to != "" {
		t, err := time.Parse(dayLayout, to)
		if err != nil {
			return q, fmt.Errorf("%w: to=%q", ErrInvalidRange, to)
		}
		q.To = &t
	}

	if days = strings.TrimSpace(days); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return q, fmt.Errorf("%w: days=%q", ErrInvalidRange, days)
		}
		q.Days = n
	}

	return q, nil
}

// AnalyticsService аналитика по кликам ссылки. Только чтение, каждый вызов
// пересчитывает результат по сырым строкам.
type AnalyticsService interface {
	Summary(ctx context.Context, owner, code string, q RangeQuery) (*models.AnalyticsSummary, error)
	Stats(ctx context.Context, owner, code string) (*models.ClickStats, error)
	Export(ctx context.Context, owner, code string) (*models.AnalyticsExport, error)
	// Dashboard сводка по всем ссылкам владельца
	Dashboard(ctx context.Context, owner string) (*models.OwnerSummary, error)
}

type analyticsService struct {
	linkRepo     repository.LinkRepository
	variableRepo repository.VariableRepository
	clickRepo    repository.ClickRepository
	cfg          config.AnalyticsConfig
	logger       *zap.Logger
	now          func() time.Time
}

func NewAnalyticsService(
	linkRepo repository.LinkRepository,
	variableRepo repository.VariableRepository,
	clickRepo repository.ClickRepository,
	cfg config.AnalyticsConfig,
	logger *zap.Logger,
) AnalyticsService {
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = 30
	}
	if cfg.TopValues <= 0 {
		cfg.TopValues = 5
	}
	return &analyticsService{
		linkRepo:     linkRepo,
		variableRepo: variableRepo,
		clickRepo:    clickRepo,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *analyticsService) Summary(ctx context.Context, owner, code string, q RangeQuery) (*models.AnalyticsSummary, error) {
	now := s.now().UTC()

	window, err := s.resolveRange(q, now)
	if err != nil {
		return nil, err
	}

	link, variables, err := s.ownedLink(ctx, owner, code)
	if err != nil {
		return nil, err
	}

	clicks, err := s.clickRepo.ListClicks(ctx, link.ID, &window)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Расчёт аналитики",
		zap.String("short_id", code),
		zap.Time("from", window.From),
		zap.Time("to", window.To),
		zap.Int("clicks", len(clicks)),
	)

	return aggregate(link, variables, clicks, window, now, s.cfg.TopValues), nil
}

func (s *analyticsService) Stats(ctx context.Context, owner, code string) (*models.ClickStats, error) {
	link, err := s.linkRepo.GetByShortID(ctx, code)
	if err != nil {
		return nil, err
	}
	if link.Owner != owner {
		return nil, repository.ErrLinkNotFound
	}

	stats, err := s.clickRepo.GetStats(ctx, link.ID)
	if err != nil {
		return nil, err
	}
	stats.ShortID = link.ShortID

	return stats, nil
}

// Export выгружает все клики ссылки за всё время
func (s *analyticsService) Export(ctx context.Context, owner, code string) (*models.AnalyticsExport, error) {
	link, variables, err := s.ownedLink(ctx, owner, code)
	if err != nil {
		return nil, err
	}

	clicks, err := s.clickRepo.ListClicks(ctx, link.ID, nil)
	if err != nil {
		return nil, err
	}

	return buildExport(link, variables, clicks, s.now()), nil
}

func (s *analyticsService) Dashboard(ctx context.Context, owner string) (*models.OwnerSummary, error) {
	return s.clickRepo.GetOwnerSummary(ctx, owner, ownerRecentClicksLimit)
}

func (s *analyticsService) ownedLink(ctx context.Context, owner, code string) (*models.Link, []models.LinkVariable, error) {
	link, err := s.linkRepo.GetByShortID(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if link.Owner != owner {
		return nil, nil, repository.ErrLinkNotFound
	}

	variables, err := s.variableRepo.ListByLink(ctx, link.ID)
	if err != nil {
		return nil, nil, err
	}

	return link, variables, nil
}

// resolveRange: по умолчанию последние DefaultDays дней до текущего момента
func (s *analyticsService) resolveRange(q RangeQuery, now time.Time) (models.TimeRange, error) {
	to := now
	if q.To != nil {
		to = startOfDay(*q.To).Add(24*time.Hour - time.Nanosecond)
	}

	var from time.Time
	switch {
	case q.From != nil:
		from = startOfDay(*q.From)
	case q.Days > 0:
		from = to.AddDate(0, 0, -q.Days)
	default:
		from = to.AddDate(0, 0, -s.cfg.DefaultDays)
	}

	if from.After(to) {
		return models.TimeRange{}, fmt.Errorf("%w: from %s is after to %s",
			ErrInvalidRange, from.Format(dayLayout), to.Format(dayLayout))
	}

	return models.TimeRange{From: from, To: to}, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
