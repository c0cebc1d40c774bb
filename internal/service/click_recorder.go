package service

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/enrichment"
	"github.com/SergeiKhy/link-tracker/internal/metrics"
	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/SergeiKhy/link-tracker/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Константы записи клика
const (
	persistAttempts      = 3
	persistTimeout       = 5 * time.Second
	defaultRetryDelay    = 100 * time.Millisecond
	maxVisitorIDLength   = 100
	maxCountryLength     = 100
	maxVariableValueSize = 255
)

// ClickRequest данные входящего запроса, нужные для записи клика
type ClickRequest struct {
	RemoteAddr   string
	ForwardedFor string
	UserAgent    string
	Query        url.Values
	VisitorID    string // значение cookie visitor_id, пусто если cookie нет
}

// ClickOutcome результат обработки перехода
type ClickOutcome struct {
	Destination string
	VisitorID   string
	NewVisitor  bool          // нужно выставить cookie
	Click       *models.Click // nil, если клик не удалось сохранить
}

// ClickRecorder записывает переход по короткой ссылке.
// Единственная ошибка, которую видит клиент, это repository.ErrLinkNotFound.
type ClickRecorder interface {
	RecordClick(ctx context.Context, shortID string, req ClickRequest) (*ClickOutcome, error)
}

type clickRecorder struct {
	linkRepo     repository.LinkRepository
	variableRepo repository.VariableRepository
	clickRepo    repository.ClickRepository
	devices      enrichment.DeviceClassifier
	geo          enrichment.GeoResolver
	logger       *zap.Logger
	now          func() time.Time
	retryDelay   time.Duration
}

// NewClickRecorder создаёт новый экземпляр записи кликов
func NewClickRecorder(
	linkRepo repository.LinkRepository,
	variableRepo repository.VariableRepository,
	clickRepo repository.ClickRepository,
	devices enrichment.DeviceClassifier,
	geo enrichment.GeoResolver,
	logger *zap.Logger,
) ClickRecorder {
	return &clickRecorder{
		linkRepo:     linkRepo,
		variableRepo: variableRepo,
		clickRepo:    clickRepo,
		devices:      devices,
		geo:          geo,
		logger:       logger,
		now:          time.Now,
		retryDelay:   defaultRetryDelay,
	}
}

func (r *clickRecorder) RecordClick(ctx context.Context, shortID string, req ClickRequest) (*ClickOutcome, error) {
	link, err := r.linkRepo.GetByShortID(ctx, shortID)
	if err != nil {
		return nil, err
	}

	outcome := &ClickOutcome{Destination: link.OriginalURL}
	outcome.VisitorID, outcome.NewVisitor = resolveVisitorID(req.VisitorID)

	ip := resolveClientIP(req.ForwardedFor, req.RemoteAddr)

	device := r.devices.Classify(req.UserAgent)
	if device == enrichment.DeviceUnknown {
		metrics.EnrichmentDegraded.WithLabelValues("device", "unparseable").Inc()
		r.logger.Debug("Не удалось определить устройство", zap.String("user_agent", req.UserAgent))
	}

	country := truncateRunes(r.geo.Resolve(ctx, ip), maxCountryLength)

	// День недели и час берутся по серверным часам в UTC, понедельник = 0
	clickedAt := r.now().UTC()
	click := &models.Click{
		LinkID:     link.ID,
		ClickedAt:  clickedAt,
		IPAddress:  ip,
		UserAgent:  req.UserAgent,
		DeviceType: device,
		Country:    country,
		Weekday:    (int(clickedAt.Weekday()) + 6) % 7,
		Hour:       clickedAt.Hour(),
		VisitorID:  outcome.VisitorID,
	}

	variables, err := r.variableRepo.ListByLink(ctx, link.ID)
	if err != nil {
		// Без переменных клик всё равно полезен
		r.logger.Warn("Не удалось получить переменные ссылки",
			zap.String("short_id", shortID),
			zap.Error(err),
		)
	}
	click.Variables = matchVariables(variables, req.Query)

	if err := r.persist(ctx, shortID, click); err != nil {
		// Ссылку удалили после резолва: редирект уже определён, клик писать некуда
		if errors.Is(err, repository.ErrLinkNotFound) {
			r.logger.Info("Ссылка удалена до записи клика",
				zap.String("short_id", shortID),
			)
			return outcome, nil
		}

		metrics.ClickPersistFailures.Inc()
		r.logger.Error("Не удалось записать клик после всех попыток",
			zap.String("short_id", shortID),
			zap.Error(err),
		)
		return outcome, nil
	}

	metrics.ClicksRecorded.Inc()
	outcome.Click = click
	return outcome, nil
}

// persist сохраняет клик с повторами. Запись не зависит от отмены клиентского
// запроса, но ограничена собственным таймаутом.
func (r *clickRecorder) persist(ctx context.Context, shortID string, click *models.Click) error {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		err = r.clickRepo.RecordClick(persistCtx, click)
		if err == nil || errors.Is(err, repository.ErrLinkNotFound) {
			return err
		}

		if attempt < persistAttempts {
			r.logger.Debug("Повторная попытка записи клика",
				zap.String("short_id", shortID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			select {
			case <-persistCtx.Done():
				return persistCtx.Err()
			case <-time.After(time.Duration(attempt) * r.retryDelay):
			}
		}
	}
	return err
}

// resolveClientIP берёт первый адрес из X-Forwarded-For, иначе адрес соединения.
// Заголовок подделывается клиентом, если прокси ему не доверяет.
func resolveClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(remoteAddr)
}

func resolveVisitorID(cookie string) (string, bool) {
	if cookie != "" && len(cookie) <= maxVisitorIDLength {
		return cookie, false
	}
	return uuid.NewString(), true
}

// matchVariables сопоставляет переменные ссылки с параметрами запроса.
// Записываются только переменные с непустым именем и непустым значением.
func matchVariables(variables []models.LinkVariable, query url.Values) []models.ClickVariable {
	var matched []models.ClickVariable
	for _, v := range variables {
		if v.Name == "" {
			continue
		}
		value := query.Get(v.Name)
		if value == "" {
			continue
		}
		matched = append(matched, models.ClickVariable{
			VariableID: v.ID,
			Name:       v.Name,
			Value:      truncateRunes(value, maxVariableValueSize),
		})
	}
	return matched
}
