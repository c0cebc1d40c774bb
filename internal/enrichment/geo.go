package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/metrics"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

const (
	CountryLocal   = "Local"
	CountryUnknown = "Unknown"
)

const defaultLookupTimeout = 2 * time.Second

// GeoResolver определяет страну по IP. Никогда не падает:
// для неопределённых адресов возвращается CountryUnknown.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) string
}

// CountryDB часть *geoip2.Reader для локального поиска
type CountryDB interface {
	Country(ip net.IP) (*geoip2.Country, error)
}

// CountryLookup определяет страну через удалённый сервис
type CountryLookup interface {
	LookupCountry(ctx context.Context, ip string) (string, error)
}

// OpenCountryDB открывает базу GeoLite2. Локальная база необязательна:
// пустой путь или отсутствующий файл дают nil без ошибки.
func OpenCountryDB(path string, logger *zap.Logger) (*geoip2.Reader, error) {
	if path == "" {
		logger.Info("Путь к базе GeoIP не задан, локальный поиск отключён")
		return nil, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warn("База GeoIP не найдена, локальный поиск отключён", zap.String("path", path))
		return nil, nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу GeoIP %s: %w", path, err)
	}

	logger.Info("База GeoIP открыта", zap.String("path", path))
	return db, nil
}

type geoResolver struct {
	local   CountryDB
	remote  CountryLookup
	timeout time.Duration
	logger  *zap.Logger
}

// NewGeoResolver объединяет локальную базу и удалённый fallback.
// Любой из них может быть nil.
func NewGeoResolver(local CountryDB, remote CountryLookup, timeout time.Duration, logger *zap.Logger) GeoResolver {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &geoResolver{
		local:   local,
		remote:  remote,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *geoResolver) Resolve(ctx context.Context, raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		r.degraded("invalid_ip", raw, nil)
		return CountryUnknown
	}

	if isLocalAddress(ip) {
		return CountryLocal
	}

	if r.local != nil {
		record, err := r.local.Country(ip)
		if err != nil {
			r.logger.Debug("Ошибка локального поиска GeoIP", zap.String("ip", raw), zap.Error(err))
		} else if name := record.Country.Names["en"]; name != "" {
			return name
		}
	}

	if r.remote == nil {
		r.degraded("not_found", raw, nil)
		return CountryUnknown
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name, err := r.remote.LookupCountry(lookupCtx, ip.String())
	switch {
	case errors.Is(err, ErrLookupBudget):
		r.degraded("budget", raw, err)
		return CountryUnknown
	case errors.Is(err, context.DeadlineExceeded):
		r.degraded("timeout", raw, err)
		return CountryUnknown
	case err != nil:
		r.degraded("remote_error", raw, err)
		return CountryUnknown
	case name == "":
		r.degraded("not_found", raw, nil)
		return CountryUnknown
	}

	return name
}

func (r *geoResolver) degraded(reason, ip string, err error) {
	metrics.EnrichmentDegraded.WithLabelValues("geo", reason).Inc()
	fields := []zap.Field{zap.String("ip", ip), zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.logger.Warn("Не удалось определить страну", fields...)
}

func isLocalAddress(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}
