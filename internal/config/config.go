package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	ShortID   ShortIDConfig
	GeoIP     GeoIPConfig
	Analytics AnalyticsConfig
	Log       LogConfig
}

type AppConfig struct {
	Port    string
	BaseURL string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	APIKeys map[string]string // API key -> owner
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

type ShortIDConfig struct {
	Length      int
	MaxAttempts int
}

// GeoIPConfig настройки определения страны по IP
type GeoIPConfig struct {
	DBPath          string        // путь к GeoLite2 .mmdb, пусто - локальная база отключена
	FallbackURL     string        // удалённый сервис, пусто - fallback отключён
	FallbackTimeout time.Duration // таймаут одного удалённого запроса
	FallbackPerMin  int           // бюджет удалённых запросов в минуту на все инстансы
}

type AnalyticsConfig struct {
	DefaultDays int
	TopValues   int
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

func setDefaults() {
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_BASE_URL", "http://localhost:8080")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("SHORT_ID_LENGTH", 6)
	viper.SetDefault("SHORT_ID_MAX_ATTEMPTS", 10)
	viper.SetDefault("GEOIP_FALLBACK_URL", "http://ip-api.com/json/")
	viper.SetDefault("GEOIP_FALLBACK_TIMEOUT", 2*time.Second)
	viper.SetDefault("GEOIP_FALLBACK_PER_MINUTE", 45)
	viper.SetDefault("ANALYTICS_DEFAULT_DAYS", 30)
	viper.SetDefault("ANALYTICS_TOP_VALUES", 5)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_MAX_SIZE_MB", 100)
	viper.SetDefault("LOG_MAX_BACKUPS", 5)
}

// Load читает .env (если он есть) и переменные окружения
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	setDefaults()

	if _, err := os.Stat(".env"); err == nil {
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	cfg.App.BaseURL = strings.TrimRight(viper.GetString("APP_BASE_URL"), "/")
	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")
	cfg.Redis.Password = viper.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = viper.GetInt("REDIS_DB")

	// Format: key1:owner1,key2:owner2
	cfg.Auth.APIKeys = parseAPIKeys(viper.GetString("API_KEYS"))

	cfg.RateLimit.RequestsPerSecond = viper.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = viper.GetInt("RATE_LIMIT_BURST")

	cfg.ShortID.Length = viper.GetInt("SHORT_ID_LENGTH")
	cfg.ShortID.MaxAttempts = viper.GetInt("SHORT_ID_MAX_ATTEMPTS")
	if cfg.ShortID.Length <= 0 {
		cfg.ShortID.Length = 6
	}
	if cfg.ShortID.MaxAttempts <= 0 {
		cfg.ShortID.MaxAttempts = 10
	}

	cfg.GeoIP.DBPath = viper.GetString("GEOIP_DB_PATH")
	cfg.GeoIP.FallbackURL = viper.GetString("GEOIP_FALLBACK_URL")
	cfg.GeoIP.FallbackTimeout = viper.GetDuration("GEOIP_FALLBACK_TIMEOUT")
	cfg.GeoIP.FallbackPerMin = viper.GetInt("GEOIP_FALLBACK_PER_MINUTE")

	cfg.Analytics.DefaultDays = viper.GetInt("ANALYTICS_DEFAULT_DAYS")
	cfg.Analytics.TopValues = viper.GetInt("ANALYTICS_TOP_VALUES")

	cfg.Log.Level = viper.GetString("LOG_LEVEL")
	cfg.Log.File = viper.GetString("LOG_FILE")
	cfg.Log.MaxSizeMB = viper.GetInt("LOG_MAX_SIZE_MB")
	cfg.Log.MaxBackups = viper.GetInt("LOG_MAX_BACKUPS")

	return &cfg, nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:owner1,key2:owner2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		key, owner := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if key == "" || owner == "" {
			continue
		}
		keys[key] = owner
	}

	return keys
}
