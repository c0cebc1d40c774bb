package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ownerContextKey = "owner"

// APIKeyConfig конфигурация аутентификации владельца по API ключу
type APIKeyConfig struct {
	// Keys карта API ключ -> владелец
	Keys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
}

// APIKey middleware определяет владельца запроса по API ключу
type APIKey struct {
	config APIKeyConfig
}

// NewAPIKey создаёт новый API key middleware
func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return &APIKey{config: config}
}

// Middleware проверяет ключ и кладёт владельца в контекст запроса
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := extractAPIKey(c, ak.config.HeaderName)
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ. Передайте его через заголовок X-API-Key, query параметр api_key или Authorization: Bearer",
			})
			return
		}

		// Сравнение за постоянное время, перебираются все ключи
		owner := ""
		for key, name := range ak.config.Keys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				owner = name
			}
		}

		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			return
		}

		c.Set(ownerContextKey, owner)
		c.Next()
	}
}

// RequireAPIKey хелпер для защищённых маршрутов
func RequireAPIKey(keys map[string]string) gin.HandlerFunc {
	return NewAPIKey(APIKeyConfig{Keys: keys}).Middleware()
}

// OwnerFromContext возвращает владельца, установленного middleware.
// Без аутентификации владелец пустой.
func OwnerFromContext(c *gin.Context) string {
	return c.GetString(ownerContextKey)
}

func extractAPIKey(c *gin.Context, header string) string {
	if key := c.GetHeader(header); key != "" {
		return key
	}
	if key := c.Query("api_key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
