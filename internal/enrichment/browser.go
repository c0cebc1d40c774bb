package enrichment

import "strings"

const BrowserUnknown = "Unknown"

// Порядок важен: побеждает первый совпавший токен
var browserFamilies = []struct {
	token string
	name  string
}{
	{"firefox", "Firefox"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
	{"edge", "Edge"},
	{"opera", "Opera"},
}

// BrowserFamily грубое семейство браузера для строк экспорта
func BrowserFamily(userAgent string) string {
	lower := strings.ToLower(userAgent)
	for _, b := range browserFamilies {
		if strings.Contains(lower, b.token) {
			return b.name
		}
	}
	return BrowserUnknown
}
