// Package enrichment вычисляет измерения клика из данных запроса.
// Вместо ошибки классификаторы возвращают значение по умолчанию.
package enrichment

import (
	"regexp"
	"strings"

	"github.com/mssola/useragent"
)

const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
	DeviceOther   = "Other"
	DeviceUnknown = "Unknown"
)

type DeviceClassifier interface {
	Classify(userAgent string) string
}

// productToken токен вида "name/version", он есть в любом настоящем user agent
var productToken = regexp.MustCompile(`[A-Za-z][\w.\-]*/\w`)

var (
	botMarkers     = []string{"bot", "crawler", "spider", "slurp", "preview"}
	tabletMarkers  = []string{"ipad", "tablet", "kindle", "silk/", "playbook"}
	mobileMarkers  = []string{"mobi", "iphone", "ipod", "windows phone"}
	desktopMarkers = []string{"windows nt", "macintosh", "mac os x", "x11", "linux", "cros"}
)

type userAgentClassifier struct{}

func NewDeviceClassifier() DeviceClassifier {
	return userAgentClassifier{}
}

func (userAgentClassifier) Classify(raw string) (device string) {
	defer func() {
		if recover() != nil {
			device = DeviceUnknown
		}
	}()

	raw = strings.TrimSpace(raw)
	if raw == "" || !productToken.MatchString(raw) {
		return DeviceUnknown
	}

	ua := useragent.New(raw)
	lower := strings.ToLower(raw)

	switch {
	case ua.Bot() || containsAny(lower, botMarkers):
		return DeviceOther
	case containsAny(lower, tabletMarkers) || (strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")):
		return DeviceTablet
	case ua.Mobile() || containsAny(lower, mobileMarkers):
		return DeviceMobile
	case containsAny(strings.ToLower(ua.OS()), desktopMarkers) || containsAny(lower, desktopMarkers):
		return DeviceDesktop
	}

	return DeviceOther
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
