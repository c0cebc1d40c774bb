package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pariz/gountries"
)

var ErrLookupBudget = errors.New("исчерпан бюджет удалённых запросов геолокации")

const budgetKey = "geo-fallback"

// Budget общий лимит запросов на окно времени
type Budget interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// remoteLookup ходит в JSON API, совместимый с ip-api:
// GET <base>/<ip>?fields=status,message,country,countryCode
type remoteLookup struct {
	client    *http.Client
	baseURL   string
	budget    Budget
	perMinute int
	countries *gountries.Query
}

// NewRemoteLookup создаёт удалённый поиск, budget может быть nil
func NewRemoteLookup(baseURL string, budget Budget, perMinute int, client *http.Client) CountryLookup {
	if client == nil {
		client = &http.Client{}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &remoteLookup{
		client:    client,
		baseURL:   baseURL,
		budget:    budget,
		perMinute: perMinute,
		countries: gountries.New(),
	}
}

type remoteResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

func (l *remoteLookup) LookupCountry(ctx context.Context, ip string) (string, error) {
	if l.budget != nil {
		ok, err := l.budget.Take(ctx, budgetKey, l.perMinute, time.Minute)
		if err != nil {
			return "", fmt.Errorf("take lookup budget: %w", err)
		}
		if !ok {
			return "", ErrLookupBudget
		}
	}

	endpoint := l.baseURL + url.PathEscape(ip) + "?fields=status,message,country,countryCode"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: remote returned %d", ErrLookupBudget, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote lookup: unexpected status %d", resp.StatusCode)
	}

	var body remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode lookup response: %w", err)
	}

	if body.Status != "" && body.Status != "success" {
		return "", fmt.Errorf("remote lookup failed: %s", body.Message)
	}

	if body.CountryCode != "" {
		if country, err := l.countries.FindCountryByAlpha(body.CountryCode); err == nil {
			return country.Name.Common, nil
		}
	}

	return body.Country, nil
}
