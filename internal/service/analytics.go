package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/enrichment"
	"github.com/SergeiKhy/link-tracker/internal/models"
)

const (
	recentClicksLimit = 100
	exportReferrer    = "Direct"
	exportTimeLayout  = "2006-01-02 15:04:05"
	dayLayout         = "2006-01-02"
)

var exportBaseHeader = []string{"Time", "Location", "Device", "Referrer", "Browser"}

// aggregate считает сводку по кликам одного окна. clicks отсортированы по
// времени от старых к новым, как их отдаёт репозиторий.
func aggregate(
	link *models.Link,
	variables []models.LinkVariable,
	clicks []models.Click,
	window models.TimeRange,
	now time.Time,
	topN int,
) *models.AnalyticsSummary {
	summary := &models.AnalyticsSummary{
		ShortID:        link.ShortID,
		Name:           link.DisplayName(),
		Range:          window,
		TotalClicks:    int64(len(clicks)),
		LifetimeClicks: link.TotalClicks,
	}

	visitors := make(map[string]struct{})
	byDay := make(map[string]int64)
	byDevice := make(map[string]int64)
	byCountry := make(map[string]int64)

	for i := range clicks {
		c := &clicks[i]
		if c.VisitorID != "" {
			visitors[c.VisitorID] = struct{}{}
		}
		byDay[c.ClickedAt.UTC().Format(dayLayout)]++
		byDevice[c.DeviceType]++
		byCountry[c.Country]++
		if c.Weekday >= 0 && c.Weekday < len(summary.ClicksByWeekday) {
			summary.ClicksByWeekday[c.Weekday]++
		}
		if c.Hour >= 0 && c.Hour < len(summary.ClicksByHour) {
			summary.ClicksByHour[c.Hour]++
		}
	}

	summary.UniqueVisitors = int64(len(visitors))
	summary.AvgDailyClicks = averageDaily(summary.TotalClicks, link.CreatedAt, now)
	summary.ClicksByDay = dailyCounts(byDay)
	summary.ClicksByDevice = rankedCounts(byDevice)
	summary.ClicksByCountry = rankedCounts(byCountry)
	summary.Variables = variableStats(variables, clicks, topN)
	summary.RecentClicks = recentClicks(clicks, recentClicksLimit)

	return summary
}

// averageDaily = round(total / max(1, полных дней с создания), 1)
func averageDaily(total int64, createdAt, now time.Time) float64 {
	days := int64(now.Sub(createdAt) / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	return math.Round(float64(total)/float64(days)*10) / 10
}

func dailyCounts(byDay map[string]int64) []models.DailyCount {
	days := make([]models.DailyCount, 0, len(byDay))
	for date, count := range byDay {
		days = append(days, models.DailyCount{Date: date, Count: count})
	}
	// ISO даты сортируются лексикографически
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}

// rankedCounts сортирует по убыванию, при равенстве по значению
func rankedCounts(counts map[string]int64) []models.GroupCount {
	groups := make([]models.GroupCount, 0, len(counts))
	for value, count := range counts {
		groups = append(groups, models.GroupCount{Value: value, Count: count})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Value < groups[j].Value
	})
	return groups
}

// variableStats возвращает статистику по каждой переменной ссылки.
// Топ значений упорядочен по убыванию, при равенстве по первому появлению.
func variableStats(variables []models.LinkVariable, clicks []models.Click, topN int) []models.VariableStats {
	stats := make([]models.VariableStats, 0, len(variables))

	for _, v := range variables {
		counts := make(map[string]int64)
		var order []string
		var usage int64

		for i := range clicks {
			for _, cv := range clicks[i].Variables {
				if cv.VariableID != v.ID {
					continue
				}
				usage++
				if _, seen := counts[cv.Value]; !seen {
					order = append(order, cv.Value)
				}
				counts[cv.Value]++
			}
		}

		top := make([]models.GroupCount, 0, len(order))
		for _, value := range order {
			top = append(top, models.GroupCount{Value: value, Count: counts[value]})
		}
		sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
		if topN > 0 && len(top) > topN {
			top = top[:topN]
		}

		stats = append(stats, models.VariableStats{
			Name:         v.Name,
			TotalUsage:   usage,
			UniqueValues: len(order),
			TopValues:    top,
		})
	}

	return stats
}

// recentClicks возвращает последние клики, новые первыми
func recentClicks(clicks []models.Click, limit int) []models.ClickDetail {
	n := len(clicks)
	if n > limit {
		n = limit
	}

	details := make([]models.ClickDetail, 0, n)
	for i := len(clicks) - 1; i >= 0 && len(details) < n; i-- {
		c := &clicks[i]
		vars := make(map[string]string, len(c.Variables))
		for _, cv := range c.Variables {
			vars[cv.Name] = cv.Value
		}
		details = append(details, models.ClickDetail{
			Timestamp:  c.ClickedAt,
			Country:    c.Country,
			DeviceType: c.DeviceType,
			Variables:  vars,
		})
	}
	return details
}

// buildExport строит таблицу для CSV: строка на каждый клик, новые первыми,
// затем по колонке на каждую переменную ссылки.
func buildExport(link *models.Link, variables []models.LinkVariable, clicks []models.Click, now time.Time) *models.AnalyticsExport {
	header := make([]string, 0, len(exportBaseHeader)+len(variables))
	header = append(header, exportBaseHeader...)
	for _, v := range variables {
		header = append(header, v.Name)
	}

	rows := make([][]string, 0, len(clicks))
	for i := len(clicks) - 1; i >= 0; i-- {
		c := &clicks[i]
		row := make([]string, 0, len(header))
		row = append(row,
			c.ClickedAt.UTC().Format(exportTimeLayout),
			c.Country,
			c.DeviceType,
			exportReferrer,
			enrichment.BrowserFamily(c.UserAgent),
		)
		for _, v := range variables {
			row = append(row, clickValue(c, v.ID))
		}
		rows = append(rows, row)
	}

	return &models.AnalyticsExport{
		Filename: exportFilename(link, now),
		Header:   header,
		Rows:     rows,
	}
}

func clickValue(c *models.Click, variableID int64) string {
	for _, cv := range c.Variables {
		if cv.VariableID == variableID {
			return cv.Value
		}
	}
	return ""
}

// exportFilename: <имя-или-id>_analytics_<YYYYMMDD>.csv
func exportFilename(link *models.Link, now time.Time) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '"', r == '/', r == '\\', r == ';':
			return '_'
		}
		return r
	}, link.DisplayName())
	return base + "_analytics_" + now.UTC().Format("20060102") + ".csv"
}
