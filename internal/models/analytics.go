package models

import (
	"time"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type GroupCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

type VariableStats struct {
	Name         string       `json:"name"`
	TotalUsage   int64        `json:"total_usage"`
	UniqueValues int          `json:"unique_values"`
	TopValues    []GroupCount `json:"top_values"`
}

type ClickDetail struct {
	Timestamp  time.Time         `json:"timestamp"`
	Country    string            `json:"country"`
	DeviceType string            `json:"device_type"`
	Variables  map[string]string `json:"variables"`
}

type AnalyticsSummary struct {
	ShortID         string          `json:"short_id"`
	Name            string          `json:"name"`
	Range           TimeRange       `json:"range"`
	TotalClicks     int64           `json:"total_clicks"`
	UniqueVisitors  int64           `json:"unique_visitors"`
	AvgDailyClicks  float64         `json:"avg_daily_clicks"`
	LifetimeClicks  int64           `json:"lifetime_clicks"`
	ClicksByDay     []DailyCount    `json:"clicks_by_day"`
	ClicksByDevice  []GroupCount    `json:"clicks_by_device"`
	ClicksByCountry []GroupCount    `json:"clicks_by_country"`
	ClicksByWeekday [7]int64        `json:"clicks_by_weekday"`
	ClicksByHour    [24]int64       `json:"clicks_by_hour"`
	Variables       []VariableStats `json:"variables"`
	RecentClicks    []ClickDetail   `json:"recent_clicks"`
}

// AnalyticsExport is a tabular rendition of every click of a link.
type AnalyticsExport struct {
	Filename string
	Header   []string
	Rows     [][]string
}

// OwnerSummary сводка по всем ссылкам владельца
type OwnerSummary struct {
	TotalLinks   int64        `json:"total_links"`
	TotalClicks  int64        `json:"total_clicks"`
	RecentClicks []OwnerClick `json:"recent_clicks"`
}

type OwnerClick struct {
	ShortID    string    `json:"short_id"`
	Timestamp  time.Time `json:"timestamp"`
	Country    string    `json:"country"`
	DeviceType string    `json:"device_type"`
}
