package models

import (
	"time"
)

type Click struct {
	ID         int64           `json:"id"`
	LinkID     int64           `json:"link_id"`
	ClickedAt  time.Time       `json:"clicked_at"`
	IPAddress  string          `json:"ip_address"`
	UserAgent  string          `json:"user_agent"`
	DeviceType string          `json:"device_type"`
	Country    string          `json:"country"`
	Weekday    int             `json:"weekday"` // 0 = понедельник
	Hour       int             `json:"hour"`
	VisitorID  string          `json:"visitor_id"`
	Variables  []ClickVariable `json:"variables,omitempty"`
}

type ClickVariable struct {
	ID         int64  `json:"id"`
	ClickID    int64  `json:"click_id"`
	VariableID int64  `json:"variable_id"`
	Name       string `json:"name"`
	Value      string `json:"value"`
}

type ClickStats struct {
	ShortID        string `json:"short_id"`
	TotalClicks    int64  `json:"total_clicks"`
	UniqueVisitors int64  `json:"unique_visitors"`
}
