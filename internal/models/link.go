package models

import (
	"time"
)

type Link struct {
	ID          int64          `json:"id"`
	Owner       string         `json:"owner"`
	ShortID     string         `json:"short_id"`
	OriginalURL string         `json:"original_url"`
	Name        *string        `json:"name,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	TotalClicks int64          `json:"total_clicks"`
	Variables   []LinkVariable `json:"variables,omitempty"`
}

// DisplayName returns the link name, falling back to the short id.
func (l *Link) DisplayName() string {
	if l.Name != nil && *l.Name != "" {
		return *l.Name
	}
	return l.ShortID
}

// LinkVariable is a named query parameter recorded on every click.
type LinkVariable struct {
	ID          int64  `json:"id"`
	LinkID      int64  `json:"link_id"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
}

type VariableInput struct {
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
}

type CreateLinkInput struct {
	OriginalURL string          `json:"original_url"`
	Name        *string         `json:"name,omitempty"`
	Variables   []VariableInput `json:"variables,omitempty"`
}
