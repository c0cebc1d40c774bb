package mocks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/SergeiKhy/link-tracker/internal/repository"
)

// ErrMockUnavailable simulates a transient storage failure.
var ErrMockUnavailable = errors.New("mock: storage unavailable")

// MockLinkRepository implements repository.LinkRepository for testing.
// It also owns link variables so that MockVariableRepository and
// MockClickRepository observe the same state.
type MockLinkRepository struct {
	mu        sync.RWMutex
	links     map[string]*models.Link
	variables map[int64][]models.LinkVariable
	nextID    int64
	nextVarID int64

	collisions  int
	CreateCalls int
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:     make(map[string]*models.Link),
		variables: make(map[int64][]models.LinkVariable),
		nextID:    1,
		nextVarID: 1,
	}
}

// CollideNext makes the next n Create calls fail with repository.ErrCodeExists.
func (m *MockLinkRepository) CollideNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collisions = n
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.collisions > 0 {
		m.collisions--
		return repository.ErrCodeExists
	}
	if _, exists := m.links[link.ShortID]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	m.nextID++
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	for i := range link.Variables {
		link.Variables[i].ID = m.nextVarID
		link.Variables[i].LinkID = link.ID
		m.nextVarID++
	}
	m.variables[link.ID] = append([]models.LinkVariable(nil), link.Variables...)

	stored := *link
	stored.Variables = nil
	m.links[link.ShortID] = &stored
	return nil
}

func (m *MockLinkRepository) GetByShortID(ctx context.Context, shortID string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[shortID]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	out := *link
	return &out, nil
}

func (m *MockLinkRepository) ListByOwner(ctx context.Context, owner string) ([]models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := []models.Link{}
	for _, link := range m.links {
		if link.Owner == owner {
			links = append(links, *link)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.After(links[j].CreatedAt)
		}
		return links[i].ID > links[j].ID
	})
	return links, nil
}

func (m *MockLinkRepository) Delete(ctx context.Context, owner, shortID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[shortID]
	if !exists || link.Owner != owner {
		return repository.ErrLinkNotFound
	}
	delete(m.variables, link.ID)
	delete(m.links, shortID)
	return nil
}

// incrementClicks увеличивает счётчик ссылки; вызывается под m.mu
func (m *MockLinkRepository) incrementClicks(linkID int64) {
	for _, link := range m.links {
		if link.ID == linkID {
			link.TotalClicks++
			return
		}
	}
}

func (m *MockLinkRepository) linkExists(linkID int64) bool {
	for _, link := range m.links {
		if link.ID == linkID {
			return true
		}
	}
	return false
}

// MockVariableRepository implements repository.VariableRepository on top of
// MockLinkRepository state.
type MockVariableRepository struct {
	links *MockLinkRepository
}

func NewMockVariableRepository(links *MockLinkRepository) *MockVariableRepository {
	return &MockVariableRepository{links: links}
}

func (m *MockVariableRepository) Create(ctx context.Context, variable *models.LinkVariable) error {
	m.links.mu.Lock()
	defer m.links.mu.Unlock()

	if !m.links.linkExists(variable.LinkID) {
		return fmt.Errorf("failed to create link variable: %w", repository.ErrLinkNotFound)
	}
	variable.ID = m.links.nextVarID
	m.links.nextVarID++
	m.links.variables[variable.LinkID] = append(m.links.variables[variable.LinkID], *variable)
	return nil
}

func (m *MockVariableRepository) ListByLink(ctx context.Context, linkID int64) ([]models.LinkVariable, error) {
	m.links.mu.RLock()
	defer m.links.mu.RUnlock()

	return append([]models.LinkVariable{}, m.links.variables[linkID]...), nil
}

func (m *MockVariableRepository) Delete(ctx context.Context, linkID, variableID int64) error {
	m.links.mu.Lock()
	defer m.links.mu.Unlock()

	vars := m.links.variables[linkID]
	for i, v := range vars {
		if v.ID == variableID {
			m.links.variables[linkID] = append(vars[:i:i], vars[i+1:]...)
			return nil
		}
	}
	return repository.ErrVariableNotFound
}

// MockClickRepository implements repository.ClickRepository for testing.
// RecordClick follows the real transaction: the click insert fails on a
// missing link, then the counter of the linked MockLinkRepository is bumped.
type MockClickRepository struct {
	mu        sync.RWMutex
	links     *MockLinkRepository
	clicks    []models.Click
	nextID    int64
	nextVarID int64

	failures    int
	RecordCalls int
}

func NewMockClickRepository(links *MockLinkRepository) *MockClickRepository {
	return &MockClickRepository{
		links:     links,
		nextID:    1,
		nextVarID: 1,
	}
}

// FailNext makes the next n RecordClick calls fail with ErrMockUnavailable.
func (m *MockClickRepository) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

func (m *MockClickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RecordCalls++
	if m.failures > 0 {
		m.failures--
		return fmt.Errorf("failed to record click: %w", ErrMockUnavailable)
	}

	m.links.mu.Lock()
	defer m.links.mu.Unlock()

	if !m.links.linkExists(click.LinkID) {
		return fmt.Errorf("failed to record click: %w", repository.ErrLinkNotFound)
	}

	click.ID = m.nextID
	m.nextID++
	for i := range click.Variables {
		click.Variables[i].ID = m.nextVarID
		click.Variables[i].ClickID = click.ID
		m.nextVarID++
	}

	stored := *click
	stored.Variables = append([]models.ClickVariable(nil), click.Variables...)
	m.clicks = append(m.clicks, stored)

	m.links.incrementClicks(click.LinkID)
	return nil
}

// Add stores a click as is, without touching the link counter.
func (m *MockClickRepository) Add(clicks ...models.Click) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range clicks {
		c.ID = m.nextID
		m.nextID++
		c.Variables = append([]models.ClickVariable(nil), c.Variables...)
		for i := range c.Variables {
			c.Variables[i].ID = m.nextVarID
			c.Variables[i].ClickID = c.ID
			m.nextVarID++
		}
		m.clicks = append(m.clicks, c)
	}
}

func (m *MockClickRepository) ListClicks(ctx context.Context, linkID int64, window *models.TimeRange) ([]models.Click, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clicks := []models.Click{}
	for _, c := range m.clicks {
		if c.LinkID != linkID {
			continue
		}
		if window != nil && !inWindow(*window, c.ClickedAt) {
			continue
		}
		c.Variables = append([]models.ClickVariable(nil), c.Variables...)
		clicks = append(clicks, c)
	}
	sort.SliceStable(clicks, func(i, j int) bool {
		if !clicks[i].ClickedAt.Equal(clicks[j].ClickedAt) {
			return clicks[i].ClickedAt.Before(clicks[j].ClickedAt)
		}
		return clicks[i].ID < clicks[j].ID
	})
	return clicks, nil
}

func (m *MockClickRepository) GetStats(ctx context.Context, linkID int64) (*models.ClickStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	visitors := make(map[string]struct{})
	for _, c := range m.clicks {
		if c.LinkID == linkID {
			total++
			visitors[c.VisitorID] = struct{}{}
		}
	}

	return &models.ClickStats{
		TotalClicks:    total,
		UniqueVisitors: int64(len(visitors)),
	}, nil
}

// GetOwnerSummary skips clicks of deleted links, as the cascade does.
func (m *MockClickRepository) GetOwnerSummary(ctx context.Context, owner string, recentLimit int) (*models.OwnerSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.links.mu.RLock()
	defer m.links.mu.RUnlock()

	summary := &models.OwnerSummary{RecentClicks: []models.OwnerClick{}}
	shortIDs := make(map[int64]string)
	for _, link := range m.links.links {
		if link.Owner == owner {
			shortIDs[link.ID] = link.ShortID
			summary.TotalLinks++
		}
	}

	owned := []models.Click{}
	for _, c := range m.clicks {
		if _, ok := shortIDs[c.LinkID]; ok {
			owned = append(owned, c)
		}
	}
	summary.TotalClicks = int64(len(owned))

	sort.SliceStable(owned, func(i, j int) bool {
		if !owned[i].ClickedAt.Equal(owned[j].ClickedAt) {
			return owned[i].ClickedAt.After(owned[j].ClickedAt)
		}
		return owned[i].ID > owned[j].ID
	})
	if recentLimit > 0 && len(owned) > recentLimit {
		owned = owned[:recentLimit]
	}

	for _, c := range owned {
		summary.RecentClicks = append(summary.RecentClicks, models.OwnerClick{
			ShortID:    shortIDs[c.LinkID],
			Timestamp:  c.ClickedAt,
			Country:    c.Country,
			DeviceType: c.DeviceType,
		})
	}
	return summary, nil
}

// Clicks returns a snapshot of every stored click.
func (m *MockClickRepository) Clicks() []models.Click {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Click(nil), m.clicks...)
}

// inWindow повторяет условие clicked_at BETWEEN from AND to
func inWindow(r models.TimeRange, t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// StaticGeo resolves every address to Country unless a per-IP entry exists.
type StaticGeo struct {
	Country string
	ByIP    map[string]string
}

func (g StaticGeo) Resolve(ctx context.Context, ip string) string {
	if c, ok := g.ByIP[ip]; ok {
		return c
	}
	return g.Country
}
