package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/SergeiKhy/link-tracker/internal/config"
	"github.com/SergeiKhy/link-tracker/internal/metrics"
	"github.com/SergeiKhy/link-tracker/internal/models"
	"github.com/SergeiKhy/link-tracker/internal/repository"
	"github.com/asaskevich/govalidator"
	"go.uber.org/zap"
)

// Ошибки сервиса
var (
	ErrInvalidURL          = errors.New("невалидный URL")
	ErrSpamDomain          = errors.New("домен в чёрном списке")
	ErrInvalidVariable     = errors.New("невалидная переменная ссылки")
	ErrGenerationExhausted = errors.New("не удалось подобрать свободный короткий идентификатор")
)

// Ограничения полей
const (
	maxNameLength        = 200
	maxVariableName      = 50
	maxVariablePlacehold = 100
)

// Чёрный список доменов
var blacklistedDomains = []string{
	"malware.com",
	"phishing.com",
	"spam.com",
}

// LinkService интерфейс сервиса ссылок
type LinkService interface {
	CreateLink(ctx context.Context, owner string, input *models.CreateLinkInput) (*models.Link, error)
	// GetLink возвращает ссылку владельца вместе с переменными
	GetLink(ctx context.Context, owner, code string) (*models.Link, error)
	ListLinks(ctx context.Context, owner string) ([]models.Link, error)
	DeleteLink(ctx context.Context, owner, code string) error
	AddVariable(ctx context.Context, owner, code string, input models.VariableInput) (*models.LinkVariable, error)
	DeleteVariable(ctx context.Context, owner, code string, variableID int64) error
	ShortURL(link *models.Link) string
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo     repository.LinkRepository
	variableRepo repository.VariableRepository
	shortID      config.ShortIDConfig
	baseURL      string
	logger       *zap.Logger
	now          func() time.Time
}

// NewLinkService создаёт новый экземпляр сервиса
func NewLinkService(
	linkRepo repository.LinkRepository,
	variableRepo repository.VariableRepository,
	shortID config.ShortIDConfig,
	baseURL string,
	logger *zap.Logger,
) LinkService {
	if shortID.Length <= 0 {
		shortID.Length = DefaultShortIDLength
	}
	if shortID.MaxAttempts <= 0 {
		shortID.MaxAttempts = 10
	}
	return &linkService{
		linkRepo:     linkRepo,
		variableRepo: variableRepo,
		shortID:      shortID,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger,
		now:          time.Now,
	}
}

// CreateLink создаёт новую короткую ссылку
func (s *linkService) CreateLink(ctx context.Context, owner string, input *models.CreateLinkInput) (*models.Link, error) {
	destination := strings.TrimSpace(input.OriginalURL)
	if err := validateURL(destination); err != nil {
		return nil, err
	}
	if err := checkSpamDomain(destination); err != nil {
		return nil, err
	}

	variables, err := normalizeVariables(input.Variables)
	if err != nil {
		return nil, err
	}

	name := normalizeName(input.Name)

	// Коллизии разрешаются уникальным ограничением в БД, число попыток ограничено
	for attempt := 1; attempt <= s.shortID.MaxAttempts; attempt++ {
		code, err := GenerateShortID(s.shortID.Length)
		if err != nil {
			return nil, fmt.Errorf("failed to generate short id: %w", err)
		}

		link := &models.Link{
			Owner:       owner,
			ShortID:     code,
			OriginalURL: destination,
			Name:        name,
			CreatedAt:   s.now().UTC(),
			Variables:   make([]models.LinkVariable, len(variables)),
		}
		copy(link.Variables, variables)

		err = s.linkRepo.Create(ctx, link)
		if err == nil {
			metrics.LinksCreated.Inc()
			s.logger.Info("Ссылка создана",
				zap.String("short_id", link.ShortID),
				zap.String("owner", owner),
				zap.Int("attempt", attempt),
			)
			return link, nil
		}
		if !errors.Is(err, repository.ErrCodeExists) {
			return nil, err
		}

		metrics.ShortIDCollisions.Inc()
		s.logger.Warn("Коллизия короткого идентификатора",
			zap.String("short_id", code),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.shortID.MaxAttempts),
		)
	}

	s.logger.Error("Пространство идентификаторов исчерпано",
		zap.Int("length", s.shortID.Length),
		zap.Int("attempts", s.shortID.MaxAttempts),
	)
	return nil, ErrGenerationExhausted
}

func (s *linkService) GetLink(ctx context.Context, owner, code string) (*models.Link, error) {
	link, err := s.ownedLink(ctx, owner, code)
	if err != nil {
		return nil, err
	}

	variables, err := s.variableRepo.ListByLink(ctx, link.ID)
	if err != nil {
		return nil, err
	}
	link.Variables = variables

	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, owner string) ([]models.Link, error) {
	return s.linkRepo.ListByOwner(ctx, owner)
}

// DeleteLink удаляет ссылку вместе с кликами (каскадно в БД)
func (s *linkService) DeleteLink(ctx context.Context, owner, code string) error {
	if err := s.linkRepo.Delete(ctx, owner, code); err != nil {
		return err
	}
	s.logger.Info("Ссылка удалена", zap.String("short_id", code), zap.String("owner", owner))
	return nil
}

func (s *linkService) AddVariable(ctx context.Context, owner, code string, input models.VariableInput) (*models.LinkVariable, error) {
	link, err := s.ownedLink(ctx, owner, code)
	if err != nil {
		return nil, err
	}

	normalized, err := normalizeVariables([]models.VariableInput{input})
	if err != nil {
		return nil, err
	}
	if len(normalized) == 0 {
		return nil, ErrInvalidVariable
	}

	existing, err := s.variableRepo.ListByLink(ctx, link.ID)
	if err != nil {
		return nil, err
	}
	for _, v := range existing {
		if v.Name == normalized[0].Name {
			return nil, fmt.Errorf("%w: переменная %q уже существует", ErrInvalidVariable, v.Name)
		}
	}

	variable := normalized[0]
	variable.LinkID = link.ID
	if err := s.variableRepo.Create(ctx, &variable); err != nil {
		return nil, err
	}

	return &variable, nil
}

func (s *linkService) DeleteVariable(ctx context.Context, owner, code string, variableID int64) error {
	link, err := s.ownedLink(ctx, owner, code)
	if err != nil {
		return err
	}
	return s.variableRepo.Delete(ctx, link.ID, variableID)
}

// ShortURL строит публичный адрес ссылки. Если у ссылки есть переменные,
// к адресу добавляется первая из них с плейсхолдером.
func (s *linkService) ShortURL(link *models.Link) string {
	short := s.baseURL + "/" + link.ShortID
	if len(link.Variables) > 0 {
		v := link.Variables[0]
		short += "?" + url.QueryEscape(v.Name) + "=" + v.Placeholder
	}
	return short
}

// ownedLink находит ссылку и проверяет владельца; чужая ссылка считается ненайденной
func (s *linkService) ownedLink(ctx context.Context, owner, code string) (*models.Link, error) {
	link, err := s.linkRepo.GetByShortID(ctx, code)
	if err != nil {
		return nil, err
	}
	if link.Owner != owner {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

// validateURL допускает только абсолютные http(s) адреса
func validateURL(raw string) error {
	if raw == "" || !govalidator.IsRequestURL(raw) {
		return ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	return nil
}

// checkSpamDomain проверяет домен и его поддомены по чёрному списку
func checkSpamDomain(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}

	host := strings.ToLower(u.Hostname())
	for _, domain := range blacklistedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return ErrSpamDomain
		}
	}
	return nil
}

func normalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	trimmed = truncateRunes(trimmed, maxNameLength)
	return &trimmed
}

// normalizeVariables отбрасывает пары с пустым именем или плейсхолдером
func normalizeVariables(inputs []models.VariableInput) ([]models.LinkVariable, error) {
	variables := make([]models.LinkVariable, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))

	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		placeholder := strings.TrimSpace(in.Placeholder)
		if name == "" || placeholder == "" {
			continue
		}
		if utf8.RuneCountInString(name) > maxVariableName {
			return nil, fmt.Errorf("%w: имя длиннее %d символов", ErrInvalidVariable, maxVariableName)
		}
		if utf8.RuneCountInString(placeholder) > maxVariablePlacehold {
			return nil, fmt.Errorf("%w: плейсхолдер длиннее %d символов", ErrInvalidVariable, maxVariablePlacehold)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: переменная %q указана дважды", ErrInvalidVariable, name)
		}
		seen[name] = struct{}{}

		variables = append(variables, models.LinkVariable{Name: name, Placeholder: placeholder})
	}

	return variables, nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
