package clients

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ruta-crm/ruta-crm/internal/feed"
	"github.com/ruta-crm/ruta-crm/internal/shared"
)

// Service wraps directory business rules.
type Service struct {
	repo Repository
	bus  *feed.Bus
}

// NewService constructs a new Service.
func NewService(repo Repository, bus *feed.Bus) *Service {
	return &Service{repo: repo, bus: bus}
}

// Get loads a client by internal id.
func (s *Service) Get(ctx context.Context, id int64) (*Client, error) {
	return s.repo.Get(ctx, id)
}

// FindByNationalID performs an exact-match lookup on the stored string.
func (s *Service) FindByNationalID(ctx context.Context, nationalID string) (*Client, error) {
	if nationalID == "" {
		return nil, fmt.Errorf("%w: national id required", shared.ErrValidation)
	}
	return s.repo.GetByNationalID(ctx, nationalID)
}

// FindManyByNationalID resolves a batch of national-IDs in one round trip.
// Unknown ids are simply absent from the result; callers decide how to
// report them.
func (s *Service) FindManyByNationalID(ctx context.Context, nationalIDs []string) (map[string]Client, error) {
	if len(nationalIDs) == 0 {
		return map[string]Client{}, nil
	}
	found, err := s.repo.GetManyByNationalID(ctx, nationalIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Client, len(found))
	for _, c := range found {
		if c.NationalID != nil {
			byID[*c.NationalID] = c
		}
	}
	return byID, nil
}

// Create registers a new client, active by default.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateClientRequest) (*Client, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, fmt.Errorf("%w: address required", shared.ErrValidation)
	}

	client := Client{
		NationalID: req.NationalID,
		Name:       strings.TrimSpace(req.Name),
		Address:    strings.TrimSpace(req.Address),
		Phone:      req.Phone,
		Email:      req.Email,
		Note:       req.Note,
		Active:     true,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		CreatedBy:  actor.ID,
	}

	id, err := s.repo.Create(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	s.bus.Publish(ctx, feed.Event{Table: feed.TableClients, Type: feed.EventInsert, ID: id})
	return s.repo.Get(ctx, id)
}

// Deactivate blocks new visits for the client while keeping its history.
func (s *Service) Deactivate(ctx context.Context, actor shared.Actor, id int64) error {
	if !actor.IsAdmin() {
		return shared.ErrForbidden
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("deactivate client: %w", err)
	}
	s.bus.Publish(ctx, feed.Event{Table: feed.TableClients, Type: feed.EventUpdate, ID: id})
	return nil
}

// Search lists clients matching an accent-insensitive name query.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Client, int, error) {
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	req.Query = FoldName(req.Query)
	return s.repo.Search(ctx, req)
}

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// FoldName strips diacritics and lowercases, matching the folded column the
// directory search runs against.
func FoldName(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		return strings.ToLower(name)
	}
	return strings.ToLower(folded)
}
