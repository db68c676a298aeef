package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/ruta-crm/ruta-crm/internal/shared"
)

const sessionKeyPrefix = "session:"

// Service authenticates users and manages their bearer tokens. Tokens live
// in redis with a sliding TTL; postgres only holds the accounts.
type Service struct {
	repo Repository
	rdb  *redis.Client
	ttl  time.Duration
}

// NewService constructs a new Service.
func NewService(repo Repository, rdb *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{repo: repo, rdb: rdb, ttl: ttl}
}

// Authenticate validates email/password credentials. Every failure mode
// collapses into ErrInvalidCredentials so callers cannot probe accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	token := uuid.NewString()
	value := fmt.Sprintf("%d:%s", user.ID, user.Role)
	if err := s.rdb.Set(ctx, sessionKeyPrefix+token, value, s.ttl).Err(); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}
	return token, user, nil
}

// Resolve maps a bearer token back to an actor, refreshing the TTL.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Actor, error) {
	value, err := s.rdb.GetEx(ctx, sessionKeyPrefix+token, s.ttl).Result()
	if err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	id, role, ok := strings.Cut(value, ":")
	if !ok {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return shared.Actor{}, shared.ErrInvalidCredentials
	}
	return shared.Actor{ID: userID, Role: shared.Role(role)}, nil
}

// Logout revokes the token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+token).Err()
}
