package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/barledger/internal/shared"
)

// Service answers who the caller is and whether they may write.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	clock  func() time.Time
}

// NewService constructs a new Service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.clock()
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	user, err := shared.RetryRead(ctx, func(ctx context.Context) (User, error) {
		return s.repo.FindByEmail(ctx, email)
	})
	if err != nil {
		if errors.Is(err, shared.ErrUpstream) {
			return Identity{}, err
		}
		return Identity{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return Identity{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Identity{}, shared.ErrInvalidCredentials
	}
	return s.WhoAmI(ctx, user.ID)
}

// WhoAmI resolves the identity bound to a session user. A zero or unknown
// user is unauthenticated.
func (s *Service) WhoAmI(ctx context.Context, userID int64) (Identity, error) {
	if userID == 0 {
		return Identity{}, shared.ErrUnauthenticated
	}
	if id, ok, err := s.cache.Get(ctx, userID); err != nil {
		s.logger.Warn("identity cache get", slog.Int64("user_id", userID), slog.Any("error", err))
	} else if ok {
		return id, nil
	}
	id, err := shared.RetryRead(ctx, func(ctx context.Context) (Identity, error) {
		return s.repo.FindIdentity(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: user %d", shared.ErrUnauthenticated, userID)
		}
		return Identity{}, err
	}
	if err := s.cache.Set(ctx, id); err != nil {
		s.logger.Warn("identity cache set", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	return id, nil
}

// ExpireSubscriptions turns lapsed subscriptions off and evicts the cached
// identities of the affected users. It returns the number of users affected.
func (s *Service) ExpireSubscriptions(ctx context.Context) (int, error) {
	users, err := s.repo.ExpireSubscriptions(ctx, s.clock())
	if err != nil {
		return 0, err
	}
	if err := s.cache.Evict(ctx, users...); err != nil {
		return len(users), fmt.Errorf("%w: identity: evict cache: %v", shared.ErrUpstream, err)
	}
	return len(users), nil
}
