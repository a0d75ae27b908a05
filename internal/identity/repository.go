package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/barledger/internal/shared"
)

// Repository defines persistence operations for accounts and subscriptions.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindIdentity(ctx context.Context, userID int64) (Identity, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) ([]int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	var u User
	var role string
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, email, password_hash, role, is_active FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email)).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &role, &u.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("%w: identity: find user: %v", shared.ErrUpstream, err)
	}
	u.Role = Role(role)
	return u, nil
}

// FindIdentity joins an active user with its tenant subscription.
func (r *PGRepository) FindIdentity(ctx context.Context, userID int64) (Identity, error) {
	var (
		id      Identity
		role    string
		expires *time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT u.id, u.tenant_id, u.email, u.role, t.subscription_active, t.subscription_expires_at
FROM users u JOIN tenants t ON t.id = u.tenant_id
WHERE u.id = $1 AND u.is_active`, userID).Scan(&id.UserID, &id.TenantID, &id.Email, &role, &id.SubscriptionActive, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("%w: identity: find identity: %v", shared.ErrUpstream, err)
	}
	id.Role = Role(role)
	if expires != nil {
		id.SubscriptionExpiresAt = expires.UTC()
	}
	return id, nil
}

// ExpireSubscriptions deactivates lapsed subscriptions and returns the ids of
// the users whose identity changed.
func (r *PGRepository) ExpireSubscriptions(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `WITH expired AS (
	UPDATE tenants SET subscription_active = FALSE
	WHERE subscription_active AND subscription_expires_at IS NOT NULL AND subscription_expires_at <= $1
	RETURNING id
)
SELECT u.id FROM users u JOIN expired e ON e.id = u.tenant_id ORDER BY u.id`, now)
	if err != nil {
		return nil, fmt.Errorf("%w: identity: expire subscriptions: %v", shared.ErrUpstream, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("%w: identity: scan expired users: %v", shared.ErrUpstream, err)
	}
	return ids, nil
}

var _ Repository = (*PGRepository)(nil)
