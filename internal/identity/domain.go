package identity

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/barledger/internal/shared"
)

// Role is the privilege level of a user within its tenant.
type Role string

const (
	// RoleAdmin manages the platform and is never blocked by subscriptions.
	RoleAdmin Role = "admin"
	// RoleCreator owns the tenant and is never blocked by subscriptions.
	RoleCreator Role = "creator"
	// RoleManager runs the bar day to day.
	RoleManager Role = "manager"
	// RoleStaff counts stock and records expenses.
	RoleStaff Role = "staff"
)

// Elevated reports whether the role bypasses the subscription check.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleCreator
}

// Identity is who the caller is and what their tenant pays for.
type Identity struct {
	UserID                int64     `json:"user_id"`
	TenantID              int64     `json:"tenant_id"`
	Email                 string    `json:"email"`
	Role                  Role      `json:"role"`
	SubscriptionActive    bool      `json:"subscription_active"`
	SubscriptionExpiresAt time.Time `json:"subscription_expires_at,omitzero"`
}

// CanWrite reports whether the identity may mutate tenant data at now.
func (i Identity) CanWrite(now time.Time) bool {
	if i.Role.Elevated() {
		return true
	}
	if !i.SubscriptionActive {
		return false
	}
	return i.SubscriptionExpiresAt.IsZero() || now.Before(i.SubscriptionExpiresAt)
}

// Authorize returns ErrUnauthorized when the identity may not write at now.
func (i Identity) Authorize(now time.Time) error {
	if i.CanWrite(now) {
		return nil
	}
	return fmt.Errorf("%w: user %d: subscription inactive", shared.ErrUnauthorized, i.UserID)
}

// CanAdminister reports whether the identity may edit the catalog and
// delete saved history.
func (i Identity) CanAdminister() bool {
	return i.Role.Elevated()
}

// AuthorizeAdmin returns ErrUnauthorized unless the identity holds an
// administrative role.
func (i Identity) AuthorizeAdmin() error {
	if i.CanAdminister() {
		return nil
	}
	return fmt.Errorf("%w: user %d: role %q cannot administer", shared.ErrUnauthorized, i.UserID, i.Role)
}

// User is a stored account with its credentials.
type User struct {
	ID           int64
	TenantID     int64
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
}

// ErrUserNotFound indicates no account matches the lookup.
var ErrUserNotFound = fmt.Errorf("identity: user %w", shared.ErrNotFound)
