package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/logger"
	"github.com/lumina/orchestrator/common/redis"
)

// AccessResult is the outcome of validating a caller against asset roles
type AccessResult int

const (
	// AccessOpen means the asset carries no roles, anyone may view it
	AccessOpen AccessResult = iota
	// AccessAuthorized means the caller's session satisfies the roles
	AccessAuthorized
	// AccessUnauthorized means the caller may not view the asset
	AccessUnauthorized
)

// AuthMechanism selects which credential kinds are accepted. GET requests
// for binary content only accept cookies, so bearer tokens never leak via
// caching proxies; HEAD and non-GET probes may use either.
type AuthMechanism int

const (
	MechanismCookie AuthMechanism = iota
	MechanismBearer
	MechanismAll
)

// SessionUser is the authenticated session stored against a credential
type SessionUser struct {
	ID    string              `json:"id"`
	Roles map[string][]string `json:"roles"` // customer id (as string) -> granted roles
}

// Validator validates caller credentials against an asset's roles
type Validator interface {
	Validate(ctx context.Context, customer int, roles []string, mechanism AuthMechanism, creds models.Credentials) AccessResult
}

// SessionStore reads serialized sessions by credential key. Absent keys
// are reported with redis.ErrNotFound.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// AccessValidator resolves bearer tokens and auth cookies to sessions in
// the redis session store and checks role membership
type AccessValidator struct {
	sessions SessionStore
	log      *logger.Logger
}

// NewAccessValidator creates a new access validator
func NewAccessValidator(sessions SessionStore, log *logger.Logger) *AccessValidator {
	return &AccessValidator{sessions: sessions, log: log}
}

// Validate checks the caller's credentials against the asset roles. Session
// store failures are treated as Unauthorized - they never propagate as
// faults into the request path.
func (v *AccessValidator) Validate(ctx context.Context, customer int, roles []string, mechanism AuthMechanism, creds models.Credentials) AccessResult {
	if len(roles) == 0 {
		return AccessOpen
	}

	user, err := v.resolveSession(ctx, customer, mechanism, creds)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			v.log.Error("session lookup failed", "customer", customer, "error", err)
		}
		return AccessUnauthorized
	}
	if user == nil {
		return AccessUnauthorized
	}

	granted := user.Roles[fmt.Sprintf("%d", customer)]
	if !coversRoles(granted, roles) {
		return AccessUnauthorized
	}
	return AccessAuthorized
}

func (v *AccessValidator) resolveSession(ctx context.Context, customer int, mechanism AuthMechanism, creds models.Credentials) (*SessionUser, error) {
	var lookups []string
	if (mechanism == MechanismBearer || mechanism == MechanismAll) && creds.BearerToken != "" {
		lookups = append(lookups, sessionKey(customer, "bearer", creds.BearerToken))
	}
	if (mechanism == MechanismCookie || mechanism == MechanismAll) && creds.CookieValue != "" {
		lookups = append(lookups, sessionKey(customer, "cookie", creds.CookieValue))
	}
	if len(lookups) == 0 {
		return nil, nil
	}

	for _, key := range lookups {
		raw, err := v.sessions.Get(ctx, key)
		if errors.Is(err, redis.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var user SessionUser
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return nil, fmt.Errorf("corrupt session %s: %w", key, err)
		}
		return &user, nil
	}
	return nil, nil
}

// coversRoles reports whether every required role is granted
func coversRoles(granted, required []string) bool {
	if len(granted) == 0 {
		return false
	}
	grantedSet := make(map[string]struct{}, len(granted))
	for _, role := range granted {
		grantedSet[role] = struct{}{}
	}
	for _, role := range required {
		if _, ok := grantedSet[role]; !ok {
			return false
		}
	}
	return true
}

func sessionKey(customer int, kind, credential string) string {
	return fmt.Sprintf("session:%s:%d:%s", kind, customer, credential)
}
