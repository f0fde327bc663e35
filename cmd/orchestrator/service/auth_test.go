package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumina/orchestrator/cmd/orchestrator/models"
	"github.com/lumina/orchestrator/common/logger"
	"github.com/lumina/orchestrator/common/redis"
)

// mapSessionStore backs the validator with a plain map
type mapSessionStore struct {
	sessions map[string]string
	err      error
}

func (m *mapSessionStore) Get(ctx context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	value, ok := m.sessions[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return value, nil
}

func newTestValidator(sessions map[string]string) *AccessValidator {
	return NewAccessValidator(&mapSessionStore{sessions: sessions}, logger.NewNop())
}

func TestValidate_NoRolesIsOpen(t *testing.T) {
	validator := newTestValidator(nil)

	result := validator.Validate(context.Background(), 2, nil, MechanismAll, models.Credentials{})
	assert.Equal(t, AccessOpen, result)
}

func TestValidate_NoCredentials(t *testing.T) {
	validator := newTestValidator(nil)

	result := validator.Validate(context.Background(), 2, []string{"clickthrough"}, MechanismAll, models.Credentials{})
	assert.Equal(t, AccessUnauthorized, result)
}

func TestValidate_CookieSession(t *testing.T) {
	validator := newTestValidator(map[string]string{
		"session:cookie:2:tok-1": `{"id":"u1","roles":{"2":["clickthrough"]}}`,
	})

	result := validator.Validate(context.Background(), 2, []string{"clickthrough"},
		MechanismCookie, models.Credentials{CookieValue: "tok-1"})
	assert.Equal(t, AccessAuthorized, result)
}

func TestValidate_BearerRejectedByCookieMechanism(t *testing.T) {
	validator := newTestValidator(map[string]string{
		"session:bearer:2:tok-1": `{"id":"u1","roles":{"2":["clickthrough"]}}`,
	})

	// A valid bearer session exists but GETs only accept cookies
	result := validator.Validate(context.Background(), 2, []string{"clickthrough"},
		MechanismCookie, models.Credentials{BearerToken: "tok-1"})
	assert.Equal(t, AccessUnauthorized, result)

	// The All mechanism accepts it
	result = validator.Validate(context.Background(), 2, []string{"clickthrough"},
		MechanismAll, models.Credentials{BearerToken: "tok-1"})
	assert.Equal(t, AccessAuthorized, result)
}

func TestValidate_MissingRole(t *testing.T) {
	validator := newTestValidator(map[string]string{
		"session:cookie:2:tok-1": `{"id":"u1","roles":{"2":["clickthrough"]}}`,
	})

	result := validator.Validate(context.Background(), 2, []string{"clickthrough", "staff"},
		MechanismCookie, models.Credentials{CookieValue: "tok-1"})
	assert.Equal(t, AccessUnauthorized, result)
}

func TestValidate_RolesScopedToCustomer(t *testing.T) {
	validator := newTestValidator(map[string]string{
		"session:cookie:2:tok-1": `{"id":"u1","roles":{"7":["clickthrough"]}}`,
	})

	// Granted for customer 7, requested for customer 2
	result := validator.Validate(context.Background(), 2, []string{"clickthrough"},
		MechanismCookie, models.Credentials{CookieValue: "tok-1"})
	assert.Equal(t, AccessUnauthorized, result)
}

func TestValidate_StoreFailureFailsClosed(t *testing.T) {
	validator := NewAccessValidator(&mapSessionStore{err: errors.New("redis down")}, logger.NewNop())

	result := validator.Validate(context.Background(), 2, []string{"clickthrough"},
		MechanismAll, models.Credentials{CookieValue: "tok-1"})
	assert.Equal(t, AccessUnauthorized, result)
}

func TestValidate_CorruptSessionFailsClosed(t *testing.T) {
	validator := newTestValidator(map[string]string{
		"session:cookie:2:tok-1": `{not json`,
	})

	result := validator.Validate(context.Background(), 2, []string{"clickthrough"},
		MechanismCookie, models.Credentials{CookieValue: "tok-1"})
	assert.Equal(t, AccessUnauthorized, result)
}
