package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/models"
)

func strptr(s string) *string { return &s }

func TestLoadFailsWithoutDefault(t *testing.T) {
	r := NewResolver(&MemoryStore{Policies: []models.SecurityPolicy{
		{TenantID: strptr("acme"), Active: true},
	}})
	err := r.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoDefaultPolicy)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	r := NewResolver(&MemoryStore{Policies: []models.SecurityPolicy{
		{Active: true, LockoutMaxAttempts: 5},
		{TenantID: strptr("acme"), Active: true, LockoutMaxAttempts: 3},
	}})
	require.NoError(t, r.Load(context.Background()))

	assert.Equal(t, 5, r.Resolve("").LockoutMaxAttempts)
	assert.Equal(t, 5, r.Resolve("unknown-tenant").LockoutMaxAttempts)
	assert.Equal(t, 3, r.Resolve("acme").LockoutMaxAttempts)
}

func TestTenantPolicyReplacesWholly(t *testing.T) {
	// a tenant policy substitutes the entire object; unset tenant fields do
	// not inherit from the default
	r := NewResolver(&MemoryStore{Policies: []models.SecurityPolicy{
		{Active: true, LockoutMaxAttempts: 5, SessionMaxConcurrent: 10},
		{TenantID: strptr("acme"), Active: true, LockoutMaxAttempts: 3},
	}})
	require.NoError(t, r.Load(context.Background()))

	got := r.Resolve("acme")
	assert.Equal(t, 3, got.LockoutMaxAttempts)
	assert.Equal(t, 0, got.SessionMaxConcurrent)
}

func TestReloadPicksUpChanges(t *testing.T) {
	store := &MemoryStore{Policies: []models.SecurityPolicy{
		{Active: true, LockoutMaxAttempts: 5},
	}}
	r := NewResolver(store)
	require.NoError(t, r.Load(context.Background()))
	assert.Equal(t, 5, r.Resolve("acme").LockoutMaxAttempts)

	store.Policies = append(store.Policies, models.SecurityPolicy{
		TenantID: strptr("acme"), Active: true, LockoutMaxAttempts: 7,
	})
	require.NoError(t, r.Load(context.Background()))
	assert.Equal(t, 7, r.Resolve("acme").LockoutMaxAttempts)
}
