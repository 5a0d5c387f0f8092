// Package policy resolves the effective security policy for a tenant.
// Policies are loaded into memory up front so resolution on the request hot
// path is a map read, never a query; admin writes go through the resolver so
// the cache stays current.
package policy

import (
	"context"
	"errors"
	"sync"

	"authd/models"
)

// ErrNoDefaultPolicy means the system-default policy row is missing. This is
// a bootstrap error: the service must refuse to start rather than run with no
// policy at all.
var ErrNoDefaultPolicy = errors.New("no default security policy configured")

// Store loads policy rows from persistence.
type Store interface {
	ListActive(ctx context.Context) ([]models.SecurityPolicy, error)
}

// Resolver caches active policies keyed by tenant. A tenant policy, when
// present, replaces the default wholly; there is no field-by-field merge.
type Resolver struct {
	store Store

	mu      sync.RWMutex
	def     models.SecurityPolicy
	tenants map[string]models.SecurityPolicy
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, tenants: make(map[string]models.SecurityPolicy)}
}

// Load (re)fills the cache from the store. Called at startup and after every
// admin policy write. Fails with ErrNoDefaultPolicy when no active default
// row exists.
func (r *Resolver) Load(ctx context.Context) error {
	rows, err := r.store.ListActive(ctx)
	if err != nil {
		return err
	}
	var def *models.SecurityPolicy
	tenants := make(map[string]models.SecurityPolicy, len(rows))
	for i := range rows {
		p := rows[i]
		if p.TenantID == nil {
			def = &p
			continue
		}
		tenants[*p.TenantID] = p
	}
	if def == nil {
		return ErrNoDefaultPolicy
	}
	r.mu.Lock()
	r.def = *def
	r.tenants = tenants
	r.mu.Unlock()
	return nil
}

// Resolve returns the policy for tenantID, falling back to the system default
// for unknown tenants or an empty id. Pure in-memory.
func (r *Resolver) Resolve(tenantID string) models.SecurityPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tenantID != "" {
		if p, ok := r.tenants[tenantID]; ok {
			return p
		}
	}
	return r.def
}
