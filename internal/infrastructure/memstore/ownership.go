package memstore

import (
	"context"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

var _ repository.OwnershipRepository = (*Store)(nil)

// TenantStatus estado del tenant.
func (s *Store) TenantStatus(_ context.Context, tenantID string) (entity.TenantStatus, error) {
	if err := s.fault(OpOwnership); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.tenants[tenantID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return t.Status, nil
}

// SchoolTenants tenant dueño de cada escuela encontrada.
func (s *Store) SchoolTenants(_ context.Context, ids []string) (map[string]string, error) {
	if err := s.fault(OpOwnership); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if sc, ok := s.state.schools[id]; ok {
			out[id] = sc.TenantID
		}
	}
	return out, nil
}

// ProductTenants tenant dueño de cada producto encontrado.
func (s *Store) ProductTenants(_ context.Context, ids []string) (map[string]string, error) {
	if err := s.fault(OpOwnership); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if p, ok := s.state.products[id]; ok {
			out[id] = p.TenantID
		}
	}
	return out, nil
}

// BatchOwners dueños de cada lote encontrado.
func (s *Store) BatchOwners(_ context.Context, ids []string) (map[string]repository.BatchOwner, error) {
	if err := s.fault(OpOwnership); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]repository.BatchOwner, len(ids))
	for _, id := range ids {
		if b, ok := s.state.batches[id]; ok {
			out[id] = repository.BatchOwner{TenantID: b.TenantID, SchoolID: b.SchoolID, ProductID: b.ProductID}
		}
	}
	return out, nil
}

// UserTenants tenant de origen más membresías.
func (s *Store) UserTenants(_ context.Context, userID string) ([]string, error) {
	if err := s.fault(OpOwnership); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := []string{u.TenantID}
	for t := range s.state.memberships[userID] {
		if t != u.TenantID {
			out = append(out, t)
		}
	}
	return out, nil
}
