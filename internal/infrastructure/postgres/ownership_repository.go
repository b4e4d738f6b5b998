package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

var _ repository.OwnershipRepository = (*OwnershipRepo)(nil)

// OwnershipRepo consultas de pertenencia. Corre sobre el pool sin app.tenant_id (contexto de sistema
// de las políticas RLS): necesita ver el tenant real de la fila para distinguir NotFound de violación.
type OwnershipRepo struct {
	q Querier
}

// NewOwnershipRepository pasar el pool.
func NewOwnershipRepository(q Querier) *OwnershipRepo {
	return &OwnershipRepo{q: q}
}

// TenantStatus estado del tenant.
func (r *OwnershipRepo) TenantStatus(ctx context.Context, tenantID string) (entity.TenantStatus, error) {
	if _, err := uuid.Parse(tenantID); err != nil {
		return "", domain.ErrNotFound
	}
	var status entity.TenantStatus
	err := r.q.QueryRow(ctx, `SELECT status FROM tenants WHERE id = $1`, tenantID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("tenant status: %w", err)
	}
	return status, nil
}

// SchoolTenants tenant dueño de cada escuela encontrada.
func (r *OwnershipRepo) SchoolTenants(ctx context.Context, ids []string) (map[string]string, error) {
	return r.owners(ctx, `SELECT id, tenant_id FROM schools WHERE id = ANY($1::uuid[])`, ids)
}

// ProductTenants tenant dueño de cada producto encontrado.
func (r *OwnershipRepo) ProductTenants(ctx context.Context, ids []string) (map[string]string, error) {
	return r.owners(ctx, `SELECT id, tenant_id FROM products WHERE id = ANY($1::uuid[])`, ids)
}

func (r *OwnershipRepo) owners(ctx context.Context, query string, ids []string) (map[string]string, error) {
	valid := validUUIDs(ids)
	out := make(map[string]string, len(valid))
	if len(valid) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, query, valid)
	if err != nil {
		return nil, fmt.Errorf("ownership lookup: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, tenant string
		if err := rows.Scan(&id, &tenant); err != nil {
			return nil, fmt.Errorf("scan ownership: %w", err)
		}
		out[id] = tenant
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ownership lookup: %w", err)
	}
	return canonicalKeys(ids, out), nil
}

// BatchOwners dueños de cada lote encontrado.
func (r *OwnershipRepo) BatchOwners(ctx context.Context, ids []string) (map[string]repository.BatchOwner, error) {
	valid := validUUIDs(ids)
	found := make(map[string]repository.BatchOwner, len(valid))
	if len(valid) == 0 {
		return found, nil
	}
	rows, err := r.q.Query(ctx, `SELECT id, tenant_id, school_id, product_id FROM batches WHERE id = ANY($1::uuid[])`, valid)
	if err != nil {
		return nil, fmt.Errorf("batch owners: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var o repository.BatchOwner
		if err := rows.Scan(&id, &o.TenantID, &o.SchoolID, &o.ProductID); err != nil {
			return nil, fmt.Errorf("scan batch owner: %w", err)
		}
		found[id] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch owners: %w", err)
	}
	out := make(map[string]repository.BatchOwner, len(found))
	for _, id := range ids {
		if o, ok := found[canonicalUUID(id)]; ok {
			out[id] = o
		}
	}
	return out, nil
}

// UserTenants tenant de origen más membresías de user_tenants.
func (r *OwnershipRepo) UserTenants(ctx context.Context, userID string) ([]string, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, domain.ErrNotFound
	}
	var home string
	if err := r.q.QueryRow(ctx, `SELECT tenant_id FROM users WHERE id = $1`, userID).Scan(&home); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("user tenant: %w", err)
	}
	out := []string{home}
	rows, err := r.q.Query(ctx, `SELECT tenant_id FROM user_tenants WHERE user_id = $1 AND tenant_id <> $2`, userID, home)
	if err != nil {
		return nil, fmt.Errorf("user memberships: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// validUUIDs descarta ids mal formados: no existen, y castearlos haría fallar la consulta entera.
func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, err := uuid.Parse(id); err == nil {
			out = append(out, u.String())
		}
	}
	return out
}

func canonicalUUID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return id
}

// canonicalKeys re-indexa el resultado con los ids tal como llegaron (mayúsculas, etc).
func canonicalKeys(ids []string, found map[string]string) map[string]string {
	out := make(map[string]string, len(found))
	for _, id := range ids {
		if t, ok := found[canonicalUUID(id)]; ok {
			out[id] = t
		}
	}
	return out
}
