package repository

import (
	"context"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

// BatchOwner tenant, escuela y producto dueños de un lote.
type BatchOwner struct {
	TenantID  string
	SchoolID  string
	ProductID string
}

// OwnershipRepository consultas de pertenencia usadas por el validador de tenant.
// Los métodos masivos devuelven solo los ids encontrados; un id ausente del mapa no existe.
// Estas consultas no filtran por tenant: comparan el tenant guardado contra el del llamador.
type OwnershipRepository interface {
	TenantStatus(ctx context.Context, tenantID string) (entity.TenantStatus, error)
	SchoolTenants(ctx context.Context, schoolIDs []string) (map[string]string, error)
	ProductTenants(ctx context.Context, productIDs []string) (map[string]string, error)
	BatchOwners(ctx context.Context, batchIDs []string) (map[string]BatchOwner, error)
	// UserTenants tenants a los que el usuario tiene acceso (origen + membresías).
	// Devuelve domain.ErrNotFound si el usuario no existe.
	UserTenants(ctx context.Context, userID string) ([]string, error)
}
