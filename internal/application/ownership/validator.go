// Package ownership verifica que escuelas, productos, lotes y usuarios pertenezcan al tenant
// del llamador antes de cualquier mutación.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

// Nombres de entidad usados en los mensajes de error.
const (
	EntityTenant  = "tenant"
	EntitySchool  = "escuela"
	EntityProduct = "producto"
	EntityBatch   = "lote"
	EntityUser    = "usuario"
)

// Validator validador de pertenencia al tenant.
// Inexistente y ajeno son errores distintos: ErrNotFound vs ErrTenantOwnershipViolation.
type Validator struct {
	repo repository.OwnershipRepository
}

// NewValidator construye el validador.
func NewValidator(repo repository.OwnershipRepository) *Validator {
	return &Validator{repo: repo}
}

// TenantActive falla si el tenant no existe o no está activo.
func (v *Validator) TenantActive(ctx context.Context, tenantID string) error {
	status, err := v.repo.TenantStatus(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewNotFound(EntityTenant, tenantID)
		}
		return fmt.Errorf("estado del tenant: %w", err)
	}
	if status != entity.TenantStatusActive {
		return domain.NewTenantInactive(tenantID)
	}
	return nil
}

// SchoolOwnedBy verifica que la escuela pertenezca al tenant.
func (v *Validator) SchoolOwnedBy(ctx context.Context, schoolID, tenantID string) error {
	return v.ValidateSchools(ctx, tenantID, schoolID)
}

// ProductOwnedBy verifica que el producto pertenezca al tenant.
func (v *Validator) ProductOwnedBy(ctx context.Context, productID, tenantID string) error {
	return v.ValidateProducts(ctx, tenantID, productID)
}

// BatchOwnedBy verifica que el lote pertenezca al tenant y devuelve su escuela y producto.
func (v *Validator) BatchOwnedBy(ctx context.Context, batchID, tenantID string) (repository.BatchOwner, error) {
	if err := v.ValidateBatches(ctx, tenantID, batchID); err != nil {
		return repository.BatchOwner{}, err
	}
	owners, err := v.repo.BatchOwners(ctx, []string{batchID})
	if err != nil {
		return repository.BatchOwner{}, fmt.Errorf("dueños de lotes: %w", err)
	}
	return owners[batchID], nil
}

// UserHasAccessTo verifica que el usuario tenga acceso al tenant (tenant de origen o membresía).
func (v *Validator) UserHasAccessTo(ctx context.Context, userID, tenantID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.NewValidation("usuario requerido")
	}
	tenants, err := v.repo.UserTenants(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewNotFound(EntityUser, userID)
		}
		return fmt.Errorf("tenants del usuario: %w", err)
	}
	for _, t := range tenants {
		if t == tenantID {
			return nil
		}
	}
	return domain.NewOwnershipViolation(EntityUser, userID)
}

// SchoolProductSameTenant verifica que escuela y producto existan y compartan tenant; devuelve ese tenant.
func (v *Validator) SchoolProductSameTenant(ctx context.Context, schoolID, productID string) (string, error) {
	schools, err := v.repo.SchoolTenants(ctx, []string{schoolID})
	if err != nil {
		return "", fmt.Errorf("tenants de escuelas: %w", err)
	}
	schoolTenant, ok := schools[schoolID]
	if !ok {
		return "", domain.NewNotFound(EntitySchool, schoolID)
	}
	products, err := v.repo.ProductTenants(ctx, []string{productID})
	if err != nil {
		return "", fmt.Errorf("tenants de productos: %w", err)
	}
	productTenant, ok := products[productID]
	if !ok {
		return "", domain.NewNotFound(EntityProduct, productID)
	}
	if schoolTenant != productTenant {
		return "", domain.NewOwnershipViolation(EntityProduct, productID)
	}
	return schoolTenant, nil
}

// ValidateSchools variante masiva: una consulta, corta en el primer id que falla y lo informa.
func (v *Validator) ValidateSchools(ctx context.Context, tenantID string, ids ...string) error {
	return validateBulk(ctx, EntitySchool, tenantID, ids, v.repo.SchoolTenants)
}

// ValidateProducts variante masiva para productos.
func (v *Validator) ValidateProducts(ctx context.Context, tenantID string, ids ...string) error {
	return validateBulk(ctx, EntityProduct, tenantID, ids, v.repo.ProductTenants)
}

// ValidateBatches variante masiva para lotes.
func (v *Validator) ValidateBatches(ctx context.Context, tenantID string, ids ...string) error {
	return validateBulk(ctx, EntityBatch, tenantID, ids, func(ctx context.Context, ids []string) (map[string]string, error) {
		owners, err := v.repo.BatchOwners(ctx, ids)
		if err != nil {
			return nil, err
		}
		out := make(map[string]string, len(owners))
		for id, o := range owners {
			out[id] = o.TenantID
		}
		return out, nil
	})
}

type tenantLookup func(ctx context.Context, ids []string) (map[string]string, error)

func validateBulk(ctx context.Context, entityName, tenantID string, ids []string, lookup tenantLookup) error {
	if tenantID == "" {
		return domain.NewTenantContextMissing()
	}
	if len(ids) == 0 {
		return nil
	}
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return domain.NewValidation(entityName + " requerido")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	owners, err := lookup(ctx, unique)
	if err != nil {
		return fmt.Errorf("validar %s: %w", entityName, err)
	}
	for _, id := range unique {
		owner, ok := owners[id]
		if !ok {
			return domain.NewNotFound(entityName, id)
		}
		if owner != tenantID {
			return domain.NewOwnershipViolation(entityName, id)
		}
	}
	return nil
}
