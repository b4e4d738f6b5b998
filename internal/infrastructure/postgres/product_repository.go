package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

var _ repository.ProductRepository = (*ProductRepo)(nil)

// ProductRepo implementación del puerto ProductRepository sobre PostgreSQL (usable con pool o tx).
type ProductRepo struct {
	q Querier
}

// NewProductRepository construye el adaptador de persistencia para productos. Pasar pool o tx (Querier).
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

// GetByID obtiene un producto del tenant con sus atributos opcionales ya resueltos.
func (r *ProductRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Product, error) {
	query := `
		SELECT id, tenant_id, name, category, active, COALESCE(unit, ''), COALESCE(brand, ''), net_weight,
		       created_at, updated_at
		FROM products WHERE tenant_id = $1 AND id = $2`
	var p entity.Product
	err := r.q.QueryRow(ctx, query, tenantID, id).Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Category, &p.Active,
		&p.Attributes.Unit, &p.Attributes.Brand, &p.Attributes.NetWeight,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound("producto", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p.Attributes = p.Attributes.WithDefaults()
	return &p, nil
}
