package repository

import (
	"context"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

// ProductRepository lectura de productos; los atributos opcionales llegan ya resueltos.
type ProductRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*entity.Product, error)
}
