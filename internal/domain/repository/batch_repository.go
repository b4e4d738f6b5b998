package repository

import (
	"context"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

// BatchRepository define el puerto de persistencia de lotes. No existe Delete: los lotes solo se agotan.
type BatchRepository interface {
	Create(ctx context.Context, b *entity.Batch) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.Batch, error)
	Update(ctx context.Context, b *entity.Batch) error
	// ListActiveForUpdate lotes activos de la clave; se llama con el agregado ya bloqueado.
	ListActiveForUpdate(ctx context.Context, tenantID, schoolID, productID string) ([]*entity.Batch, error)
	// ListByProduct lotes de un producto; schoolID vacío abarca todas las escuelas.
	ListByProduct(ctx context.Context, tenantID, schoolID, productID string, includeDepleted bool) ([]*entity.Batch, error)
	// ListBySchool todos los lotes de la escuela, incluidos los agotados.
	ListBySchool(ctx context.Context, tenantID, schoolID string) ([]*entity.Batch, error)
}
