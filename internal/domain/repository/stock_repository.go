package repository

import (
	"context"
	"time"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

// StockRepository define el puerto del registro agregado por (tenant, escuela, producto).
// Los métodos ForUpdate solo tienen sentido dentro de una transacción.
type StockRepository interface {
	Get(ctx context.Context, tenantID, schoolID, productID string) (*entity.StockRecord, error)
	// LockForUpdate crea el registro en cero si no existe y bloquea la fila (SELECT FOR UPDATE).
	LockForUpdate(ctx context.Context, tenantID, schoolID, productID string) (*entity.StockRecord, error)
	Upsert(ctx context.Context, rec *entity.StockRecord) error
	// ListBySchoolForUpdate bloquea todos los registros de la escuela (reset).
	ListBySchoolForUpdate(ctx context.Context, tenantID, schoolID string) ([]*entity.StockRecord, error)

	ListBySchool(ctx context.Context, tenantID, schoolID string) ([]SchoolStockRow, error)
	ListByProduct(ctx context.Context, tenantID, productID string) ([]ProductStockRow, error)
	Summary(ctx context.Context, tenantID string, expiringBefore time.Time) ([]StockSummaryRow, error)
}
