package inventory

import (
	"context"
	"time"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

// TxRepos repositorios atados a una misma transacción del tenant.
type TxRepos struct {
	Stock     repository.StockRepository
	Batches   repository.BatchRepository
	Movements repository.MovementRepository
	Products  repository.ProductRepository
}

// TxRunner ejecuta una función dentro de una transacción de BD ya ligada al tenant
// (la política de filas observa el mismo tenant que validó la aplicación).
// Commit si fn devuelve nil; Rollback en cualquier otro caso.
type TxRunner interface {
	Run(ctx context.Context, tenantID string, fn func(ctx context.Context, repos TxRepos) error) error
	// Read igual que Run pero en una transacción de solo lectura.
	Read(ctx context.Context, tenantID string, fn func(ctx context.Context, repos TxRepos) error) error
}

// CacheInvalidator invalidación de la caché por tenant tras cada escritura.
type CacheInvalidator interface {
	InvalidatePattern(ctx context.Context, tenantID, opPattern string) error
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// ReadCache lectura con carga en caso de fallo (read-through). dst recibe el valor decodificado.
type ReadCache interface {
	Fetch(ctx context.Context, tenantID, op string, params any, dst any, load func(ctx context.Context) (any, error)) error
}

// BackupWriter persiste el respaldo previo a un reset y devuelve su referencia.
type BackupWriter interface {
	Write(ctx context.Context, snap *entity.ResetSnapshot) (string, error)
	// Discard elimina un respaldo cuyo reset no llegó a confirmarse.
	Discard(ctx context.Context, ref string) error
}

// Recorder métricas del ledger.
type Recorder interface {
	ObserveMovement(kind, outcome string, d time.Duration)
	ObserveReset(outcome string)
	InvalidationFailed(scope string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMovement(string, string, time.Duration) {}
func (nopRecorder) ObserveReset(string)                           {}
func (nopRecorder) InvalidationFailed(string)                     {}

// Validator chequeos de pertenencia usados por los casos de uso (implementado por ownership.Validator).
type Validator interface {
	TenantActive(ctx context.Context, tenantID string) error
	SchoolOwnedBy(ctx context.Context, schoolID, tenantID string) error
	ProductOwnedBy(ctx context.Context, productID, tenantID string) error
	BatchOwnedBy(ctx context.Context, batchID, tenantID string) (repository.BatchOwner, error)
	UserHasAccessTo(ctx context.Context, userID, tenantID string) error
}
