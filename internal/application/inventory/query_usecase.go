package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// BatchList lotes de un producto junto con el producto (atributos ya resueltos).
type BatchList struct {
	Product *entity.Product `json:"product"`
	Batches []*entity.Batch `json:"batches"`
}

// QueryUseCase lecturas del ledger: siempre validan el tenant y pasan por la caché por tenant.
type QueryUseCase struct {
	txRunner       TxRunner
	validator      Validator
	cache          ReadCache
	log            *logger.Logger
	expiringWindow time.Duration
	now            func() time.Time
}

// NewQueryUseCase construye el caso de uso. cache nil lee siempre de la base.
func NewQueryUseCase(txRunner TxRunner, validator Validator, cache ReadCache, log *logger.Logger, expiringWindow time.Duration) *QueryUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &QueryUseCase{
		txRunner:       txRunner,
		validator:      validator,
		cache:          cache,
		log:            log,
		expiringWindow: expiringWindow,
		now:            time.Now,
	}
}

// WithClock reemplaza el reloj usado para la ventana de vencimiento (tests).
func (uc *QueryUseCase) WithClock(now func() time.Time) *QueryUseCase {
	uc.now = now
	return uc
}

// StockBySchool stock actual de todos los productos de una escuela.
func (uc *QueryUseCase) StockBySchool(ctx context.Context, tenantID, schoolID string) ([]repository.SchoolStockRow, error) {
	if err := uc.checkTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := uc.validator.SchoolOwnedBy(ctx, schoolID, tenantID); err != nil {
		return nil, uc.fail(tenantID, "stock_by_school", err)
	}
	var rows []repository.SchoolStockRow
	err := uc.fetch(ctx, tenantID, stockBySchoolOp(schoolID), nil, &rows, func(ctx context.Context, r TxRepos) (any, error) {
		return r.Stock.ListBySchool(ctx, tenantID, schoolID)
	})
	return rows, uc.fail(tenantID, "stock_by_school", err)
}

// StockMatrix stock de un producto en todas las escuelas del tenant.
func (uc *QueryUseCase) StockMatrix(ctx context.Context, tenantID, productID string) ([]repository.ProductStockRow, error) {
	if err := uc.checkTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := uc.validator.ProductOwnedBy(ctx, productID, tenantID); err != nil {
		return nil, uc.fail(tenantID, "stock_matrix", err)
	}
	var rows []repository.ProductStockRow
	err := uc.fetch(ctx, tenantID, stockMatrixOp(productID), nil, &rows, func(ctx context.Context, r TxRepos) (any, error) {
		return r.Stock.ListByProduct(ctx, tenantID, productID)
	})
	return rows, uc.fail(tenantID, "stock_matrix", err)
}

// ListBatches lotes del producto, opcionalmente de una sola escuela, en orden de consumo.
func (uc *QueryUseCase) ListBatches(ctx context.Context, tenantID, schoolID, productID string, includeDepleted bool) (*BatchList, error) {
	if err := uc.checkTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := uc.validator.ProductOwnedBy(ctx, productID, tenantID); err != nil {
		return nil, uc.fail(tenantID, "batches", err)
	}
	if schoolID != "" {
		if err := uc.validator.SchoolOwnedBy(ctx, schoolID, tenantID); err != nil {
			return nil, uc.fail(tenantID, "batches", err)
		}
	}
	var out BatchList
	params := map[string]any{"include_depleted": includeDepleted}
	err := uc.fetch(ctx, tenantID, batchesOp(schoolID, productID), params, &out, func(ctx context.Context, r TxRepos) (any, error) {
		product, err := r.Products.GetByID(ctx, tenantID, productID)
		if err != nil {
			return nil, err
		}
		batches, err := r.Batches.ListByProduct(ctx, tenantID, schoolID, productID, includeDepleted)
		if err != nil {
			return nil, err
		}
		return &BatchList{Product: product, Batches: sortForDisplay(batches)}, nil
	})
	if err != nil {
		return nil, uc.fail(tenantID, "batches", err)
	}
	return &out, nil
}

// History historial con filtros, más reciente primero.
func (uc *QueryUseCase) History(ctx context.Context, tenantID string, f entity.MovementFilter) ([]*entity.Movement, error) {
	if err := uc.checkTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := normalizeFilter(&f); err != nil {
		return nil, err
	}
	if f.SchoolID != "" {
		if err := uc.validator.SchoolOwnedBy(ctx, f.SchoolID, tenantID); err != nil {
			return nil, uc.fail(tenantID, "history", err)
		}
	}
	if f.ProductID != "" {
		if err := uc.validator.ProductOwnedBy(ctx, f.ProductID, tenantID); err != nil {
			return nil, uc.fail(tenantID, "history", err)
		}
	}
	var rows []*entity.Movement
	err := uc.fetch(ctx, tenantID, opHistory, f, &rows, func(ctx context.Context, r TxRepos) (any, error) {
		return r.Movements.Query(ctx, tenantID, f)
	})
	return rows, uc.fail(tenantID, "history", err)
}

// Summary totales por producto en todo el tenant.
func (uc *QueryUseCase) Summary(ctx context.Context, tenantID string) ([]repository.StockSummaryRow, error) {
	if err := uc.checkTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	horizon := uc.now().UTC().Add(uc.expiringWindow)
	params := map[string]any{"expiring_before": entity.DateOnly(horizon).Format("2006-01-02")}
	var rows []repository.StockSummaryRow
	err := uc.fetch(ctx, tenantID, opSummary, params, &rows, func(ctx context.Context, r TxRepos) (any, error) {
		return r.Stock.Summary(ctx, tenantID, entity.DateOnly(horizon))
	})
	return rows, uc.fail(tenantID, "summary", err)
}

func (uc *QueryUseCase) checkTenant(ctx context.Context, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return domain.NewTenantContextMissing()
	}
	return uc.fail(tenantID, "tenant", uc.validator.TenantActive(ctx, tenantID))
}

// fetch lee por la caché si existe; la carga corre en una transacción de solo lectura del tenant.
func (uc *QueryUseCase) fetch(ctx context.Context, tenantID, op string, params any, dst any, load func(ctx context.Context, r TxRepos) (any, error)) error {
	loader := func(ctx context.Context) (any, error) {
		var v any
		err := uc.txRunner.Read(ctx, tenantID, func(ctx context.Context, r TxRepos) error {
			var err error
			v, err = load(ctx, r)
			return err
		})
		return v, err
	}
	if uc.cache != nil {
		return uc.cache.Fetch(ctx, tenantID, op, params, dst, loader)
	}
	v, err := loader(ctx)
	if err != nil {
		return err
	}
	return assign(dst, v)
}

// fail convierte errores de infraestructura en falla interna genérica, registrando el detalle.
func (uc *QueryUseCase) fail(tenantID, op string, err error) error {
	if err == nil || domain.IsBusiness(err) {
		return err
	}
	uc.log.Error().Err(err).Str("tenant_id", tenantID).Str("op", op).Msg("falla inesperada en consulta")
	return domain.NewInternal(err)
}

func normalizeFilter(f *entity.MovementFilter) error {
	f.SchoolID = strings.TrimSpace(f.SchoolID)
	f.ProductID = strings.TrimSpace(f.ProductID)
	if f.Kind != "" && !f.Kind.Valid() {
		return domain.NewValidation("tipo de movimiento inválido: " + string(f.Kind))
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return domain.NewValidation("rango de fechas inválido")
	}
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}
