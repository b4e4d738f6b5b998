package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/inventory"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

// State estado de una solicitud de movimiento (por solicitud, no por entidad).
type State string

const (
	StateValidating State = "validating"
	StateMutating   State = "mutating"
	StateLogging    State = "logging"
	StateCommitted  State = "committed"
	StateAborted    State = "aborted"
)

// MovementInput solicitud de movimiento. Quantity es el delta para entrada/saida y el total
// objetivo de stock sin vencimiento para ajuste.
type MovementInput struct {
	TenantID        string
	SchoolID        string
	ProductID       string
	Kind            entity.MovementKind
	Quantity        decimal.Decimal
	Reason          string
	DocumentRef     string
	UserID          string
	ExpiryDate      *time.Time // solo entrada
	ManufactureDate *time.Time // solo entrada
	LotLabel        string     // solo entrada
	BatchID         string     // entrada (corrección) o saida (consumo de un lote)
	IdempotencyKey  string
}

// MovementResult resultado de la solicitud; en error State es StateAborted.
type MovementResult struct {
	State    State
	Stock    *entity.StockRecord
	Movement *entity.Movement
	Batches  []*entity.Batch // lotes creados o modificados
}

// RegisterMovementUseCase procesa movimientos de stock: valida pertenencia, bloquea el registro
// agregado (SELECT FOR UPDATE), muta lotes, recalcula el agregado y escribe el historial en una sola transacción.
type RegisterMovementUseCase struct {
	txRunner  TxRunner
	validator Validator
	cache     CacheInvalidator
	metrics   Recorder
	log       *logger.Logger
	now       func() time.Time
}

// NewRegisterMovementUseCase construye el caso de uso. cache y metrics pueden ser nil.
func NewRegisterMovementUseCase(
	txRunner TxRunner,
	validator Validator,
	cache CacheInvalidator,
	metrics Recorder,
	log *logger.Logger,
) *RegisterMovementUseCase {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RegisterMovementUseCase{
		txRunner:  txRunner,
		validator: validator,
		cache:     cache,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (uc *RegisterMovementUseCase) WithClock(now func() time.Time) *RegisterMovementUseCase {
	uc.now = now
	return uc
}

// RegisterMovement ejecuta la máquina de estados Validating → Mutating → Logging → Committed.
// Cualquier falla antes del commit deja todo como estaba (Aborted).
func (uc *RegisterMovementUseCase) RegisterMovement(ctx context.Context, in MovementInput) (*MovementResult, error) {
	start := time.Now()
	res := &MovementResult{State: StateValidating}

	userID, err := uc.validate(ctx, &in)
	if err != nil {
		return uc.abort(res, in, start, err)
	}

	now := uc.now().UTC()
	// La transacción no se cancela a mitad de camino: corre hasta commit o rollback aunque el llamador abandone.
	txCtx := context.WithoutCancel(ctx)
	err = uc.txRunner.Run(txCtx, in.TenantID, func(ctx context.Context, repos TxRepos) error {
		res.State = StateMutating
		m := &mutation{repos: repos, in: in, now: now}
		before, err := m.prepare(ctx)
		if err != nil {
			return err
		}
		if err := m.apply(ctx); err != nil {
			return err
		}
		stock, err := m.commitAggregate(ctx)
		if err != nil {
			return err
		}

		res.State = StateLogging
		mov := newMovement(in, userID, before, stock.Quantity, now)
		if err := repos.Movements.Append(ctx, mov); err != nil {
			return err
		}
		res.Stock = stock
		res.Movement = mov
		res.Batches = m.touched
		return nil
	})
	if err != nil {
		res.Stock, res.Movement, res.Batches = nil, nil, nil
		return uc.abort(res, in, start, err)
	}

	res.State = StateCommitted
	uc.invalidate(ctx, in.TenantID, in.SchoolID, in.ProductID)
	uc.metrics.ObserveMovement(string(in.Kind), "committed", time.Since(start))
	uc.log.Info().
		Str("tenant_id", in.TenantID).
		Str("school_id", in.SchoolID).
		Str("product_id", in.ProductID).
		Str("kind", string(in.Kind)).
		Str("before", res.Movement.QuantityBefore.String()).
		Str("after", res.Movement.QuantityAfter.String()).
		Msg("movimiento registrado")
	return res, nil
}

// validate normaliza la entrada y ejecuta los chequeos de pertenencia (fuera de la transacción, en paralelo).
// Devuelve el usuario a registrar, nil si no pudo validarse contra el tenant.
func (uc *RegisterMovementUseCase) validate(ctx context.Context, in *MovementInput) (*string, error) {
	if err := normalizeInput(in); err != nil {
		return nil, err
	}
	if err := uc.validator.TenantActive(ctx, in.TenantID); err != nil {
		return nil, err
	}

	var userID *string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return uc.validator.SchoolOwnedBy(gctx, in.SchoolID, in.TenantID) })
	g.Go(func() error { return uc.validator.ProductOwnedBy(gctx, in.ProductID, in.TenantID) })
	if in.BatchID != "" {
		g.Go(func() error {
			owner, err := uc.validator.BatchOwnedBy(gctx, in.BatchID, in.TenantID)
			if err != nil {
				return err
			}
			if owner.SchoolID != in.SchoolID || owner.ProductID != in.ProductID {
				return domain.NewValidationFor("el lote no corresponde a la escuela y producto del movimiento", in.BatchID)
			}
			return nil
		})
	}
	if in.UserID != "" {
		g.Go(func() error {
			err := uc.validator.UserHasAccessTo(gctx, in.UserID, in.TenantID)
			switch {
			case err == nil:
				id := in.UserID
				userID = &id
			case domain.IsBusiness(err):
				uc.log.Warn().
					Str("tenant_id", in.TenantID).
					Str("user_id", in.UserID).
					Str("kind", domain.KindOf(err)).
					Msg("usuario no validado para el tenant; se registra sin usuario")
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return userID, nil
}

func normalizeInput(in *MovementInput) error {
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.SchoolID = strings.TrimSpace(in.SchoolID)
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.BatchID = strings.TrimSpace(in.BatchID)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	in.Reason = strings.TrimSpace(in.Reason)

	if in.TenantID == "" {
		return domain.NewTenantContextMissing()
	}
	if in.SchoolID == "" || in.ProductID == "" {
		return domain.NewValidation("escuela y producto son obligatorios")
	}
	switch in.Kind {
	case entity.MovementEntrada, entity.MovementSaida, entity.MovementAjuste:
	case entity.MovementReset:
		return domain.NewValidation("reset se ejecuta con la operación de puesta a cero de la escuela")
	default:
		return domain.NewValidation(fmt.Sprintf("tipo de movimiento inválido: %q", in.Kind))
	}
	if in.Quantity.IsNegative() {
		return domain.NewValidation("la cantidad no puede ser negativa")
	}
	if inventory.HasExcessPrecision(in.Quantity) {
		return domain.NewValidation(fmt.Sprintf("la cantidad admite hasta %d decimales", inventory.Scale))
	}
	if inventory.ExceedsMax(in.Quantity) {
		return domain.NewValidation("la cantidad supera el máximo admitido (" + inventory.MaxQuantity.String() + ")")
	}
	in.Quantity = inventory.Normalize(in.Quantity)
	if in.Kind != entity.MovementEntrada && (in.ExpiryDate != nil || in.ManufactureDate != nil || in.LotLabel != "") {
		return domain.NewValidation("vencimiento, fabricación y etiqueta de lote solo aplican a entradas")
	}
	if in.Kind == entity.MovementAjuste && in.BatchID != "" {
		return domain.NewValidation("el ajuste no admite lote explícito")
	}
	if in.BatchID != "" && (in.ExpiryDate != nil || in.ManufactureDate != nil) {
		return domain.NewValidation("una corrección de lote no redefine sus fechas")
	}
	if in.ExpiryDate != nil && in.ManufactureDate != nil && in.ManufactureDate.After(*in.ExpiryDate) {
		return domain.NewValidation("la fecha de fabricación es posterior al vencimiento")
	}
	return nil
}

func (uc *RegisterMovementUseCase) abort(res *MovementResult, in MovementInput, start time.Time, err error) (*MovementResult, error) {
	res.State = StateAborted
	outcome := "rejected"
	if !domain.IsBusiness(err) {
		outcome = "failed"
		uc.log.Error().Err(err).
			Str("tenant_id", in.TenantID).
			Str("school_id", in.SchoolID).
			Str("product_id", in.ProductID).
			Str("kind", string(in.Kind)).
			Str("quantity", in.Quantity.String()).
			Msg("falla inesperada registrando movimiento")
		err = domain.NewInternal(err)
	}
	uc.metrics.ObserveMovement(string(in.Kind), outcome, time.Since(start))
	return res, err
}

// invalidate invalida las lecturas afectadas; si falla, toda la caché del tenant.
// El movimiento ya está confirmado: una falla aquí se registra pero no revierte el resultado.
func (uc *RegisterMovementUseCase) invalidate(ctx context.Context, tenantID, schoolID, productID string) {
	invalidateAfterCommit(context.WithoutCancel(ctx), uc.cache, uc.metrics, uc.log, tenantID, affectedOps(schoolID, productID))
}

// invalidateAfterCommit sin patrones invalida directamente el tenant completo.
func invalidateAfterCommit(ctx context.Context, cache CacheInvalidator, metrics Recorder, log *logger.Logger, tenantID string, patterns []string) {
	if cache == nil {
		return
	}
	var errs []error
	for _, p := range patterns {
		if err := cache.InvalidatePattern(ctx, tenantID, p); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if len(patterns) > 0 && len(errs) == 0 {
		return
	}
	if len(errs) > 0 {
		metrics.InvalidationFailed("pattern")
	}
	if err := cache.InvalidateTenant(ctx, tenantID); err != nil {
		metrics.InvalidationFailed("tenant")
		log.Error().Err(errors.Join(append(errs, err)...)).
			Str("tenant_id", tenantID).
			Msg("no fue posible invalidar la caché del tenant")
		return
	}
	if len(errs) == 0 {
		return
	}
	log.Warn().Err(errors.Join(errs...)).Str("tenant_id", tenantID).Msg("invalidación por patrón falló; se invalidó el tenant completo")
}

func newMovement(in MovementInput, userID *string, before, after decimal.Decimal, now time.Time) *entity.Movement {
	mov := &entity.Movement{
		ID:             uuid.New().String(),
		TenantID:       in.TenantID,
		SchoolID:       in.SchoolID,
		ProductID:      in.ProductID,
		Kind:           in.Kind,
		QuantityBefore: before,
		Requested:      in.Quantity,
		Delta:          after.Sub(before),
		QuantityAfter:  after,
		Reason:         in.Reason,
		DocumentRef:    in.DocumentRef,
		UserID:         userID,
		CreatedAt:      now,
	}
	if in.BatchID != "" {
		id := in.BatchID
		mov.BatchID = &id
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		mov.IdempotencyKey = &key
	}
	return mov
}
