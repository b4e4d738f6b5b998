package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/inventory"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

// ResetInput puesta a cero de todo el stock de una escuela.
type ResetInput struct {
	TenantID string
	SchoolID string
	UserID   string
	Role     string
	Reason   string
}

// ResetResult resultado del reset.
type ResetResult struct {
	State     State
	BackupRef string
	Entries   []*entity.Movement // una entrada compensatoria por cada producto con stock
}

// ResetSchoolUseCase respaldo + entradas "reset" + agregados en cero, en una sola transacción.
type ResetSchoolUseCase struct {
	txRunner     TxRunner
	validator    Validator
	backup       BackupWriter
	cache        CacheInvalidator
	metrics      Recorder
	log          *logger.Logger
	requiredRole string
	now          func() time.Time
}

// NewResetSchoolUseCase construye el caso de uso; requiredRole vacío equivale a admin.
func NewResetSchoolUseCase(
	txRunner TxRunner,
	validator Validator,
	backup BackupWriter,
	cache CacheInvalidator,
	metrics Recorder,
	log *logger.Logger,
	requiredRole string,
) *ResetSchoolUseCase {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if requiredRole == "" {
		requiredRole = entity.RoleAdmin
	}
	return &ResetSchoolUseCase{
		txRunner:     txRunner,
		validator:    validator,
		backup:       backup,
		cache:        cache,
		metrics:      metrics,
		log:          log,
		requiredRole: requiredRole,
		now:          time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (uc *ResetSchoolUseCase) WithClock(now func() time.Time) *ResetSchoolUseCase {
	uc.now = now
	return uc
}

// Reset ejecuta la puesta a cero. Una falla en cualquier paso revierte todo y descarta el respaldo.
func (uc *ResetSchoolUseCase) Reset(ctx context.Context, in ResetInput) (*ResetResult, error) {
	res := &ResetResult{State: StateValidating}

	userID, err := uc.validate(ctx, &in)
	if err != nil {
		return uc.abort(res, in, err)
	}

	now := uc.now().UTC()
	err = uc.txRunner.Run(context.WithoutCancel(ctx), in.TenantID, func(ctx context.Context, repos TxRepos) error {
		res.State = StateMutating
		records, err := repos.Stock.ListBySchoolForUpdate(ctx, in.TenantID, in.SchoolID)
		if err != nil {
			return err
		}
		batches, err := repos.Batches.ListBySchool(ctx, in.TenantID, in.SchoolID)
		if err != nil {
			return err
		}
		history, err := repos.Movements.ListBySchool(ctx, in.TenantID, in.SchoolID)
		if err != nil {
			return err
		}

		snap := &entity.ResetSnapshot{
			TenantID:  in.TenantID,
			SchoolID:  in.SchoolID,
			TakenAt:   now,
			Reason:    in.Reason,
			Stock:     make([]entity.StockRecord, 0, len(records)),
			Batches:   make([]entity.Batch, 0, len(batches)),
			Movements: make([]entity.Movement, 0, len(history)),
		}
		for _, r := range records {
			snap.Stock = append(snap.Stock, *r)
		}
		for _, b := range batches {
			snap.Batches = append(snap.Batches, *b.Clone())
		}
		for _, m := range history {
			snap.Movements = append(snap.Movements, *m)
		}
		ref, err := uc.backup.Write(ctx, snap)
		if err != nil {
			return err
		}
		res.BackupRef = ref

		res.State = StateLogging
		items := resetItems(in.TenantID, in.SchoolID, records, batches)
		entries := make([]*entity.Movement, 0, len(items))
		for _, it := range items {
			if it.before.IsZero() {
				continue
			}
			mov := &entity.Movement{
				ID:             uuid.New().String(),
				TenantID:       in.TenantID,
				SchoolID:       in.SchoolID,
				ProductID:      it.record.ProductID,
				Kind:           entity.MovementReset,
				QuantityBefore: it.before,
				Requested:      decimal.Zero,
				Delta:          it.before.Neg(),
				QuantityAfter:  decimal.Zero,
				Reason:         in.Reason,
				DocumentRef:    ref,
				UserID:         userID,
				CreatedAt:      now,
			}
			if err := repos.Movements.Append(ctx, mov); err != nil {
				return err
			}
			entries = append(entries, mov)
		}

		res.State = StateMutating
		for _, b := range batches {
			if !b.IsActive() {
				continue
			}
			if err := inventory.SetQuantity(b, decimal.Zero, now); err != nil {
				return err
			}
			if err := repos.Batches.Update(ctx, b); err != nil {
				return err
			}
		}
		for _, it := range items {
			it.record.Quantity = decimal.Zero
			it.record.UpdatedAt = now
			if err := repos.Stock.Upsert(ctx, it.record); err != nil {
				return err
			}
		}
		res.Entries = entries
		return nil
	})
	if err != nil {
		if res.BackupRef != "" {
			if derr := uc.backup.Discard(context.WithoutCancel(ctx), res.BackupRef); derr != nil {
				uc.log.Warn().Err(derr).Str("backup_ref", res.BackupRef).Msg("no se pudo descartar el respaldo de un reset revertido")
			}
			res.BackupRef = ""
		}
		res.Entries = nil
		return uc.abort(res, in, err)
	}

	res.State = StateCommitted
	invalidateAfterCommit(context.WithoutCancel(ctx), uc.cache, uc.metrics, uc.log, in.TenantID, nil)
	uc.metrics.ObserveReset("committed")
	uc.log.Info().
		Str("tenant_id", in.TenantID).
		Str("school_id", in.SchoolID).
		Str("backup_ref", res.BackupRef).
		Int("entries", len(res.Entries)).
		Msg("escuela puesta a cero")
	return res, nil
}

func (uc *ResetSchoolUseCase) validate(ctx context.Context, in *ResetInput) (*string, error) {
	in.TenantID = strings.TrimSpace(in.TenantID)
	in.SchoolID = strings.TrimSpace(in.SchoolID)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.TenantID == "" {
		return nil, domain.NewTenantContextMissing()
	}
	if in.Role != uc.requiredRole {
		return nil, domain.NewPrivilegeRequired("reset de escuela")
	}
	if in.SchoolID == "" {
		return nil, domain.NewValidation("escuela obligatoria")
	}
	if in.Reason == "" {
		return nil, domain.NewValidation("el reset requiere un motivo")
	}
	if err := uc.validator.TenantActive(ctx, in.TenantID); err != nil {
		return nil, err
	}
	if err := uc.validator.SchoolOwnedBy(ctx, in.SchoolID, in.TenantID); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		return nil, nil
	}
	if err := uc.validator.UserHasAccessTo(ctx, in.UserID, in.TenantID); err != nil {
		if !domain.IsBusiness(err) {
			return nil, err
		}
		uc.log.Warn().Str("tenant_id", in.TenantID).Str("user_id", in.UserID).Msg("usuario no validado para el tenant; reset sin usuario")
		return nil, nil
	}
	id := in.UserID
	return &id, nil
}

func (uc *ResetSchoolUseCase) abort(res *ResetResult, in ResetInput, err error) (*ResetResult, error) {
	res.State = StateAborted
	outcome := "rejected"
	if !domain.IsBusiness(err) {
		outcome = "failed"
		uc.log.Error().Err(err).
			Str("tenant_id", in.TenantID).
			Str("school_id", in.SchoolID).
			Msg("falla inesperada en reset de escuela")
		err = domain.NewInternal(err)
	}
	uc.metrics.ObserveReset(outcome)
	return res, err
}

// resetItem producto de la escuela a poner en cero.
type resetItem struct {
	record *entity.StockRecord
	before decimal.Decimal
}

// resetItems un ítem por producto con agregado o con lotes activos. La cantidad previa es el
// mayor entre el agregado y la suma de sus lotes activos: un agregado desfasado no oculta lotes.
func resetItems(tenantID, schoolID string, records []*entity.StockRecord, batches []*entity.Batch) []resetItem {
	byProduct := map[string][]*entity.Batch{}
	var order []string
	for _, r := range records {
		order = append(order, r.ProductID)
	}
	for _, b := range batches {
		if _, seen := byProduct[b.ProductID]; !seen {
			order = append(order, b.ProductID)
		}
		byProduct[b.ProductID] = append(byProduct[b.ProductID], b)
	}

	recs := make(map[string]*entity.StockRecord, len(records))
	for _, r := range records {
		recs[r.ProductID] = r
	}
	items := make([]resetItem, 0, len(order))
	done := map[string]bool{}
	for _, productID := range order {
		if done[productID] {
			continue
		}
		done[productID] = true
		batchTotal := inventory.RecomputeAggregate(byProduct[productID])
		rec, ok := recs[productID]
		if !ok {
			if !batchTotal.IsPositive() {
				continue
			}
			rec = &entity.StockRecord{TenantID: tenantID, SchoolID: schoolID, ProductID: productID}
		}
		items = append(items, resetItem{
			record: rec,
			before: decimal.Max(inventory.Normalize(rec.Quantity), batchTotal),
		})
	}
	return items
}
