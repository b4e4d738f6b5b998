package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

// uqMovementIdempotency índice único parcial (tenant_id, idempotency_key).
const uqMovementIdempotency = "uq_stock_movements_idempotency"

// MovementRepo historial append-only (la tabla rechaza UPDATE y DELETE por trigger).
type MovementRepo struct {
	q Querier
}

// NewMovementRepository pasar pool o tx (Querier).
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

var movementColumns = []string{
	"id", "tenant_id", "school_id", "product_id", "kind", "quantity_before", "requested", "delta",
	"quantity_after", "reason", "document_ref", "user_id", "batch_id", "idempotency_key", "created_at",
}

func scanMovement(row pgx.Row) (*entity.Movement, error) {
	var m entity.Movement
	err := row.Scan(&m.ID, &m.TenantID, &m.SchoolID, &m.ProductID, &m.Kind, &m.QuantityBefore, &m.Requested, &m.Delta,
		&m.QuantityAfter, &m.Reason, &m.DocumentRef, &m.UserID, &m.BatchID, &m.IdempotencyKey, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Append inserta una entrada del historial.
func (r *MovementRepo) Append(ctx context.Context, m *entity.Movement) error {
	sql, args, err := psql.Insert("stock_movements").Columns(movementColumns...).
		Values(m.ID, m.TenantID, m.SchoolID, m.ProductID, m.Kind, m.QuantityBefore, m.Requested, m.Delta,
			m.QuantityAfter, m.Reason, m.DocumentRef, nullableString(m.UserID), nullableString(m.BatchID),
			nullableString(m.IdempotencyKey), m.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.q.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) && constraintName(err) == uqMovementIdempotency && m.IdempotencyKey != nil {
			return domain.NewDuplicateMovement(*m.IdempotencyKey)
		}
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// Query historial filtrado, más reciente primero; seq desempata movimientos del mismo instante.
func (r *MovementRepo) Query(ctx context.Context, tenantID string, f entity.MovementFilter) ([]*entity.Movement, error) {
	q := psql.Select(movementColumns...).From("stock_movements").
		Where(squirrel.Eq{"tenant_id": tenantID})
	if f.SchoolID != "" {
		q = q.Where(squirrel.Eq{"school_id": f.SchoolID})
	}
	if f.ProductID != "" {
		q = q.Where(squirrel.Eq{"product_id": f.ProductID})
	}
	if f.Kind != "" {
		q = q.Where(squirrel.Eq{"kind": f.Kind})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.To})
	}
	q = q.OrderBy("created_at DESC", "seq DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()
	out := []*entity.Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListBySchool historial completo de la escuela (respaldo previo al reset).
func (r *MovementRepo) ListBySchool(ctx context.Context, tenantID, schoolID string) ([]*entity.Movement, error) {
	return r.Query(ctx, tenantID, entity.MovementFilter{SchoolID: schoolID})
}
