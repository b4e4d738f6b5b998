package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

// BatchRepo lotes sobre PostgreSQL. No hay DELETE: un lote agotado queda con status depleted.
type BatchRepo struct {
	q Querier
}

// NewBatchRepository pasar pool o tx (Querier).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

var batchColumns = []string{
	"id", "tenant_id", "school_id", "product_id", "lot_label", "initial_quantity", "quantity",
	"expiry_date", "manufacture_date", "status", "created_at", "updated_at",
}

func scanBatch(row pgx.Row) (*entity.Batch, error) {
	var b entity.Batch
	err := row.Scan(&b.ID, &b.TenantID, &b.SchoolID, &b.ProductID, &b.LotLabel, &b.InitialQuantity, &b.Quantity,
		&b.ExpiryDate, &b.ManufactureDate, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create persiste un lote nuevo.
func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	query := `
		INSERT INTO batches (id, tenant_id, school_id, product_id, lot_label, initial_quantity, quantity,
		                     expiry_date, manufacture_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query, b.ID, b.TenantID, b.SchoolID, b.ProductID, b.LotLabel, b.InitialQuantity, b.Quantity,
		b.ExpiryDate, b.ManufactureDate, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// GetByID lote del tenant; invisible o inexistente es NotFound.
func (r *BatchRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Batch, error) {
	sql, args, err := psql.Select(batchColumns...).From("batches").
		Where(squirrel.Eq{"tenant_id": tenantID, "id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	b, err := scanBatch(r.q.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound("lote", id)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// Update guarda cantidad, estado y etiqueta. Los campos de identidad no cambian.
func (r *BatchRepo) Update(ctx context.Context, b *entity.Batch) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE batches SET quantity = $3, status = $4, lot_label = $5, updated_at = $6
		WHERE tenant_id = $1 AND id = $2`,
		b.TenantID, b.ID, b.Quantity, b.Status, b.LotLabel, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("lote", b.ID)
	}
	return nil
}

// ListActiveForUpdate lotes activos de la clave, bloqueados.
func (r *BatchRepo) ListActiveForUpdate(ctx context.Context, tenantID, schoolID, productID string) ([]*entity.Batch, error) {
	q := psql.Select(batchColumns...).From("batches").
		Where(squirrel.Eq{"tenant_id": tenantID, "school_id": schoolID, "product_id": productID, "status": entity.BatchStatusActive}).
		OrderBy("created_at", "id").
		Suffix("FOR UPDATE")
	return r.list(ctx, q)
}

// ListByProduct lotes del producto; schoolID vacío abarca todas las escuelas.
func (r *BatchRepo) ListByProduct(ctx context.Context, tenantID, schoolID, productID string, includeDepleted bool) ([]*entity.Batch, error) {
	q := psql.Select(batchColumns...).From("batches").
		Where(squirrel.Eq{"tenant_id": tenantID, "product_id": productID})
	if schoolID != "" {
		q = q.Where(squirrel.Eq{"school_id": schoolID})
	}
	if !includeDepleted {
		q = q.Where(squirrel.Eq{"status": entity.BatchStatusActive})
	}
	return r.list(ctx, q.OrderBy("created_at", "id"))
}

// ListBySchool todos los lotes de la escuela.
func (r *BatchRepo) ListBySchool(ctx context.Context, tenantID, schoolID string) ([]*entity.Batch, error) {
	q := psql.Select(batchColumns...).From("batches").
		Where(squirrel.Eq{"tenant_id": tenantID, "school_id": schoolID}).
		OrderBy("created_at", "id")
	return r.list(ctx, q)
}

func (r *BatchRepo) list(ctx context.Context, q squirrel.SelectBuilder) ([]*entity.Batch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	out := []*entity.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
