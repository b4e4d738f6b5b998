package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

var _ repository.StockRepository = (*StockRepo)(nil)

// StockRepo implementación de StockRepository sobre PostgreSQL (usable con pool o tx).
type StockRepo struct {
	q Querier
}

// NewStockRepository construye el adaptador de stock. Pasar pool o tx (Querier).
func NewStockRepository(q Querier) *StockRepo {
	return &StockRepo{q: q}
}

const stockColumns = `tenant_id, school_id, product_id, quantity, updated_at`

func scanStock(row pgx.Row) (*entity.StockRecord, error) {
	var s entity.StockRecord
	if err := row.Scan(&s.TenantID, &s.SchoolID, &s.ProductID, &s.Quantity, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Get obtiene el stock actual; sin registro devuelve cero.
func (r *StockRepo) Get(ctx context.Context, tenantID, schoolID, productID string) (*entity.StockRecord, error) {
	query := `SELECT ` + stockColumns + `
		FROM stock WHERE tenant_id = $1 AND school_id = $2 AND product_id = $3`
	s, err := scanStock(r.q.QueryRow(ctx, query, tenantID, schoolID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &entity.StockRecord{TenantID: tenantID, SchoolID: schoolID, ProductID: productID, Quantity: decimal.Zero}, nil
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return s, nil
}

// LockForUpdate inserta la fila en cero si falta y la bloquea (SELECT FOR UPDATE).
// El INSERT previo hace que dos primeras entradas concurrentes se serialicen sobre la misma fila.
func (r *StockRepo) LockForUpdate(ctx context.Context, tenantID, schoolID, productID string) (*entity.StockRecord, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO stock (tenant_id, school_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (tenant_id, school_id, product_id) DO NOTHING`, tenantID, schoolID, productID)
	if err != nil {
		return nil, fmt.Errorf("ensure stock row: %w", err)
	}
	query := `SELECT ` + stockColumns + `
		FROM stock WHERE tenant_id = $1 AND school_id = $2 AND product_id = $3
		FOR UPDATE`
	s, err := scanStock(r.q.QueryRow(ctx, query, tenantID, schoolID, productID))
	if err != nil {
		return nil, fmt.Errorf("get stock for update: %w", err)
	}
	return s, nil
}

// Upsert inserta o actualiza la cantidad en stock.
func (r *StockRepo) Upsert(ctx context.Context, rec *entity.StockRecord) error {
	query := `
		INSERT INTO stock (tenant_id, school_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, school_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := r.q.Exec(ctx, query, rec.TenantID, rec.SchoolID, rec.ProductID, rec.Quantity, updated)
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	return nil
}

// ListBySchoolForUpdate bloquea los registros de la escuela en orden de producto (orden estable de locks).
func (r *StockRepo) ListBySchoolForUpdate(ctx context.Context, tenantID, schoolID string) ([]*entity.StockRecord, error) {
	query := `SELECT ` + stockColumns + `
		FROM stock WHERE tenant_id = $1 AND school_id = $2
		ORDER BY product_id
		FOR UPDATE`
	rows, err := r.q.Query(ctx, query, tenantID, schoolID)
	if err != nil {
		return nil, fmt.Errorf("lock school stock: %w", err)
	}
	defer rows.Close()
	var out []*entity.StockRecord
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListBySchool stock de la escuela con datos del producto.
func (r *StockRepo) ListBySchool(ctx context.Context, tenantID, schoolID string) ([]repository.SchoolStockRow, error) {
	query := `
		SELECT s.product_id, p.name AS product_name, p.category, COALESCE(p.unit, '') AS unit,
		       s.quantity, s.updated_at
		FROM stock s
		JOIN products p ON p.id = s.product_id AND p.tenant_id = s.tenant_id
		WHERE s.tenant_id = $1 AND s.school_id = $2
		ORDER BY p.name, s.product_id`
	rows := []repository.SchoolStockRow{}
	if err := pgxscan.Select(ctx, r.q, &rows, query, tenantID, schoolID); err != nil {
		return nil, fmt.Errorf("list school stock: %w", err)
	}
	for i := range rows {
		rows[i].Unit = entity.ProductAttributes{Unit: rows[i].Unit}.WithDefaults().Unit
	}
	return rows, nil
}

// ListByProduct matriz de un producto sobre todas las escuelas del tenant.
func (r *StockRepo) ListByProduct(ctx context.Context, tenantID, productID string) ([]repository.ProductStockRow, error) {
	query := `
		SELECT s.school_id, sc.name AS school_name, s.quantity, s.updated_at
		FROM stock s
		JOIN schools sc ON sc.id = s.school_id AND sc.tenant_id = s.tenant_id
		WHERE s.tenant_id = $1 AND s.product_id = $2
		ORDER BY sc.name, s.school_id`
	rows := []repository.ProductStockRow{}
	if err := pgxscan.Select(ctx, r.q, &rows, query, tenantID, productID); err != nil {
		return nil, fmt.Errorf("list product stock: %w", err)
	}
	return rows, nil
}

// Summary totales por producto del tenant; expiring cuenta lotes activos que vencen hasta expiringBefore.
func (r *StockRepo) Summary(ctx context.Context, tenantID string, expiringBefore time.Time) ([]repository.StockSummaryRow, error) {
	query := `
		WITH s AS (
			SELECT product_id, SUM(quantity) AS total, COUNT(*) FILTER (WHERE quantity > 0) AS schools
			FROM stock WHERE tenant_id = $1
			GROUP BY product_id
		), b AS (
			SELECT product_id, COUNT(*) AS active,
			       COUNT(*) FILTER (WHERE expiry_date IS NOT NULL AND expiry_date <= $2::date) AS expiring
			FROM batches WHERE tenant_id = $1 AND status = 'active'
			GROUP BY product_id
		)
		SELECT p.id AS product_id, p.name AS product_name, COALESCE(p.unit, '') AS unit,
		       COALESCE(s.total, 0) AS total_quantity,
		       COALESCE(s.schools, 0) AS schools_with_stock,
		       COALESCE(b.active, 0) AS active_batches,
		       COALESCE(b.expiring, 0) AS expiring_batches
		FROM products p
		LEFT JOIN s ON s.product_id = p.id
		LEFT JOIN b ON b.product_id = p.id
		WHERE p.tenant_id = $1 AND (s.product_id IS NOT NULL OR b.product_id IS NOT NULL)
		ORDER BY p.name, p.id`
	rows := []repository.StockSummaryRow{}
	if err := pgxscan.Select(ctx, r.q, &rows, query, tenantID, entity.DateOnly(expiringBefore)); err != nil {
		return nil, fmt.Errorf("stock summary: %w", err)
	}
	for i := range rows {
		rows[i].Unit = entity.ProductAttributes{Unit: rows[i].Unit}.WithDefaults().Unit
	}
	return rows, nil
}
