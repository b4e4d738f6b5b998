package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/repository"
)

var errReadOnly = errors.New("memstore: escritura en transacción de solo lectura")

// txState estado de una transacción ligada a un tenant.
type txState struct {
	store    *Store
	tenant   string
	st       state
	readOnly bool
}

func (tx *txState) repos() inventory.TxRepos {
	return inventory.TxRepos{
		Stock:     stockRepo{tx},
		Batches:   batchRepo{tx},
		Movements: movementRepo{tx},
		Products:  productRepo{tx},
	}
}

// visible emula la política de filas: solo el tenant de la transacción.
func (tx *txState) visible(tenantID string) bool {
	return tenantID == tx.tenant
}

func (tx *txState) write(op string) error {
	if tx.readOnly {
		return errReadOnly
	}
	return tx.store.fault(op)
}

// ── Stock ──────────────────────────────────────────────────────────────────

type stockRepo struct{ tx *txState }

var _ repository.StockRepository = stockRepo{}

func (r stockRepo) Get(_ context.Context, tenantID, schoolID, productID string) (*entity.StockRecord, error) {
	if !r.tx.visible(tenantID) {
		return &entity.StockRecord{TenantID: tenantID, SchoolID: schoolID, ProductID: productID, Quantity: decimal.Zero}, nil
	}
	rec, ok := r.tx.st.stock[stockKey{tenantID, schoolID, productID}]
	if !ok {
		return &entity.StockRecord{TenantID: tenantID, SchoolID: schoolID, ProductID: productID, Quantity: decimal.Zero}, nil
	}
	return &rec, nil
}

func (r stockRepo) LockForUpdate(ctx context.Context, tenantID, schoolID, productID string) (*entity.StockRecord, error) {
	if err := r.tx.write(OpStockLock); err != nil {
		return nil, err
	}
	if !r.tx.visible(tenantID) {
		return nil, errors.New("memstore: registro fuera del tenant de la transacción")
	}
	key := stockKey{tenantID, schoolID, productID}
	rec, ok := r.tx.st.stock[key]
	if !ok {
		rec = entity.StockRecord{TenantID: tenantID, SchoolID: schoolID, ProductID: productID, Quantity: decimal.Zero, UpdatedAt: time.Now().UTC()}
		r.tx.st.stock[key] = rec
	}
	return &rec, nil
}

func (r stockRepo) Upsert(_ context.Context, rec *entity.StockRecord) error {
	if err := r.tx.write(OpStockUpsert); err != nil {
		return err
	}
	if !r.tx.visible(rec.TenantID) {
		return errors.New("memstore: registro fuera del tenant de la transacción")
	}
	if rec.Quantity.IsNegative() {
		return errors.New("memstore: check violation stock.quantity >= 0")
	}
	r.tx.st.stock[stockKey{rec.TenantID, rec.SchoolID, rec.ProductID}] = *rec
	return nil
}

func (r stockRepo) ListBySchoolForUpdate(_ context.Context, tenantID, schoolID string) ([]*entity.StockRecord, error) {
	if err := r.tx.write(OpStockLock); err != nil {
		return nil, err
	}
	var out []*entity.StockRecord
	for k, v := range r.tx.st.stock {
		if r.tx.visible(k.tenant) && k.tenant == tenantID && k.school == schoolID {
			rec := v
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r stockRepo) ListBySchool(_ context.Context, tenantID, schoolID string) ([]repository.SchoolStockRow, error) {
	rows := []repository.SchoolStockRow{}
	for k, v := range r.tx.st.stock {
		if !r.tx.visible(k.tenant) || k.tenant != tenantID || k.school != schoolID {
			continue
		}
		p := r.tx.st.products[k.product]
		rows = append(rows, repository.SchoolStockRow{
			ProductID:   k.product,
			ProductName: p.Name,
			Category:    p.Category,
			Unit:        p.Attributes.WithDefaults().Unit,
			Quantity:    v.Quantity,
			UpdatedAt:   v.UpdatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductName != rows[j].ProductName {
			return rows[i].ProductName < rows[j].ProductName
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	return rows, nil
}

func (r stockRepo) ListByProduct(_ context.Context, tenantID, productID string) ([]repository.ProductStockRow, error) {
	rows := []repository.ProductStockRow{}
	for k, v := range r.tx.st.stock {
		if !r.tx.visible(k.tenant) || k.tenant != tenantID || k.product != productID {
			continue
		}
		rows = append(rows, repository.ProductStockRow{
			SchoolID:   k.school,
			SchoolName: r.tx.st.schools[k.school].Name,
			Quantity:   v.Quantity,
			UpdatedAt:  v.UpdatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SchoolName != rows[j].SchoolName {
			return rows[i].SchoolName < rows[j].SchoolName
		}
		return rows[i].SchoolID < rows[j].SchoolID
	})
	return rows, nil
}

func (r stockRepo) Summary(_ context.Context, tenantID string, expiringBefore time.Time) ([]repository.StockSummaryRow, error) {
	byProduct := map[string]*repository.StockSummaryRow{}
	row := func(productID string) *repository.StockSummaryRow {
		if s, ok := byProduct[productID]; ok {
			return s
		}
		p := r.tx.st.products[productID]
		s := &repository.StockSummaryRow{ProductID: productID, ProductName: p.Name, Unit: p.Attributes.WithDefaults().Unit, TotalQuantity: decimal.Zero}
		byProduct[productID] = s
		return s
	}
	for k, v := range r.tx.st.stock {
		if !r.tx.visible(k.tenant) || k.tenant != tenantID {
			continue
		}
		s := row(k.product)
		s.TotalQuantity = s.TotalQuantity.Add(v.Quantity)
		if v.Quantity.IsPositive() {
			s.SchoolsWithStock++
		}
	}
	for _, b := range r.tx.st.batches {
		if !r.tx.visible(b.TenantID) || b.TenantID != tenantID || !b.IsActive() {
			continue
		}
		s := row(b.ProductID)
		s.ActiveBatches++
		if b.ExpiryDate != nil && !b.ExpiryDate.After(expiringBefore) {
			s.ExpiringBatches++
		}
	}
	rows := make([]repository.StockSummaryRow, 0, len(byProduct))
	for _, s := range byProduct {
		rows = append(rows, *s)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProductName != rows[j].ProductName {
			return rows[i].ProductName < rows[j].ProductName
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	return rows, nil
}

// ── Lotes ──────────────────────────────────────────────────────────────────

type batchRepo struct{ tx *txState }

var _ repository.BatchRepository = batchRepo{}

func (r batchRepo) Create(_ context.Context, b *entity.Batch) error {
	if err := r.tx.write(OpBatchCreate); err != nil {
		return err
	}
	if !r.tx.visible(b.TenantID) {
		return errors.New("memstore: lote fuera del tenant de la transacción")
	}
	if _, exists := r.tx.st.batches[b.ID]; exists {
		return errors.New("memstore: lote duplicado " + b.ID)
	}
	r.tx.st.batches[b.ID] = *b.Clone()
	return nil
}

func (r batchRepo) GetByID(_ context.Context, tenantID, id string) (*entity.Batch, error) {
	b, ok := r.tx.st.batches[id]
	if !ok || !r.tx.visible(b.TenantID) || b.TenantID != tenantID {
		return nil, domain.NewNotFound("lote", id)
	}
	return b.Clone(), nil
}

func (r batchRepo) Update(_ context.Context, b *entity.Batch) error {
	if err := r.tx.write(OpBatchUpdate); err != nil {
		return err
	}
	cur, ok := r.tx.st.batches[b.ID]
	if !ok || !r.tx.visible(cur.TenantID) {
		return domain.NewNotFound("lote", b.ID)
	}
	if b.Quantity.IsNegative() {
		return errors.New("memstore: check violation batches.quantity >= 0")
	}
	r.tx.st.batches[b.ID] = *b.Clone()
	return nil
}

func (r batchRepo) ListActiveForUpdate(_ context.Context, tenantID, schoolID, productID string) ([]*entity.Batch, error) {
	return r.list(func(b entity.Batch) bool {
		return b.TenantID == tenantID && b.SchoolID == schoolID && b.ProductID == productID && b.IsActive()
	}), nil
}

func (r batchRepo) ListByProduct(_ context.Context, tenantID, schoolID, productID string, includeDepleted bool) ([]*entity.Batch, error) {
	return r.list(func(b entity.Batch) bool {
		return b.TenantID == tenantID && b.ProductID == productID &&
			(schoolID == "" || b.SchoolID == schoolID) &&
			(includeDepleted || b.IsActive())
	}), nil
}

func (r batchRepo) ListBySchool(_ context.Context, tenantID, schoolID string) ([]*entity.Batch, error) {
	return r.list(func(b entity.Batch) bool {
		return b.TenantID == tenantID && b.SchoolID == schoolID
	}), nil
}

func (r batchRepo) list(match func(entity.Batch) bool) []*entity.Batch {
	out := []*entity.Batch{}
	for _, b := range r.tx.st.batches {
		if r.tx.visible(b.TenantID) && match(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ── Historial ──────────────────────────────────────────────────────────────

type movementRepo struct{ tx *txState }

var _ repository.MovementRepository = movementRepo{}

func (r movementRepo) Append(_ context.Context, m *entity.Movement) error {
	if err := r.tx.write(OpMovementAppend); err != nil {
		return err
	}
	if !r.tx.visible(m.TenantID) {
		return errors.New("memstore: movimiento fuera del tenant de la transacción")
	}
	if m.IdempotencyKey != nil {
		k := idemKey{m.TenantID, *m.IdempotencyKey}
		if _, dup := r.tx.st.idempotency[k]; dup {
			return domain.NewDuplicateMovement(*m.IdempotencyKey)
		}
		r.tx.st.idempotency[k] = m.ID
	}
	r.tx.st.seq++
	r.tx.st.movements = append(r.tx.st.movements, storedMovement{seq: r.tx.st.seq, mov: *m})
	return nil
}

func (r movementRepo) Query(_ context.Context, tenantID string, f entity.MovementFilter) ([]*entity.Movement, error) {
	var matched []storedMovement
	for _, sm := range r.tx.st.movements {
		m := sm.mov
		if !r.tx.visible(m.TenantID) || m.TenantID != tenantID {
			continue
		}
		if f.SchoolID != "" && m.SchoolID != f.SchoolID {
			continue
		}
		if f.ProductID != "" && m.ProductID != f.ProductID {
			continue
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		if f.From != nil && m.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && m.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, sm)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].mov.CreatedAt.Equal(matched[j].mov.CreatedAt) {
			return matched[i].mov.CreatedAt.After(matched[j].mov.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	out := []*entity.Movement{}
	for i := f.Offset; i < len(matched) && (f.Limit <= 0 || len(out) < f.Limit); i++ {
		m := matched[i].mov
		out = append(out, &m)
	}
	return out, nil
}

func (r movementRepo) ListBySchool(ctx context.Context, tenantID, schoolID string) ([]*entity.Movement, error) {
	if err := r.tx.store.fault(OpMovementsBySchl); err != nil {
		return nil, err
	}
	return r.Query(ctx, tenantID, entity.MovementFilter{SchoolID: schoolID})
}

// ── Productos ──────────────────────────────────────────────────────────────

type productRepo struct{ tx *txState }

var _ repository.ProductRepository = productRepo{}

func (r productRepo) GetByID(_ context.Context, tenantID, id string) (*entity.Product, error) {
	p, ok := r.tx.st.products[strings.TrimSpace(id)]
	if !ok || !r.tx.visible(p.TenantID) || p.TenantID != tenantID {
		return nil, domain.NewNotFound("producto", id)
	}
	p.Attributes = p.Attributes.WithDefaults()
	return &p, nil
}
