package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/inventory"
)

// mutation estado de la fase Mutating de un movimiento, dentro de la transacción.
type mutation struct {
	repos TxRepos
	in    MovementInput
	now   time.Time

	stock   *entity.StockRecord
	batches []*entity.Batch // lotes activos de la clave (más los reactivados)
	touched []*entity.Batch
	created map[string]bool
}

// prepare bloquea el agregado, carga los lotes activos y absorbe en el lote abierto
// la cantidad del agregado que no estaba respaldada por lotes. Devuelve la cantidad previa.
func (m *mutation) prepare(ctx context.Context) (decimal.Decimal, error) {
	stock, err := m.repos.Stock.LockForUpdate(ctx, m.in.TenantID, m.in.SchoolID, m.in.ProductID)
	if err != nil {
		return decimal.Zero, err
	}
	m.stock = stock
	m.created = map[string]bool{}

	batches, err := m.repos.Batches.ListActiveForUpdate(ctx, m.in.TenantID, m.in.SchoolID, m.in.ProductID)
	if err != nil {
		return decimal.Zero, err
	}
	m.batches = batches

	before := inventory.Normalize(stock.Quantity)
	if rem := inventory.Remainder(before, batches); rem.IsPositive() {
		m.addToOpenLot(inventory.NewBatchInput{
			TenantID:  m.in.TenantID,
			SchoolID:  m.in.SchoolID,
			ProductID: m.in.ProductID,
			Quantity:  rem,
		})
	}
	return before, nil
}

func (m *mutation) apply(ctx context.Context) error {
	switch m.in.Kind {
	case entity.MovementEntrada:
		return m.entrada(ctx)
	case entity.MovementSaida:
		return m.saida(ctx)
	case entity.MovementAjuste:
		return m.ajuste()
	}
	return domain.NewValidation("tipo de movimiento inválido")
}

// entrada: con vencimiento siempre crea un lote nuevo; sin vencimiento suma al lote abierto activo
// (o crea uno). Con BatchID explícito suma a ese lote, aunque esté agotado.
func (m *mutation) entrada(ctx context.Context) error {
	qty := m.in.Quantity
	if qty.IsZero() {
		return nil
	}
	if m.in.BatchID != "" {
		b, err := m.findBatch(ctx, m.in.BatchID)
		if err != nil {
			return err
		}
		inventory.AddExplicit(b, qty, m.now)
		m.touch(b)
		return nil
	}
	if m.in.ExpiryDate != nil {
		m.create(inventory.NewBatch(m.batchInput(qty, m.in.ExpiryDate), m.now))
		return nil
	}
	m.addToOpenLot(m.batchInput(qty, nil))
	return nil
}

// saida: FIFO por vencimiento sobre los lotes activos; con BatchID consume solo de ese lote.
// La suficiencia se verifica acá, con el agregado bloqueado.
func (m *mutation) saida(ctx context.Context) error {
	qty := m.in.Quantity
	if m.in.BatchID != "" {
		b, err := m.findBatch(ctx, m.in.BatchID)
		if err != nil {
			return err
		}
		available := decimal.Zero
		if b.IsActive() {
			available = b.Quantity
		}
		if qty.GreaterThan(available) {
			return domain.NewInsufficientStock(m.in.ProductID, qty.String(), available.String())
		}
		if err := inventory.Consume(b, qty, m.now); err != nil {
			return err
		}
		m.touch(b)
		return nil
	}

	plan, err := inventory.PlanConsumption(m.batches, qty)
	if err != nil {
		if errors.Is(err, inventory.ErrShortfall) {
			return domain.NewInsufficientStock(m.in.ProductID, qty.String(), inventory.RecomputeAggregate(m.batches).String())
		}
		return err
	}
	if err := inventory.ApplyConsumption(plan, m.now); err != nil {
		return err
	}
	for _, c := range plan {
		m.touch(c.Batch)
	}
	return nil
}

// ajuste: Quantity es el total objetivo; los lotes fechados no se tocan y el lote abierto absorbe la diferencia.
func (m *mutation) ajuste() error {
	plan, err := inventory.PlanAdjustment(m.batches, m.in.Quantity)
	if err != nil {
		if errors.Is(err, inventory.ErrTargetBelowDated) {
			return domain.NewValidationFor(
				"el total objetivo ("+m.in.Quantity.String()+") es menor que el stock con vencimiento ("+
					inventory.DatedTotal(m.batches).String()+")", m.in.ProductID)
		}
		return err
	}
	for _, b := range plan.Retire {
		m.touch(b)
	}
	created, err := inventory.ApplyAdjustment(plan, m.batchInput(decimal.Zero, nil), m.now)
	if err != nil {
		return err
	}
	if plan.Open != nil {
		m.touch(plan.Open)
	}
	if created != nil {
		m.create(created)
	}
	return nil
}

// commitAggregate persiste los lotes y recalcula el agregado como suma de lotes activos.
// Un agregado que no cabe en la columna rechaza el movimiento antes de escribir.
func (m *mutation) commitAggregate(ctx context.Context) (*entity.StockRecord, error) {
	total := inventory.RecomputeAggregate(m.batches)
	if inventory.ExceedsMax(total) {
		return nil, domain.NewValidationFor(
			"el stock resultante ("+total.String()+") supera el máximo admitido ("+inventory.MaxQuantity.String()+")", m.in.ProductID)
	}
	for _, b := range m.touched {
		var err error
		if m.created[b.ID] {
			err = m.repos.Batches.Create(ctx, b)
		} else {
			err = m.repos.Batches.Update(ctx, b)
		}
		if err != nil {
			return nil, err
		}
	}
	m.stock.Quantity = total
	m.stock.UpdatedAt = m.now
	if err := m.repos.Stock.Upsert(ctx, m.stock); err != nil {
		return nil, err
	}
	return m.stock, nil
}

// addToOpenLot suma al lote abierto activo más antiguo o crea uno con in.
func (m *mutation) addToOpenLot(in inventory.NewBatchInput) {
	if open := inventory.OpenLots(m.batches); len(open) > 0 {
		inventory.AddExplicit(open[0], in.Quantity, m.now)
		m.touch(open[0])
		return
	}
	m.create(inventory.NewBatch(in, m.now))
}

// findBatch busca el lote entre los activos cargados; si está agotado lo lee y lo incorpora.
func (m *mutation) findBatch(ctx context.Context, id string) (*entity.Batch, error) {
	for _, b := range m.batches {
		if b.ID == id {
			return b, nil
		}
	}
	b, err := m.repos.Batches.GetByID(ctx, m.in.TenantID, id)
	if err != nil {
		return nil, err
	}
	if b.SchoolID != m.in.SchoolID || b.ProductID != m.in.ProductID {
		return nil, domain.NewValidationFor("el lote no corresponde a la escuela y producto del movimiento", id)
	}
	m.batches = append(m.batches, b)
	return b, nil
}

func (m *mutation) batchInput(qty decimal.Decimal, expiry *time.Time) inventory.NewBatchInput {
	return inventory.NewBatchInput{
		TenantID:        m.in.TenantID,
		SchoolID:        m.in.SchoolID,
		ProductID:       m.in.ProductID,
		LotLabel:        m.in.LotLabel,
		Quantity:        qty,
		ExpiryDate:      expiry,
		ManufactureDate: m.in.ManufactureDate,
	}
}

func (m *mutation) create(b *entity.Batch) {
	m.batches = append(m.batches, b)
	m.created[b.ID] = true
	m.touch(b)
}

func (m *mutation) touch(b *entity.Batch) {
	for _, t := range m.touched {
		if t == b {
			return
		}
	}
	m.touched = append(m.touched, b)
}
