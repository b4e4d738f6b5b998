package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

var (
	// ErrShortfall la suma de lotes activos no cubre la salida.
	ErrShortfall = errors.New("stock insuficiente en lotes")
	// ErrTargetBelowDated el total objetivo es menor que el stock con vencimiento.
	ErrTargetBelowDated = errors.New("total objetivo menor que el stock con vencimiento")
)

// Consumption cuánto se toma de un lote.
type Consumption struct {
	Batch *entity.Batch
	Take  decimal.Decimal
}

// PlanConsumption recorre los lotes activos en orden FIFO por vencimiento hasta cubrir qty.
// Si no alcanza devuelve ErrShortfall y ningún plan: no hay consumo parcial.
func PlanConsumption(batches []*entity.Batch, qty decimal.Decimal) ([]Consumption, error) {
	qty = Normalize(qty)
	if RecomputeAggregate(batches).LessThan(qty) {
		return nil, ErrShortfall
	}
	var plan []Consumption
	pending := qty
	for _, b := range SortFIFO(batches) {
		if !pending.IsPositive() {
			break
		}
		if !b.IsActive() || !b.Quantity.IsPositive() {
			continue
		}
		take := decimal.Min(b.Quantity, pending)
		plan = append(plan, Consumption{Batch: b, Take: take})
		pending = pending.Sub(take)
	}
	return plan, nil
}

// ApplyConsumption ejecuta el plan sobre los lotes.
func ApplyConsumption(plan []Consumption, now time.Time) error {
	for _, c := range plan {
		if err := Consume(c.Batch, c.Take, now); err != nil {
			return err
		}
	}
	return nil
}

// AdjustmentPlan resultado de un ajuste: el lote abierto absorbe Target - Dated.
// Open nil con OpenQuantity positiva significa crear un lote abierto nuevo.
// Retire son lotes abiertos adicionales que se consolidan en Open (quedan en cero).
type AdjustmentPlan struct {
	Target       decimal.Decimal
	Dated        decimal.Decimal
	OpenQuantity decimal.Decimal
	Open         *entity.Batch
	Retire       []*entity.Batch
}

// PlanAdjustment los lotes con vencimiento no se tocan; el stock sin vencimiento pasa a ser Target - Dated.
func PlanAdjustment(batches []*entity.Batch, target decimal.Decimal) (AdjustmentPlan, error) {
	target = Normalize(target)
	dated := DatedTotal(batches)
	if target.LessThan(dated) {
		return AdjustmentPlan{}, ErrTargetBelowDated
	}
	p := AdjustmentPlan{Target: target, Dated: dated, OpenQuantity: target.Sub(dated)}
	open := OpenLots(batches)
	if len(open) > 0 {
		p.Open = open[0]
		p.Retire = open[1:]
	}
	return p, nil
}

// ApplyAdjustment ejecuta el plan. Devuelve el lote creado, si hubo que crear uno.
func ApplyAdjustment(p AdjustmentPlan, in NewBatchInput, now time.Time) (*entity.Batch, error) {
	for _, b := range p.Retire {
		if err := SetQuantity(b, decimal.Zero, now); err != nil {
			return nil, err
		}
	}
	if p.Open != nil {
		return nil, SetQuantity(p.Open, p.OpenQuantity, now)
	}
	if !p.OpenQuantity.IsPositive() {
		return nil, nil
	}
	in.Quantity = p.OpenQuantity
	in.ExpiryDate = nil
	return NewBatch(in, now), nil
}
