package inventory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

// ErrConsumeExceeds el consumo supera la cantidad del lote.
var ErrConsumeExceeds = errors.New("consumo mayor que la cantidad del lote")

// NewBatchInput datos para crear un lote.
type NewBatchInput struct {
	TenantID        string
	SchoolID        string
	ProductID       string
	LotLabel        string
	Quantity        decimal.Decimal
	ExpiryDate      *time.Time
	ManufactureDate *time.Time
}

// NewBatch crea un lote activo. Sin etiqueta se genera una a partir de la fecha.
func NewBatch(in NewBatchInput, now time.Time) *entity.Batch {
	qty := Normalize(in.Quantity)
	label := in.LotLabel
	if label == "" {
		label = GenerateLotLabel(in.ExpiryDate, now)
	}
	b := &entity.Batch{
		ID:              uuid.New().String(),
		TenantID:        in.TenantID,
		SchoolID:        in.SchoolID,
		ProductID:       in.ProductID,
		LotLabel:        label,
		InitialQuantity: qty,
		Quantity:        qty,
		Status:          entity.BatchStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.ExpiryDate != nil {
		d := entity.DateOnly(*in.ExpiryDate)
		b.ExpiryDate = &d
	}
	if in.ManufactureDate != nil {
		d := entity.DateOnly(*in.ManufactureDate)
		b.ManufactureDate = &d
	}
	return b
}

// GenerateLotLabel etiqueta por defecto: V-AAAAMMDD para lotes fechados, A-AAAAMMDD-hhmmss para abiertos.
func GenerateLotLabel(expiry *time.Time, now time.Time) string {
	if expiry != nil {
		return fmt.Sprintf("V-%s", expiry.Format("20060102"))
	}
	return fmt.Sprintf("A-%s", now.UTC().Format("20060102-150405"))
}

// Consume descuenta qty del lote; falla si qty supera la cantidad actual. Al llegar a cero queda agotado.
func Consume(b *entity.Batch, qty decimal.Decimal, now time.Time) error {
	qty = Normalize(qty)
	if qty.IsNegative() {
		return fmt.Errorf("consumo negativo: %s", qty)
	}
	if qty.GreaterThan(b.Quantity) {
		return ErrConsumeExceeds
	}
	b.Quantity = Normalize(b.Quantity.Sub(qty))
	b.UpdatedAt = now
	if b.Quantity.IsZero() {
		b.Status = entity.BatchStatusDepleted
	}
	return nil
}

// SetQuantity ajuste administrativo: cero agota el lote. No reactiva un lote agotado.
func SetQuantity(b *entity.Batch, qty decimal.Decimal, now time.Time) error {
	qty = Normalize(qty)
	if qty.IsNegative() {
		return fmt.Errorf("cantidad negativa: %s", qty)
	}
	if !b.IsActive() && qty.IsPositive() {
		return fmt.Errorf("lote %s agotado: no se reactiva por ajuste", b.ID)
	}
	b.Quantity = qty
	b.UpdatedAt = now
	if qty.IsZero() {
		b.Status = entity.BatchStatusDepleted
	}
	return nil
}

// AddExplicit suma qty a un lote referenciado explícitamente (corrección). Puede reactivarlo.
func AddExplicit(b *entity.Batch, qty decimal.Decimal, now time.Time) {
	b.Quantity = Normalize(b.Quantity.Add(qty))
	b.UpdatedAt = now
	if b.Quantity.IsPositive() {
		b.Status = entity.BatchStatusActive
	}
}

// RecomputeAggregate cantidad agregada = suma de los lotes activos.
// Es la única fuente del valor del agregado después de mutar lotes.
func RecomputeAggregate(batches []*entity.Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		if b.IsActive() {
			total = total.Add(b.Quantity)
		}
	}
	return Normalize(total)
}

// SortFIFO devuelve los lotes ordenados por vencimiento ascendente, abiertos al final.
// Empates: creación más antigua primero, luego id. No modifica el slice recibido.
func SortFIFO(batches []*entity.Batch) []*entity.Batch {
	out := make([]*entity.Batch, len(batches))
	copy(out, batches)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// OpenLots lotes activos sin vencimiento, el más antiguo primero.
func OpenLots(batches []*entity.Batch) []*entity.Batch {
	var open []*entity.Batch
	for _, b := range SortFIFO(batches) {
		if b.IsActive() && b.IsOpen() {
			open = append(open, b)
		}
	}
	return open
}

// DatedTotal suma de los lotes activos con vencimiento.
func DatedTotal(batches []*entity.Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		if b.IsActive() && !b.IsOpen() {
			total = total.Add(b.Quantity)
		}
	}
	return Normalize(total)
}

// Remainder cantidad del agregado que no está respaldada por lotes activos (deriva heredada).
// Nunca negativa: si los lotes suman más, la recomputación corrige el agregado.
func Remainder(aggregate decimal.Decimal, batches []*entity.Batch) decimal.Decimal {
	diff := Normalize(aggregate).Sub(RecomputeAggregate(batches))
	if diff.IsPositive() {
		return diff
	}
	return decimal.Zero
}
