package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de un lote.
type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusDepleted BatchStatus = "depleted"
)

// Batch representa un lote de stock de (tenant, escuela, producto).
// Sin fecha de vencimiento es un lote "abierto", consumido después de los lotes fechados.
// Nunca se elimina; al llegar a cero pasa a depleted.
type Batch struct {
	ID              string
	TenantID        string
	SchoolID        string
	ProductID       string
	LotLabel        string
	InitialQuantity decimal.Decimal
	Quantity        decimal.Decimal
	ExpiryDate      *time.Time
	ManufactureDate *time.Time
	Status          BatchStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOpen indica si el lote no tiene vencimiento.
func (b *Batch) IsOpen() bool {
	return b.ExpiryDate == nil
}

// IsActive indica si el lote participa del stock.
func (b *Batch) IsActive() bool {
	return b.Status == BatchStatusActive
}

// Clone devuelve una copia profunda (las fechas son punteros).
func (b *Batch) Clone() *Batch {
	c := *b
	if b.ExpiryDate != nil {
		d := *b.ExpiryDate
		c.ExpiryDate = &d
	}
	if b.ManufactureDate != nil {
		d := *b.ManufactureDate
		c.ManufactureDate = &d
	}
	return &c
}

// DateOnly normaliza una fecha al día calendario en UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
