package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de movimiento de stock.
type MovementKind string

const (
	MovementEntrada MovementKind = "entrada" // entrada
	MovementSaida   MovementKind = "saida"   // salida
	MovementAjuste  MovementKind = "ajuste"  // ajuste (total objetivo de stock sin vencimiento)
	MovementReset   MovementKind = "reset"   // puesta a cero de la escuela (con respaldo)
)

// Valid indica si el tipo es conocido.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementEntrada, MovementSaida, MovementAjuste, MovementReset:
		return true
	}
	return false
}

// Movement es una entrada inmutable del historial de movimientos.
// Delta = QuantityAfter - QuantityBefore; Requested guarda la cantidad informada por el usuario.
type Movement struct {
	ID             string
	TenantID       string
	SchoolID       string
	ProductID      string
	Kind           MovementKind
	QuantityBefore decimal.Decimal
	Requested      decimal.Decimal
	Delta          decimal.Decimal
	QuantityAfter  decimal.Decimal
	Reason         string
	DocumentRef    string
	UserID         *string // nil si el usuario no pudo validarse contra el tenant
	BatchID        *string
	IdempotencyKey *string
	CreatedAt      time.Time
}

// MovementFilter filtros de consulta del historial.
type MovementFilter struct {
	SchoolID  string
	ProductID string
	Kind      MovementKind
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
