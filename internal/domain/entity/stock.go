package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockRecord es el registro agregado de stock por (tenant, escuela, producto).
// Es la cifra autoritativa y siempre se reconcilia con la suma de los lotes activos.
type StockRecord struct {
	TenantID  string
	SchoolID  string
	ProductID string
	Quantity  decimal.Decimal
	UpdatedAt time.Time
}
