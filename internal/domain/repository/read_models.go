package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchoolStockRow stock actual de un producto en una escuela.
type SchoolStockRow struct {
	ProductID   string          `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Category    string          `db:"category" json:"category"`
	Unit        string          `db:"unit" json:"unit"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductStockRow una celda de la matriz producto x escuelas.
type ProductStockRow struct {
	SchoolID   string          `db:"school_id" json:"school_id"`
	SchoolName string          `db:"school_name" json:"school_name"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// StockSummaryRow totales del tenant por producto.
type StockSummaryRow struct {
	ProductID        string          `db:"product_id" json:"product_id"`
	ProductName      string          `db:"product_name" json:"product_name"`
	Unit             string          `db:"unit" json:"unit"`
	TotalQuantity    decimal.Decimal `db:"total_quantity" json:"total_quantity"`
	SchoolsWithStock int             `db:"schools_with_stock" json:"schools_with_stock"`
	ActiveBatches    int             `db:"active_batches" json:"active_batches"`
	ExpiringBatches  int             `db:"expiring_batches" json:"expiring_batches"`
}
