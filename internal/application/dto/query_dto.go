package dto

import (
	"github.com/shopspring/decimal"
)

// HistoryQuery filtros de GET /api/inventory/movements.
type HistoryQuery struct {
	SchoolID  string `query:"school_id"`
	ProductID string `query:"product_id"`
	Kind      string `query:"kind"`
	From      string `query:"from"` // RFC3339 o YYYY-MM-DD
	To        string `query:"to"`
	Limit     int    `query:"limit"`
	Offset    int    `query:"offset"`
}

// HistoryResponse página del historial.
type HistoryResponse struct {
	Items []MovementResponse `json:"items"`
	Page  PageResponse       `json:"page"`
}

// ProductInfo datos del producto en el listado de lotes.
type ProductInfo struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Category  string              `json:"category"`
	Unit      string              `json:"unit"`
	Brand     string              `json:"brand,omitempty"`
	NetWeight decimal.NullDecimal `json:"net_weight"`
}

// BatchListResponse lotes de un producto en orden de consumo.
type BatchListResponse struct {
	Product ProductInfo     `json:"product"`
	Batches []BatchResponse `json:"batches"`
}
