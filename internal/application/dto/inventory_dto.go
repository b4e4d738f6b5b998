package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

// DateLayout formato de fechas de lote en la API.
const DateLayout = "2006-01-02"

// RegisterMovementRequest body para POST /api/inventory/movements.
type RegisterMovementRequest struct {
	SchoolID        string          `json:"school_id"`
	ProductID       string          `json:"product_id"`
	Kind            string          `json:"kind"` // entrada | saida | ajuste
	Quantity        decimal.Decimal `json:"quantity"`
	Reason          string          `json:"reason,omitempty"`
	DocumentRef     string          `json:"document_ref,omitempty"`
	ExpiryDate      string          `json:"expiry_date,omitempty"`      // YYYY-MM-DD, solo entrada
	ManufactureDate string          `json:"manufacture_date,omitempty"` // YYYY-MM-DD, solo entrada
	LotLabel        string          `json:"lot_label,omitempty"`
	BatchID         string          `json:"batch_id,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
}

// ResetSchoolRequest body para POST /api/inventory/schools/:id/reset.
type ResetSchoolRequest struct {
	Reason string `json:"reason"`
}

// StockResponse registro agregado.
type StockResponse struct {
	SchoolID  string          `json:"school_id"`
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BatchResponse lote.
type BatchResponse struct {
	ID              string          `json:"id"`
	SchoolID        string          `json:"school_id"`
	ProductID       string          `json:"product_id"`
	LotLabel        string          `json:"lot_label"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	Quantity        decimal.Decimal `json:"quantity"`
	ExpiryDate      string          `json:"expiry_date,omitempty"`
	ManufactureDate string          `json:"manufacture_date,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// MovementResponse entrada del historial.
type MovementResponse struct {
	ID             string          `json:"id"`
	SchoolID       string          `json:"school_id"`
	ProductID      string          `json:"product_id"`
	Kind           string          `json:"kind"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	Requested      decimal.Decimal `json:"requested"`
	Delta          decimal.Decimal `json:"delta"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	Reason         string          `json:"reason,omitempty"`
	DocumentRef    string          `json:"document_ref,omitempty"`
	UserID         *string         `json:"user_id"`
	BatchID        *string         `json:"batch_id,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RegisterMovementResponse resultado de un movimiento confirmado.
type RegisterMovementResponse struct {
	Success  bool             `json:"success"`
	State    string           `json:"state"`
	Stock    StockResponse    `json:"stock"`
	Movement MovementResponse `json:"movement"`
	Batches  []BatchResponse  `json:"batches"`
}

// ResetSchoolResponse resultado del reset.
type ResetSchoolResponse struct {
	Success   bool               `json:"success"`
	State     string             `json:"state"`
	BackupRef string             `json:"backup_ref"`
	Entries   []MovementResponse `json:"entries"`
}

// ParseDate fecha opcional YYYY-MM-DD; vacío es nil.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// FromStock mapea el agregado.
func FromStock(s *entity.StockRecord) StockResponse {
	if s == nil {
		return StockResponse{}
	}
	return StockResponse{SchoolID: s.SchoolID, ProductID: s.ProductID, Quantity: s.Quantity, UpdatedAt: s.UpdatedAt}
}

// FromBatch mapea un lote.
func FromBatch(b *entity.Batch) BatchResponse {
	return BatchResponse{
		ID:              b.ID,
		SchoolID:        b.SchoolID,
		ProductID:       b.ProductID,
		LotLabel:        b.LotLabel,
		InitialQuantity: b.InitialQuantity,
		Quantity:        b.Quantity,
		ExpiryDate:      formatDate(b.ExpiryDate),
		ManufactureDate: formatDate(b.ManufactureDate),
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt,
	}
}

// FromBatches mapea una lista de lotes (nunca nil).
func FromBatches(bs []*entity.Batch) []BatchResponse {
	out := make([]BatchResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, FromBatch(b))
	}
	return out
}

// FromMovement mapea una entrada del historial.
func FromMovement(m *entity.Movement) MovementResponse {
	if m == nil {
		return MovementResponse{}
	}
	return MovementResponse{
		ID:             m.ID,
		SchoolID:       m.SchoolID,
		ProductID:      m.ProductID,
		Kind:           string(m.Kind),
		QuantityBefore: m.QuantityBefore,
		Requested:      m.Requested,
		Delta:          m.Delta,
		QuantityAfter:  m.QuantityAfter,
		Reason:         m.Reason,
		DocumentRef:    m.DocumentRef,
		UserID:         m.UserID,
		BatchID:        m.BatchID,
		IdempotencyKey: m.IdempotencyKey,
		CreatedAt:      m.CreatedAt,
	}
}

// FromMovements mapea una lista de entradas (nunca nil).
func FromMovements(ms []*entity.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMovement(m))
	}
	return out
}
