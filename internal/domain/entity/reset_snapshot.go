package entity

import "time"

// ResetSnapshot contenido del respaldo tomado antes de poner a cero una escuela.
type ResetSnapshot struct {
	TenantID  string        `json:"tenant_id"`
	SchoolID  string        `json:"school_id"`
	TakenAt   time.Time     `json:"taken_at"`
	Reason    string        `json:"reason"`
	Stock     []StockRecord `json:"stock"`
	Batches   []Batch       `json:"batches"`
	Movements []Movement    `json:"movements"`
}
