package entity

import "time"

// Estados del tenant (tabla de estado de tenants).
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusInactive  TenantStatus = "inactive"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant representa una organización cliente; es la frontera de aislamiento de datos.
type Tenant struct {
	ID        string
	Name      string
	Status    TenantStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive indica si el tenant puede operar.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}
