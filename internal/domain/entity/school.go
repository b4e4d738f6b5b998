package entity

import "time"

// School representa una escuela; pertenece a exactamente un tenant.
type School struct {
	ID        string
	TenantID  string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
