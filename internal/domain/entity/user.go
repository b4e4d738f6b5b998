package entity

import "time"

// Roles válidos para User.
const (
	RoleAdmin     = "admin"
	RoleBodeguero = "bodeguero"
)

// User representa un usuario del sistema. TenantID es su tenant de origen;
// puede tener acceso a otros tenants vía membresía (user_tenants).
type User struct {
	ID        string
	TenantID  string
	Email     string
	Name      string
	Role      string
	Status    string // active, inactive
	CreatedAt time.Time
	UpdatedAt time.Time
}
