package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUnit unidad de medida cuando el producto no define una.
const DefaultUnit = "un"

// ProductAttributes campos opcionales del producto (marca, peso, unidad).
// Se resuelven una sola vez en el borde (repositorio) con WithDefaults.
type ProductAttributes struct {
	Unit      string
	Brand     string
	NetWeight decimal.NullDecimal
}

// WithDefaults aplica los valores por defecto a los campos ausentes.
func (a ProductAttributes) WithDefaults() ProductAttributes {
	a.Unit = strings.ToLower(strings.TrimSpace(a.Unit))
	if a.Unit == "" {
		a.Unit = DefaultUnit
	}
	a.Brand = strings.TrimSpace(a.Brand)
	return a
}

// Product representa un producto del inventario escolar; pertenece a exactamente un tenant.
type Product struct {
	ID         string
	TenantID   string
	Name       string
	Category   string
	Active     bool
	Attributes ProductAttributes
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
