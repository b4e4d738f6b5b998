package inventory

import "github.com/shopspring/decimal"

// Cantidades almacenadas como NUMERIC(Precision, Scale).
// Toda cantidad se normaliza antes de compararse; las comparaciones son estrictas, sin epsilon.
const (
	Precision = 14
	Scale     = 3
)

// MaxQuantity mayor cantidad representable en las columnas: 99999999999.999.
var MaxQuantity = decimal.New(1, Precision-Scale).Sub(decimal.New(1, -Scale))

// Normalize redondea la cantidad a Scale decimales.
func Normalize(q decimal.Decimal) decimal.Decimal {
	return q.Round(Scale)
}

// HasExcessPrecision indica si la cantidad trae más decimales de los soportados.
func HasExcessPrecision(q decimal.Decimal) bool {
	return !q.Equal(Normalize(q))
}

// ExceedsMax indica si la cantidad (en valor absoluto) no cabe en las columnas.
func ExceedsMax(q decimal.Decimal) bool {
	return q.Abs().GreaterThan(MaxQuantity)
}
