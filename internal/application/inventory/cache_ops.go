package inventory

import "strings"

// Nombres de operación de lectura en caché. El ámbito (escuela, producto) va en el nombre
// para poder invalidar por patrón; el resto de parámetros entra en la huella.
const (
	opStockBySchool = "stock_by_school"
	opStockMatrix   = "stock_matrix"
	opBatches       = "batches"
	opHistory       = "history"
	opSummary       = "summary"

	allSchools = "all"
)

func stockBySchoolOp(schoolID string) string { return opStockBySchool + ":" + schoolID }
func stockMatrixOp(productID string) string  { return opStockMatrix + ":" + productID }

func batchesOp(schoolID, productID string) string {
	if schoolID == "" {
		schoolID = allSchools
	}
	return opBatches + ":" + schoolID + ":" + productID
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// quoteGlob escapa los metacaracteres de patrón en un id.
func quoteGlob(s string) string { return globReplacer.Replace(s) }

// affectedOps patrones de lectura afectados por un cambio en (escuela, producto).
func affectedOps(schoolID, productID string) []string {
	s, p := quoteGlob(schoolID), quoteGlob(productID)
	return []string{
		opStockBySchool + ":" + s,
		opStockMatrix + ":" + p,
		opBatches + ":" + s + ":" + p,
		opBatches + ":" + allSchools + ":" + p,
		opHistory + "*",
		opSummary + "*",
	}
}
