package inventory

import (
	"fmt"
	"reflect"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/inventory"
)

// assign copia v en dst (puntero) cuando no hay caché de por medio.
// Acepta v del mismo tipo que *dst o un puntero a ese tipo.
func assign(dst, v any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("assign: destino debe ser un puntero no nulo")
	}
	if v == nil {
		return nil
	}
	sv := reflect.ValueOf(v)
	target := dv.Elem()
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case sv.Kind() == reflect.Pointer && sv.Elem().Type().AssignableTo(target.Type()):
		target.Set(sv.Elem())
	default:
		return fmt.Errorf("assign: %s no asignable a %s", sv.Type(), target.Type())
	}
	return nil
}

// sortForDisplay lotes activos en orden de consumo y luego los agotados.
func sortForDisplay(batches []*entity.Batch) []*entity.Batch {
	sorted := inventory.SortFIFO(batches)
	out := make([]*entity.Batch, 0, len(sorted))
	for _, b := range sorted {
		if b.IsActive() {
			out = append(out, b)
		}
	}
	for _, b := range sorted {
		if !b.IsActive() {
			out = append(out, b)
		}
	}
	return out
}
