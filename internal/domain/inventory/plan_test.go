package inventory_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/inventory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

var testNow = time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func batch(id, q string, expiry *time.Time, created time.Time) *entity.Batch {
	return &entity.Batch{
		ID:              id,
		Quantity:        qty(q),
		InitialQuantity: qty(q),
		ExpiryDate:      expiry,
		Status:          entity.BatchStatusActive,
		CreatedAt:       created,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenarios de referencia
// ──────────────────────────────────────────────────────────────────────────────

// Lote A 5 (vence 2025-01-01) y lote B 10 (vence 2025-02-01); salida de 8.
func TestPlanConsumption_EscenarioLotesAyB(t *testing.T) {
	a := batch("A", "5", day("2025-01-01"), testNow)
	b := batch("B", "10", day("2025-02-01"), testNow)
	batches := []*entity.Batch{b, a}

	plan, err := inventory.PlanConsumption(batches, qty("8"))
	require.NoError(t, err)
	require.NoError(t, inventory.ApplyConsumption(plan, testNow))

	assert.True(t, a.Quantity.IsZero())
	assert.Equal(t, entity.BatchStatusDepleted, a.Status)
	assert.True(t, b.Quantity.Equal(qty("7")))
	assert.Equal(t, entity.BatchStatusActive, b.Status)
	assert.True(t, inventory.RecomputeAggregate(batches).Equal(qty("7")))
}

// Ajuste a 20 con 12 en lotes fechados: el lote abierto queda en 8.
func TestPlanAdjustment_EscenarioObjetivo20(t *testing.T) {
	batches := []*entity.Batch{
		batch("D1", "7", day("2025-03-01"), testNow),
		batch("D2", "5", day("2025-04-01"), testNow),
	}

	plan, err := inventory.PlanAdjustment(batches, qty("20"))
	require.NoError(t, err)
	assert.True(t, plan.Dated.Equal(qty("12")))
	assert.Nil(t, plan.Open, "no hay lote abierto: debe crearse")

	created, err := inventory.ApplyAdjustment(plan, inventory.NewBatchInput{TenantID: "t", SchoolID: "s", ProductID: "p"}, testNow)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, created.IsOpen())
	assert.True(t, created.Quantity.Equal(qty("8")))

	batches = append(batches, created)
	assert.True(t, inventory.RecomputeAggregate(batches).Equal(qty("20")))
}

func TestPlanAdjustment_ActualizaLoteAbiertoExistente(t *testing.T) {
	open := batch("O", "3", nil, testNow)
	dated := batch("D", "12", day("2025-03-01"), testNow)

	plan, err := inventory.PlanAdjustment([]*entity.Batch{open, dated}, qty("20"))
	require.NoError(t, err)
	created, err := inventory.ApplyAdjustment(plan, inventory.NewBatchInput{}, testNow)
	require.NoError(t, err)

	assert.Nil(t, created)
	assert.True(t, open.Quantity.Equal(qty("8")))
	assert.True(t, dated.Quantity.Equal(qty("12")), "los lotes fechados no se tocan")
}

func TestPlanAdjustment_ConsolidaLotesAbiertos(t *testing.T) {
	older := batch("O1", "3", nil, testNow.Add(-time.Hour))
	newer := batch("O2", "4", nil, testNow)

	plan, err := inventory.PlanAdjustment([]*entity.Batch{newer, older}, qty("5"))
	require.NoError(t, err)
	_, err = inventory.ApplyAdjustment(plan, inventory.NewBatchInput{}, testNow)
	require.NoError(t, err)

	assert.True(t, older.Quantity.Equal(qty("5")))
	assert.True(t, newer.Quantity.IsZero())
	assert.Equal(t, entity.BatchStatusDepleted, newer.Status)
}

func TestPlanAdjustment_ObjetivoMenorQueFechados(t *testing.T) {
	_, err := inventory.PlanAdjustment([]*entity.Batch{batch("D", "12", day("2025-03-01"), testNow)}, qty("11.999"))
	assert.ErrorIs(t, err, inventory.ErrTargetBelowDated)
}

func TestPlanAdjustment_ObjetivoIgualAFechadosNoCreaLote(t *testing.T) {
	plan, err := inventory.PlanAdjustment([]*entity.Batch{batch("D", "12", day("2025-03-01"), testNow)}, qty("12"))
	require.NoError(t, err)
	created, err := inventory.ApplyAdjustment(plan, inventory.NewBatchInput{}, testNow)
	require.NoError(t, err)
	assert.Nil(t, created)
}

// ──────────────────────────────────────────────────────────────────────────────
// FIFO por vencimiento
// ──────────────────────────────────────────────────────────────────────────────

func TestSortFIFO_AbiertosAlFinal(t *testing.T) {
	e3 := batch("E3", "1", day("2025-03-01"), testNow)
	open := batch("OPEN", "1", nil, testNow.Add(-48*time.Hour))
	e1 := batch("E1", "1", day("2025-01-01"), testNow)
	e2 := batch("E2", "1", day("2025-02-01"), testNow)

	sorted := inventory.SortFIFO([]*entity.Batch{e3, open, e1, e2})

	ids := make([]string, 0, len(sorted))
	for _, b := range sorted {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"E1", "E2", "E3", "OPEN"}, ids)
}

func TestPlanConsumption_AbiertoSoloTrasAgotarFechados(t *testing.T) {
	e1 := batch("E1", "2", day("2025-01-01"), testNow)
	e2 := batch("E2", "3", day("2025-02-01"), testNow)
	e3 := batch("E3", "4", day("2025-03-01"), testNow)
	open := batch("OPEN", "10", nil, testNow)
	batches := []*entity.Batch{open, e3, e2, e1}

	plan, err := inventory.PlanConsumption(batches, qty("4"))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "E1", plan[0].Batch.ID)
	assert.True(t, plan[0].Take.Equal(qty("2")))
	assert.Equal(t, "E2", plan[1].Batch.ID)

	plan, err = inventory.PlanConsumption(batches, qty("10"))
	require.NoError(t, err)
	assert.Equal(t, "OPEN", plan[len(plan)-1].Batch.ID)
	assert.True(t, plan[len(plan)-1].Take.Equal(qty("1")))
}

func TestPlanConsumption_InsuficienteSinConsumoParcial(t *testing.T) {
	a := batch("A", "0.004", day("2025-01-01"), testNow)
	b := batch("B", "1", nil, testNow)

	_, err := inventory.PlanConsumption([]*entity.Batch{a, b}, qty("1.005"))
	assert.ErrorIs(t, err, inventory.ErrShortfall)
	assert.True(t, a.Quantity.Equal(qty("0.004")))
	assert.True(t, b.Quantity.Equal(qty("1")))
}

func TestPlanConsumption_IgnoraLotesAgotados(t *testing.T) {
	dep := batch("DEP", "0", day("2025-01-01"), testNow)
	dep.Status = entity.BatchStatusDepleted
	live := batch("LIVE", "2", day("2025-02-01"), testNow)

	plan, err := inventory.PlanConsumption([]*entity.Batch{dep, live}, qty("1"))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "LIVE", plan[0].Batch.ID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Operaciones de lote
// ──────────────────────────────────────────────────────────────────────────────

func TestConsume_FallaSiSuperaCantidad(t *testing.T) {
	b := batch("A", "1.5", nil, testNow)
	assert.ErrorIs(t, inventory.Consume(b, qty("1.501"), testNow), inventory.ErrConsumeExceeds)
	assert.True(t, b.Quantity.Equal(qty("1.5")))
}

func TestSetQuantity_NoReactivaAgotado(t *testing.T) {
	b := batch("A", "1", nil, testNow)
	require.NoError(t, inventory.SetQuantity(b, decimal.Zero, testNow))
	assert.Equal(t, entity.BatchStatusDepleted, b.Status)
	assert.Error(t, inventory.SetQuantity(b, qty("2"), testNow))
}

func TestAddExplicit_ReactivaLote(t *testing.T) {
	b := batch("A", "0", day("2025-01-01"), testNow)
	b.Status = entity.BatchStatusDepleted
	inventory.AddExplicit(b, qty("3"), testNow)
	assert.Equal(t, entity.BatchStatusActive, b.Status)
	assert.True(t, b.Quantity.Equal(qty("3")))
}

func TestNewBatch_EtiquetaYFechas(t *testing.T) {
	expiry := time.Date(2025, 5, 1, 15, 30, 0, 0, time.UTC)
	b := inventory.NewBatch(inventory.NewBatchInput{Quantity: qty("2.0004"), ExpiryDate: &expiry}, testNow)
	assert.Equal(t, "V-20250501", b.LotLabel)
	assert.Equal(t, 0, b.ExpiryDate.Hour())
	assert.True(t, b.Quantity.Equal(qty("2")))
	assert.NotEmpty(t, b.ID)
}

func TestRemainder_SoloPositivo(t *testing.T) {
	batches := []*entity.Batch{batch("A", "3", nil, testNow)}
	assert.True(t, inventory.Remainder(qty("5"), batches).Equal(qty("2")))
	assert.True(t, inventory.Remainder(qty("1"), batches).IsZero())
}

func TestHasExcessPrecision(t *testing.T) {
	assert.False(t, inventory.HasExcessPrecision(qty("1.125")))
	assert.True(t, inventory.HasExcessPrecision(qty("1.1251")))
}

func TestExceedsMax_LimiteDeLaColumna(t *testing.T) {
	assert.Equal(t, "99999999999.999", inventory.MaxQuantity.String())
	assert.False(t, inventory.ExceedsMax(qty("99999999999.999")))
	assert.True(t, inventory.ExceedsMax(qty("100000000000")))
	assert.True(t, inventory.ExceedsMax(qty("-100000000000")))
}

// ──────────────────────────────────────────────────────────────────────────────
// Propiedad: conciliación y no negatividad con secuencias aleatorias
// ──────────────────────────────────────────────────────────────────────────────

func TestPropiedad_ConciliacionYNoNegatividad(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var batches []*entity.Batch
		aggregate := decimal.Zero

		for step := 0; step < 25; step++ {
			// cantidades con 3 decimales para ejercitar el redondeo
			q := decimal.New(int64(rng.Intn(20000)), -3)
			switch rng.Intn(3) {
			case 0:
				if q.IsZero() {
					continue
				}
				var expiry *time.Time
				if rng.Intn(2) == 0 {
					expiry = day("2025-01-01")
					d := expiry.AddDate(0, 0, rng.Intn(90))
					expiry = &d
				}
				batches = append(batches, inventory.NewBatch(inventory.NewBatchInput{Quantity: q, ExpiryDate: expiry}, testNow))
			case 1:
				before := inventory.RecomputeAggregate(batches)
				plan, err := inventory.PlanConsumption(batches, q)
				if q.GreaterThan(before) {
					require.ErrorIs(t, err, inventory.ErrShortfall)
					continue
				}
				require.NoError(t, err)
				require.NoError(t, inventory.ApplyConsumption(plan, testNow))
				require.True(t, inventory.RecomputeAggregate(batches).Equal(before.Sub(q)))
			case 2:
				target := inventory.DatedTotal(batches).Add(q)
				plan, err := inventory.PlanAdjustment(batches, target)
				require.NoError(t, err)
				created, err := inventory.ApplyAdjustment(plan, inventory.NewBatchInput{}, testNow)
				require.NoError(t, err)
				if created != nil {
					batches = append(batches, created)
				}
				require.True(t, inventory.RecomputeAggregate(batches).Equal(target))
			}
			aggregate = inventory.RecomputeAggregate(batches)

			for _, b := range batches {
				require.False(t, b.Quantity.IsNegative(), "lote %s negativo", b.ID)
				if b.Quantity.IsZero() {
					require.NotEqual(t, entity.BatchStatusActive, b.Status)
				}
			}
			require.False(t, aggregate.IsNegative())
		}
	}
}
