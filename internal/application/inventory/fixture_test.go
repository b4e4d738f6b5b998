package inventory_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/internal/application/ownership"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/backup"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/cache"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/memstore"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/metrics"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

const (
	tenantA  = "7d0c1a52-5b7e-4d8e-9a51-1f0b6a8c0a01"
	tenantB  = "7d0c1a52-5b7e-4d8e-9a51-1f0b6a8c0b02"
	schoolA1 = "5c3f2b10-1111-4a4a-8b8b-000000000a11"
	schoolA2 = "5c3f2b10-1111-4a4a-8b8b-000000000a12"
	schoolB1 = "5c3f2b10-1111-4a4a-8b8b-000000000b11"
	arroz    = "9e8d7c6b-2222-4b4b-9c9c-0000000000a1"
	leche    = "9e8d7c6b-2222-4b4b-9c9c-0000000000a2"
	aceiteB  = "9e8d7c6b-2222-4b4b-9c9c-0000000000b1"
	adminA   = "3a2b1c0d-3333-4c4c-8d8d-0000000000a1"
	adminB   = "3a2b1c0d-3333-4c4c-8d8d-0000000000b1"
)

// fixture ledger completo sobre el almacén en memoria: dos tenants, escuelas y productos en cada uno.
type fixture struct {
	store    *memstore.Store
	cache    *cache.TenantCache
	backend  *cache.MemoryBackend
	metrics  *metrics.Metrics
	backups  *backup.FileStore
	movement *inventory.RegisterMovementUseCase
	reset    *inventory.ResetSchoolUseCase
	query    *inventory.QueryUseCase
}

var clockBase = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// steppingClock avanza un segundo por llamada: el historial queda con instantes distintos.
func steppingClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return clockBase.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	seed(store)

	m := metrics.New(prometheus.NewRegistry())
	backend := cache.NewMemoryBackend()
	tc := cache.New(backend, cache.Options{Prefix: "test", TTL: time.Minute, Observer: m})
	files, err := backup.NewFileStore(t.TempDir())
	require.NoError(t, err)

	validator := ownership.NewValidator(store)
	clock := steppingClock()
	return &fixture{
		store:    store,
		cache:    tc,
		backend:  backend,
		metrics:  m,
		backups:  files,
		movement: inventory.NewRegisterMovementUseCase(store, validator, tc, m, logger.Nop()).WithClock(clock),
		reset:    inventory.NewResetSchoolUseCase(store, validator, files, tc, m, logger.Nop(), "").WithClock(clock),
		query:    inventory.NewQueryUseCase(store, validator, tc, logger.Nop(), 30*24*time.Hour).WithClock(func() time.Time { return clockBase }),
	}
}

func seed(store *memstore.Store) {
	store.AddTenant(entity.Tenant{ID: tenantA, Name: "Secretaría Norte", Status: entity.TenantStatusActive})
	store.AddTenant(entity.Tenant{ID: tenantB, Name: "Secretaría Sur", Status: entity.TenantStatusActive})
	store.AddSchool(entity.School{ID: schoolA1, TenantID: tenantA, Name: "Escuela Central", Active: true})
	store.AddSchool(entity.School{ID: schoolA2, TenantID: tenantA, Name: "Escuela Rural", Active: true})
	store.AddSchool(entity.School{ID: schoolB1, TenantID: tenantB, Name: "Colegio del Sur", Active: true})
	store.AddProduct(entity.Product{ID: arroz, TenantID: tenantA, Name: "Arroz", Category: "granos", Active: true, Attributes: entity.ProductAttributes{Unit: "KG"}})
	store.AddProduct(entity.Product{ID: leche, TenantID: tenantA, Name: "Leche en polvo", Category: "lácteos", Active: true})
	store.AddProduct(entity.Product{ID: aceiteB, TenantID: tenantB, Name: "Aceite", Category: "abarrotes", Active: true})
	store.AddUser(entity.User{ID: adminA, TenantID: tenantA, Email: "admin@norte.edu", Role: entity.RoleAdmin, Status: "active"})
	store.AddUser(entity.User{ID: adminB, TenantID: tenantB, Email: "admin@sur.edu", Role: entity.RoleAdmin, Status: "active"})
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func entrada(school, product, q string, expiry *time.Time) inventory.MovementInput {
	return inventory.MovementInput{
		TenantID:   tenantA,
		SchoolID:   school,
		ProductID:  product,
		Kind:       entity.MovementEntrada,
		Quantity:   qty(q),
		ExpiryDate: expiry,
		UserID:     adminA,
	}
}

func saida(school, product, q string) inventory.MovementInput {
	return inventory.MovementInput{
		TenantID:  tenantA,
		SchoolID:  school,
		ProductID: product,
		Kind:      entity.MovementSaida,
		Quantity:  qty(q),
		UserID:    adminA,
	}
}

func ajuste(school, product, q string) inventory.MovementInput {
	return inventory.MovementInput{
		TenantID:  tenantA,
		SchoolID:  school,
		ProductID: product,
		Kind:      entity.MovementAjuste,
		Quantity:  qty(q),
		Reason:    "conteo físico",
		UserID:    adminA,
	}
}

func (f *fixture) mustMove(t *testing.T, in inventory.MovementInput) *inventory.MovementResult {
	t.Helper()
	res, err := f.movement.RegisterMovement(t.Context(), in)
	require.NoError(t, err)
	require.Equal(t, inventory.StateCommitted, res.State)
	return res
}

// requireReconciled el agregado coincide con la suma de lotes activos y no es negativo.
func (f *fixture) requireReconciled(t *testing.T, school, product string) decimal.Decimal {
	t.Helper()
	rec, ok := f.store.Stock(tenantA, school, product)
	if !ok {
		rec.Quantity = decimal.Zero
	}
	sum := decimal.Zero
	for _, b := range f.store.Batches(tenantA, school, product) {
		require.False(t, b.Quantity.IsNegative(), "lote %s negativo", b.ID)
		if b.IsActive() {
			sum = sum.Add(b.Quantity)
		} else {
			require.True(t, b.Quantity.IsZero(), "lote agotado %s con cantidad", b.ID)
		}
	}
	require.False(t, rec.Quantity.IsNegative())
	require.True(t, rec.Quantity.Equal(sum), "agregado %s != suma de lotes %s", rec.Quantity, sum)
	return rec.Quantity
}
