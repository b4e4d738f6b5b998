// Package memstore implementa en memoria todos los puertos del ledger con semántica transaccional:
// cada transacción trabaja sobre una copia del estado y la publica solo en el commit.
// Las filas de otros tenants son invisibles dentro de una transacción, igual que con la política de filas.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

// Operaciones en las que se puede inyectar una falla con FailOn.
const (
	OpStockLock       = "stock.lock"
	OpStockUpsert     = "stock.upsert"
	OpBatchCreate     = "batches.create"
	OpBatchUpdate     = "batches.update"
	OpMovementAppend  = "movements.append"
	OpMovementsBySchl = "movements.list_by_school"
	OpOwnership       = "ownership"
)

var _ inventory.TxRunner = (*Store)(nil)

type stockKey struct {
	tenant, school, product string
}

type idemKey struct {
	tenant, key string
}

type storedMovement struct {
	seq int64
	mov entity.Movement
}

type state struct {
	tenants     map[string]entity.Tenant
	schools     map[string]entity.School
	products    map[string]entity.Product
	users       map[string]entity.User
	memberships map[string]map[string]bool
	stock       map[stockKey]entity.StockRecord
	batches     map[string]entity.Batch
	movements   []storedMovement
	idempotency map[idemKey]string
	seq         int64
}

func newState() state {
	return state{
		tenants:     map[string]entity.Tenant{},
		schools:     map[string]entity.School{},
		products:    map[string]entity.Product{},
		users:       map[string]entity.User{},
		memberships: map[string]map[string]bool{},
		stock:       map[stockKey]entity.StockRecord{},
		batches:     map[string]entity.Batch{},
		idempotency: map[idemKey]string{},
	}
}

// clone copia profunda; los catálogos no se mutan dentro de transacciones y se comparten.
func (s state) clone() state {
	c := s
	c.stock = make(map[stockKey]entity.StockRecord, len(s.stock))
	for k, v := range s.stock {
		c.stock[k] = v
	}
	c.batches = make(map[string]entity.Batch, len(s.batches))
	for k, v := range s.batches {
		c.batches[k] = *v.Clone()
	}
	c.movements = make([]storedMovement, len(s.movements))
	copy(c.movements, s.movements)
	c.idempotency = make(map[idemKey]string, len(s.idempotency))
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

// Store almacén en memoria. Las transacciones se serializan con un único lock,
// lo que equivale a bloquear cualquier registro agregado que toquen.
type Store struct {
	mu     sync.RWMutex
	state  state
	faults sync.Map // op -> error
}

// New crea un almacén vacío.
func New() *Store {
	return &Store{state: newState()}
}

// FailOn hace que la operación op devuelva err hasta que se llame ClearFaults.
func (s *Store) FailOn(op string, err error) {
	s.faults.Store(op, err)
}

// ClearFaults elimina las fallas inyectadas.
func (s *Store) ClearFaults() {
	s.faults.Range(func(k, _ any) bool {
		s.faults.Delete(k)
		return true
	})
}

func (s *Store) fault(op string) error {
	if v, ok := s.faults.Load(op); ok {
		return fmt.Errorf("memstore %s: %w", op, v.(error))
	}
	return nil
}

// Run ejecuta fn sobre una copia del estado y la publica si fn no falla.
func (s *Store) Run(ctx context.Context, tenantID string, fn func(ctx context.Context, repos inventory.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &txState{store: s, tenant: tenantID, st: s.state.clone()}
	if err := fn(ctx, tx.repos()); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// Read ejecuta fn sobre el estado actual; cualquier escritura falla.
func (s *Store) Read(ctx context.Context, tenantID string, fn func(ctx context.Context, repos inventory.TxRepos) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx := &txState{store: s, tenant: tenantID, st: s.state, readOnly: true}
	return fn(ctx, tx.repos())
}

// ── Carga de datos ─────────────────────────────────────────────────────────

// AddTenant registra un tenant.
func (s *Store) AddTenant(t entity.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tenants[t.ID] = t
}

// SetTenantStatus cambia el estado de un tenant.
func (s *Store) SetTenantStatus(id string, status entity.TenantStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.state.tenants[id]
	t.Status = status
	s.state.tenants[id] = t
}

// AddSchool registra una escuela.
func (s *Store) AddSchool(sc entity.School) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.schools[sc.ID] = sc
}

// AddProduct registra un producto; los atributos opcionales se resuelven acá, como en el repositorio SQL.
func (s *Store) AddProduct(p entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Attributes = p.Attributes.WithDefaults()
	s.state.products[p.ID] = p
}

// AddUser registra un usuario con acceso a su tenant de origen.
func (s *Store) AddUser(u entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

// AddMembership da acceso a un usuario a un tenant adicional.
func (s *Store) AddMembership(userID, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.memberships[userID] == nil {
		s.state.memberships[userID] = map[string]bool{}
	}
	s.state.memberships[userID][tenantID] = true
}

// SeedStock fija el agregado sin pasar por lotes (datos heredados).
func (s *Store) SeedStock(rec entity.StockRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.stock[stockKey{rec.TenantID, rec.SchoolID, rec.ProductID}] = rec
}

// SeedBatch inserta un lote sin tocar el agregado.
func (s *Store) SeedBatch(b entity.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.batches[b.ID] = *b.Clone()
}

// ── Inspección (tests) ─────────────────────────────────────────────────────

// Stock devuelve el agregado; ok=false si no existe.
func (s *Store) Stock(tenantID, schoolID, productID string) (entity.StockRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state.stock[stockKey{tenantID, schoolID, productID}]
	return rec, ok
}

// Batches lotes de la clave ordenados por creación.
func (s *Store) Batches(tenantID, schoolID, productID string) []entity.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Batch
	for _, b := range s.state.batches {
		if b.TenantID == tenantID && b.SchoolID == schoolID && b.ProductID == productID {
			out = append(out, *b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Movements historial del tenant en orden de inserción.
func (s *Store) Movements(tenantID string) []entity.Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Movement
	for _, m := range s.state.movements {
		if m.mov.TenantID == tenantID {
			out = append(out, m.mov)
		}
	}
	return out
}
