package http_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/estoque-escolar-api/internal/application/dto"
	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/internal/application/ownership"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/backup"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/memstore"
	apphttp "github.com/jhoicas/estoque-escolar-api/internal/interfaces/http"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
	pkgjwt "github.com/jhoicas/estoque-escolar-api/pkg/jwt"
)

const (
	tenantNorte  = "11111111-aaaa-4aaa-8aaa-000000000001"
	tenantSur    = "11111111-aaaa-4aaa-8aaa-000000000002"
	schoolNorte  = "22222222-bbbb-4bbb-8bbb-000000000001"
	schoolSur    = "22222222-bbbb-4bbb-8bbb-000000000002"
	productNorte = "33333333-cccc-4ccc-8ccc-000000000001"
	userNorte    = "44444444-dddd-4ddd-8ddd-000000000001"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func buildLedgerApp(t *testing.T) (*fiber.App, *memstore.Store) {
	t.Helper()
	return buildLedgerAppWith(t, func(*apphttp.RouterDeps) {})
}

func buildLedgerAppWith(t *testing.T, configure func(*apphttp.RouterDeps)) (*fiber.App, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.AddTenant(entity.Tenant{ID: tenantNorte, Name: "Norte", Status: entity.TenantStatusActive})
	store.AddTenant(entity.Tenant{ID: tenantSur, Name: "Sur", Status: entity.TenantStatusActive})
	store.AddSchool(entity.School{ID: schoolNorte, TenantID: tenantNorte, Name: "Escuela Norte", Active: true})
	store.AddSchool(entity.School{ID: schoolSur, TenantID: tenantSur, Name: "Escuela Sur", Active: true})
	store.AddProduct(entity.Product{ID: productNorte, TenantID: tenantNorte, Name: "Arroz", Active: true})
	store.AddUser(entity.User{ID: userNorte, TenantID: tenantNorte, Role: entity.RoleAdmin, Status: "active"})

	files, err := backup.NewFileStore(t.TempDir())
	require.NoError(t, err)
	validator := ownership.NewValidator(store)
	log := logger.Nop()

	deps := apphttp.RouterDeps{
		RegisterMovement: inventory.NewRegisterMovementUseCase(store, validator, nil, nil, log),
		ResetSchool:      inventory.NewResetSchoolUseCase(store, validator, files, nil, nil, log, entity.RoleAdmin),
		Query:            inventory.NewQueryUseCase(store, validator, nil, log, 30*24*time.Hour),
		Tenants:          validator,
		TenantHeader:     "X-Tenant-ID",
		ResetRole:        entity.RoleAdmin,
		JWTSecret:        testJWTSecret,
		Logger:           log,
	}
	configure(&deps)

	app := fiber.New()
	apphttp.Router(app, deps)
	return app, store
}

// reqOpts sin token ni anonymous, call firma una sesión de bodeguero del mismo tenant del header.
type reqOpts struct {
	tenant    string
	token     string
	anonymous bool
}

func call(t *testing.T, app *fiber.App, method, path string, body any, o reqOpts) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.tenant != "" {
		req.Header.Set("X-Tenant-ID", o.tenant)
	}
	token := o.token
	if token == "" && o.tenant != "" && !o.anonymous {
		token = sessionToken(t, o.tenant, entity.RoleBodeguero)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func sessionToken(t *testing.T, tenant, role string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, userNorte, tenant, role, testIssuer, testExpMin)
	require.NoError(t, err)
	return tok
}

func movementBody(kind, quantity string) map[string]any {
	return map[string]any{
		"school_id":  schoolNorte,
		"product_id": productNorte,
		"kind":       kind,
		"quantity":   quantity,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Movimientos
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterMovement_EntradaConTenantPorHeaderYSesion(t *testing.T) {
	app, store := buildLedgerApp(t)

	body := movementBody("entrada", "5.5")
	body["expiry_date"] = "2026-01-31"
	resp := call(t, app, http.MethodPost, "/api/inventory/movements", body, reqOpts{tenant: tenantNorte})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[dto.RegisterMovementResponse](t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, "committed", out.State)
	assert.Equal(t, "5.5", out.Stock.Quantity.String())
	require.Len(t, out.Batches, 1)
	assert.Equal(t, "2026-01-31", out.Batches[0].ExpiryDate)
	require.NotNil(t, out.Movement.UserID)
	assert.Equal(t, userNorte, *out.Movement.UserID)

	rec, ok := store.Stock(tenantNorte, schoolNorte, productNorte)
	require.True(t, ok)
	assert.Equal(t, "5.5", rec.Quantity.String())
}

func TestRegisterMovement_TenantDeLaSesion(t *testing.T) {
	app, _ := buildLedgerApp(t)

	resp := call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("entrada", "2"),
		reqOpts{token: sessionToken(t, tenantNorte, entity.RoleBodeguero)})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[dto.RegisterMovementResponse](t, resp)
	require.NotNil(t, out.Movement.UserID)
	assert.Equal(t, userNorte, *out.Movement.UserID)
}

func TestRegisterMovement_SalidaInsuficiente409(t *testing.T) {
	app, _ := buildLedgerApp(t)
	call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("entrada", "1"), reqOpts{tenant: tenantNorte})

	resp := call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("saida", "3"), reqOpts{tenant: tenantNorte})

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	out := decode[dto.ErrorResponse](t, resp)
	assert.False(t, out.Success)
	assert.Equal(t, "INSUFFICIENT_STOCK", out.Code)
	assert.Equal(t, productNorte, out.EntityID)
}

func TestRegisterMovement_EscuelaDeOtroTenant403(t *testing.T) {
	app, store := buildLedgerApp(t)
	body := movementBody("entrada", "1")
	body["school_id"] = schoolSur

	resp := call(t, app, http.MethodPost, "/api/inventory/movements", body, reqOpts{tenant: tenantNorte})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	out := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, "TENANT_OWNERSHIP_VIOLATION", out.Code)
	assert.Equal(t, schoolSur, out.EntityID)
	assert.NotContains(t, out.Message, tenantSur)
	assert.Empty(t, store.Movements(tenantSur))
}

func TestRegisterMovement_ClaveDuplicada409(t *testing.T) {
	app, _ := buildLedgerApp(t)
	body := movementBody("entrada", "1")
	body["idempotency_key"] = "remito-42"

	first := call(t, app, http.MethodPost, "/api/inventory/movements", body, reqOpts{tenant: tenantNorte})
	second := call(t, app, http.MethodPost, "/api/inventory/movements", body, reqOpts{tenant: tenantNorte})

	assert.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Equal(t, http.StatusConflict, second.StatusCode)
	assert.Equal(t, "DUPLICATE_MOVEMENT", decode[dto.ErrorResponse](t, second).Code)
}

func TestRegisterMovement_CuerpoYFechasInvalidas400(t *testing.T) {
	app, _ := buildLedgerApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/inventory/movements", bytes.NewBufferString("{no-json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantNorte)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t, tenantNorte, entity.RoleBodeguero))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := movementBody("entrada", "1")
	body["expiry_date"] = "31/01/2026"
	resp = call(t, app, http.MethodPost, "/api/inventory/movements", body, reqOpts{tenant: tenantNorte})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, resp).Code)

	resp = call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("traslado", "1"), reqOpts{tenant: tenantNorte})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterMovement_FallaInternaNoExponeDetalle(t *testing.T) {
	app, store := buildLedgerApp(t)
	store.FailOn(memstore.OpMovementAppend, errors.New("pq: relation stock_movements is locked"))

	resp := call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("entrada", "1"), reqOpts{tenant: tenantNorte})

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, "INTERNAL", out.Code)
	assert.NotContains(t, out.Message, "stock_movements")
	_, ok := store.Stock(tenantNorte, schoolNorte, productNorte)
	assert.False(t, ok)
}

// ──────────────────────────────────────────────────────────────────────────────
// Sesión obligatoria
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterMovement_SinSesion401(t *testing.T) {
	app, store := buildLedgerApp(t)

	resp := call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("entrada", "100"),
		reqOpts{tenant: tenantNorte, anonymous: true})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "MISSING_TOKEN", decode[dto.ErrorResponse](t, resp).Code)
	_, ok := store.Stock(tenantNorte, schoolNorte, productNorte)
	assert.False(t, ok)
	assert.Empty(t, store.Movements(tenantNorte))
}

func TestConsultas_SinSesion401(t *testing.T) {
	app, _ := buildLedgerApp(t)
	for _, path := range []string{
		"/api/inventory/movements",
		"/api/inventory/summary",
		"/api/inventory/schools/" + schoolNorte + "/stock",
		"/api/inventory/products/" + productNorte + "/batches",
	} {
		resp := call(t, app, http.MethodGet, path, nil, reqOpts{tenant: tenantNorte, anonymous: true})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestRouter_HeaderSinSesionSoloConFlag(t *testing.T) {
	app, store := buildLedgerAppWith(t, func(d *apphttp.RouterDeps) { d.AllowHeaderOnly = true })

	resp := call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("entrada", "2"),
		reqOpts{tenant: tenantNorte, anonymous: true})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[dto.RegisterMovementResponse](t, resp)
	assert.Nil(t, out.Movement.UserID)
	rec, ok := store.Stock(tenantNorte, schoolNorte, productNorte)
	require.True(t, ok)
	assert.Equal(t, "2", rec.Quantity.String())

	// el reset sigue exigiendo sesión con rol
	resp = call(t, app, http.MethodPost, "/api/inventory/schools/"+schoolNorte+"/reset",
		map[string]string{"reason": "cierre"}, reqOpts{tenant: tenantNorte, anonymous: true})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolución del tenant
// ──────────────────────────────────────────────────────────────────────────────

func TestTenantMiddleware_SinTenant400(t *testing.T) {
	app, _ := buildLedgerApp(t)
	resp := call(t, app, http.MethodGet, "/api/inventory/summary", nil, reqOpts{
		token: sessionToken(t, "", entity.RoleBodeguero),
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "TENANT_CONTEXT_MISSING", decode[dto.ErrorResponse](t, resp).Code)
}

func TestTenantMiddleware_HeaderInvalido400(t *testing.T) {
	app, _ := buildLedgerApp(t)
	resp := call(t, app, http.MethodGet, "/api/inventory/summary", nil, reqOpts{tenant: "norte' OR 1=1"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.ErrorResponse](t, resp).Code)
}

func TestTenantMiddleware_TenantInexistente404(t *testing.T) {
	app, _ := buildLedgerApp(t)
	resp := call(t, app, http.MethodGet, "/api/inventory/summary", nil, reqOpts{tenant: "11111111-aaaa-4aaa-8aaa-0000000000ff"})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTenantMiddleware_TenantSuspendido403(t *testing.T) {
	app, store := buildLedgerApp(t)
	store.SetTenantStatus(tenantNorte, entity.TenantStatusSuspended)

	resp := call(t, app, http.MethodGet, "/api/inventory/summary", nil, reqOpts{tenant: tenantNorte})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "TENANT_INACTIVE", decode[dto.ErrorResponse](t, resp).Code)
}

func TestTenantMiddleware_HeaderDeOtroTenantSinMembresia403(t *testing.T) {
	app, _ := buildLedgerApp(t)
	resp := call(t, app, http.MethodGet, "/api/inventory/summary", nil, reqOpts{
		tenant: tenantSur,
		token:  sessionToken(t, tenantNorte, entity.RoleAdmin),
	})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "TENANT_OWNERSHIP_VIOLATION", decode[dto.ErrorResponse](t, resp).Code)
}

func TestTenantMiddleware_HeaderDeOtroTenantConMembresia(t *testing.T) {
	app, store := buildLedgerApp(t)
	store.AddMembership(userNorte, tenantSur)

	resp := call(t, app, http.MethodGet, "/api/inventory/summary", nil, reqOpts{
		tenant: tenantSur,
		token:  sessionToken(t, tenantNorte, entity.RoleAdmin),
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTenantMiddleware_HeaderTienePrioridadSobreSesion(t *testing.T) {
	app, _ := buildLedgerApp(t)
	call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("entrada", "4"), reqOpts{tenant: tenantNorte})

	// la sesión apunta a otro tenant, pero el header manda; el usuario pertenece al tenant del header
	resp := call(t, app, http.MethodGet, "/api/inventory/schools/"+schoolNorte+"/stock", nil, reqOpts{
		tenant: tenantNorte,
		token:  sessionToken(t, tenantSur, entity.RoleBodeguero),
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := decode[[]map[string]any](t, resp)
	require.Len(t, rows, 1)
	assert.Equal(t, "4", rows[0]["quantity"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Reset
// ──────────────────────────────────────────────────────────────────────────────

func TestResetSchool_SinSesion401(t *testing.T) {
	app, _ := buildLedgerApp(t)
	resp := call(t, app, http.MethodPost, "/api/inventory/schools/"+schoolNorte+"/reset",
		map[string]string{"reason": "cierre"}, reqOpts{tenant: tenantNorte, anonymous: true})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestResetSchool_BodegueroProhibido403(t *testing.T) {
	app, _ := buildLedgerApp(t)
	resp := call(t, app, http.MethodPost, "/api/inventory/schools/"+schoolNorte+"/reset",
		map[string]string{"reason": "cierre"}, reqOpts{token: sessionToken(t, tenantNorte, entity.RoleBodeguero)})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestResetSchool_AdminPoneACero(t *testing.T) {
	app, store := buildLedgerApp(t)
	call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("entrada", "6"), reqOpts{tenant: tenantNorte})

	resp := call(t, app, http.MethodPost, "/api/inventory/schools/"+schoolNorte+"/reset",
		map[string]string{"reason": "inventario anual"}, reqOpts{token: sessionToken(t, tenantNorte, entity.RoleAdmin)})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[dto.ResetSchoolResponse](t, resp)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.BackupRef)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, "reset", out.Entries[0].Kind)
	assert.Equal(t, out.BackupRef, out.Entries[0].DocumentRef)

	rec, _ := store.Stock(tenantNorte, schoolNorte, productNorte)
	assert.True(t, rec.Quantity.IsZero())
}

// ──────────────────────────────────────────────────────────────────────────────
// Consultas
// ──────────────────────────────────────────────────────────────────────────────

func TestHistory_FiltrosPorQuery(t *testing.T) {
	app, _ := buildLedgerApp(t)
	call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("entrada", "6"), reqOpts{tenant: tenantNorte})
	call(t, app, http.MethodPost, "/api/inventory/movements", movementBody("saida", "2"), reqOpts{tenant: tenantNorte})

	resp := call(t, app, http.MethodGet, "/api/inventory/movements?kind=saida&school_id="+schoolNorte, nil, reqOpts{tenant: tenantNorte})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[dto.HistoryResponse](t, resp)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "saida", out.Items[0].Kind)
	assert.Equal(t, "-2", out.Items[0].Delta.String())

	resp = call(t, app, http.MethodGet, "/api/inventory/movements?from=2020-13-01", nil, reqOpts{tenant: tenantNorte})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListBatches_ProductoConUnidadPorDefecto(t *testing.T) {
	app, _ := buildLedgerApp(t)
	body := movementBody("entrada", "3")
	body["expiry_date"] = "2026-05-01"
	body["lot_label"] = "L-ARZ-01"
	call(t, app, http.MethodPost, "/api/inventory/movements", body, reqOpts{tenant: tenantNorte})

	resp := call(t, app, http.MethodGet, "/api/inventory/products/"+productNorte+"/batches?school_id="+schoolNorte, nil, reqOpts{tenant: tenantNorte})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[dto.BatchListResponse](t, resp)
	assert.Equal(t, entity.DefaultUnit, out.Product.Unit)
	require.Len(t, out.Batches, 1)
	assert.Equal(t, "L-ARZ-01", out.Batches[0].LotLabel)
}

func TestStockMatrix_ProductoDeOtroTenant(t *testing.T) {
	app, _ := buildLedgerApp(t)
	resp := call(t, app, http.MethodGet, "/api/inventory/products/"+productNorte+"/stock", nil, reqOpts{tenant: tenantSur})

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, productNorte, decode[dto.ErrorResponse](t, resp).EntityID)
}
