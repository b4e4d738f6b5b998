package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	RegisterMovement *inventory.RegisterMovementUseCase
	ResetSchool      *inventory.ResetSchoolUseCase
	Query            *inventory.QueryUseCase
	Tenants          tenantChecker
	TenantHeader     string
	ResetRole        string
	JWTSecret        string
	// AllowHeaderOnly acepta solicitudes sin sesión con el tenant solo por header
	// (gateway de confianza delante de la API). Por defecto se exige sesión.
	AllowHeaderOnly  bool
	Logger           *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	header := deps.TenantHeader
	if header == "" {
		header = "X-Tenant-ID"
	}

	api := app.Group("/api")

	auth := AuthMiddleware(deps.JWTSecret)
	if deps.AllowHeaderOnly {
		auth = OptionalAuth(deps.JWTSecret)
	}
	inv := api.Group("/inventory", auth, TenantMiddleware(header, deps.Tenants, log))
	h := NewInventoryHandler(deps.RegisterMovement, deps.ResetSchool, deps.Query, log)

	inv.Post("/movements", h.RegisterMovement)
	inv.Get("/movements", h.History)
	inv.Get("/summary", h.Summary)

	inv.Get("/schools/:id/stock", h.StockBySchool)
	inv.Post("/schools/:id/reset", RequireRole(deps.ResetRole), h.ResetSchool)

	inv.Get("/products/:id/stock", h.StockMatrix)
	inv.Get("/products/:id/batches", h.ListBatches)
}
