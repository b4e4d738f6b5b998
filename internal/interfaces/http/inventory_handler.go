package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/estoque-escolar-api/internal/application/dto"
	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

// InventoryHandler maneja las peticiones HTTP del ledger (movimientos, reset y consultas).
type InventoryHandler struct {
	register *inventory.RegisterMovementUseCase
	reset    *inventory.ResetSchoolUseCase
	query    *inventory.QueryUseCase
	log      *logger.Logger
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(register *inventory.RegisterMovementUseCase, reset *inventory.ResetSchoolUseCase, query *inventory.QueryUseCase, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{register: register, reset: reset, query: query, log: log}
}

// RegisterMovement godoc
// @Summary      Registrar movimiento de stock
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header  string  false  "Tenant (si no, el de la sesión)"
// @Param        body  body  dto.RegisterMovementRequest  true  "school_id, product_id, kind (entrada|saida|ajuste), quantity"
// @Success      201   {object}  dto.RegisterMovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [post]
func (h *InventoryHandler) RegisterMovement(c *fiber.Ctx) error {
	var in dto.RegisterMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	expiry, err := dto.ParseDate(in.ExpiryDate)
	if err != nil {
		return badRequest(c, "VALIDATION_ERROR", "expiry_date debe tener formato YYYY-MM-DD")
	}
	mfg, err := dto.ParseDate(in.ManufactureDate)
	if err != nil {
		return badRequest(c, "VALIDATION_ERROR", "manufacture_date debe tener formato YYYY-MM-DD")
	}
	res, err := h.register.RegisterMovement(c.UserContext(), inventory.MovementInput{
		TenantID:        GetTenantID(c),
		SchoolID:        in.SchoolID,
		ProductID:       in.ProductID,
		Kind:            entity.MovementKind(strings.ToLower(strings.TrimSpace(in.Kind))),
		Quantity:        in.Quantity,
		Reason:          in.Reason,
		DocumentRef:     in.DocumentRef,
		UserID:          GetUserID(c),
		ExpiryDate:      expiry,
		ManufactureDate: mfg,
		LotLabel:        in.LotLabel,
		BatchID:         in.BatchID,
		IdempotencyKey:  in.IdempotencyKey,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.RegisterMovementResponse{
		Success:  true,
		State:    string(res.State),
		Stock:    dto.FromStock(res.Stock),
		Movement: dto.FromMovement(res.Movement),
		Batches:  dto.FromBatches(res.Batches),
	})
}

// ResetSchool godoc
// @Summary      Poner a cero el stock de una escuela (con respaldo)
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                  true  "ID de la escuela"
// @Param        body  body  dto.ResetSchoolRequest  true  "motivo"
// @Success      200   {object}  dto.ResetSchoolResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Router       /api/inventory/schools/{id}/reset [post]
func (h *InventoryHandler) ResetSchool(c *fiber.Ctx) error {
	var in dto.ResetSchoolRequest
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	res, err := h.reset.Reset(c.UserContext(), inventory.ResetInput{
		TenantID: GetTenantID(c),
		SchoolID: c.Params("id"),
		UserID:   GetUserID(c),
		Role:     GetRole(c),
		Reason:   in.Reason,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.ResetSchoolResponse{
		Success:   true,
		State:     string(res.State),
		BackupRef: res.BackupRef,
		Entries:   dto.FromMovements(res.Entries),
	})
}

// StockBySchool godoc
// @Summary      Stock actual de una escuela
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID de la escuela"
// @Success      200  {array}   repository.SchoolStockRow
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/schools/{id}/stock [get]
func (h *InventoryHandler) StockBySchool(c *fiber.Ctx) error {
	rows, err := h.query.StockBySchool(c.UserContext(), GetTenantID(c), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(rows)
}

// StockMatrix godoc
// @Summary      Stock de un producto en todas las escuelas
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {array}   repository.ProductStockRow
// @Router       /api/inventory/products/{id}/stock [get]
func (h *InventoryHandler) StockMatrix(c *fiber.Ctx) error {
	rows, err := h.query.StockMatrix(c.UserContext(), GetTenantID(c), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(rows)
}

// ListBatches godoc
// @Summary      Lotes de un producto en orden de consumo
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id                path   string  true   "ID del producto"
// @Param        school_id         query  string  false  "Filtrar por escuela"
// @Param        include_depleted  query  bool    false  "Incluir lotes agotados"
// @Success      200  {object}  dto.BatchListResponse
// @Router       /api/inventory/products/{id}/batches [get]
func (h *InventoryHandler) ListBatches(c *fiber.Ctx) error {
	includeDepleted, _ := strconv.ParseBool(c.Query("include_depleted", "false"))
	list, err := h.query.ListBatches(c.UserContext(), GetTenantID(c), c.Query("school_id"), c.Params("id"), includeDepleted)
	if err != nil {
		return writeError(c, h.log, err)
	}
	p := list.Product
	return c.JSON(dto.BatchListResponse{
		Product: dto.ProductInfo{
			ID:        p.ID,
			Name:      p.Name,
			Category:  p.Category,
			Unit:      p.Attributes.Unit,
			Brand:     p.Attributes.Brand,
			NetWeight: p.Attributes.NetWeight,
		},
		Batches: dto.FromBatches(list.Batches),
	})
}

// History godoc
// @Summary      Historial de movimientos
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        school_id   query  string  false  "Escuela"
// @Param        product_id  query  string  false  "Producto"
// @Param        kind        query  string  false  "entrada|saida|ajuste|reset"
// @Param        from        query  string  false  "Desde (RFC3339 o YYYY-MM-DD)"
// @Param        to          query  string  false  "Hasta (RFC3339 o YYYY-MM-DD, inclusive)"
// @Param        limit       query  int     false  "Máximo 500"
// @Param        offset      query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.HistoryResponse
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) History(c *fiber.Ctx) error {
	var q dto.HistoryQuery
	if err := c.QueryParser(&q); err != nil {
		return badRequest(c, "INVALID_QUERY", "parámetros inválidos")
	}
	from, err := parseInstant(q.From, false)
	if err != nil {
		return badRequest(c, "VALIDATION_ERROR", "from inválido")
	}
	to, err := parseInstant(q.To, true)
	if err != nil {
		return badRequest(c, "VALIDATION_ERROR", "to inválido")
	}
	f := entity.MovementFilter{
		SchoolID:  q.SchoolID,
		ProductID: q.ProductID,
		Kind:      entity.MovementKind(strings.ToLower(q.Kind)),
		From:      from,
		To:        to,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	items, err := h.query.History(c.UserContext(), GetTenantID(c), f)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.HistoryResponse{
		Items: dto.FromMovements(items),
		Page:  dto.PageResponse{Limit: q.Limit, Offset: q.Offset},
	})
}

// Summary godoc
// @Summary      Resumen de stock del tenant
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  repository.StockSummaryRow
// @Router       /api/inventory/summary [get]
func (h *InventoryHandler) Summary(c *fiber.Ctx) error {
	rows, err := h.query.Summary(c.UserContext(), GetTenantID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(rows)
}

// parseInstant acepta RFC3339 o fecha; una fecha usada como cota superior cubre el día completo.
func parseInstant(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := dto.ParseDate(s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		end := d.Add(24*time.Hour - time.Nanosecond)
		return &end, nil
	}
	return d, nil
}
