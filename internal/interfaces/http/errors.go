package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/estoque-escolar-api/internal/application/dto"
	"github.com/jhoicas/estoque-escolar-api/internal/domain"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

var statusByKind = map[string]int{
	domain.KindTenantContextMissing:     fiber.StatusBadRequest,
	domain.KindValidation:               fiber.StatusBadRequest,
	domain.KindTenantOwnershipViolation: fiber.StatusForbidden,
	domain.KindTenantInactive:           fiber.StatusForbidden,
	domain.KindPrivilegeRequired:        fiber.StatusForbidden,
	domain.KindEntityNotFound:           fiber.StatusNotFound,
	domain.KindInsufficientStock:        fiber.StatusConflict,
	domain.KindDuplicateMovement:        fiber.StatusConflict,
}

// writeError traduce un error del ledger a {success:false, code, message, entity_id}.
// Los errores internos nunca exponen su detalle.
func writeError(c *fiber.Ctx, log *logger.Logger, err error) error {
	kind := domain.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		log.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Msg("error interno en solicitud")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:    domain.KindInternal,
			Message: "falla interna, intente más tarde",
		})
	}
	resp := dto.ErrorResponse{Code: kind, Message: err.Error(), EntityID: domain.EntityIDOf(err)}
	var de *domain.Error
	if errors.As(err, &de) {
		resp.Message = de.Message
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, code, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: code, Message: msg})
}
