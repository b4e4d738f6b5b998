package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/estoque-escolar-api/internal/application/tenancy"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

// LocalTenantID tenant resuelto de la solicitud.
const LocalTenantID = "tenant_id"

// tenantChecker contrato mínimo que necesita el middleware; lo implementa *ownership.Validator.
type tenantChecker interface {
	TenantActive(ctx context.Context, tenantID string) error
	UserHasAccessTo(ctx context.Context, userID, tenantID string) error
}

// TenantMiddleware resuelve el tenant (header primero, sesión después) y lo deja en c.Locals
// y en el contexto de usuario. Debe ir después de OptionalAuth/AuthMiddleware.
//
// Comportamiento:
//   - sin tenant resoluble → 400 TENANT_CONTEXT_MISSING.
//   - tenant inexistente, inactivo o suspendido → 404 / 403.
//   - header distinto al tenant de la sesión → el usuario debe tener acceso a ese tenant (403 si no).
func TenantMiddleware(header string, checker tenantChecker, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := tenancy.Resolve(tenancy.Request{
			Header:        c.Get(header),
			SessionTenant: GetSessionTenant(c),
		})
		if err != nil {
			return writeError(c, log, err)
		}
		ctx := c.UserContext()
		if err := checker.TenantActive(ctx, res.TenantID); err != nil {
			return writeError(c, log, err)
		}
		if res.Source == tenancy.SourceHeader {
			if user := GetUserID(c); user != "" && res.TenantID != GetSessionTenant(c) {
				if err := checker.UserHasAccessTo(ctx, user, res.TenantID); err != nil {
					return writeError(c, log, err)
				}
			}
		}
		c.Locals(LocalTenantID, res.TenantID)
		c.SetUserContext(tenancy.WithTenant(ctx, res.TenantID))
		return c.Next()
	}
}

// GetTenantID tenant resuelto (después de TenantMiddleware).
func GetTenantID(c *fiber.Ctx) string { return localString(c, LocalTenantID) }
