package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/estoque-escolar-api/internal/application/dto"
	"github.com/jhoicas/estoque-escolar-api/pkg/jwt"
)

// Locals keys de la sesión en Fiber.
const (
	LocalUserID        = "user_id"
	LocalSessionTenant = "session_tenant_id"
	LocalRole          = "role"
)

// AuthMiddleware valida el Bearer Token JWT y carga la sesión en c.Locals. Sin token responde 401.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return sessionMiddleware(jwtSecret, true)
}

// OptionalAuth como AuthMiddleware, pero una solicitud sin Authorization sigue sin sesión
// (el tenant puede venir solo por header). Un token presente e inválido sigue siendo 401.
func OptionalAuth(jwtSecret string) fiber.Handler {
	return sessionMiddleware(jwtSecret, false)
}

func sessionMiddleware(jwtSecret string, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			if !required {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "Authorization header requerido"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "token vacío"})
		}
		session, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido o expirado"})
		}
		c.Locals(LocalUserID, session.UserID)
		c.Locals(LocalSessionTenant, session.TenantID)
		c.Locals(LocalRole, session.Role)
		return c.Next()
	}
}

// RequireRole permite el paso solo a los roles indicados. Debe ir después de AuthMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := GetRole(c)
		if role == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_ROLE", Message: "el token no incluye rol"})
		}
		for _, r := range roles {
			if strings.EqualFold(r, role) {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "rol sin permiso para esta operación"})
	}
}

func localString(c *fiber.Ctx, key string) string {
	v := c.Locals(key)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetUserID devuelve el UserID de la sesión (vacío si no hay sesión).
func GetUserID(c *fiber.Ctx) string { return localString(c, LocalUserID) }

// GetSessionTenant tenant de la sesión (vacío si no hay sesión).
func GetSessionTenant(c *fiber.Ctx) string { return localString(c, LocalSessionTenant) }

// GetRole rol de la sesión.
func GetRole(c *fiber.Ctx) string { return localString(c, LocalRole) }
