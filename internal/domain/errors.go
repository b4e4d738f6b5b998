package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrTenantContextMissing     = errors.New("tenant no informado en la solicitud")
	ErrTenantOwnershipViolation = errors.New("el recurso no pertenece al tenant")
	ErrTenantInactive           = errors.New("tenant inactivo o suspendido")
	ErrNotFound                 = errors.New("recurso no encontrado")
	ErrInvalidInput             = errors.New("entrada inválida")
	ErrInsufficientStock        = errors.New("stock insuficiente")
	ErrDuplicateMovement        = errors.New("movimiento duplicado")
	ErrPrivilegeRequired        = errors.New("operación requiere privilegios de administrador")
	ErrInternal                 = errors.New("error interno")
)

// Tipos estables de error expuestos a las capas que llaman (deciden si reintentar o fallar).
const (
	KindTenantContextMissing     = "TENANT_CONTEXT_MISSING"
	KindTenantOwnershipViolation = "TENANT_OWNERSHIP_VIOLATION"
	KindTenantInactive           = "TENANT_INACTIVE"
	KindEntityNotFound           = "ENTITY_NOT_FOUND"
	KindValidation               = "VALIDATION_ERROR"
	KindInsufficientStock        = "INSUFFICIENT_STOCK"
	KindDuplicateMovement        = "DUPLICATE_MOVEMENT"
	KindPrivilegeRequired        = "PRIVILEGE_REQUIRED"
	KindInternal                 = "INTERNAL"
)

var kinds = []struct {
	sentinel error
	kind     string
}{
	{ErrTenantContextMissing, KindTenantContextMissing},
	{ErrTenantOwnershipViolation, KindTenantOwnershipViolation},
	{ErrTenantInactive, KindTenantInactive},
	{ErrNotFound, KindEntityNotFound},
	{ErrInvalidInput, KindValidation},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrDuplicateMovement, KindDuplicateMovement},
	{ErrPrivilegeRequired, KindPrivilegeRequired},
}

// Error es el error estructurado del ledger: {kind, message, offending-entity-id}.
// Unwrap devuelve el error centinela, de modo que errors.Is(err, ErrNotFound) funciona.
type Error struct {
	Kind     string
	Message  string
	EntityID string
	Err      error
}

func (e *Error) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Kind, e.Message, e.EntityID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// newError construye un Error a partir de su centinela.
func newError(sentinel error, msg, entityID string) *Error {
	return &Error{Kind: kindOfSentinel(sentinel), Message: msg, EntityID: entityID, Err: sentinel}
}

// NewNotFound entidad inexistente (o invisible para el tenant).
func NewNotFound(entity, id string) *Error {
	return newError(ErrNotFound, entity+" no encontrado", id)
}

// NewOwnershipViolation la entidad existe pero pertenece a otro tenant.
// El mensaje nunca incluye el tenant dueño para no filtrar datos.
func NewOwnershipViolation(entity, id string) *Error {
	return newError(ErrTenantOwnershipViolation, entity+" no pertenece al tenant de la solicitud", id)
}

// NewValidation entrada mal formada.
func NewValidation(msg string) *Error {
	return newError(ErrInvalidInput, msg, "")
}

// NewValidationFor entrada mal formada asociada a una entidad.
func NewValidationFor(msg, entityID string) *Error {
	return newError(ErrInvalidInput, msg, entityID)
}

// NewInsufficientStock la salida solicitada supera el stock disponible.
func NewInsufficientStock(productID, requested, available string) *Error {
	return newError(ErrInsufficientStock,
		fmt.Sprintf("solicitado %s, disponible %s", requested, available), productID)
}

// NewDuplicateMovement clave de idempotencia ya utilizada.
func NewDuplicateMovement(key string) *Error {
	return newError(ErrDuplicateMovement, "ya existe un movimiento con esta clave de idempotencia", key)
}

// NewTenantInactive tenant con estado distinto de activo.
func NewTenantInactive(tenantID string) *Error {
	return newError(ErrTenantInactive, "el tenant no está activo", tenantID)
}

// NewTenantContextMissing sin tenant resoluble no se procesa nada.
func NewTenantContextMissing() *Error {
	return newError(ErrTenantContextMissing, "no fue posible resolver el tenant de la solicitud", "")
}

// NewPrivilegeRequired operación reservada a administradores.
func NewPrivilegeRequired(operation string) *Error {
	return newError(ErrPrivilegeRequired, operation+" requiere rol de administrador", "")
}

// NewInternal encapsula un error inesperado sin exponer su detalle en Message.
func NewInternal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "falla interna, intente más tarde", Err: errors.Join(ErrInternal, cause)}
}

// KindOf devuelve el tipo estable de un error; errores desconocidos son INTERNAL.
func KindOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != "" {
		return de.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// EntityIDOf devuelve el id de la entidad que causó el error, si existe.
func EntityIDOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.EntityID
	}
	return ""
}

// IsBusiness indica si el error es una regla de negocio o de aislamiento (no un fallo de infraestructura).
func IsBusiness(err error) bool {
	return KindOf(err) != KindInternal
}

func kindOfSentinel(sentinel error) string {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return k.kind
		}
	}
	return KindInternal
}
