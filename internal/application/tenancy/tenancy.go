// Package tenancy resuelve el tenant de cada solicitud y lo propaga por context.Context
// hasta la transacción (variable de sesión app.tenant_id) y la caché.
package tenancy

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jhoicas/estoque-escolar-api/internal/domain"
)

type ctxKey int

const tenantKey ctxKey = iota

// Source origen del tenant resuelto.
type Source string

const (
	SourceHeader  Source = "header"
	SourceSession Source = "session"
)

// Request datos de la solicitud relevantes para resolver el tenant.
type Request struct {
	Header        string // valor del header de tenant, si vino
	SessionTenant string // tenant de la sesión autenticada, si hay sesión
}

// Resolution tenant resuelto y su origen.
type Resolution struct {
	TenantID string
	Source   Source
}

// Resolve aplica el orden: header explícito primero, sesión solo si no hay header.
// Un header presente pero mal formado es un error de validación, no cae a la sesión.
func Resolve(r Request) (Resolution, error) {
	if h := strings.TrimSpace(r.Header); h != "" {
		id, err := uuid.Parse(h)
		if err != nil {
			return Resolution{}, domain.NewValidationFor("identificador de tenant inválido", h)
		}
		return Resolution{TenantID: id.String(), Source: SourceHeader}, nil
	}
	if s := strings.TrimSpace(r.SessionTenant); s != "" {
		return Resolution{TenantID: s, Source: SourceSession}, nil
	}
	return Resolution{}, domain.NewTenantContextMissing()
}

// WithTenant adjunta el tenant al contexto.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// FromContext devuelve el tenant del contexto, si existe.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantKey).(string)
	return id, ok && id != ""
}

// Require devuelve el tenant del contexto o TenantContextMissing.
func Require(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", domain.NewTenantContextMissing()
	}
	return id, nil
}
