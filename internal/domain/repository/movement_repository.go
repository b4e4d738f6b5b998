package repository

import (
	"context"

	"github.com/jhoicas/estoque-escolar-api/internal/domain/entity"
)

// MovementRepository historial append-only: sin Update ni Delete.
type MovementRepository interface {
	// Append devuelve domain.ErrDuplicateMovement si la clave de idempotencia ya existe en el tenant.
	Append(ctx context.Context, m *entity.Movement) error
	// Query ordena por fecha descendente.
	Query(ctx context.Context, tenantID string, f entity.MovementFilter) ([]*entity.Movement, error)
	ListBySchool(ctx context.Context, tenantID, schoolID string) ([]*entity.Movement, error)
}
