package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
)

var _ inventory.TxRunner = (*TxRunner)(nil)

var tracer = otel.Tracer("estoque-escolar/tx")

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL ligada a un tenant.
// Cada transacción fija app.tenant_id, que es lo que evalúan las políticas RLS.
type TxRunner struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// NewTxRunner construye el runner con el pool. statementTimeout <= 0 deja el valor del servidor.
func NewTxRunner(pool *pgxpool.Pool, statementTimeout time.Duration) *TxRunner {
	return &TxRunner{pool: pool, statementTimeout: statementTimeout}
}

// Run inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
func (r *TxRunner) Run(ctx context.Context, tenantID string, fn func(ctx context.Context, repos inventory.TxRepos) error) error {
	return r.run(ctx, tenantID, pgx.ReadWrite, fn)
}

// Read igual que Run en modo solo lectura.
func (r *TxRunner) Read(ctx context.Context, tenantID string, fn func(ctx context.Context, repos inventory.TxRepos) error) error {
	return r.run(ctx, tenantID, pgx.ReadOnly, fn)
}

func (r *TxRunner) run(ctx context.Context, tenantID string, mode pgx.TxAccessMode, fn func(ctx context.Context, repos inventory.TxRepos) error) (err error) {
	if tenantID == "" {
		return errors.New("transacción sin tenant")
	}
	ctx, span := tracer.Start(ctx, "ledger.transaction",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("tx.access_mode", string(mode)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: mode})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// rollback aunque el ctx del llamador ya haya sido cancelado
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return fmt.Errorf("set tenant: %w", err)
	}
	if r.statementTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", r.statementTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(ctx, reposFor(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func reposFor(q Querier) inventory.TxRepos {
	return inventory.TxRepos{
		Stock:     NewStockRepository(q),
		Batches:   NewBatchRepository(q),
		Movements: NewMovementRepository(q),
		Products:  NewProductRepository(q),
	}
}
