//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jhoicas/estoque-escolar-api/migrations"
)

// Rol sin privilegios de superusuario: las políticas de filas solo se aplican a roles así.
const (
	AppRole     = "ledger_app"
	appPassword = "ledger_app"
)

// PostgresContainer instancia PostgreSQL con las migraciones aplicadas.
type PostgresContainer struct {
	Container testcontainers.Container
	// AdminDSN conecta como superusuario (ignora RLS): siembra de datos y verificaciones.
	AdminDSN string
	// AppDSN conecta con el rol de la aplicación, sujeto a RLS.
	AppDSN string
}

// NewPostgresContainer levanta PostgreSQL, aplica las migraciones y crea el rol de la aplicación.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("estoque"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	adminDSN, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()

	if err := migrations.Up(ctx, db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	grants := []string{
		fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s'", AppRole, appPassword),
		"GRANT USAGE ON SCHEMA public TO " + AppRole,
		"GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO " + AppRole,
		"GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO " + AppRole,
	}
	for _, stmt := range grants {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("failed to prepare app role (%s): %v", stmt, err)
		}
	}

	u, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("failed to parse postgres DSN: %v", err)
	}
	u.User = url.UserPassword(AppRole, appPassword)

	return &PostgresContainer{
		Container: container,
		AdminDSN:  adminDSN,
		AppDSN:    u.String(),
	}
}

// Exec ejecuta sentencias como superusuario.
func (p *PostgresContainer) Exec(t *testing.T, stmts ...string) {
	t.Helper()
	db, err := sql.Open("pgx", p.AdminDSN)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()
	for _, stmt := range stmts {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}
