package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jhoicas/estoque-escolar-api/migrations"
	"github.com/jhoicas/estoque-escolar-api/pkg/config"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cargar configuración:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	arguments := flag.Args()
	if len(arguments) == 0 {
		arguments = []string{"up"}
	}
	command, args := arguments[0], arguments[1:]

	db, err := sql.Open("pgx", cfg.DB.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("goose: abrir conexión")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("goose: cerrar conexión")
		}
	}()

	if err := migrations.Run(context.Background(), db, command, args...); err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("migración fallida")
	}
	log.Info().Str("command", command).Msg("migración completada")
}
