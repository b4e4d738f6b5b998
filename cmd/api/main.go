package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/estoque-escolar-api/internal/application/inventory"
	"github.com/jhoicas/estoque-escolar-api/internal/application/ownership"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/backup"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/cache"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/metrics"
	"github.com/jhoicas/estoque-escolar-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/estoque-escolar-api/internal/interfaces/http"
	"github.com/jhoicas/estoque-escolar-api/pkg/config"
	"github.com/jhoicas/estoque-escolar-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Caché: Redis si hay REDIS_URL, si no en memoria del proceso.
	var (
		invalidator inventory.CacheInvalidator
		readCache   inventory.ReadCache
	)
	if cfg.Cache.Enabled {
		var backend cache.Backend = cache.NewMemoryBackend()
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		if rdb != nil {
			defer rdb.Close()
			backend = cache.NewRedisBackend(rdb)
			log.Info().Msg("caché en Redis")
		} else {
			log.Warn().Msg("REDIS_URL vacío: caché en memoria del proceso")
		}
		tc := cache.New(backend, cache.Options{
			Prefix:   cfg.Cache.KeyPrefix,
			TTL:      cfg.Cache.TTL,
			Observer: m,
			Logger:   log.Named("cache"),
		})
		invalidator, readCache = tc, tc
	}

	backups, err := backup.NewFileStore(cfg.Ledger.BackupDir)
	if err != nil {
		log.Fatal().Err(err).Msg("directorio de respaldos")
	}

	txRunner := postgres.NewTxRunner(pool, cfg.Ledger.StatementTimeout)
	validator := ownership.NewValidator(postgres.NewOwnershipRepository(pool))

	registerMovementUC := inventory.NewRegisterMovementUseCase(txRunner, validator, invalidator, m, log.Named("movements"))
	resetUC := inventory.NewResetSchoolUseCase(txRunner, validator, backups, invalidator, m, log.Named("reset"), cfg.Ledger.ResetRole)
	queryUC := inventory.NewQueryUseCase(txRunner, validator, readCache, log.Named("queries"), cfg.Ledger.ExpiringWindow)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Estoque Escolar API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := pool.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	httpRouter.Router(app, httpRouter.RouterDeps{
		RegisterMovement: registerMovementUC,
		ResetSchool:      resetUC,
		Query:            queryUC,
		Tenants:          validator,
		TenantHeader:     cfg.Tenant.Header,
		AllowHeaderOnly:  cfg.Tenant.AllowHeaderOnly,
		ResetRole:        cfg.Ledger.ResetRole,
		JWTSecret:        cfg.JWT.Secret,
		Logger:           log.Named("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
