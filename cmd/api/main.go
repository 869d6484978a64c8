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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	infrakafka "github.com/jhoicas/inventario-ledger/internal/infrastructure/kafka"
	"github.com/jhoicas/inventario-ledger/internal/infrastructure/metrics"
	infrapdf "github.com/jhoicas/inventario-ledger/internal/infrastructure/pdf"
	"github.com/jhoicas/inventario-ledger/internal/infrastructure/storage"
	httpRouter "github.com/jhoicas/inventario-ledger/internal/interfaces/http"
	"github.com/jhoicas/inventario-ledger/pkg/config"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
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
		Str("storage", cfg.DB.Driver).
		Msg("iniciando aplicación")

	ctx := context.Background()
	backend, err := storage.Open(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("almacenamiento")
	}
	defer backend.Close()

	// Métricas y eventos son opcionales: sin ellos los servicios usan implementaciones nop.
	var (
		recorder  inventory.Recorder
		publisher inventory.MovementPublisher
		registry  *metrics.Recorder
	)
	if cfg.Metrics.Enabled {
		registry = metrics.NewRecorder("inventario_ledger")
		recorder = registry
	}
	if cfg.Kafka.Enabled() {
		kp := infrakafka.NewMovementPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				log.Error().Err(err).Msg("cerrar publicador Kafka")
			}
		}()
		publisher = kp
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publicación de movimientos habilitada")
	}

	retry := inventory.RetryPolicy{
		MaxAttempts:     cfg.Ledger.RetryMaxAttempts,
		InitialInterval: cfg.Ledger.RetryInitial,
		MaxInterval:     cfg.Ledger.RetryMax,
	}
	engine := inventory.NewMovementEngine(backend.TxRunner, backend.Movements, backend.Catalog, publisher, recorder, retry, log)
	transfers := inventory.NewTransferOrchestrator(engine, backend.Movements, recorder, log)
	recon := inventory.NewReconciliationService(
		backend.TxRunner, backend.Movements, backend.Projections, backend.Catalog, recorder, retry,
		inventory.PageLimits{Default: cfg.Ledger.DefaultPageSize, Max: cfg.Ledger.MaxPageSize}, log,
	)

	// PDF: tarjeta de stock (kárdex)
	stockCards := infrapdf.NewMarotoStockCardGenerator()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(cfg.HTTP.SwaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: cfg.HTTP.SwaggerFile,
			Path:     "docs",
			Title:    "Inventario Ledger API",
		}))
	} else {
		log.Warn().Str("file", cfg.HTTP.SwaggerFile).Msg("swagger deshabilitado: archivo no encontrado")
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "storage": cfg.DB.Driver})
	})
	if registry != nil {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(registry.Registry(), promhttp.HandlerOpts{})))
	}

	httpRouter.Router(app, httpRouter.RouterDeps{
		Inventory: httpRouter.NewInventoryHandler(engine, transfers, recon, stockCards, cfg.Ledger.OperationTimeout, log),
		JWTSecret: cfg.JWT.Secret,
		JWTIssuer: cfg.JWT.Issuer,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
