// reconcile recalcula las proyecciones de stock desde el libro de movimientos y reporta discrepancias.
//
// Uso:
//
//	go run ./cmd/reconcile tenant <tenant_id> [--workers 4] [--json]
//	go run ./cmd/reconcile product <tenant_id> <product_id> [--json]
//
// Usa la misma configuración que la API (STORAGE_DRIVER, DATABASE_URL, LEDGER_*).
// Sale con código 1 si hubo error y con código 3 si encontró discrepancias.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/infrastructure/storage"
	"github.com/jhoicas/inventario-ledger/pkg/config"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
)

// Códigos de salida.
const (
	exitOK    = 0
	exitError = 1
	exitDrift = 3
)

// errDrift se devuelve cuando el recálculo corrigió al menos una proyección.
var errDrift = errors.New("se encontraron discrepancias")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(openService).ExecuteContext(ctx)
	switch {
	case err == nil:
		os.Exit(exitOK)
	case errors.Is(err, errDrift):
		os.Exit(exitDrift)
	default:
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(exitError)
	}
}

// serviceOpener arma el servicio de reconciliación; los tests lo reemplazan por el driver en memoria.
type serviceOpener func(ctx context.Context) (*inventory.ReconciliationService, func(), error)

func openService(ctx context.Context) (*inventory.ReconciliationService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("cargar configuración: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	backend, err := storage.Open(ctx, cfg.DB, log)
	if err != nil {
		return nil, nil, err
	}
	svc := inventory.NewReconciliationService(
		backend.TxRunner, backend.Movements, backend.Projections, backend.Catalog, nil,
		inventory.RetryPolicy{
			MaxAttempts:     cfg.Ledger.RetryMaxAttempts,
			InitialInterval: cfg.Ledger.RetryInitial,
			MaxInterval:     cfg.Ledger.RetryMax,
		},
		inventory.PageLimits{Default: cfg.Ledger.DefaultPageSize, Max: cfg.Ledger.MaxPageSize},
		log,
	)
	return svc, backend.Close, nil
}
