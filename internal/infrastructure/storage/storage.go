// Package storage elige y arma el driver de almacenamiento del libro (postgres o memory).
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/jhoicas/inventario-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/inventario-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/inventario-ledger/pkg/config"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
)

// Backend puertos del libro listos para inyectar en los servicios.
type Backend struct {
	TxRunner    inventory.TxRunner
	Movements   repository.StockMovementRepository
	Projections repository.StockProjectionRepository
	Catalog     repository.CatalogRepository

	close func()
}

// Close libera las conexiones del driver.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Open conecta el driver configurado. Con postgres y DB_AUTO_MIGRATE aplica las migraciones.
func Open(ctx context.Context, cfg config.DBConfig, log *logger.Logger) (*Backend, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		store := memory.NewStore()
		for _, entry := range cfg.MemoryCatalog {
			p, err := parseCatalogEntry(entry)
			if err != nil {
				return nil, err
			}
			store.AddProduct(p)
		}
		log.Warn().Int("products", len(cfg.MemoryCatalog)).Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
		return &Backend{
			TxRunner:    store,
			Movements:   store.Movements(),
			Projections: store.Projections(),
			Catalog:     store,
		}, nil

	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migraciones: %w", err)
			}
			log.Info().Msg("migraciones aplicadas")
		}
		return &Backend{
			TxRunner:    postgres.NewTxRunner(pool),
			Movements:   postgres.NewStockMovementRepository(pool),
			Projections: postgres.NewStockProjectionRepository(pool),
			Catalog:     postgres.NewCatalogRepository(pool),
			close:       pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("driver de almacenamiento desconocido: %q", cfg.Driver)
	}
}

// parseCatalogEntry "tenant:producto:sku[:nombre]".
func parseCatalogEntry(s string) (entity.Product, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return entity.Product{}, fmt.Errorf("MEMORY_CATALOG: entrada inválida %q (tenant:producto:sku[:nombre])", s)
	}
	p := entity.Product{TenantID: parts[0], ID: parts[1], SKU: parts[2]}
	if len(parts) == 4 {
		p.Name = parts[3]
	}
	return p, nil
}
