package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/infrastructure/storage"
	"github.com/jhoicas/inventario-ledger/pkg/config"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
)

func TestOpen_MemoriaConCatalogo(t *testing.T) {
	cfg := config.DBConfig{
		Driver:        config.StorageMemory,
		MemoryCatalog: []string{"t1:p1:SKU-1", "t1:p2:SKU-2:Tuerca 1/4"},
	}
	b, err := storage.Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer b.Close()

	p, err := b.Catalog.ResolveProduct(context.Background(), "t1", "p2")
	require.NoError(t, err)
	assert.Equal(t, "SKU-2", p.SKU)
	assert.Equal(t, "Tuerca 1/4", p.Name)

	_, err = b.Catalog.ResolveProduct(context.Background(), "t2", "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpen_EntradaDeCatalogoInvalida(t *testing.T) {
	cfg := config.DBConfig{Driver: config.StorageMemory, MemoryCatalog: []string{"t1:p1"}}
	_, err := storage.Open(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestOpen_DriverDesconocido(t *testing.T) {
	_, err := storage.Open(context.Background(), config.DBConfig{Driver: "sqlite"}, logger.Nop())
	assert.Error(t, err)
}
