package repository

import (
	"context"

	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// StockProjectionRepository define el puerto de la proyección de stock por (tenant, producto).
// Las filas se materializan en cero la primera vez que se referencian.
type StockProjectionRepository interface {
	Get(ctx context.Context, tenantID, productID string) (*entity.StockProjection, error)
	// Adjust suma delta de forma atómica solo si el resultado queda >= 0; si no,
	// devuelve domain.ErrInsufficientStock sin modificar nada.
	Adjust(ctx context.Context, tenantID, productID string, delta decimal.Decimal, movementID string) (*entity.StockProjection, error)
	// GetForUpdate bloquea la fila hasta el fin de la transacción.
	GetForUpdate(ctx context.Context, tenantID, productID string) (*entity.StockProjection, error)
	// Overwrite reemplaza la cantidad (uso privilegiado: reconciliación).
	Overwrite(ctx context.Context, tenantID, productID string, quantity decimal.Decimal) (*entity.StockProjection, error)
	ListProductIDs(ctx context.Context, tenantID string) ([]string, error)
}
