package repository

import (
	"context"
	"time"

	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// MovementFilter filtros para el historial de movimientos. TenantID es obligatorio.
type MovementFilter struct {
	TenantID  string
	ProductID string
	Kind      entity.MovementKind
	SKU       string
	From      *time.Time
	To        *time.Time
}

// StockMovementRepository define el puerto del libro de movimientos (append-only).
type StockMovementRepository interface {
	// Append persiste un movimiento y le asigna Seq. Devuelve domain.ErrDuplicateReference
	// si ya existe otro con el mismo (tenant, producto, tipo, referencia).
	Append(ctx context.Context, movement *entity.StockMovement) error
	// FindByReference devuelve (nil, nil) si no existe.
	FindByReference(ctx context.Context, tenantID, productID string, kind entity.MovementKind, referenceID string) (*entity.StockMovement, error)
	SumDeltas(ctx context.Context, tenantID, productID string) (decimal.Decimal, error)
	// List ordena por CreatedAt descendente (Seq como desempate) y devuelve el total sin paginar.
	List(ctx context.Context, filter MovementFilter, limit, offset int) ([]*entity.StockMovement, int, error)
	ListProductIDs(ctx context.Context, tenantID string) ([]string, error)
}
