package repository

import (
	"context"

	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
)

// CatalogRepository consulta del catálogo de productos (colaborador externo).
type CatalogRepository interface {
	// ResolveProduct devuelve domain.ErrNotFound si el producto no existe o no es del tenant.
	ResolveProduct(ctx context.Context, tenantID, productID string) (*entity.Product, error)
}
