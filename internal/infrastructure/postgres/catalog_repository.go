package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
)

var _ repository.CatalogRepository = (*CatalogRepo)(nil)

// CatalogRepo lectura del catálogo de productos. El tenant del libro es la empresa (company_id)
// dueña del producto.
type CatalogRepo struct {
	q Querier
}

// NewCatalogRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCatalogRepository(q Querier) *CatalogRepo {
	return &CatalogRepo{q: q}
}

// ResolveProduct devuelve domain.ErrNotFound si el producto no existe o es de otra empresa.
func (r *CatalogRepo) ResolveProduct(ctx context.Context, tenantID, productID string) (*entity.Product, error) {
	query := `SELECT id::text, company_id::text, sku, name FROM products WHERE id::text = $1 AND company_id::text = $2`
	var p entity.Product
	err := r.q.QueryRow(ctx, query, productID, tenantID).Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, wrapErr("resolve product", err)
	}
	return &p, nil
}
