package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.StockProjectionRepository = (*StockProjectionRepo)(nil)

// StockProjectionRepo proyección de stock sobre PostgreSQL (usable con pool o tx).
type StockProjectionRepo struct {
	q Querier
}

// NewStockProjectionRepository construye el adaptador de stock. Pasar pool o tx (Querier).
func NewStockProjectionRepository(q Querier) *StockProjectionRepo {
	return &StockProjectionRepo{q: q}
}

// Get obtiene la proyección, creando la fila en cero si el producto nunca se referenció.
func (r *StockProjectionRepo) Get(ctx context.Context, tenantID, productID string) (*entity.StockProjection, error) {
	if err := r.materialize(ctx, tenantID, productID); err != nil {
		return nil, err
	}
	query := `
		SELECT tenant_id, product_id, quantity, updated_at, last_movement_id
		FROM stock_projections WHERE tenant_id = $1 AND product_id = $2`
	p, err := scanProjection(r.q.QueryRow(ctx, query, tenantID, productID))
	if err != nil {
		return nil, wrapErr("get stock", err)
	}
	return p, nil
}

// Adjust compare-and-adjust atómico: el UPDATE solo aplica si la cantidad resultante no es negativa.
// El UPDATE toma el bloqueo de la fila, así que dos ajustes concurrentes del mismo producto se
// serializan y el segundo evalúa la condición contra la cantidad ya confirmada.
func (r *StockProjectionRepo) Adjust(ctx context.Context, tenantID, productID string, delta decimal.Decimal, movementID string) (*entity.StockProjection, error) {
	if err := r.materialize(ctx, tenantID, productID); err != nil {
		return nil, err
	}
	query := `
		UPDATE stock_projections
		SET quantity = quantity + $3, updated_at = now(), last_movement_id = $4
		WHERE tenant_id = $1 AND product_id = $2 AND quantity + $3 >= 0
		RETURNING tenant_id, product_id, quantity, updated_at, last_movement_id`
	p, err := scanProjection(r.q.QueryRow(ctx, query, tenantID, productID, delta, movementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInsufficientStock
		}
		return nil, wrapErr("adjust stock", err)
	}
	return p, nil
}

// GetForUpdate obtiene la proyección y bloquea la fila (SELECT FOR UPDATE).
func (r *StockProjectionRepo) GetForUpdate(ctx context.Context, tenantID, productID string) (*entity.StockProjection, error) {
	if err := r.materialize(ctx, tenantID, productID); err != nil {
		return nil, err
	}
	query := `
		SELECT tenant_id, product_id, quantity, updated_at, last_movement_id
		FROM stock_projections WHERE tenant_id = $1 AND product_id = $2
		FOR UPDATE`
	p, err := scanProjection(r.q.QueryRow(ctx, query, tenantID, productID))
	if err != nil {
		return nil, wrapErr("get stock for update", err)
	}
	return p, nil
}

// Overwrite fija la cantidad (reconciliación).
func (r *StockProjectionRepo) Overwrite(ctx context.Context, tenantID, productID string, quantity decimal.Decimal) (*entity.StockProjection, error) {
	query := `
		INSERT INTO stock_projections (tenant_id, product_id, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
		RETURNING tenant_id, product_id, quantity, updated_at, last_movement_id`
	p, err := scanProjection(r.q.QueryRow(ctx, query, tenantID, productID, quantity))
	if err != nil {
		return nil, wrapErr("overwrite stock", err)
	}
	return p, nil
}

// ListProductIDs productos con proyección en el tenant.
func (r *StockProjectionRepo) ListProductIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT product_id FROM stock_projections WHERE tenant_id = $1 ORDER BY product_id`, tenantID)
	if err != nil {
		return nil, wrapErr("list stock products", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapErr("list stock products", err)
	}
	return ids, nil
}

func (r *StockProjectionRepo) materialize(ctx context.Context, tenantID, productID string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO stock_projections (tenant_id, product_id, quantity, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (tenant_id, product_id) DO NOTHING`, tenantID, productID)
	if err != nil {
		return wrapErr("materialize stock", err)
	}
	return nil
}

func scanProjection(row pgx.Row) (*entity.StockProjection, error) {
	var (
		p         entity.StockProjection
		updatedAt time.Time
		lastMov   *string
	)
	if err := row.Scan(&p.TenantID, &p.ProductID, &p.Quantity, &updatedAt, &lastMov); err != nil {
		return nil, err
	}
	p.UpdatedAt = updatedAt
	p.LastMovementID = deref(lastMov)
	return &p, nil
}
