package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.StockMovementRepository = (*StockMovementRepo)(nil)

const movementColumns = `id, seq, tenant_id, product_id, sku, quantity_delta, balance_after, kind,
	source_location, destination_location, reason, reference_id, actor_id, created_at`

// StockMovementRepo libro de movimientos sobre PostgreSQL (usable con pool o tx).
type StockMovementRepo struct {
	q Querier
}

// NewStockMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockMovementRepository(q Querier) *StockMovementRepo {
	return &StockMovementRepo{q: q}
}

// Append inserta el movimiento y carga el seq asignado por la secuencia.
func (r *StockMovementRepo) Append(ctx context.Context, m *entity.StockMovement) error {
	query := `
		INSERT INTO stock_movements (id, tenant_id, product_id, sku, quantity_delta, balance_after, kind,
			source_location, destination_location, reason, reference_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq`
	err := r.q.QueryRow(ctx, query,
		m.ID, m.TenantID, m.ProductID, m.SKU, m.QuantityDelta, m.BalanceAfter, string(m.Kind),
		nullIfEmpty(m.SourceLocation), nullIfEmpty(m.DestinationLocation), nullIfEmpty(m.Reason),
		nullIfEmpty(m.ReferenceID), m.ActorID, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return wrapErr("append movement", err)
	}
	return nil
}

// FindByReference devuelve (nil, nil) si no hay movimiento con esa referencia.
func (r *StockMovementRepo) FindByReference(ctx context.Context, tenantID, productID string, kind entity.MovementKind, referenceID string) (*entity.StockMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM stock_movements
		WHERE tenant_id = $1 AND product_id = $2 AND kind = $3 AND reference_id = $4`
	m, err := scanMovement(r.q.QueryRow(ctx, query, tenantID, productID, string(kind), referenceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("find movement by reference", err)
	}
	return m, nil
}

// SumDeltas suma todos los deltas del producto; cero si no hay movimientos.
func (r *StockMovementRepo) SumDeltas(ctx context.Context, tenantID, productID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(quantity_delta), 0)
		FROM stock_movements WHERE tenant_id = $1 AND product_id = $2`
	var sum decimal.Decimal
	if err := r.q.QueryRow(ctx, query, tenantID, productID).Scan(&sum); err != nil {
		return decimal.Zero, wrapErr("sum deltas", err)
	}
	return sum, nil
}

// List historial filtrado, created_at DESC con seq como desempate, y total sin paginar.
func (r *StockMovementRepo) List(ctx context.Context, f repository.MovementFilter, limit, offset int) ([]*entity.StockMovement, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{f.TenantID}
	pos := 2
	if f.ProductID != "" {
		where = append(where, fmt.Sprintf("product_id = $%d", pos))
		args = append(args, f.ProductID)
		pos++
	}
	if f.Kind != "" {
		where = append(where, fmt.Sprintf("kind = $%d", pos))
		args = append(args, string(f.Kind))
		pos++
	}
	if f.SKU != "" {
		where = append(where, fmt.Sprintf("sku = $%d", pos))
		args = append(args, f.SKU)
		pos++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", pos))
		args = append(args, *f.From)
		pos++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", pos))
		args = append(args, *f.To)
		pos++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr("count movements", err)
	}

	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE ` + cond +
		fmt.Sprintf(" ORDER BY created_at DESC, seq DESC LIMIT $%d OFFSET $%d", pos, pos+1)
	args = append(args, limit, offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapErr("list movements", err)
	}
	defer rows.Close()
	list := make([]*entity.StockMovement, 0, limit)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan movement: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr("list movements", err)
	}
	return list, total, nil
}

// ListProductIDs productos con al menos un movimiento en el tenant.
func (r *StockMovementRepo) ListProductIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT DISTINCT product_id FROM stock_movements WHERE tenant_id = $1 ORDER BY product_id`, tenantID)
	if err != nil {
		return nil, wrapErr("list ledger products", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapErr("list ledger products", err)
	}
	return ids, nil
}

func scanMovement(row pgx.Row) (*entity.StockMovement, error) {
	var (
		m                         entity.StockMovement
		kind                      string
		source, dest, reason, ref *string
	)
	if err := row.Scan(&m.ID, &m.Seq, &m.TenantID, &m.ProductID, &m.SKU, &m.QuantityDelta, &m.BalanceAfter,
		&kind, &source, &dest, &reason, &ref, &m.ActorID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Kind = entity.MovementKind(kind)
	m.SourceLocation = deref(source)
	m.DestinationLocation = deref(dest)
	m.Reason = deref(reason)
	m.ReferenceID = deref(ref)
	return &m, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
