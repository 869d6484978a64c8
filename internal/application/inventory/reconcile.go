package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// HardMaxPageSize tope absoluto del listado, sin importar la configuración.
const HardMaxPageSize = 100

// PageLimits límites de paginación del listado.
type PageLimits struct {
	Default int
	Max     int
}

// DefaultPageLimits 50 por defecto, 100 máximo.
func DefaultPageLimits() PageLimits {
	return PageLimits{Default: 50, Max: HardMaxPageSize}
}

// MovementQuery filtros opcionales del historial.
type MovementQuery struct {
	ProductID string
	Kind      entity.MovementKind
	SKU       string
	From      *time.Time
	To        *time.Time
}

// MovementPage página del historial. Total cuenta todos los movimientos que cumplen el filtro.
type MovementPage struct {
	Items  []*entity.StockMovement
	Total  int
	Limit  int
	Offset int
}

// Recomputation resultado de recalcular una proyección.
type Recomputation struct {
	TenantID  string
	ProductID string
	Previous  decimal.Decimal
	Quantity  decimal.Decimal
}

// Drifted indica si la proyección cacheada difería del libro.
func (r Recomputation) Drifted() bool {
	return !r.Previous.Equal(r.Quantity)
}

// TenantReport resultado de reconciliar todas las proyecciones de un tenant.
type TenantReport struct {
	TenantID string
	Checked  int
	Drifts   []Recomputation
}

// ReconciliationService lectura de proyecciones, recálculo desde el libro e historial paginado.
type ReconciliationService struct {
	txRunner  TxRunner
	movements repository.StockMovementRepository
	stock     repository.StockProjectionRepository
	catalog   repository.CatalogRepository
	recorder  Recorder
	retry     RetryPolicy
	limits    PageLimits
	log       *logger.Logger
}

// NewReconciliationService crea el servicio. limits fuera de rango se corrigen a los valores por defecto.
func NewReconciliationService(
	txRunner TxRunner,
	movements repository.StockMovementRepository,
	stock repository.StockProjectionRepository,
	catalog repository.CatalogRepository,
	recorder Recorder,
	retry RetryPolicy,
	limits PageLimits,
	log *logger.Logger,
) *ReconciliationService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if limits.Max <= 0 || limits.Max > HardMaxPageSize {
		limits.Max = HardMaxPageSize
	}
	if limits.Default <= 0 || limits.Default > limits.Max {
		limits.Default = min(DefaultPageLimits().Default, limits.Max)
	}
	return &ReconciliationService{
		txRunner:  txRunner,
		movements: movements,
		stock:     stock,
		catalog:   catalog,
		recorder:  recorder,
		retry:     retry,
		limits:    limits,
		log:       log.Component("reconciliation"),
	}
}

// GetStock devuelve la proyección; un producto sin movimientos se materializa en cero.
func (s *ReconciliationService) GetStock(ctx context.Context, tenantID, productID string) (*entity.StockProjection, error) {
	if tenantID == "" || productID == "" {
		return nil, domain.ErrInvalidInput
	}
	if _, err := resolveProduct(ctx, s.catalog, s.retry, s.log, s.recorder, tenantID, productID); err != nil {
		return nil, err
	}
	var proj *entity.StockProjection
	err := retryStorage(ctx, s.retry, "get_stock", s.log, s.recorder, func() error {
		var err error
		proj, err = s.stock.Get(ctx, tenantID, productID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("leer proyección: %w", err)
	}
	return proj, nil
}

// Recompute suma el libro y sobrescribe la proyección. Una diferencia con el valor cacheado
// se registra como advertencia.
func (s *ReconciliationService) Recompute(ctx context.Context, tenantID, productID string) (*Recomputation, error) {
	if tenantID == "" || productID == "" {
		return nil, domain.ErrInvalidInput
	}
	if _, err := resolveProduct(ctx, s.catalog, s.retry, s.log, s.recorder, tenantID, productID); err != nil {
		return nil, err
	}
	return s.recompute(ctx, tenantID, productID)
}

func (s *ReconciliationService) recompute(ctx context.Context, tenantID, productID string) (*Recomputation, error) {
	var result Recomputation
	err := retryStorage(ctx, s.retry, "recompute", s.log, s.recorder, func() error {
		return s.txRunner.Run(ctx, func(
			movements repository.StockMovementRepository,
			projections repository.StockProjectionRepository,
		) error {
			// El bloqueo de la fila serializa el recálculo con los movimientos del mismo producto.
			current, err := projections.GetForUpdate(ctx, tenantID, productID)
			if err != nil {
				return err
			}
			sum, err := movements.SumDeltas(ctx, tenantID, productID)
			if err != nil {
				return err
			}
			if sum.IsNegative() {
				return fmt.Errorf("el libro de %s/%s suma %s: %w", tenantID, productID, sum, errNegativeLedger)
			}
			if _, err := projections.Overwrite(ctx, tenantID, productID, sum); err != nil {
				return err
			}
			result = Recomputation{TenantID: tenantID, ProductID: productID, Previous: current.Quantity, Quantity: sum}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, errNegativeLedger) {
			s.log.Error().Err(err).Str("tenant_id", tenantID).Str("product_id", productID).
				Msg("libro con saldo negativo, la proyección no se modifica")
		}
		return nil, fmt.Errorf("recalcular proyección: %w", err)
	}

	if result.Drifted() {
		s.recorder.ProjectionDrift(tenantID)
		s.log.Warn().
			Str("tenant_id", tenantID).
			Str("product_id", productID).
			Str("cached", result.Previous.String()).
			Str("recomputed", result.Quantity.String()).
			Str("difference", result.Quantity.Sub(result.Previous).String()).
			Msg("discrepancia entre proyección y libro de movimientos")
	}
	return &result, nil
}

var errNegativeLedger = errors.New("suma del libro negativa")

// ReconcileTenant recalcula todas las proyecciones del tenant (las que existen y las que el libro
// referencia) con a lo sumo concurrency recálculos en paralelo.
func (s *ReconciliationService) ReconcileTenant(ctx context.Context, tenantID string, concurrency int) (*TenantReport, error) {
	if tenantID == "" {
		return nil, domain.ErrInvalidInput
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var fromStock, fromLedger []string
	err := retryStorage(ctx, s.retry, "list_products", s.log, s.recorder, func() error {
		var err error
		if fromStock, err = s.stock.ListProductIDs(ctx, tenantID); err != nil {
			return err
		}
		fromLedger, err = s.movements.ListProductIDs(ctx, tenantID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listar productos: %w", err)
	}
	ids := unionSorted(fromStock, fromLedger)

	report := &TenantReport{TenantID: tenantID, Checked: len(ids)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			r, err := s.recompute(gctx, tenantID, id)
			if err != nil {
				return fmt.Errorf("producto %s: %w", id, err)
			}
			if r.Drifted() {
				mu.Lock()
				report.Drifts = append(report.Drifts, *r)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(report.Drifts, func(i, j int) bool { return report.Drifts[i].ProductID < report.Drifts[j].ProductID })

	s.log.Info().
		Str("tenant_id", tenantID).
		Int("checked", report.Checked).
		Int("drifted", len(report.Drifts)).
		Msg("reconciliación de tenant finalizada")
	return report, nil
}

// ListMovements historial filtrado, CreatedAt descendente. limit 0 usa el valor por defecto;
// un limit mayor al máximo se recorta.
func (s *ReconciliationService) ListMovements(ctx context.Context, tenantID string, q MovementQuery, limit, offset int) (*MovementPage, error) {
	if tenantID == "" || offset < 0 || limit < 0 {
		return nil, domain.ErrInvalidInput
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, domain.ErrInvalidInput
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, domain.ErrInvalidInput
	}
	if limit == 0 {
		limit = s.limits.Default
	}
	if limit > s.limits.Max {
		limit = s.limits.Max
	}

	filter := repository.MovementFilter{
		TenantID:  tenantID,
		ProductID: q.ProductID,
		Kind:      q.Kind,
		SKU:       q.SKU,
		From:      q.From,
		To:        q.To,
	}
	var (
		items []*entity.StockMovement
		total int
	)
	err := retryStorage(ctx, s.retry, "list_movements", s.log, s.recorder, func() error {
		var err error
		items, total, err = s.movements.List(ctx, filter, limit, offset)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listar movimientos: %w", err)
	}
	return &MovementPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// StockCard datos de la tarjeta de stock: producto, saldo actual y movimientos del período.
type StockCard struct {
	Product     *entity.Product
	Stock       *entity.StockProjection
	Movements   []*entity.StockMovement
	Total       int // movimientos del período; puede superar len(Movements)
	From        *time.Time
	To          *time.Time
	GeneratedAt time.Time
}

// BuildStockCard reúne los datos de la tarjeta de stock, con a lo sumo HardMaxPageSize movimientos
// (los más recientes).
func (s *ReconciliationService) BuildStockCard(ctx context.Context, tenantID, productID string, from, to *time.Time) (*StockCard, error) {
	if tenantID == "" || productID == "" {
		return nil, domain.ErrInvalidInput
	}
	product, err := resolveProduct(ctx, s.catalog, s.retry, s.log, s.recorder, tenantID, productID)
	if err != nil {
		return nil, err
	}
	stock, err := s.GetStock(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	page, err := s.ListMovements(ctx, tenantID, MovementQuery{ProductID: productID, From: from, To: to}, HardMaxPageSize, 0)
	if err != nil {
		return nil, err
	}
	return &StockCard{
		Product:     product,
		Stock:       stock,
		Movements:   page.Items,
		Total:       page.Total,
		From:        from,
		To:          to,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
