package inventory_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/jhoicas/inventario-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testTenant   = "tenant-a"
	testActor    = "user-1"
	testProduct  = "prod-p"
	testSKU      = "SKU-P"
	otherProduct = "prod-q"
	otherTenant  = "tenant-b"
)

var actor = inventory.Actor{TenantID: testTenant, ActorID: testActor}

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fastRetry reintentos sin esperas largas.
func fastRetry(attempts int) inventory.RetryPolicy {
	return inventory.RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

// flakyRunner falla las primeras `failures` transacciones con un error transitorio.
type flakyRunner struct {
	inner    inventory.TxRunner
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *flakyRunner) Run(ctx context.Context, fn func(repository.StockMovementRepository, repository.StockProjectionRepository) error) error {
	r.mu.Lock()
	r.calls++
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return fmt.Errorf("commit transaction: %w", domain.ErrStorageUnavailable)
	}
	return r.inner.Run(ctx, fn)
}

// flakyCatalog el catálogo falla las primeras `failures` consultas con un error transitorio.
type flakyCatalog struct {
	inner    repository.CatalogRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *flakyCatalog) ResolveProduct(ctx context.Context, tenantID, productID string) (*entity.Product, error) {
	c.mu.Lock()
	c.calls++
	fail := c.failures > 0
	if fail {
		c.failures--
	}
	c.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("resolve product: %w", domain.ErrStorageUnavailable)
	}
	return c.inner.ResolveProduct(ctx, tenantID, productID)
}

// countingRecorder acumula lo que el motor reporta.
type countingRecorder struct {
	mu          sync.Mutex
	outcomes    map[string]int
	retries     int
	drifts      int
	compensated map[bool]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: map[string]int{}, compensated: map[bool]int{}}
}

func (r *countingRecorder) MovementApplied(_ entity.MovementKind, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *countingRecorder) StorageRetry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func (r *countingRecorder) ProjectionDrift(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drifts++
}

func (r *countingRecorder) TransferCompensated(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensated[ok]++
}

// capturePublisher guarda los movimientos publicados.
type capturePublisher struct {
	mu        sync.Mutex
	published []*entity.StockMovement
	err       error
}

func (p *capturePublisher) Publish(_ context.Context, movements ...*entity.StockMovement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, movements...)
	return nil
}

// fixture motor, orquestador y reconciliación sobre el driver en memoria.
type fixture struct {
	store     *memory.Store
	runner    *flakyRunner
	recorder  *countingRecorder
	publisher *capturePublisher
	logs      *bytes.Buffer
	log       *logger.Logger
	engine    *inventory.MovementEngine
	transfers *inventory.TransferOrchestrator
	recon     *inventory.ReconciliationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.AddProduct(entity.Product{ID: testProduct, TenantID: testTenant, SKU: testSKU, Name: "Producto P"})
	store.AddProduct(entity.Product{ID: otherProduct, TenantID: testTenant, SKU: "SKU-Q", Name: "Producto Q"})

	f := &fixture{
		store:     store,
		runner:    &flakyRunner{inner: store},
		recorder:  newCountingRecorder(),
		publisher: &capturePublisher{},
		logs:      &bytes.Buffer{},
	}
	f.log = logger.NewWithWriter(syncWriter{buf: f.logs}, "debug")
	f.engine = inventory.NewMovementEngine(f.runner, store.Movements(), store, f.publisher, f.recorder, fastRetry(4), f.log)
	f.transfers = inventory.NewTransferOrchestrator(f.engine, store.Movements(), f.recorder, f.log)
	f.recon = inventory.NewReconciliationService(f.runner, store.Movements(), store.Projections(), store,
		f.recorder, fastRetry(4), inventory.DefaultPageLimits(), f.log)
	return f
}

func (f *fixture) apply(t *testing.T, kind entity.MovementKind, n int64, ref string) *entity.StockMovement {
	t.Helper()
	m, err := f.engine.ApplyMovement(context.Background(), actor, inventory.MovementRequest{
		ProductID:   testProduct,
		Quantity:    qty(n),
		Kind:        kind,
		ReferenceID: ref,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) stock(t *testing.T) decimal.Decimal {
	t.Helper()
	p, err := f.recon.GetStock(context.Background(), testTenant, testProduct)
	require.NoError(t, err)
	return p.Quantity
}

func (f *fixture) ledgerSum(t *testing.T) decimal.Decimal {
	t.Helper()
	sum, err := f.store.Movements().SumDeltas(context.Background(), testTenant, testProduct)
	require.NoError(t, err)
	return sum
}

func (f *fixture) ledgerCount(t *testing.T) int {
	t.Helper()
	_, total, err := f.store.Movements().List(context.Background(), repository.MovementFilter{TenantID: testTenant, ProductID: testProduct}, 1, 0)
	require.NoError(t, err)
	return total
}

// syncWriter el logger se usa desde varias goroutines en los tests de concurrencia.
type syncWriter struct {
	buf *bytes.Buffer
}

var logMu sync.Mutex

func (w syncWriter) Write(p []byte) (int, error) {
	logMu.Lock()
	defer logMu.Unlock()
	return w.buf.Write(p)
}

func (f *fixture) logOutput() string {
	logMu.Lock()
	defer logMu.Unlock()
	return f.logs.String()
}
