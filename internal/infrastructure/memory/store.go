// Package memory driver de almacenamiento en proceso con la misma semántica transaccional
// que PostgreSQL: escrituras preparadas por transacción, bloqueo por (tenant, producto) tomado
// al ajustar y liberado al confirmar o descartar, e índice único de referencias.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var (
	_ inventory.TxRunner                   = (*Store)(nil)
	_ repository.StockMovementRepository   = (*movementRepo)(nil)
	_ repository.StockProjectionRepository = (*projectionRepo)(nil)
	_ repository.CatalogRepository         = (*Store)(nil)
)

type stockKey struct {
	tenantID  string
	productID string
}

type refKey struct {
	stockKey
	kind        entity.MovementKind
	referenceID string
}

// Store estado completo del driver. El cero no es usable: usar NewStore.
type Store struct {
	mu          sync.RWMutex
	seq         int64
	projections map[stockKey]entity.StockProjection
	movements   []entity.StockMovement
	byRef       map[refKey]int // índice en movements
	products    map[stockKey]entity.Product

	locksMu sync.Mutex
	locks   map[stockKey]chan struct{}

	now func() time.Time
}

// NewStore crea un almacenamiento vacío.
func NewStore() *Store {
	return &Store{
		projections: make(map[stockKey]entity.StockProjection),
		byRef:       make(map[refKey]int),
		products:    make(map[stockKey]entity.Product),
		locks:       make(map[stockKey]chan struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AddProduct registra un producto en el catálogo.
func (s *Store) AddProduct(p entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[stockKey{p.TenantID, p.ID}] = p
}

// ResolveProduct devuelve domain.ErrNotFound si el producto no es del tenant.
func (s *Store) ResolveProduct(ctx context.Context, tenantID, productID string) (*entity.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[stockKey{tenantID, productID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// Movements repositorio del libro fuera de transacción (cada llamada confirma por sí sola).
func (s *Store) Movements() repository.StockMovementRepository {
	return &movementRepo{s: s}
}

// Projections repositorio de proyecciones fuera de transacción.
func (s *Store) Projections() repository.StockProjectionRepository {
	return &projectionRepo{s: s}
}

// Run ejecuta fn en una transacción: nada de lo escrito es visible hasta que fn termina sin error.
func (s *Store) Run(ctx context.Context, fn func(
	movements repository.StockMovementRepository,
	projections repository.StockProjectionRepository,
) error) error {
	t := s.begin()
	defer t.release()

	if err := fn(&movementRepo{s: s, tx: t}, &projectionRepo{s: s, tx: t}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

// autocommit corre una operación suelta como transacción propia.
func (s *Store) autocommit(fn func(t *tx) error) error {
	t := s.begin()
	defer t.release()
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

func (s *Store) lockFor(k stockKey) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[k]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[k] = ch
	}
	return ch
}

// tx escrituras preparadas y bloqueos de fila tomados.
// projections solo se escribe con la fila bloqueada; materialized son filas en cero leídas sin
// bloqueo, que al confirmar se insertan únicamente si la fila sigue sin existir.
type tx struct {
	s            *Store
	held         map[stockKey]chan struct{}
	projections  map[stockKey]entity.StockProjection
	materialized map[stockKey]entity.StockProjection
	appended     []*entity.StockMovement
	done         bool
}

func (s *Store) begin() *tx {
	return &tx{
		s:            s,
		held:         make(map[stockKey]chan struct{}),
		projections:  make(map[stockKey]entity.StockProjection),
		materialized: make(map[stockKey]entity.StockProjection),
	}
}

// lock bloquea la fila hasta el fin de la transacción, respetando la cancelación del contexto.
func (t *tx) lock(ctx context.Context, k stockKey) error {
	if _, ok := t.held[k]; ok {
		return nil
	}
	ch := t.s.lockFor(k)
	select {
	case ch <- struct{}{}:
		t.held[k] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *tx) release() {
	for k, ch := range t.held {
		<-ch
		delete(t.held, k)
	}
}

// projection lectura con las escrituras de la propia transacción encima de lo confirmado.
func (t *tx) projection(k stockKey) (entity.StockProjection, bool) {
	if p, ok := t.projections[k]; ok {
		return p, true
	}
	if p, ok := t.materialized[k]; ok {
		return p, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.projections[k]
	return p, ok
}

func (t *tx) materialize(k stockKey) entity.StockProjection {
	p, ok := t.projection(k)
	if !ok {
		p = entity.StockProjection{TenantID: k.tenantID, ProductID: k.productID, Quantity: decimal.Zero, UpdatedAt: t.s.now()}
		t.materialized[k] = p
	}
	return p
}

func (t *tx) findRef(k refKey) (*entity.StockMovement, bool) {
	for _, m := range t.appended {
		if m.TenantID == k.tenantID && m.ProductID == k.productID && m.Kind == k.kind && m.ReferenceID == k.referenceID {
			cp := *m
			return &cp, true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if i, ok := t.s.byRef[k]; ok {
		cp := t.s.movements[i]
		return &cp, true
	}
	return nil, false
}

func (t *tx) commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	// Una transacción concurrente pudo confirmar la misma referencia.
	for _, m := range t.appended {
		if m.ReferenceID == "" {
			continue
		}
		if _, ok := t.s.byRef[movementRef(m)]; ok {
			return domain.ErrDuplicateReference
		}
	}
	for k, p := range t.projections {
		t.s.projections[k] = p
	}
	// INSERT ... ON CONFLICT DO NOTHING: nunca pisa una fila confirmada por otra transacción.
	for k, p := range t.materialized {
		if _, ok := t.s.projections[k]; !ok {
			t.s.projections[k] = p
		}
	}
	for _, m := range t.appended {
		t.s.seq++
		m.Seq = t.s.seq
		t.s.movements = append(t.s.movements, *m)
		if m.ReferenceID != "" {
			t.s.byRef[movementRef(m)] = len(t.s.movements) - 1
		}
	}
	return nil
}

func movementRef(m *entity.StockMovement) refKey {
	return refKey{stockKey{m.TenantID, m.ProductID}, m.Kind, m.ReferenceID}
}

// ──────────────────────────────────────────────────────────────────────────────
// Libro de movimientos
// ──────────────────────────────────────────────────────────────────────────────

type movementRepo struct {
	s  *Store
	tx *tx // nil = autocommit
}

func (r *movementRepo) run(fn func(t *tx) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	return r.s.autocommit(fn)
}

func (r *movementRepo) Append(ctx context.Context, m *entity.StockMovement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.run(func(t *tx) error {
		if m.ReferenceID != "" {
			if _, ok := t.findRef(movementRef(m)); ok {
				return domain.ErrDuplicateReference
			}
		}
		t.appended = append(t.appended, m)
		return nil
	})
}

func (r *movementRepo) FindByReference(ctx context.Context, tenantID, productID string, kind entity.MovementKind, referenceID string) (*entity.StockMovement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var found *entity.StockMovement
	err := r.run(func(t *tx) error {
		found, _ = t.findRef(refKey{stockKey{tenantID, productID}, kind, referenceID})
		return nil
	})
	return found, err
}

func (r *movementRepo) SumDeltas(ctx context.Context, tenantID, productID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	err := r.run(func(t *tx) error {
		for _, m := range t.appended {
			if m.TenantID == tenantID && m.ProductID == productID {
				sum = sum.Add(m.QuantityDelta)
			}
		}
		r.s.mu.RLock()
		defer r.s.mu.RUnlock()
		for _, m := range r.s.movements {
			if m.TenantID == tenantID && m.ProductID == productID {
				sum = sum.Add(m.QuantityDelta)
			}
		}
		return nil
	})
	return sum, err
}

func (r *movementRepo) List(ctx context.Context, f repository.MovementFilter, limit, offset int) ([]*entity.StockMovement, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.s.mu.RLock()
	matched := make([]entity.StockMovement, 0)
	for _, m := range r.s.movements {
		if matches(m, f) {
			matched = append(matched, m)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Seq > matched[j].Seq
	})

	total := len(matched)
	if offset >= total {
		return []*entity.StockMovement{}, total, nil
	}
	end := min(offset+limit, total)
	page := make([]*entity.StockMovement, 0, end-offset)
	for i := offset; i < end; i++ {
		m := matched[i]
		page = append(page, &m)
	}
	return page, total, nil
}

func (r *movementRepo) ListProductIDs(ctx context.Context, tenantID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, m := range r.s.movements {
		if m.TenantID != tenantID {
			continue
		}
		if _, ok := seen[m.ProductID]; !ok {
			seen[m.ProductID] = struct{}{}
			ids = append(ids, m.ProductID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func matches(m entity.StockMovement, f repository.MovementFilter) bool {
	switch {
	case m.TenantID != f.TenantID:
		return false
	case f.ProductID != "" && m.ProductID != f.ProductID:
		return false
	case f.Kind != "" && m.Kind != f.Kind:
		return false
	case f.SKU != "" && m.SKU != f.SKU:
		return false
	case f.From != nil && m.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && m.CreatedAt.After(*f.To):
		return false
	}
	return true
}

// ──────────────────────────────────────────────────────────────────────────────
// Proyección de stock
// ──────────────────────────────────────────────────────────────────────────────

type projectionRepo struct {
	s  *Store
	tx *tx
}

func (r *projectionRepo) run(fn func(t *tx) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	return r.s.autocommit(fn)
}

func (r *projectionRepo) Get(ctx context.Context, tenantID, productID string) (*entity.StockProjection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p entity.StockProjection
	err := r.run(func(t *tx) error {
		p = t.materialize(stockKey{tenantID, productID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectionRepo) Adjust(ctx context.Context, tenantID, productID string, delta decimal.Decimal, movementID string) (*entity.StockProjection, error) {
	var p entity.StockProjection
	err := r.run(func(t *tx) error {
		k := stockKey{tenantID, productID}
		if err := t.lock(ctx, k); err != nil {
			return err
		}
		cur := t.materialize(k)
		next := cur.Quantity.Add(delta)
		if next.IsNegative() {
			return domain.ErrInsufficientStock
		}
		p = entity.StockProjection{
			TenantID:       tenantID,
			ProductID:      productID,
			Quantity:       next,
			UpdatedAt:      r.s.now(),
			LastMovementID: movementID,
		}
		t.projections[k] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectionRepo) GetForUpdate(ctx context.Context, tenantID, productID string) (*entity.StockProjection, error) {
	var p entity.StockProjection
	err := r.run(func(t *tx) error {
		k := stockKey{tenantID, productID}
		if err := t.lock(ctx, k); err != nil {
			return err
		}
		p = t.materialize(k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectionRepo) Overwrite(ctx context.Context, tenantID, productID string, quantity decimal.Decimal) (*entity.StockProjection, error) {
	var p entity.StockProjection
	err := r.run(func(t *tx) error {
		k := stockKey{tenantID, productID}
		if err := t.lock(ctx, k); err != nil {
			return err
		}
		p = t.materialize(k)
		p.Quantity = quantity
		p.UpdatedAt = r.s.now()
		t.projections[k] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectionRepo) ListProductIDs(ctx context.Context, tenantID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]string, 0)
	for k := range r.s.projections {
		if k.tenantID == tenantID {
			ids = append(ids, k.productID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
