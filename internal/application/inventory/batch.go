package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// MaxBatchLines tope de líneas por documento.
const MaxBatchLines = 100

// BatchRequest documento de varias líneas (venta, recepción de compra) que se aplica completo o no
// se aplica. ReferenceID y Reason se usan en las líneas que no traen los suyos.
type BatchRequest struct {
	ReferenceID string
	Reason      string
	Lines       []MovementRequest
}

type batchLine struct {
	index int
	req   MovementRequest
	delta decimal.Decimal
	sku   string
}

// ApplyMovements aplica todas las líneas en una sola transacción y devuelve los asientos en el
// orden de las líneas. Si una línea falla no se confirma ninguna; el error indica la línea.
//
// Una línea cuya referencia ya fue aplicada devuelve el asiento original y no se vuelve a aplicar,
// así que reenviar el documento completo no duplica nada. Dos líneas con el mismo
// (producto, tipo, referencia) son domain.ErrInvalidInput.
func (e *MovementEngine) ApplyMovements(ctx context.Context, actor Actor, batch BatchRequest) ([]*entity.StockMovement, error) {
	start := time.Now()
	lines, err := e.prepareBatch(ctx, actor, batch)
	if err != nil {
		e.recordBatch(batch.Lines, outcomeOf(err), start)
		return nil, err
	}

	results, created, err := e.applyBatch(ctx, actor, lines)
	if errors.Is(err, domain.ErrDuplicateReference) {
		// Otro envío del mismo documento confirmó primero: la segunda pasada devuelve sus asientos.
		results, created, err = e.applyBatch(ctx, actor, lines)
		if errors.Is(err, domain.ErrDuplicateReference) {
			err = fmt.Errorf("referencia duplicada sin movimiento original: %w", domain.ErrStorageUnavailable)
		}
	}
	if err != nil {
		e.recordBatch(batch.Lines, outcomeOf(err), start)
		return nil, err
	}

	elapsed := time.Since(start)
	for i, m := range results {
		outcome := OutcomeReplayed
		if created[i] {
			outcome = OutcomeApplied
		}
		e.recorder.MovementApplied(m.Kind, outcome, elapsed)
	}

	published := make([]*entity.StockMovement, 0, len(results))
	for i, m := range results {
		if created[i] {
			published = append(published, m)
		}
	}
	if len(published) > 0 {
		if perr := e.publisher.Publish(ctx, published...); perr != nil {
			e.log.Error().
				Err(perr).
				Int("movements", len(published)).
				Msg("no se pudo publicar el documento confirmado")
		}
	}

	e.log.Info().
		Str("tenant_id", actor.TenantID).
		Str("reference_id", batch.ReferenceID).
		Int("lines", len(results)).
		Int("applied", len(published)).
		Msg("documento aplicado")
	return results, nil
}

// prepareBatch valida la forma de todas las líneas y resuelve sus productos antes de tocar el libro.
func (e *MovementEngine) prepareBatch(ctx context.Context, actor Actor, batch BatchRequest) ([]batchLine, error) {
	if actor.TenantID == "" || actor.ActorID == "" {
		return nil, domain.ErrInvalidInput
	}
	if len(batch.Lines) == 0 || len(batch.Lines) > MaxBatchLines {
		return nil, fmt.Errorf("el documento debe tener entre 1 y %d líneas: %w", MaxBatchLines, domain.ErrInvalidInput)
	}

	lines := make([]batchLine, 0, len(batch.Lines))
	seen := make(map[string]int, len(batch.Lines))
	for i, req := range batch.Lines {
		if req.ReferenceID == "" {
			req.ReferenceID = batch.ReferenceID
		}
		if req.Reason == "" {
			req.Reason = batch.Reason
		}
		if req.ProductID == "" {
			return nil, fmt.Errorf("línea %d: %w", i+1, domain.ErrInvalidInput)
		}
		delta, err := inventory.ResolveDelta(req.Kind, req.Quantity)
		if err != nil {
			return nil, fmt.Errorf("línea %d: %w", i+1, err)
		}
		if req.ReferenceID != "" {
			key := req.ProductID + "\x00" + string(req.Kind) + "\x00" + req.ReferenceID
			if prev, ok := seen[key]; ok {
				return nil, fmt.Errorf("líneas %d y %d repiten producto, tipo y referencia: %w", prev+1, i+1, domain.ErrInvalidInput)
			}
			seen[key] = i
		}
		lines = append(lines, batchLine{index: i, req: req, delta: delta})
	}

	products := make(map[string]*entity.Product)
	for i := range lines {
		id := lines[i].req.ProductID
		p, ok := products[id]
		if !ok {
			var err error
			p, err = resolveProduct(ctx, e.catalog, e.retry, e.log, e.recorder, actor.TenantID, id)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil, fmt.Errorf("línea %d: %w", lines[i].index+1, domain.ErrNotFound)
				}
				return nil, fmt.Errorf("resolver producto: %w", err)
			}
			products[id] = p
		}
		lines[i].sku = p.SKU
	}
	return lines, nil
}

// applyBatch una pasada: busca referencias ya aplicadas y confirma el resto en una transacción.
// created[i] indica si results[i] se creó en esta pasada.
func (e *MovementEngine) applyBatch(ctx context.Context, actor Actor, lines []batchLine) ([]*entity.StockMovement, []bool, error) {
	results := make([]*entity.StockMovement, len(lines))
	created := make([]bool, len(lines))

	pending := make([]int, 0, len(lines))
	for i, l := range lines {
		if l.req.ReferenceID != "" {
			prior, err := e.findPrior(ctx, actor.TenantID, l.req)
			if err != nil {
				return nil, nil, err
			}
			if prior != nil {
				e.logReplay(prior)
				results[i] = prior
				continue
			}
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, created, nil
	}

	// Los bloqueos de fila se toman en orden de producto: dos documentos con los mismos productos
	// no pueden esperarse mutuamente.
	sort.SliceStable(pending, func(a, b int) bool {
		return lines[pending[a]].req.ProductID < lines[pending[b]].req.ProductID
	})

	movements := make(map[int]*entity.StockMovement, len(pending))
	for _, i := range pending {
		l := lines[i]
		movements[i] = &entity.StockMovement{
			ID:                  uuid.NewString(),
			TenantID:            actor.TenantID,
			ProductID:           l.req.ProductID,
			SKU:                 l.sku,
			QuantityDelta:       l.delta,
			Kind:                l.req.Kind,
			SourceLocation:      l.req.SourceLocation,
			DestinationLocation: l.req.DestinationLocation,
			Reason:              l.req.Reason,
			ReferenceID:         l.req.ReferenceID,
			ActorID:             actor.ActorID,
		}
	}

	err := retryStorage(ctx, e.retry, "apply_batch", e.log, e.recorder, func() error {
		return e.txRunner.Run(ctx, func(
			movRepo repository.StockMovementRepository,
			projections repository.StockProjectionRepository,
		) error {
			for _, i := range pending {
				m := movements[i]
				proj, err := projections.Adjust(ctx, m.TenantID, m.ProductID, m.QuantityDelta, m.ID)
				if err != nil {
					if errors.Is(err, domain.ErrInsufficientStock) {
						return fmt.Errorf("línea %d (%s): %w", lines[i].index+1, m.ProductID, err)
					}
					return err
				}
				m.CreatedAt = e.now()
				m.BalanceAfter = proj.Quantity
				if err := movRepo.Append(ctx, m); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	for _, i := range pending {
		results[i] = movements[i]
		created[i] = true
	}
	return results, created, nil
}

func (e *MovementEngine) recordBatch(reqs []MovementRequest, outcome string, start time.Time) {
	elapsed := time.Since(start)
	for _, r := range reqs {
		e.recorder.MovementApplied(r.Kind, outcome, elapsed)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientStock):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
