package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
	"github.com/shopspring/decimal"
)

// MovementRequest entrada del motor de movimientos.
// Quantity es sin signo (> 0) salvo en adjustment, donde el llamador envía el delta con signo.
type MovementRequest struct {
	ProductID           string
	Quantity            decimal.Decimal
	Kind                entity.MovementKind
	SourceLocation      string
	DestinationLocation string
	Reason              string
	ReferenceID         string
}

// MovementEngine único escritor de la proyección de stock: valida, ajusta la proyección de forma
// atómica (compare-and-adjust del almacenamiento) y agrega el asiento al libro en la misma transacción.
// No mantiene bloqueos en proceso: la serialización por (tenant, producto) la da el almacenamiento.
type MovementEngine struct {
	txRunner  TxRunner
	movements repository.StockMovementRepository
	catalog   repository.CatalogRepository
	publisher MovementPublisher
	recorder  Recorder
	retry     RetryPolicy
	log       *logger.Logger
	now       func() time.Time
}

// NewMovementEngine construye el motor. publisher y recorder pueden ser nil.
func NewMovementEngine(
	txRunner TxRunner,
	movements repository.StockMovementRepository,
	catalog repository.CatalogRepository,
	publisher MovementPublisher,
	recorder Recorder,
	retry RetryPolicy,
	log *logger.Logger,
) *MovementEngine {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &MovementEngine{
		txRunner:  txRunner,
		movements: movements,
		catalog:   catalog,
		publisher: publisher,
		recorder:  recorder,
		retry:     retry,
		log:       log.Component("movement_engine"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ApplyMovement aplica un movimiento y devuelve el asiento creado.
//
// Errores: domain.ErrInvalidInput, domain.ErrNotFound, domain.ErrInsufficientStock,
// domain.ErrStorageUnavailable (tras agotar reintentos) o el error del contexto.
// Si ya existe un movimiento con el mismo (tenant, producto, tipo, referencia) se devuelve
// ese movimiento original sin aplicar nada.
func (e *MovementEngine) ApplyMovement(ctx context.Context, actor Actor, req MovementRequest) (*entity.StockMovement, error) {
	start := time.Now()
	mov, outcome, err := e.apply(ctx, actor, req)
	e.recorder.MovementApplied(req.Kind, outcome, time.Since(start))
	return mov, err
}

func (e *MovementEngine) apply(ctx context.Context, actor Actor, req MovementRequest) (*entity.StockMovement, string, error) {
	if actor.TenantID == "" || actor.ActorID == "" || req.ProductID == "" {
		return nil, OutcomeRejected, domain.ErrInvalidInput
	}
	delta, err := inventory.ResolveDelta(req.Kind, req.Quantity)
	if err != nil {
		return nil, OutcomeRejected, err
	}

	product, err := resolveProduct(ctx, e.catalog, e.retry, e.log, e.recorder, actor.TenantID, req.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, OutcomeRejected, domain.ErrNotFound
		}
		return nil, OutcomeFailed, fmt.Errorf("resolver producto: %w", err)
	}

	if req.ReferenceID != "" {
		prior, err := e.findPrior(ctx, actor.TenantID, req)
		if err != nil {
			return nil, OutcomeFailed, err
		}
		if prior != nil {
			e.logReplay(prior)
			return prior, OutcomeReplayed, nil
		}
	}

	movement := &entity.StockMovement{
		ID:                  uuid.NewString(),
		TenantID:            actor.TenantID,
		ProductID:           product.ID,
		SKU:                 product.SKU,
		QuantityDelta:       delta,
		Kind:                req.Kind,
		SourceLocation:      req.SourceLocation,
		DestinationLocation: req.DestinationLocation,
		Reason:              req.Reason,
		ReferenceID:         req.ReferenceID,
		ActorID:             actor.ActorID,
	}

	err = retryStorage(ctx, e.retry, "apply_movement", e.log, e.recorder, func() error {
		return e.txRunner.Run(ctx, func(
			movements repository.StockMovementRepository,
			projections repository.StockProjectionRepository,
		) error {
			proj, err := projections.Adjust(ctx, movement.TenantID, movement.ProductID, delta, movement.ID)
			if err != nil {
				return err
			}
			// Con la fila ya bloqueada, created_at sigue el orden de confirmación del producto.
			movement.CreatedAt = e.now()
			movement.BalanceAfter = proj.Quantity
			return movements.Append(ctx, movement)
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateReference):
		// Otra petición con la misma referencia confirmó primero.
		prior, ferr := e.findPrior(ctx, actor.TenantID, req)
		if ferr != nil {
			return nil, OutcomeFailed, ferr
		}
		if prior == nil {
			return nil, OutcomeFailed, fmt.Errorf("referencia duplicada sin movimiento original: %w", domain.ErrStorageUnavailable)
		}
		e.logReplay(prior)
		return prior, OutcomeReplayed, nil
	case errors.Is(err, domain.ErrInsufficientStock):
		return nil, OutcomeRejected, domain.ErrInsufficientStock
	default:
		return nil, OutcomeFailed, err
	}

	if perr := e.publisher.Publish(ctx, movement); perr != nil {
		e.log.Error().
			Err(perr).
			Str("movement_id", movement.ID).
			Msg("no se pudo publicar el movimiento confirmado")
	}

	e.log.Info().
		Str("tenant_id", movement.TenantID).
		Str("product_id", movement.ProductID).
		Str("kind", string(movement.Kind)).
		Str("delta", movement.QuantityDelta.String()).
		Str("balance", movement.BalanceAfter.String()).
		Str("movement_id", movement.ID).
		Msg("movimiento aplicado")
	return movement, OutcomeApplied, nil
}

func (e *MovementEngine) findPrior(ctx context.Context, tenantID string, req MovementRequest) (*entity.StockMovement, error) {
	var prior *entity.StockMovement
	err := retryStorage(ctx, e.retry, "find_reference", e.log, e.recorder, func() error {
		var err error
		prior, err = e.movements.FindByReference(ctx, tenantID, req.ProductID, req.Kind, req.ReferenceID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("buscar referencia: %w", err)
	}
	return prior, nil
}

func (e *MovementEngine) logReplay(prior *entity.StockMovement) {
	e.log.Info().
		Str("tenant_id", prior.TenantID).
		Str("product_id", prior.ProductID).
		Str("kind", string(prior.Kind)).
		Str("reference_id", prior.ReferenceID).
		Str("movement_id", prior.ID).
		Msg("referencia ya aplicada, se devuelve el movimiento original")
}

// resolveProduct consulta el catálogo con la misma política de reintentos del almacenamiento.
func resolveProduct(ctx context.Context, catalog repository.CatalogRepository, policy RetryPolicy, log *logger.Logger, rec Recorder, tenantID, productID string) (*entity.Product, error) {
	var product *entity.Product
	err := retryStorage(ctx, policy, "resolve_product", log, rec, func() error {
		var err error
		product, err = catalog.ResolveProduct(ctx, tenantID, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}
