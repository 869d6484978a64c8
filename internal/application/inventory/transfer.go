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

const (
	transferRefPrefix     = "TRF-"
	reversalRefSuffix     = ":reversal"
	defaultCompensationTO = 10 * time.Second
)

// MovementApplier lo que el orquestador necesita del motor.
type MovementApplier interface {
	ApplyMovement(ctx context.Context, actor Actor, req MovementRequest) (*entity.StockMovement, error)
}

// TransferRequest traslado de un producto entre dos ubicaciones del mismo tenant.
type TransferRequest struct {
	ProductID    string
	Quantity     decimal.Decimal
	FromLocation string
	ToLocation   string
	Reason       string
	ReferenceID  string
}

// TransferResult las dos patas registradas.
type TransferResult struct {
	ReferenceID string
	Out         *entity.StockMovement
	In          *entity.StockMovement
}

// TransferOrchestrator registra un traslado como transfer_out + transfer_in con referencia compartida.
// Si la segunda pata falla revierte la primera con un movimiento compensatorio.
type TransferOrchestrator struct {
	engine    MovementApplier
	movements repository.StockMovementRepository
	recorder  Recorder
	log       *logger.Logger

	// CompensationTimeout tope de la compensación, que corre desacoplada de la cancelación del llamador.
	CompensationTimeout time.Duration
}

// NewTransferOrchestrator crea el orquestador.
func NewTransferOrchestrator(engine MovementApplier, movements repository.StockMovementRepository, recorder Recorder, log *logger.Logger) *TransferOrchestrator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TransferOrchestrator{
		engine:              engine,
		movements:           movements,
		recorder:            recorder,
		log:                 log.Component("transfer_orchestrator"),
		CompensationTimeout: defaultCompensationTO,
	}
}

// ApplyTransfer registra ambas patas o ninguna.
//
// Reintentar con la misma ReferenceID devuelve las patas originales. Una referencia cuyo
// traslado ya fue revertido no puede reutilizarse (domain.ErrInvalidInput).
func (o *TransferOrchestrator) ApplyTransfer(ctx context.Context, actor Actor, req TransferRequest) (*TransferResult, error) {
	if actor.TenantID == "" || actor.ActorID == "" || req.ProductID == "" {
		return nil, domain.ErrInvalidInput
	}
	if req.FromLocation == "" || req.ToLocation == "" {
		return nil, domain.ErrInvalidInput
	}
	if !req.Quantity.IsPositive() || req.FromLocation == req.ToLocation {
		return nil, domain.ErrInvalidInput
	}
	if err := inventory.CheckQuantity(req.Quantity); err != nil {
		return nil, err
	}

	ref := req.ReferenceID
	if ref == "" {
		ref = transferRefPrefix + uuid.NewString()
	} else {
		reversed, err := o.movements.FindByReference(ctx, actor.TenantID, req.ProductID, entity.MovementKindTransferIn, ref+reversalRefSuffix)
		if err != nil {
			return nil, fmt.Errorf("verificar reversión previa: %w", err)
		}
		if reversed != nil {
			return nil, fmt.Errorf("traslado %s ya fue revertido: %w", ref, domain.ErrInvalidInput)
		}
	}

	out, err := o.engine.ApplyMovement(ctx, actor, MovementRequest{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Kind:           entity.MovementKindTransferOut,
		SourceLocation: req.FromLocation,
		Reason:         req.Reason,
		ReferenceID:    ref,
	})
	if err != nil {
		return nil, err
	}

	in, err := o.engine.ApplyMovement(ctx, actor, MovementRequest{
		ProductID:           req.ProductID,
		Quantity:            req.Quantity,
		Kind:                entity.MovementKindTransferIn,
		SourceLocation:      req.FromLocation,
		DestinationLocation: req.ToLocation,
		Reason:              req.Reason,
		ReferenceID:         ref,
	})
	if err != nil {
		return nil, o.compensate(ctx, actor, req, ref, out, err)
	}

	return &TransferResult{ReferenceID: ref, Out: out, In: in}, nil
}

// compensate revierte la pata de salida y devuelve el error de la pata de entrada,
// o domain.ErrTransferInconsistent si la reversión también falla.
func (o *TransferOrchestrator) compensate(ctx context.Context, actor Actor, req TransferRequest, ref string, out *entity.StockMovement, legErr error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.CompensationTimeout)
	defer cancel()

	_, err := o.engine.ApplyMovement(cctx, actor, MovementRequest{
		ProductID:           req.ProductID,
		Quantity:            out.QuantityDelta.Abs(),
		Kind:                entity.MovementKindTransferIn,
		DestinationLocation: req.FromLocation,
		Reason:              "reversión de traslado " + ref,
		ReferenceID:         ref + reversalRefSuffix,
	})
	if err != nil {
		o.recorder.TransferCompensated(false)
		o.log.Error().
			Err(err).
			AnErr("leg_error", legErr).
			Str("tenant_id", actor.TenantID).
			Str("product_id", req.ProductID).
			Str("reference_id", ref).
			Str("out_movement_id", out.ID).
			Msg("no se pudo compensar el traslado; requiere reconciliación manual")
		return fmt.Errorf("%w: referencia %s: %w", domain.ErrTransferInconsistent, ref, errors.Join(legErr, err))
	}

	o.recorder.TransferCompensated(true)
	o.log.Warn().
		Err(legErr).
		Str("tenant_id", actor.TenantID).
		Str("product_id", req.ProductID).
		Str("reference_id", ref).
		Msg("traslado revertido por falla en la pata de entrada")
	return legErr
}
