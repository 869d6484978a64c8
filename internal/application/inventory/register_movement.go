package inventory

import (
	"context"

	"github.com/jhoicas/inventario-ledger/internal/application/dto"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
)

// RegisterMovementFromRequest adapta el request HTTP a ApplyMovement y devuelve el asiento como DTO.
func (e *MovementEngine) RegisterMovementFromRequest(ctx context.Context, actor Actor, in dto.RegisterMovementRequest) (*dto.MovementDTO, error) {
	mov, err := e.ApplyMovement(ctx, actor, MovementRequest{
		ProductID:           in.ProductID,
		Quantity:            in.Quantity,
		Kind:                entity.MovementKind(in.Type),
		SourceLocation:      in.SourceLocation,
		DestinationLocation: in.DestinationLocation,
		Reason:              in.Reason,
		ReferenceID:         in.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	out := ToMovementDTO(mov)
	return &out, nil
}

// RegisterMovementsFromRequest adapta el documento de varias líneas a ApplyMovements.
func (e *MovementEngine) RegisterMovementsFromRequest(ctx context.Context, actor Actor, in dto.BatchMovementRequest) (*dto.BatchMovementResponse, error) {
	batch := BatchRequest{
		ReferenceID: in.ReferenceID,
		Reason:      in.Reason,
		Lines:       make([]MovementRequest, 0, len(in.Lines)),
	}
	for _, l := range in.Lines {
		batch.Lines = append(batch.Lines, MovementRequest{
			ProductID:           l.ProductID,
			Quantity:            l.Quantity,
			Kind:                entity.MovementKind(l.Type),
			SourceLocation:      l.SourceLocation,
			DestinationLocation: l.DestinationLocation,
			Reason:              l.Reason,
			ReferenceID:         l.ReferenceID,
		})
	}
	movs, err := e.ApplyMovements(ctx, actor, batch)
	if err != nil {
		return nil, err
	}
	out := &dto.BatchMovementResponse{ReferenceID: in.ReferenceID, Movements: make([]dto.MovementDTO, 0, len(movs))}
	for _, m := range movs {
		out.Movements = append(out.Movements, ToMovementDTO(m))
	}
	return out, nil
}

// TransferFromRequest adapta el request HTTP a ApplyTransfer.
func (o *TransferOrchestrator) TransferFromRequest(ctx context.Context, actor Actor, in dto.TransferRequest) (*dto.TransferResponse, error) {
	res, err := o.ApplyTransfer(ctx, actor, TransferRequest{
		ProductID:    in.ProductID,
		Quantity:     in.Quantity,
		FromLocation: in.FromLocation,
		ToLocation:   in.ToLocation,
		Reason:       in.Reason,
		ReferenceID:  in.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	return &dto.TransferResponse{
		ReferenceID: res.ReferenceID,
		Out:         ToMovementDTO(res.Out),
		In:          ToMovementDTO(res.In),
	}, nil
}

// ToMovementDTO convierte un asiento del libro al DTO de respuesta.
func ToMovementDTO(m *entity.StockMovement) dto.MovementDTO {
	return dto.MovementDTO{
		ID:                  m.ID,
		Seq:                 m.Seq,
		ProductID:           m.ProductID,
		SKU:                 m.SKU,
		Type:                string(m.Kind),
		QuantityDelta:       m.QuantityDelta,
		BalanceAfter:        m.BalanceAfter,
		SourceLocation:      m.SourceLocation,
		DestinationLocation: m.DestinationLocation,
		Reason:              m.Reason,
		ReferenceID:         m.ReferenceID,
		ActorID:             m.ActorID,
		CreatedAt:           m.CreatedAt,
	}
}

// ToMovementListResponse convierte una página del historial.
func ToMovementListResponse(p *MovementPage) dto.MovementListResponse {
	items := make([]dto.MovementDTO, 0, len(p.Items))
	for _, m := range p.Items {
		items = append(items, ToMovementDTO(m))
	}
	return dto.MovementListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: p.Limit, Offset: p.Offset, Total: p.Total},
	}
}

// ToStockDTO convierte una proyección.
func ToStockDTO(p *entity.StockProjection) dto.StockDTO {
	return dto.StockDTO{
		ProductID:      p.ProductID,
		Quantity:       p.Quantity,
		UpdatedAt:      p.UpdatedAt,
		LastMovementID: p.LastMovementID,
	}
}
