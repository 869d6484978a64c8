package inventory

import (
	"context"
	"time"

	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Garantiza que la actualización de la proyección y el asiento en el libro se confirmen juntos o no se confirmen.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		movements repository.StockMovementRepository,
		projections repository.StockProjectionRepository,
	) error) error
}

// MovementPublisher notifica movimientos ya confirmados a otros sistemas (best-effort).
type MovementPublisher interface {
	Publish(ctx context.Context, movements ...*entity.StockMovement) error
}

// Resultados registrados por Recorder.
const (
	OutcomeApplied  = "applied"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder recibe las métricas del motor de inventario.
type Recorder interface {
	MovementApplied(kind entity.MovementKind, outcome string, elapsed time.Duration)
	StorageRetry(operation string)
	ProjectionDrift(tenantID string)
	TransferCompensated(ok bool)
}

// Actor identidad ya autenticada que origina la operación.
type Actor struct {
	TenantID string
	ActorID  string
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...*entity.StockMovement) error { return nil }

type nopRecorder struct{}

func (nopRecorder) MovementApplied(entity.MovementKind, string, time.Duration) {}
func (nopRecorder) StorageRetry(string)                                        {}
func (nopRecorder) ProjectionDrift(string)                                     {}
func (nopRecorder) TransferCompensated(bool)                                   {}

// StockCardRenderer genera la tarjeta de stock (kárdex) de un producto.
type StockCardRenderer interface {
	RenderStockCard(ctx context.Context, card *StockCard) ([]byte, error)
}
