package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

var _ inventory.MovementPublisher = (*MovementPublisher)(nil)

// EventType tipo del evento publicado por cada movimiento confirmado.
const EventType = "inventory.stock_movement.applied"

// MovementEvent cuerpo JSON del mensaje.
type MovementEvent struct {
	Type                string          `json:"type"`
	MovementID          string          `json:"movement_id"`
	Seq                 int64           `json:"seq"`
	TenantID            string          `json:"tenant_id"`
	ProductID           string          `json:"product_id"`
	SKU                 string          `json:"sku"`
	Kind                string          `json:"kind"`
	QuantityDelta       decimal.Decimal `json:"quantity_delta"`
	BalanceAfter        decimal.Decimal `json:"balance_after"`
	SourceLocation      string          `json:"source_location,omitempty"`
	DestinationLocation string          `json:"destination_location,omitempty"`
	ReferenceID         string          `json:"reference_id,omitempty"`
	ActorID             string          `json:"actor_id"`
	CreatedAt           time.Time       `json:"created_at"`
}

// messageWriter lo que usamos de *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MovementPublisher publica movimientos confirmados en un tópico. La clave es tenant/producto,
// así los eventos de un mismo producto quedan en una partición y conservan su orden.
type MovementPublisher struct {
	writer messageWriter
}

// NewMovementPublisher crea el publicador con un writer síncrono.
func NewMovementPublisher(brokers []string, topic string) *MovementPublisher {
	return &MovementPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}}
}

// Publish serializa y escribe los movimientos en un solo lote.
func (p *MovementPublisher) Publish(ctx context.Context, movements ...*entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(movements))
	for _, m := range movements {
		msg, err := toMessage(m)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publicar %d movimientos: %w", len(msgs), err)
	}
	return nil
}

// Close libera las conexiones del writer.
func (p *MovementPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(m *entity.StockMovement) (kafka.Message, error) {
	data, err := json.Marshal(MovementEvent{
		Type:                EventType,
		MovementID:          m.ID,
		Seq:                 m.Seq,
		TenantID:            m.TenantID,
		ProductID:           m.ProductID,
		SKU:                 m.SKU,
		Kind:                string(m.Kind),
		QuantityDelta:       m.QuantityDelta,
		BalanceAfter:        m.BalanceAfter,
		SourceLocation:      m.SourceLocation,
		DestinationLocation: m.DestinationLocation,
		ReferenceID:         m.ReferenceID,
		ActorID:             m.ActorID,
		CreatedAt:           m.CreatedAt,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serializar movimiento %s: %w", m.ID, err)
	}
	return kafka.Message{
		Key:   []byte(m.TenantID + "/" + m.ProductID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventType)},
			{Key: "tenant-id", Value: []byte(m.TenantID)},
			{Key: "movement-id", Value: []byte(m.ID)},
		},
		Time: m.CreatedAt,
	}, nil
}
