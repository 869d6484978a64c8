package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisterMovementRequest body para POST /api/inventory/movements.
// quantity es positiva; en adjustment lleva el signo del ajuste.
type RegisterMovementRequest struct {
	ProductID           string          `json:"product_id"`
	Type                string          `json:"type"`
	Quantity            decimal.Decimal `json:"quantity"`
	SourceLocation      string          `json:"source_location,omitempty"`
	DestinationLocation string          `json:"destination_location,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	ReferenceID         string          `json:"reference_id,omitempty"`
}

// BatchMovementRequest body para POST /api/inventory/movements/batch: venta o recepción de varias
// líneas que se aplica completa o no se aplica. reference_id y reason valen para las líneas que no
// traen los suyos.
type BatchMovementRequest struct {
	ReferenceID string                    `json:"reference_id,omitempty"`
	Reason      string                    `json:"reason,omitempty"`
	Lines       []RegisterMovementRequest `json:"lines"`
}

// TransferRequest body para POST /api/inventory/transfers.
type TransferRequest struct {
	ProductID    string          `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	FromLocation string          `json:"from_location"`
	ToLocation   string          `json:"to_location"`
	Reason       string          `json:"reason,omitempty"`
	ReferenceID  string          `json:"reference_id,omitempty"`
}

// MovementDTO asiento del libro de inventario.
type MovementDTO struct {
	ID                  string          `json:"id"`
	Seq                 int64           `json:"seq"`
	ProductID           string          `json:"product_id"`
	SKU                 string          `json:"sku"`
	Type                string          `json:"type"`
	QuantityDelta       decimal.Decimal `json:"quantity_delta"`
	BalanceAfter        decimal.Decimal `json:"balance_after"`
	SourceLocation      string          `json:"source_location,omitempty"`
	DestinationLocation string          `json:"destination_location,omitempty"`
	Reason              string          `json:"reason,omitempty"`
	ReferenceID         string          `json:"reference_id,omitempty"`
	ActorID             string          `json:"actor_id"`
	CreatedAt           time.Time       `json:"created_at"`
}

// TransferResponse las dos patas de un traslado.
type TransferResponse struct {
	ReferenceID string      `json:"reference_id"`
	Out         MovementDTO `json:"out"`
	In          MovementDTO `json:"in"`
}

// BatchMovementResponse asientos del documento en el orden de las líneas.
type BatchMovementResponse struct {
	ReferenceID string        `json:"reference_id,omitempty"`
	Movements   []MovementDTO `json:"movements"`
}

// MovementListResponse página del historial de movimientos.
type MovementListResponse struct {
	Items []MovementDTO `json:"items"`
	Page  PageResponse  `json:"page"`
}

// StockDTO cantidad en existencia de un producto.
type StockDTO struct {
	ProductID      string          `json:"product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LastMovementID string          `json:"last_movement_id,omitempty"`
}

// RecomputeResponse resultado de POST /api/inventory/stock/:productId/recompute.
type RecomputeResponse struct {
	ProductID string          `json:"product_id"`
	Previous  decimal.Decimal `json:"previous"`
	Quantity  decimal.Decimal `json:"quantity"`
	Drifted   bool            `json:"drifted"`
}

// MovementListQuery parámetros de GET /api/inventory/movements y /movements/report.
// from y to aceptan RFC3339 o YYYY-MM-DD; una fecha sin hora en to incluye el día completo.
type MovementListQuery struct {
	ProductID string `query:"product_id"`
	Kind      string `query:"kind"`
	SKU       string `query:"sku"`
	From      string `query:"from"`
	To        string `query:"to"`
	Limit     int    `query:"limit"`
	Offset    int    `query:"offset"`
}
