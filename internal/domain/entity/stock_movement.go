package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind tipo de movimiento de inventario.
type MovementKind string

// Tipos de movimiento. receipt/purchase/transfer_in suman, issue/sale/transfer_out restan,
// adjustment lleva el signo que indique el llamador.
const (
	MovementKindReceipt     MovementKind = "receipt"
	MovementKindIssue       MovementKind = "issue"
	MovementKindAdjustment  MovementKind = "adjustment"
	MovementKindTransferOut MovementKind = "transfer_out"
	MovementKindTransferIn  MovementKind = "transfer_in"
	MovementKindSale        MovementKind = "sale"
	MovementKindPurchase    MovementKind = "purchase"
)

// MovementKinds lista los tipos válidos.
var MovementKinds = []MovementKind{
	MovementKindReceipt,
	MovementKindIssue,
	MovementKindAdjustment,
	MovementKindTransferOut,
	MovementKindTransferIn,
	MovementKindSale,
	MovementKindPurchase,
}

// Valid indica si el tipo es conocido.
func (k MovementKind) Valid() bool {
	for _, v := range MovementKinds {
		if k == v {
			return true
		}
	}
	return false
}

// StockMovement registro inmutable del libro de inventario (append-only).
// Las correcciones se hacen con nuevos movimientos compensatorios; nunca se actualiza ni borra.
type StockMovement struct {
	ID                  string
	Seq                 int64 // orden de commit asignado por el almacenamiento
	TenantID            string
	ProductID           string
	SKU                 string // snapshot del SKU al momento del movimiento
	QuantityDelta       decimal.Decimal
	BalanceAfter        decimal.Decimal // cantidad de la proyección tras aplicar este movimiento
	Kind                MovementKind
	SourceLocation      string
	DestinationLocation string
	Reason              string
	ReferenceID         string
	ActorID             string
	CreatedAt           time.Time
}
