package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockProjection cantidad en existencia cacheada por (tenant, producto).
// Derivada del libro de movimientos; solo la modifica el motor de movimientos o la reconciliación.
type StockProjection struct {
	TenantID       string
	ProductID      string
	Quantity       decimal.Decimal
	UpdatedAt      time.Time
	LastMovementID string
}
