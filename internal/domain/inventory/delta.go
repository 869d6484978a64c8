package inventory

import (
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// MaxScale decimales que admite el almacenamiento (columnas NUMERIC(18,4)).
const MaxScale = 4

// maxMagnitude cantidades desde 10^14 no caben en NUMERIC(18,4).
var maxMagnitude = decimal.New(1, 18-MaxScale)

// CheckQuantity rechaza cantidades con más de MaxScale decimales significativos o fuera de rango.
// Los ceros a la derecha no cuentan: 1.50000 es válida.
func CheckQuantity(quantity decimal.Decimal) error {
	if !quantity.Equal(quantity.Truncate(MaxScale)) {
		return domain.ErrInvalidInput
	}
	if quantity.Abs().GreaterThanOrEqual(maxMagnitude) {
		return domain.ErrInvalidInput
	}
	return nil
}

// ResolveDelta convierte (tipo, cantidad) en el delta con signo que se aplica a la proyección.
//
//	receipt, purchase, transfer_in -> +cantidad   (cantidad > 0)
//	issue, sale, transfer_out      -> -cantidad   (cantidad > 0)
//	adjustment                     -> cantidad tal cual (con signo, distinta de cero)
//
// Es el único lugar donde se decide el signo de un movimiento.
func ResolveDelta(kind entity.MovementKind, quantity decimal.Decimal) (decimal.Decimal, error) {
	if err := CheckQuantity(quantity); err != nil {
		return decimal.Zero, err
	}
	switch kind {
	case entity.MovementKindReceipt, entity.MovementKindPurchase, entity.MovementKindTransferIn:
		if !quantity.IsPositive() {
			return decimal.Zero, domain.ErrInvalidInput
		}
		return quantity, nil
	case entity.MovementKindIssue, entity.MovementKindSale, entity.MovementKindTransferOut:
		if !quantity.IsPositive() {
			return decimal.Zero, domain.ErrInvalidInput
		}
		return quantity.Neg(), nil
	case entity.MovementKindAdjustment:
		if quantity.IsZero() {
			return decimal.Zero, domain.ErrInvalidInput
		}
		return quantity, nil
	}
	return decimal.Zero, domain.ErrInvalidInput
}
