package inventory_test

import (
	"testing"

	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/internal/domain/inventory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDelta_SignoPorTipo(t *testing.T) {
	five := decimal.NewFromInt(5)
	cases := []struct {
		kind entity.MovementKind
		want decimal.Decimal
	}{
		{entity.MovementKindReceipt, five},
		{entity.MovementKindPurchase, five},
		{entity.MovementKindTransferIn, five},
		{entity.MovementKindIssue, five.Neg()},
		{entity.MovementKindSale, five.Neg()},
		{entity.MovementKindTransferOut, five.Neg()},
		{entity.MovementKindAdjustment, five},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			got, err := inventory.ResolveDelta(tc.kind, five)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "delta esperado %s, obtenido %s", tc.want, got)
		})
	}
}

func TestResolveDelta_AjusteNegativoConservaSigno(t *testing.T) {
	got, err := inventory.ResolveDelta(entity.MovementKindAdjustment, decimal.NewFromFloat(-2.5))
	require.NoError(t, err)
	assert.Equal(t, "-2.5", got.String())
}

func TestResolveDelta_CantidadesInvalidas(t *testing.T) {
	cases := []struct {
		name string
		kind entity.MovementKind
		qty  decimal.Decimal
	}{
		{"receipt cero", entity.MovementKindReceipt, decimal.Zero},
		{"sale negativa", entity.MovementKindSale, decimal.NewFromInt(-1)},
		{"issue cero", entity.MovementKindIssue, decimal.Zero},
		{"adjustment cero", entity.MovementKindAdjustment, decimal.Zero},
		{"tipo desconocido", entity.MovementKind("in"), decimal.NewFromInt(1)},
		{"receipt bajo la escala", entity.MovementKindReceipt, decimal.RequireFromString("0.00004")},
		{"receipt que se redondearía", entity.MovementKindReceipt, decimal.RequireFromString("0.00006")},
		{"sale con cinco decimales", entity.MovementKindSale, decimal.RequireFromString("1.00001")},
		{"adjustment bajo la escala", entity.MovementKindAdjustment, decimal.RequireFromString("-0.00001")},
		{"receipt fuera de rango", entity.MovementKindReceipt, decimal.New(1, 14)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := inventory.ResolveDelta(tc.kind, tc.qty)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestResolveDelta_EscalaAdmitida(t *testing.T) {
	cases := []struct {
		name string
		qty  string
		want string
	}{
		{"cuatro decimales", "0.0001", "0.0001"},
		{"ceros a la derecha", "1.50000", "1.5"},
		{"máximo entero", "99999999999999.9999", "99999999999999.9999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := inventory.ResolveDelta(entity.MovementKindReceipt, decimal.RequireFromString(tc.qty))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}
