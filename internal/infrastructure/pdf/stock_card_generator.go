// Package pdf genera la tarjeta de stock (kárdex) de un producto a partir del libro de movimientos.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Producto + SKU       │  Tenant + Fecha de emisión  │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RESUMEN: Período / Existencia actual / Movimientos         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Fecha | Tipo | Referencia | Ubicación | Δ | Saldo   │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: aviso de truncado + leyenda                        │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	appinventory "github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorRed     = &props.Color{Red: 170, Green: 30, Blue: 30}
)

var kindLabels = map[entity.MovementKind]string{
	entity.MovementKindReceipt:     "Entrada",
	entity.MovementKindIssue:       "Salida",
	entity.MovementKindAdjustment:  "Ajuste",
	entity.MovementKindTransferOut: "Traslado (sale)",
	entity.MovementKindTransferIn:  "Traslado (entra)",
	entity.MovementKindSale:        "Venta",
	entity.MovementKindPurchase:    "Compra",
}

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoStockCardGenerator implementa inventory.StockCardRenderer usando Maroto v2.
type MarotoStockCardGenerator struct{}

// NewMarotoStockCardGenerator construye el generador.
func NewMarotoStockCardGenerator() *MarotoStockCardGenerator { return &MarotoStockCardGenerator{} }

// RenderStockCard genera el PDF y devuelve sus bytes.
func (g *MarotoStockCardGenerator) RenderStockCard(ctx context.Context, card *appinventory.StockCard) ([]byte, error) {
	if card == nil || card.Product == nil || card.Stock == nil {
		return nil, fmt.Errorf("pdf: tarjeta de stock incompleta")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Tarjeta de stock "+card.Product.SKU, true).
		WithAuthor("inventario-ledger", true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(card))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(summaryRow(card))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	// Tabla de movimientos
	m.AddRows(tableHeaderRow())
	m.AddRows(tableDetailRows(card.Movements)...)

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRows(card)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: producto + SKU (izq) y tenant + fecha de emisión (der).
func headerRow(card *appinventory.StockCard) core.Row {
	return row.New(18).Add(
		col.New(7).Add(
			text.New(nonEmpty(card.Product.Name, card.Product.ID), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("SKU: "+nonEmpty(card.Product.SKU, "—"), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("TARJETA DE STOCK (KÁRDEX)", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New("Tenant: "+card.Product.TenantID, props.Text{
				Size: 8, Align: align.Right, Top: 7,
			}),
			text.New("Emitida: "+card.GeneratedAt.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 12, Color: colorGray,
			}),
		),
	)
}

// summaryRow: período consultado, existencia actual y número de movimientos.
func summaryRow(card *appinventory.StockCard) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Top: 6})
	}
	return row.New(13).Add(
		col.New(5).Add(label("PERÍODO"), value(periodLabel(card))),
		col.New(4).Add(label("EXISTENCIA ACTUAL"), value(formatQuantity(card.Stock.Quantity))),
		col.New(3).Add(label("MOVIMIENTOS"), value(fmt.Sprintf("%d", card.Total))),
	)
}

// tableHeaderRow: cabecera de la tabla de movimientos.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Fecha", 2, align.Left),
		h("Tipo", 2, align.Left),
		h("Referencia", 3, align.Left),
		h("Ubicación", 2, align.Left),
		h("Cantidad", 1, align.Right),
		h("Saldo", 2, align.Right),
	)
}

// tableDetailRows: una fila por movimiento, en el orden recibido (más reciente primero).
func tableDetailRows(movements []*entity.StockMovement) []core.Row {
	if len(movements) == 0 {
		return []core.Row{row.New(8).Add(col.New(12).Add(
			text.New("Sin movimientos en el período.", props.Text{
				Size: 8, Align: align.Center, Top: 2, Color: colorGray,
			}),
		))}
	}

	result := make([]core.Row, 0, len(movements))
	for _, mv := range movements {
		deltaColor := colorPrimary
		if mv.QuantityDelta.IsNegative() {
			deltaColor = colorRed
		}
		result = append(result, row.New(7).Add(
			col.New(2).Add(text.New(
				mv.CreatedAt.Format("02/01/2006 15:04"),
				props.Text{Size: 7.5, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				kindLabel(mv.Kind),
				props.Text{Size: 8, Top: 1, Left: 1},
			)),
			col.New(3).Add(text.New(
				nonEmpty(mv.ReferenceID, "—"),
				props.Text{Size: 7.5, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				locationLabel(mv),
				props.Text{Size: 7.5, Top: 1, Left: 1},
			)),
			col.New(1).Add(text.New(
				formatQuantity(mv.QuantityDelta),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1, Color: deltaColor},
			)),
			col.New(2).Add(text.New(
				formatQuantity(mv.BalanceAfter),
				props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// footerRows: aviso cuando el período tiene más movimientos de los listados + leyenda.
func footerRows(card *appinventory.StockCard) []core.Row {
	var rows []core.Row
	if card.Total > len(card.Movements) {
		rows = append(rows, row.New(6).Add(col.New(12).Add(
			text.New(fmt.Sprintf("Se muestran los %d movimientos más recientes de %d. Acote el período para ver el resto.",
				len(card.Movements), card.Total), props.Text{
				Style: fontstyle.Bold, Size: 7.5, Color: colorRed, Top: 1,
			}),
		)))
	}
	rows = append(rows, row.New(8).Add(col.New(12).Add(
		text.New(
			"El saldo de cada fila es la existencia del producto inmediatamente después del movimiento. "+
				"Las correcciones se registran como movimientos nuevos; el libro no se edita.",
			props.Text{Size: 6.5, Color: colorGray, Top: 2},
		),
	)))
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func kindLabel(k entity.MovementKind) string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

func locationLabel(mv *entity.StockMovement) string {
	switch {
	case mv.SourceLocation != "" && mv.DestinationLocation != "":
		return mv.SourceLocation + " → " + mv.DestinationLocation
	case mv.SourceLocation != "":
		return mv.SourceLocation
	default:
		return nonEmpty(mv.DestinationLocation, "—")
	}
}

func periodLabel(card *appinventory.StockCard) string {
	from, to := "inicio", "hoy"
	if card.From != nil {
		from = card.From.Format("02/01/2006")
	}
	if card.To != nil {
		to = card.To.Format("02/01/2006")
	}
	return from + " a " + to
}

// formatQuantity separa miles con punto y decimales con coma.
// Ej: -1250.5 → "-1.250,5"
func formatQuantity(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	intPart, frac, _ := strings.Cut(d.Abs().String(), ".")
	out := sign + formatThousands(intPart)
	if frac != "" {
		out += "," + frac
	}
	return out
}

// formatThousands inserta puntos de miles en un string numérico sin decimales.
// Ej: "25000" → "25.000", "1000000" → "1.000.000"
func formatThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return string(buf)
}
