package http

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/inventario-ledger/internal/application/dto"
	"github.com/jhoicas/inventario-ledger/internal/application/inventory"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/internal/domain/entity"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
)

// InventoryHandler maneja las peticiones HTTP del libro de inventario (protegido).
type InventoryHandler struct {
	engine    *inventory.MovementEngine
	transfers *inventory.TransferOrchestrator
	recon     *inventory.ReconciliationService
	renderer  inventory.StockCardRenderer
	timeout   time.Duration
	log       *logger.Logger
}

// NewInventoryHandler construye el handler. timeout acota cada operación del libro; 0 lo desactiva.
func NewInventoryHandler(
	engine *inventory.MovementEngine,
	transfers *inventory.TransferOrchestrator,
	recon *inventory.ReconciliationService,
	renderer inventory.StockCardRenderer,
	timeout time.Duration,
	log *logger.Logger,
) *InventoryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &InventoryHandler{
		engine:    engine,
		transfers: transfers,
		recon:     recon,
		renderer:  renderer,
		timeout:   timeout,
		log:       log.Component("http"),
	}
}

// RegisterMovement godoc
// @Summary      Registrar movimiento de inventario
// @Description  Aplica un movimiento al libro y a la proyección de stock en una sola transacción. Reenviar el mismo reference_id devuelve el movimiento original sin duplicarlo.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterMovementRequest  true  "product_id, type, quantity (ajustes con signo), reference_id opcional"
// @Success      201   {object}  dto.MovementDTO
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [post]
func (h *InventoryHandler) RegisterMovement(c *fiber.Ctx) error {
	actor := GetActor(c)
	if actor.TenantID == "" || actor.ActorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.RegisterMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()
	out, err := h.engine.RegisterMovementFromRequest(ctx, actor, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// RegisterMovements godoc
// @Summary      Registrar documento de varias líneas
// @Description  Aplica todas las líneas (venta, recepción de compra) en una sola transacción: si una falla no se registra ninguna. Las líneas cuya referencia ya fue aplicada devuelven el movimiento original.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.BatchMovementRequest  true  "lines (máximo 100), reference_id y reason por defecto"
// @Success      201   {object}  dto.BatchMovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/batch [post]
func (h *InventoryHandler) RegisterMovements(c *fiber.Ctx) error {
	actor := GetActor(c)
	if actor.TenantID == "" || actor.ActorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.BatchMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()
	out, err := h.engine.RegisterMovementsFromRequest(ctx, actor, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// Transfer godoc
// @Summary      Trasladar stock entre ubicaciones
// @Description  Registra dos movimientos (transfer_out y transfer_in) con la misma referencia. Si la entrada falla se compensa la salida; si la compensación falla responde TRANSFER_INCONSISTENT.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.TransferRequest  true  "product_id, quantity, from_location, to_location"
// @Success      201   {object}  dto.TransferResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      500   {object}  dto.ErrorResponse
// @Router       /api/inventory/transfers [post]
func (h *InventoryHandler) Transfer(c *fiber.Ctx) error {
	actor := GetActor(c)
	if actor.TenantID == "" || actor.ActorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.TransferRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()
	out, err := h.transfers.TransferFromRequest(ctx, actor, in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// ListMovements godoc
// @Summary      Historial de movimientos
// @Description  Movimientos del tenant, más recientes primero. limit por defecto 50, máximo 100.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id  query  string  false  "Filtrar por producto"
// @Param        kind        query  string  false  "receipt, issue, adjustment, transfer_out, transfer_in, sale, purchase"
// @Param        sku         query  string  false  "Filtrar por SKU al momento del movimiento"
// @Param        from        query  string  false  "Desde (RFC3339 o YYYY-MM-DD)"
// @Param        to          query  string  false  "Hasta (RFC3339 o YYYY-MM-DD, inclusive)"
// @Param        limit       query  int     false  "Tamaño de página"
// @Param        offset      query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.MovementListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) ListMovements(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "tenant_id no encontrado en el token"})
	}
	var in dto.MovementListQuery
	if err := c.QueryParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_PARAMS", Message: "parámetros de consulta inválidos"})
	}
	q, err := toMovementQuery(in)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_PARAMS", Message: err.Error()})
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()
	page, err := h.recon.ListMovements(ctx, tenantID, q, in.Limit, in.Offset)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(inventory.ToMovementListResponse(page))
}

// MovementsReport godoc
// @Summary      Tarjeta de stock (kárdex) en PDF
// @Description  Saldo actual y los movimientos más recientes del producto (hasta 100) en el período.
// @Tags         inventory
// @Security     Bearer
// @Produce      application/pdf
// @Param        product_id  query  string  true   "Producto"
// @Param        from        query  string  false  "Desde (RFC3339 o YYYY-MM-DD)"
// @Param        to          query  string  false  "Hasta (RFC3339 o YYYY-MM-DD, inclusive)"
// @Success      200  {file}    binary
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/report [get]
func (h *InventoryHandler) MovementsReport(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "tenant_id no encontrado en el token"})
	}
	var in dto.MovementListQuery
	if err := c.QueryParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_PARAMS", Message: "parámetros de consulta inválidos"})
	}
	if in.ProductID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "product_id es requerido"})
	}
	q, err := toMovementQuery(in)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_PARAMS", Message: err.Error()})
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()
	card, err := h.recon.BuildStockCard(ctx, tenantID, in.ProductID, q.From, q.To)
	if err != nil {
		return h.writeError(c, err)
	}
	pdf, err := h.renderer.RenderStockCard(ctx, card)
	if err != nil {
		return h.writeError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="kardex-%s.pdf"`, safeFilename(card.Product.SKU)))
	return c.Send(pdf)
}

// GetStock godoc
// @Summary      Existencia actual de un producto
// @Description  Un producto del catálogo sin movimientos devuelve cantidad 0.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        productId  path  string  true  "Producto"
// @Success      200  {object}  dto.StockDTO
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/stock/{productId} [get]
func (h *InventoryHandler) GetStock(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "tenant_id no encontrado en el token"})
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()
	proj, err := h.recon.GetStock(ctx, tenantID, c.Params("productId"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(inventory.ToStockDTO(proj))
}

// Recompute godoc
// @Summary      Recalcular la existencia desde el libro
// @Description  Sobrescribe la proyección con la suma de movimientos. Solo admin.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        productId  path  string  true  "Producto"
// @Success      200  {object}  dto.RecomputeResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/stock/{productId}/recompute [post]
func (h *InventoryHandler) Recompute(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "tenant_id no encontrado en el token"})
	}

	ctx, cancel := h.operationContext(c)
	defer cancel()
	r, err := h.recon.Recompute(ctx, tenantID, c.Params("productId"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(dto.RecomputeResponse{
		ProductID: r.ProductID,
		Previous:  r.Previous,
		Quantity:  r.Quantity,
		Drifted:   r.Drifted(),
	})
}

func (h *InventoryHandler) operationContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// writeError traduce los errores de dominio a respuestas HTTP.
func (h *InventoryHandler) writeError(c *fiber.Ctx, err error) error {
	switch {
	// Primero: un traslado inconsistente puede envolver también otros errores de dominio.
	case errors.Is(err, domain.ErrTransferInconsistent):
		h.log.Error().Err(err).Str("path", c.Path()).Msg("traslado inconsistente")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "TRANSFER_INCONSISTENT", Message: "el traslado quedó incompleto y requiere reconciliación"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos inválidos"})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "producto no encontrado"})
	case errors.Is(err, domain.ErrInsufficientStock):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INSUFFICIENT_STOCK", Message: "stock insuficiente"})
	case errors.Is(err, domain.ErrStorageUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "STORAGE_UNAVAILABLE", Message: "almacenamiento no disponible, intente más tarde"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(dto.ErrorResponse{Code: "TIMEOUT", Message: "la operación excedió el tiempo permitido"})
	default:
		h.log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
	}
}

func toMovementQuery(in dto.MovementListQuery) (inventory.MovementQuery, error) {
	q := inventory.MovementQuery{
		ProductID: in.ProductID,
		Kind:      entity.MovementKind(in.Kind),
		SKU:       in.SKU,
	}
	if in.From != "" {
		from, _, err := parseQueryTime(in.From)
		if err != nil {
			return q, fmt.Errorf("from inválido: %w", err)
		}
		q.From = &from
	}
	if in.To != "" {
		to, dateOnly, err := parseQueryTime(in.To)
		if err != nil {
			return q, fmt.Errorf("to inválido: %w", err)
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		q.To = &to
	}
	return q, nil
}

// parseQueryTime acepta RFC3339 o YYYY-MM-DD (UTC).
func parseQueryTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("use RFC3339 o YYYY-MM-DD")
	}
	return t, true, nil
}

func safeFilename(s string) string {
	if s == "" {
		return "producto"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
