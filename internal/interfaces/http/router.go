package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Inventory *InventoryHandler
	JWTSecret string
	JWTIssuer string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer))

	// Inventario: operación de bodega
	inv := protected.Group("/inventory")
	keepers := RequireRole(RoleAdmin, RoleBodeguero)
	inv.Post("/movements", keepers, deps.Inventory.RegisterMovement)
	inv.Post("/movements/batch", keepers, deps.Inventory.RegisterMovements)
	inv.Get("/movements", keepers, deps.Inventory.ListMovements)
	inv.Get("/movements/report", keepers, deps.Inventory.MovementsReport)
	inv.Post("/transfers", keepers, deps.Inventory.Transfer)
	inv.Get("/stock/:productId", RequireRole(RoleAdmin, RoleBodeguero, RoleVendedor), deps.Inventory.GetStock)

	// Reconciliación (solo admin)
	inv.Post("/stock/:productId/recompute", RequireRole(RoleAdmin), deps.Inventory.Recompute)
}
