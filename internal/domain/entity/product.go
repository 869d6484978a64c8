package entity

// Product vista mínima del catálogo que necesita el libro de inventario:
// existencia, pertenencia al tenant y SKU vigente.
type Product struct {
	ID       string
	TenantID string
	SKU      string
	Name     string
}
