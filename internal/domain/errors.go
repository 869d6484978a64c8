package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrInsufficientStock = errors.New("stock insuficiente")

	// ErrDuplicateReference indica que ya existe un movimiento con el mismo
	// (tenant, producto, tipo, referencia). No es un error real para el llamador:
	// el motor lo convierte en la devolución del movimiento original.
	ErrDuplicateReference = errors.New("referencia de movimiento duplicada")

	// ErrStorageUnavailable falla transitoria del almacenamiento (reintentable).
	ErrStorageUnavailable = errors.New("almacenamiento no disponible")

	// ErrTransferInconsistent la compensación de un traslado falló; requiere
	// reconciliación manual.
	ErrTransferInconsistent = errors.New("traslado inconsistente: la compensación falló")
)
