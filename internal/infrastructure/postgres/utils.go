package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jhoicas/inventario-ledger/internal/domain"
)

// Querier operaciones comunes a *pgxpool.Pool y pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}

// isTransient errores que se resuelven reintentando la transacción completa.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"57P01": // admin_shutdown
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08") // connection_exception
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}

// wrapErr agrega contexto y marca las fallas transitorias como domain.ErrStorageUnavailable.
func wrapErr(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
