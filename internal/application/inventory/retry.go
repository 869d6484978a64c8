package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jhoicas/inventario-ledger/internal/domain"
	"github.com/jhoicas/inventario-ledger/pkg/logger"
)

// RetryPolicy reintentos acotados con backoff exponencial para fallas transitorias del almacenamiento.
type RetryPolicy struct {
	MaxAttempts     int // intentos totales, incluido el primero
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy 4 intentos, 50ms inicial, tope 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// retryStorage ejecuta op reintentando solo errores domain.ErrStorageUnavailable.
// Cualquier otro error se devuelve de inmediato. Si el contexto se cancela entre intentos,
// devuelve el error del contexto.
func retryStorage(ctx context.Context, policy RetryPolicy, operation string, log *logger.Logger, rec Recorder, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, policy.backOff(ctx), func(err error, wait time.Duration) {
		rec.StorageRetry(operation)
		log.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("falla transitoria de almacenamiento, reintentando")
	})
}
