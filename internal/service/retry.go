package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryExhaustedError indica que todos los intentos fallaron; envuelve el
// ultimo error subyacente.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marca un error como no reintentable: RunWithRetry lo propaga de
// inmediato sin consumir los intentos restantes.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RunWithRetry ejecuta op hasta maxAttempts veces, esperando baseDelay fijo
// entre intentos. Un intento exitoso corta los reintentos restantes. No sabe
// nada de chat: es un envoltorio generico sobre cualquier operacion falible.
func RunWithRetry[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}

		if attempt == maxAttempts {
			break
		}
		if err := sleepCtx(ctx, baseDelay); err != nil {
			return zero, &RetryExhaustedError{Attempts: attempt, Last: errors.Join(lastErr, err)}
		}
	}

	return zero, &RetryExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// sleepCtx espera d sin bloquear la cancelacion del contexto.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
