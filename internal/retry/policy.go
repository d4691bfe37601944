// Package retry общий цикл повторов с экспоненциальной задержкой
// для вызовов модели и сервиса картинок.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ErrNonRetryable ошибка, которую повторять нельзя.
var ErrNonRetryable = errors.New("non-retryable error")

// Permanent оборачивает err так, что Do сразу прекращает попытки.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() []error {
	return []error{ErrNonRetryable, e.err}
}

// Policy сколько раз повторять вызов и сколько ждать между попытками.
// Задержка после попытки n (с единицы) равна BaseDelay * 2^(n-1) ±Jitter,
// но не меньше BaseDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	// Retryable решает, стоит ли повторять. nil: повторяется всё, кроме ErrNonRetryable.
	Retryable func(error) bool
	// DelayFor может увеличить задержку для конкретной ошибки (например, 429).
	DelayFor func(err error, delay time.Duration) time.Duration

	Logger *zap.Logger
	Name   string

	sleep func(context.Context, time.Duration) error
}

// New политика с retries повторами после первой попытки.
func New(name string, retries int, baseDelay time.Duration, logger *zap.Logger) Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Policy{
		MaxAttempts: retries + 1,
		BaseDelay:   baseDelay,
		Jitter:      0.1,
		Logger:      logger,
		Name:        name,
	}
}

// WithSleep подменяет ожидание; нужно тестам.
func (p Policy) WithSleep(sleep func(context.Context, time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

// Backoff задержка перед попыткой, следующей за attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.Jitter > 0 {
		jitter := delay * p.Jitter
		delay += jitter * (rand.Float64()*2 - 1)
	}
	wait := time.Duration(delay)
	if wait < p.BaseDelay {
		wait = p.BaseDelay
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		wait = p.MaxDelay
	}
	return wait
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, ErrNonRetryable) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// Do вызывает fn до успеха, неповторяемой ошибки, конца попыток или отмены ctx.
// Возвращает последнюю ошибку.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, errors.Join(lastErr, err)
			}
			return zero, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !p.retryable(err) {
			logger.Warn("Non-retryable error, giving up",
				zap.String("call", p.Name), zap.Int("attempt", attempt), zap.Error(err))
			return zero, err
		}
		if attempt == attempts {
			logger.Warn("Attempts exhausted",
				zap.String("call", p.Name), zap.Int("attempts", attempts), zap.Error(err))
			break
		}

		wait := p.Backoff(attempt)
		if p.DelayFor != nil {
			wait = p.DelayFor(err, wait)
		}
		logger.Debug("Attempt failed, retrying",
			zap.String("call", p.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := sleep(ctx, wait); err != nil {
			return zero, errors.Join(lastErr, err)
		}
	}
	return zero, lastErr
}

// DoWithFallback как Do, но без ошибки: при исчерпании значение даёт fallback.
func DoWithFallback[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error), fallback func(err error) T) (T, bool) {
	result, err := Do(ctx, p, fn)
	if err != nil {
		return fallback(err), true
	}
	return result, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
