package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/safego"
	"github.com/radiowave/station-backend/internal/telemetry"
)

// SchemaEnsurer is satisfied by *SchemaManager
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Bootstrap status values reported by Status
const (
	BootstrapPending = "pending"
	BootstrapReady   = "ready"
	BootstrapFailed  = "failed"
)

// Bootstrap initialises the activity log schema in the background once the
// tables it depends on exist. Failures are logged and never stop the process;
// the outcome is observable through Done, Err and Status.
type Bootstrap struct {
	Schema SchemaEnsurer
	// Ready is closed once the ordered migrations have created users. A nil
	// channel means there is nothing to wait for.
	Ready <-chan struct{}
	// WarmUp is an extra delay after Ready, normally zero
	WarmUp time.Duration
	// Attempts is the total number of EnsureSchema calls before giving up
	Attempts int
	// RetryDelay is the constant pause between attempts
	RetryDelay time.Duration

	initOnce   sync.Once
	finishOnce sync.Once
	done       chan struct{}

	mu  sync.RWMutex
	err error
}

// NewBootstrap builds a Bootstrap from the audit bootstrap config
func NewBootstrap(schema SchemaEnsurer, ready <-chan struct{}, cfg config.AuditBootstrapConfig) *Bootstrap {
	return &Bootstrap{
		Schema:     schema,
		Ready:      ready,
		WarmUp:     cfg.WarmUpDelay,
		Attempts:   cfg.Attempts,
		RetryDelay: cfg.RetryDelay,
	}
}

func (b *Bootstrap) init() {
	b.initOnce.Do(func() {
		b.done = make(chan struct{})
	})
}

// Start runs the bootstrap in a background goroutine and returns immediately
func (b *Bootstrap) Start(ctx context.Context) {
	b.init()
	safego.Go(func() {
		_ = b.Run(ctx)
	})
}

// Run performs the bootstrap synchronously. It returns the terminal error, which
// is also available from Err once Done is closed.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.init()
	err := b.run(ctx)
	b.finishOnce.Do(func() {
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		close(b.done)
	})
	return err
}

// Done is closed when the bootstrap has finished, successfully or not
func (b *Bootstrap) Done() <-chan struct{} {
	b.init()
	return b.done
}

// Err returns the terminal bootstrap error; nil while pending or after success
func (b *Bootstrap) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Status reports pending, ready or failed
func (b *Bootstrap) Status() string {
	select {
	case <-b.Done():
		if b.Err() != nil {
			return BootstrapFailed
		}
		return BootstrapReady
	default:
		return BootstrapPending
	}
}

func (b *Bootstrap) run(ctx context.Context) error {
	if b.Schema == nil {
		return fmt.Errorf("audit bootstrap: no schema manager configured")
	}

	if b.Ready != nil {
		select {
		case <-b.Ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if b.WarmUp > 0 {
		timer := time.NewTimer(b.WarmUp)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	_, err := backoff.Retry(ctx,
		func() (_ struct{}, err error) {
			attempt++
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic during schema bootstrap: %v", r)
				}
				result := "success"
				if err != nil {
					result = "failure"
				}
				telemetry.AuditSchemaBootstrapAttemptsTotal.WithLabelValues(result).Inc()
			}()
			return struct{}{}, b.Schema.EnsureSchema(ctx)
		},
		backoff.WithBackOff(backoff.NewConstantBackOff(b.RetryDelay)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("activity log schema bootstrap attempt failed, retrying",
				"attempt", attempt, "max_attempts", attempts, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		telemetry.AuditSchemaBootstrapAttemptsTotal.WithLabelValues("exhausted").Inc()
		slog.Error("activity log schema bootstrap failed, activity logging is unavailable",
			"attempts", attempt, "error", err)
		return fmt.Errorf("audit schema bootstrap failed after %d attempts: %w", attempt, err)
	}

	slog.Info("activity log schema ready", "attempts", attempt)
	return nil
}
