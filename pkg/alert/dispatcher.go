package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer receives the result of every channel invocation
type Observer interface {
	ObserveChannel(t Type, success bool, elapsed time.Duration)
	ObserveDispatch(success bool, elapsed time.Duration)
}

// DispatcherOptions configures a Dispatcher
type DispatcherOptions struct {
	Resolver *Resolver
	Logger   *zap.Logger
	Observer Observer
}

// Dispatcher sends an alert to every channel enabled in a config.
// Channels are notified one at a time in registry order so the first
// failure is always the same for a given config.
type Dispatcher struct {
	resolver *Resolver
	logger   *zap.Logger
	observer Observer
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		resolver: opts.Resolver,
		logger:   logger.With(zap.String("component", "alert_dispatcher")),
		observer: opts.Observer,
	}
}

// Dispatch notifies every channel of cfg and returns the aggregated result.
// The error, when non-nil, is a *Failure carrying every channel message.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg *ConfigWithParams, tpl *Template) (bool, error) {
	types := cfg.Types()
	if len(types) == 0 {
		return true, nil
	}

	start := time.Now()
	logger := d.logger.With(
		zap.String("dispatch_id", uuid.NewString()),
		zap.Uint("alert_id", cfg.ID),
		zap.String("alert_name", cfg.AlertName),
	)

	acc := Succeeded()
	for _, t := range types {
		acc = Combine(acc, d.notify(ctx, logger, t, cfg, tpl))
	}

	if d.observer != nil {
		d.observer.ObserveDispatch(acc.Success, time.Since(start))
	}

	if acc.Err != nil {
		logger.Warn("alert dispatch failed",
			zap.Int("channels", len(types)),
			zap.Error(acc.Err),
		)
		return acc.Success, acc.Err
	}

	logger.Debug("alert dispatched", zap.Int("channels", len(types)))
	return acc.Success, nil
}

// notify invokes one channel, turning resolution errors and panics into a
// failed outcome.
func (d *Dispatcher) notify(ctx context.Context, logger *zap.Logger, t Type, cfg *ConfigWithParams, tpl *Template) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fmt.Errorf("%s alert handler panicked: %v", t, r))
		}
		if d.observer != nil {
			d.observer.ObserveChannel(t, out.Success, time.Since(start))
		}
		if out.Err != nil {
			logger.Info("alert channel failed", zap.Stringer("channel", t), zap.Error(out.Err.Cause))
		}
	}()

	h, err := d.resolver.Resolve(t)
	if err != nil {
		return Failed(err)
	}
	if err := h.Notify(ctx, cfg, tpl); err != nil {
		return Failed(err)
	}
	return Succeeded()
}
