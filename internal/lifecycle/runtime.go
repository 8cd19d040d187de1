// Package lifecycle starts long-running components in order and stops them in reverse.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultShutdownTimeout = 15 * time.Second

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Runtime struct {
	components      []Component
	shutdownTimeout time.Duration
}

func NewRuntime(components ...Component) *Runtime {
	r := &Runtime{shutdownTimeout: DefaultShutdownTimeout}
	for _, component := range components {
		r.Register(component)
	}
	return r
}

// WithShutdownTimeout bounds how long Run waits for components to stop.
func (r *Runtime) WithShutdownTimeout(timeout time.Duration) *Runtime {
	if timeout > 0 {
		r.shutdownTimeout = timeout
	}
	return r
}

func (r *Runtime) Register(component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, component)
}

func (r *Runtime) Start(ctx context.Context) error {
	started := make([]Component, 0, len(r.components))
	for _, component := range r.components {
		name := componentName(component)
		if err := component.Start(ctx); err != nil {
			_ = stopComponents(ctx, started)
			return fmt.Errorf("start component %s: %w", name, err)
		}
		getLogEntry().WithField("component", name).Debug("component started")
		started = append(started, component)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	return stopComponents(ctx, r.components)
}

// Run starts every component, blocks until ctx is done, then stops them within the shutdown timeout.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	getLogEntry().WithField("components", len(r.components)).Info("runtime started")

	<-ctx.Done()
	getLogEntry().WithField("reason", context.Cause(ctx)).Info("runtime stopping")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.shutdownTimeout)
	defer cancel()
	return r.Stop(stopCtx)
}

func stopComponents(ctx context.Context, components []Component) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		name := componentName(component)
		if err := component.Stop(ctx); err != nil {
			getLogEntry().WithField("component", name).WithField("error", err.Error()).Warn("component stop failed")
			stopErr = errors.Join(stopErr, fmt.Errorf("stop component %s: %w", name, err))
			continue
		}
		getLogEntry().WithField("component", name).Debug("component stopped")
	}
	return stopErr
}

func componentName(component Component) string {
	return fmt.Sprintf("%T", component)
}

func getLogEntry() *log.Entry {
	return log.WithField("object", "Runtime")
}
