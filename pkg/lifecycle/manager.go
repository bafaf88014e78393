/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle supervises the monitor's services and runs the
// process until a signal arrives.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type entry struct {
	svc         Service
	ticker      Ticker
	autoRestart bool

	state         State
	startTime     int64
	lastHeartbeat int64
	restartCount  int
	lastErr       error
}

// Manager owns at most MaxServices services. It runs on the owner
// thread and is not safe for concurrent use.
type Manager struct {
	entries []*entry
	logger  *zap.Logger
	health  *health.Server
	ctx     context.Context
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHealth mirrors every state change into hs, keyed by service name.
func WithHealth(hs *health.Server) ManagerOption {
	return func(m *Manager) {
		m.health = hs
	}
}

// WithContext sets the context passed to service callbacks.
func WithContext(ctx context.Context) ManagerOption {
	return func(m *Manager) {
		if ctx != nil {
			m.ctx = ctx
		}
	}
}

func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		logger: logger.With(zap.String("component", "lifecycle")),
		ctx:    context.Background(),
	}

	for _, o := range opts {
		o(m)
	}

	return m
}

// Register adds svc in STOPPED state. Names must be unique.
func (m *Manager) Register(svc Service, autoRestart bool) error {
	if svc == nil || svc.Name() == "" {
		return ErrInvalidService
	}

	if m.find(svc.Name()) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateService, svc.Name())
	}

	if len(m.entries) >= MaxServices {
		return fmt.Errorf("%w: %d", ErrTooManyServices, MaxServices)
	}

	e := &entry{svc: svc, autoRestart: autoRestart}
	if t, ok := svc.(Ticker); ok {
		e.ticker = t
	}

	m.entries = append(m.entries, e)
	m.publish(e)

	return nil
}

func (m *Manager) find(name string) *entry {
	for _, e := range m.entries {
		if e.svc.Name() == name {
			return e
		}
	}

	return nil
}

func (m *Manager) setState(e *entry, s State) {
	if e.state == s {
		return
	}

	m.logger.Debug("service state", zap.String("service", e.svc.Name()),
		zap.Stringer("from", e.state), zap.Stringer("to", s))

	e.state = s
	m.publish(e)
}

func (m *Manager) publish(e *entry) {
	if m.health == nil {
		return
	}

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if e.state == StateRunning {
		st = healthpb.HealthCheckResponse_SERVING
	}

	m.health.SetServingStatus(e.svc.Name(), st)

	overall := healthpb.HealthCheckResponse_SERVING

	for _, other := range m.entries {
		if other.state != StateRunning {
			overall = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}

	m.health.SetServingStatus("", overall)
}

// start runs init then start, recording the attempt time for backoff.
func (m *Manager) start(e *entry, now int64) error {
	e.startTime = now
	m.setState(e, StateStarting)

	if err := e.svc.Init(m.ctx); err != nil {
		e.lastErr = fmt.Errorf("%w: %s: %w", ErrInitFailed, e.svc.Name(), err)
		m.setState(e, StateError)

		return e.lastErr
	}

	if err := e.svc.Start(m.ctx); err != nil {
		e.svc.Deinit()
		e.lastErr = fmt.Errorf("%w: %s: %w", ErrStartFailed, e.svc.Name(), err)
		m.setState(e, StateError)

		return e.lastErr
	}

	e.lastHeartbeat = now
	e.lastErr = nil
	m.setState(e, StateRunning)

	m.logger.Info("service running", zap.String("service", e.svc.Name()), zap.Int("restarts", e.restartCount))

	return nil
}

func (m *Manager) stop(e *entry) error {
	m.setState(e, StateStopping)

	var err error
	if stopErr := e.svc.Stop(m.ctx); stopErr != nil {
		err = fmt.Errorf("%w: %s: %w", ErrStopFailed, e.svc.Name(), stopErr)
	}

	e.svc.Deinit()
	m.setState(e, StateStopped)

	return err
}

// StartAll starts every stopped service in registration order. Failures
// leave that service in ERROR and do not stop the others.
func (m *Manager) StartAll(now int64) error {
	var errs []error

	for _, e := range m.entries {
		if e.state != StateStopped {
			continue
		}

		if err := m.start(e, now); err != nil {
			m.logger.Error("service failed to start", zap.String("service", e.svc.Name()), zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// StopAll stops services in reverse registration order.
func (m *Manager) StopAll() error {
	var errs []error

	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]

		switch e.state {
		case StateRunning:
			if err := m.stop(e); err != nil {
				errs = append(errs, err)
			}
		case StateError:
			if failedStart(e) {
				m.setState(e, StateStopped)
				continue
			}

			if err := m.stop(e); err != nil {
				errs = append(errs, err)
			}
		case StateStopped, StateStarting, StateStopping:
		}
	}

	return errors.Join(errs...)
}

// Tick drives heartbeats and restarts. Services are visited in
// registration order; heartbeat expiry is checked after every tick ran.
func (m *Manager) Tick(now int64) {
	for _, e := range m.entries {
		switch e.state {
		case StateRunning:
			if e.ticker == nil {
				e.lastHeartbeat = now
				continue
			}

			if err := e.ticker.Tick(now); err != nil {
				e.lastErr = err
				m.logger.Debug("service tick failed", zap.String("service", e.svc.Name()), zap.Error(err))

				continue
			}

			e.lastHeartbeat = now
		case StateError:
			if e.autoRestart && now-e.startTime >= RestartBackoff {
				m.restart(e, now)
			}
		case StateStopped, StateStarting, StateStopping:
		}
	}

	for _, e := range m.entries {
		if e.state == StateRunning && e.ticker != nil && now-e.lastHeartbeat > HeartbeatTimeout {
			e.lastErr = fmt.Errorf("%w: %s: %ds", ErrHeartbeatTimeout, e.svc.Name(), now-e.lastHeartbeat)
			m.setState(e, StateError)

			m.logger.Error("service stalled", zap.String("service", e.svc.Name()), zap.Error(e.lastErr))
		}
	}
}

// failedStart reports whether e is in ERROR from init or start, in which
// case it holds no resources.
func failedStart(e *entry) bool {
	return errors.Is(e.lastErr, ErrInitFailed) || errors.Is(e.lastErr, ErrStartFailed)
}

func (m *Manager) restart(e *entry, now int64) {
	if !failedStart(e) {
		if err := e.svc.Stop(m.ctx); err != nil {
			m.logger.Warn("stop before restart", zap.String("service", e.svc.Name()), zap.Error(err))
		}

		e.svc.Deinit()
	}

	e.restartCount++

	m.logger.Warn("restarting service", zap.String("service", e.svc.Name()), zap.Int("attempt", e.restartCount))

	if err := m.start(e, now); err != nil {
		m.logger.Error("restart failed", zap.String("service", e.svc.Name()), zap.Error(err))
	}
}

// Status returns a snapshot of every service in registration order.
func (m *Manager) Status() []Status {
	out := make([]Status, 0, len(m.entries))

	for _, e := range m.entries {
		st := Status{
			Name:          e.svc.Name(),
			State:         e.state,
			StateName:     e.state.String(),
			AutoRestart:   e.autoRestart,
			RestartCount:  e.restartCount,
			StartTime:     e.startTime,
			LastHeartbeat: e.lastHeartbeat,
		}

		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}

		out = append(out, st)
	}

	return out
}

// Lookup returns the status of one service.
func (m *Manager) Lookup(name string) (Status, error) {
	for _, st := range m.Status() {
		if st.Name == name {
			return st, nil
		}
	}

	return Status{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
}

// Len returns the number of registered services.
func (m *Manager) Len() int {
	return len(m.entries)
}
