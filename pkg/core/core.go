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


// Package core is the monitor's owner thread. It wires the persistent
// stores, alarm engines, vitals source, IPC endpoints and export queue
// together and runs every one of them from a single goroutine.
package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"github.com/mfreeman451/vitalmon/pkg/alarm"
	"github.com/mfreeman451/vitalmon/pkg/audit"
	"github.com/mfreeman451/vitalmon/pkg/auth"
	"github.com/mfreeman451/vitalmon/pkg/config"
	"github.com/mfreeman451/vitalmon/pkg/export"
	"github.com/mfreeman451/vitalmon/pkg/fhir"
	"github.com/mfreeman451/vitalmon/pkg/ipc"
	"github.com/mfreeman451/vitalmon/pkg/lifecycle"
	"github.com/mfreeman451/vitalmon/pkg/metrics"
	"github.com/mfreeman451/vitalmon/pkg/models"
	"github.com/mfreeman451/vitalmon/pkg/patient"
	"github.com/mfreeman451/vitalmon/pkg/settings"
	"github.com/mfreeman451/vitalmon/pkg/store"
	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
	"github.com/mfreeman451/vitalmon/pkg/trend"
	"github.com/mfreeman451/vitalmon/pkg/vitals"
)

const (
	tickInterval  = time.Second
	taskQueueSize = 256

	// staleAfter is how long the vitals service may go without a sample
	// before its tick fails, in seconds.
	staleAfter = 10

	purgeEvery   = 3600
	sentRetained = 24 * 3600
)

type Option func(*Core)

// WithDB uses an already open store. The caller keeps ownership.
func WithDB(db *store.DB) Option {
	return func(c *Core) {
		c.db = db
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		c.now = now
	}
}

// WithTransport replaces the configured export transport.
func WithTransport(t syncqueue.Transport) Option {
	return func(c *Core) {
		c.transport = t
	}
}

// WithProvider replaces the configured vitals source.
func WithProvider(p vitals.Provider) Option {
	return func(c *Core) {
		c.provider = p
	}
}

// WithHealth mirrors service states into hs.
func WithHealth(hs *health.Server) Option {
	return func(c *Core) {
		c.health = hs
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Core) {
		c.metrics = m
	}
}

// Core owns every module. Apart from Dispatch, Do and Start/Stop its
// methods must run on the owner goroutine.
type Core struct {
	cfg    *config.MonitorConfig
	logger *zap.Logger
	now    func() time.Time

	db        *store.DB
	ownsDB    bool
	settings  *settings.Store
	audit     *audit.Log
	recorder  *exportRecorder
	patients  *patient.Registry
	trend     *trend.Store
	auth      *auth.Service
	engines   [models.SlotCount]*alarm.Engine
	queue     *syncqueue.Queue
	transport syncqueue.Transport
	mqtt      *export.MQTTPublisher
	worker    *syncqueue.Worker
	manager   *lifecycle.Manager
	health    *health.Server
	metrics   *metrics.Metrics
	fhir      *fhir.Builder
	provider  vitals.Provider

	alarms *ipc.Publisher

	tasks   chan func()
	quit    chan struct{}
	stopped chan struct{}
	running atomic.Bool

	technical  Technical
	lastSample int64
	startedAt  int64
	lastMinute int64
	lastPurge  int64
	lastExport int64
	waveforms  atomic.Uint64
}

// New opens the stores and builds every module from cfg. Nothing runs
// until Start.
func New(cfg *config.MonitorConfig, logger *zap.Logger, opts ...Option) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Core{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "core")),
		now:     time.Now,
		tasks:   make(chan func(), taskQueueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.openStores(logger); err != nil {
		c.closeDB()
		return nil, err
	}

	if err := c.buildExport(logger); err != nil {
		c.closeDB()
		return nil, err
	}

	c.buildProvider(logger)

	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	c.fhir = fhir.NewBuilder(fhir.WithDevice(c.deviceName()))

	c.manager = lifecycle.NewManager(logger, lifecycle.WithHealth(c.health))
	for _, svc := range []lifecycle.Service{
		&providerService{core: c},
		&alarmsService{core: c},
		&controlService{core: c},
		c.worker,
	} {
		if err := c.manager.Register(svc, true); err != nil {
			c.closeDB()
			return nil, err
		}
	}

	return c, nil
}

func (c *Core) openStores(logger *zap.Logger) error {
	if c.db == nil {
		db, err := store.Open(c.cfg.DBPath, store.WithLogger(logger))
		if err != nil {
			return err
		}

		c.db = db
		c.ownsDB = true
	}

	c.settings = settings.New(c.db, logger)
	if err := c.settings.LoadDefaults(); err != nil {
		return err
	}

	c.audit = audit.New(c.db, logger, audit.WithClock(c.now))
	c.recorder = &exportRecorder{core: c}

	var err error

	if c.patients, err = patient.Open(c.db, logger, patient.WithClock(c.now)); err != nil {
		return err
	}

	c.trend = trend.New(c.db, logger)

	if c.auth, err = auth.Open(c.db, c.recorder, logger, auth.WithClock(c.now)); err != nil {
		return err
	}

	timeout := c.settings.GetInt(settings.KeySessionTimeout, int(auth.DefaultTimeout))
	if err := c.auth.SetTimeout(int64(timeout)); err != nil {
		c.logger.Warn("ignoring session timeout setting", zap.Int("timeout", timeout), zap.Error(err))
	}

	for i := range c.engines {
		c.engines[i] = alarm.NewEngine()
		if err := c.engines[i].LoadLimits(c.settings); err != nil {
			c.logger.Warn("alarm limits partly loaded", zap.Int("slot", i), zap.Error(err))
		}
	}

	return nil
}

// buildExport routes FHIR sync items to the central station over MQTT
// when a broker is configured and to the log otherwise.
func (c *Core) buildExport(logger *zap.Logger) error {
	if c.transport == nil {
		if c.cfg.Export.MQTTBroker != "" {
			pub, err := export.DialMQTT(export.MQTTConfig{
				Broker:   c.cfg.Export.MQTTBroker,
				ClientID: c.cfg.Export.MQTTClientID,
				Username: c.cfg.Export.MQTTUsername,
				Password: c.cfg.Export.MQTTPassword,
			}, logger)
			if err != nil {
				return err
			}

			c.mqtt = pub
			c.transport = export.NewTransport(pub, c.deviceName(),
				export.WithTopicPrefix(c.cfg.Export.TopicPrefix))
		} else {
			c.transport = export.NewLogTransport(logger)
		}
	}

	transport := c.transport
	if c.cfg.Export.RatePerSec > 0 {
		transport = syncqueue.RateLimited(transport, c.cfg.Export.RatePerSec, syncqueue.MaxBatch)
	}

	var err error

	c.queue, err = syncqueue.Open(c.db, transport, logger, syncqueue.WithClock(c.now))
	if err != nil {
		return err
	}

	c.worker = syncqueue.NewWorker(c.queue, logger,
		syncqueue.WithExecutor(c.Do),
		syncqueue.WithInterval(c.cfg.Export.Interval.Std()),
		syncqueue.WithMaxBackoff(c.cfg.Export.MaxBackoff.Std()))

	return nil
}

func (c *Core) buildProvider(logger *zap.Logger) {
	if c.provider == nil {
		opts := []vitals.Option{
			vitals.WithLogger(logger),
			vitals.WithDispatcher(c.Dispatch),
			vitals.WithClock(c.now),
			vitals.WithSlots(c.cfg.Slots),
			vitals.WithWaveformInterval(c.cfg.WaveformInterval.Std()),
		}

		if c.cfg.Source == config.SourceIPC {
			c.provider = vitals.NewIPC(c.cfg.IPC.Vitals, c.cfg.IPC.Waveforms, opts...)
		} else {
			opts = append(opts, vitals.WithNIBPEvery(c.nibpTicks()))
			c.provider = vitals.NewMock(opts...)
		}
	}

	c.provider.SetVitalsSink(vitals.VitalsSinkFunc(c.onVitals))
	c.provider.SetWaveformSink(vitals.WaveformSinkFunc(c.onWaveform))
}

// nibpTicks converts the NIBP interval setting into vitals ticks.
func (c *Core) nibpTicks() int {
	secs := c.settings.GetInt(settings.KeyNIBPInterval, 60)
	per := c.cfg.VitalsInterval.Std()

	if per <= 0 || secs <= 0 {
		return 60
	}

	return max(1, int(time.Duration(secs)*time.Second/per))
}

// deviceName prefers the configured name over the stored setting.
func (c *Core) deviceName() string {
	if c.cfg.DeviceName != "" {
		return c.cfg.DeviceName
	}

	if c.settings != nil {
		if name := c.settings.GetString(settings.KeyDeviceName, ""); name != "" {
			return name
		}
	}

	return "vitalmon"
}

func (c *Core) closeDB() {
	if c.mqtt != nil {
		c.mqtt.Close()
		c.mqtt = nil
	}

	if c.ownsDB && c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Warn("failed to close store", zap.Error(err))
		}

		c.ownsDB = false
	}
}

// Metrics returns the collectors updated by the owner thread.
func (c *Core) Metrics() *metrics.Metrics {
	return c.metrics
}

// Start runs the owner loop until ctx ends. It satisfies lifecycle.Process.
func (c *Core) Start(ctx context.Context) error {
	return c.Run(ctx)
}

// Stop waits for the owner loop to finish shutting the services down.
// A core that never ran just releases its store.
func (c *Core) Stop(ctx context.Context) error {
	if !c.running.Load() {
		c.closeDB()
		return nil
	}

	select {
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the owner loop. It starts every service, then runs dispatched
// functions and the one second tick until ctx ends.
func (c *Core) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer close(c.stopped)

	sec := c.now().Unix()
	c.startedAt = sec
	c.lastPurge = sec
	c.lastExport = sec

	if err := c.manager.StartAll(sec); err != nil {
		c.logger.Warn("some services failed to start", zap.Error(err))
	}

	c.logger.Info("monitor core running",
		zap.String("device", c.deviceName()),
		zap.String("source", c.cfg.Source),
		zap.Int("slots", c.cfg.Slots))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case fn := <-c.tasks:
			fn()
		case <-ticker.C:
			c.tick(c.now())
		}
	}
}

func (c *Core) shutdown() {
	// Producers blocked in Dispatch return once quit closes, so provider
	// goroutines can exit while StopAll waits for them.
	close(c.quit)

	if err := c.manager.StopAll(); err != nil {
		c.logger.Warn("services stopped with errors", zap.Error(err))
	}

	c.closeDB()
	c.logger.Info("monitor core stopped")
}

// Dispatch queues fn for the owner thread. It is the providers'
// vitals.Dispatcher. After shutdown begins fn is dropped.
func (c *Core) Dispatch(fn func()) {
	select {
	case c.tasks <- fn:
	case <-c.quit:
	}
}

// Do runs fn on the owner thread and waits for it to finish.
func (c *Core) Do(ctx context.Context, fn func()) error {
	if !c.running.Load() {
		return ErrNotRunning
	}

	select {
	case <-c.quit:
		return ErrNotRunning
	default:
	}

	done := make(chan struct{})

	select {
	case c.tasks <- func() { fn(); close(done) }:
	case <-c.quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}
