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


package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/ipc"
	"github.com/mfreeman451/vitalmon/pkg/lifecycle"
)

const controlPollTimeout = 100 * time.Millisecond

var (
	_ lifecycle.TickingService = (*providerService)(nil)
	_ lifecycle.Service        = (*alarmsService)(nil)
	_ lifecycle.TickingService = (*controlService)(nil)
)

// providerService supervises the vitals source. Its tick fails once no
// sample has arrived for staleAfter seconds, so a silent IPC sensor is
// restarted by the manager.
type providerService struct {
	core *Core
}

func (*providerService) Name() string { return "vitals" }

func (s *providerService) Init(context.Context) error {
	return s.core.provider.Init()
}

func (s *providerService) Start(context.Context) error {
	s.core.startedAt = s.core.now().Unix()

	return s.core.provider.Start(s.core.cfg.VitalsInterval.Std())
}

func (s *providerService) Stop(context.Context) error {
	s.core.provider.Stop()
	return nil
}

func (s *providerService) Deinit() {
	s.core.provider.Deinit()
}

func (s *providerService) Tick(now int64) error {
	last := max(s.core.lastSample, s.core.startedAt)

	if gap := now - last; gap > staleAfter {
		return fmt.Errorf("%w for %ds", ErrNoSamples, gap)
	}

	return nil
}

// alarmsService owns the alarm PUB endpoint.
type alarmsService struct {
	core *Core
}

func (*alarmsService) Name() string { return "alarms" }

func (*alarmsService) Init(context.Context) error { return nil }

func (s *alarmsService) Start(context.Context) error {
	pub, err := ipc.Listen(s.core.cfg.IPC.Alarms, ipc.TopicAlarms,
		ipc.WithPublisherLogger(s.core.logger))
	if err != nil {
		return err
	}

	s.core.alarms = pub

	return nil
}

func (s *alarmsService) Stop(context.Context) error {
	pub := s.core.alarms
	if pub == nil {
		return nil
	}

	s.core.alarms = nil

	return pub.Close()
}

func (*alarmsService) Deinit() {}

// controlService subscribes to the control endpoint. Messages are
// received on a poll goroutine and handled on the owner thread.
type controlService struct {
	core *Core

	sub  *ipc.Subscriber
	stop chan struct{}
	wg   sync.WaitGroup
	err  atomic.Pointer[error]
}

func (*controlService) Name() string { return "control" }

func (s *controlService) Init(context.Context) error {
	sub, err := ipc.Dial(s.core.cfg.IPC.Control, ipc.TopicControl,
		ipc.WithSubscriberLogger(s.core.logger))
	if err != nil {
		return err
	}

	sub.SetHandler(func(msg *ipc.Message) {
		s.core.Dispatch(func() { s.core.handleControl(msg) })
	})

	s.sub = sub

	return nil
}

func (s *controlService) Start(context.Context) error {
	if s.sub == nil {
		return ipc.ErrInit
	}

	s.err.Store(nil)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.poll(s.sub, s.stop)

	return nil
}

func (s *controlService) poll(sub *ipc.Subscriber, stop <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, err := sub.Poll(controlPollTimeout)

		switch {
		case err == nil, errors.Is(err, ipc.ErrTimeout):
		case errors.Is(err, ipc.ErrClosed):
			return
		default:
			s.core.logger.Warn("control receive failed", zap.Error(err))
			s.err.Store(&err)

			return
		}
	}
}

func (s *controlService) Stop(context.Context) error {
	if s.stop == nil {
		return nil
	}

	close(s.stop)
	s.stop = nil

	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			s.core.logger.Debug("control close", zap.Error(err))
		}
	}

	s.wg.Wait()

	return nil
}

func (s *controlService) Deinit() {
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
}

// Tick fails after the poll loop has exited on a receive error.
func (s *controlService) Tick(int64) error {
	if p := s.err.Load(); p != nil {
		return *p
	}

	return nil
}
