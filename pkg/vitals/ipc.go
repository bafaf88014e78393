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

package vitals

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/ipc"
	"github.com/mfreeman451/vitalmon/pkg/models"
)

// IPC consumes VITALS and WAVEFORM messages published by a sensor
// process. Receivers run on their own goroutines and marshal every
// delivery through the dispatcher.
type IPC struct {
	base

	opts      options
	endpoints map[string]string

	subsMu sync.Mutex
	subs   map[string]*ipc.Subscriber

	// last NIBP triple per slot, merged into vitals without one
	nibpMu sync.Mutex
	nibp   [models.SlotCount]*ipc.NIBPResult

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

var _ Provider = (*IPC)(nil)

// NewIPC returns a provider reading the vitals and waveforms endpoints.
// An empty waveforms endpoint disables waveform reception.
func NewIPC(vitalsEndpoint, waveformsEndpoint string, opts ...Option) *IPC {
	o := defaultOptions()
	o.recvTimeout = ipc.DefaultRecvTimeout

	for _, fn := range opts {
		fn(&o)
	}

	p := &IPC{
		opts:      o,
		endpoints: map[string]string{ipc.TopicVitals: vitalsEndpoint},
	}

	if waveformsEndpoint != "" {
		p.endpoints[ipc.TopicWaveforms] = waveformsEndpoint
	}

	p.base.init(o.logger.With(zap.String("component", "vitals.ipc")), o.dispatch)

	return p
}

// Init connects to the publishers. On any failure nothing stays open.
func (p *IPC) Init() error {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	if p.subs != nil {
		return nil
	}

	subs := make(map[string]*ipc.Subscriber, len(p.endpoints))

	for topic, ep := range p.endpoints {
		sub, err := ipc.Dial(ep, topic, ipc.WithSubscriberLogger(p.opts.logger))
		if err != nil {
			for _, s := range subs {
				_ = s.Close()
			}

			return err
		}

		sub.SetHandler(p.handle)
		subs[topic] = sub
	}

	p.subs = subs

	p.logger.Info("ipc source connected", zap.Int("endpoints", len(subs)))

	return nil
}

// Start launches one receiver per endpoint. The interval is unused by
// this source; samples arrive at the publisher's rate.
func (p *IPC) Start(_ time.Duration) error {
	p.subsMu.Lock()
	subs := make([]*ipc.Subscriber, 0, len(p.subs))

	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.subsMu.Unlock()

	if len(subs) == 0 {
		return ErrNotInitialized
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	p.running = true
	p.stop = make(chan struct{})

	for _, s := range subs {
		p.wg.Add(1)

		go p.receive(s, p.stop)
	}

	return nil
}

func (p *IPC) receive(sub *ipc.Subscriber, stop <-chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, err := sub.Poll(p.opts.recvTimeout)

		switch {
		case err == nil, errors.Is(err, ipc.ErrTimeout):
		case errors.Is(err, ipc.ErrClosed):
			return
		default:
			p.logger.Warn("ipc receive failed", zap.Error(err))
			return
		}
	}
}

// handle translates a wire message into canonical structures.
func (p *IPC) handle(msg *ipc.Message) {
	switch msg.Type {
	case ipc.MsgVitals:
		v := *msg.Vitals
		p.mergeNIBP(&v)
		p.deliverVitals(v)
	case ipc.MsgWaveform:
		p.deliverWaveform(*msg.Waveform)
	case ipc.MsgNIBPResult:
		if models.ValidSlot(msg.NIBPResult.Slot) {
			r := *msg.NIBPResult

			p.nibpMu.Lock()
			p.nibp[r.Slot] = &r
			p.nibpMu.Unlock()
		}
	default:
		// other types are tolerated and ignored
	}
}

// mergeNIBP carries a pending NIBP_RESULT into the next vitals sample
// that lacks a fresh triple of its own.
func (p *IPC) mergeNIBP(v *models.Vitals) {
	if !models.ValidSlot(v.Slot) || v.NIBPFresh {
		return
	}

	p.nibpMu.Lock()
	r := p.nibp[v.Slot]
	p.nibp[v.Slot] = nil
	p.nibpMu.Unlock()

	if r == nil || r.Sys == 0 || r.Dia == 0 {
		return
	}

	v.NIBPSys, v.NIBPDia, v.NIBPMap = r.Sys, r.Dia, r.Map
	if v.NIBPMap == 0 {
		v.NIBPMap = models.MeanArterial(r.Sys, r.Dia)
	}

	v.NIBPFresh = true
}

// Subscriber returns the receiver for topic, for test injection.
func (p *IPC) Subscriber(topic string) *ipc.Subscriber {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()

	return p.subs[topic]
}

func (p *IPC) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}

	p.running = false
	close(p.stop)
	p.runMu.Unlock()

	p.wg.Wait()
}

// Deinit stops receivers and disconnects.
func (p *IPC) Deinit() {
	p.Stop()

	p.subsMu.Lock()
	subs := p.subs
	p.subs = nil
	p.subsMu.Unlock()

	for topic, s := range subs {
		if err := s.Close(); err != nil {
			p.logger.Warn("close subscriber", zap.String("topic", topic), zap.Error(err))
		}
	}

	p.reset()
}
