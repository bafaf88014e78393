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

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultRecvTimeout = 100 * time.Millisecond
	defaultDialTimeout = 2 * time.Second
)

type subConfig struct {
	logger      *zap.Logger
	queueDepth  int
	dialTimeout time.Duration
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*subConfig)

func WithSubscriberLogger(l *zap.Logger) SubscriberOption {
	return func(c *subConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithInboxDepth(n int) SubscriberOption {
	return func(c *subConfig) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

func WithDialTimeout(d time.Duration) SubscriberOption {
	return func(c *subConfig) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// Handler receives decoded messages from Poll and Inject.
type Handler func(*Message)

// Subscriber receives every message published on one endpoint. Messages
// that fail to decode, including a foreign header version, are dropped.
type Subscriber struct {
	topic  string
	cfg    subConfig
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	inbox   chan []byte
	readErr error
	handler Handler

	closed  atomic.Bool
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// NewSubscriber returns an unconnected subscriber. Recv fails with ErrInit
// until Connect succeeds; Inject works regardless.
func NewSubscriber(topic string, opts ...SubscriberOption) (*Subscriber, error) {
	if !validTopic(topic) {
		return nil, fmt.Errorf("%w: topic %q", ErrParam, topic)
	}

	cfg := subConfig{
		logger:      zap.NewNop(),
		queueDepth:  DefaultQueueDepth,
		dialTimeout: defaultDialTimeout,
	}

	for _, o := range opts {
		o(&cfg)
	}

	return &Subscriber{
		topic:  topic,
		cfg:    cfg,
		logger: cfg.logger.With(zap.String("component", "ipc.sub"), zap.String("topic", topic)),
	}, nil
}

// Dial creates a subscriber and connects it to endpoint.
func Dial(endpoint, topic string, opts ...SubscriberOption) (*Subscriber, error) {
	s, err := NewSubscriber(topic, opts...)
	if err != nil {
		return nil, err
	}

	if err := s.Connect(endpoint); err != nil {
		return nil, err
	}

	return s, nil
}

// Connect attaches the subscriber to a publisher endpoint.
func (s *Subscriber) Connect(endpoint string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return err
	}

	host := ep.Address
	if ep.Network == "unix" {
		host = "localhost"
	}

	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, ep.Network, ep.Address)
		},
		HandshakeTimeout: s.cfg.dialTimeout,
		ReadBufferSize:   MaxMessageSize,
		WriteBufferSize:  MaxMessageSize,
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, "ws://"+host+topicPath(s.topic), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("%w: %s", ErrFull, ep)
		}

		return fmt.Errorf("%w: %s: %w", ErrConnect, ep, err)
	}

	conn.SetReadLimit(MaxMessageSize)

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		_ = conn.Close()

		return fmt.Errorf("%w: already connected", ErrParam)
	}

	s.conn = conn
	s.inbox = make(chan []byte, s.cfg.queueDepth)
	s.readErr = nil
	inbox := s.inbox
	s.wg.Add(1)
	s.mu.Unlock()

	go s.readLoop(conn, inbox)

	s.logger.Debug("subscriber connected", zap.String("endpoint", ep.String()))

	return nil
}

func (s *Subscriber) readLoop(conn *websocket.Conn, inbox chan []byte) {
	defer s.wg.Done()
	defer close(inbox)

	for {
		kind, buf, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed.Load() {
				s.readErr = fmt.Errorf("%w: %w", ErrRecv, err)
			}
			s.mu.Unlock()

			return
		}

		if kind != websocket.BinaryMessage {
			continue
		}

		select {
		case inbox <- buf:
		default:
			s.dropped.Add(1)
		}
	}
}

// SetHandler installs the callback used by Poll and Inject.
func (s *Subscriber) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Subscriber) currentHandler() Handler {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.handler
}

// Recv waits up to timeout for the next valid message. A timeout of zero
// or less polls without blocking. ErrTimeout means no data arrived.
func (s *Subscriber) Recv(timeout time.Duration) (*Message, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	s.mu.Lock()
	inbox := s.inbox
	s.mu.Unlock()

	if inbox == nil {
		return nil, ErrInit
	}

	var expired <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		expired = timer.C
	}

	for {
		var (
			buf []byte
			ok  bool
		)

		if expired == nil {
			select {
			case buf, ok = <-inbox:
			default:
				return nil, ErrTimeout
			}
		} else {
			select {
			case buf, ok = <-inbox:
			case <-expired:
				return nil, ErrTimeout
			}
		}

		if !ok {
			return nil, s.terminalErr()
		}

		msg, err := Decode(buf)
		if err != nil {
			s.dropped.Add(1)
			s.logger.Debug("dropped message", zap.Error(err))

			continue
		}

		return msg, nil
	}
}

func (s *Subscriber) terminalErr() error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readErr != nil {
		return s.readErr
	}

	return ErrRecv
}

// Poll waits up to timeout for a message, then drains whatever else is
// already queued, passing each to the handler. It returns the number of
// messages delivered.
func (s *Subscriber) Poll(timeout time.Duration) (int, error) {
	msg, err := s.Recv(timeout)
	if err != nil {
		return 0, err
	}

	h := s.currentHandler()
	n := 0

	for msg != nil {
		if h != nil {
			h(msg)
		}

		n++

		msg, err = s.Recv(0)
		if err != nil && !errors.Is(err, ErrTimeout) {
			return n, err
		}
	}

	return n, nil
}

// Inject decodes buf and delivers it to the handler synchronously, as if
// it had been received. It is meant for tests.
func (s *Subscriber) Inject(buf []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	msg, err := Decode(buf)
	if err != nil {
		return err
	}

	if h := s.currentHandler(); h != nil {
		h(msg)
	}

	return nil
}

// Dropped returns how many messages were lost to overflow or bad framing.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Close disconnects. Further calls return ErrClosed.
func (s *Subscriber) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	var err error

	if conn != nil {
		err = conn.Close()
	}

	s.wg.Wait()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrSocket, err)
	}

	return nil
}
