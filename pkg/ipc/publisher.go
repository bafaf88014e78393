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
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

const (
	DefaultMaxSubscribers = 16
	DefaultQueueDepth     = 64

	writeTimeout    = time.Second
	shutdownTimeout = 2 * time.Second
)

type pubConfig struct {
	logger         *zap.Logger
	maxSubscribers int
	queueDepth     int
}

// PublisherOption configures Listen.
type PublisherOption func(*pubConfig)

func WithPublisherLogger(l *zap.Logger) PublisherOption {
	return func(c *pubConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxSubscribers caps concurrent subscribers; extra connects get ErrFull.
func WithMaxSubscribers(n int) PublisherOption {
	return func(c *pubConfig) {
		if n > 0 {
			c.maxSubscribers = n
		}
	}
}

// WithQueueDepth sets the per-subscriber send queue. A full queue drops.
func WithQueueDepth(n int) PublisherOption {
	return func(c *pubConfig) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

type peer struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// Publisher fans every published message out to all connected
// subscribers of one topic. Delivery is lossy under overflow.
type Publisher struct {
	topic    string
	endpoint Endpoint
	cfg      pubConfig
	logger   *zap.Logger

	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	peers  map[*peer]struct{}
	closed bool

	sent    atomic.Uint64
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// Listen binds a publisher for topic on endpoint.
func Listen(endpoint, topic string, opts ...PublisherOption) (*Publisher, error) {
	if !validTopic(topic) {
		return nil, fmt.Errorf("%w: topic %q", ErrParam, topic)
	}

	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	cfg := pubConfig{
		logger:         zap.NewNop(),
		maxSubscribers: DefaultMaxSubscribers,
		queueDepth:     DefaultQueueDepth,
	}

	for _, o := range opts {
		o(&cfg)
	}

	if ep.Network == "unix" {
		// stale socket from an unclean exit
		if err := os.Remove(ep.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrSocket, err)
		}
	}

	ln, err := net.Listen(ep.Network, ep.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBind, ep, err)
	}

	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		ep.Address = tcp.String()
	}

	p := &Publisher{
		topic:    topic,
		endpoint: ep,
		cfg:      cfg,
		logger:   cfg.logger.With(zap.String("component", "ipc.pub"), zap.String("topic", topic)),
		// rejected subscribers still need a connection to learn ErrFull
		listener: netutil.LimitListener(ln, cfg.maxSubscribers+2),
		peers:    make(map[*peer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  MaxMessageSize,
			WriteBufferSize: MaxMessageSize,
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/ipc/{topic}", p.handleSubscribe).Methods(http.MethodGet)

	p.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		if err := p.server.Serve(p.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("serve failed", zap.Error(err))
		}
	}()

	p.logger.Info("publisher bound", zap.String("endpoint", ep.String()))

	return p, nil
}

// Endpoint returns the bound endpoint. For tcp://host:0 it carries the
// chosen port.
func (p *Publisher) Endpoint() string {
	return p.endpoint.String()
}

func (p *Publisher) Topic() string {
	return p.topic
}

func (p *Publisher) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["topic"] != p.topic {
		http.NotFound(w, r)
		return
	}

	p.mu.Lock()
	full := len(p.peers) >= p.cfg.maxSubscribers
	closed := p.closed
	p.mu.Unlock()

	if closed {
		http.Error(w, "closed", http.StatusGone)
		return
	}

	if full {
		http.Error(w, "subscriber limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	pr := &peer{
		conn: conn,
		out:  make(chan []byte, p.cfg.queueDepth),
		done: make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed || len(p.peers) >= p.cfg.maxSubscribers {
		p.mu.Unlock()
		_ = conn.Close()

		return
	}

	p.peers[pr] = struct{}{}
	p.wg.Add(2)
	p.mu.Unlock()

	p.logger.Debug("subscriber connected", zap.String("remote", r.RemoteAddr))

	go p.writeLoop(pr)
	go p.readLoop(pr)
}

// writeLoop drains a peer's queue onto its connection.
func (p *Publisher) writeLoop(pr *peer) {
	defer p.wg.Done()
	defer p.remove(pr)

	for {
		select {
		case <-pr.done:
			return
		case buf := <-pr.out:
			_ = pr.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			if err := pr.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				p.logger.Debug("subscriber write failed", zap.Error(err))
				return
			}
		}
	}
}

// readLoop only watches for the peer going away.
func (p *Publisher) readLoop(pr *peer) {
	defer p.wg.Done()
	defer p.remove(pr)

	pr.conn.SetReadLimit(MaxMessageSize)

	for {
		if _, _, err := pr.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (p *Publisher) remove(pr *peer) {
	p.mu.Lock()
	delete(p.peers, pr)
	p.mu.Unlock()

	pr.close()
}

// Publish queues buf for every subscriber. A subscriber whose queue is
// full misses the message. Publishing with no subscribers succeeds.
func (p *Publisher) Publish(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("%w: empty message", ErrParam)
	}

	if len(buf) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(buf))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	msg := append([]byte(nil), buf...)

	for pr := range p.peers {
		select {
		case pr.out <- msg:
			p.sent.Add(1)
		default:
			p.dropped.Add(1)
		}
	}

	return nil
}

// Subscribers returns the number of connected subscribers.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.peers)
}

// Stats returns queued and dropped message counts.
func (p *Publisher) Stats() (sent, dropped uint64) {
	return p.sent.Load(), p.dropped.Load()
}

// Close disconnects all subscribers and releases the endpoint.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}

	p.closed = true
	peers := make([]*peer, 0, len(p.peers))

	for pr := range p.peers {
		peers = append(peers, pr)
	}
	p.mu.Unlock()

	for _, pr := range peers {
		pr.close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := p.server.Shutdown(ctx)

	p.wg.Wait()

	if p.endpoint.Network == "unix" {
		_ = os.Remove(p.endpoint.Address)
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrSocket, err)
	}

	return nil
}
