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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	MaxRecvSize     = 4 * 1024 * 1024 // 4MB
	MaxSendSize     = 4 * 1024 * 1024 // 4MB
	ShutdownTimeout = 10 * time.Second
)

// Process is a top-level component. Start blocks until ctx ends or the
// process fails.
type Process interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// ServerOptions holds configuration for RunServer.
type ServerOptions struct {
	ServiceName string
	Process     Process
	Logger      *zap.Logger

	// HealthAddr enables the gRPC health endpoint when set.
	HealthAddr string
	Health     *health.Server

	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// HealthServer serves grpc.health.v1 on a TCP address.
type HealthServer struct {
	srv      *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewHealthServer binds addr and registers hs. A nil hs gets a fresh one.
func NewHealthServer(addr string, hs *health.Server) (*HealthServer, error) {
	if hs == nil {
		hs = health.NewServer()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(MaxRecvSize),
		grpc.MaxSendMsgSize(MaxSendSize),
	)
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{srv: srv, health: hs, listener: ln}, nil
}

func (h *HealthServer) Addr() string {
	return h.listener.Addr().String()
}

func (h *HealthServer) Health() *health.Server {
	return h.health
}

// Serve blocks until Stop.
func (h *HealthServer) Serve() error {
	if err := h.srv.Serve(h.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

// Stop drains in-flight checks, then forces the server down at ctx end.
func (h *HealthServer) Stop(ctx context.Context) {
	h.health.Shutdown()

	done := make(chan struct{})

	go func() {
		h.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.srv.Stop()
	}
}

// RunServer runs opts.Process until a signal, a process error or ctx
// cancellation, then stops it within ShutdownTimeout.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger = logger.With(zap.String("service", opts.ServiceName))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting service")

	errChan := make(chan error, 2)

	var hs *HealthServer

	if opts.HealthAddr != "" {
		var err error

		hs, err = NewHealthServer(opts.HealthAddr, opts.Health)
		if err != nil {
			return fmt.Errorf("failed to setup health server: %w", err)
		}

		go func() {
			logger.Info("health server listening", zap.String("addr", hs.Addr()))

			if err := hs.Serve(); err != nil {
				select {
				case errChan <- fmt.Errorf("health server: %w", err):
				default:
					logger.Error("health server error", zap.Error(err))
				}
			}
		}()
	}

	go func() {
		if err := opts.Process.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case errChan <- err:
			default:
				logger.Error("service error", zap.Error(err))
			}
		}
	}()

	return handleShutdown(ctx, cancel, logger, hs, opts, errChan)
}

func handleShutdown(
	ctx context.Context, cancel context.CancelFunc, logger *zap.Logger,
	hs *HealthServer, opts *ServerOptions, errChan chan error) error {
	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, signals...)

	defer signal.Stop(sigChan)

	var runErr error

	select {
	case sig := <-sigChan:
		logger.Info("received signal, initiating shutdown", zap.Stringer("signal", sig))
	case err := <-errChan:
		logger.Error("received error, initiating shutdown", zap.Error(err))
		runErr = fmt.Errorf("service error: %w", err)
	case <-ctx.Done():
		logger.Info("context canceled, initiating shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	cancel()

	if hs != nil {
		hs.Stop(shutdownCtx)
	}

	if err := opts.Process.Stop(shutdownCtx); err != nil {
		logger.Error("error during service shutdown", zap.Error(err))
		return errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}

	return runErr
}
