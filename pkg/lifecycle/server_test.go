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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeProcess struct {
	startErr error
	stopped  atomic.Bool
}

func (p *fakeProcess) Start(ctx context.Context) error {
	if p.startErr != nil {
		return p.startErr
	}

	<-ctx.Done()

	return ctx.Err()
}

func (p *fakeProcess) Stop(context.Context) error {
	p.stopped.Store(true)
	return nil
}

func TestRunServerContextCancel(t *testing.T) {
	proc := &fakeProcess{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- RunServer(ctx, &ServerOptions{ServiceName: "test", Process: proc})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunServer did not return")
	}

	assert.True(t, proc.stopped.Load())
}

func TestRunServerProcessError(t *testing.T) {
	proc := &fakeProcess{startErr: errors.New("store corrupt")}

	err := RunServer(context.Background(), &ServerOptions{ServiceName: "test", Process: proc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store corrupt")
	assert.True(t, proc.stopped.Load())
}

func TestHealthServer(t *testing.T) {
	hs, err := NewHealthServer("127.0.0.1:0", nil)
	require.NoError(t, err)

	hs.Health().SetServingStatus("core", healthpb.HealthCheckResponse_SERVING)

	go func() { _ = hs.Serve() }()

	conn, err := grpc.NewClient(hs.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "core"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	hs.Stop(ctx)
}
