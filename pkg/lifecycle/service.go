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
)

//go:generate mockgen -destination=mock_service.go -package=lifecycle github.com/mfreeman451/vitalmon/pkg/lifecycle Service,TickingService

// Service is a supervised component. Init acquires resources, Start
// begins work, Stop ends it and Deinit releases what Init acquired.
type Service interface {
	Name() string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Deinit()
}

// Ticker is implemented by services that report liveness. A Tick error
// means the service made no progress and its heartbeat is not refreshed.
type Ticker interface {
	Tick(now int64) error
}

// TickingService is a Service that heartbeats.
type TickingService interface {
	Service
	Ticker
}

// State is a service's supervised state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const (
	MaxServices = 8

	// HeartbeatTimeout is how long a ticking service may go without a
	// successful tick, in seconds.
	HeartbeatTimeout = 30

	// RestartBackoff is the minimum gap between start attempts, in seconds.
	RestartBackoff = 3
)

var (
	ErrInvalidService   = errors.New("invalid service")
	ErrDuplicateService = errors.New("service already registered")
	ErrTooManyServices  = errors.New("service limit reached")
	ErrUnknownService   = errors.New("unknown service")
	ErrInitFailed       = errors.New("service init failed")
	ErrStartFailed      = errors.New("service start failed")
	ErrStopFailed       = errors.New("service stop failed")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

// Status is a snapshot of one supervised service.
type Status struct {
	Name          string `json:"name"`
	State         State  `json:"state"`
	StateName     string `json:"state_name"`
	AutoRestart   bool   `json:"auto_restart"`
	RestartCount  int    `json:"restart_count"`
	StartTime     int64  `json:"start_time"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	LastError     string `json:"last_error,omitempty"`
}
