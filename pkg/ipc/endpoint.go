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
	"fmt"
	"strings"
)

// Logical topic names.
const (
	TopicVitals    = "vitals"
	TopicWaveforms = "waveforms"
	TopicAlarms    = "alarms"
	TopicControl   = "control"
)

// Endpoint is a parsed binding string.
type Endpoint struct {
	Network string // "unix" or "tcp"
	Address string
}

func (e Endpoint) String() string {
	if e.Network == "unix" {
		return "unix://" + e.Address
	}

	return "tcp://" + e.Address
}

// ParseEndpoint accepts unix:///path/to.sock or tcp://host:port.
func ParseEndpoint(s string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || rest == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrBadEndpoint, s)
	}

	switch scheme {
	case "unix", "ipc":
		return Endpoint{Network: "unix", Address: rest}, nil
	case "tcp":
		if !strings.Contains(rest, ":") {
			return Endpoint{}, fmt.Errorf("%w: %q missing port", ErrBadEndpoint, s)
		}

		return Endpoint{Network: "tcp", Address: rest}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrBadEndpoint, scheme)
	}
}

func validTopic(topic string) bool {
	switch topic {
	case TopicVitals, TopicWaveforms, TopicAlarms, TopicControl:
		return true
	default:
		return false
	}
}

func topicPath(topic string) string {
	return "/ipc/" + topic
}
