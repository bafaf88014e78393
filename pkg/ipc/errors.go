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
	"errors"
	"fmt"
)

var (
	ErrInit    = errors.New("ipc: not initialised")
	ErrSocket  = errors.New("ipc: socket creation failed")
	ErrBind    = errors.New("ipc: bind failed")
	ErrConnect = errors.New("ipc: connect failed")
	ErrSend    = errors.New("ipc: send failed")
	ErrRecv    = errors.New("ipc: receive failed")
	ErrTimeout = errors.New("ipc: timeout")
	ErrParam   = errors.New("ipc: bad parameter")
	ErrFull    = errors.New("ipc: resource cap reached")
	ErrClosed  = errors.New("ipc: closed")

	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrParam)
	ErrShortMessage    = fmt.Errorf("%w: short message", ErrParam)
	ErrVersion         = fmt.Errorf("%w: unsupported version", ErrParam)
	ErrUnknownType     = fmt.Errorf("%w: unknown message type", ErrParam)
	ErrPayloadSize     = fmt.Errorf("%w: payload size mismatch", ErrParam)
	ErrBadEndpoint     = fmt.Errorf("%w: bad endpoint", ErrParam)
)
