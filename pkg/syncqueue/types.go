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

package syncqueue

import (
	"errors"
	"fmt"
)

// ItemType selects the transport an item is exported through.
type ItemType int

const (
	TypeVitals ItemType = iota
	TypePatient
	TypeAlarm
	TypeAudit
	typeCount
)

func (t ItemType) String() string {
	switch t {
	case TypeVitals:
		return "VITALS"
	case TypePatient:
		return "PATIENT"
	case TypeAlarm:
		return "ALARM"
	case TypeAudit:
		return "AUDIT"
	default:
		return fmt.Sprintf("ItemType(%d)", int(t))
	}
}

func (t ItemType) Valid() bool {
	return t >= 0 && t < typeCount
}

// Status is the delivery state of a queued item.
type Status int

const (
	StatusPending Status = iota
	StatusSending
	StatusSent
	StatusFailed
	StatusRetry
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusSending:
		return "SENDING"
	case StatusSent:
		return "SENT"
	case StatusFailed:
		return "FAILED"
	case StatusRetry:
		return "RETRY"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

const (
	DefaultCapacity   = 256
	MaxPayloadBytes   = 4096
	DefaultMaxRetries = 5
	MaxBatch          = 16
)

// Item is one queued export.
type Item struct {
	ID            int64    `json:"id"`
	Type          ItemType `json:"type"`
	Status        Status   `json:"status"`
	Payload       string   `json:"payload"`
	CreatedTs     int64    `json:"created_ts"`
	LastAttemptTs int64    `json:"last_attempt_ts"`
	RetryCount    int      `json:"retry_count"`
	MaxRetries    int      `json:"max_retries"`
}

// Stats counts items by status. Pending includes RETRY items.
type Stats struct {
	Pending int `json:"pending"`
	Retry   int `json:"retry"`
	Sending int `json:"sending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// BatchResult summarises one Process call.
type BatchResult struct {
	Attempted int
	Sent      int
	Retry     int
	Failed    int
}

func (r *BatchResult) add(o BatchResult) {
	r.Attempted += o.Attempted
	r.Sent += o.Sent
	r.Retry += o.Retry
	r.Failed += o.Failed
}

var (
	ErrQueueFull       = errors.New("sync queue full")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("item not found")
	ErrNoTransport     = errors.New("no transport for item type")
	ErrFailedToPush    = errors.New("failed to push item")
	ErrFailedToQuery   = errors.New("failed to query sync queue")
	ErrFailedToUpdate  = errors.New("failed to update sync item")
)
