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
	"fmt"

	"github.com/mfreeman451/vitalmon/pkg/audit"
	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
)

var _ audit.Recorder = (*exportRecorder)(nil)

// exportRecorder appends to the audit log and queues each stored entry
// as a FHIR AuditEvent.
type exportRecorder struct {
	core *Core
}

func (r *exportRecorder) Record(ev audit.Event, username, message string) error {
	c := r.core

	if err := c.audit.Record(ev, username, message); err != nil {
		return err
	}

	// Stores opened during New record before the queue exists.
	if c.queue == nil || c.fhir == nil {
		return nil
	}

	c.enqueue(syncqueue.TypeAudit, c.fhir.AuditEvent(&audit.Entry{
		Event:     ev,
		Username:  username,
		Message:   message,
		Timestamp: c.now().Unix(),
	}))

	return nil
}

func (r *exportRecorder) Recordf(ev audit.Event, username, format string, args ...any) error {
	return r.Record(ev, username, fmt.Sprintf(format, args...))
}
