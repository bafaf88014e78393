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

// Package export carries sync queue items off the device: to a central
// station over MQTT, or into the log when no broker is configured.
package export

import "context"

//go:generate mockgen -destination=mock_export.go -package=export github.com/mfreeman451/vitalmon/pkg/export Publisher

// Publisher delivers one payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}
