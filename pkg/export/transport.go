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

package export

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
)

const DefaultTopicPrefix = "vitalmon"

// Transport publishes queue items to <prefix>/<device>/<type>, e.g.
// vitalmon/bed-3/vitals.
type Transport struct {
	pub    Publisher
	prefix string
	device string
	qos    byte
}

var _ syncqueue.Transport = (*Transport)(nil)

type TransportOption func(*Transport)

func WithTopicPrefix(prefix string) TransportOption {
	return func(t *Transport) {
		t.prefix = strings.Trim(prefix, "/")
	}
}

func WithQoS(qos byte) TransportOption {
	return func(t *Transport) {
		t.qos = qos
	}
}

func NewTransport(pub Publisher, device string, opts ...TransportOption) *Transport {
	t := &Transport{pub: pub, prefix: DefaultTopicPrefix, device: device, qos: 1}

	for _, o := range opts {
		o(t)
	}

	return t
}

// Topic returns the topic an item of type typ is published on.
func (t *Transport) Topic(typ syncqueue.ItemType) string {
	parts := make([]string, 0, 3)
	if t.prefix != "" {
		parts = append(parts, t.prefix)
	}

	if t.device != "" {
		parts = append(parts, t.device)
	}

	return strings.Join(append(parts, strings.ToLower(typ.String())), "/")
}

func (t *Transport) Send(ctx context.Context, item *syncqueue.Item) error {
	return t.pub.Publish(ctx, t.Topic(item.Type), t.qos, []byte(item.Payload))
}

// LogTransport writes items to the log and reports them delivered.
type LogTransport struct {
	logger *zap.Logger
}

var _ syncqueue.Transport = (*LogTransport)(nil)

func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LogTransport{logger: logger.With(zap.String("component", "export"))}
}

func (l *LogTransport) Send(_ context.Context, item *syncqueue.Item) error {
	l.logger.Info("Exported item",
		zap.Int64("id", item.ID),
		zap.Stringer("type", item.Type),
		zap.Int("bytes", len(item.Payload)),
		zap.Int("retry", item.RetryCount))

	return nil
}
