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
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

// MQTTConfig describes the central station broker.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// MQTTPublisher publishes through a paho client.
type MQTTPublisher struct {
	client mqtt.Client
	logger *zap.Logger
}

var _ Publisher = (*MQTTPublisher)(nil)

// DialMQTT connects to cfg.Broker. The client reconnects on its own after
// the first successful connect.
func DialMQTT(cfg MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, ErrEmptyBroker
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	logger = logger.With(zap.String("component", "mqtt"), zap.String("broker", cfg.Broker))

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(timeout)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("Connected to broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("Broker connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("%w: timed out after %s", ErrConnect, timeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return NewMQTTPublisher(client, logger), nil
}

// NewMQTTPublisher wraps an already configured client.
func NewMQTTPublisher(client mqtt.Client, logger *zap.Logger) *MQTTPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MQTTPublisher{client: client, logger: logger}
}

// Publish waits for the broker to acknowledge the message or for ctx to
// end, whichever is first.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	token := p.client.Publish(topic, qos, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrNotAck, topic, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublish, topic, err)
	}

	return nil
}

func (p *MQTTPublisher) Connected() bool {
	return p.client.IsConnected()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(disconnectQuiesceMs)
}
