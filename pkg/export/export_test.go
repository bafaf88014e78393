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
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mfreeman451/vitalmon/pkg/syncqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTransportTopics(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := NewMockPublisher(ctrl)

	tr := NewTransport(pub, "bed-3", WithTopicPrefix("/ward7/"), WithQoS(0))

	assert.Equal(t, "ward7/bed-3/vitals", tr.Topic(syncqueue.TypeVitals))
	assert.Equal(t, "ward7/bed-3/alarm", tr.Topic(syncqueue.TypeAlarm))

	pub.EXPECT().Publish(gomock.Any(), "ward7/bed-3/audit", byte(0), []byte(`{"a":1}`)).Return(nil)
	require.NoError(t, tr.Send(context.Background(), &syncqueue.Item{Type: syncqueue.TypeAudit, Payload: `{"a":1}`}))

	boom := errors.New("offline")
	pub.EXPECT().Publish(gomock.Any(), "ward7/bed-3/patient", byte(0), gomock.Any()).Return(boom)
	require.ErrorIs(t, tr.Send(context.Background(), &syncqueue.Item{Type: syncqueue.TypePatient}), boom)
}

func TestTransportDefaults(t *testing.T) {
	tr := NewTransport(nil, "")
	assert.Equal(t, "vitalmon/vitals", tr.Topic(syncqueue.TypeVitals))

	tr = NewTransport(nil, "m1", WithTopicPrefix(""))
	assert.Equal(t, "m1/alarm", tr.Topic(syncqueue.TypeAlarm))
}

func TestLogTransport(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewLogTransport(zap.New(core))

	require.NoError(t, tr.Send(context.Background(), &syncqueue.Item{ID: 3, Type: syncqueue.TypeVitals, Payload: "xyz"}))
	require.Equal(t, 1, logs.Len())

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(3), fields["id"])
	assert.Equal(t, "VITALS", fields["type"])
	assert.Equal(t, int64(3), fields["bytes"])
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func (f *fakeToken) Wait() bool                     { <-f.done; return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Done() <-chan struct{}          { return f.done }
func (f *fakeToken) Error() error                   { return f.err }

type fakeClient struct {
	mqtt.Client

	token     *fakeToken
	topics    []string
	connected bool
}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	f.topics = append(f.topics, topic)
	return f.token
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Disconnect(uint) { f.connected = false }

func closedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)

	return t
}

func TestMQTTPublisher(t *testing.T) {
	client := &fakeClient{token: closedToken(nil), connected: true}
	p := NewMQTTPublisher(client, nil)

	require.NoError(t, p.Publish(context.Background(), "a/b", 1, []byte("x")))
	assert.Equal(t, []string{"a/b"}, client.topics)
	assert.True(t, p.Connected())

	client.token = closedToken(errors.New("not authorized"))
	require.ErrorIs(t, p.Publish(context.Background(), "a/b", 1, nil), ErrPublish)

	p.Close()
	assert.False(t, p.Connected())
}

func TestMQTTPublisherContext(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: make(chan struct{})}}
	p := NewMQTTPublisher(client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Publish(ctx, "a/b", 1, nil)
	require.ErrorIs(t, err, ErrNotAck)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDialMQTTRequiresBroker(t *testing.T) {
	_, err := DialMQTT(MQTTConfig{}, nil)
	require.ErrorIs(t, err, ErrEmptyBroker)
}
