// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/pkg/service/util"
)

const (
	// QosAtMostOnce represents "QoS 0: At most once delivery".
	QosAtMostOnce byte = 0
	// QosAtLeastOnce represents "QoS 1: At least once delivery".
	QosAtLeastOnce byte = 1
	// QosDefault is used for all messages that do not need delivery guarantees.
	QosDefault = QosAtMostOnce

	publishTimeout    = time.Millisecond * 200
	disconnectQuiesce = 250
)

// Config of the MQTT service
type Config struct {
	// Address (host:port) of the broker
	BrokerAddress string
	// Client ID used to connect
	ClientID string
}

// Handler is called for every message received on a subscribed topic.
type Handler func(topic string, payload []byte)

// Service contains the API exposed by the MQTT service.
type Service interface {
	// Run the connection to the broker until the given context is canceled.
	Run(ctx context.Context) error
	// Publish a message into a topic.
	// Strings and byte slices are sent as is, everything else is JSON encoded.
	Publish(ctx context.Context, msg interface{}, topic string, qos byte, retained bool) error
	// Subscribe to a topic (filter). The subscription survives reconnects.
	Subscribe(topic string, qos byte, handler Handler) error
	// OnConnect registers a callback that is called after every (re)connect.
	OnConnect(cb func())
	// IsConnected returns true when the connection to the broker is up.
	IsConnected() bool
}

type subscription struct {
	qos     byte
	handler Handler
}

type service struct {
	Config
	log    zerolog.Logger
	client mqttapi.Client

	mutex         sync.Mutex
	subscriptions map[string]subscription
	onConnect     []func()
}

// NewService instantiates a new MQTT service.
func NewService(config Config, log zerolog.Logger) (Service, error) {
	if config.BrokerAddress == "" {
		return nil, maskAny(InvalidArgumentError)
	}
	s := &service{
		Config:        config,
		log:           log.With().Str("component", "mqtt").Logger(),
		subscriptions: make(map[string]subscription),
	}
	broker := config.BrokerAddress
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqttapi.NewClientOptions().
		AddBroker(broker).
		SetClientID(config.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	opts.SetConnectionLostHandler(func(c mqttapi.Client, err error) {
		connectionLostTotal.Inc()
		s.log.Warn().Err(err).Msg("Lost connection to MQTT")
	})
	opts.SetOnConnectHandler(s.connected)
	s.client = mqttapi.NewClient(opts)
	return s, nil
}

// Run the connection to the broker until the given context is canceled.
func (s *service) Run(ctx context.Context) error {
	defer func() {
		s.client.Disconnect(disconnectQuiesce)
		s.log.Debug().Msg("Disconnected from MQTT")
	}()
	once := func() error {
		token := s.client.Connect()
		if !waitToken(ctx, token) {
			return nil
		}
		if err := token.Error(); err != nil {
			return maskAny(err)
		}
		// Reconnects are handled by the client
		<-ctx.Done()
		return nil
	}
	return util.UntilCanceled(ctx, s.log, "MQTT connect", once)
}

// Publish a message into a topic.
func (s *service) Publish(ctx context.Context, msg interface{}, topic string, qos byte, retained bool) error {
	var payload []byte
	switch x := msg.(type) {
	case string:
		payload = []byte(x)
	case []byte:
		payload = x
	default:
		encoded, err := json.Marshal(msg)
		if err != nil {
			return maskAny(err)
		}
		payload = encoded
	}
	if !s.client.IsConnectionOpen() {
		publishErrorsTotal.Inc()
		return maskAny(NotConnectedError)
	}
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		publishErrorsTotal.Inc()
		return maskAny(TimeoutError)
	}
	if err := token.Error(); err != nil {
		publishErrorsTotal.Inc()
		return maskAny(err)
	}
	messagesPublishedTotal.Inc()
	return nil
}

// Subscribe to a topic (filter). The subscription survives reconnects.
func (s *service) Subscribe(topic string, qos byte, handler Handler) error {
	s.mutex.Lock()
	s.subscriptions[topic] = subscription{qos: qos, handler: handler}
	s.mutex.Unlock()

	if s.client.IsConnectionOpen() {
		return s.subscribe(topic, qos, handler)
	}
	// Subscribed once connected
	return nil
}

// OnConnect registers a callback that is called after every (re)connect.
func (s *service) OnConnect(cb func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onConnect = append(s.onConnect, cb)
}

// IsConnected returns true when the connection to the broker is up.
func (s *service) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// connected is called by the client after every (re)connect.
func (s *service) connected(c mqttapi.Client) {
	s.log.Info().Str("broker", s.BrokerAddress).Msg("Connected to MQTT")
	s.mutex.Lock()
	subs := make(map[string]subscription, len(s.subscriptions))
	for topic, sub := range s.subscriptions {
		subs[topic] = sub
	}
	callbacks := append([]func(){}, s.onConnect...)
	s.mutex.Unlock()

	for topic, sub := range subs {
		if err := s.subscribe(topic, sub.qos, sub.handler); err != nil {
			s.log.Error().Err(err).Msgf("failed to subscribe to '%s'", topic)
		}
	}
	for _, cb := range callbacks {
		// The client does not deliver messages while this handler runs
		go cb()
	}
}

func (s *service) subscribe(topic string, qos byte, handler Handler) error {
	cb := func(c mqttapi.Client, m mqttapi.Message) {
		messagesReceivedTotal.Inc()
		handler(m.Topic(), m.Payload())
	}
	token := s.client.Subscribe(topic, qos, cb)
	if token.Wait() && token.Error() != nil {
		return maskAny(token.Error())
	}
	s.log.Debug().Msgf("Subscribed to MQTT topic '%s'", topic)
	return nil
}

// waitToken waits until the given token completes.
// Returns false when the context was canceled first.
func waitToken(ctx context.Context, token mqttapi.Token) bool {
	select {
	case <-token.Done():
		return true
	case <-ctx.Done():
		return false
	}
}
