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
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/pkg/motor"
	"github.com/binkynet/MotorWorker/pkg/service/objects"
)

// DefaultTopicPrefix returns the topic prefix used for a module
// when no prefix is configured.
func DefaultTopicPrefix(moduleID string) string {
	return "/binky/" + moduleID + "/"
}

// MotorBridge connects the motors to MQTT.
//
// Commands (text or JSON, see objects.ParseCommandPayload) are received
// on <prefix>motor/<id>/command, the state of every
// motor is published (retained) on <prefix>motor/<id>/state and failures
// on <prefix>motor/<id>/error.
type MotorBridge struct {
	log     zerolog.Logger
	svc     Service
	objects objects.Service
	prefix  string

	mutex     sync.Mutex
	ctx       context.Context
	revisions map[string]uint64
}

// stateMessage is published on the state topic.
type stateMessage struct {
	Direction string `json:"direction"`
	Speed     uint32 `json:"speed"`
	Duty      uint32 `json:"duty"`
	MaxDuty   uint32 `json:"max_duty"`
	Error     string `json:"error,omitempty"`
}

// errorMessage is published on the error topic.
type errorMessage struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

// NewMotorBridge creates a new bridge for all motors of the given service.
func NewMotorBridge(svc Service, objs objects.Service, prefix string, log zerolog.Logger) *MotorBridge {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &MotorBridge{
		log:       log.With().Str("component", "mqtt-motors").Logger(),
		svc:       svc,
		objects:   objs,
		prefix:    prefix,
		ctx:       context.Background(),
		revisions: make(map[string]uint64),
	}
}

// Run the bridge until the given context is canceled.
func (b *MotorBridge) Run(ctx context.Context) error {
	b.mutex.Lock()
	b.ctx = ctx
	b.mutex.Unlock()

	cancel := b.objects.Subscribe(func(s objects.MotorState) {
		b.publishState(s, false)
	})
	defer cancel()
	b.svc.OnConnect(func() {
		// Callbacks cannot be removed from the service, ignore them once stopped.
		if ctx.Err() != nil {
			return
		}
		b.publishStates()
	})
	topic := b.prefix + "motor/+/command"
	if err := b.svc.Subscribe(topic, QosAtLeastOnce, b.onCommand); err != nil {
		return maskAny(err)
	}
	// Configure announced the initial states before we subscribed.
	if b.svc.IsConnected() {
		b.publishStates()
	}
	b.log.Info().Str("topic", topic).Msg("Waiting for motor commands")
	<-ctx.Done()
	return nil
}

// onCommand processes a message received on a command topic.
func (b *MotorBridge) onCommand(topic string, payload []byte) {
	id, ok := b.motorID(topic, "command")
	if !ok {
		return
	}
	b.mutex.Lock()
	ctx := b.ctx
	b.mutex.Unlock()

	log := b.log.With().Str("id", id).Logger()
	cmd, err := objects.ParseCommandPayload(payload)
	if err != nil {
		motorCommandsTotal.WithLabelValues(id, "invalid").Inc()
		log.Warn().Err(err).Bytes("payload", payload).Msg("Invalid motor command")
		b.publishError(ctx, id, string(payload), err)
		return
	}
	if _, err := b.objects.Drive(ctx, id, cmd); err != nil {
		motorCommandsTotal.WithLabelValues(id, "failed").Inc()
		log.Warn().Err(err).Str("command", cmd.String()).Msg("Motor command failed")
		b.publishError(ctx, id, cmd.String(), err)
		return
	}
	motorCommandsTotal.WithLabelValues(id, "ok").Inc()
}

// publishStates publishes the current state of all motors.
func (b *MotorBridge) publishStates() {
	for _, s := range b.objects.MotorStates() {
		b.publishState(s, true)
	}
}

// publishState publishes the given state unless a newer state has
// already been published.
func (b *MotorBridge) publishState(s objects.MotorState, force bool) {
	b.mutex.Lock()
	if last, found := b.revisions[s.ID]; found && (s.Revision < last || (!force && s.Revision == last)) {
		b.mutex.Unlock()
		return
	}
	b.revisions[s.ID] = s.Revision
	ctx := b.ctx
	b.mutex.Unlock()

	msg := stateMessage{
		Direction: s.Direction,
		Speed:     s.Speed,
		Duty:      s.Duty,
		MaxDuty:   s.MaxDuty,
		Error:     s.Error,
	}
	topic := b.prefix + "motor/" + s.ID + "/state"
	if err := b.svc.Publish(ctx, msg, topic, QosAtLeastOnce, true); err != nil {
		b.log.Debug().Err(err).Str("topic", topic).Msg("Failed to publish motor state")
	}
}

func (b *MotorBridge) publishError(ctx context.Context, id, command string, err error) {
	msg := errorMessage{
		Command: command,
		Error:   err.Error(),
	}
	if kind := motor.KindOf(err); kind != 0 {
		msg.Kind = kind.String()
	}
	topic := b.prefix + "motor/" + id + "/error"
	if err := b.svc.Publish(ctx, msg, topic, QosDefault, false); err != nil {
		b.log.Debug().Err(err).Str("topic", topic).Msg("Failed to publish motor error")
	}
}

// motorID extracts the motor ID from a topic like <prefix>motor/<id>/<suffix>.
func (b *MotorBridge) motorID(topic, suffix string) (string, bool) {
	rest := strings.TrimPrefix(topic, b.prefix+"motor/")
	if rest == topic || !strings.HasSuffix(rest, "/"+suffix) {
		return "", false
	}
	id := strings.TrimSuffix(rest, "/"+suffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
