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

package objects

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/motor"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
	"github.com/binkynet/MotorWorker/pkg/service/script"
)

// motorObject binds a motor driver to device pins.
// All access to the driver is serialized.
type motorObject struct {
	mutex    sync.Mutex
	log      zerolog.Logger
	config   model.Object
	pinA     output
	pinB     output
	pwm      motor.DutyChannel
	onChange func(MotorState)

	driver     *motor.Driver
	lastErr    error
	lastChange time.Time
	revision   uint64
}

// newMotor creates a new motor object for the given configuration.
func newMotor(config model.Object, log zerolog.Logger, devService devices.Service, onChange func(MotorState)) (*motorObject, error) {
	if config.Type != model.ObjectTypeMotor {
		return nil, invalidArgument("Invalid object type '%s'", config.Type)
	}
	connA, err := getConnection(config, model.ConnectionNamePinA)
	if err != nil {
		return nil, err
	}
	connB, err := getConnection(config, model.ConnectionNamePinB)
	if err != nil {
		return nil, err
	}
	connPWM, err := getConnection(config, model.ConnectionNamePWM)
	if err != nil {
		return nil, err
	}
	pinA, err := newOutput(connA, devService)
	if err != nil {
		return nil, err
	}
	pinB, err := newOutput(connB, devService)
	if err != nil {
		return nil, err
	}
	pwm, err := newDutyChannel(connPWM, devService)
	if err != nil {
		return nil, err
	}
	return &motorObject{
		log:      log,
		config:   config,
		pinA:     pinA,
		pinB:     pinB,
		pwm:      pwm,
		onChange: onChange,
	}, nil
}

// ID returns the ID of the object.
func (m *motorObject) ID() string {
	return m.config.ID
}

// Configure prepares the pins and creates the driver, which stops the motor.
func (m *motorObject) Configure(ctx context.Context) error {
	m.mutex.Lock()
	if err := m.pinA.configure(ctx); err != nil {
		m.mutex.Unlock()
		return maskAny(err)
	}
	if err := m.pinB.configure(ctx); err != nil {
		m.mutex.Unlock()
		return maskAny(err)
	}
	opts := []motor.Option{
		motor.WithSafeCommand(m.config.Options.SafeState.Command()),
	}
	if m.config.Options.RevertOnFailure {
		opts = append(opts, motor.WithRevertPolicy(motor.RevertPins))
	}
	driver, err := motor.New(ctx, m.pinA, m.pinB, m.pwm, opts...)
	if err != nil {
		m.mutex.Unlock()
		return maskAny(err)
	}
	m.driver = driver
	state := m.changed(nil)
	m.mutex.Unlock()

	m.notify(state)
	return nil
}

// Drive applies the given command.
func (m *motorObject) Drive(ctx context.Context, cmd motor.DriveCommand) error {
	_, err := m.Apply(ctx, cmd)
	return err
}

// Apply the given command, returning the resulting state.
func (m *motorObject) Apply(ctx context.Context, cmd motor.DriveCommand) (MotorState, error) {
	m.mutex.Lock()
	if m.driver == nil {
		state := m.state()
		m.mutex.Unlock()
		return state, NotConfiguredError
	}
	id := m.config.ID
	motorDriveRequestsTotal.WithLabelValues(id).Inc()
	err := m.driver.Drive(ctx, cmd)
	log := m.log.With().Str("command", cmd.String()).Logger()
	if err != nil {
		motorDriveErrorsTotal.WithLabelValues(id, motor.KindOf(err).String()).Inc()
		log.Warn().Err(err).Msg("Drive failed")
	} else {
		log.Debug().Uint32("duty", uint32(m.driver.Duty())).Msg("Drive")
	}
	state := m.changed(err)
	m.mutex.Unlock()

	motorSpeedGauge.WithLabelValues(id).Set(signedSpeed(state.Command()))
	m.notify(state)
	return state, err
}

// State returns a snapshot of the current state.
func (m *motorObject) State() MotorState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state()
}

// Run executes the startup script of the motor (if any).
func (m *motorObject) Run(ctx context.Context) error {
	if len(m.config.Script) == 0 {
		return nil
	}
	m.log.Info().Int("steps", len(m.config.Script)).Msg("Running script")
	if err := script.Run(ctx, m.log, m, m.config.Script); err != nil {
		m.log.Warn().Err(err).Msg("Script failed")
		return nil
	}
	m.log.Info().Msg("Script finished")
	return nil
}

// Close brings the motor to its safe state.
func (m *motorObject) Close(ctx context.Context) error {
	m.mutex.Lock()
	if m.driver == nil {
		m.mutex.Unlock()
		return nil
	}
	err := m.driver.Close(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to bring motor to safe state")
	} else {
		m.log.Debug().Str("safe-state", m.driver.SafeCommand().String()).Msg("Motor closed")
	}
	state := m.changed(err)
	m.mutex.Unlock()

	m.notify(state)
	return maskAny(err)
}

// changed records a state change and returns the new state.
// Requires m.mutex.
func (m *motorObject) changed(err error) MotorState {
	m.lastErr = err
	m.lastChange = time.Now()
	m.revision++
	return m.state()
}

// state builds a snapshot of the current state.
// Requires m.mutex.
func (m *motorObject) state() MotorState {
	s := MotorState{
		ID:         m.config.ID,
		Direction:  motor.DirectionStop.String(),
		MaxDuty:    uint32(m.pwm.MaxDuty()),
		LastChange: m.lastChange,
		Revision:   m.revision,
	}
	if d := m.driver; d != nil {
		cur := d.Current()
		s.Configured = true
		s.Direction = cur.Direction.String()
		s.Speed = cur.Speed
		s.Duty = uint32(d.Duty())
	}
	if m.lastErr != nil {
		s.Error = m.lastErr.Error()
		if kind := motor.KindOf(m.lastErr); kind != 0 {
			s.ErrorKind = kind.String()
		}
	}
	return s
}

func (m *motorObject) notify(s MotorState) {
	if m.onChange != nil {
		m.onChange(s)
	}
}

// signedSpeed returns the speed, negative for backward.
func signedSpeed(cmd motor.DriveCommand) float64 {
	switch cmd.Direction {
	case motor.DirectionForward:
		return float64(cmd.Speed)
	case motor.DirectionBackward:
		return -float64(cmd.Speed)
	default:
		return 0
	}
}
