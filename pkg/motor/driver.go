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

package motor

import (
	"context"

	"github.com/pkg/errors"
)

// RevertPolicy controls what happens to already written pins
// when a later hardware write of the same Drive call fails.
type RevertPolicy uint8

const (
	// RevertNone leaves the pins as they are.
	RevertNone RevertPolicy = iota
	// RevertPins restores the pins changed by the failing call to the
	// levels of the last applied command (best effort).
	RevertPins
)

// Option configures a Driver.
type Option func(*Driver)

// WithRevertPolicy sets the policy used on partial failures.
func WithRevertPolicy(p RevertPolicy) Option {
	return func(d *Driver) {
		d.revert = p
	}
}

// WithSafeCommand sets the command applied by Close.
// Only Stop and Brake are accepted.
func WithSafeCommand(cmd DriveCommand) Option {
	return func(d *Driver) {
		d.safe = cmd
	}
}

// Driver controls a single H-bridge motor through two direction
// outputs and a duty cycle channel.
//
// A Driver exclusively owns its outputs. It does not lock;
// callers must serialize access.
type Driver struct {
	pinA    DigitalOutput
	pinB    DigitalOutput
	pwm     DutyChannel
	maxDuty Duty
	revert  RevertPolicy
	safe    DriveCommand

	current DriveCommand
	duty    Duty
	closed  bool
}

// New creates a driver for the given outputs and immediately applies Stop.
func New(ctx context.Context, pinA, pinB DigitalOutput, pwm DutyChannel, opts ...Option) (*Driver, error) {
	if pinA == nil || pinB == nil || pwm == nil {
		return nil, errors.New("pinA, pinB and pwm must all be set")
	}
	d := &Driver{
		pinA:    pinA,
		pinB:    pinB,
		pwm:     pwm,
		maxDuty: pwm.MaxDuty(),
		safe:    Stop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.safe.Direction != DirectionStop && d.safe.Direction != DirectionBrake {
		return nil, errors.Wrapf(InvalidCommandError, "safe command must be stop or brake, got '%s'", d.safe)
	}
	d.safe = DriveCommand{Direction: d.safe.Direction}
	v, _ := Validate(Stop())
	if err := d.apply(ctx, v, false); err != nil {
		return nil, err
	}
	return d, nil
}

// Drive validates the given command and applies it to the hardware.
// Pins are written before the duty cycle. The current command is only
// replaced after all hardware writes succeeded.
func (d *Driver) Drive(ctx context.Context, cmd DriveCommand) error {
	if d.closed {
		return ErrClosed
	}
	v, err := Validate(cmd)
	if err != nil {
		return err
	}
	return d.apply(ctx, v, true)
}

// Current returns the last successfully applied command.
func (d *Driver) Current() DriveCommand {
	return d.current
}

// Duty returns the last successfully written duty value.
func (d *Driver) Duty() Duty {
	return d.duty
}

// MaxDuty returns the maximum duty value of the channel.
func (d *Driver) MaxDuty() Duty {
	return d.maxDuty
}

// SafeCommand returns the command applied by Close.
func (d *Driver) SafeCommand() DriveCommand {
	return d.safe
}

// Close brings the motor to its safe state (Stop unless configured
// otherwise). Once Close succeeded, Drive returns ErrClosed.
func (d *Driver) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	v, _ := Validate(d.safe)
	if err := d.apply(ctx, v, true); err != nil {
		return err
	}
	d.closed = true
	return nil
}

// apply writes pin A, pin B and the duty cycle (in that order).
func (d *Driver) apply(ctx context.Context, v ValidatedCommand, canRevert bool) error {
	cmd := v.Command()
	if err := setLevel(ctx, d.pinA, v.LevelA()); err != nil {
		return &DriveError{Kind: KindPinA, Command: cmd, Err: err}
	}
	if err := setLevel(ctx, d.pinB, v.LevelB()); err != nil {
		de := &DriveError{Kind: KindPinB, Command: cmd, Err: err}
		if canRevert {
			de.RevertErr = d.revertPins(ctx, true, false)
		}
		return de
	}
	duty := ScaleDuty(v.Speed(), d.maxDuty)
	if err := d.pwm.SetDuty(ctx, duty); err != nil {
		de := &DriveError{Kind: KindPWM, Command: cmd, Err: err}
		if canRevert {
			de.RevertErr = d.revertPins(ctx, true, true)
		}
		return de
	}
	d.current = cmd
	d.duty = duty
	return nil
}

// revertPins restores the given pins to the levels of the current command,
// when the revert policy asks for it.
func (d *Driver) revertPins(ctx context.Context, pinA, pinB bool) error {
	if d.revert != RevertPins {
		return nil
	}
	levelA, levelB := levelsFor(d.current.Direction)
	var result error
	if pinB {
		if err := setLevel(ctx, d.pinB, levelB); err != nil {
			result = errors.Wrap(err, "pin B")
		}
	}
	if pinA {
		if err := setLevel(ctx, d.pinA, levelA); err != nil && result == nil {
			result = errors.Wrap(err, "pin A")
		}
	}
	return result
}
