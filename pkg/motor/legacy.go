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

// Low level API.
// These methods bypass speed validation. The duty cycle is only
// written after the direction pins and it can only be made non-zero
// once a direction has been selected.

// CW sets the direction pins for clockwise (forward) rotation,
// keeping the current duty value.
// Pin A is written before pin B, so switching from CCW with a non-zero
// duty passes through A=high,B=high (brake) while the duty is applied.
// Call SetDuty(ctx, 0) first to reverse without load.
func (d *Driver) CW(ctx context.Context) error {
	return d.setDirectionPins(ctx, DirectionForward)
}

// CCW sets the direction pins for counter clockwise (backward) rotation,
// keeping the current duty value.
// Switching from CW passes through A=low,B=low (coast).
func (d *Driver) CCW(ctx context.Context) error {
	return d.setDirectionPins(ctx, DirectionBackward)
}

// BrakePins drives both pins high and sets the duty to 0.
func (d *Driver) BrakePins(ctx context.Context) error {
	if d.closed {
		return ErrClosed
	}
	v, _ := Validate(Brake())
	return d.apply(ctx, v, true)
}

// SetDuty writes a raw duty value, clamped to MaxDuty.
func (d *Driver) SetDuty(ctx context.Context, value Duty) error {
	if d.closed {
		return ErrClosed
	}
	if value > d.maxDuty {
		value = d.maxDuty
	}
	dir := d.current.Direction
	if !dir.HasSpeed() && value != 0 {
		return errors.Wrapf(InvalidCommandError, "cannot set duty %d while in '%s', select a direction first", value, dir)
	}
	cmd := DriveCommand{Direction: dir, Speed: speedForDuty(value, d.maxDuty)}
	if err := d.pwm.SetDuty(ctx, value); err != nil {
		return &DriveError{Kind: KindPWM, Command: cmd, Err: err}
	}
	d.current = cmd
	d.duty = value
	return nil
}

func (d *Driver) setDirectionPins(ctx context.Context, dir Direction) error {
	if d.closed {
		return ErrClosed
	}
	cmd := DriveCommand{Direction: dir, Speed: speedForDuty(d.duty, d.maxDuty)}
	levelA, levelB := levelsFor(dir)
	if err := setLevel(ctx, d.pinA, levelA); err != nil {
		return &DriveError{Kind: KindPinA, Command: cmd, Err: err}
	}
	if err := setLevel(ctx, d.pinB, levelB); err != nil {
		return &DriveError{Kind: KindPinB, Command: cmd, Err: err, RevertErr: d.revertPins(ctx, true, false)}
	}
	d.current = cmd
	return nil
}
