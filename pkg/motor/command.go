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
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxSpeed is the highest valid speed percentage.
const MaxSpeed = 100

// Direction identifies the variant of a DriveCommand.
type Direction uint8

const (
	// DirectionStop lets the motor coast (both outputs low, duty 0).
	DirectionStop Direction = iota
	// DirectionForward drives the motor forward.
	DirectionForward
	// DirectionBackward drives the motor backward.
	DirectionBackward
	// DirectionBrake shorts both motor terminals (both outputs high, duty 0).
	DirectionBrake
)

// String returns the lower case name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionStop:
		return "stop"
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	case DirectionBrake:
		return "brake"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// HasSpeed returns true for the variants that carry a speed payload.
func (d Direction) HasSpeed() bool {
	return d == DirectionForward || d == DirectionBackward
}

// ParseDirection converts a direction name into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stop", "coast", "off":
		return DirectionStop, nil
	case "forward", "fwd", "cw":
		return DirectionForward, nil
	case "backward", "reverse", "rev", "ccw":
		return DirectionBackward, nil
	case "brake":
		return DirectionBrake, nil
	default:
		return DirectionStop, errors.Wrapf(InvalidCommandError, "unknown direction '%s'", s)
	}
}

// DriveCommand describes the desired behavior of a motor.
// The zero value is Stop.
type DriveCommand struct {
	Direction Direction
	// Speed in percent of the maximum duty. Only used by Forward & Backward.
	Speed uint32
}

// Forward creates a command that drives forward at given speed (percent).
func Forward(speed uint32) DriveCommand {
	return DriveCommand{Direction: DirectionForward, Speed: speed}
}

// Backward creates a command that drives backward at given speed (percent).
func Backward(speed uint32) DriveCommand {
	return DriveCommand{Direction: DirectionBackward, Speed: speed}
}

// Brake creates a command that actively brakes the motor.
func Brake() DriveCommand {
	return DriveCommand{Direction: DirectionBrake}
}

// Stop creates a command that lets the motor coast.
func Stop() DriveCommand {
	return DriveCommand{}
}

// String returns a human readable form of the command that
// can be parsed back with ParseDriveCommand.
func (c DriveCommand) String() string {
	if c.Direction.HasSpeed() {
		return fmt.Sprintf("%s %d", c.Direction, c.Speed)
	}
	return c.Direction.String()
}

// ParseDriveCommand parses commands like "stop", "brake", "forward 50"
// or "backward:20". The speed range is not validated here.
func ParseDriveCommand(s string) (DriveCommand, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ':' || r == '='
	})
	if len(fields) == 0 {
		return DriveCommand{}, errors.Wrap(InvalidCommandError, "empty command")
	}
	dir, err := ParseDirection(fields[0])
	if err != nil {
		return DriveCommand{}, err
	}
	if !dir.HasSpeed() {
		if len(fields) > 1 {
			return DriveCommand{}, errors.Wrapf(InvalidCommandError, "'%s' does not take a speed", dir)
		}
		return DriveCommand{Direction: dir}, nil
	}
	if len(fields) != 2 {
		return DriveCommand{}, errors.Wrapf(InvalidCommandError, "'%s' requires a speed", dir)
	}
	speed, err := strconv.ParseUint(strings.TrimSuffix(fields[1], "%"), 10, 32)
	if err != nil {
		return DriveCommand{}, errors.Wrapf(InvalidCommandError, "invalid speed '%s'", fields[1])
	}
	return DriveCommand{Direction: dir, Speed: uint32(speed)}, nil
}

// Level of a digital output.
type Level bool

const (
	// Low drives the output to ground.
	Low Level = false
	// High drives the output to the supply voltage.
	High Level = true
)

// ValidatedCommand is a DriveCommand that passed Validate.
type ValidatedCommand struct {
	cmd DriveCommand
}

// Validate checks the speed range of the given command.
// Brake and Stop carry an implicit speed of 0.
func Validate(cmd DriveCommand) (ValidatedCommand, error) {
	switch cmd.Direction {
	case DirectionForward, DirectionBackward:
		if cmd.Speed > MaxSpeed {
			return ValidatedCommand{}, &DriveError{Kind: KindInvalidSpeed, Command: cmd}
		}
		return ValidatedCommand{cmd: cmd}, nil
	case DirectionStop, DirectionBrake:
		return ValidatedCommand{cmd: DriveCommand{Direction: cmd.Direction}}, nil
	default:
		return ValidatedCommand{}, errors.Wrapf(InvalidCommandError, "unknown direction %d", uint8(cmd.Direction))
	}
}

// Command returns the (normalized) command.
func (v ValidatedCommand) Command() DriveCommand {
	return v.cmd
}

// Speed returns the speed percentage (0 for Brake & Stop).
func (v ValidatedCommand) Speed() uint32 {
	return v.cmd.Speed
}

// LevelA returns the level of pin A for this command.
func (v ValidatedCommand) LevelA() Level {
	a, _ := levelsFor(v.cmd.Direction)
	return a
}

// LevelB returns the level of pin B for this command.
func (v ValidatedCommand) LevelB() Level {
	_, b := levelsFor(v.cmd.Direction)
	return b
}

func levelsFor(d Direction) (Level, Level) {
	switch d {
	case DirectionForward:
		return High, Low
	case DirectionBackward:
		return Low, High
	case DirectionBrake:
		return High, High
	default:
		return Low, Low
	}
}
