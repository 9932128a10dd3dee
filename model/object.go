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

package model

import (
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/binkynet/MotorWorker/pkg/motor"
)

// Object holds the base info for each type of real world object.
type Object struct {
	// Unique ID of the object
	ID string `json:"id" yaml:"id"`
	// Type of object
	Type ObjectType `json:"type" yaml:"type"`
	// Connections of this object to device pins.
	// The keys used in this map are specific to the type of object.
	Connections map[ConnectionName]Connection `json:"connections,omitempty" yaml:"connections,omitempty"`
	// Options of the object
	Options ObjectOptions `json:"options,omitempty" yaml:"options,omitempty"`
	// Steps executed once the object is configured
	Script []ScriptStep `json:"script,omitempty" yaml:"script,omitempty"`
}

// ObjectType identifies a type of real world objects.
type ObjectType string

const (
	// ObjectTypeMotor is a DC motor driven by a two pin H-bridge.
	ObjectTypeMotor ObjectType = "motor"
)

// ConnectionName is the name of a connection of an object.
type ConnectionName string

const (
	// ConnectionNamePinA is the first direction input of the H-bridge.
	ConnectionNamePinA ConnectionName = "pin-a"
	// ConnectionNamePinB is the second direction input of the H-bridge.
	ConnectionNamePinB ConnectionName = "pin-b"
	// ConnectionNamePWM is the enable/speed input of the H-bridge.
	ConnectionNamePWM ConnectionName = "pwm"
)

// ObjectTypeInfo describes the connections needed by a type of object.
type ObjectTypeInfo struct {
	Type        ObjectType
	Connections []ConnectionName
}

var (
	objectTypeInfos = []ObjectTypeInfo{
		{
			Type:        ObjectTypeMotor,
			Connections: []ConnectionName{ConnectionNamePinA, ConnectionNamePinB, ConnectionNamePWM},
		},
	}
)

// Connection binds a connection of an object to a device pin.
type Connection struct {
	Pin `yaml:",inline"`
	// If set, the logical value of the pin is inverted.
	Invert bool `json:"invert,omitempty" yaml:"invert,omitempty"`
}

// SafeState is the state a motor is put in when it is closed.
type SafeState string

const (
	SafeStateStop  SafeState = "stop"
	SafeStateBrake SafeState = "brake"
)

// Command returns the drive command for the safe state.
// An empty safe state means stop.
func (s SafeState) Command() motor.DriveCommand {
	if s == SafeStateBrake {
		return motor.Brake()
	}
	return motor.Stop()
}

// Validate the given safe state.
func (s SafeState) Validate() error {
	switch s {
	case "", SafeStateStop, SafeStateBrake:
		return nil
	default:
		return errors.Wrapf(ValidationError, "invalid safe-state '%s' (stop|brake)", string(s))
	}
}

// ObjectOptions holds optional settings of an object.
type ObjectOptions struct {
	// State applied when the object is closed (default stop)
	SafeState SafeState `json:"safe-state,omitempty" yaml:"safe-state,omitempty"`
	// If set, direction pins are restored when a later hardware write fails.
	RevertOnFailure bool `json:"revert-on-failure,omitempty" yaml:"revert-on-failure,omitempty"`
}

// ScriptStep is a single drive command followed by a dwell time.
type ScriptStep struct {
	// Command in text form, e.g. "forward 20"
	Command string `json:"command" yaml:"command"`
	// Duration to wait after applying the command
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Parse the command of the step.
// Only commands that pass motor validation are accepted.
func (s ScriptStep) Parse() (motor.DriveCommand, error) {
	cmd, err := motor.ParseDriveCommand(s.Command)
	if err != nil {
		return motor.DriveCommand{}, errors.Wrapf(ValidationError, "invalid command '%s': %s", s.Command, err)
	}
	if _, err := motor.Validate(cmd); err != nil {
		return motor.DriveCommand{}, errors.Wrapf(ValidationError, "invalid command '%s': %s", s.Command, err)
	}
	if s.Duration < 0 {
		return motor.DriveCommand{}, errors.Wrapf(ValidationError, "negative duration in '%s'", s.Command)
	}
	return cmd, nil
}

// Validate the given type.
func (t ObjectType) Validate() error {
	if _, found := t.info(); found {
		return nil
	}
	return errors.Wrapf(ValidationError, "invalid object type '%s'", string(t))
}

func (t ObjectType) info() (ObjectTypeInfo, bool) {
	for _, x := range objectTypeInfos {
		if x.Type == t {
			return x, true
		}
	}
	return ObjectTypeInfo{}, false
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (o Object) Validate() error {
	if o.ID == "" {
		return errors.Wrap(ValidationError, "ID is empty")
	}
	if err := o.Type.Validate(); err != nil {
		return errors.Wrapf(ValidationError, "Error in Type of '%s': %s", o.ID, err.Error())
	}
	info, _ := o.Type.info()
	for _, name := range info.Connections {
		if _, found := o.Connections[name]; !found {
			return errors.Wrapf(ValidationError, "connection '%s' missing in object '%s'", name, o.ID)
		}
	}
	for name, conn := range o.Connections {
		if !lo.Contains(info.Connections, name) {
			return errors.Wrapf(ValidationError, "unknown connection '%s' in object '%s'", name, o.ID)
		}
		if conn.DeviceID == "" {
			return errors.Wrapf(ValidationError, "connection '%s' of object '%s' has no device", name, o.ID)
		}
	}
	if err := o.Options.SafeState.Validate(); err != nil {
		return errors.Wrapf(ValidationError, "Error in options of '%s': %s", o.ID, err.Error())
	}
	for i, step := range o.Script {
		if _, err := step.Parse(); err != nil {
			return errors.Wrapf(ValidationError, "Error in script step %d of '%s': %s", i+1, o.ID, err.Error())
		}
	}
	return nil
}
