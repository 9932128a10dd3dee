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
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/binkynet/MotorWorker/pkg/motor"
)

// CommandRequest is the JSON form of a drive command.
// Either Command is set, or Direction (with Speed for forward & backward).
type CommandRequest struct {
	// Command in text form, e.g. "forward 50"
	Command string `json:"command,omitempty"`
	// Direction: stop|forward|backward|brake
	Direction string `json:"direction,omitempty"`
	// Speed 0...100
	Speed *uint32 `json:"speed,omitempty"`
}

// DriveCommand converts the request into a drive command.
// The speed is not range checked here, that is left to the motor.
func (r CommandRequest) DriveCommand() (motor.DriveCommand, error) {
	if r.Command != "" {
		return motor.ParseDriveCommand(r.Command)
	}
	dir, err := motor.ParseDirection(r.Direction)
	if err != nil {
		return motor.DriveCommand{}, err
	}
	cmd := motor.DriveCommand{Direction: dir}
	if r.Speed != nil {
		if !dir.HasSpeed() && *r.Speed != 0 {
			return motor.DriveCommand{}, errors.Wrapf(motor.InvalidCommandError, "'%s' does not take a speed", dir)
		}
		cmd.Speed = *r.Speed
	} else if dir.HasSpeed() {
		return motor.DriveCommand{}, errors.Wrapf(motor.InvalidCommandError, "'%s' requires a speed", dir)
	}
	return cmd, nil
}

// ParseCommandPayload parses a drive command that is either
// in text form ("forward 50") or a JSON encoded CommandRequest.
func ParseCommandPayload(payload []byte) (motor.DriveCommand, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return motor.DriveCommand{}, errors.Wrap(motor.InvalidCommandError, "empty payload")
	}
	if payload[0] != '{' {
		return motor.ParseDriveCommand(string(payload))
	}
	var req CommandRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return motor.DriveCommand{}, errors.Wrap(motor.InvalidCommandError, err.Error())
	}
	return req.DriveCommand()
}
