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
	"time"

	"github.com/binkynet/MotorWorker/pkg/motor"
)

// MotorState is a snapshot of the state of a single motor.
type MotorState struct {
	// ID of the motor object
	ID string `json:"id"`
	// Direction of the last applied command
	Direction string `json:"direction"`
	// Speed (0...100) of the last applied command
	Speed uint32 `json:"speed"`
	// Duty value last written to the PWM channel
	Duty uint32 `json:"duty"`
	// Maximum duty value of the PWM channel
	MaxDuty uint32 `json:"max_duty"`
	// Set when the motor is configured
	Configured bool `json:"configured"`
	// Message of the last failed operation (cleared by a successful one)
	Error string `json:"error,omitempty"`
	// Kind of the last failure
	ErrorKind string `json:"error_kind,omitempty"`
	// Time of the last state change
	LastChange time.Time `json:"last_change"`
	// Revision is incremented on every change of this motor.
	// Listeners use it to drop out of order notifications.
	Revision uint64 `json:"revision"`
}

// Command returns the last applied drive command.
func (s MotorState) Command() motor.DriveCommand {
	dir, err := motor.ParseDirection(s.Direction)
	if err != nil {
		return motor.Stop()
	}
	return motor.DriveCommand{Direction: dir, Speed: s.Speed}
}
