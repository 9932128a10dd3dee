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

import "context"

// Duty is a raw duty cycle counter value (0...MaxDuty).
type Duty uint32

// DigitalOutput is an output line that can be driven high or low.
type DigitalOutput interface {
	// SetHigh drives the output high.
	SetHigh(ctx context.Context) error
	// SetLow drives the output low.
	SetLow(ctx context.Context) error
}

// DutyChannel is an output with a controllable duty cycle.
type DutyChannel interface {
	// SetDuty sets the duty cycle counter (0...MaxDuty()).
	SetDuty(ctx context.Context, value Duty) error
	// MaxDuty returns the maximum representable duty value.
	// It is fixed by the timer configuration.
	MaxDuty() Duty
}

// ScaleDuty converts a speed percentage into a duty value
// for a channel with the given maximum.
func ScaleDuty(speed uint32, max Duty) Duty {
	return Duty(uint64(speed) * uint64(max) / MaxSpeed)
}

// speedForDuty is the inverse of ScaleDuty, rounded down.
func speedForDuty(value, max Duty) uint32 {
	if max == 0 {
		return 0
	}
	return uint32(uint64(value) * MaxSpeed / uint64(max))
}

func setLevel(ctx context.Context, out DigitalOutput, level Level) error {
	if level == High {
		return out.SetHigh(ctx)
	}
	return out.SetLow(ctx)
}
