// Copyright 2020 Ewout Prangsma
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

package devices

import "context"

// GPIO contains the API that is supported by all general purpose I/O devices.
type GPIO interface {
	Device
	// PinCount returns the number of pins of the device
	PinCount() int
	// Set the direction of the pin at given index (1...)
	SetDirection(ctx context.Context, pin int, direction PinDirection) error
	// Get the direction of the pin at given index (1...)
	GetDirection(ctx context.Context, pin int) (PinDirection, error)
	// Set the pin at given index (1...) to the given value
	Set(ctx context.Context, pin int, value bool) error
	// Get the value of the pin at given index (1...)
	Get(ctx context.Context, pin int) (bool, error)
}

// PinDirection is the direction of a GPIO pin.
type PinDirection byte

const (
	PinDirectionInput PinDirection = iota
	PinDirectionOutput
)

func (d PinDirection) String() string {
	if d == PinDirectionOutput {
		return "output"
	}
	return "input"
}
