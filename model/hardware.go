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

import "github.com/pkg/errors"

// HWDevice holds the configuration of a device attached to the worker.
type HWDevice struct {
	// Unique identifier of the device (instance)
	ID string `json:"id" yaml:"id"`
	// Address is used to identify the device on a bus.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Type of the device
	Type HWDeviceType `json:"type" yaml:"type"`
}

// HWDeviceType identifies a type of device.
type HWDeviceType string

const (
	// HWDeviceTypeGPIO is the set of local GPIO pins of the board.
	HWDeviceTypeGPIO HWDeviceType = "gpio"
	// HWDeviceTypePCA9685 is a 16 channel, 12-bit PWM controller on the I2C bus.
	HWDeviceTypePCA9685 HWDeviceType = "pca9685"
	// HWDeviceTypeMCP23008 is an 8 pin GPIO expander on the I2C bus.
	HWDeviceTypeMCP23008 HWDeviceType = "mcp23008"
	// HWDeviceTypePCF8574 is an 8 pin quasi-bidirectional I/O expander on the I2C bus.
	HWDeviceTypePCF8574 HWDeviceType = "pcf8574"
)

const (
	pca9685OutputCount = 16
	expanderPinCount   = 8
)

// Validate the given type.
func (t HWDeviceType) Validate() error {
	switch t {
	case HWDeviceTypeGPIO, HWDeviceTypePCA9685, HWDeviceTypeMCP23008, HWDeviceTypePCF8574:
		return nil
	default:
		return errors.Wrapf(ValidationError, "invalid device type '%s'", string(t))
	}
}

// RequiresAddress returns true when devices of this type must have an address.
func (t HWDeviceType) RequiresAddress() bool {
	switch t {
	case HWDeviceTypePCA9685, HWDeviceTypeMCP23008, HWDeviceTypePCF8574:
		return true
	default:
		return false
	}
}

// HasDutyCycle returns true for devices with duty cycle outputs.
func (t HWDeviceType) HasDutyCycle() bool {
	return t == HWDeviceTypePCA9685
}

// ValidateIndex checks the given pin index for a device of this type.
// The number of local GPIO pins is only known at runtime.
func (t HWDeviceType) ValidateIndex(index int) error {
	if index < 1 {
		return errors.Wrapf(ValidationError, "index must be 1 or higher, got %d", index)
	}
	limit := 0
	switch t {
	case HWDeviceTypePCA9685:
		limit = pca9685OutputCount
	case HWDeviceTypeMCP23008, HWDeviceTypePCF8574:
		limit = expanderPinCount
	}
	if limit > 0 && index > limit {
		return errors.Wrapf(ValidationError, "index must be in 1..%d range, got %d", limit, index)
	}
	return nil
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (d HWDevice) Validate() error {
	if d.ID == "" {
		return errors.Wrap(ValidationError, "ID is empty")
	}
	if err := d.Type.Validate(); err != nil {
		return errors.Wrapf(ValidationError, "Error in Type of '%s': %s", d.ID, err.Error())
	}
	if d.Type.RequiresAddress() && d.Address == "" {
		return errors.Wrapf(ValidationError, "Address of '%s' is empty", d.ID)
	}
	return nil
}
