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

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
)

// pcf8574 has quasi-bidirectional pins. Writing 1 releases a pin (input or
// weak high), writing 0 drives it low.
type pcf8574 struct {
	mutex     sync.Mutex
	onActive  func()
	config    model.HWDevice
	bus       bridge.I2CBus
	address   uint8
	direction uint8 // 1/0 per bit means input/output
	output    uint8 // 1/0 per output pin
}

// newPCF8574 creates a GPIO instance for a pcf8574 device with given config.
func newPCF8574(config model.HWDevice, bus bridge.I2CBus, onActive func()) (GPIO, error) {
	if config.Type != model.HWDeviceTypePCF8574 {
		return nil, errors.Wrapf(InvalidDeviceTypeError, "'%s'", string(config.Type))
	}
	address, err := parseAddress(config.Address)
	if err != nil {
		return nil, err
	}
	return &pcf8574{
		onActive:  onActive,
		config:    config,
		bus:       bus,
		address:   address,
		direction: 0xff,
	}, nil
}

// ID returns the identifier of the device in the configuration.
func (d *pcf8574) ID() string {
	return d.config.ID
}

// Configure is called once to put the device in the desired state.
func (d *pcf8574) Configure(ctx context.Context) error {
	return d.reset(ctx)
}

// Close brings the device back to a safe state.
func (d *pcf8574) Close(ctx context.Context) error {
	return d.reset(ctx)
}

// reset releases all pins.
func (d *pcf8574) reset(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onActive()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		d.direction = 0xff
		d.output = 0
		return dev.WriteByte(d.port())
	})
}

// PinCount returns the number of pins of the device
func (d *pcf8574) PinCount() int {
	return mcp23008PinCount
}

// Set the direction of the pin at given index (1...)
// Outputs start low.
func (d *pcf8574) SetDirection(ctx context.Context, pin int, direction PinDirection) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mask, err := expanderBitMask(pin)
	if err != nil {
		return err
	}
	switch direction {
	case PinDirectionInput:
		d.direction |= mask
	case PinDirectionOutput:
		d.direction &= ^mask
	default:
		return errors.Wrapf(InvalidDirectionError, "%d", direction)
	}
	d.output &= ^mask
	d.onActive()
	return d.write(ctx)
}

// Get the direction of the pin at given index (1...)
func (d *pcf8574) GetDirection(ctx context.Context, pin int) (PinDirection, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mask, err := expanderBitMask(pin)
	if err != nil {
		return PinDirectionInput, err
	}
	if d.direction&mask != 0 {
		return PinDirectionInput, nil
	}
	return PinDirectionOutput, nil
}

// Set the pin at given index (1...) to the given value
func (d *pcf8574) Set(ctx context.Context, pin int, value bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mask, err := expanderBitMask(pin)
	if err != nil {
		return err
	}
	if d.direction&mask != 0 {
		return errors.Wrapf(InvalidDirectionError, "pin %d does not have direction output", pin)
	}
	if value {
		d.output |= mask
	} else {
		d.output &= ^mask
	}
	d.onActive()
	return d.write(ctx)
}

// Get the value of the pin at given index (1...)
func (d *pcf8574) Get(ctx context.Context, pin int) (bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mask, err := expanderBitMask(pin)
	if err != nil {
		return false, err
	}
	var x uint8
	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		var err error
		x, err = dev.ReadByte()
		return err
	}); err != nil {
		return false, err
	}
	return x&mask != 0, nil
}

// write the current port value to the device.
// Must be called with mutex locked.
func (d *pcf8574) write(ctx context.Context) error {
	value := d.port()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		return dev.WriteByte(value)
	})
}

// port merges direction & output.
// Inputs are written as 1, outputs as their output bit.
func (d *pcf8574) port() uint8 {
	return d.direction | d.output
}
