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

type mcp23008 struct {
	mutex    sync.Mutex
	onActive func()
	config   model.HWDevice
	bus      bridge.I2CBus
	address  uint8
	iodir    uint8
	olat     uint8
}

const (
	// Register addresses with IOCON.BANK=0
	mcp23008RegIODIR = 0x00
	mcp23008RegIOCON = 0x05
	mcp23008RegGPPU  = 0x06
	mcp23008RegGPIO  = 0x09
	mcp23008RegOLAT  = 0x0a

	// IOCON: SEQOP=1 (no address increment)
	mcp23008IOCON    = 0x20
	mcp23008PinCount = 8
)

// newMCP23008 creates a GPIO instance for a mcp23008 device with given config.
func newMCP23008(config model.HWDevice, bus bridge.I2CBus, onActive func()) (GPIO, error) {
	if config.Type != model.HWDeviceTypeMCP23008 {
		return nil, errors.Wrapf(InvalidDeviceTypeError, "'%s'", string(config.Type))
	}
	address, err := parseAddress(config.Address)
	if err != nil {
		return nil, err
	}
	return &mcp23008{
		onActive: onActive,
		config:   config,
		bus:      bus,
		address:  address,
		iodir:    0xff,
	}, nil
}

// ID returns the identifier of the device in the configuration.
func (d *mcp23008) ID() string {
	return d.config.ID
}

// Configure is called once to put the device in the desired state.
// All pins start as input with the output latches low.
func (d *mcp23008) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onActive()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		d.iodir = 0xff
		d.olat = 0
		if err := dev.WriteByteReg(mcp23008RegIOCON, mcp23008IOCON); err != nil {
			return err
		}
		if err := dev.WriteByteReg(mcp23008RegOLAT, d.olat); err != nil {
			return err
		}
		if err := dev.WriteByteReg(mcp23008RegGPPU, 0); err != nil {
			return err
		}
		return dev.WriteByteReg(mcp23008RegIODIR, d.iodir)
	})
}

// Close brings the device back to a safe state.
// Outputs are driven low before all pins are released to input.
func (d *mcp23008) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onActive()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		d.olat = 0
		if err := dev.WriteByteReg(mcp23008RegOLAT, d.olat); err != nil {
			return err
		}
		d.iodir = 0xff
		return dev.WriteByteReg(mcp23008RegIODIR, d.iodir)
	})
}

// PinCount returns the number of pins of the device
func (d *mcp23008) PinCount() int {
	return mcp23008PinCount
}

// Set the direction of the pin at given index (1...)
// Outputs start low.
func (d *mcp23008) SetDirection(ctx context.Context, pin int, direction PinDirection) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mask, err := expanderBitMask(pin)
	if err != nil {
		return err
	}
	iodir := d.iodir
	switch direction {
	case PinDirectionInput:
		iodir |= mask
	case PinDirectionOutput:
		iodir &= ^mask
	default:
		return errors.Wrapf(InvalidDirectionError, "%d", direction)
	}
	d.onActive()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		olat := d.olat &^ mask
		if err := dev.WriteByteReg(mcp23008RegOLAT, olat); err != nil {
			return err
		}
		d.olat = olat
		if err := dev.WriteByteReg(mcp23008RegIODIR, iodir); err != nil {
			return err
		}
		d.iodir = iodir
		return nil
	})
}

// Get the direction of the pin at given index (1...)
func (d *mcp23008) GetDirection(ctx context.Context, pin int) (PinDirection, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mask, err := expanderBitMask(pin)
	if err != nil {
		return PinDirectionInput, err
	}
	var iodir uint8
	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		var err error
		iodir, err = dev.ReadByteReg(mcp23008RegIODIR)
		return err
	}); err != nil {
		return PinDirectionInput, err
	}
	if iodir&mask == 0 {
		return PinDirectionOutput, nil
	}
	return PinDirectionInput, nil
}

// Set the pin at given index (1...) to the given value
func (d *mcp23008) Set(ctx context.Context, pin int, value bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mask, err := expanderBitMask(pin)
	if err != nil {
		return err
	}
	if d.iodir&mask != 0 {
		return errors.Wrapf(InvalidDirectionError, "pin %d does not have direction output", pin)
	}
	olat := d.olat &^ mask
	if value {
		olat |= mask
	}
	d.onActive()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		if err := dev.WriteByteReg(mcp23008RegOLAT, olat); err != nil {
			return err
		}
		d.olat = olat
		return nil
	})
}

// Get the value of the pin at given index (1...)
func (d *mcp23008) Get(ctx context.Context, pin int) (bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	mask, err := expanderBitMask(pin)
	if err != nil {
		return false, err
	}
	var value uint8
	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		var err error
		value, err = dev.ReadByteReg(mcp23008RegGPIO)
		return err
	}); err != nil {
		return false, err
	}
	return value&mask != 0, nil
}

// expanderBitMask returns a byte with only the bit of the given pin (1...8) set.
func expanderBitMask(pin int) (uint8, error) {
	if pin < 1 || pin > mcp23008PinCount {
		return 0, errors.Wrapf(InvalidPinError, "pin %d is out of range 1..%d", pin, mcp23008PinCount)
	}
	return 1 << uint(pin-1), nil
}
