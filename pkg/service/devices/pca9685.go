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
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
)

type pca9685 struct {
	mutex    sync.Mutex
	onActive func()
	config   model.HWDevice
	bus      bridge.I2CBus
	address  uint8
}

const (
	pca9685MODE1Reg       = 0x00
	pca9685MODE2Reg       = 0x01
	pca9685LEDBaseReg     = 0x06
	pca9685AllLEDOffHigh  = 0xFD
	pca9685PRESCALEReg    = 0xFE
	pca9685OnLowRegOfs    = 0
	pca9685OnHighRegOfs   = 1
	pca9685OffLowRegOfs   = 2
	pca9685OffHighRegOfs  = 3
	pca9685RegIncrement   = 4
	pca9685FullBit        = 0b00010000
	pca9685OutputCount    = 16
	pca9685MaxValue       = 4095
	pca9685OscillatorFreq = 25000000.0
	// PWM frequency used for motor drivers.
	pca9685Frequency = 1000.0

	// MODE1: SLEEP=1, AI=1, ALLCALL=1
	pca9685Mode1Sleep = 0x31
	// MODE1: SLEEP=0, AI=1, ALLCALL=1
	pca9685Mode1Awake = 0x21
	// MODE2: OUTDRV=1 (totem pole)
	pca9685Mode2 = 0x04
)

// newPCA9685 creates a PWM instance for a pca9685 device with given config.
func newPCA9685(config model.HWDevice, bus bridge.I2CBus, onActive func()) (PWM, error) {
	if config.Type != model.HWDeviceTypePCA9685 {
		return nil, errors.Wrapf(InvalidDeviceTypeError, "'%s'", string(config.Type))
	}
	address, err := parseAddress(config.Address)
	if err != nil {
		return nil, err
	}
	return &pca9685{
		onActive: onActive,
		config:   config,
		bus:      bus,
		address:  address,
	}, nil
}

// pca9685Prescale returns the prescale register value for the given frequency.
func pca9685Prescale(freq float64) uint8 {
	prescaleval := pca9685OscillatorFreq
	prescaleval /= 4096
	prescaleval /= freq
	prescaleval -= 1.0
	return uint8(math.Floor(prescaleval + 0.5))
}

// ID returns the identifier of the device in the configuration.
func (d *pca9685) ID() string {
	return d.config.ID
}

// Configure is called once to put the device in the desired state.
// All outputs start fully off.
func (d *pca9685) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	prescale := pca9685Prescale(pca9685Frequency)
	d.onActive()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		// Prescale can only be written while sleeping
		if err := dev.WriteByteReg(pca9685MODE1Reg, pca9685Mode1Sleep); err != nil {
			return err
		}
		if err := dev.WriteByteReg(pca9685PRESCALEReg, prescale); err != nil {
			return err
		}
		if err := dev.WriteByteReg(pca9685MODE2Reg, pca9685Mode2); err != nil {
			return err
		}
		if err := dev.WriteByteReg(pca9685AllLEDOffHigh, pca9685FullBit); err != nil {
			return err
		}
		return dev.WriteByteReg(pca9685MODE1Reg, pca9685Mode1Awake)
	})
}

// Close brings the device back to a safe state.
// All outputs are turned fully off and the chip is put to sleep.
func (d *pca9685) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onActive()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		if err := dev.WriteByteReg(pca9685AllLEDOffHigh, pca9685FullBit); err != nil {
			return err
		}
		return dev.WriteByteReg(pca9685MODE1Reg, pca9685Mode1Sleep)
	})
}

// OutputCount returns the number of pwm outputs of the device
func (d *pca9685) OutputCount() int {
	return pca9685OutputCount
}

// MaxValue returns the maximum valid value for onValue or offValue.
func (d *pca9685) MaxValue() uint32 {
	return pca9685MaxValue
}

// Set the output at given index (1...) to the given value.
// An onValue above MaxValue turns the output fully on,
// a disabled output is fully off.
func (d *pca9685) Set(ctx context.Context, output int, onValue, offValue uint32, enabled bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	regBase, err := d.regBase(output)
	if err != nil {
		return err
	}
	onLow := uint8(onValue & 0xFF)
	onHigh := uint8((onValue >> 8) & 0x0F)
	if onValue > pca9685MaxValue {
		onLow, onHigh = 0, pca9685FullBit
	}
	offLow := uint8(offValue & 0xFF)
	offHigh := uint8((offValue >> 8) & 0x0F)
	if !enabled {
		offHigh |= pca9685FullBit
	}
	d.onActive()
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		// Auto increment is enabled, so all 4 registers are written at once.
		return dev.WriteDevice([]byte{uint8(regBase), onLow, onHigh, offLow, offHigh})
	})
}

// Get the output at given index (1...)
func (d *pca9685) Get(ctx context.Context, output int) (uint32, uint32, bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	regBase, err := d.regBase(output)
	if err != nil {
		return 0, 0, false, err
	}
	var on, off uint32
	var enabled bool
	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev bridge.I2CDevice) error {
		var regs [4]uint8
		for i := range regs {
			v, err := dev.ReadByteReg(uint8(regBase + i))
			if err != nil {
				return err
			}
			regs[i] = v
		}
		on = uint32(regs[pca9685OnLowRegOfs]) | (uint32(regs[pca9685OnHighRegOfs]&0x0F) << 8)
		if regs[pca9685OnHighRegOfs]&pca9685FullBit != 0 {
			on = pca9685MaxValue + 1
		}
		off = uint32(regs[pca9685OffLowRegOfs]) | (uint32(regs[pca9685OffHighRegOfs]&0x0F) << 8)
		enabled = regs[pca9685OffHighRegOfs]&pca9685FullBit == 0
		return nil
	}); err != nil {
		return 0, 0, false, err
	}
	return on, off, enabled, nil
}

// regBase returns the first register for the given output.
func (d *pca9685) regBase(output int) (int, error) {
	if output < 1 || output > pca9685OutputCount {
		return 0, errors.Wrapf(InvalidPinError, "output must be in 1..%d range, got %d", pca9685OutputCount, output)
	}
	return pca9685LEDBaseReg + ((output - 1) * pca9685RegIncrement), nil
}
