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

package devices

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
)

type localGPIO struct {
	mutex    sync.Mutex
	onActive func()
	config   model.HWDevice
	api      bridge.API
	inputs   []bridge.InputPin
	outputs  []bridge.OutputPin
}

// newLocalGPIO creates a GPIO instance for the GPIO pins locally on the worker
func newLocalGPIO(config model.HWDevice, api bridge.API, onActive func()) (GPIO, error) {
	if config.Type != model.HWDeviceTypeGPIO {
		return nil, errors.Wrapf(InvalidDeviceTypeError, "'%s'", string(config.Type))
	}
	return &localGPIO{
		onActive: onActive,
		config:   config,
		api:      api,
	}, nil
}

// ID returns the identifier of the device in the configuration.
func (d *localGPIO) ID() string {
	return d.config.ID
}

// Configure is called once to put the device in the desired state.
func (d *localGPIO) Configure(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onActive()
	d.inputs = make([]bridge.InputPin, d.PinCount())
	d.outputs = make([]bridge.OutputPin, d.PinCount())
	return nil
}

// Close brings the device back to a safe state.
// All outputs are driven low.
func (d *localGPIO) Close(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.onActive()
	var result error
	for _, out := range d.outputs {
		if out != nil {
			if err := out.Write(false); err != nil && result == nil {
				result = err
			}
		}
	}
	d.inputs = nil
	d.outputs = nil
	return result
}

// PinCount returns the number of pins of the device
func (d *localGPIO) PinCount() int {
	return d.api.PinCount()
}

// Set the direction of the pin at given index (1...)
// Outputs start low.
func (d *localGPIO) SetDirection(ctx context.Context, pin int, direction PinDirection) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	index, err := d.index(pin)
	if err != nil {
		return err
	}
	d.onActive()
	switch direction {
	case PinDirectionInput:
		p, err := d.api.Input(pin, false)
		if err != nil {
			return maskAny(err)
		}
		d.inputs[index] = p
		d.outputs[index] = nil
	case PinDirectionOutput:
		p, err := d.api.Output(pin, false, false)
		if err != nil {
			return maskAny(err)
		}
		d.inputs[index] = nil
		d.outputs[index] = p
	default:
		return errors.Wrapf(InvalidDirectionError, "%d", direction)
	}
	return nil
}

// Get the direction of the pin at given index (1...)
func (d *localGPIO) GetDirection(ctx context.Context, pin int) (PinDirection, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	index, err := d.index(pin)
	if err != nil {
		return PinDirectionInput, err
	}
	if d.inputs[index] != nil {
		return PinDirectionInput, nil
	}
	if d.outputs[index] != nil {
		return PinDirectionOutput, nil
	}
	return PinDirectionInput, errors.Wrapf(InvalidDirectionError, "pin %d has no direction", pin)
}

// Set the pin at given index (1...) to the given value
func (d *localGPIO) Set(ctx context.Context, pin int, value bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	index, err := d.index(pin)
	if err != nil {
		return err
	}
	if f := d.outputs[index]; f != nil {
		d.onActive()
		return f.Write(value)
	}
	return errors.Wrapf(InvalidDirectionError, "pin %d does not have direction output", pin)
}

// Get the value of the pin at given index (1...)
func (d *localGPIO) Get(ctx context.Context, pin int) (bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	index, err := d.index(pin)
	if err != nil {
		return false, err
	}
	if f := d.inputs[index]; f != nil {
		return f.Read()
	}
	return false, errors.Wrapf(InvalidDirectionError, "pin %d does not have direction input", pin)
}

// index converts a pin number (1...) into an index in inputs/outputs.
// Must be called with mutex locked.
func (d *localGPIO) index(pin int) (int, error) {
	if d.outputs == nil {
		return 0, errors.Wrapf(NotConfiguredError, "gpio '%s'", d.config.ID)
	}
	if pin < 1 || pin > len(d.outputs) {
		return 0, errors.Wrapf(InvalidPinError, "pin %d is out of range 1..%d", pin, len(d.outputs))
	}
	return pin - 1, nil
}
