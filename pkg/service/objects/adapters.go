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
	"context"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/motor"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
)

// output is a motor.DigitalOutput that needs configuration
// before it can be used.
type output interface {
	motor.DigitalOutput
	configure(ctx context.Context) error
}

// gpioOutput is a GPIO pin used as direction input of an H-bridge.
type gpioOutput struct {
	device devices.GPIO
	pin    int
	invert bool
}

func (o *gpioOutput) configure(ctx context.Context) error {
	return o.device.SetDirection(ctx, o.pin, devices.PinDirectionOutput)
}

// SetHigh drives the output high.
func (o *gpioOutput) SetHigh(ctx context.Context) error {
	return o.device.Set(ctx, o.pin, !o.invert)
}

// SetLow drives the output low.
func (o *gpioOutput) SetLow(ctx context.Context) error {
	return o.device.Set(ctx, o.pin, o.invert)
}

// pwmOutput is a PWM output used as digital direction input.
// High is fully on, low is fully off.
type pwmOutput struct {
	device devices.PWM
	output int
	invert bool
}

func (o *pwmOutput) configure(ctx context.Context) error {
	return nil
}

// SetHigh drives the output high.
func (o *pwmOutput) SetHigh(ctx context.Context) error {
	return o.set(ctx, !o.invert)
}

// SetLow drives the output low.
func (o *pwmOutput) SetLow(ctx context.Context) error {
	return o.set(ctx, o.invert)
}

func (o *pwmOutput) set(ctx context.Context, on bool) error {
	if on {
		return o.device.Set(ctx, o.output, o.device.MaxValue()+1, 0, true)
	}
	return o.device.Set(ctx, o.output, 0, 0, false)
}

// pwmChannel is a PWM output used as enable input of an H-bridge.
// A duty of 0 disables the output, a duty of MaxDuty turns it fully on.
type pwmChannel struct {
	device devices.PWM
	output int
	invert bool
}

// SetDuty sets the duty cycle counter (0...MaxDuty()).
func (c *pwmChannel) SetDuty(ctx context.Context, value motor.Duty) error {
	max := c.MaxDuty()
	if value > max {
		value = max
	}
	if c.invert {
		value = max - value
	}
	switch value {
	case 0:
		return c.device.Set(ctx, c.output, 0, 0, false)
	case max:
		return c.device.Set(ctx, c.output, uint32(max)+1, 0, true)
	default:
		return c.device.Set(ctx, c.output, 0, uint32(value), true)
	}
}

// MaxDuty returns the maximum representable duty value.
func (c *pwmChannel) MaxDuty() motor.Duty {
	return motor.Duty(c.device.MaxValue())
}

// newOutput creates a digital output for the given connection.
// The connection can refer to a GPIO or a PWM device.
func newOutput(conn model.Connection, devService devices.Service) (output, error) {
	device, ok := devService.DeviceByID(conn.DeviceID)
	if !ok {
		return nil, invalidArgument("Device '%s' not found", conn.DeviceID)
	}
	switch device.(type) {
	case devices.GPIO:
		gpio, err := getGPIOForPin(conn.Pin, devService)
		if err != nil {
			return nil, err
		}
		return &gpioOutput{device: gpio, pin: conn.Index, invert: conn.Invert}, nil
	case devices.PWM:
		pwm, err := getPWMForPin(conn.Pin, devService)
		if err != nil {
			return nil, err
		}
		return &pwmOutput{device: pwm, output: conn.Index, invert: conn.Invert}, nil
	default:
		return nil, invalidArgument("Device '%s' cannot be used as output", conn.DeviceID)
	}
}

// newDutyChannel creates a duty channel for the given connection.
func newDutyChannel(conn model.Connection, devService devices.Service) (motor.DutyChannel, error) {
	pwm, err := getPWMForPin(conn.Pin, devService)
	if err != nil {
		return nil, err
	}
	return &pwmChannel{device: pwm, output: conn.Index, invert: conn.Invert}, nil
}
