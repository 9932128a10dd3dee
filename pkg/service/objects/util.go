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

package objects

import (
	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
)

// getConnection looks up the connection with given name in the given object configuration.
// If not found, an error is returned.
func getConnection(config model.Object, connectionName model.ConnectionName) (model.Connection, error) {
	conn, ok := config.Connections[connectionName]
	if !ok {
		return model.Connection{}, invalidArgument("Connection '%s' not found in object '%s'", connectionName, config.ID)
	}
	return conn, nil
}

// getGPIOForPin looks up the device for the given pin.
// If device not found, an error is returned.
// If device is not a GPIO, an error is returned.
// If pin is not in pin-range of device, an error is returned.
func getGPIOForPin(pin model.Pin, devService devices.Service) (devices.GPIO, error) {
	device, ok := devService.DeviceByID(pin.DeviceID)
	if !ok {
		return nil, invalidArgument("Device '%s' not found", pin.DeviceID)
	}
	gpio, ok := device.(devices.GPIO)
	if !ok {
		return nil, invalidArgument("Device '%s' is not a GPIO", pin.DeviceID)
	}
	if pin.Index < 1 || pin.Index > gpio.PinCount() {
		return nil, invalidArgument("Pin %d is out of range for device '%s'", pin.Index, pin.DeviceID)
	}
	return gpio, nil
}

// getPWMForPin looks up the device for the given pin.
// If device not found, an error is returned.
// If device is not a PWM, an error is returned.
// If pin is not in pin-range of device, an error is returned.
func getPWMForPin(pin model.Pin, devService devices.Service) (devices.PWM, error) {
	device, ok := devService.DeviceByID(pin.DeviceID)
	if !ok {
		return nil, invalidArgument("Device '%s' not found", pin.DeviceID)
	}
	pwm, ok := device.(devices.PWM)
	if !ok {
		return nil, invalidArgument("Device '%s' is not a PWM", pin.DeviceID)
	}
	if pin.Index < 1 || pin.Index > pwm.OutputCount() {
		return nil, invalidArgument("Pin %d is out of range for device '%s'", pin.Index, pin.DeviceID)
	}
	return pwm, nil
}
