//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package bridge

import (
	"strconv"
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

// boardConfig describes the wiring of a single board computer.
type boardConfig struct {
	name        string
	greenLedPin int
	redLedPin   int
	pinCount    int
	i2cLocation string
	sclPin      int
}

var (
	raspberryPiConfig = boardConfig{
		name:        "Raspberry Pi",
		greenLedPin: 23,
		redLedPin:   24,
		pinCount:    27,
		i2cLocation: "/dev/i2c-1",
		sclPin:      3,
	}
	orangePiZeroConfig = boardConfig{
		name:        "Orange Pi Zero",
		greenLedPin: 19,
		redLedPin:   18,
		pinCount:    17,
		i2cLocation: "/dev/i2c-0",
		sclPin:      11,
	}
)

// boardBridge implements the bridge for boards with
// sysfs GPIO and a /dev/i2c-X bus.
type boardBridge struct {
	config   boardConfig
	mutex    sync.Mutex
	greenLed statusLed
	redLed   statusLed
	bus      I2CBus
}

// NewRaspberryPiBridge implements the bridge for Raspberry PI's
func NewRaspberryPiBridge() (API, error) {
	b, err := newBoardBridge(raspberryPiConfig)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewOrangePIZeroBridge implements the bridge for an Orange PI Zero
func NewOrangePIZeroBridge() (API, error) {
	b, err := newBoardBridge(orangePiZeroConfig)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newBoardBridge(config boardConfig) (*boardBridge, error) {
	activeLow := true
	initialValue := false
	greenLed, err := gpio.Output(config.greenLedPin, activeLow, initialValue)
	if err != nil {
		return nil, errors.Wrapf(err, "Output[greenLed] failed on %s", config.name)
	}
	redLed, err := gpio.Output(config.redLedPin, activeLow, initialValue)
	if err != nil {
		return nil, errors.Wrapf(err, "Output[redLed] failed on %s", config.name)
	}
	return &boardBridge{
		config:   config,
		greenLed: statusLed{pin: greenLed},
		redLed:   statusLed{pin: redLed},
	}, nil
}

// Returns number of local pins
func (p *boardBridge) PinCount() int {
	return p.config.pinCount
}

// Input initializes a GPIO input pin with the given pin number.
func (p *boardBridge) Input(pinNumber int, activeLow bool) (InputPin, error) {
	if err := p.checkPin(pinNumber); err != nil {
		return nil, err
	}
	return gpio.Input(pinNumber, activeLow)
}

// Output initializes a GPIO output pin with the given pin number
// and initial logical value.
func (p *boardBridge) Output(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error) {
	if err := p.checkPin(pinNumber); err != nil {
		return nil, err
	}
	pin, err := gpio.Output(pinNumber, activeLow, initialValue)
	if err != nil {
		return nil, err
	}
	return &countingPin{OutputPin: pin, label: strconv.Itoa(pinNumber)}, nil
}

// countingPin counts the writes to an output pin.
type countingPin struct {
	OutputPin
	label string
}

func (p *countingPin) Write(value bool) error {
	pinWriteCounters.WithLabelValues(p.label).Inc()
	return p.OutputPin.Write(value)
}

func (p *boardBridge) checkPin(pinNumber int) error {
	switch pinNumber {
	case p.config.greenLedPin, p.config.redLedPin:
		return errors.Wrapf(InvalidPinError, "pin %d is used by a status led", pinNumber)
	}
	if pinNumber < 1 || pinNumber > p.config.pinCount {
		return errors.Wrapf(InvalidPinError, "pin %d is out of range 1..%d", pinNumber, p.config.pinCount)
	}
	return nil
}

// Turn Green status led on/off
func (p *boardBridge) SetGreenLED(on bool) error {
	return errors.Wrap(p.greenLed.Set(on), "Set[greenLed] failed")
}

// Turn Red status led on/off
func (p *boardBridge) SetRedLED(on bool) error {
	return errors.Wrap(p.redLed.Set(on), "Set[redLed] failed")
}

// Blink Green status led with given duration between on/off
func (p *boardBridge) BlinkGreenLED(delay time.Duration) error {
	return errors.Wrap(p.greenLed.Blink(delay), "Blink[greenLed] failed")
}

// Blink Red status led with given duration between on/off
func (p *boardBridge) BlinkRedLED(delay time.Duration) error {
	return errors.Wrap(p.redLed.Blink(delay), "Blink[redLed] failed")
}

// Open the I2C bus
func (p *boardBridge) I2CBus() (I2CBus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bus == nil {
		bus, err := NewI2CBus(p.config.i2cLocation, p.config.sclPin)
		if err != nil {
			return nil, errors.Wrap(err, "NewI2CBus failed")
		}
		p.bus = bus
	}
	return p.bus, nil
}

func (p *boardBridge) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.greenLed.Set(false)
	p.redLed.Set(false)
	if p.bus != nil {
		bus := p.bus
		p.bus = nil
		if err := bus.Close(); err != nil {
			return errors.Wrap(err, "Close failed")
		}
	}
	return nil
}
