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

	"github.com/pkg/errors"

	"github.com/binkynet/MotorWorker/pkg/service/util"
)

const (
	virtualPinCount = 32
)

// VirtualBridge is a bridge that keeps all pin & bus state in memory.
// It is used to run a worker without hardware and in tests.
type VirtualBridge struct {
	mutex      sync.Mutex
	pins       map[int]*VirtualPin
	greenLed   bool
	redLed     bool
	greenBlink time.Duration
	redBlink   time.Duration
	bus        *VirtualI2CBus
}

var _ API = &VirtualBridge{}

// NewVirtualBridge implements the bridge for a virtual worker.
// I2C devices appear on the bus as soon as they are addressed.
func NewVirtualBridge() *VirtualBridge {
	return &VirtualBridge{
		pins: make(map[int]*VirtualPin),
		bus:  NewVirtualI2CBus(true),
	}
}

// Returns number of local pins
func (p *VirtualBridge) PinCount() int {
	return virtualPinCount
}

// Input initializes a GPIO input pin with the given pin number.
func (p *VirtualBridge) Input(pinNumber int, activeLow bool) (InputPin, error) {
	pin, err := p.initPin(pinNumber, activeLow, false, false)
	if err != nil {
		return nil, err
	}
	return pin, nil
}

// Output initializes a GPIO output pin with the given pin number
// and initial logical value.
func (p *VirtualBridge) Output(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error) {
	pin, err := p.initPin(pinNumber, activeLow, true, initialValue)
	if err != nil {
		return nil, err
	}
	return pin, nil
}

func (p *VirtualBridge) initPin(pinNumber int, activeLow, output, value bool) (*VirtualPin, error) {
	if pinNumber < 1 || pinNumber > virtualPinCount {
		return nil, errors.Wrapf(InvalidPinError, "pin %d is out of range 1..%d", pinNumber, virtualPinCount)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	pin, found := p.pins[pinNumber]
	if !found {
		pin = &VirtualPin{number: pinNumber}
		p.pins[pinNumber] = pin
	}
	pin.lock.Lock()
	pin.activeLow = activeLow
	pin.output = output
	pin.value = value
	pin.lock.Unlock()
	return pin, nil
}

// Pin returns the pin with given number, or nil when it has
// not been initialized.
func (p *VirtualBridge) Pin(pinNumber int) *VirtualPin {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.pins[pinNumber]
}

// Turn Green status led on/off
func (p *VirtualBridge) SetGreenLED(on bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.greenLed, p.greenBlink = on, 0
	return nil
}

// Turn Red status led on/off
func (p *VirtualBridge) SetRedLED(on bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.redLed, p.redBlink = on, 0
	return nil
}

// Blink Green status led with given duration between on/off
func (p *VirtualBridge) BlinkGreenLED(delay time.Duration) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.greenBlink = delay
	return nil
}

// Blink Red status led with given duration between on/off
func (p *VirtualBridge) BlinkRedLED(delay time.Duration) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.redBlink = delay
	return nil
}

// RedLED returns the state of the red led and its blink delay (0 when not blinking).
func (p *VirtualBridge) RedLED() (bool, time.Duration) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.redLed, p.redBlink
}

// Open the I2C bus
func (p *VirtualBridge) I2CBus() (I2CBus, error) {
	return p.bus, nil
}

// Bus returns the in-memory I2C bus.
func (p *VirtualBridge) Bus() *VirtualI2CBus {
	return p.bus
}

func (p *VirtualBridge) Close() error {
	return p.bus.Close()
}

// VirtualPin is an in-memory GPIO pin.
type VirtualPin struct {
	lock      util.SpinLock
	number    int
	activeLow bool
	output    bool
	value     bool
	writes    int
	failure   error
}

// Write the logical value of an output pin.
func (p *VirtualPin) Write(value bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.failure != nil {
		return p.failure
	}
	if !p.output {
		return errors.Wrapf(InvalidPinError, "pin %d is not an output", p.number)
	}
	pinWriteCounters.WithLabelValues(strconv.Itoa(p.number)).Inc()
	p.value = value
	p.writes++
	return nil
}

// Read the logical value of the pin.
func (p *VirtualPin) Read() (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.failure != nil {
		return false, p.failure
	}
	return p.value, nil
}

// Value returns the logical value of the pin.
func (p *VirtualPin) Value() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.value
}

// Level returns the physical level of the pin, taking active low into account.
func (p *VirtualPin) Level() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.value != p.activeLow
}

// Writes returns the number of successful writes.
func (p *VirtualPin) Writes() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.writes
}

// IsOutput returns true when the pin is initialized as output.
func (p *VirtualPin) IsOutput() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.output
}

// SetFailure makes all reads & writes fail with given error.
// Pass nil to restore normal operation.
func (p *VirtualPin) SetFailure(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failure = err
}

// SetInput sets the value read from an input pin.
func (p *VirtualPin) SetInput(value bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.value = value
}
