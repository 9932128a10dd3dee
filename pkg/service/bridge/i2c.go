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

package bridge

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/ecc1/gpio"
	aerr "github.com/ewoutp/go-aggregate-error"
)

// I2CBus gives serialized access to the devices on an I2C bus.
type I2CBus interface {
	// Execute an option on the bus.
	Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev I2CDevice) error) error
	// DetectSlaveAddresses probes the bus to detect available addresses.
	DetectSlaveAddresses() []byte
	// Close the bus and all devices on it
	Close() error
}

// I2CDevice communicates with a device on the I2C Bus that has a specific address.
type I2CDevice interface {
	// Read a byte from given register
	ReadByteReg(reg uint8) (uint8, error)
	// Write a byte to given register
	WriteByteReg(reg uint8, val uint8) (err error)
	// Read a byte from device
	ReadByte() (byte, error)
	// Write a byte to device
	WriteByte(val byte) (err error)
	// Read a block of data directly from the device (/dev/...)
	ReadDevice(data []byte) (err error)
	// Write a block of data directly to the device (/dev/...)
	WriteDevice(data []byte) (err error)
}

type i2cBus struct {
	location             string
	devices              map[uint8]*i2cDevice
	queue                chan func()
	closed               chan struct{}
	closeOnce            sync.Once
	sclPin               int
	tryRecoverFromLockup bool
}

const (
	i2cRecoverNumClocks  = 10
	i2cRecoverClockDelay = time.Microsecond * 10 // 50kHz
)

// NewI2CBus returns accessors the the I2C bus at the given location.
// All operations are executed on a single OS thread.
// When sclPin > 0, lockups are recovered by clocking that pin.
func NewI2CBus(location string, sclPin int) (I2CBus, error) {
	if _, err := os.Stat(location); err != nil {
		return nil, fmt.Errorf("i2c bus %s not available: %w", location, err)
	}
	b := &i2cBus{
		location:             location,
		devices:              make(map[uint8]*i2cDevice),
		queue:                make(chan func()),
		closed:               make(chan struct{}),
		sclPin:               sclPin,
		tryRecoverFromLockup: sclPin > 0,
	}
	go b.queueProcessor()
	return b, nil
}

// Execute an option on the bus.
func (b *i2cBus) Execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	result := make(chan error, 1)
	req := func() {
		result <- b.execute(ctx, address, op)
	}

	// Put request in queue
	select {
	case b.queue <- req:
		// Request is on the queue
	case <-b.closed:
		return maskAny(BusClosedError)
	case <-ctx.Done():
		return ctx.Err()
	}
	// Requests that are on the queue always complete
	return <-result
}

// enqueue puts the given request on the queue.
// Returns false when the bus is closed.
func (b *i2cBus) enqueue(req func()) bool {
	select {
	case b.queue <- req:
		return true
	case <-b.closed:
		return false
	}
}

// Process bus requests from the queue until the bus is closed.
func (b *i2cBus) queueProcessor() {
	// Ensure we're always using the same OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case req := <-b.queue:
			req()
		case <-b.closed:
			return
		}
	}
}

// Execute an option on the bus.
// Must be called on the queue processor.
func (b *i2cBus) execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	label := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(label).Inc()

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var dev *i2cDevice
		dev, err = b.openDevice(address)
		if err != nil {
			i2cExecuteErrorCounters.WithLabelValues(label).Inc()
			return fmt.Errorf("openDevice(%d) failed: %w", address, err)
		}
		if err = op(ctx, dev); err == nil {
			return nil
		}

		// Device call failed, close all devices
		for _, d := range b.devices {
			d.closeFile()
		}
		clear(b.devices)

		if b.tryRecoverFromLockup {
			i2cRecoveryCounters.WithLabelValues("attempt").Inc()
			if err := b.recoverFromLockup(); err != nil {
				i2cRecoveryCounters.WithLabelValues("failed").Inc()
				return fmt.Errorf("i2c recovery failed: %w", err)
			}
			i2cRecoveryCounters.WithLabelValues("succeeded").Inc()
		} else {
			i2cRecoveryCounters.WithLabelValues("skipped").Inc()
		}
	}
	i2cExecuteErrorCounters.WithLabelValues(label).Inc()
	return fmt.Errorf("execute operation in i2c bus failed: %w", err)
}

// Open a connection to a device at the given address.
func (b *i2cBus) openDevice(address uint8) (*i2cDevice, error) {
	if d, found := b.devices[address]; found {
		return d, nil
	}
	d, err := newI2CDevice(b.location, address)
	if err != nil {
		return nil, err
	}
	b.devices[address] = d
	return d, nil
}

// DetectSlaveAddresses probes the bus to detect available addresses.
func (b *i2cBus) DetectSlaveAddresses() []byte {
	result := make(chan []byte, 1)
	if !b.enqueue(func() {
		var addrs []byte
		for addr := uint8(1); addr < 128; addr++ {
			if d, err := newI2CDevice(b.location, addr); err == nil {
				if err := d.DetectDevice(); err == nil {
					addrs = append(addrs, addr)
				}
				d.closeFile()
			}
		}
		result <- addrs
	}) {
		return nil
	}
	return <-result
}

// Close the bus and all devices on it.
// Closing an already closed bus is a no-op.
func (b *i2cBus) Close() error {
	result := make(chan error, 1)
	if !b.enqueue(func() {
		var ae aerr.AggregateError
		for addr, d := range b.devices {
			if err := d.closeFile(); err != nil {
				ae.Add(err)
			}
			delete(b.devices, addr)
		}
		result <- ae.AsError()
	}) {
		return nil
	}
	err := <-result
	b.closeOnce.Do(func() { close(b.closed) })
	return err
}

// Try to recover the i2c bus from lockup by clocking SCL.
func (b *i2cBus) recoverFromLockup() error {
	activeLow := true
	scl, err := gpio.Output(b.sclPin, activeLow, true)
	if err != nil {
		return fmt.Errorf("failed to set scl pin to output: %w", err)
	}
	for i := 0; i < i2cRecoverNumClocks; i++ {
		time.Sleep(i2cRecoverClockDelay)
		if err := scl.Write(false); err != nil {
			return fmt.Errorf("failed to lower scl during i2c recovery: %w", err)
		}
		time.Sleep(i2cRecoverClockDelay)
		if err := scl.Write(true); err != nil {
			return fmt.Errorf("failed to raise scl during i2c recovery: %w", err)
		}
	}
	// Reset pin to be input
	if _, err := gpio.Input(b.sclPin, activeLow); err != nil {
		return fmt.Errorf("failed to reset scl pin to input: %w", err)
	}
	if err := os.WriteFile("/sys/class/gpio/unexport", []byte(strconv.Itoa(b.sclPin)), 0644); err != nil {
		return fmt.Errorf("failed to unexport scl pin: %w", err)
	}
	return nil
}
