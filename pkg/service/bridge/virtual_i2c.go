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

package bridge

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/binkynet/MotorWorker/pkg/service/util"
)

// VirtualI2CBus is an I2C bus with in-memory register devices.
type VirtualI2CBus struct {
	execMutex  sync.Mutex
	lock       util.SpinLock
	autoAttach bool
	devices    map[uint8]*VirtualI2CDevice
	closed     bool
}

var _ I2CBus = &VirtualI2CBus{}

// NewVirtualI2CBus creates an empty virtual bus.
// If autoAttach is set, a device is attached to every address that is
// addressed.
func NewVirtualI2CBus(autoAttach bool) *VirtualI2CBus {
	return &VirtualI2CBus{
		autoAttach: autoAttach,
		devices:    make(map[uint8]*VirtualI2CDevice),
	}
}

// Attach a device at the given address.
// If a device is already attached at that address, it is returned.
func (b *VirtualI2CBus) Attach(address uint8) *VirtualI2CDevice {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.attach(address)
}

func (b *VirtualI2CBus) attach(address uint8) *VirtualI2CDevice {
	if d, found := b.devices[address]; found {
		return d
	}
	d := &VirtualI2CDevice{address: address}
	b.devices[address] = d
	return d
}

// Device returns the device at given address.
func (b *VirtualI2CBus) Device(address uint8) (*VirtualI2CDevice, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	d, found := b.devices[address]
	return d, found
}

// Execute an option on the bus.
func (b *VirtualI2CBus) Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev I2CDevice) error) error {
	label := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(label).Inc()
	if err := ctx.Err(); err != nil {
		return err
	}

	b.lock.Lock()
	closed := b.closed
	d, found := b.devices[address]
	if !found && b.autoAttach && !closed {
		d, found = b.attach(address), true
	}
	b.lock.Unlock()

	if closed {
		i2cExecuteErrorCounters.WithLabelValues(label).Inc()
		return maskAny(BusClosedError)
	}
	if !found {
		i2cExecuteErrorCounters.WithLabelValues(label).Inc()
		return errors.Wrapf(DeviceNotFoundError, "address 0x%02x", address)
	}

	// Operations on the bus never overlap
	b.execMutex.Lock()
	defer b.execMutex.Unlock()
	if err := op(ctx, d); err != nil {
		i2cExecuteErrorCounters.WithLabelValues(label).Inc()
		return errors.Wrapf(err, "execute on 0x%02x failed", address)
	}
	return nil
}

// DetectSlaveAddresses returns the addresses of all attached devices.
func (b *VirtualI2CBus) DetectSlaveAddresses() []byte {
	b.lock.Lock()
	defer b.lock.Unlock()

	result := make([]byte, 0, len(b.devices))
	for addr := range b.devices {
		result = append(result, addr)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Close the bus. Devices keep their registers.
func (b *VirtualI2CBus) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.closed = true
	return nil
}

// VirtualI2CDevice is an in-memory I2C device with 256 byte registers.
// Plain reads & writes use an auto incrementing register pointer.
type VirtualI2CDevice struct {
	lock      util.SpinLock
	address   uint8
	registers [256]uint8
	pointer   uint8
	port      uint8
	writes    int
	failure   error
}

// Register returns the value of the given register.
func (d *VirtualI2CDevice) Register(reg uint8) uint8 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.registers[reg]
}

// SetRegister sets the value of the given register without counting it as a write.
func (d *VirtualI2CDevice) SetRegister(reg, val uint8) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.registers[reg] = val
}

// Port returns the last byte written with WriteByte.
func (d *VirtualI2CDevice) Port() uint8 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.port
}

// Writes returns the number of register writes.
func (d *VirtualI2CDevice) Writes() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.writes
}

// SetFailure makes all operations fail with given error.
// Pass nil to restore normal operation.
func (d *VirtualI2CDevice) SetFailure(err error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.failure = err
}

// Read a byte from given register
func (d *VirtualI2CDevice) ReadByteReg(reg uint8) (uint8, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.failure != nil {
		return 0, d.failure
	}
	return d.registers[reg], nil
}

// Write a byte to given register
func (d *VirtualI2CDevice) WriteByteReg(reg uint8, val uint8) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.failure != nil {
		return d.failure
	}
	d.registers[reg] = val
	d.writes++
	return nil
}

// Read the byte at the register pointer
func (d *VirtualI2CDevice) ReadByte() (byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.failure != nil {
		return 0, d.failure
	}
	return d.next(), nil
}

// WriteByte sets the register pointer.
// Devices without registers see it as their port value.
func (d *VirtualI2CDevice) WriteByte(val byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.failure != nil {
		return d.failure
	}
	d.pointer = val
	d.port = val
	d.writes++
	return nil
}

// ReadDevice reads registers starting at the register pointer.
func (d *VirtualI2CDevice) ReadDevice(data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.failure != nil {
		return d.failure
	}
	for i := range data {
		data[i] = d.next()
	}
	return nil
}

// WriteDevice sets the register pointer to data[0] and writes
// the remaining bytes to consecutive registers.
func (d *VirtualI2CDevice) WriteDevice(data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.failure != nil {
		return d.failure
	}
	if len(data) == 0 {
		return nil
	}
	d.pointer = data[0]
	for _, v := range data[1:] {
		d.registers[d.pointer] = v
		d.pointer++
		d.writes++
	}
	return nil
}

func (d *VirtualI2CDevice) next() uint8 {
	v := d.registers[d.pointer]
	d.pointer++
	return v
}
