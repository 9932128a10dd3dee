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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/motor"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
)

// testHardware holds a virtual board with a pca9685 at 0x40.
type testHardware struct {
	board *bridge.VirtualBridge
	chip  *bridge.VirtualI2CDevice
	devs  devices.Service
}

func newTestHardware(ctx context.Context) (*testHardware, error) {
	board := bridge.NewVirtualBridge()
	bus := bridge.NewVirtualI2CBus(false)
	chip := bus.Attach(0x40)
	devs, err := devices.NewService([]model.HWDevice{
		{ID: "gpio", Type: model.HWDeviceTypeGPIO},
		{ID: "pwm", Type: model.HWDeviceTypePCA9685, Address: "0x40"},
	}, board, bus, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	if err := devs.Configure(ctx); err != nil {
		return nil, err
	}
	return &testHardware{board: board, chip: chip, devs: devs}, nil
}

func motorConfig(id string, pinA, pinB, pwm int) model.Object {
	return model.Object{
		ID:   id,
		Type: model.ObjectTypeMotor,
		Connections: map[model.ConnectionName]model.Connection{
			model.ConnectionNamePinA: {Pin: model.Pin{DeviceID: "gpio", Index: pinA}},
			model.ConnectionNamePinB: {Pin: model.Pin{DeviceID: "gpio", Index: pinB}},
			model.ConnectionNamePWM:  {Pin: model.Pin{DeviceID: "pwm", Index: pwm}},
		},
	}
}

// offHigh returns the OFF_H register of the given pca9685 output (1...).
func offHigh(chip *bridge.VirtualI2CDevice, output int) uint8 {
	return chip.Register(uint8(0x06 + (output-1)*4 + 3))
}

// onHigh returns the ON_H register of the given pca9685 output (1...).
func onHigh(chip *bridge.VirtualI2CDevice, output int) uint8 {
	return chip.Register(uint8(0x06 + (output-1)*4 + 1))
}

func TestMotorObject(t *testing.T) {
	ctx := context.Background()

	Convey("Given a configured motor", t, func() {
		hw, err := newTestHardware(ctx)
		So(err, ShouldBeNil)
		m, err := newMotor(motorConfig("m1", 5, 6, 1), zerolog.Nop(), hw.devs, nil)
		So(err, ShouldBeNil)
		So(m.State().Configured, ShouldBeFalse)
		So(m.Configure(ctx), ShouldBeNil)

		state := m.State()
		So(state.Configured, ShouldBeTrue)
		So(state.Direction, ShouldEqual, "stop")
		So(state.MaxDuty, ShouldEqual, uint32(4095))
		So(hw.board.Pin(5).Level(), ShouldBeFalse)
		So(hw.board.Pin(6).Level(), ShouldBeFalse)
		So(offHigh(hw.chip, 1)&0x10, ShouldNotEqual, uint8(0))

		Convey("forward drives pin A high and writes the duty", func() {
			state, err := m.Apply(ctx, motor.Forward(50))
			So(err, ShouldBeNil)
			So(state.Command(), ShouldResemble, motor.Forward(50))
			So(state.Duty, ShouldEqual, uint32(2047))
			So(hw.board.Pin(5).Level(), ShouldBeTrue)
			So(hw.board.Pin(6).Level(), ShouldBeFalse)
			So(hw.chip.Register(0x08), ShouldEqual, uint8(0xFF))
			So(hw.chip.Register(0x09), ShouldEqual, uint8(0x07))
		})

		Convey("full speed turns the output fully on", func() {
			_, err := m.Apply(ctx, motor.Backward(100))
			So(err, ShouldBeNil)
			So(hw.board.Pin(5).Level(), ShouldBeFalse)
			So(hw.board.Pin(6).Level(), ShouldBeTrue)
			So(onHigh(hw.chip, 1), ShouldEqual, uint8(0x10))
		})

		Convey("brake drives both pins high and disables the output", func() {
			_, err := m.Apply(ctx, motor.Forward(80))
			So(err, ShouldBeNil)
			state, err := m.Apply(ctx, motor.Brake())
			So(err, ShouldBeNil)
			So(state.Direction, ShouldEqual, "brake")
			So(state.Duty, ShouldEqual, uint32(0))
			So(hw.board.Pin(5).Level(), ShouldBeTrue)
			So(hw.board.Pin(6).Level(), ShouldBeTrue)
			So(offHigh(hw.chip, 1)&0x10, ShouldNotEqual, uint8(0))
		})

		Convey("invalid speeds do not touch the hardware", func() {
			writes := hw.board.Pin(5).Writes()
			state, err := m.Apply(ctx, motor.Forward(101))
			So(motor.IsInvalidSpeed(err), ShouldBeTrue)
			So(state.ErrorKind, ShouldEqual, "invalid-speed")
			So(state.Direction, ShouldEqual, "stop")
			So(hw.board.Pin(5).Writes(), ShouldEqual, writes)
		})

		Convey("hardware errors are reported in the state", func() {
			hw.board.Pin(6).SetFailure(errors.New("pin broken"))
			state, err := m.Apply(ctx, motor.Backward(20))
			So(motor.IsPinBError(err), ShouldBeTrue)
			So(state.ErrorKind, ShouldEqual, "pin-b")
			So(state.Direction, ShouldEqual, "stop")

			hw.board.Pin(6).SetFailure(nil)
			state, err = m.Apply(ctx, motor.Backward(20))
			So(err, ShouldBeNil)
			So(state.Error, ShouldBeEmpty)
		})

		Convey("close applies the safe state", func() {
			_, err := m.Apply(ctx, motor.Forward(30))
			So(err, ShouldBeNil)
			So(m.Close(ctx), ShouldBeNil)
			So(hw.board.Pin(5).Level(), ShouldBeFalse)
			So(hw.board.Pin(6).Level(), ShouldBeFalse)
			So(errors.Cause(m.Drive(ctx, motor.Forward(30))), ShouldEqual, motor.ErrClosed)
		})
	})

	Convey("Given a motor with brake as safe state and inverted pins", t, func() {
		hw, err := newTestHardware(ctx)
		So(err, ShouldBeNil)
		cfg := motorConfig("m2", 7, 8, 2)
		cfg.Options.SafeState = model.SafeStateBrake
		connA := cfg.Connections[model.ConnectionNamePinA]
		connA.Invert = true
		cfg.Connections[model.ConnectionNamePinA] = connA
		m, err := newMotor(cfg, zerolog.Nop(), hw.devs, nil)
		So(err, ShouldBeNil)
		So(m.Configure(ctx), ShouldBeNil)
		So(hw.board.Pin(7).Level(), ShouldBeTrue)

		So(m.Close(ctx), ShouldBeNil)
		So(m.State().Direction, ShouldEqual, "brake")
		So(hw.board.Pin(7).Level(), ShouldBeFalse)
		So(hw.board.Pin(8).Level(), ShouldBeTrue)
	})

	Convey("Direction pins can be pwm outputs", t, func() {
		hw, err := newTestHardware(ctx)
		So(err, ShouldBeNil)
		cfg := motorConfig("m3", 0, 0, 3)
		cfg.Connections[model.ConnectionNamePinA] = model.Connection{Pin: model.Pin{DeviceID: "pwm", Index: 1}}
		cfg.Connections[model.ConnectionNamePinB] = model.Connection{Pin: model.Pin{DeviceID: "pwm", Index: 2}}
		m, err := newMotor(cfg, zerolog.Nop(), hw.devs, nil)
		So(err, ShouldBeNil)
		So(m.Configure(ctx), ShouldBeNil)
		_, err = m.Apply(ctx, motor.Forward(10))
		So(err, ShouldBeNil)
		So(onHigh(hw.chip, 1), ShouldEqual, uint8(0x10))
		So(offHigh(hw.chip, 2)&0x10, ShouldNotEqual, uint8(0))
	})

	Convey("Direction pins can be on an I2C expander", t, func() {
		bus := bridge.NewVirtualI2CBus(false)
		chip := bus.Attach(0x40)
		exp := bus.Attach(0x20)
		devs, err := devices.NewService([]model.HWDevice{
			{ID: "exp", Type: model.HWDeviceTypeMCP23008, Address: "0x20"},
			{ID: "pwm", Type: model.HWDeviceTypePCA9685, Address: "0x40"},
		}, bridge.NewVirtualBridge(), bus, zerolog.Nop())
		So(err, ShouldBeNil)
		So(devs.Configure(ctx), ShouldBeNil)
		cfg := motorConfig("m6", 0, 0, 4)
		cfg.Connections[model.ConnectionNamePinA] = model.Connection{Pin: model.Pin{DeviceID: "exp", Index: 1}}
		cfg.Connections[model.ConnectionNamePinB] = model.Connection{Pin: model.Pin{DeviceID: "exp", Index: 2}}
		m, err := newMotor(cfg, zerolog.Nop(), devs, nil)
		So(err, ShouldBeNil)
		So(m.Configure(ctx), ShouldBeNil)
		// IODIR: pins 1 & 2 are outputs
		So(exp.Register(0x00), ShouldEqual, uint8(0xfc))

		_, err = m.Apply(ctx, motor.Backward(100))
		So(err, ShouldBeNil)
		// OLAT: pin 2 high
		So(exp.Register(0x0a), ShouldEqual, uint8(0x02))
		So(onHigh(chip, 4), ShouldEqual, uint8(0x10))
	})

	Convey("Unknown devices are rejected", t, func() {
		hw, err := newTestHardware(ctx)
		So(err, ShouldBeNil)
		cfg := motorConfig("m4", 1, 2, 3)
		cfg.Connections[model.ConnectionNamePWM] = model.Connection{Pin: model.Pin{DeviceID: "gpio", Index: 3}}
		_, err = newMotor(cfg, zerolog.Nop(), hw.devs, nil)
		So(IsInvalidArgument(err), ShouldBeTrue)

		cfg = motorConfig("m5", 1, 2, 17)
		_, err = newMotor(cfg, zerolog.Nop(), hw.devs, nil)
		So(IsInvalidArgument(err), ShouldBeTrue)
	})
}

func TestService(t *testing.T) {
	ctx := context.Background()

	Convey("Given an object service", t, func() {
		hw, err := newTestHardware(ctx)
		So(err, ShouldBeNil)
		broken := motorConfig("broken", 1, 2, 3)
		broken.Connections[model.ConnectionNamePWM] = model.Connection{Pin: model.Pin{DeviceID: "missing", Index: 1}}
		svc, err := NewService([]model.Object{
			motorConfig("left", 1, 2, 1),
			motorConfig("right", 3, 4, 2),
			broken,
		}, hw.devs, zerolog.Nop())
		So(err, ShouldBeNil)
		So(svc.Configure(ctx), ShouldBeNil)
		So(svc.GetConfiguredObjectIDs(), ShouldResemble, []string{"left", "right"})
		So(svc.GetUnconfiguredObjectIDs(), ShouldResemble, []string{"broken"})

		Convey("motors can be driven by ID", func() {
			state, err := svc.Drive(ctx, "right", motor.Forward(40))
			So(err, ShouldBeNil)
			So(state.ID, ShouldEqual, "right")
			So(state.Speed, ShouldEqual, uint32(40))

			states := svc.MotorStates()
			So(states, ShouldHaveLength, 2)
			So(states[0].ID, ShouldEqual, "left")
			So(states[0].Direction, ShouldEqual, "stop")
			So(states[1].Direction, ShouldEqual, "forward")
		})

		Convey("unknown motors are not found", func() {
			_, err := svc.Drive(ctx, "middle", motor.Stop())
			So(IsNotFound(err), ShouldBeTrue)
			_, err = svc.MotorState("middle")
			So(IsNotFound(err), ShouldBeTrue)
		})

		Convey("invalid motors are not configured", func() {
			_, err := svc.Drive(ctx, "broken", motor.Stop())
			So(IsNotConfigured(err), ShouldBeTrue)
		})

		Convey("subscribers receive state changes", func() {
			changes := make(chan MotorState, 16)
			cancel := svc.Subscribe(func(s MotorState) { changes <- s })
			defer cancel()

			_, err := svc.Drive(ctx, "left", motor.Backward(60))
			So(err, ShouldBeNil)
			var got MotorState
			timeout := time.After(5 * time.Second)
		wait:
			for got.Command() != motor.Backward(60) {
				select {
				case got = <-changes:
				case <-timeout:
					break wait
				}
			}
			So(got.ID, ShouldEqual, "left")
			So(got.Command(), ShouldResemble, motor.Backward(60))
		})

		Convey("close stops all motors", func() {
			_, err := svc.Drive(ctx, "left", motor.Forward(60))
			So(err, ShouldBeNil)
			So(svc.Close(ctx), ShouldBeNil)
			So(hw.board.Pin(1).Level(), ShouldBeFalse)
			So(hw.board.Pin(2).Level(), ShouldBeFalse)
			_, err = svc.Drive(ctx, "left", motor.Forward(60))
			So(errors.Cause(err), ShouldEqual, motor.ErrClosed)
		})
	})

	Convey("Scripts run after configure", t, func() {
		hw, err := newTestHardware(ctx)
		So(err, ShouldBeNil)
		cfg := motorConfig("demo", 1, 2, 1)
		cfg.Script = []model.ScriptStep{
			{Command: "forward 20", Duration: time.Millisecond},
			{Command: "brake"},
		}
		svc, err := NewService([]model.Object{cfg}, hw.devs, zerolog.Nop())
		So(err, ShouldBeNil)
		So(svc.Configure(ctx), ShouldBeNil)

		runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		So(svc.Run(runCtx), ShouldBeNil)
		state, err := svc.MotorState("demo")
		So(err, ShouldBeNil)
		So(state.Direction, ShouldEqual, "brake")
	})
}

func TestStatePublisher(t *testing.T) {
	Convey("cancelling one subscription keeps the others", t, func() {
		p := newStatePublisher(zerolog.Nop())
		a := make(chan MotorState, 4)
		b := make(chan MotorState, 4)
		cancelA := p.subscribe(func(s MotorState) { a <- s })
		cancelB := p.subscribe(func(s MotorState) { b <- s })
		defer cancelB()
		cancelA()
		cancelA()

		p.publish(MotorState{ID: "x"})
		var got MotorState
		select {
		case got = <-b:
		case <-time.After(5 * time.Second):
		}
		So(got.ID, ShouldEqual, "x")
		So(a, ShouldBeEmpty)
	})
}
