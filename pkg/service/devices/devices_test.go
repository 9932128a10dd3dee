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
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
)

func TestParseAddress(t *testing.T) {
	Convey("addresses are decimal or hexadecimal", t, func() {
		a, err := parseAddress("0x40")
		So(err, ShouldBeNil)
		So(a, ShouldEqual, uint8(0x40))
		a, err = parseAddress("65")
		So(err, ShouldBeNil)
		So(a, ShouldEqual, uint8(65))
	})
	Convey("invalid addresses are rejected", t, func() {
		for _, input := range []string{"", "0x", "zz", "0x80", "300"} {
			_, err := parseAddress(input)
			So(err, ShouldNotBeNil)
		}
	})
}

func TestPCA9685(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pca9685 on a virtual bus", t, func() {
		bus := bridge.NewVirtualI2CBus(false)
		chip := bus.Attach(0x40)
		active := 0
		dev, err := newPCA9685(model.HWDevice{ID: "pwm", Type: model.HWDeviceTypePCA9685, Address: "0x40"}, bus, func() { active++ })
		So(err, ShouldBeNil)
		So(dev.OutputCount(), ShouldEqual, 16)
		So(dev.MaxValue(), ShouldEqual, uint32(4095))

		Convey("configure wakes the chip with all outputs off", func() {
			So(dev.Configure(ctx), ShouldBeNil)
			So(chip.Register(pca9685MODE1Reg), ShouldEqual, uint8(pca9685Mode1Awake))
			So(chip.Register(pca9685PRESCALEReg), ShouldEqual, pca9685Prescale(pca9685Frequency))
			So(chip.Register(pca9685AllLEDOffHigh), ShouldEqual, uint8(pca9685FullBit))
			So(active, ShouldBeGreaterThan, 0)
		})

		Convey("outputs are written to their registers", func() {
			So(dev.Set(ctx, 1, 0, 2000, true), ShouldBeNil)
			So(chip.Register(0x06), ShouldEqual, uint8(0))
			So(chip.Register(0x07), ShouldEqual, uint8(0))
			So(chip.Register(0x08), ShouldEqual, uint8(0xD0))
			So(chip.Register(0x09), ShouldEqual, uint8(0x07))

			on, off, enabled, err := dev.Get(ctx, 1)
			So(err, ShouldBeNil)
			So(on, ShouldEqual, uint32(0))
			So(off, ShouldEqual, uint32(2000))
			So(enabled, ShouldBeTrue)
		})

		Convey("disabled outputs are fully off", func() {
			So(dev.Set(ctx, 16, 0, 100, false), ShouldBeNil)
			So(chip.Register(0x06+15*4+3)&pca9685FullBit, ShouldNotEqual, uint8(0))
			_, _, enabled, err := dev.Get(ctx, 16)
			So(err, ShouldBeNil)
			So(enabled, ShouldBeFalse)
		})

		Convey("values above max are fully on", func() {
			So(dev.Set(ctx, 2, 4096, 0, true), ShouldBeNil)
			So(chip.Register(0x0A+1), ShouldEqual, uint8(pca9685FullBit))
			on, _, enabled, err := dev.Get(ctx, 2)
			So(err, ShouldBeNil)
			So(on, ShouldEqual, uint32(4096))
			So(enabled, ShouldBeTrue)
		})

		Convey("invalid outputs are rejected", func() {
			So(IsInvalidPin(dev.Set(ctx, 0, 0, 0, false)), ShouldBeTrue)
			So(IsInvalidPin(dev.Set(ctx, 17, 0, 0, false)), ShouldBeTrue)
		})

		Convey("close turns all outputs off and sleeps", func() {
			So(dev.Configure(ctx), ShouldBeNil)
			So(dev.Close(ctx), ShouldBeNil)
			So(chip.Register(pca9685MODE1Reg), ShouldEqual, uint8(pca9685Mode1Sleep))
			So(chip.Register(pca9685AllLEDOffHigh), ShouldEqual, uint8(pca9685FullBit))
		})

		Convey("bus errors are returned", func() {
			nack := errors.New("nack")
			chip.SetFailure(nack)
			So(errors.Cause(dev.Set(ctx, 1, 0, 0, true)), ShouldEqual, nack)
		})
	})

	Convey("wrong device types are rejected", t, func() {
		_, err := newPCA9685(model.HWDevice{ID: "x", Type: model.HWDeviceTypeGPIO}, nil, func() {})
		So(IsInvalidDeviceType(err), ShouldBeTrue)
	})
}

func TestLocalGPIO(t *testing.T) {
	ctx := context.Background()

	Convey("Given a local gpio on a virtual bridge", t, func() {
		br := bridge.NewVirtualBridge()
		dev, err := newLocalGPIO(model.HWDevice{ID: "gpio", Type: model.HWDeviceTypeGPIO}, br, func() {})
		So(err, ShouldBeNil)

		Convey("pins cannot be used before configure", func() {
			So(IsNotConfigured(dev.Set(ctx, 1, true)), ShouldBeTrue)
		})

		Convey("outputs follow Set", func() {
			So(dev.Configure(ctx), ShouldBeNil)
			So(dev.SetDirection(ctx, 7, PinDirectionOutput), ShouldBeNil)
			dir, err := dev.GetDirection(ctx, 7)
			So(err, ShouldBeNil)
			So(dir, ShouldEqual, PinDirectionOutput)

			So(dev.Set(ctx, 7, true), ShouldBeNil)
			So(br.Pin(7).Level(), ShouldBeTrue)

			Convey("close drives outputs low", func() {
				So(dev.Close(ctx), ShouldBeNil)
				So(br.Pin(7).Level(), ShouldBeFalse)
			})
		})

		Convey("inputs cannot be set", func() {
			So(dev.Configure(ctx), ShouldBeNil)
			So(dev.SetDirection(ctx, 8, PinDirectionInput), ShouldBeNil)
			So(IsInvalidDirection(dev.Set(ctx, 8, true)), ShouldBeTrue)
		})

		Convey("pins out of range are rejected", func() {
			So(dev.Configure(ctx), ShouldBeNil)
			So(IsInvalidPin(dev.Set(ctx, 0, true)), ShouldBeTrue)
			So(IsInvalidPin(dev.SetDirection(ctx, br.PinCount()+1, PinDirectionOutput)), ShouldBeTrue)
		})
	})
}

func TestMCP23008(t *testing.T) {
	ctx := context.Background()

	Convey("Given a mcp23008 on a virtual bus", t, func() {
		bus := bridge.NewVirtualI2CBus(false)
		chip := bus.Attach(0x20)
		dev, err := newMCP23008(model.HWDevice{ID: "exp", Type: model.HWDeviceTypeMCP23008, Address: "0x20"}, bus, func() {})
		So(err, ShouldBeNil)
		So(dev.PinCount(), ShouldEqual, 8)
		So(dev.Configure(ctx), ShouldBeNil)
		So(chip.Register(mcp23008RegIODIR), ShouldEqual, uint8(0xff))
		So(chip.Register(mcp23008RegIOCON), ShouldEqual, uint8(mcp23008IOCON))

		Convey("outputs are written to the latch", func() {
			So(dev.SetDirection(ctx, 3, PinDirectionOutput), ShouldBeNil)
			So(chip.Register(mcp23008RegIODIR), ShouldEqual, uint8(0xfb))
			dir, err := dev.GetDirection(ctx, 3)
			So(err, ShouldBeNil)
			So(dir, ShouldEqual, PinDirectionOutput)

			So(dev.Set(ctx, 3, true), ShouldBeNil)
			So(chip.Register(mcp23008RegOLAT), ShouldEqual, uint8(0x04))
			So(dev.Set(ctx, 3, false), ShouldBeNil)
			So(chip.Register(mcp23008RegOLAT), ShouldEqual, uint8(0))

			Convey("close drives outputs low and releases them", func() {
				So(dev.Set(ctx, 3, true), ShouldBeNil)
				So(dev.Close(ctx), ShouldBeNil)
				So(chip.Register(mcp23008RegOLAT), ShouldEqual, uint8(0))
				So(chip.Register(mcp23008RegIODIR), ShouldEqual, uint8(0xff))
			})
		})

		Convey("inputs are read from the port", func() {
			chip.SetRegister(mcp23008RegGPIO, 0x80)
			v, err := dev.Get(ctx, 8)
			So(err, ShouldBeNil)
			So(v, ShouldBeTrue)
			So(IsInvalidDirection(dev.Set(ctx, 8, true)), ShouldBeTrue)
		})

		Convey("pins out of range are rejected", func() {
			So(IsInvalidPin(dev.Set(ctx, 0, true)), ShouldBeTrue)
			So(IsInvalidPin(dev.SetDirection(ctx, 9, PinDirectionOutput)), ShouldBeTrue)
		})
	})
}

func TestPCF8574(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pcf8574 on a virtual bus", t, func() {
		bus := bridge.NewVirtualI2CBus(false)
		chip := bus.Attach(0x27)
		dev, err := newPCF8574(model.HWDevice{ID: "exp", Type: model.HWDeviceTypePCF8574, Address: "0x27"}, bus, func() {})
		So(err, ShouldBeNil)
		So(dev.Configure(ctx), ShouldBeNil)
		So(chip.Port(), ShouldEqual, uint8(0xff))

		Convey("outputs start low and follow Set", func() {
			So(dev.SetDirection(ctx, 1, PinDirectionOutput), ShouldBeNil)
			So(dev.SetDirection(ctx, 2, PinDirectionOutput), ShouldBeNil)
			So(chip.Port(), ShouldEqual, uint8(0xfc))

			So(dev.Set(ctx, 2, true), ShouldBeNil)
			So(chip.Port(), ShouldEqual, uint8(0xfe))
			dir, err := dev.GetDirection(ctx, 2)
			So(err, ShouldBeNil)
			So(dir, ShouldEqual, PinDirectionOutput)

			Convey("close releases all pins", func() {
				So(dev.Close(ctx), ShouldBeNil)
				So(chip.Port(), ShouldEqual, uint8(0xff))
			})
		})

		Convey("inputs cannot be set", func() {
			So(IsInvalidDirection(dev.Set(ctx, 5, true)), ShouldBeTrue)
		})
	})
}

func TestService(t *testing.T) {
	ctx := context.Background()

	Convey("Given a device service", t, func() {
		br := bridge.NewVirtualBridge()
		bus := bridge.NewVirtualI2CBus(false)
		bus.Attach(0x40)
		svc, err := NewService([]model.HWDevice{
			{ID: "gpio", Type: model.HWDeviceTypeGPIO},
			{ID: "pwm1", Type: model.HWDeviceTypePCA9685, Address: "0x40"},
			{ID: "pwm2", Type: model.HWDeviceTypePCA9685, Address: "0x41"},
		}, br, bus, zerolog.Nop())
		So(err, ShouldBeNil)

		Convey("only configured devices are available", func() {
			err := svc.Configure(ctx)
			So(err, ShouldNotBeNil)
			So(svc.GetConfiguredDeviceIDs(), ShouldResemble, []string{"gpio", "pwm1"})
			So(svc.GetUnconfiguredDeviceIDs(), ShouldResemble, []string{"pwm2"})

			_, found := svc.DeviceByID("pwm1")
			So(found, ShouldBeTrue)
			_, found = svc.DeviceByID("pwm2")
			So(found, ShouldBeFalse)
		})

		Convey("attached addresses are detected", func() {
			So(svc.DetectI2CAddresses(), ShouldResemble, []string{"0x40"})
		})
	})

	Convey("unknown device types are rejected", t, func() {
		_, err := NewService([]model.HWDevice{{ID: "x", Type: "mcp23017"}}, bridge.NewVirtualBridge(), bridge.NewVirtualI2CBus(false), zerolog.Nop())
		So(IsInvalidDeviceType(err), ShouldBeTrue)
	})
}
