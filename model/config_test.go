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

package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/binkynet/MotorWorker/pkg/motor"
)

const validConfig = `
module-id: yard
devices:
  - id: gpio
    type: gpio
  - id: pwm
    type: pca9685
    address: "0x40"
objects:
  - id: turntable
    type: motor
    connections:
      pin-a: { device: gpio, index: 17 }
      pin-b: { device: gpio, index: 27, invert: true }
      pwm: { device: pwm, index: 1 }
    options:
      safe-state: brake
      revert-on-failure: true
    script:
      - command: forward 20
        duration: 5s
      - command: stop
`

func TestParseConfiguration(t *testing.T) {
	Convey("a valid configuration is decoded", t, func() {
		c, err := ParseConfiguration([]byte(validConfig))
		So(err, ShouldBeNil)
		So(c.ModuleID, ShouldEqual, "yard")
		So(c.Devices, ShouldHaveLength, 2)

		dev, found := c.DeviceByID("pwm")
		So(found, ShouldBeTrue)
		So(dev.Type, ShouldEqual, HWDeviceTypePCA9685)
		So(dev.Address, ShouldEqual, "0x40")

		obj, found := c.ObjectByID("turntable")
		So(found, ShouldBeTrue)
		So(obj.Type, ShouldEqual, ObjectTypeMotor)
		So(obj.Connections[ConnectionNamePinB], ShouldResemble, Connection{Pin: Pin{DeviceID: "gpio", Index: 27}, Invert: true})
		So(obj.Options.SafeState.Command(), ShouldResemble, motor.Brake())
		So(obj.Options.RevertOnFailure, ShouldBeTrue)
		So(obj.Script, ShouldHaveLength, 2)
		So(obj.Script[0].Duration, ShouldEqual, 5*time.Second)

		cmd, err := obj.Script[0].Parse()
		So(err, ShouldBeNil)
		So(cmd, ShouldResemble, motor.Forward(20))
	})

	Convey("the default safe state is stop", t, func() {
		So(SafeState("").Command(), ShouldResemble, motor.Stop())
	})

	Convey("configuration errors are reported", t, func() {
		tests := []struct {
			name  string
			input string
		}{
			{"unknown field", "devices:\n  - id: x\n    type: gpio\n    color: red\n"},
			{"unknown device", "devices:\n  - id: x\n    type: mcp23017\n    address: 0x20\n"},
			{"missing address", "devices:\n  - id: x\n    type: pca9685\n"},
			{"duplicate device", "devices:\n  - id: x\n    type: gpio\n  - id: x\n    type: gpio\n"},
			{"missing connection", `
devices:
  - id: gpio
    type: gpio
objects:
  - id: m
    type: motor
    connections:
      pin-a: { device: gpio, index: 1 }
      pin-b: { device: gpio, index: 2 }
`},
			{"gpio as pwm", `
devices:
  - id: gpio
    type: gpio
objects:
  - id: m
    type: motor
    connections:
      pin-a: { device: gpio, index: 1 }
      pin-b: { device: gpio, index: 2 }
      pwm: { device: gpio, index: 3 }
`},
			{"shared pin", `
devices:
  - id: gpio
    type: gpio
  - id: pwm
    type: pca9685
    address: "0x40"
objects:
  - id: m
    type: motor
    connections:
      pin-a: { device: gpio, index: 1 }
      pin-b: { device: gpio, index: 1 }
      pwm: { device: pwm, index: 1 }
`},
			{"pca9685 index out of range", `
devices:
  - id: gpio
    type: gpio
  - id: pwm
    type: pca9685
    address: "0x40"
objects:
  - id: m
    type: motor
    connections:
      pin-a: { device: gpio, index: 1 }
      pin-b: { device: gpio, index: 2 }
      pwm: { device: pwm, index: 17 }
`},
			{"expander as pwm", `
devices:
  - id: exp
    type: mcp23008
    address: "0x20"
objects:
  - id: m
    type: motor
    connections:
      pin-a: { device: exp, index: 1 }
      pin-b: { device: exp, index: 2 }
      pwm: { device: exp, index: 3 }
`},
			{"expander index out of range", `
devices:
  - id: exp
    type: pcf8574
    address: "0x27"
  - id: pwm
    type: pca9685
    address: "0x40"
objects:
  - id: m
    type: motor
    connections:
      pin-a: { device: exp, index: 1 }
      pin-b: { device: exp, index: 9 }
      pwm: { device: pwm, index: 1 }
`},
			{"invalid script speed", `
devices:
  - id: gpio
    type: gpio
  - id: pwm
    type: pca9685
    address: "0x40"
objects:
  - id: m
    type: motor
    connections:
      pin-a: { device: gpio, index: 1 }
      pin-b: { device: gpio, index: 2 }
      pwm: { device: pwm, index: 1 }
    script:
      - command: forward 200
`},
			{"invalid safe state", `
devices:
  - id: gpio
    type: gpio
  - id: pwm
    type: pca9685
    address: "0x40"
objects:
  - id: m
    type: motor
    connections:
      pin-a: { device: gpio, index: 1 }
      pin-b: { device: gpio, index: 2 }
      pwm: { device: pwm, index: 1 }
    options:
      safe-state: forward
`},
		}
		for _, test := range tests {
			Convey(test.name, func() {
				_, err := ParseConfiguration([]byte(test.input))
				So(err, ShouldNotBeNil)
				So(IsValidation(err), ShouldBeTrue)
			})
		}
	})
}

func TestLoadConfiguration(t *testing.T) {
	Convey("configuration is loaded from file", t, func() {
		path := filepath.Join(t.TempDir(), "worker.yaml")
		So(os.WriteFile(path, []byte(validConfig), 0644), ShouldBeNil)
		c, err := LoadConfiguration(path)
		So(err, ShouldBeNil)
		So(c.Objects, ShouldHaveLength, 1)
	})

	Convey("missing files fail", t, func() {
		_, err := LoadConfiguration(filepath.Join(t.TempDir(), "none.yaml"))
		So(err, ShouldNotBeNil)
	})
}
