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

package motor

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestValidate(t *testing.T) {
	Convey("forward and backward accept 0..100", t, func() {
		for speed := uint32(0); speed <= MaxSpeed; speed++ {
			v, err := Validate(Forward(speed))
			So(err, ShouldBeNil)
			So(v.Speed(), ShouldEqual, speed)
			So(v.LevelA(), ShouldEqual, High)
			So(v.LevelB(), ShouldEqual, Low)

			v, err = Validate(Backward(speed))
			So(err, ShouldBeNil)
			So(v.Speed(), ShouldEqual, speed)
			So(v.LevelA(), ShouldEqual, Low)
			So(v.LevelB(), ShouldEqual, High)
		}
	})

	Convey("speeds above 100 are rejected", t, func() {
		for _, speed := range []uint32{101, 200, 255, 1000, math.MaxUint32} {
			_, err := Validate(Forward(speed))
			So(IsInvalidSpeed(err), ShouldBeTrue)
			_, err = Validate(Backward(speed))
			So(IsInvalidSpeed(err), ShouldBeTrue)
			So(KindOf(err), ShouldEqual, KindInvalidSpeed)
		}
	})

	Convey("brake and stop carry speed 0", t, func() {
		v, err := Validate(DriveCommand{Direction: DirectionBrake, Speed: 300})
		So(err, ShouldBeNil)
		So(v.Command(), ShouldResemble, Brake())
		So(v.LevelA(), ShouldEqual, High)
		So(v.LevelB(), ShouldEqual, High)

		v, err = Validate(DriveCommand{Direction: DirectionStop, Speed: 42})
		So(err, ShouldBeNil)
		So(v.Command(), ShouldResemble, Stop())
		So(v.LevelA(), ShouldEqual, Low)
		So(v.LevelB(), ShouldEqual, Low)
	})

	Convey("unknown directions are rejected", t, func() {
		_, err := Validate(DriveCommand{Direction: Direction(17)})
		So(errors.Cause(err), ShouldEqual, InvalidCommandError)
	})

	Convey("the zero command is stop", t, func() {
		So(DriveCommand{}, ShouldResemble, Stop())
	})
}

func TestParseDriveCommand(t *testing.T) {
	Convey("valid commands", t, func() {
		tests := map[string]DriveCommand{
			"stop":         Stop(),
			"  Brake ":     Brake(),
			"forward 50":   Forward(50),
			"forward:20":   Forward(20),
			"fwd=100":      Forward(100),
			"backward 0":   Backward(0),
			"ccw 75%":      Backward(75),
			"reverse\t200": Backward(200),
			"cw 1":         Forward(1),
			"coast":        Stop(),
		}
		for input, expected := range tests {
			cmd, err := ParseDriveCommand(input)
			So(err, ShouldBeNil)
			So(cmd, ShouldResemble, expected)
		}
	})

	Convey("invalid commands", t, func() {
		for _, input := range []string{"", "sideways", "forward", "stop 10", "forward fast", "backward -5", "forward 1 2"} {
			_, err := ParseDriveCommand(input)
			So(err, ShouldNotBeNil)
			So(errors.Cause(err), ShouldEqual, InvalidCommandError)
		}
	})

	Convey("String can be parsed back", t, func() {
		for _, cmd := range []DriveCommand{Stop(), Brake(), Forward(33), Backward(100)} {
			parsed, err := ParseDriveCommand(cmd.String())
			So(err, ShouldBeNil)
			So(parsed, ShouldResemble, cmd)
		}
	})
}

func TestScaleDuty(t *testing.T) {
	Convey("percentages scale with truncating division", t, func() {
		So(ScaleDuty(0, 65535), ShouldEqual, Duty(0))
		So(ScaleDuty(50, 65535), ShouldEqual, Duty(32767))
		So(ScaleDuty(100, 65535), ShouldEqual, Duty(65535))
		So(ScaleDuty(20, 65416), ShouldEqual, Duty(13083))
		So(ScaleDuty(33, 4095), ShouldEqual, Duty(1351))
	})

	Convey("large counters do not overflow", t, func() {
		So(ScaleDuty(100, math.MaxUint32), ShouldEqual, Duty(math.MaxUint32))
		So(ScaleDuty(99, math.MaxUint32), ShouldEqual, Duty(uint64(99)*math.MaxUint32/100))
	})
}
