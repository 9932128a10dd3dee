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
	"context"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

const testMaxDuty = Duty(65535)

func TestNew(t *testing.T) {
	ctx := context.Background()

	Convey("construction applies stop", t, func() {
		hw := newFakeHardware(testMaxDuty)
		hw.pinA.level = High
		hw.pwm.duty = 1234
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm)
		So(err, ShouldBeNil)
		So(d.Current(), ShouldResemble, Stop())
		So(d.MaxDuty(), ShouldEqual, testMaxDuty)
		a, b, duty := hw.state()
		So(a, ShouldEqual, Low)
		So(b, ShouldEqual, Low)
		So(duty, ShouldEqual, Duty(0))
		So(hw.log.events, ShouldResemble, []string{"A=low", "B=low", "duty=0"})
	})

	Convey("hardware failures make construction fail", t, func() {
		hw := newFakeHardware(testMaxDuty)
		hw.pwm.fail = errors.New("timer offline")
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm)
		So(d, ShouldBeNil)
		So(IsPWMError(err), ShouldBeTrue)

		hw = newFakeHardware(testMaxDuty)
		hw.pinB.fail = errors.New("gpio busy")
		d, err = New(ctx, hw.pinA, hw.pinB, hw.pwm)
		So(d, ShouldBeNil)
		So(IsPinBError(err), ShouldBeTrue)
	})

	Convey("missing outputs are rejected", t, func() {
		hw := newFakeHardware(testMaxDuty)
		_, err := New(ctx, nil, hw.pinB, hw.pwm)
		So(err, ShouldNotBeNil)
		_, err = New(ctx, hw.pinA, hw.pinB, nil)
		So(err, ShouldNotBeNil)
	})

	Convey("safe command must be stop or brake", t, func() {
		hw := newFakeHardware(testMaxDuty)
		_, err := New(ctx, hw.pinA, hw.pinB, hw.pwm, WithSafeCommand(Forward(10)))
		So(errors.Cause(err), ShouldEqual, InvalidCommandError)
		So(hw.log.events, ShouldBeEmpty)

		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm, WithSafeCommand(Brake()))
		So(err, ShouldBeNil)
		So(d.SafeCommand(), ShouldResemble, Brake())
	})
}

func TestDrive(t *testing.T) {
	ctx := context.Background()

	Convey("Given a driver", t, func() {
		hw := newFakeHardware(testMaxDuty)
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm)
		So(err, ShouldBeNil)
		hw.log.reset()

		Convey("forward sets A high, B low and scales the duty", func() {
			for speed := uint32(0); speed <= MaxSpeed; speed++ {
				So(d.Drive(ctx, Forward(speed)), ShouldBeNil)
				a, b, duty := hw.state()
				So(a, ShouldEqual, High)
				So(b, ShouldEqual, Low)
				So(duty, ShouldEqual, ScaleDuty(speed, testMaxDuty))
				So(d.Current(), ShouldResemble, Forward(speed))
			}
		})

		Convey("backward sets A low, B high and scales the duty", func() {
			for speed := uint32(0); speed <= MaxSpeed; speed++ {
				So(d.Drive(ctx, Backward(speed)), ShouldBeNil)
				a, b, duty := hw.state()
				So(a, ShouldEqual, Low)
				So(b, ShouldEqual, High)
				So(duty, ShouldEqual, ScaleDuty(speed, testMaxDuty))
				So(d.Current(), ShouldResemble, Backward(speed))
			}
		})

		Convey("invalid speeds change nothing", func() {
			So(d.Drive(ctx, Forward(30)), ShouldBeNil)
			hw.log.reset()
			for _, cmd := range []DriveCommand{Forward(101), Backward(101), Backward(200), Forward(5000)} {
				err := d.Drive(ctx, cmd)
				So(IsInvalidSpeed(err), ShouldBeTrue)
				So(d.Current(), ShouldResemble, Forward(30))
			}
			So(hw.log.events, ShouldBeEmpty)
			a, b, duty := hw.state()
			So(a, ShouldEqual, High)
			So(b, ShouldEqual, Low)
			So(duty, ShouldEqual, ScaleDuty(30, testMaxDuty))
		})

		Convey("brake drives both pins high with zero duty", func() {
			So(d.Drive(ctx, Forward(80)), ShouldBeNil)
			So(d.Drive(ctx, Brake()), ShouldBeNil)
			a, b, duty := hw.state()
			So(a, ShouldEqual, High)
			So(b, ShouldEqual, High)
			So(duty, ShouldEqual, Duty(0))
			So(d.Current(), ShouldResemble, Brake())
		})

		Convey("stop drives both pins low with zero duty", func() {
			So(d.Drive(ctx, Backward(80)), ShouldBeNil)
			So(d.Drive(ctx, Stop()), ShouldBeNil)
			a, b, duty := hw.state()
			So(a, ShouldEqual, Low)
			So(b, ShouldEqual, Low)
			So(duty, ShouldEqual, Duty(0))
			So(d.Current(), ShouldResemble, Stop())
		})

		Convey("pins are written before the duty", func() {
			So(d.Drive(ctx, Backward(50)), ShouldBeNil)
			So(hw.log.events, ShouldResemble, []string{"A=low", "B=high", "duty=32767"})
		})

		Convey("repeating a command rewrites identical values", func() {
			So(d.Drive(ctx, Forward(40)), ShouldBeNil)
			first := append([]string(nil), hw.log.events...)
			hw.log.reset()
			So(d.Drive(ctx, Forward(40)), ShouldBeNil)
			So(hw.log.events, ShouldResemble, first)
			So(d.Current(), ShouldResemble, Forward(40))
		})

		Convey("max duty is not affected by driving", func() {
			for _, cmd := range []DriveCommand{Forward(100), Brake(), Backward(1), Forward(300), Stop()} {
				d.Drive(ctx, cmd)
				So(d.MaxDuty(), ShouldEqual, testMaxDuty)
			}
		})

		Convey("a pin A failure leaves pin B, duty and state untouched", func() {
			So(d.Drive(ctx, Forward(10)), ShouldBeNil)
			hw.log.reset()
			hw.pinA.fail = errors.New("pin A broken")
			err := d.Drive(ctx, Backward(60))
			So(IsPinAError(err), ShouldBeTrue)
			So(errors.Is(err, hw.pinA.fail), ShouldBeTrue)
			So(hw.log.events, ShouldBeEmpty)
			So(d.Current(), ShouldResemble, Forward(10))
		})

		Convey("a pin B failure leaves pin A changed", func() {
			So(d.Drive(ctx, Forward(10)), ShouldBeNil)
			hw.log.reset()
			hw.pinB.fail = errors.New("pin B broken")
			err := d.Drive(ctx, Backward(60))
			So(IsPinBError(err), ShouldBeTrue)
			So(hw.log.events, ShouldResemble, []string{"A=low"})
			So(d.Current(), ShouldResemble, Forward(10))
			So(d.Duty(), ShouldEqual, ScaleDuty(10, testMaxDuty))
		})

		Convey("a pwm failure leaves both pins changed", func() {
			So(d.Drive(ctx, Forward(10)), ShouldBeNil)
			hw.log.reset()
			hw.pwm.fail = errors.New("timer stalled")
			err := d.Drive(ctx, Backward(60))
			So(IsPWMError(err), ShouldBeTrue)
			So(hw.log.events, ShouldResemble, []string{"A=low", "B=high"})
			So(hw.pwm.duty, ShouldEqual, ScaleDuty(10, testMaxDuty))
			So(d.Current(), ShouldResemble, Forward(10))
		})

		Convey("a failed command can be retried", func() {
			hw.pwm.fail = errors.New("timer stalled")
			So(d.Drive(ctx, Forward(70)), ShouldNotBeNil)
			hw.pwm.fail = nil
			So(d.Drive(ctx, Forward(70)), ShouldBeNil)
			So(d.Current(), ShouldResemble, Forward(70))
		})
	})

	Convey("forward 50, then an invalid backward keeps forward 50", t, func() {
		hw := newFakeHardware(testMaxDuty)
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm)
		So(err, ShouldBeNil)
		So(d.Current(), ShouldResemble, Stop())

		So(d.Drive(ctx, Forward(50)), ShouldBeNil)
		a, b, duty := hw.state()
		So(a, ShouldEqual, High)
		So(b, ShouldEqual, Low)
		So(duty, ShouldEqual, testMaxDuty/2)

		err = d.Drive(ctx, Backward(200))
		So(IsInvalidSpeed(err), ShouldBeTrue)
		So(d.Current(), ShouldResemble, Forward(50))
		a, b, duty = hw.state()
		So(a, ShouldEqual, High)
		So(b, ShouldEqual, Low)
		So(duty, ShouldEqual, testMaxDuty/2)
	})
}

func TestRevertPolicy(t *testing.T) {
	ctx := context.Background()

	Convey("Given a driver that reverts pins", t, func() {
		hw := newFakeHardware(testMaxDuty)
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm, WithRevertPolicy(RevertPins))
		So(err, ShouldBeNil)
		So(d.Drive(ctx, Forward(10)), ShouldBeNil)
		hw.log.reset()

		Convey("a pin B failure restores pin A", func() {
			hw.pinB.fail = errors.New("pin B broken")
			err := d.Drive(ctx, Backward(60))
			So(IsPinBError(err), ShouldBeTrue)
			So(hw.log.events, ShouldResemble, []string{"A=low", "A=high"})
			So(hw.pinA.level, ShouldEqual, High)
			So(d.Current(), ShouldResemble, Forward(10))
		})

		Convey("a pwm failure restores both pins", func() {
			hw.pwm.fail = errors.New("timer stalled")
			err := d.Drive(ctx, Backward(60))
			So(IsPWMError(err), ShouldBeTrue)
			var de *DriveError
			So(errors.As(err, &de), ShouldBeTrue)
			So(de.RevertErr, ShouldBeNil)
			So(hw.log.events, ShouldResemble, []string{"A=low", "B=high", "B=low", "A=high"})
			a, b, duty := hw.state()
			So(a, ShouldEqual, High)
			So(b, ShouldEqual, Low)
			So(duty, ShouldEqual, ScaleDuty(10, testMaxDuty))
		})

		Convey("a failing revert is reported next to the original error", func() {
			hw.pinA.failHigh = errors.New("pin A stuck low")
			hw.pinB.fail = errors.New("pin B broken")
			err := d.Drive(ctx, Backward(60))
			So(IsPinBError(err), ShouldBeTrue)
			var de *DriveError
			So(errors.As(err, &de), ShouldBeTrue)
			So(de.Err, ShouldEqual, hw.pinB.fail)
			So(de.RevertErr, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "revert failed")
			So(hw.pinA.level, ShouldEqual, Low)
			So(d.Current(), ShouldResemble, Forward(10))
		})
	})

	Convey("Without revert, a restore is never attempted", t, func() {
		hw := newFakeHardware(testMaxDuty)
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm)
		So(err, ShouldBeNil)
		So(d.Drive(ctx, Brake()), ShouldBeNil)
		hw.log.reset()
		hw.pwm.fail = errors.New("timer stalled")
		err = d.Drive(ctx, Forward(1))
		var de *DriveError
		So(errors.As(err, &de), ShouldBeTrue)
		So(de.RevertErr, ShouldBeNil)
		So(hw.log.events, ShouldResemble, []string{"A=high", "B=low"})
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	Convey("Close applies stop by default", t, func() {
		hw := newFakeHardware(testMaxDuty)
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm)
		So(err, ShouldBeNil)
		So(d.Drive(ctx, Forward(90)), ShouldBeNil)
		So(d.Close(ctx), ShouldBeNil)
		a, b, duty := hw.state()
		So(a, ShouldEqual, Low)
		So(b, ShouldEqual, Low)
		So(duty, ShouldEqual, Duty(0))

		Convey("further driving is refused", func() {
			So(d.Drive(ctx, Forward(10)), ShouldEqual, ErrClosed)
			So(d.CW(ctx), ShouldEqual, ErrClosed)
			So(d.SetDuty(ctx, 10), ShouldEqual, ErrClosed)
			So(d.Close(ctx), ShouldBeNil)
			So(d.Current(), ShouldResemble, Stop())
		})
	})

	Convey("Close can brake", t, func() {
		hw := newFakeHardware(testMaxDuty)
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm, WithSafeCommand(Brake()))
		So(err, ShouldBeNil)
		So(d.Drive(ctx, Backward(90)), ShouldBeNil)
		So(d.Close(ctx), ShouldBeNil)
		a, b, duty := hw.state()
		So(a, ShouldEqual, High)
		So(b, ShouldEqual, High)
		So(duty, ShouldEqual, Duty(0))
	})

	Convey("A failing Close can be retried", t, func() {
		hw := newFakeHardware(testMaxDuty)
		d, err := New(ctx, hw.pinA, hw.pinB, hw.pwm)
		So(err, ShouldBeNil)
		So(d.Drive(ctx, Forward(90)), ShouldBeNil)
		hw.pwm.fail = errors.New("timer stalled")
		So(IsPWMError(d.Close(ctx)), ShouldBeTrue)
		hw.pwm.fail = nil
		So(d.Close(ctx), ShouldBeNil)
		So(hw.pwm.duty, ShouldEqual, Duty(0))
	})
}
