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
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/binkynet/MotorWorker/pkg/motor"
)

func TestParseCommandPayload(t *testing.T) {
	Convey("text and JSON payloads are accepted", t, func() {
		tests := []struct {
			Payload  string
			Expected motor.DriveCommand
		}{
			{"forward 50", motor.Forward(50)},
			{"  brake\n", motor.Brake()},
			{`{"command":"backward 20"}`, motor.Backward(20)},
			{`{"direction":"forward","speed":75}`, motor.Forward(75)},
			{`{"direction":"stop"}`, motor.Stop()},
			{`{"direction":"brake","speed":0}`, motor.Brake()},
		}
		for _, test := range tests {
			cmd, err := ParseCommandPayload([]byte(test.Payload))
			So(err, ShouldBeNil)
			So(cmd, ShouldResemble, test.Expected)
		}
	})

	Convey("invalid payloads are rejected", t, func() {
		for _, payload := range []string{"", "sideways", "{", `{"direction":"up"}`, `{"direction":"forward"}`, `{"direction":"stop","speed":5}`} {
			_, err := ParseCommandPayload([]byte(payload))
			So(errors.Cause(err), ShouldEqual, motor.InvalidCommandError)
		}
	})

	Convey("speeds are validated by the motor, not by the parser", t, func() {
		cmd, err := ParseCommandPayload([]byte(`{"direction":"forward","speed":250}`))
		So(err, ShouldBeNil)
		So(cmd.Speed, ShouldEqual, uint32(250))
	})
}
