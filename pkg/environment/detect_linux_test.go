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

//go:build linux

package environment

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/binkynet/MotorWorker/pkg/service/bridge"
)

func TestDetectBridgeType(t *testing.T) {
	Convey("boards are detected from release & machine", t, func() {
		So(detectBridgeType("5.15.0-sunxi", "armv7l"), ShouldEqual, bridge.TypeOrangePiZero)
		So(detectBridgeType("6.1.21-v7+", "armv7l"), ShouldEqual, bridge.TypeRaspberryPi)
		So(detectBridgeType("6.1.21-v8+", "aarch64"), ShouldEqual, bridge.TypeRaspberryPi)
		So(detectBridgeType("6.8.0-generic", "x86_64"), ShouldEqual, bridge.TypeVirtual)
	})

	Convey("utsname fields are NUL terminated", t, func() {
		So(utsString([]byte{'a', 'r', 'm', 0, 0, 'x'}), ShouldEqual, "arm")
	})
}
