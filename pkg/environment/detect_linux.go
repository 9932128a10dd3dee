//    Copyright 2018 Ewout Prangsma
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

//go:build linux

package environment

import (
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/binkynet/MotorWorker/pkg/service/bridge"
)

// AutoDetectBridgeType detects the default bridge type based on the environment.
// Boards are detected by kernel release & machine, anything that is not
// an ARM board gets the virtual bridge.
func AutoDetectBridgeType(log zerolog.Logger) bridge.Type {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		// Fallback to RPI
		log.Warn().Err(err).Msg("Uname failed, assuming Raspberry Pi")
		return bridge.TypeRaspberryPi
	}
	release := utsString(name.Release[:])
	machine := utsString(name.Machine[:])
	log.Debug().Str("release", release).Str("machine", machine).Msg("Detecting bridge type")
	return detectBridgeType(release, machine)
}

func detectBridgeType(release, machine string) bridge.Type {
	if strings.Contains(release, "sunxi") {
		return bridge.TypeOrangePiZero
	}
	if !strings.HasPrefix(machine, "arm") && machine != "aarch64" {
		return bridge.TypeVirtual
	}
	return bridge.TypeRaspberryPi
}

// utsString converts a NUL terminated utsname field.
func utsString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
