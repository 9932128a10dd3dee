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

import "fmt"

// Pin identifies a single pin/output of a device.
type Pin struct {
	// Unique identifier of the device that contains this pin.
	DeviceID string `json:"device" yaml:"device"`
	// Pin number (1...)
	Index int `json:"index" yaml:"index"`
}

func (p Pin) String() string {
	return fmt.Sprintf("%s/%d", p.DeviceID, p.Index)
}
