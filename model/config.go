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

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// LocalConfiguration holds the configuration of a single motor worker.
type LocalConfiguration struct {
	// Identifier of the worker, used in MQTT topics
	ModuleID string `json:"module-id,omitempty" yaml:"module-id,omitempty"`
	// List of devices attached to the worker
	Devices []HWDevice `json:"devices,omitempty" yaml:"devices,omitempty"`
	// List of real world objects controlled by the worker
	Objects []Object `json:"objects,omitempty" yaml:"objects,omitempty"`
}

// LoadConfiguration reads & validates the configuration in the YAML file at given path.
func LoadConfiguration(path string) (LocalConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LocalConfiguration{}, errors.Wrapf(err, "failed to read %s", path)
	}
	c, err := ParseConfiguration(data)
	if err != nil {
		return LocalConfiguration{}, errors.Wrapf(err, "in %s", path)
	}
	return c, nil
}

// ParseConfiguration decodes & validates a YAML configuration.
func ParseConfiguration(data []byte) (LocalConfiguration, error) {
	var c LocalConfiguration
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return LocalConfiguration{}, errors.Wrapf(ValidationError, "invalid YAML: %s", err)
	}
	if err := c.Validate(); err != nil {
		return LocalConfiguration{}, maskAny(err)
	}
	return c, nil
}

// DeviceByID returns the device with given ID.
// Return false if not found.
func (c LocalConfiguration) DeviceByID(id string) (HWDevice, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return HWDevice{}, false
}

// ObjectByID returns the object with given ID.
// Return false if not found.
func (c LocalConfiguration) ObjectByID(id string) (Object, bool) {
	for _, x := range c.Objects {
		if x.ID == id {
			return x, true
		}
	}
	return Object{}, false
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c LocalConfiguration) Validate() error {
	deviceIDs := make(map[string]struct{})
	for _, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return maskAny(err)
		}
		if _, found := deviceIDs[d.ID]; found {
			return errors.Wrapf(ValidationError, "duplicate device ID '%s'", d.ID)
		}
		deviceIDs[d.ID] = struct{}{}
	}
	objectIDs := make(map[string]struct{})
	owners := make(map[Pin]string)
	for _, o := range c.Objects {
		if err := o.Validate(); err != nil {
			return maskAny(err)
		}
		if _, found := objectIDs[o.ID]; found {
			return errors.Wrapf(ValidationError, "duplicate object ID '%s'", o.ID)
		}
		objectIDs[o.ID] = struct{}{}
		for name, conn := range o.Connections {
			dev, found := c.DeviceByID(conn.DeviceID)
			if !found {
				return errors.Wrapf(ValidationError, "device '%s' not found in connection '%s' of object '%s'", conn.DeviceID, name, o.ID)
			}
			if err := dev.Type.ValidateIndex(conn.Index); err != nil {
				return errors.Wrapf(ValidationError, "connection '%s' of object '%s': %s", name, o.ID, err)
			}
			if name == ConnectionNamePWM && !dev.Type.HasDutyCycle() {
				return errors.Wrapf(ValidationError, "connection '%s' of object '%s' requires a PWM device, got '%s'", name, o.ID, dev.Type)
			}
			if owner, found := owners[conn.Pin]; found {
				return errors.Wrapf(ValidationError, "pin %s is used by both '%s' and '%s'", conn.Pin, owner, o.ID)
			}
			owners[conn.Pin] = o.ID
		}
	}
	return nil
}
