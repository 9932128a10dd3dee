// Copyright 2020 Ewout Prangsma
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
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
)

// Service contains the API that is exposed by the device service.
type Service interface {
	// DeviceByID returns the device with given ID.
	// Return false if not found or not configured.
	DeviceByID(id string) (Device, bool)
	// Configure is called once to put all devices in the desired state.
	Configure(ctx context.Context) error
	// Run the service until the given context is canceled.
	Run(ctx context.Context) error
	// Close brings all devices back to a safe state.
	Close(context.Context) error
	// Get a list of configured device IDs
	GetConfiguredDeviceIDs() []string
	// Get a list of unconfigured device IDs
	GetUnconfiguredDeviceIDs() []string
	// DetectI2CAddresses returns the addresses of all devices found on the I2C bus.
	DetectI2CAddresses() []string
}

type service struct {
	mutex             sync.Mutex
	log               zerolog.Logger
	devices           map[string]Device
	configuredDevices map[string]Device
	bus               bridge.I2CBus
	bAPI              bridge.API
	activeCount       uint32
}

// NewService instantiates a new Service and Device's for the given
// device configurations.
func NewService(configs []model.HWDevice, bAPI bridge.API, bus bridge.I2CBus, log zerolog.Logger) (Service, error) {
	s := &service{
		log:               log.With().Str("component", "device-service").Logger(),
		devices:           make(map[string]Device),
		configuredDevices: make(map[string]Device),
		bus:               bus,
		bAPI:              bAPI,
	}
	for _, c := range configs {
		var dev Device
		var err error
		switch c.Type {
		case model.HWDeviceTypeGPIO:
			dev, err = newLocalGPIO(c, bAPI, s.onActive)
		case model.HWDeviceTypePCA9685:
			dev, err = newPCA9685(c, bus, s.onActive)
		case model.HWDeviceTypeMCP23008:
			dev, err = newMCP23008(c, bus, s.onActive)
		case model.HWDeviceTypePCF8574:
			dev, err = newPCF8574(c, bus, s.onActive)
		default:
			return nil, errors.Wrapf(InvalidDeviceTypeError, "unsupported device type '%s'", c.Type)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "device '%s'", c.ID)
		}
		if _, found := s.devices[c.ID]; found {
			return nil, fmt.Errorf("duplicate device ID '%s'", c.ID)
		}
		s.devices[c.ID] = dev
	}
	devicesCreatedTotal.Set(float64(len(s.devices)))
	return s, nil
}

// DeviceByID returns the device with given ID.
// Return false if not found or not configured.
func (s *service) DeviceByID(id string) (Device, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	dev, ok := s.configuredDevices[id]
	return dev, ok
}

// Configure is called once to put all devices in the desired state.
// Devices that fail to configure are not returned by DeviceByID.
func (s *service) Configure(ctx context.Context) error {
	log := s.log
	var ae aerr.AggregateError
	configuredDevices := make(map[string]Device)
	for _, id := range sortedKeys(s.devices) {
		d := s.devices[id]
		log := log.With().Str("device-id", id).Logger()
		log.Debug().Msg("configuring device...")
		if err := d.Configure(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to configure device")
			deviceErrorsTotal.WithLabelValues(id, "configure").Inc()
			ae.Add(errors.Wrapf(err, "device '%s'", id))
		} else {
			configuredDevices[id] = d
			log.Debug().Msg("configured device")
		}
	}
	s.mutex.Lock()
	s.configuredDevices = configuredDevices
	s.mutex.Unlock()
	log.Info().Int("count", len(configuredDevices)).Msg("Configured devices")
	devicesConfiguredTotal.Set(float64(len(configuredDevices)))
	return ae.AsError()
}

// Run the service until the given context is canceled.
func (s *service) Run(ctx context.Context) error {
	return s.runActiveNotify(ctx)
}

// Close brings all devices back to a safe state.
func (s *service) Close(ctx context.Context) error {
	var ae aerr.AggregateError
	for _, id := range sortedKeys(s.devices) {
		if err := s.devices[id].Close(ctx); err != nil {
			s.log.Warn().Err(err).Str("device-id", id).Msg("Failed to close device")
			deviceErrorsTotal.WithLabelValues(id, "close").Inc()
			ae.Add(errors.Wrapf(err, "device '%s'", id))
		}
	}
	return ae.AsError()
}

// onActive is called when a device change is activated.
func (s *service) onActive() {
	atomic.AddUint32(&s.activeCount, 1)
}

// runActiveNotify blinks the red led while devices are active
func (s *service) runActiveNotify(ctx context.Context) error {
	lastActiveCount := uint32(0)
	count := 0
	for {
		select {
		case <-ctx.Done():
			// Context canceled
			return nil
		case <-time.After(time.Second / 10):
			newActiveCount := atomic.LoadUint32(&s.activeCount)
			if newActiveCount != lastActiveCount {
				lastActiveCount = newActiveCount
				s.bAPI.BlinkRedLED(time.Second / 10)
				count = 0
			} else if count < 20 {
				count++
			} else {
				count = 0
				s.bAPI.SetRedLED(false)
			}
		}
	}
}

// Get a list of configured device IDs
func (s *service) GetConfiguredDeviceIDs() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return sortedKeys(s.configuredDevices)
}

// Get a list of unconfigured device IDs
func (s *service) GetUnconfiguredDeviceIDs() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return lo.Filter(sortedKeys(s.devices), func(id string, _ int) bool {
		_, found := s.configuredDevices[id]
		return !found
	})
}

// DetectI2CAddresses returns the addresses of all devices found on the I2C bus.
func (s *service) DetectI2CAddresses() []string {
	return lo.Map(s.bus.DetectSlaveAddresses(), func(addr byte, _ int) string {
		return fmt.Sprintf("0x%02x", addr)
	})
}

func sortedKeys(m map[string]Device) []string {
	result := lo.Keys(m)
	sort.Strings(result)
	return result
}
