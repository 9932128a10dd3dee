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

package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
	"github.com/binkynet/MotorWorker/pkg/service/mqtt"
	"github.com/binkynet/MotorWorker/pkg/service/objects"
)

// Service contains the API exposed by the worker service
type Service interface {
	// Run the worker service until the given context is cancelled.
	// All motors are brought to their safe state before Run returns.
	Run(ctx context.Context) error
	// GetObjectService returns the object service, or nil if not yet available.
	GetObjectService() objects.Service
	// GetDeviceService returns the device service, or nil if not yet available.
	GetDeviceService() devices.Service
}

type Config struct {
	model.LocalConfiguration
	// Prefix of all MQTT topics of this worker
	MQTTTopicPrefix string
	// Maximum time to bring all motors and devices to a safe state
	CloseTimeout time.Duration
}

type Dependencies struct {
	Log    zerolog.Logger
	Bridge bridge.API
	// MQTT is optional
	MQTT mqtt.Service
}

// NewService instantiates a new Service.
func NewService(config Config, deps Dependencies) (Service, error) {
	if deps.Bridge == nil {
		return nil, errors.New("Bridge is required")
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = time.Second * 5
	}
	if config.MQTTTopicPrefix == "" {
		config.MQTTTopicPrefix = mqtt.DefaultTopicPrefix(config.ModuleID)
	}
	return &service{
		config:       config,
		Dependencies: deps,
	}, nil
}

type service struct {
	config Config
	Dependencies

	mutex      sync.Mutex
	devService devices.Service
	objService objects.Service
}

// Run the worker service until the given context is cancelled.
func (s *service) Run(ctx context.Context) error {
	log := s.Log
	// Open I2C bus
	log.Debug().Msg("open I2C bus")
	bus, err := s.Bridge.I2CBus()
	if err != nil {
		log.Debug().Err(err).Msg("Open I2CBus failed")
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	// Build devices service
	log.Debug().Msg("build devices service")
	devService, err := devices.NewService(s.config.Devices, s.Bridge, bus, s.Log)
	if err != nil {
		log.Debug().Err(err).Msg("devices.NewService failed")
		return fmt.Errorf("devices.NewService failed: %w", err)
	}
	s.mutex.Lock()
	s.devService = devService
	s.mutex.Unlock()

	defer func() {
		log.Debug().Msg("closing devices service")
		ctx, cancel := context.WithTimeout(context.Background(), s.config.CloseTimeout)
		defer cancel()
		if err := devService.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to close devices")
		}
	}()

	// Configure devices
	log.Debug().Msg("configure devices")
	if err := devService.Configure(ctx); err != nil {
		// Log error
		log.Error().Err(err).Msg("Not all devices are configured")
	}
	// Stop fast if context canceled
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Build objects service
	log.Debug().Msg("build objects service")
	objService, err := objects.NewService(s.config.Objects, devService,
		s.Log.With().Str("component", "worker.objects").Logger())
	if err != nil {
		log.Debug().Err(err).Msg("objects.NewService failed")
		return fmt.Errorf("objects.NewService failed: %w", err)
	}

	defer func() {
		// Motors go to their safe state before the devices are closed
		log.Debug().Msg("closing objects service")
		ctx, cancel := context.WithTimeout(context.Background(), s.config.CloseTimeout)
		defer cancel()
		if err := objService.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to bring all motors to a safe state")
		} else {
			log.Info().Msg("All motors in safe state")
		}
	}()

	// Configure objects
	s.Log.Debug().Msg("configure objects")
	if err := objService.Configure(ctx); err != nil {
		// Log error
		s.Log.Error().Err(err).Msg("Not all objects are configured")
	}
	s.mutex.Lock()
	s.objService = objService
	s.mutex.Unlock()
	// Stop fast if context canceled
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Run devices & objects
	g, lctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Debug().Msg("run devices")
		if err := devService.Run(lctx); err != nil {
			log.Error().Err(err).Msg("Run devices failed")
			return fmt.Errorf("failed to run devices: %w", err)
		}
		log.Debug().Msg("run devices ended")
		return nil
	})
	g.Go(func() error {
		s.Log.Debug().Msg("run objects")
		if err := objService.Run(lctx); err != nil {
			log.Error().Err(err).Msg("Run objects failed")
			return fmt.Errorf("failed to run objects: %w", err)
		}
		s.Log.Debug().Msg("run objects ended")
		return nil
	})
	if s.MQTT != nil {
		g.Go(func() error {
			b := mqtt.NewMotorBridge(s.MQTT, objService, s.config.MQTTTopicPrefix, s.Log)
			if err := b.Run(lctx); err != nil {
				log.Error().Err(err).Msg("Run MQTT motor bridge failed")
				return fmt.Errorf("failed to run MQTT motor bridge: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "Wait failed")
	}

	return nil
}

// GetObjectService returns the object service, or nil if not yet available.
func (s *service) GetObjectService() objects.Service {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if os := s.objService; os != nil {
		return os
	}
	return nil
}

// GetDeviceService returns the device service, or nil if not yet available.
func (s *service) GetDeviceService() devices.Service {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if ds := s.devService; ds != nil {
		return ds
	}
	return nil
}
