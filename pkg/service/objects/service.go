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

package objects

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/motor"
	"github.com/binkynet/MotorWorker/pkg/service/devices"
)

// Service contains the API that is exposed by the object service.
type Service interface {
	// Configure is called once to put all objects in the desired state.
	Configure(ctx context.Context) error
	// Run all objects until the given context is cancelled.
	Run(ctx context.Context) error
	// Close brings all motors to their safe state.
	Close(ctx context.Context) error
	// Drive the motor with given ID.
	Drive(ctx context.Context, id string, cmd motor.DriveCommand) (MotorState, error)
	// MotorState returns the state of the motor with given ID.
	MotorState(id string) (MotorState, error)
	// MotorStates returns the state of all motors, sorted by ID.
	MotorStates() []MotorState
	// Subscribe to state changes of all motors.
	Subscribe(cb func(MotorState)) context.CancelFunc
	// Get a list of configured object IDs
	GetConfiguredObjectIDs() []string
	// Get a list of unconfigured object IDs
	GetUnconfiguredObjectIDs() []string
}

type service struct {
	log               zerolog.Logger
	objects           map[string]*motorObject
	configuredObjects map[string]*motorObject
	invalidObjectIDs  []string
	publisher         *statePublisher
}

// NewService instantiates a new Service and Object's for the given
// object configurations.
// Objects that cannot be created are logged and reported as unconfigured.
func NewService(configs []model.Object, devService devices.Service, log zerolog.Logger) (Service, error) {
	s := &service{
		log:               log.With().Str("component", "object-service").Logger(),
		objects:           make(map[string]*motorObject),
		configuredObjects: make(map[string]*motorObject),
	}
	s.publisher = newStatePublisher(s.log)
	for _, c := range configs {
		var obj *motorObject
		var err error
		log := s.log.With().
			Str("id", c.ID).
			Str("type", string(c.Type)).
			Logger()
		log.Debug().Msg("creating object...")
		if _, found := s.objects[c.ID]; found {
			err = invalidArgument("Duplicate object ID '%s'", c.ID)
		} else {
			switch c.Type {
			case model.ObjectTypeMotor:
				obj, err = newMotor(c, log, devService, s.publisher.publish)
			default:
				err = invalidArgument("Unsupported object type '%s'", c.Type)
			}
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to create object")
			s.invalidObjectIDs = append(s.invalidObjectIDs, c.ID)
		} else {
			s.objects[c.ID] = obj
		}
	}
	s.log.Debug().Msgf("created %d objects", len(s.objects))
	objectsCreatedTotal.Set(float64(len(s.objects)))
	return s, nil
}

// Configure is called once to put all objects in the desired state.
func (s *service) Configure(ctx context.Context) error {
	var ae aerr.AggregateError
	configuredObjects := make(map[string]*motorObject)
	for _, id := range sortedKeys(s.objects) {
		obj := s.objects[id]
		log := s.log.With().Str("id", id).Logger()
		log.Debug().Msg("configuring object ...")
		if err := obj.Configure(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to configure object")
			ae.Add(errors.Wrapf(err, "object '%s'", id))
		} else {
			configuredObjects[id] = obj
			log.Debug().Msg("configured object")
		}
	}
	s.configuredObjects = configuredObjects
	objectsConfiguredTotal.Set(float64(len(configuredObjects)))
	return ae.AsError()
}

// Run all objects until the given context is cancelled.
func (s *service) Run(ctx context.Context) error {
	defer func() {
		s.log.Debug().Msg("Run Objects ended")
	}()

	// Do nothing if we do not have configured objects
	if len(s.configuredObjects) == 0 {
		s.log.Warn().Msg("no configured objects, just waiting for context to be cancelled")
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	var runningObjects int32
	for id, obj := range s.configuredObjects {
		id := id // Bring range variables in scope
		obj := obj
		g.Go(func() error {
			atomic.AddInt32(&runningObjects, 1)
			log := s.log.With().Str("id", id).Logger()
			defer func() {
				atomic.AddInt32(&runningObjects, -1)
				log.Debug().Msg("Stopped running object")
			}()
			log.Debug().Msg("Running object")
			return obj.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		for {
			objs := atomic.LoadInt32(&runningObjects)
			if objs == 0 {
				s.log.Debug().Msg("No more running objects")
				return nil
			}
			s.log.Debug().Int32("running_objects", objs).Msg("Still running objects")
			time.Sleep(time.Millisecond * 100)
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Msg("Run Objects failed")
		return err
	}
	return nil
}

// Close brings all motors to their safe state.
func (s *service) Close(ctx context.Context) error {
	var ae aerr.AggregateError
	for _, id := range sortedKeys(s.configuredObjects) {
		if err := s.configuredObjects[id].Close(ctx); err != nil {
			ae.Add(errors.Wrapf(err, "object '%s'", id))
		}
	}
	return ae.AsError()
}

// Drive the motor with given ID.
func (s *service) Drive(ctx context.Context, id string, cmd motor.DriveCommand) (MotorState, error) {
	obj, found := s.objects[id]
	if !found {
		if lo.Contains(s.invalidObjectIDs, id) {
			return MotorState{}, errors.Wrapf(NotConfiguredError, "motor '%s'", id)
		}
		return MotorState{}, errors.Wrapf(NotFoundError, "motor '%s'", id)
	}
	return obj.Apply(ctx, cmd)
}

// MotorState returns the state of the motor with given ID.
func (s *service) MotorState(id string) (MotorState, error) {
	obj, found := s.objects[id]
	if !found {
		return MotorState{}, errors.Wrapf(NotFoundError, "motor '%s'", id)
	}
	return obj.State(), nil
}

// MotorStates returns the state of all motors, sorted by ID.
func (s *service) MotorStates() []MotorState {
	return lo.Map(sortedKeys(s.objects), func(id string, _ int) MotorState {
		return s.objects[id].State()
	})
}

// Subscribe to state changes of all motors.
func (s *service) Subscribe(cb func(MotorState)) context.CancelFunc {
	return s.publisher.subscribe(cb)
}

// GetConfiguredObjectIDs builds a list of all IDs of configured objects
func (s *service) GetConfiguredObjectIDs() []string {
	return sortedKeys(s.configuredObjects)
}

// GetUnconfiguredObjectIDs builds a list of all IDs of unconfigured objects
func (s *service) GetUnconfiguredObjectIDs() []string {
	result := lo.Filter(sortedKeys(s.objects), func(id string, _ int) bool {
		_, found := s.configuredObjects[id]
		return !found
	})
	result = append(result, s.invalidObjectIDs...)
	sort.Strings(result)
	return result
}

func sortedKeys(m map[string]*motorObject) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
