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
	"context"
	"sync"

	"github.com/mattn/go-pubsub"
	"github.com/rs/zerolog"
)

// statePublisher broadcasts motor state changes to all subscribers.
// Notifications are delivered asynchronously.
type statePublisher struct {
	log    zerolog.Logger
	states *pubsub.PubSub

	mutex sync.Mutex
	wcb   func(MotorState)
	subs  map[*subscription]struct{}
}

type subscription struct {
	cb func(MotorState)
}

// newStatePublisher creates a new statePublisher.
func newStatePublisher(log zerolog.Logger) *statePublisher {
	p := &statePublisher{
		log:    log,
		states: pubsub.New(),
		subs:   make(map[*subscription]struct{}),
	}
	return p
}

// publish the given state to all subscribers.
func (p *statePublisher) publish(s MotorState) {
	p.states.Pub(s)
}

// subscribe registers the given callback.
// The returned function unregisters it.
func (p *statePublisher) subscribe(cb func(MotorState)) context.CancelFunc {
	sub := &subscription{cb: cb}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.subs[sub] = struct{}{}
	if p.wcb == nil {
		// pubsub identifies callbacks by their code pointer, so a single
		// dispatcher is registered for all subscriptions.
		wcb := func(s MotorState) {
			p.mutex.Lock()
			cbs := make([]func(MotorState), 0, len(p.subs))
			for x := range p.subs {
				cbs = append(cbs, x.cb)
			}
			p.mutex.Unlock()
			for _, cb := range cbs {
				cb(s)
			}
		}
		if err := p.states.Sub(wcb); err != nil {
			p.log.Error().Err(err).Msg("Failed to subscribe to state changes")
		}
		p.wcb = wcb
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mutex.Lock()
			defer p.mutex.Unlock()
			delete(p.subs, sub)
			if len(p.subs) == 0 && p.wcb != nil {
				p.states.Leave(p.wcb)
				p.wcb = nil
			}
		})
	}
}
