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
	"fmt"
)

// hwLog records the order of all hardware writes.
type hwLog struct {
	events []string
}

func (l *hwLog) add(format string, args ...interface{}) {
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *hwLog) reset() {
	l.events = nil
}

type fakePin struct {
	name   string
	log    *hwLog
	level  Level
	writes int
	// fail is returned by every write while set
	fail error
	// failHigh is returned by writes of High while set
	failHigh error
}

func (p *fakePin) SetHigh(ctx context.Context) error {
	return p.set(High)
}

func (p *fakePin) SetLow(ctx context.Context) error {
	return p.set(Low)
}

func (p *fakePin) set(level Level) error {
	if p.fail != nil {
		return p.fail
	}
	if level == High && p.failHigh != nil {
		return p.failHigh
	}
	p.level = level
	p.writes++
	if level == High {
		p.log.add("%s=high", p.name)
	} else {
		p.log.add("%s=low", p.name)
	}
	return nil
}

type fakeChannel struct {
	log    *hwLog
	max    Duty
	duty   Duty
	writes int
	fail   error
}

func (c *fakeChannel) SetDuty(ctx context.Context, value Duty) error {
	if c.fail != nil {
		return c.fail
	}
	c.duty = value
	c.writes++
	c.log.add("duty=%d", value)
	return nil
}

func (c *fakeChannel) MaxDuty() Duty {
	return c.max
}

type fakeHardware struct {
	log  *hwLog
	pinA *fakePin
	pinB *fakePin
	pwm  *fakeChannel
}

func newFakeHardware(max Duty) *fakeHardware {
	log := &hwLog{}
	return &fakeHardware{
		log:  log,
		pinA: &fakePin{name: "A", log: log},
		pinB: &fakePin{name: "B", log: log},
		pwm:  &fakeChannel{log: log, max: max},
	}
}

// state returns pin A, pin B & duty.
func (h *fakeHardware) state() (Level, Level, Duty) {
	return h.pinA.level, h.pinB.level, h.pwm.duty
}
