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

package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/pkg/service/objects"
)

// Service provides access to the motors.
// The object service is nil while the worker is starting.
type Service interface {
	GetObjectService() objects.Service
}

// UI serves the motor console over SSH.
type UI struct {
	moduleID  string
	startTime time.Time
	service   Service
	log       zerolog.Logger
}

// New creates a new UI.
func New(moduleID string, service Service, log zerolog.Logger) *UI {
	return &UI{
		moduleID:  moduleID,
		startTime: time.Now(),
		service:   service,
		log:       log.With().Str("component", "ui").Logger(),
	}
}

// Handler creates a console for the given SSH session.
func (u *UI) Handler(s ssh.Session) (tea.Model, []tea.ProgramOption) {
	u.log.Info().Str("user", s.User()).Msg("Console session started")
	return NewRoot(u.moduleID, u.startTime, u.service), []tea.ProgramOption{tea.WithAltScreen()}
}
