// Copyright 2023 Ewout Prangsma
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
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/binkynet/MotorWorker/pkg/motor"
	"github.com/binkynet/MotorWorker/pkg/service/objects"
)

const (
	refreshInterval = time.Millisecond * 250
	driveTimeout    = time.Second * 2
	defaultSpeed    = 50
	speedStep       = 10
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

type Root struct {
	moduleID  string
	startTime time.Time
	service   Service
	width     int
	height    int
	loadAvg   string

	motors   []objects.MotorState
	selected int
	speed    uint32
	message  string
	help     help.Model
}

var _ tea.Model = Root{}

// NewRoot creates the root model of the console.
func NewRoot(moduleID string, startTime time.Time, service Service) Root {
	r := Root{
		moduleID:  moduleID,
		startTime: startTime,
		service:   service,
		speed:     defaultSpeed,
		help:      help.New(),
	}
	return r.reload()
}

// Init is the first function that will be called. It returns an optional
// initial command. To not perform an initial command return nil.
func (r Root) Init() tea.Cmd {
	return tea.Batch(doReloadCPULoadAvg(), doRefresh())
}

// Update is called when a message is received. Use it to inspect messages
// and, in response, update the model and/or send a command.
func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadAvgMsg:
		r.loadAvg = string(msg)
		return r, doReloadCPULoadAvg()
	case refreshMsg:
		return r.reload(), doRefresh()
	case driveResultMsg:
		if msg.err != nil {
			r.message = errorStyle.Render(msg.err.Error())
		} else {
			r.message = fmt.Sprintf("%s: %s", msg.state.ID, msg.state.Command())
		}
		return r.reload(), nil
	case tea.WindowSizeMsg:
		r.height = msg.Height
		r.width = msg.Width
		r.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return r, tea.Quit
		case key.Matches(msg, keys.Up):
			if r.selected > 0 {
				r.selected--
			}
		case key.Matches(msg, keys.Down):
			if r.selected < len(r.motors)-1 {
				r.selected++
			}
		case key.Matches(msg, keys.Faster):
			r.speed = min(r.speed+speedStep, motor.MaxSpeed)
		case key.Matches(msg, keys.Slower):
			if r.speed >= speedStep {
				r.speed -= speedStep
			} else {
				r.speed = 0
			}
		case key.Matches(msg, keys.Forward):
			return r, r.drive(motor.Forward(r.speed))
		case key.Matches(msg, keys.Backward):
			return r, r.drive(motor.Backward(r.speed))
		case key.Matches(msg, keys.Brake):
			return r, r.drive(motor.Brake())
		case key.Matches(msg, keys.Stop):
			return r, r.drive(motor.Stop())
		}
	}
	return r, nil
}

// View renders the program's UI, which is just a string. The view is
// rendered after every Update.
func (r Root) View() string {
	var sb strings.Builder
	sb.WriteString(r.headerView())
	sb.WriteString("\n")
	if len(r.motors) == 0 {
		sb.WriteString(dimStyle.Render("No motors available"))
		sb.WriteString("\n")
	}
	for i, m := range r.motors {
		line := fmt.Sprintf("%-16s %-9s %3d%%  duty %5d/%-5d  %s",
			m.ID, m.Direction, m.Speed, m.Duty, m.MaxDuty, lastChange(m))
		if !m.Configured {
			line = fmt.Sprintf("%-16s %s", m.ID, "not configured")
		}
		if i == r.selected {
			line = selectedStyle.Render(line)
		}
		sb.WriteString(line)
		if m.Error != "" {
			sb.WriteString("  ")
			sb.WriteString(errorStyle.Render(m.Error))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Speed: %d%%\n", r.speed))
	if r.message != "" {
		sb.WriteString(r.message)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(r.help.View(keys))
	return sb.String()
}

func (r Root) headerView() string {
	uptime := humanize.RelTime(r.startTime, time.Now(), "", "")
	return lipgloss.JoinHorizontal(lipgloss.Left,
		headerStyle.Render("BinkyNet Motor worker "+r.moduleID),
		fmt.Sprintf("  up %s  ", strings.TrimSpace(uptime)),
		r.loadAvg,
	) + "\n"
}

// reload the motor states.
func (r Root) reload() Root {
	if objService := r.service.GetObjectService(); objService != nil {
		r.motors = objService.MotorStates()
	}
	if r.selected >= len(r.motors) {
		r.selected = max(len(r.motors)-1, 0)
	}
	return r
}

// drive returns a command that drives the selected motor.
func (r Root) drive(cmd motor.DriveCommand) tea.Cmd {
	objService := r.service.GetObjectService()
	if objService == nil || len(r.motors) == 0 {
		return nil
	}
	id := r.motors[r.selected].ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), driveTimeout)
		defer cancel()
		state, err := objService.Drive(ctx, id, cmd)
		return driveResultMsg{state: state, err: err}
	}
}

func lastChange(m objects.MotorState) string {
	if m.LastChange.IsZero() {
		return ""
	}
	return dimStyle.Render(humanize.Time(m.LastChange))
}

type loadAvgMsg string

type refreshMsg time.Time

type driveResultMsg struct {
	state objects.MotorState
	err   error
}

func doRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func doReloadCPULoadAvg() tea.Cmd {
	return tea.Tick(time.Second*2, func(t time.Time) tea.Msg {
		if content, err := os.ReadFile("/proc/loadavg"); err != nil {
			return loadAvgMsg("")
		} else {
			return loadAvgMsg(strings.TrimSpace(string(content)))
		}
	})
}
