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

package script

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/motor"
	"github.com/binkynet/MotorWorker/pkg/service/util"
)

// Driver is implemented by everything that can execute a drive command.
type Driver interface {
	Drive(ctx context.Context, cmd motor.DriveCommand) error
}

// Run executes the given steps in order.
// Each command is applied, followed by the dwell time of its step.
// Cancellation of the context stops the script without error.
// A failing step aborts the script.
func Run(ctx context.Context, log zerolog.Logger, driver Driver, steps []model.ScriptStep) error {
	for i, step := range steps {
		cmd, err := step.Parse()
		if err != nil {
			return errors.Wrapf(err, "step %d", i+1)
		}
		log.Debug().
			Int("step", i+1).
			Str("command", cmd.String()).
			Dur("duration", step.Duration).
			Msg("Executing script step")
		if err := driver.Drive(ctx, cmd); err != nil {
			return errors.Wrapf(err, "step %d", i+1)
		}
		if !util.Sleep(ctx, step.Duration) {
			log.Debug().Int("step", i+1).Msg("Script canceled")
			return nil
		}
	}
	return nil
}
