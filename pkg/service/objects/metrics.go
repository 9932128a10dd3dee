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

package objects

import (
	"github.com/binkynet/MotorWorker/pkg/metrics"
)

const (
	subSystem = "objects"
)

var (
	// Number of created objects
	objectsCreatedTotal = metrics.MustRegisterGauge(subSystem,
		"objects_created_total",
		"Number of created objects")

	// Number of configured objects
	objectsConfiguredTotal = metrics.MustRegisterGauge(subSystem,
		"objects_configured_total",
		"Number of configured objects")

	// Motor metrics
	motorDriveRequestsTotal = metrics.MustRegisterCounterVec(subSystem,
		"motor_drive_requests_total",
		"Number of drive requests of a motor",
		"id")
	motorDriveErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"motor_drive_errors_total",
		"Number of failed drive requests of a motor",
		"id", "kind")
	motorSpeedGauge = metrics.MustRegisterGaugeVec(subSystem,
		"motor_speed",
		"Speed of the last applied command (negative for backward)",
		"id")
)
