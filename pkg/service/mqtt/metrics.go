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

package mqtt

import (
	"github.com/binkynet/MotorWorker/pkg/metrics"
)

const (
	subSystem = "mqtt"
)

var (
	messagesReceivedTotal = metrics.MustRegisterCounter(subSystem,
		"messages_received_total",
		"Number of MQTT messages received")
	messagesPublishedTotal = metrics.MustRegisterCounter(subSystem,
		"messages_published_total",
		"Number of MQTT messages published")
	publishErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"publish_errors_total",
		"Number of MQTT messages that could not be published")
	connectionLostTotal = metrics.MustRegisterCounter(subSystem,
		"connection_lost_total",
		"Number of times the connection to the broker was lost")
	motorCommandsTotal = metrics.MustRegisterCounterVec(subSystem,
		"motor_commands_total",
		"Number of motor commands received over MQTT",
		"id", "result")
)
