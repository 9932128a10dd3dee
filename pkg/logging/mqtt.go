// Copyright 2018 Ewout Prangsma
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

package logging

import (
	"bytes"
	"context"
	"sync"

	"github.com/binkynet/MotorWorker/pkg/metrics"
	"github.com/binkynet/MotorWorker/pkg/service/mqtt"
)

// Publisher is the part of the MQTT service used to send log lines.
type Publisher interface {
	Publish(ctx context.Context, msg interface{}, topic string, qos byte, retained bool) error
}

// MQTTWriter sends log lines to an MQTT topic.
// Lines are queued until a destination is set and the writer is enabled.
// When the queue is full, the oldest line is dropped.
type MQTTWriter struct {
	mutex     sync.Mutex
	queue     chan []byte
	changed   chan struct{}
	topic     string
	publisher Publisher
	enabled   bool
}

const (
	mqttQueueSize    = 512
	mqttWriteRetries = 8
)

var (
	logLinesDroppedTotal = metrics.MustRegisterCounter("logging",
		"mqtt_lines_dropped_total",
		"Number of log lines dropped because the MQTT queue was full")
	logLinesPublishErrorsTotal = metrics.MustRegisterCounter("logging",
		"mqtt_publish_errors_total",
		"Number of log lines that failed to publish")
)

// NewMQTTWriter creates a new MQTT output for logs.
// The sender stops when the given context is canceled.
func NewMQTTWriter(ctx context.Context) *MQTTWriter {
	w := &MQTTWriter{
		queue:   make(chan []byte, mqttQueueSize),
		changed: make(chan struct{}, 1),
	}
	go w.run(ctx)
	return w
}

// Write queues a single log line. It never blocks.
func (w *MQTTWriter) Write(p []byte) (int, error) {
	line := bytes.TrimRight(p, "\n")
	if len(line) == 0 {
		return len(p), nil
	}
	// zerolog reuses its buffers
	msg := append([]byte(nil), line...)
	for attempt := 0; attempt < mqttWriteRetries; attempt++ {
		select {
		case w.queue <- msg:
			return len(p), nil
		default:
		}
		select {
		case <-w.queue:
			logLinesDroppedTotal.Inc()
		default:
		}
	}
	logLinesDroppedTotal.Inc()
	return len(p), nil
}

// Enable or disable sending.
func (w *MQTTWriter) Enable(enable bool) {
	w.mutex.Lock()
	w.enabled = enable
	w.mutex.Unlock()
	w.notify()
}

// SetDestination sets the topic & publisher used for sending.
func (w *MQTTWriter) SetDestination(topic string, publisher Publisher) {
	w.mutex.Lock()
	w.topic = topic
	w.publisher = publisher
	w.mutex.Unlock()
	w.notify()
}

func (w *MQTTWriter) notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// destination returns the publisher & topic, or nil when sending is not possible.
func (w *MQTTWriter) destination() (Publisher, string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if !w.enabled || w.topic == "" {
		return nil, ""
	}
	return w.publisher, w.topic
}

func (w *MQTTWriter) run(ctx context.Context) {
	for {
		publisher, topic := w.destination()
		if publisher == nil {
			select {
			case <-w.changed:
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case msg := <-w.queue:
			// Errors are not logged, that would loop back here
			if err := publisher.Publish(ctx, msg, topic, mqtt.QosAtMostOnce, false); err != nil {
				logLinesPublishErrorsTotal.Inc()
			}
		case <-w.changed:
			// Reload destination
		case <-ctx.Done():
			return
		}
	}
}
