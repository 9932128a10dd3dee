//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/MotorWorker/model"
	"github.com/binkynet/MotorWorker/pkg/environment"
	"github.com/binkynet/MotorWorker/pkg/logging"
	"github.com/binkynet/MotorWorker/pkg/server"
	"github.com/binkynet/MotorWorker/pkg/service/bridge"
	"github.com/binkynet/MotorWorker/pkg/service/mqtt"
	"github.com/binkynet/MotorWorker/pkg/service/worker"
	"github.com/binkynet/MotorWorker/pkg/ui"
)

const (
	projectName     = "BinkyNet Motor Worker"
	defaultHTTPPort = 7129
	defaultSSHPort  = 7122
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var levelFlag string
	var bridgeType string
	var configPath string
	var serverHost string
	var httpPort int
	var sshPort int
	var mqttBroker string
	var mqttTopicPrefix string
	var mqttLogTopic string
	var closeTimeout time.Duration

	pflag.StringVarP(&levelFlag, "level", "l", "debug", "Set log level")
	pflag.StringVarP(&bridgeType, "bridge", "b", "auto", "Type of bridge to use (auto|rpi|opz|virtual)")
	pflag.StringVarP(&configPath, "config", "c", "motorworker.yaml", "Path of the configuration file")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP & SSH server will listen on")
	pflag.IntVar(&httpPort, "http-port", defaultHTTPPort, "Port the HTTP server will listen on")
	pflag.IntVar(&sshPort, "ssh-port", defaultSSHPort, "Port the SSH server will listen on (0 to disable)")
	pflag.StringVar(&mqttBroker, "mqtt-broker", "", "Address (host:port) of the MQTT broker (empty to disable MQTT)")
	pflag.StringVar(&mqttTopicPrefix, "mqtt-topic-prefix", "", "Prefix of all MQTT topics (default /binky/<module-id>/)")
	pflag.StringVar(&mqttLogTopic, "mqtt-log", "", "MQTT topic to send logs to (empty to disable)")
	pflag.DurationVar(&closeTimeout, "close-timeout", time.Second*5, "Maximum time to bring all motors to a safe state on shutdown")
	pflag.Parse()

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	mqttWriter := logging.NewMQTTWriter(ctx)
	logOutput := logging.NewMultiWriter(zerolog.ConsoleWriter{Out: os.Stderr})
	logger := zerolog.New(logOutput).With().Timestamp().Logger()
	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	}
	logger = logger.Level(level)

	// Load configuration
	conf, err := model.LoadConfiguration(configPath)
	if err != nil {
		Exitf("Failed to load configuration from '%s': %v\n", configPath, err)
	}
	if conf.ModuleID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			Exitf("No module-id configured and hostname unavailable: %v\n", err)
		}
		conf.ModuleID = hostname
	}
	logger = logger.With().Str("module-id", conf.ModuleID).Logger()

	// Create bridge
	bType := bridge.Type(bridgeType)
	if bridgeType == "auto" {
		bType = environment.AutoDetectBridgeType(logger)
		logger.Info().Str("bridge", string(bType)).Msg("Detected bridge type")
	}
	br, err := bridge.New(bType)
	if err != nil {
		Exitf("Failed to initialize %s bridge: %v\n", bType, err)
	}

	// Create MQTT service
	var mqttService mqtt.Service
	if mqttBroker != "" {
		mqttService, err = mqtt.NewService(mqtt.Config{
			BrokerAddress: mqttBroker,
			ClientID:      "motorworker-" + conf.ModuleID,
		}, logger)
		if err != nil {
			Exitf("Failed to initialize MQTT service: %v\n", err)
		}
		if mqttLogTopic != "" {
			mqttWriter.SetDestination(mqttLogTopic, mqttService)
			mqttWriter.Enable(true)
			logOutput.Add(mqttWriter)
		}
	}

	// Create worker
	w, err := worker.NewService(worker.Config{
		LocalConfiguration: conf,
		MQTTTopicPrefix:    mqttTopicPrefix,
		CloseTimeout:       closeTimeout,
	}, worker.Dependencies{
		Log:    logger.With().Str("component", "worker").Logger(),
		Bridge: br,
		MQTT:   mqttService,
	})
	if err != nil {
		Exitf("Failed to initialize worker: %v\n", err)
	}

	// Create servers
	srv, err := server.New(server.Config{
		Host:     serverHost,
		HTTPPort: httpPort,
		SSHPort:  sshPort,
	}, logger, ui.New(conf.ModuleID, w, logger), w)
	if err != nil {
		Exitf("Failed to initialize server: %v\n", err)
	}

	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	if mqttService != nil {
		g.Go(func() error { return mqttService.Run(gctx) })
	}
	err = g.Wait()
	if cerr := br.Close(); cerr != nil {
		logger.Warn().Err(cerr).Msg("Failed to close bridge")
	}
	if err != nil && ctx.Err() == nil {
		Exitf("Service run failed: %v\n", err)
	}
	logger.Info().Msg("Stopped")
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
