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

package server

import (
	"io"
	"net/http"
	"net/http/pprof"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/binkynet/MotorWorker/pkg/motor"
	"github.com/binkynet/MotorWorker/pkg/service/objects"
)

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status               string   `json:"status"`
	ConfiguredDevices    []string `json:"configured_devices"`
	UnconfiguredDevices  []string `json:"unconfigured_devices"`
	ConfiguredObjects    []string `json:"configured_objects"`
	UnconfiguredObjects  []string `json:"unconfigured_objects"`
	DetectedI2CAddresses []string `json:"detected_i2c_addresses,omitempty"`
}

// errorResponse is returned for all failed requests.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type handlers struct {
	service Service
	log     zerolog.Logger
}

// newRouter creates the HTTP router with all routes.
func newRouter(service Service, log zerolog.Logger) *echo.Echo {
	h := &handlers{
		service: service,
		log:     log.With().Str("component", "server.requests").Logger(),
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	e.GET("/health", h.health)
	v1 := e.Group("/api/v1")
	v1.GET("/motors", h.listMotors)
	v1.GET("/motors/:id", h.getMotor)
	v1.PUT("/motors/:id", h.driveMotor)
	return e
}

// health reports the configured & unconfigured devices and objects.
func (h *handlers) health(c echo.Context) error {
	devService := h.service.GetDeviceService()
	objService := h.service.GetObjectService()
	if devService == nil || objService == nil {
		return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "starting"})
	}
	resp := healthResponse{
		Status:              "ok",
		ConfiguredDevices:   devService.GetConfiguredDeviceIDs(),
		UnconfiguredDevices: devService.GetUnconfiguredDeviceIDs(),
		ConfiguredObjects:   objService.GetConfiguredObjectIDs(),
		UnconfiguredObjects: objService.GetUnconfiguredObjectIDs(),
	}
	if c.QueryParam("detect") == "true" {
		resp.DetectedI2CAddresses = devService.DetectI2CAddresses()
	}
	if len(resp.UnconfiguredDevices) > 0 || len(resp.UnconfiguredObjects) > 0 {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}

// listMotors returns the state of all motors.
func (h *handlers) listMotors(c echo.Context) error {
	objService := h.service.GetObjectService()
	if objService == nil {
		return sendError(c, http.StatusServiceUnavailable, errors.New("worker is starting"))
	}
	return c.JSON(http.StatusOK, objService.MotorStates())
}

// getMotor returns the state of a single motor.
func (h *handlers) getMotor(c echo.Context) error {
	objService := h.service.GetObjectService()
	if objService == nil {
		return sendError(c, http.StatusServiceUnavailable, errors.New("worker is starting"))
	}
	state, err := objService.MotorState(c.Param("id"))
	if err != nil {
		return sendError(c, statusOf(err), err)
	}
	return c.JSON(http.StatusOK, state)
}

// driveMotor applies the command in the request body to a motor.
func (h *handlers) driveMotor(c echo.Context) error {
	objService := h.service.GetObjectService()
	if objService == nil {
		return sendError(c, http.StatusServiceUnavailable, errors.New("worker is starting"))
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 4096))
	if err != nil {
		return sendError(c, http.StatusBadRequest, err)
	}
	cmd, err := objects.ParseCommandPayload(body)
	if err != nil {
		return sendError(c, http.StatusBadRequest, err)
	}
	id := c.Param("id")
	state, err := objService.Drive(c.Request().Context(), id, cmd)
	if err != nil {
		h.log.Debug().Err(err).Str("id", id).Str("command", cmd.String()).Msg("Drive request failed")
		return sendError(c, statusOf(err), err)
	}
	return c.JSON(http.StatusOK, state)
}

// statusOf returns the HTTP status for the given error.
func statusOf(err error) int {
	switch {
	case objects.IsNotFound(err):
		return http.StatusNotFound
	case objects.IsNotConfigured(err):
		return http.StatusServiceUnavailable
	case errors.Cause(err) == motor.ErrClosed:
		return http.StatusConflict
	case errors.Cause(err) == motor.InvalidCommandError, motor.IsInvalidSpeed(err):
		return http.StatusBadRequest
	case motor.KindOf(err) != 0:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// sendError sends the given error as JSON.
func sendError(c echo.Context, status int, err error) error {
	resp := errorResponse{Error: err.Error()}
	if kind := motor.KindOf(err); kind != 0 {
		resp.Kind = kind.String()
	}
	return c.JSON(status, resp)
}
