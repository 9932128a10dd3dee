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
	"fmt"

	"github.com/pkg/errors"
)

var (
	// InvalidCommandError is returned for commands that cannot be parsed.
	InvalidCommandError = errors.New("invalid command")
	// ErrClosed is returned when driving a closed driver.
	ErrClosed = errors.New("motor driver closed")
)

// ErrorKind identifies why a drive operation failed.
type ErrorKind uint8

const (
	// KindInvalidSpeed indicates a speed above 100 on Forward/Backward.
	KindInvalidSpeed ErrorKind = iota + 1
	// KindPinA indicates a hardware failure writing pin A.
	KindPinA
	// KindPinB indicates a hardware failure writing pin B.
	KindPinB
	// KindPWM indicates a hardware failure setting the duty cycle.
	KindPWM
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidSpeed:
		return "invalid-speed"
	case KindPinA:
		return "pin-a"
	case KindPinB:
		return "pin-b"
	case KindPWM:
		return "pwm"
	default:
		return "unknown"
	}
}

// DriveError is returned by all failing drive operations.
type DriveError struct {
	Kind ErrorKind
	// Command that was being applied.
	Command DriveCommand
	// Err is the underlying hardware error (nil for KindInvalidSpeed).
	Err error
	// RevertErr holds the failure of a best-effort pin restore, if any.
	RevertErr error
}

// Error implements error.
func (e *DriveError) Error() string {
	var msg string
	switch e.Kind {
	case KindInvalidSpeed:
		msg = fmt.Sprintf("invalid speed %d in '%s', must be 0..%d", e.Command.Speed, e.Command, MaxSpeed)
	case KindPinA:
		msg = fmt.Sprintf("failed to set pin A for '%s': %v", e.Command, e.Err)
	case KindPinB:
		msg = fmt.Sprintf("failed to set pin B for '%s': %v", e.Command, e.Err)
	case KindPWM:
		msg = fmt.Sprintf("failed to set duty for '%s': %v", e.Command, e.Err)
	default:
		msg = fmt.Sprintf("drive '%s' failed: %v", e.Command, e.Err)
	}
	if e.RevertErr != nil {
		msg += fmt.Sprintf(" (revert failed: %v)", e.RevertErr)
	}
	return msg
}

// Unwrap returns the underlying hardware error.
func (e *DriveError) Unwrap() error {
	return e.Err
}

var (
	// IsInvalidSpeed returns true for commands rejected because of their speed.
	IsInvalidSpeed = isKindFunc(KindInvalidSpeed)
	// IsPinAError returns true when writing pin A failed.
	IsPinAError = isKindFunc(KindPinA)
	// IsPinBError returns true when writing pin B failed.
	IsPinBError = isKindFunc(KindPinB)
	// IsPWMError returns true when writing the duty cycle failed.
	IsPWMError = isKindFunc(KindPWM)
)

// KindOf returns the kind of the given error, or 0 when it
// is not a DriveError.
func KindOf(err error) ErrorKind {
	var de *DriveError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func isKindFunc(kind ErrorKind) func(err error) bool {
	return func(err error) bool {
		return KindOf(err) == kind
	}
}
