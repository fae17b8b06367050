// Package hardware defines the per-joint handles a controller reads measured state from and writes
// commands to.
package hardware

import (
	"fmt"

	"github.com/pkg/errors"
)

// InterfaceKind names a per-joint state or command interface.
type InterfaceKind string

// The interface kinds a joint may expose.
const (
	Position     InterfaceKind = "position"
	Velocity     InterfaceKind = "velocity"
	Acceleration InterfaceKind = "acceleration"
	Effort       InterfaceKind = "effort"
)

// InterfaceKindFromString parses a command mode identifier. An empty string means Position.
func InterfaceKindFromString(s string) (InterfaceKind, error) {
	switch InterfaceKind(s) {
	case "":
		return Position, nil
	case Position, Velocity, Acceleration, Effort:
		return InterfaceKind(s), nil
	}
	return "", errors.Errorf("unknown interface kind %q", s)
}

// OperationMode is the drive mode of a joint.
type OperationMode int

const (
	// ModeInactive means the joint ignores commands.
	ModeInactive OperationMode = iota
	// ModeActive means the joint follows commands.
	ModeActive
)

func (m OperationMode) String() string {
	if m == ModeActive {
		return "active"
	}
	return "inactive"
}

// JointStateHandle reads the measured state of one joint. Reads must be bounded-time and must not
// block on a lock held by a non-real-time goroutine.
type JointStateHandle interface {
	Joint() string
	Position() float64
	Velocity() float64
}

// JointCommandHandle writes one joint's command of a fixed kind. The same bounds as
// JointStateHandle apply to Set.
type JointCommandHandle interface {
	Joint() string
	Kind() InterfaceKind
	Set(value float64)
}

// OperationModeHandle switches a joint between inactive and active.
type OperationModeHandle interface {
	Joint() string
	SetMode(mode OperationMode) error
}

// RobotHardware hands out joint handles. Handles are claimed when a controller activates and
// released when it deactivates.
type RobotHardware interface {
	// JointState returns the state handle for joint or a StaleHandleError.
	JointState(joint string) (JointStateHandle, error)
	// JointCommand returns the command handle of the given kind for joint or a StaleHandleError.
	JointCommand(joint string, kind InterfaceKind) (JointCommandHandle, error)
	// OperationMode returns the mode handle for joint. Joints without one return false.
	OperationMode(joint string) (OperationModeHandle, bool)
}

// StaleHandleError is returned when a required handle is missing or no longer registered.
type StaleHandleError struct {
	Joint string
	Kind  string
}

// NewStaleHandleError returns an error for a missing handle of the given kind on joint.
func NewStaleHandleError(joint, kind string) error {
	return &StaleHandleError{Joint: joint, Kind: kind}
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("%s handle for joint %q is missing or stale", e.Kind, e.Joint)
}

// IsStaleHandleError reports whether err wraps a StaleHandleError.
func IsStaleHandleError(err error) bool {
	var target *StaleHandleError
	return errors.As(err, &target)
}
