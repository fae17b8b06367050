package inject

import (
	"go.viam.com/jtc/hardware"
)

// JointState is an injected joint state handle.
type JointState struct {
	hardware.JointStateHandle
	name         string
	PositionFunc func() float64
	VelocityFunc func() float64
}

// NewJointState returns a new injected joint state handle.
func NewJointState(name string) *JointState {
	return &JointState{name: name}
}

// Joint returns the joint name.
func (s *JointState) Joint() string {
	return s.name
}

// Position calls the injected Position or the real version.
func (s *JointState) Position() float64 {
	if s.PositionFunc == nil {
		return s.JointStateHandle.Position()
	}
	return s.PositionFunc()
}

// Velocity calls the injected Velocity or the real version.
func (s *JointState) Velocity() float64 {
	if s.VelocityFunc == nil {
		return s.JointStateHandle.Velocity()
	}
	return s.VelocityFunc()
}

// JointCommand is an injected joint command handle.
type JointCommand struct {
	hardware.JointCommandHandle
	name    string
	kind    hardware.InterfaceKind
	SetFunc func(value float64)
}

// NewJointCommand returns a new injected joint command handle.
func NewJointCommand(name string, kind hardware.InterfaceKind) *JointCommand {
	return &JointCommand{name: name, kind: kind}
}

// Joint returns the joint name.
func (c *JointCommand) Joint() string {
	return c.name
}

// Kind returns the command kind.
func (c *JointCommand) Kind() hardware.InterfaceKind {
	return c.kind
}

// Set calls the injected Set or the real version.
func (c *JointCommand) Set(value float64) {
	if c.SetFunc == nil {
		c.JointCommandHandle.Set(value)
		return
	}
	c.SetFunc(value)
}

// OperationMode is an injected operation mode handle.
type OperationMode struct {
	hardware.OperationModeHandle
	name        string
	SetModeFunc func(mode hardware.OperationMode) error
}

// NewOperationMode returns a new injected operation mode handle.
func NewOperationMode(name string) *OperationMode {
	return &OperationMode{name: name}
}

// Joint returns the joint name.
func (m *OperationMode) Joint() string {
	return m.name
}

// SetMode calls the injected SetMode or the real version.
func (m *OperationMode) SetMode(mode hardware.OperationMode) error {
	if m.SetModeFunc == nil {
		return m.OperationModeHandle.SetMode(mode)
	}
	return m.SetModeFunc(mode)
}

// RobotHardware is an injected robot hardware.
type RobotHardware struct {
	hardware.RobotHardware
	JointStateFunc    func(joint string) (hardware.JointStateHandle, error)
	JointCommandFunc  func(joint string, kind hardware.InterfaceKind) (hardware.JointCommandHandle, error)
	OperationModeFunc func(joint string) (hardware.OperationModeHandle, bool)
}

// JointState calls the injected JointState or the real version.
func (h *RobotHardware) JointState(joint string) (hardware.JointStateHandle, error) {
	if h.JointStateFunc == nil {
		return h.RobotHardware.JointState(joint)
	}
	return h.JointStateFunc(joint)
}

// JointCommand calls the injected JointCommand or the real version.
func (h *RobotHardware) JointCommand(joint string, kind hardware.InterfaceKind) (hardware.JointCommandHandle, error) {
	if h.JointCommandFunc == nil {
		return h.RobotHardware.JointCommand(joint, kind)
	}
	return h.JointCommandFunc(joint, kind)
}

// OperationMode calls the injected OperationMode or the real version.
func (h *RobotHardware) OperationMode(joint string) (hardware.OperationModeHandle, bool) {
	if h.OperationModeFunc == nil {
		return h.RobotHardware.OperationMode(joint)
	}
	return h.OperationModeFunc(joint)
}
