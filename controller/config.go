package controller

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/jtc/control"
	"go.viam.com/jtc/hardware"
	"go.viam.com/jtc/ros"
	"go.viam.com/jtc/trajectory"
)

// Defaults applied when a Config leaves a field unset.
const (
	DefaultStatePublishPeriod = 20 * time.Millisecond
	DefaultUpdateRateHz       = 100.0
	MaxUpdateRateHz           = 1000.0
)

// Config is the controller configuration.
type Config struct {
	// Joints defines the joint order used for every command write and state message.
	Joints []string `json:"joints"`

	// CommandModes is the command interface kind per joint: position, velocity or acceleration.
	// Empty means position for every joint.
	CommandModes []string `json:"command_modes,omitempty"`

	// StatePublishPeriod is a duration string such as "20ms".
	StatePublishPeriod string `json:"state_publish_period,omitempty"`

	// Interpolation is auto, cubic or quintic.
	Interpolation string `json:"interpolation,omitempty"`

	// HomeTrajectory is executed on activation when no trajectory has been received. Its header
	// stamp is ignored; it starts at activation.
	HomeTrajectory *ros.JointTrajectory `json:"home_trajectory,omitempty"`

	UpdateRateHz float64 `json:"update_rate_hz,omitempty"`

	// Gains adds position feedback to velocity commanded joints:
	// command = desired velocity + PID(desired position - measured position).
	Gains map[string]control.Gains `json:"gains,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	_, err := conf.params(path)
	return err
}

// UpdateRate returns the control tick frequency in Hz.
func (conf *Config) UpdateRate() float64 {
	if conf.UpdateRateHz <= 0 {
		return DefaultUpdateRateHz
	}
	return conf.UpdateRateHz
}

// params is a validated Config in the form the controller uses.
type params struct {
	joints        []string
	kinds         []hardware.InterfaceKind
	method        trajectory.Method
	publishPeriod time.Duration
	updatePeriod  time.Duration
	gains         []*control.Gains
	home          *ros.JointTrajectory
}

func (conf *Config) params(path string) (*params, error) {
	if len(conf.Joints) == 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "joints")
	}
	if lo.Contains(conf.Joints, "") {
		return nil, utils.NewConfigValidationError(path, errors.New("joint names cannot be empty"))
	}
	if dups := lo.FindDuplicates(conf.Joints); len(dups) > 0 {
		return nil, utils.NewConfigValidationError(path, errors.Errorf("duplicate joints %v", dups))
	}

	p := &params{
		joints:        append([]string(nil), conf.Joints...),
		kinds:         make([]hardware.InterfaceKind, len(conf.Joints)),
		publishPeriod: DefaultStatePublishPeriod,
	}

	if len(conf.CommandModes) != 0 && len(conf.CommandModes) != len(conf.Joints) {
		return nil, utils.NewConfigValidationError(path, errors.Errorf(
			"got %d command modes for %d joints", len(conf.CommandModes), len(conf.Joints)))
	}
	for i := range p.kinds {
		mode := ""
		if len(conf.CommandModes) != 0 {
			mode = conf.CommandModes[i]
		}
		kind, err := hardware.InterfaceKindFromString(mode)
		if err != nil {
			return nil, utils.NewConfigValidationError(path, err)
		}
		if kind == hardware.Effort {
			return nil, utils.NewConfigValidationError(path, errors.Errorf("joint %q: effort commands are not supported", conf.Joints[i]))
		}
		p.kinds[i] = kind
	}

	if conf.StatePublishPeriod != "" {
		period, err := time.ParseDuration(conf.StatePublishPeriod)
		if err != nil {
			return nil, utils.NewConfigValidationError(path, errors.Wrap(err, "state_publish_period"))
		}
		if period <= 0 {
			return nil, utils.NewConfigValidationError(path, errors.New("state_publish_period must be positive"))
		}
		p.publishPeriod = period
	}

	method, err := trajectory.MethodFromString(conf.Interpolation)
	if err != nil {
		return nil, utils.NewConfigValidationError(path, err)
	}
	p.method = method

	if math.IsNaN(conf.UpdateRateHz) || conf.UpdateRateHz < 0 || conf.UpdateRateHz > MaxUpdateRateHz {
		return nil, utils.NewConfigValidationError(path, errors.Errorf(
			"update_rate_hz must be between 0 and %v, got %v", MaxUpdateRateHz, conf.UpdateRateHz))
	}
	p.updatePeriod = time.Duration(float64(time.Second) / conf.UpdateRate())

	p.gains = make([]*control.Gains, len(p.joints))
	for joint, gains := range conf.Gains {
		i := lo.IndexOf(p.joints, joint)
		if i < 0 {
			return nil, utils.NewConfigValidationError(path, errors.Errorf("gains for unknown joint %q", joint))
		}
		if p.kinds[i] != hardware.Velocity {
			return nil, utils.NewConfigValidationError(path, errors.Errorf(
				"gains for joint %q need velocity commands, not %s", joint, p.kinds[i]))
		}
		if err := gains.Validate(); err != nil {
			return nil, utils.NewConfigValidationError(path, errors.Wrapf(err, "joint %q", joint))
		}
		p.gains[i] = &gains
	}

	if conf.HomeTrajectory != nil {
		if _, err := p.toTrajectory(conf.HomeTrajectory, time.Time{}, "home"); err != nil {
			return nil, utils.NewConfigValidationError(path, errors.Wrap(err, "home_trajectory"))
		}
		home := *conf.HomeTrajectory
		home.Header.Stamp = ros.Time{}
		p.home = &home
	}
	return p, nil
}
