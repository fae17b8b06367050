package controller

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/jtc/control"
	"go.viam.com/jtc/hardware"
	"go.viam.com/jtc/ros"
	"go.viam.com/jtc/trajectory"
)

func TestConfigDefaults(t *testing.T) {
	conf := &Config{Joints: []string{"a", "b"}}
	p, err := conf.params("controller")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.joints, test.ShouldResemble, []string{"a", "b"})
	test.That(t, p.kinds, test.ShouldResemble, []hardware.InterfaceKind{hardware.Position, hardware.Position})
	test.That(t, p.method, test.ShouldEqual, trajectory.MethodAuto)
	test.That(t, p.publishPeriod, test.ShouldEqual, DefaultStatePublishPeriod)
	test.That(t, p.updatePeriod, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, p.gains, test.ShouldResemble, []*control.Gains{nil, nil})
	test.That(t, p.home, test.ShouldBeNil)
	test.That(t, conf.UpdateRate(), test.ShouldEqual, DefaultUpdateRateHz)
}

func TestConfigFields(t *testing.T) {
	conf := &Config{
		Joints:             []string{"a", "b"},
		CommandModes:       []string{"velocity", "acceleration"},
		StatePublishPeriod: "50ms",
		Interpolation:      "quintic",
		UpdateRateHz:       500,
		Gains:              map[string]control.Gains{"a": {P: 2}},
		HomeTrajectory: &ros.JointTrajectory{
			Header:     ros.Header{Stamp: ros.Time{Secs: 100}},
			JointNames: []string{"b", "a"},
			Points:     []ros.JointTrajectoryPoint{{Positions: []float64{1, 2}, TimeFromStart: ros.Duration{Secs: 1}}},
		},
	}
	test.That(t, conf.Validate("controller"), test.ShouldBeNil)
	p, err := conf.params("controller")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.kinds, test.ShouldResemble, []hardware.InterfaceKind{hardware.Velocity, hardware.Acceleration})
	test.That(t, p.method, test.ShouldEqual, trajectory.MethodQuintic)
	test.That(t, p.publishPeriod, test.ShouldEqual, 50*time.Millisecond)
	test.That(t, p.updatePeriod, test.ShouldEqual, 2*time.Millisecond)
	test.That(t, *p.gains[0], test.ShouldResemble, control.Gains{P: 2})
	test.That(t, p.gains[1], test.ShouldBeNil)
	test.That(t, p.home.Header.Stamp.IsZero(), test.ShouldBeTrue)
	// The configured message keeps its stamp.
	test.That(t, conf.HomeTrajectory.Header.Stamp.Secs, test.ShouldEqual, 100)
}

func TestConfigValidate(t *testing.T) {
	home := func(points ...ros.JointTrajectoryPoint) *ros.JointTrajectory {
		return &ros.JointTrajectory{JointNames: []string{"a"}, Points: points}
	}
	for _, tc := range []struct {
		name   string
		conf   Config
		errMsg string
	}{
		{"no joints", Config{}, `"joints" is required`},
		{"empty joint", Config{Joints: []string{"a", ""}}, "joint names cannot be empty"},
		{"duplicate joints", Config{Joints: []string{"a", "a"}}, "duplicate joints [a]"},
		{"mode count", Config{Joints: []string{"a", "b"}, CommandModes: []string{"position"}}, "got 1 command modes for 2 joints"},
		{"unknown mode", Config{Joints: []string{"a"}, CommandModes: []string{"torque"}}, `unknown interface kind "torque"`},
		{"effort mode", Config{Joints: []string{"a"}, CommandModes: []string{"effort"}}, "effort commands are not supported"},
		{"bad period", Config{Joints: []string{"a"}, StatePublishPeriod: "soon"}, "state_publish_period"},
		{"zero period", Config{Joints: []string{"a"}, StatePublishPeriod: "0s"}, "state_publish_period must be positive"},
		{"interpolation", Config{Joints: []string{"a"}, Interpolation: "linear"}, `unknown interpolation method "linear"`},
		{"rate", Config{Joints: []string{"a"}, UpdateRateHz: 5000}, "update_rate_hz must be between 0 and 1000"},
		{"gains joint", Config{Joints: []string{"a"}, Gains: map[string]control.Gains{"z": {P: 1}}}, `gains for unknown joint "z"`},
		{"gains mode", Config{Joints: []string{"a"}, Gains: map[string]control.Gains{"a": {P: 1}}}, "need velocity commands"},
		{
			"gains value",
			Config{Joints: []string{"a"}, CommandModes: []string{"velocity"}, Gains: map[string]control.Gains{"a": {P: -1}}},
			"gain p must be finite",
		},
		{
			"home timing",
			Config{Joints: []string{"a"}, HomeTrajectory: home(
				ros.JointTrajectoryPoint{Positions: []float64{0}, TimeFromStart: ros.Duration{Secs: 2}},
				ros.JointTrajectoryPoint{Positions: []float64{1}, TimeFromStart: ros.Duration{Secs: 1}},
			)},
			"home_trajectory",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.conf.Validate("controller")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}
}
