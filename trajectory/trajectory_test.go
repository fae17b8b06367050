package trajectory

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

var (
	testJoints = []string{"shoulder", "elbow"}
	testStart  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func waypoint(offset time.Duration, positions ...float64) Waypoint {
	return Waypoint{TimeFromStart: offset, Positions: positions}
}

func TestNewRejectsMalformedWaypoints(t *testing.T) {
	for _, tc := range []struct {
		name    string
		joints  []string
		points  []Waypoint
		errText string
	}{
		{
			"non monotonic",
			[]string{"a"},
			[]Waypoint{waypoint(0, 0), waypoint(2*time.Second, 1), waypoint(time.Second, 2)},
			"waypoint 2 time 1s is not after waypoint 1 time 2s",
		},
		{
			"repeated time",
			[]string{"a"},
			[]Waypoint{waypoint(time.Second, 0), waypoint(time.Second, 1)},
			"is not after",
		},
		{
			"position count mismatch",
			testJoints,
			[]Waypoint{waypoint(0, 1)},
			"waypoint 0 has 1 positions but there are 2 joints",
		},
		{
			"velocity count mismatch",
			testJoints,
			[]Waypoint{{Positions: []float64{0, 0}, Velocities: []float64{1}}},
			"velocities",
		},
		{
			"acceleration count mismatch",
			testJoints,
			[]Waypoint{{Positions: []float64{0, 0}, Accelerations: []float64{1, 2, 3}}},
			"accelerations",
		},
		{
			"no joints",
			nil,
			[]Waypoint{waypoint(0)},
			"without any joint names",
		},
		{
			"duplicate joints",
			[]string{"a", "a"},
			nil,
			"duplicate joint names",
		},
		{
			"negative time",
			[]string{"a"},
			[]Waypoint{waypoint(-time.Second, 0)},
			"negative time",
		},
		{
			"nan position",
			[]string{"a"},
			[]Waypoint{waypoint(0, math.NaN())},
			"non-finite",
		},
		{
			"infinite velocity",
			[]string{"a"},
			[]Waypoint{{Positions: []float64{0}, Velocities: []float64{math.Inf(-1)}}},
			"non-finite",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			traj, err := New(tc.joints, testStart, tc.points)
			test.That(t, traj, test.ShouldBeNil)
			test.That(t, errors.Is(err, ErrInvalidTrajectory), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errText)
		})
	}
}

func TestNewOwnsWaypoints(t *testing.T) {
	points := []Waypoint{waypoint(0, 0, 0), waypoint(time.Second, 1, 2)}
	joints := append([]string(nil), testJoints...)
	traj, err := New(joints, testStart, points, WithID("abc"))
	test.That(t, err, test.ShouldBeNil)

	points[1].Positions[0] = 100
	joints[0] = "renamed"

	test.That(t, traj.Waypoint(1).Positions, test.ShouldResemble, []float64{1, 2})
	test.That(t, traj.JointNames(), test.ShouldResemble, testJoints)
	test.That(t, traj.ID(), test.ShouldEqual, "abc")
	test.That(t, traj.Len(), test.ShouldEqual, 2)
	test.That(t, traj.DoF(), test.ShouldEqual, 2)
}

func TestEndTime(t *testing.T) {
	empty := NewEmpty(testJoints, testStart)
	test.That(t, empty.IsEmpty(), test.ShouldBeTrue)
	test.That(t, empty.EndTime(), test.ShouldEqual, testStart)

	// Joint names alone are fine, a trajectory without points is the hold sentinel.
	alsoEmpty, err := New(testJoints, testStart, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, alsoEmpty.IsEmpty(), test.ShouldBeTrue)

	traj, err := New(testJoints, testStart, []Waypoint{waypoint(0, 0, 0), waypoint(1500*time.Millisecond, 1, 1)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, traj.IsEmpty(), test.ShouldBeFalse)
	test.That(t, traj.StartTime(), test.ShouldEqual, testStart)
	test.That(t, traj.EndTime(), test.ShouldEqual, testStart.Add(1500*time.Millisecond))
}
