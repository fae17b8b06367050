// Package trajectory holds time-parameterized joint trajectories and samples them at arbitrary
// times. Trajectories are immutable once built so that a real-time reader can keep sampling one
// while a newer trajectory is being constructed elsewhere.
package trajectory

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidTrajectory is returned for malformed waypoint data. Errors returned by New wrap it
// with details about the offending waypoint.
var ErrInvalidTrajectory = errors.New("invalid trajectory")

// Waypoint is a single time-stamped target state. Velocities and Accelerations may be nil, in which
// case they are treated as zero.
type Waypoint struct {
	TimeFromStart time.Duration
	Positions     []float64
	Velocities    []float64
	Accelerations []float64
}

// HasVelocities returns whether the waypoint specifies velocities.
func (wp *Waypoint) HasVelocities() bool {
	return len(wp.Velocities) > 0
}

// HasAccelerations returns whether the waypoint specifies accelerations.
func (wp *Waypoint) HasAccelerations() bool {
	return len(wp.Accelerations) > 0
}

func (wp *Waypoint) clone() Waypoint {
	out := Waypoint{TimeFromStart: wp.TimeFromStart, Positions: append([]float64(nil), wp.Positions...)}
	if wp.HasVelocities() {
		out.Velocities = append([]float64(nil), wp.Velocities...)
	}
	if wp.HasAccelerations() {
		out.Accelerations = append([]float64(nil), wp.Accelerations...)
	}
	return out
}

// Trajectory is an immutable, strictly time-ordered sequence of waypoints anchored at a start
// time. A trajectory without waypoints commands no motion and is used to hold position.
type Trajectory struct {
	id         string
	jointNames []string
	startTime  time.Time
	points     []Waypoint
}

// Option configures optional trajectory properties.
type Option func(*Trajectory)

// WithID tags the trajectory with an identifier used in logs and state reports.
func WithID(id string) Option {
	return func(t *Trajectory) {
		t.id = id
	}
}

// New validates the waypoints and returns a trajectory owning copies of them.
func New(jointNames []string, startTime time.Time, points []Waypoint, opts ...Option) (*Trajectory, error) {
	if len(jointNames) == 0 && len(points) > 0 {
		return nil, errors.Wrap(ErrInvalidTrajectory, "waypoints given without any joint names")
	}
	if dups := lo.FindDuplicates(jointNames); len(dups) > 0 {
		return nil, errors.Wrapf(ErrInvalidTrajectory, "duplicate joint names %v", dups)
	}

	dof := len(jointNames)
	traj := &Trajectory{
		jointNames: append([]string(nil), jointNames...),
		startTime:  startTime,
		points:     make([]Waypoint, 0, len(points)),
	}
	for i := range points {
		wp := &points[i]
		if err := validateWaypoint(i, wp, dof); err != nil {
			return nil, err
		}
		if i > 0 && wp.TimeFromStart <= points[i-1].TimeFromStart {
			return nil, errors.Wrapf(ErrInvalidTrajectory,
				"waypoint %d time %v is not after waypoint %d time %v",
				i, wp.TimeFromStart, i-1, points[i-1].TimeFromStart)
		}
		traj.points = append(traj.points, wp.clone())
	}
	for _, opt := range opts {
		opt(traj)
	}
	return traj, nil
}

// NewEmpty returns a trajectory with no waypoints. Sampling it never commands motion.
func NewEmpty(jointNames []string, startTime time.Time, opts ...Option) *Trajectory {
	traj := &Trajectory{jointNames: append([]string(nil), jointNames...), startTime: startTime}
	for _, opt := range opts {
		opt(traj)
	}
	return traj
}

func validateWaypoint(idx int, wp *Waypoint, dof int) error {
	if wp.TimeFromStart < 0 {
		return errors.Wrapf(ErrInvalidTrajectory, "waypoint %d has negative time %v", idx, wp.TimeFromStart)
	}
	if len(wp.Positions) != dof {
		return errors.Wrapf(ErrInvalidTrajectory, "waypoint %d has %d positions but there are %d joints",
			idx, len(wp.Positions), dof)
	}
	if wp.HasVelocities() && len(wp.Velocities) != dof {
		return errors.Wrapf(ErrInvalidTrajectory, "waypoint %d has %d velocities but there are %d joints",
			idx, len(wp.Velocities), dof)
	}
	if wp.HasAccelerations() && len(wp.Accelerations) != dof {
		return errors.Wrapf(ErrInvalidTrajectory, "waypoint %d has %d accelerations but there are %d joints",
			idx, len(wp.Accelerations), dof)
	}
	for _, values := range [][]float64{wp.Positions, wp.Velocities, wp.Accelerations} {
		if !allFinite(values) {
			return errors.Wrapf(ErrInvalidTrajectory, "waypoint %d contains a non-finite value", idx)
		}
	}
	return nil
}

func allFinite(values []float64) bool {
	if len(values) == 0 {
		return true
	}
	if floats.HasNaN(values) {
		return false
	}
	return !math.IsInf(floats.Max(values), 1) && !math.IsInf(floats.Min(values), -1)
}

// ID returns the identifier given with WithID, if any.
func (t *Trajectory) ID() string {
	return t.id
}

// IsEmpty returns true if the trajectory carries no waypoints.
func (t *Trajectory) IsEmpty() bool {
	return len(t.points) == 0
}

// StartTime is the absolute time at which waypoint offsets are zero.
func (t *Trajectory) StartTime() time.Time {
	return t.startTime
}

// EndTime is the start time plus the last waypoint's offset, or the start time if empty.
func (t *Trajectory) EndTime() time.Time {
	if t.IsEmpty() {
		return t.startTime
	}
	return t.startTime.Add(t.points[len(t.points)-1].TimeFromStart)
}

// Len returns the number of waypoints.
func (t *Trajectory) Len() int {
	return len(t.points)
}

// DoF returns the number of joints the trajectory covers.
func (t *Trajectory) DoF() int {
	return len(t.jointNames)
}

// JointNames returns a copy of the joint names in command order.
func (t *Trajectory) JointNames() []string {
	return append([]string(nil), t.jointNames...)
}

// Waypoint returns a copy of the i-th waypoint.
func (t *Trajectory) Waypoint(i int) Waypoint {
	return t.points[i].clone()
}
