package trajectory

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Status describes where a query time falls relative to a trajectory.
type Status int

const (
	// StatusBeforeStart means the trajectory is empty or the query precedes its start time. No
	// command is produced and the caller should hold its current state.
	StatusBeforeStart Status = iota
	// StatusInRange means the command was interpolated between two waypoints.
	StatusInRange
	// StatusAfterEnd means the query is at or past the last waypoint, whose state is returned as is.
	StatusAfterEnd
)

func (s Status) String() string {
	switch s {
	case StatusBeforeStart:
		return "before_start"
	case StatusInRange:
		return "in_range"
	case StatusAfterEnd:
		return "after_end"
	}
	return "unknown"
}

// Method selects the blending polynomial used between two waypoints.
type Method int

const (
	// MethodAuto uses quintic blending when both waypoints specify accelerations and cubic
	// blending otherwise.
	MethodAuto Method = iota
	// MethodCubic matches position and velocity at both ends of a segment.
	MethodCubic
	// MethodQuintic matches position, velocity and acceleration at both ends of a segment.
	MethodQuintic
)

func (m Method) String() string {
	switch m {
	case MethodAuto:
		return "auto"
	case MethodCubic:
		return "cubic"
	case MethodQuintic:
		return "quintic"
	}
	return "unknown"
}

// MethodFromString parses "auto", "cubic" or "quintic". An empty string means auto.
func MethodFromString(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return MethodAuto, nil
	case "cubic":
		return MethodCubic, nil
	case "quintic":
		return MethodQuintic, nil
	}
	return MethodAuto, errors.Errorf("unknown interpolation method %q", s)
}

// JointState is a per-joint position, velocity and acceleration, ordered like the trajectory's
// joint names.
type JointState struct {
	Positions     []float64
	Velocities    []float64
	Accelerations []float64
}

// NewJointState allocates a zeroed state for dof joints. Reuse it across samples to keep sampling
// allocation free.
func NewJointState(dof int) JointState {
	return JointState{
		Positions:     make([]float64, dof),
		Velocities:    make([]float64, dof),
		Accelerations: make([]float64, dof),
	}
}

// DoF returns the number of joints in the state.
func (s *JointState) DoF() int {
	return len(s.Positions)
}

// CopyFrom overwrites s with other. Both states must have the same number of joints.
func (s *JointState) CopyFrom(other *JointState) {
	copy(s.Positions, other.Positions)
	copy(s.Velocities, other.Velocities)
	copy(s.Accelerations, other.Accelerations)
}

// resize only allocates when the backing arrays are too small.
func (s *JointState) resize(dof int) {
	if cap(s.Positions) < dof || cap(s.Velocities) < dof || cap(s.Accelerations) < dof {
		*s = NewJointState(dof)
		return
	}
	s.Positions = s.Positions[:dof]
	s.Velocities = s.Velocities[:dof]
	s.Accelerations = s.Accelerations[:dof]
}

// Cursor remembers the segment used by the last sample of a trajectory. The zero value is a cold
// cursor; a cursor from a different trajectory is ignored.
type Cursor struct {
	traj    *Trajectory
	segment int
}

// Segment returns the index of the waypoint starting the last sampled segment, or -1 if the cursor
// is cold.
func (c Cursor) Segment() int {
	if c.traj == nil {
		return -1
	}
	return c.segment
}

// Sampler interpolates trajectories. The zero value uses MethodAuto.
type Sampler struct {
	Method Method
}

// maxForwardSteps bounds the linear scan from a warm cursor before falling back to bisection.
const maxForwardSteps = 4

// Sample writes the state of traj at time at into out and returns the updated cursor. It does not
// allocate as long as out already holds traj.DoF() joints, and runs in O(log n) worst case time.
func (s Sampler) Sample(traj *Trajectory, at time.Time, cursor Cursor, out *JointState) (Cursor, Status) {
	if traj == nil || traj.IsEmpty() || at.Before(traj.startTime) {
		return Cursor{}, StatusBeforeStart
	}
	out.resize(traj.DoF())

	points := traj.points
	last := len(points) - 1
	elapsed := at.Sub(traj.startTime)
	if elapsed >= points[last].TimeFromStart {
		writeWaypoint(&points[last], out)
		return Cursor{traj: traj, segment: last}, StatusAfterEnd
	}
	// Before the first waypoint the trajectory holds it rather than extrapolating backwards.
	if elapsed <= points[0].TimeFromStart {
		writeWaypoint(&points[0], out)
		return Cursor{traj: traj, segment: 0}, StatusInRange
	}

	seg := locateSegment(points, elapsed, cursor, traj)
	from, to := &points[seg], &points[seg+1]
	if elapsed == from.TimeFromStart {
		writeWaypoint(from, out)
	} else {
		interpolate(s.Method, from, to, elapsed-from.TimeFromStart, out)
	}
	return Cursor{traj: traj, segment: seg}, StatusInRange
}

// locateSegment returns i such that points[i].TimeFromStart <= elapsed < points[i+1].TimeFromStart.
// The caller guarantees points[0] <= elapsed < points[last].
func locateSegment(points []Waypoint, elapsed time.Duration, cursor Cursor, traj *Trajectory) int {
	last := len(points) - 1
	if cursor.traj != traj || cursor.segment >= last || points[cursor.segment].TimeFromStart > elapsed {
		// Cold or stale cursor, or time moved backwards.
		return bisect(points, elapsed, 0, last)
	}
	seg := cursor.segment
	for steps := 0; points[seg+1].TimeFromStart <= elapsed; steps++ {
		if steps == maxForwardSteps {
			return bisect(points, elapsed, seg, last)
		}
		seg++
	}
	return seg
}

// bisect requires points[low] <= elapsed < points[high].
func bisect(points []Waypoint, elapsed time.Duration, low, high int) int {
	for high-low > 1 {
		mid := int(uint(low+high) >> 1)
		if points[mid].TimeFromStart <= elapsed {
			low = mid
		} else {
			high = mid
		}
	}
	return low
}

func writeWaypoint(wp *Waypoint, out *JointState) {
	copy(out.Positions, wp.Positions)
	fillOrZero(out.Velocities, wp.Velocities)
	fillOrZero(out.Accelerations, wp.Accelerations)
}

func fillOrZero(dst, src []float64) {
	if len(src) == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	copy(dst, src)
}

func valueOrZero(values []float64, i int) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[i]
}

func interpolate(method Method, from, to *Waypoint, offset time.Duration, out *JointState) {
	segment := (to.TimeFromStart - from.TimeFromStart).Seconds()
	t := offset.Seconds()
	quintic := method == MethodQuintic ||
		(method == MethodAuto && from.HasAccelerations() && to.HasAccelerations())

	for j := range out.Positions {
		p0, p1 := from.Positions[j], to.Positions[j]
		v0, v1 := valueOrZero(from.Velocities, j), valueOrZero(to.Velocities, j)
		var coeffs [6]float64
		if quintic {
			a0, a1 := valueOrZero(from.Accelerations, j), valueOrZero(to.Accelerations, j)
			coeffs = quinticCoefficients(p0, v0, a0, p1, v1, a1, segment)
		} else {
			coeffs = cubicCoefficients(p0, v0, p1, v1, segment)
		}
		out.Positions[j], out.Velocities[j], out.Accelerations[j] = evaluate(&coeffs, t)
	}
}

// cubicCoefficients returns the coefficients, lowest order first, of the cubic matching position
// and velocity at t=0 and t=T.
func cubicCoefficients(p0, v0, p1, v1, T float64) [6]float64 {
	T2 := T * T
	return [6]float64{
		p0,
		v0,
		(3*(p1-p0) - (2*v0+v1)*T) / T2,
		(2*(p0-p1) + (v0+v1)*T) / (T2 * T),
	}
}

// quinticCoefficients returns the coefficients, lowest order first, of the quintic matching
// position, velocity and acceleration at t=0 and t=T.
func quinticCoefficients(p0, v0, a0, p1, v1, a1, T float64) [6]float64 {
	T2 := T * T
	T3 := T2 * T
	return [6]float64{
		p0,
		v0,
		a0 / 2,
		(20*(p1-p0) - (8*v1+12*v0)*T - (3*a0-a1)*T2) / (2 * T3),
		(30*(p0-p1) + (14*v1+16*v0)*T + (3*a0-2*a1)*T2) / (2 * T3 * T),
		(12*(p1-p0) - 6*(v1+v0)*T - (a0-a1)*T2) / (2 * T3 * T2),
	}
}

// evaluate returns the polynomial value and its first two derivatives at t.
func evaluate(c *[6]float64, t float64) (pos, vel, acc float64) {
	pos = c[0] + t*(c[1]+t*(c[2]+t*(c[3]+t*(c[4]+t*c[5]))))
	vel = c[1] + t*(2*c[2]+t*(3*c[3]+t*(4*c[4]+t*5*c[5])))
	acc = 2*c[2] + t*(6*c[3]+t*(12*c[4]+t*20*c[5]))
	return pos, vel, acc
}
