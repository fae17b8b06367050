package controller

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/jtc/control"
	"go.viam.com/jtc/hardware"
	"go.viam.com/jtc/realtime"
	"go.viam.com/jtc/ros"
	"go.viam.com/jtc/trajectory"
)

// tickState is built on activation and owned by the tick from then on.
type tickState struct {
	sampler  trajectory.Sampler
	cursor   trajectory.Cursor
	kinds    []hardware.InterfaceKind
	pids     []control.PID
	usePID   []bool
	period   time.Duration
	lastTick time.Time
	states   []hardware.JointStateHandle
	commands []hardware.JointCommandHandle

	desired trajectory.JointState
	actual  trajectory.JointState

	holding       bool
	holdFor       *trajectory.Trajectory
	holdPositions []float64

	publisher     *realtime.Publisher[ros.JointTrajectoryControllerState]
	publishPeriod time.Duration
	lastPublish   time.Time
}

// Update runs one control tick at now: read the joints, sample the active trajectory, write one
// command per joint in configured order and maybe publish state. It never blocks and does not
// allocate. Before activation it does nothing.
//
// While halted, or before the active trajectory starts, every joint holds the position measured
// when the hold began with zero velocity and acceleration. Velocity joints are commanded exactly
// zero while holding and their feedback terms are reset, so no integral or derivative history
// carries into the hold or out of it.
//
// A non-finite measured position or velocity is a hardware fault; nothing is written that tick.
func (c *Controller) Update(now time.Time) error {
	ts := c.tick.Load()
	if ts == nil {
		return nil
	}

	for i, state := range ts.states {
		ts.actual.Positions[i] = state.Position()
		ts.actual.Velocities[i] = state.Velocity()
		if !finite(ts.actual.Positions[i]) {
			return errors.Wrapf(ErrHardwareFault, "joint %q reported position %v", state.Joint(), ts.actual.Positions[i])
		}
		if !finite(ts.actual.Velocities[i]) {
			return errors.Wrapf(ErrHardwareFault, "joint %q reported velocity %v", state.Joint(), ts.actual.Velocities[i])
		}
	}

	traj := c.active.ReadFromRT()
	status := trajectory.StatusBeforeStart
	if !c.halted.Load() {
		ts.cursor, status = ts.sampler.Sample(traj, now, ts.cursor, &ts.desired)
	}
	if status == trajectory.StatusBeforeStart {
		if !ts.holding || ts.holdFor != traj {
			copy(ts.holdPositions, ts.actual.Positions)
			ts.holding = true
			ts.holdFor = traj
		}
		copy(ts.desired.Positions, ts.holdPositions)
		clear(ts.desired.Velocities)
		clear(ts.desired.Accelerations)
	} else {
		ts.holding = false
		ts.holdFor = nil
	}

	dt := ts.period
	if !ts.lastTick.IsZero() {
		dt = now.Sub(ts.lastTick)
	}
	ts.lastTick = now

	for i, command := range ts.commands {
		switch ts.kinds[i] {
		case hardware.Velocity:
			vel := ts.desired.Velocities[i]
			switch {
			case !ts.usePID[i]:
			case ts.holding:
				ts.pids[i].Reset()
			default:
				vel += ts.pids[i].Next(ts.desired.Positions[i]-ts.actual.Positions[i], dt)
			}
			command.Set(vel)
		case hardware.Acceleration:
			command.Set(ts.desired.Accelerations[i])
		default:
			command.Set(ts.desired.Positions[i])
		}
	}

	if ts.publisher != nil && now.Sub(ts.lastPublish) >= ts.publishPeriod {
		ts.lastPublish = now
		if msg, ok := ts.publisher.TryLock(); ok {
			fillState(msg, ts, traj, status, c.halted.Load(), now)
			ts.publisher.UnlockAndPublish()
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func fillState(
	msg *ros.JointTrajectoryControllerState,
	ts *tickState,
	traj *trajectory.Trajectory,
	status trajectory.Status,
	halted bool,
	now time.Time,
) {
	msg.Header.Seq++
	msg.Header.Stamp = ros.NewTime(now)
	copy(msg.Desired.Positions, ts.desired.Positions)
	copy(msg.Desired.Velocities, ts.desired.Velocities)
	copy(msg.Desired.Accelerations, ts.desired.Accelerations)
	copy(msg.Actual.Positions, ts.actual.Positions)
	copy(msg.Actual.Velocities, ts.actual.Velocities)
	for i := range msg.Error.Positions {
		msg.Error.Positions[i] = ts.desired.Positions[i] - ts.actual.Positions[i]
		msg.Error.Velocities[i] = ts.desired.Velocities[i] - ts.actual.Velocities[i]
	}
	msg.TrajectoryID = ""
	if traj != nil {
		msg.TrajectoryID = traj.ID()
	}
	msg.Status = status.String()
	msg.Halted = halted
}
