package controller

import (
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/jtc/ros"
	"go.viam.com/jtc/trajectory"
)

// ParseTrajectory converts msg into a trajectory over its own joint order. A zero header stamp
// starts the trajectory at now.
func ParseTrajectory(msg *ros.JointTrajectory, now time.Time) (*trajectory.Trajectory, error) {
	p := params{joints: msg.JointNames}
	return p.toTrajectory(msg, now, "")
}

// toTrajectory validates msg against the configured joints and converts it, reordering every
// per-joint array into configured order. A zero header stamp starts the trajectory at now.
func (p *params) toTrajectory(msg *ros.JointTrajectory, now time.Time, id string) (*trajectory.Trajectory, error) {
	order, err := p.jointOrder(msg.JointNames)
	if err != nil {
		return nil, err
	}

	start := msg.Header.Stamp.Time()
	if start.IsZero() {
		start = now
	}
	if len(msg.Points) == 0 {
		return trajectory.NewEmpty(p.joints, start, trajectory.WithID(id)), nil
	}

	points := make([]trajectory.Waypoint, len(msg.Points))
	for i, pt := range msg.Points {
		wp := trajectory.Waypoint{TimeFromStart: pt.TimeFromStart.Duration()}
		if wp.Positions, err = reorder(pt.Positions, order, i, "positions", true); err != nil {
			return nil, err
		}
		if wp.Velocities, err = reorder(pt.Velocities, order, i, "velocities", false); err != nil {
			return nil, err
		}
		if wp.Accelerations, err = reorder(pt.Accelerations, order, i, "accelerations", false); err != nil {
			return nil, err
		}
		points[i] = wp
	}
	return trajectory.New(p.joints, start, points, trajectory.WithID(id))
}

// jointOrder maps each configured joint to its index in names. names must be a permutation of the
// configured joints.
func (p *params) jointOrder(names []string) ([]int, error) {
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, errors.Wrapf(trajectory.ErrInvalidTrajectory, "duplicate joints %v", dups)
	}
	unknown, missing := lo.Difference(names, p.joints)
	if len(unknown) > 0 {
		return nil, errors.Wrapf(trajectory.ErrInvalidTrajectory, "unknown joints %v", unknown)
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(trajectory.ErrInvalidTrajectory, "missing joints %v", missing)
	}

	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	return lo.Map(p.joints, func(joint string, _ int) int {
		return index[joint]
	}), nil
}

func reorder(values []float64, order []int, point int, field string, required bool) ([]float64, error) {
	if len(values) == 0 && !required {
		return nil, nil
	}
	if len(values) != len(order) {
		return nil, errors.Wrapf(trajectory.ErrInvalidTrajectory, "point %d has %d %s but there are %d joints",
			point, len(values), field, len(order))
	}
	out := make([]float64, len(order))
	for i, from := range order {
		out[i] = values[from]
	}
	return out, nil
}
