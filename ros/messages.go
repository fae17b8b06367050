package ros

import (
	"time"
)

// Time is a ROS timestamp.
type Time struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

// NewTime converts t. The zero time.Time converts to the zero Time.
func NewTime(t time.Time) Time {
	if t.IsZero() {
		return Time{}
	}
	nanos := t.UnixNano()
	return Time{Secs: nanos / int64(time.Second), Nsecs: nanos % int64(time.Second)}
}

// IsZero reports whether the stamp is unset.
func (t Time) IsZero() bool {
	return t.Secs == 0 && t.Nsecs == 0
}

// Time converts the stamp. The zero stamp converts to the zero time.Time.
func (t Time) Time() time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Unix(t.Secs, t.Nsecs).UTC()
}

// Duration is a ROS duration.
type Duration struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

// NewDuration converts d.
func NewDuration(d time.Duration) Duration {
	return Duration{Secs: int64(d / time.Second), Nsecs: int64(d % time.Second)}
}

// Duration converts the ROS duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d.Secs)*time.Second + time.Duration(d.Nsecs)
}

// Header mirrors std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq,omitempty"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id,omitempty"`
}

// JointTrajectoryPoint mirrors trajectory_msgs/JointTrajectoryPoint.
type JointTrajectoryPoint struct {
	Positions     []float64 `json:"positions"`
	Velocities    []float64 `json:"velocities,omitempty"`
	Accelerations []float64 `json:"accelerations,omitempty"`
	Effort        []float64 `json:"effort,omitempty"`
	TimeFromStart Duration  `json:"time_from_start"`
}

func (p JointTrajectoryPoint) clone() JointTrajectoryPoint {
	return JointTrajectoryPoint{
		Positions:     cloneFloats(p.Positions),
		Velocities:    cloneFloats(p.Velocities),
		Accelerations: cloneFloats(p.Accelerations),
		Effort:        cloneFloats(p.Effort),
		TimeFromStart: p.TimeFromStart,
	}
}

// JointTrajectory mirrors trajectory_msgs/JointTrajectory. A message without points requests a
// stop.
type JointTrajectory struct {
	Header     Header                 `json:"header"`
	JointNames []string               `json:"joint_names"`
	Points     []JointTrajectoryPoint `json:"points"`
}

// JointTrajectoryControllerState is the periodic status of a trajectory controller. Error is
// desired minus actual.
type JointTrajectoryControllerState struct {
	Header       Header               `json:"header"`
	JointNames   []string             `json:"joint_names"`
	Desired      JointTrajectoryPoint `json:"desired"`
	Actual       JointTrajectoryPoint `json:"actual"`
	Error        JointTrajectoryPoint `json:"error"`
	TrajectoryID string               `json:"trajectory_id,omitempty"`
	Status       string               `json:"status"`
	Halted       bool                 `json:"halted"`
}

// NewJointTrajectoryControllerState returns a state message with every per-joint slice sized for
// jointNames.
func NewJointTrajectoryControllerState(jointNames []string) JointTrajectoryControllerState {
	dof := len(jointNames)
	point := func() JointTrajectoryPoint {
		return JointTrajectoryPoint{
			Positions:     make([]float64, dof),
			Velocities:    make([]float64, dof),
			Accelerations: make([]float64, dof),
		}
	}
	return JointTrajectoryControllerState{
		JointNames: append([]string(nil), jointNames...),
		Desired:    point(),
		Actual:     point(),
		Error:      point(),
	}
}

// Clone returns a deep copy.
func (s *JointTrajectoryControllerState) Clone() *JointTrajectoryControllerState {
	return &JointTrajectoryControllerState{
		Header:       s.Header,
		JointNames:   append([]string(nil), s.JointNames...),
		Desired:      s.Desired.clone(),
		Actual:       s.Actual.clone(),
		Error:        s.Error.clone(),
		TrajectoryID: s.TrajectoryID,
		Status:       s.Status,
		Halted:       s.Halted,
	}
}

func cloneFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	return append([]float64(nil), in...)
}
