// Package controller implements a joint trajectory controller. Trajectories arrive from a
// non-real-time context and are handed to the control tick without locks; every tick samples the
// active trajectory and writes one command per joint.
package controller

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/jtc/control"
	"go.viam.com/jtc/hardware"
	"go.viam.com/jtc/lifecycle"
	"go.viam.com/jtc/logging"
	"go.viam.com/jtc/realtime"
	"go.viam.com/jtc/ros"
	"go.viam.com/jtc/trajectory"
)

var (
	// ErrNotActive is returned for trajectories received while the controller is not active.
	ErrNotActive = errors.New("controller is not active")
	// ErrHardwareFault is returned by Update when the hardware reports an unusable state.
	ErrHardwareFault = errors.New("hardware fault")
)

// Stats counts intake and state publication outcomes.
type Stats struct {
	Accepted        uint64 `json:"accepted"`
	Rejected        uint64 `json:"rejected"`
	StatesPublished uint64 `json:"states_published"`
	StatesDropped   uint64 `json:"states_dropped"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used to stamp trajectories and halts. Defaults to the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

// Controller follows joint trajectories on robot hardware.
type Controller struct {
	hw     hardware.RobotHardware
	sink   realtime.Sink[ros.JointTrajectoryControllerState]
	clock  clock.Clock
	logger logging.Logger

	machine *lifecycle.Machine

	// mu serializes lifecycle requests and intake. Update never takes it.
	mu        sync.Mutex
	next      *Config
	params    *params
	publisher *realtime.Publisher[ros.JointTrajectoryControllerState]
	modes     []hardware.OperationModeHandle
	received  bool

	active *realtime.Buffer[trajectory.Trajectory]
	tick   atomic.Pointer[tickState]
	halted atomic.Bool

	accepted      atomic.Uint64
	rejected      atomic.Uint64
	closedPublished atomic.Uint64
	closedDropped   atomic.Uint64
}

// New returns an unconfigured controller driving hw. State messages go to sink, which may be nil.
func New(hw hardware.RobotHardware, sink realtime.Sink[ros.JointTrajectoryControllerState], logger logging.Logger,
	opts ...Option,
) *Controller {
	c := &Controller{
		hw:     hw,
		sink:   sink,
		clock:  clock.New(),
		logger: logger,
		active: realtime.NewBuffer[trajectory.Trajectory](nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.machine = lifecycle.NewMachine(map[lifecycle.Transition]lifecycle.Hook{
		lifecycle.Configure:  c.onConfigure,
		lifecycle.Activate:   c.onActivate,
		lifecycle.Deactivate: c.onDeactivate,
		lifecycle.Cleanup:    c.onCleanup,
		lifecycle.Shutdown:   c.onShutdown,
		lifecycle.RaiseError: c.onError,
		lifecycle.Recover:    c.onCleanup,
	}, logger.Sublogger("lifecycle"))
	return c
}

// State returns the lifecycle state.
func (c *Controller) State() lifecycle.State {
	return c.machine.State()
}

// Configure validates conf and moves the controller to Inactive.
func (c *Controller) Configure(ctx context.Context, conf *Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = conf
	defer func() { c.next = nil }()
	_, err := c.machine.Trigger(ctx, lifecycle.Configure)
	return err
}

// Activate claims the hardware handles and starts following trajectories. A missing handle moves
// the controller to Error.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.machine.Trigger(ctx, lifecycle.Activate)
	if err != nil && hardware.IsStaleHandleError(err) {
		if _, raiseErr := c.machine.Trigger(ctx, lifecycle.RaiseError); raiseErr != nil {
			return multierr.Combine(err, raiseErr)
		}
	}
	return err
}

// Deactivate halts motion and releases the joints.
func (c *Controller) Deactivate(ctx context.Context) error {
	return c.trigger(ctx, lifecycle.Deactivate)
}

// Cleanup drops the configuration and any trajectory.
func (c *Controller) Cleanup(ctx context.Context) error {
	return c.trigger(ctx, lifecycle.Cleanup)
}

// Shutdown halts and finalizes the controller.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.trigger(ctx, lifecycle.Shutdown)
}

// Fault halts the controller and moves it to Error.
func (c *Controller) Fault(ctx context.Context, cause error) error {
	c.logger.Errorw("controller fault", "error", cause)
	return c.trigger(ctx, lifecycle.RaiseError)
}

// Recover resets a controller in Error back to Unconfigured.
func (c *Controller) Recover(ctx context.Context) error {
	return c.trigger(ctx, lifecycle.Recover)
}

func (c *Controller) trigger(ctx context.Context, t lifecycle.Transition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.machine.Trigger(ctx, t)
	return err
}

// The hooks below run with c.mu held.

func (c *Controller) onConfigure(ctx context.Context, from lifecycle.State) error {
	if c.next == nil {
		return errors.New("no configuration given")
	}
	p, err := c.next.params("controller")
	if err != nil {
		return err
	}
	c.reset()
	c.params = p
	if c.sink != nil {
		c.publisher = realtime.NewPublisher(ros.NewJointTrajectoryControllerState(p.joints), c.sink,
			c.logger.Sublogger("state"))
	}
	c.logger.Infow("configured", "joints", p.joints, "interpolation", p.method.String(),
		"update_period", p.updatePeriod, "state_publish_period", p.publishPeriod)
	return nil
}

func (c *Controller) onActivate(ctx context.Context, from lifecycle.State) error {
	p := c.params
	ts := &tickState{
		sampler:       trajectory.Sampler{Method: p.method},
		kinds:         p.kinds,
		pids:          make([]control.PID, len(p.joints)),
		usePID:        make([]bool, len(p.joints)),
		period:        p.updatePeriod,
		states:        make([]hardware.JointStateHandle, len(p.joints)),
		commands:      make([]hardware.JointCommandHandle, len(p.joints)),
		desired:       trajectory.NewJointState(len(p.joints)),
		actual:        trajectory.NewJointState(len(p.joints)),
		holdPositions: make([]float64, len(p.joints)),
		publisher:     c.publisher,
		publishPeriod: p.publishPeriod,
	}
	for i, gains := range p.gains {
		if gains != nil {
			ts.pids[i] = control.NewPID(*gains)
			ts.usePID[i] = true
		}
	}
	var modes []hardware.OperationModeHandle
	for i, joint := range p.joints {
		state, err := c.hw.JointState(joint)
		if err != nil {
			return errors.Wrapf(err, "claiming state of joint %q", joint)
		}
		command, err := c.hw.JointCommand(joint, p.kinds[i])
		if err != nil {
			return errors.Wrapf(err, "claiming %s command of joint %q", p.kinds[i], joint)
		}
		ts.states[i] = state
		ts.commands[i] = command
		if mode, ok := c.hw.OperationMode(joint); ok {
			modes = append(modes, mode)
		}
	}
	for _, mode := range modes {
		if err := mode.SetMode(hardware.ModeActive); err != nil {
			return multierr.Combine(
				errors.Wrapf(err, "activating joint %q", mode.Joint()),
				setModes(modes, hardware.ModeInactive))
		}
	}
	c.modes = modes

	now := c.clock.Now()
	next := trajectory.NewEmpty(p.joints, now, trajectory.WithID("hold"))
	if p.home != nil && !c.received {
		home, err := p.toTrajectory(p.home, now, "home")
		if err != nil {
			return err
		}
		next = home
		c.logger.Infow("executing home trajectory", "points", home.Len())
	}
	c.active.WriteFromNonRT(next)
	c.tick.Store(ts)
	c.halted.Store(false)
	return nil
}

func (c *Controller) onDeactivate(ctx context.Context, from lifecycle.State) error {
	c.halt()
	err := setModes(c.modes, hardware.ModeInactive)
	c.modes = nil
	return err
}

func (c *Controller) onCleanup(ctx context.Context, from lifecycle.State) error {
	c.reset()
	return nil
}

func (c *Controller) onShutdown(ctx context.Context, from lifecycle.State) error {
	c.halt()
	err := setModes(c.modes, hardware.ModeInactive)
	c.modes = nil
	c.reset()
	return err
}

func (c *Controller) onError(ctx context.Context, from lifecycle.State) error {
	c.halt()
	err := setModes(c.modes, hardware.ModeInactive)
	c.modes = nil
	return err
}

// halt makes every following tick hold position until the next activation.
func (c *Controller) halt() {
	c.halted.Store(true)
	if c.params != nil {
		c.active.WriteFromNonRT(trajectory.NewEmpty(c.params.joints, c.clock.Now(), trajectory.WithID("halt")))
	}
	c.logger.Debug("halted")
}

// reset drops the tick state, its cursor and every trajectory reference.
func (c *Controller) reset() {
	c.tick.Store(nil)
	c.active.WriteFromNonRT(nil)
	c.received = false
	if c.publisher != nil {
		published, dropped := c.publisher.Stats()
		c.closedPublished.Add(published)
		c.closedDropped.Add(dropped)
		c.publisher.Close()
		c.publisher = nil
	}
	c.params = nil
}

func setModes(modes []hardware.OperationModeHandle, mode hardware.OperationMode) error {
	var err error
	for _, h := range modes {
		err = multierr.Combine(err, errors.Wrapf(h.SetMode(mode), "setting joint %q %s", h.Joint(), mode))
	}
	return err
}

// AcceptTrajectory validates msg and makes it the active trajectory. The next tick samples only
// the new trajectory. An invalid message leaves the active trajectory untouched. A message
// without points stops motion. It returns the id assigned to the trajectory.
func (c *Controller) AcceptTrajectory(ctx context.Context, msg *ros.JointTrajectory) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state := c.machine.State(); state != lifecycle.Active {
		c.rejected.Inc()
		return "", errors.Wrapf(ErrNotActive, "controller is %s", state)
	}
	id := uuid.NewString()
	traj, err := c.params.toTrajectory(msg, c.clock.Now(), id)
	if err != nil {
		c.rejected.Inc()
		c.logger.Warnw("rejected trajectory", "id", id, "error", err)
		return "", err
	}
	c.active.WriteFromNonRT(traj)
	c.received = true
	c.accepted.Inc()
	c.logger.Debugw("accepted trajectory", "id", id, "points", traj.Len(),
		"start", traj.StartTime(), "end", traj.EndTime())
	return id, nil
}

// Stop replaces the active trajectory with an empty one so the controller holds position.
func (c *Controller) Stop(ctx context.Context) error {
	_, err := c.AcceptTrajectory(ctx, &ros.JointTrajectory{JointNames: c.JointNames()})
	return err
}

// JointNames returns the configured joints, or nil when unconfigured.
func (c *Controller) JointNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params == nil {
		return nil
	}
	return append([]string(nil), c.params.joints...)
}

// Active returns the trajectory the next tick will sample, or nil.
func (c *Controller) Active() *trajectory.Trajectory {
	return c.active.ReadFromNonRT()
}

// Halted reports whether the controller is holding after a deactivation or error.
func (c *Controller) Halted() bool {
	return c.halted.Load()
}

// Stats returns intake and publication counters since the controller was created.
func (c *Controller) Stats() Stats {
	s := Stats{
		Accepted:        c.accepted.Load(),
		Rejected:        c.rejected.Load(),
		StatesPublished: c.closedPublished.Load(),
		StatesDropped:   c.closedDropped.Load(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publisher != nil {
		published, dropped := c.publisher.Stats()
		s.StatesPublished += published
		s.StatesDropped += dropped
	}
	return s
}
