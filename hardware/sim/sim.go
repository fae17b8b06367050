// Package sim implements RobotHardware with joints that move toward their commands over time. It
// offers a way to advance time explicitly so tests are fully deterministic.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"go.viam.com/jtc/hardware"
	"go.viam.com/jtc/logging"
)

// Config describes the simulated joints.
type Config struct {
	// Joints lists the simulated joints. When empty the controller's joints are used.
	Joints []string `json:"joints,omitempty"`

	// Speed caps how quickly a joint moves, in radians per second. Defaults to 1.
	Speed float64 `json:"speed,omitempty"`

	InitialPositions map[string]float64 `json:"initial_positions,omitempty"`

	// SimulateTime runs a background goroutine that advances the simulation with the clock.
	// Without it the owner must call UpdateForTime for joints to move.
	SimulateTime bool `json:"simulate_time,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Speed < 0 || math.IsNaN(conf.Speed) || math.IsInf(conf.Speed, 0) {
		return utils.NewConfigValidationError(path, errors.Errorf("speed must be a finite non-negative number, got %v", conf.Speed))
	}
	if dups := lo.FindDuplicates(conf.Joints); len(dups) > 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("duplicate joints %v", dups))
	}
	for name, pos := range conf.InitialPositions {
		if len(conf.Joints) > 0 && !lo.Contains(conf.Joints, name) {
			return utils.NewConfigValidationError(path, errors.Errorf("initial position for unknown joint %q", name))
		}
		if math.IsNaN(pos) || math.IsInf(pos, 0) {
			return utils.NewConfigValidationError(path, errors.Errorf("initial position for joint %q is not finite", name))
		}
	}
	return nil
}

// joint values read or written by a controller tick are atomics so handles never wait on mu.
type joint struct {
	name string

	position atomic.Float64
	velocity atomic.Float64
	command  atomic.Float64
	active   atomic.Bool

	// guarded by Hardware.mu
	kind       hardware.InterfaceKind
	registered bool
}

// Hardware is a set of simulated joints.
type Hardware struct {
	speed  float64
	clock  clock.Clock
	logger logging.Logger

	mu          sync.Mutex
	joints      map[string]*joint
	order       []string
	lastUpdated time.Time

	timeSimulation *utils.StoppableWorkers
}

// New returns simulated hardware for conf. clk is the time source used when simulating time.
func New(conf *Config, clk clock.Clock, logger logging.Logger) (*Hardware, error) {
	if err := conf.Validate("hardware"); err != nil {
		return nil, err
	}
	if len(conf.Joints) == 0 {
		return nil, errors.New("simulated hardware needs at least one joint")
	}
	speed := 1.0 // 1 radian per second
	if conf.Speed > 0 {
		speed = conf.Speed
	}

	h := &Hardware{
		speed:  speed,
		clock:  clk,
		logger: logger,
		joints: make(map[string]*joint, len(conf.Joints)),
		order:  append([]string(nil), conf.Joints...),
	}
	for _, name := range conf.Joints {
		j := &joint{name: name, kind: hardware.Position, registered: true}
		j.position.Store(conf.InitialPositions[name])
		j.command.Store(conf.InitialPositions[name])
		h.joints[name] = j
	}

	h.lastUpdated = clk.Now()
	if conf.SimulateTime {
		h.timeSimulation = utils.NewStoppableWorkerWithTicker(10*time.Millisecond, func(_ context.Context) {
			h.UpdateForTime(h.clock.Now())
		})
	}
	return h, nil
}

// JointNames returns the simulated joints in configuration order.
func (h *Hardware) JointNames() []string {
	return append([]string(nil), h.order...)
}

func (h *Hardware) lookup(name, kind string) (*joint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	j, ok := h.joints[name]
	if !ok || !j.registered {
		return nil, hardware.NewStaleHandleError(name, kind)
	}
	return j, nil
}

// JointState returns the state handle of a joint.
func (h *Hardware) JointState(name string) (hardware.JointStateHandle, error) {
	j, err := h.lookup(name, "state")
	if err != nil {
		return nil, err
	}
	return stateHandle{j}, nil
}

// JointCommand claims the command interface of the given kind for a joint. Effort commands are
// not simulated.
func (h *Hardware) JointCommand(name string, kind hardware.InterfaceKind) (hardware.JointCommandHandle, error) {
	if kind == hardware.Effort {
		return nil, hardware.NewStaleHandleError(name, string(kind))
	}
	j, err := h.lookup(name, string(kind))
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	j.kind = kind
	if kind == hardware.Position {
		j.command.Store(j.position.Load())
	} else {
		j.command.Store(0)
	}
	return commandHandle{j, kind}, nil
}

// OperationMode returns the mode handle of a joint.
func (h *Hardware) OperationMode(name string) (hardware.OperationModeHandle, bool) {
	j, err := h.lookup(name, "mode")
	if err != nil {
		return nil, false
	}
	return modeHandle{j}, true
}

// Unregister marks a joint's handles as stale. Handles already handed out keep working, but new
// lookups fail.
func (h *Hardware) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if j, ok := h.joints[name]; ok {
		j.registered = false
	}
}

// Positions returns the measured position of every joint in configuration order.
func (h *Hardware) Positions() []float64 {
	out := make([]float64, len(h.order))
	for i, name := range h.order {
		out[i] = h.joints[name].position.Load()
	}
	return out
}

// UpdateForTime advances every active joint toward its command. Tests call it for deterministic
// passage of time; with SimulateTime a background goroutine calls it with the clock.
//
// Each joint moves at most at the configured speed. Joints finish at different times.
func (h *Hardware) UpdateForTime(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dt := now.Sub(h.lastUpdated).Seconds()
	h.lastUpdated = now
	if dt <= 0 {
		return
	}

	for _, name := range h.order {
		j := h.joints[name]
		if !j.active.Load() {
			j.velocity.Store(0)
			continue
		}
		curr := j.position.Load()
		cmd := j.command.Load()

		switch j.kind {
		case hardware.Position:
			// Signed remaining distance, capped to how far we can travel.
			diff := cmd - curr
			toTravel := dt * h.speed
			const epsilon = 1e-9
			if toTravel > math.Abs(diff)-epsilon {
				j.position.Store(cmd)
				j.velocity.Store(diff / dt)
			} else {
				if diff < 0 {
					toTravel = -toTravel
				}
				j.position.Store(curr + toTravel)
				j.velocity.Store(toTravel / dt)
			}
		case hardware.Velocity:
			vel := clamp(cmd, h.speed)
			j.position.Store(curr + vel*dt)
			j.velocity.Store(vel)
		case hardware.Acceleration:
			vel := clamp(j.velocity.Load()+cmd*dt, h.speed)
			j.position.Store(curr + vel*dt)
			j.velocity.Store(vel)
		}
	}
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// Close stops simulating time.
func (h *Hardware) Close(ctx context.Context) error {
	if h.timeSimulation != nil {
		h.timeSimulation.Stop()
	}
	return nil
}

type stateHandle struct{ j *joint }

func (s stateHandle) Joint() string     { return s.j.name }
func (s stateHandle) Position() float64 { return s.j.position.Load() }
func (s stateHandle) Velocity() float64 { return s.j.velocity.Load() }

type commandHandle struct {
	j    *joint
	kind hardware.InterfaceKind
}

func (c commandHandle) Joint() string                { return c.j.name }
func (c commandHandle) Kind() hardware.InterfaceKind { return c.kind }
func (c commandHandle) Set(value float64)            { c.j.command.Store(value) }

type modeHandle struct{ j *joint }

func (m modeHandle) Joint() string { return m.j.name }

func (m modeHandle) SetMode(mode hardware.OperationMode) error {
	m.j.active.Store(mode == hardware.ModeActive)
	return nil
}
