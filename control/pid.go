package control

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Gains are the PID gains of one joint.
type Gains struct {
	P float64 `json:"p"`
	I float64 `json:"i,omitempty"`
	D float64 `json:"d,omitempty"`
	// IClamp bounds the magnitude of the integral term. Zero means unbounded.
	IClamp float64 `json:"i_clamp,omitempty"`
}

// Validate ensures the gains are finite and non-negative.
func (g Gains) Validate() error {
	for name, v := range map[string]float64{"p": g.P, "i": g.I, "d": g.D, "i_clamp": g.IClamp} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("gain %s must be finite and non-negative, got %v", name, v)
		}
	}
	return nil
}

// PID is a discrete PID controller. The zero value has zero gains.
type PID struct {
	Gains

	integral  float64
	lastError float64
	primed    bool
}

// NewPID returns a PID with the given gains.
func NewPID(gains Gains) PID {
	return PID{Gains: gains}
}

// Next returns the control output for error err, dt after the previous call. The derivative term
// is zero on the first call after a reset.
func (p *PID) Next(err float64, dt time.Duration) float64 {
	dtS := dt.Seconds()
	if dtS <= 0 {
		return p.P*err + p.integral
	}
	p.integral += p.I * err * dtS
	if p.IClamp > 0 {
		p.integral = math.Max(-p.IClamp, math.Min(p.IClamp, p.integral))
	}
	deriv := 0.0
	if p.primed {
		deriv = (err - p.lastError) / dtS
	}
	p.lastError = err
	p.primed = true
	return p.P*err + p.integral + p.D*deriv
}

// Reset clears the integral and derivative history.
func (p *PID) Reset() {
	p.integral = 0
	p.lastError = 0
	p.primed = false
}
