package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"go.viam.com/jtc/controller"
	"go.viam.com/jtc/ros"
	"go.viam.com/jtc/trajectory"
)

const defaultStep = 100 * time.Millisecond

// maxSamples bounds the rows printed for one trajectory.
const maxSamples = 10000

// SampleAction prints sampled positions and velocities of one or more trajectories.
func SampleAction(c *cli.Context) error {
	method, err := trajectory.MethodFromString(c.String(flagInterpolation))
	if err != nil {
		return err
	}
	step := c.Duration(flagStep)
	if step <= 0 {
		return errors.Errorf("%s must be positive, got %v", flagStep, step)
	}

	msgs, err := loadTrajectories(c)
	if err != nil {
		return err
	}
	for i := range msgs {
		if len(msgs) > 1 {
			fmt.Fprintf(c.App.Writer, "trajectory %d of %d\n", i+1, len(msgs))
		}
		samples, err := sampleTrajectory(&msgs[i], method, step)
		if err != nil {
			return errors.Wrapf(err, "trajectory %d", i)
		}
		if samples == nil {
			fmt.Fprintln(c.App.Writer, "empty trajectory: holds position")
			continue
		}
		samples.render(c.App.Writer)
		if path := c.String(flagPlot); path != "" {
			if len(msgs) > 1 {
				ext := filepath.Ext(path)
				path = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(path, ext), i, ext)
			}
			if err := samples.plot(path); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
		}
	}
	return nil
}

func loadTrajectories(c *cli.Context) ([]ros.JointTrajectory, error) {
	trajFile, bagFile := c.String(flagTrajectory), c.String(flagBag)
	switch {
	case trajFile != "" && bagFile != "":
		return nil, errors.Errorf("only one of --%s and --%s may be given", flagTrajectory, flagBag)
	case bagFile != "":
		msgs, err := ros.JointTrajectoriesFromBag(bagFile, c.String(flagTopic))
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			return nil, errors.Errorf("no messages on topic %q", c.String(flagTopic))
		}
		return msgs, nil
	case trajFile != "":
		//nolint:gosec
		f, err := os.Open(trajFile)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		var msg ros.JointTrajectory
		if err := json.NewDecoder(f).Decode(&msg); err != nil {
			return nil, errors.Wrapf(err, "failed to decode JointTrajectory from %s", trajFile)
		}
		return []ros.JointTrajectory{msg}, nil
	}
	return nil, errors.Errorf("one of --%s or --%s is required", flagTrajectory, flagBag)
}

// samples holds a trajectory sampled at fixed offsets from its start.
type samples struct {
	joints     []string
	offsets    []time.Duration
	positions  [][]float64
	velocities [][]float64
	statuses   []trajectory.Status
}

// sampleTrajectory samples msg every step from its start through its last waypoint. It returns
// nil for a trajectory without waypoints.
func sampleTrajectory(msg *ros.JointTrajectory, method trajectory.Method, step time.Duration) (*samples, error) {
	// Offsets are relative to the trajectory start so recorded stamps do not matter.
	start := time.Unix(0, 0).UTC()
	msg.Header.Stamp = ros.Time{}
	traj, err := controller.ParseTrajectory(msg, start)
	if err != nil {
		return nil, err
	}
	if traj.IsEmpty() {
		return nil, nil
	}
	duration := traj.EndTime().Sub(start)
	if int64(duration/step) > maxSamples {
		return nil, errors.Errorf("%v at %v steps exceeds %d samples", duration, step, maxSamples)
	}

	s := &samples{joints: traj.JointNames()}
	sampler := trajectory.Sampler{Method: method}
	out := trajectory.NewJointState(traj.DoF())
	var cursor trajectory.Cursor
	add := func(offset time.Duration) {
		var status trajectory.Status
		cursor, status = sampler.Sample(traj, start.Add(offset), cursor, &out)
		s.offsets = append(s.offsets, offset)
		s.positions = append(s.positions, append([]float64(nil), out.Positions...))
		s.velocities = append(s.velocities, append([]float64(nil), out.Velocities...))
		s.statuses = append(s.statuses, status)
	}
	for offset := time.Duration(0); offset < duration; offset += step {
		add(offset)
	}
	add(duration)
	return s, nil
}

func (s *samples) render(w io.Writer) {
	header := table.Row{"t"}
	for _, name := range s.joints {
		header = append(header, name+" pos", name+" vel")
	}
	header = append(header, "status")

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)
	for i, offset := range s.offsets {
		row := table.Row{offset.String()}
		for j := range s.joints {
			row = append(row, fmt.Sprintf("%.4f", s.positions[i][j]), fmt.Sprintf("%.4f", s.velocities[i][j]))
		}
		t.AppendRow(append(row, s.statuses[i].String()))
	}
	t.Render()
}

// plot writes a PNG, SVG or PDF (by extension) of every joint's position over time.
func (s *samples) plot(path string) error {
	p := plot.New()
	p.Title.Text = "joint positions"
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "position"
	for j, name := range s.joints {
		xys := make(plotter.XYs, len(s.offsets))
		for i, offset := range s.offsets {
			xys[i].X = offset.Seconds()
			xys[i].Y = s.positions[i][j]
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "plotting joint %q", name)
		}
		line.Color = plotutil.Color(j)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	return errors.Wrapf(p.Save(8*vg.Inch, 4*vg.Inch, path), "saving plot to %s", path)
}
