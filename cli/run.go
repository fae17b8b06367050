package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/jtc/config"
	"go.viam.com/jtc/control"
	"go.viam.com/jtc/controller"
	"go.viam.com/jtc/hardware/sim"
	"go.viam.com/jtc/lifecycle"
	"go.viam.com/jtc/logging"
	"go.viam.com/jtc/web"
)

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewLogger("trajctl")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("trajctl")
	}
	logging.ReplaceGlobal(logger)
	return logger
}

// ValidateAction reads the configuration and reports whether it is valid.
func ValidateAction(c *cli.Context) error {
	cfg, err := config.Read(c.Context, c.String(flagConfig), newLogger(c))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s is valid: %d joints at %v Hz\n",
		cfg.ConfigFilePath, len(cfg.Controller.Joints), cfg.Controller.UpdateRate())
	return nil
}

// RunAction runs a controller until interrupted.
func RunAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := config.Read(c.Context, c.String(flagConfig), logger)
	if err != nil {
		return err
	}
	if !c.Bool(flagDebug) {
		logger.SetLevel(cfg.LogLevel)
	}
	if path := c.String(flagLogFile); path != "" {
		logFile := newLogFile(path)
		defer utils.UncheckedErrorFunc(logFile.Close)
		logger.AddAppender(logging.NewWriterAppender(logFile))
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	listener, err := net.Listen("tcp", cfg.Web.Address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %q", cfg.Web.Address)
	}
	return runController(ctx, cfg, clock.New(), listener, logger)
}

// newLogFile returns a writer to path that rotates it once it reaches 100 megabytes.
func newLogFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 3,
		Compress:   true,
	}
}

// simulatedRobot advances the simulation before each controller tick so the controller measures
// the motion its previous command produced.
type simulatedRobot struct {
	hw   *sim.Hardware
	ctrl *controller.Controller
}

func (r simulatedRobot) Update(now time.Time) error {
	r.hw.UpdateForTime(now)
	return r.ctrl.Update(now)
}

// runController configures and activates a controller on simulated hardware, ticks it and serves
// it on listener until ctx is done, then winds it down.
func runController(
	ctx context.Context,
	cfg *config.Config,
	clk clock.Clock,
	listener net.Listener,
	logger logging.Logger,
) (err error) {
	defer func() {
		if closeErr := listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = multierr.Combine(err, closeErr)
		}
	}()

	hw, err := sim.New(&cfg.Hardware, clk, logger.Sublogger("hardware"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, hw.Close(context.Background()))
	}()

	hub := web.NewStateHub(logger.Sublogger("state"))
	ctrl := controller.New(hw, hub, logger.Sublogger("controller"), controller.WithClock(clk))

	var target control.Tickable = ctrl
	if !cfg.Hardware.SimulateTime {
		target = simulatedRobot{hw: hw, ctrl: ctrl}
	}
	loop, err := control.NewLoop(target, cfg.Controller.UpdateRate(), logger.Sublogger("loop"),
		control.WithClock(clk),
		control.WithErrorHandler(func(tickErr error) {
			if ctrl.State() == lifecycle.Error {
				return
			}
			if err := ctrl.Fault(context.Background(), tickErr); err != nil {
				logger.Errorw("failed to move controller to error state", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}

	if err := ctrl.Configure(ctx, &cfg.Controller); err != nil {
		return err
	}
	if err := ctrl.Activate(ctx); err != nil {
		return multierr.Combine(err, ctrl.Shutdown(context.Background()))
	}
	loop.Start()

	server := web.NewServer(ctrl, hub, cfg.Web, logger.Sublogger("web"))
	serveErr := server.Serve(ctx, listener)

	loop.Stop()
	ticks, failures := loop.Stats()
	stats := ctrl.Stats()
	logger.Infow("controller stopped",
		"ticks", ticks,
		"failed_ticks", failures,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"states_published", stats.StatesPublished,
		"states_dropped", stats.StatesDropped,
	)

	// Deactivate is refused from the error state; shutdown is reachable from every state.
	shutdownCtx := context.Background()
	if ctrl.State() == lifecycle.Active {
		err = multierr.Combine(err, ctrl.Deactivate(shutdownCtx))
	}
	return multierr.Combine(serveErr, err, ctrl.Shutdown(shutdownCtx))
}
