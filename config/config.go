// Package config defines the on-disk configuration of a trajectory controller process.
package config

import (
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/jtc/controller"
	"go.viam.com/jtc/hardware/sim"
	"go.viam.com/jtc/logging"
	"go.viam.com/jtc/web"
)

// DefaultAddress is where the web server listens when no address is configured.
const DefaultAddress = "localhost:8080"

// Config describes a controller process: the controller itself, the hardware it drives and how
// it is served.
type Config struct {
	ConfigFilePath string `json:"-"`

	Controller controller.Config `json:"controller"`
	Hardware   sim.Config        `json:"hardware"`
	Web        web.Options       `json:"web"`

	// LogLevel is one of debug, info, warn or error. Defaults to info.
	LogLevel logging.Level `json:"log_level,omitempty"`
}

// Ensure fills in defaults and validates every section, returning all validation errors found.
func (c *Config) Ensure(logger logging.Logger) error {
	if len(c.Hardware.Joints) == 0 {
		c.Hardware.Joints = append([]string(nil), c.Controller.Joints...)
	}
	if c.Web.Address == "" {
		c.Web.Address = DefaultAddress
	}

	var err error
	err = multierr.Append(err, c.Controller.Validate("controller"))
	err = multierr.Append(err, c.Hardware.Validate("hardware"))
	err = multierr.Append(err, c.Web.Validate("web"))
	if err != nil {
		return err
	}

	// Missing hardware joints are not a config error; activation reports them as stale handles.
	if missing, _ := lo.Difference(c.Controller.Joints, c.Hardware.Joints); len(missing) > 0 {
		logger.Warnw("controller joints not provided by hardware", "joints", missing)
	}
	return nil
}
