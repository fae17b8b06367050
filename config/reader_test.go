package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/jtc/logging"
)

const exampleConfig = `{
	"log_level": "debug",
	"controller": {
		"joints": ["shoulder", "elbow"],
		"command_modes": ["position", "velocity"],
		"state_publish_period": "50ms",
		"gains": {"elbow": {"p": 2}}
	},
	"hardware": {"speed": 2},
	"web": {"address": "${JTC_TEST_HOST}:9090", "intake_rate_limit": 5}
}`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jtc.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("JTC_TEST_HOST", "0.0.0.0")

	cfg, err := Read(context.Background(), writeConfig(t, exampleConfig), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.DEBUG)
	test.That(t, cfg.Controller.Joints, test.ShouldResemble, []string{"shoulder", "elbow"})
	test.That(t, cfg.Controller.Gains["elbow"].P, test.ShouldEqual, 2)
	test.That(t, cfg.Hardware.Joints, test.ShouldResemble, []string{"shoulder", "elbow"})
	test.That(t, cfg.Hardware.Speed, test.ShouldEqual, 2)
	test.That(t, cfg.Web.Address, test.ShouldEqual, "0.0.0.0:9090")
	test.That(t, cfg.Web.IntakeRateLimit, test.ShouldEqual, 5)
	test.That(t, cfg.ConfigFilePath, test.ShouldEndWith, "jtc.json")
}

func TestReadDefaults(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg, err := Read(context.Background(), writeConfig(t, `{"controller": {"joints": ["a"]}}`), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.INFO)
	test.That(t, cfg.Web.Address, test.ShouldEqual, DefaultAddress)
	test.That(t, cfg.Hardware.Joints, test.ShouldResemble, []string{"a"})
	test.That(t, cfg.Controller.UpdateRate(), test.ShouldEqual, 100)
}

func TestReadErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := Read(context.Background(), filepath.Join(t.TempDir(), "nope.json"), logger)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := Read(context.Background(), writeConfig(t, `{"controller": `), logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode Config from json")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := Read(context.Background(), writeConfig(t, `{"controler": {}}`), logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "controler")
	})

	t.Run("bad log level", func(t *testing.T) {
		_, err := Read(context.Background(), writeConfig(t, `{"log_level": "loud", "controller": {"joints": ["a"]}}`), logger)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("all sections reported", func(t *testing.T) {
		_, err := FromReader(context.Background(), "", strings.NewReader(
			`{"controller": {}, "web": {"intake_burst": -1}}`), logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "controller")
		test.That(t, err.Error(), test.ShouldContainSubstring, "intake_burst")
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		_, err := FromReader(ctx, "", strings.NewReader(`{"controller": {"joints": ["a"]}}`), logger)
		test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)
	})
}
