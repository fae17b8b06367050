package lifecycle

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/jtc/logging"
)

func TestHappyPath(t *testing.T) {
	ctx := context.Background()
	var calls []string
	record := func(name string) Hook {
		return func(ctx context.Context, from State) error {
			calls = append(calls, name+"@"+from.String())
			return nil
		}
	}
	m := NewMachine(map[Transition]Hook{
		Configure:  record("configure"),
		Activate:   record("activate"),
		Deactivate: record("deactivate"),
		Cleanup:    record("cleanup"),
		Shutdown:   record("shutdown"),
	}, logging.NewTestLogger(t))
	test.That(t, m.State(), test.ShouldEqual, Unconfigured)

	for _, step := range []struct {
		via Transition
		to  State
	}{
		{Configure, Inactive},
		{Activate, Active},
		{Deactivate, Inactive},
		{Activate, Active},
		{Deactivate, Inactive},
		{Cleanup, Unconfigured},
		{Shutdown, Finalized},
	} {
		state, err := m.Trigger(ctx, step.via)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, state, test.ShouldEqual, step.to)
		test.That(t, m.State(), test.ShouldEqual, step.to)
	}
	test.That(t, calls, test.ShouldResemble, []string{
		"configure@unconfigured",
		"activate@inactive",
		"deactivate@active",
		"activate@inactive",
		"deactivate@active",
		"cleanup@inactive",
		"shutdown@unconfigured",
	})
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(nil, logging.NewTestLogger(t))

	for _, tr := range []Transition{Activate, Deactivate, Cleanup, Recover} {
		test.That(t, m.Allowed(tr), test.ShouldBeFalse)
		state, err := m.Trigger(ctx, tr)
		test.That(t, errors.Is(err, ErrInvalidTransition), test.ShouldBeTrue)
		test.That(t, state, test.ShouldEqual, Unconfigured)
	}

	_, err := m.Trigger(ctx, Shutdown)
	test.That(t, err, test.ShouldBeNil)
	// Finalized is terminal.
	for _, tr := range []Transition{Configure, Activate, Deactivate, Cleanup, Shutdown, RaiseError, Recover} {
		_, err := m.Trigger(ctx, tr)
		test.That(t, errors.Is(err, ErrInvalidTransition), test.ShouldBeTrue)
	}
	test.That(t, m.State(), test.ShouldEqual, Finalized)
}

func TestFailingHookKeepsState(t *testing.T) {
	ctx := context.Background()
	m := NewMachine(map[Transition]Hook{
		Activate: func(ctx context.Context, from State) error {
			return errors.New("missing handle")
		},
	}, logging.NewTestLogger(t))

	_, err := m.Trigger(ctx, Configure)
	test.That(t, err, test.ShouldBeNil)

	state, err := m.Trigger(ctx, Activate)
	test.That(t, err, test.ShouldBeError, "activate failed: missing handle")
	test.That(t, state, test.ShouldEqual, Inactive)
	test.That(t, m.State(), test.ShouldEqual, Inactive)
}

func TestErrorAndRecover(t *testing.T) {
	ctx := context.Background()
	halted := 0
	reset := 0
	m := NewMachine(map[Transition]Hook{
		RaiseError: func(ctx context.Context, from State) error {
			halted++
			return errors.New("halt failed too")
		},
		Recover: func(ctx context.Context, from State) error {
			reset++
			return nil
		},
	}, logging.NewTestLogger(t))

	_, err := m.Trigger(ctx, Configure)
	test.That(t, err, test.ShouldBeNil)
	_, err = m.Trigger(ctx, Activate)
	test.That(t, err, test.ShouldBeNil)

	// Entering Error succeeds even when its hook fails.
	state, err := m.Trigger(ctx, RaiseError)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, Error)
	test.That(t, halted, test.ShouldEqual, 1)

	test.That(t, m.Allowed(Activate), test.ShouldBeFalse)
	state, err = m.Trigger(ctx, Recover)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, state, test.ShouldEqual, Unconfigured)
	test.That(t, reset, test.ShouldEqual, 1)
}
