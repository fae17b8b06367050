package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/jtc/controller"
	"go.viam.com/jtc/lifecycle"
	"go.viam.com/jtc/logging"
	"go.viam.com/jtc/ros"
	"go.viam.com/jtc/trajectory"
)

type fakeController struct {
	mu       sync.Mutex
	received []*ros.JointTrajectory
	stops    int
	state    lifecycle.State
	err      error
}

func (c *fakeController) AcceptTrajectory(ctx context.Context, msg *ros.JointTrajectory) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.received = append(c.received, msg)
	return "traj-1", nil
}

func (c *fakeController) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return c.err
}

func (c *fakeController) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeController) receivedMessages() []*ros.JointTrajectory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ros.JointTrajectory(nil), c.received...)
}

func (c *fakeController) State() lifecycle.State {
	return c.state
}

func (c *fakeController) Stats() controller.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return controller.Stats{Accepted: uint64(len(c.received))}
}

func newTestServer(t *testing.T, ctrl Controller, opts Options) (*httptest.Server, *StateHub) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	hub := NewStateHub(logger)
	srv := httptest.NewServer(NewServer(ctrl, hub, opts, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, hub
}

func postTrajectory(t *testing.T, url string, msg interface{}) (*http.Response, map[string]string) {
	t.Helper()
	body, err := json.Marshal(msg)
	test.That(t, err, test.ShouldBeNil)
	resp, err := http.Post(url+"/trajectory", "application/json", bytes.NewReader(body))
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	out := map[string]string{}
	test.That(t, json.NewDecoder(resp.Body).Decode(&out), test.ShouldBeNil)
	return resp, out
}

func TestPostTrajectory(t *testing.T) {
	ctrl := &fakeController{state: lifecycle.Active}
	srv, _ := newTestServer(t, ctrl, Options{})

	msg := ros.JointTrajectory{
		JointNames: []string{"a"},
		Points:     []ros.JointTrajectoryPoint{{Positions: []float64{1}, TimeFromStart: ros.Duration{Secs: 1}}},
	}
	resp, out := postTrajectory(t, srv.URL, msg)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusAccepted)
	test.That(t, out["id"], test.ShouldEqual, "traj-1")
	received := ctrl.receivedMessages()
	test.That(t, received, test.ShouldHaveLength, 1)
	test.That(t, received[0], test.ShouldResemble, &msg)
}

func TestPostTrajectoryErrors(t *testing.T) {
	ctrl := &fakeController{state: lifecycle.Active}
	srv, _ := newTestServer(t, ctrl, Options{})

	resp, err := http.Post(srv.URL+"/trajectory", "application/json", strings.NewReader(`{"joint_names": 3}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)

	resp, err = http.Post(srv.URL+"/trajectory", "application/json", strings.NewReader(`{"jointnames": []}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)

	ctrl.setErr(errors.Wrap(trajectory.ErrInvalidTrajectory, "waypoint 2 time 1s is not after waypoint 1 time 2s"))
	resp, out := postTrajectory(t, srv.URL, ros.JointTrajectory{})
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	test.That(t, out["error"], test.ShouldContainSubstring, "is not after")

	ctrl.setErr(errors.Wrap(controller.ErrNotActive, "controller is inactive"))
	resp, _ = postTrajectory(t, srv.URL, ros.JointTrajectory{})
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusConflict)

	ctrl.setErr(errors.New("boom"))
	resp, _ = postTrajectory(t, srv.URL, ros.JointTrajectory{})
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusInternalServerError)
}

func TestTrajectoryRateLimit(t *testing.T) {
	ctrl := &fakeController{state: lifecycle.Active}
	srv, _ := newTestServer(t, ctrl, Options{IntakeRateLimit: 0.001, IntakeBurst: 2})

	for i := 0; i < 2; i++ {
		resp, _ := postTrajectory(t, srv.URL, ros.JointTrajectory{})
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusAccepted)
	}
	resp, out := postTrajectory(t, srv.URL, ros.JointTrajectory{})
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusTooManyRequests)
	test.That(t, out["error"], test.ShouldEqual, "trajectory rate limit exceeded")
	test.That(t, ctrl.receivedMessages(), test.ShouldHaveLength, 2)
}

func TestHaltLifecycleStats(t *testing.T) {
	ctrl := &fakeController{state: lifecycle.Inactive}
	srv, _ := newTestServer(t, ctrl, Options{})

	resp, err := http.Post(srv.URL+"/halt", "application/json", nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNoContent)
	ctrl.mu.Lock()
	test.That(t, ctrl.stops, test.ShouldEqual, 1)
	ctrl.mu.Unlock()

	resp, err = http.Get(srv.URL + "/lifecycle")
	test.That(t, err, test.ShouldBeNil)
	var lc lifecycleResponse
	test.That(t, json.NewDecoder(resp.Body).Decode(&lc), test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, lc.State, test.ShouldEqual, "inactive")

	resp, err = http.Get(srv.URL + "/stats")
	test.That(t, err, test.ShouldBeNil)
	var stats controller.Stats
	test.That(t, json.NewDecoder(resp.Body).Decode(&stats), test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, stats, test.ShouldResemble, controller.Stats{})

	resp, err = http.Get(srv.URL + "/nope")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
}

func TestLatestState(t *testing.T) {
	srv, hub := newTestServer(t, &fakeController{}, Options{})

	resp, err := http.Get(srv.URL + "/state")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)

	state := ros.NewJointTrajectoryControllerState([]string{"a"})
	state.Desired.Positions[0] = 0.75
	state.Status = "in_range"
	test.That(t, hub.Publish(context.Background(), &state), test.ShouldBeNil)
	// The hub keeps its own copy.
	state.Desired.Positions[0] = 0

	resp, err = http.Get(srv.URL + "/state")
	test.That(t, err, test.ShouldBeNil)
	var got ros.JointTrajectoryControllerState
	test.That(t, json.NewDecoder(resp.Body).Decode(&got), test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, got.Desired.Positions, test.ShouldResemble, []float64{0.75})
	test.That(t, got.Status, test.ShouldEqual, "in_range")
}

func TestStateStream(t *testing.T) {
	srv, hub := newTestServer(t, &fakeController{}, Options{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/state/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	test.That(t, err, test.ShouldBeNil)
	defer conn.Close()

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, hub.Subscribers(), test.ShouldEqual, 1)
	})

	for i := 1; i <= 3; i++ {
		state := ros.NewJointTrajectoryControllerState([]string{"a"})
		state.Header.Seq = uint32(i)
		test.That(t, hub.Publish(context.Background(), &state), test.ShouldBeNil)
	}
	for i := 1; i <= 3; i++ {
		test.That(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)), test.ShouldBeNil)
		var got ros.JointTrajectoryControllerState
		test.That(t, conn.ReadJSON(&got), test.ShouldBeNil)
		test.That(t, got.Header.Seq, test.ShouldEqual, i)
		test.That(t, got.JointNames, test.ShouldResemble, []string{"a"})
	}

	test.That(t, conn.Close(), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, hub.Subscribers(), test.ShouldEqual, 0)
	})
}

func TestHubSkipsSlowSubscribers(t *testing.T) {
	hub := NewStateHub(logging.NewTestLogger(t))
	sub := hub.subscribe()
	state := ros.NewJointTrajectoryControllerState([]string{"a"})
	for i := 0; i < subscriberBuffer+3; i++ {
		test.That(t, hub.Publish(context.Background(), &state), test.ShouldBeNil)
	}
	test.That(t, len(sub.states), test.ShouldEqual, subscriberBuffer)
	test.That(t, hub.Skipped(), test.ShouldEqual, 3)
	hub.unsubscribe(sub)
	test.That(t, hub.Subscribers(), test.ShouldEqual, 0)
}

func TestServeStopsWithContext(t *testing.T) {
	logger := logging.NewTestLogger(t)
	srv := NewServer(&fakeController{}, NewStateHub(logger), Options{Address: "localhost:0"}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()
	cancel()
	select {
	case err := <-done:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestOptionsValidate(t *testing.T) {
	test.That(t, (&Options{IntakeRateLimit: 5, IntakeBurst: 2}).Validate("web"), test.ShouldBeNil)
	test.That(t, (&Options{IntakeRateLimit: -1}).Validate("web"), test.ShouldNotBeNil)
	test.That(t, (&Options{IntakeBurst: -1}).Validate("web"), test.ShouldNotBeNil)
}
