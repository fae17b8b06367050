// Package web serves the controller over HTTP: trajectory intake, stop requests, lifecycle and
// state queries, and a websocket stream of controller state.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"
	"golang.org/x/time/rate"

	"go.viam.com/jtc/controller"
	"go.viam.com/jtc/lifecycle"
	"go.viam.com/jtc/logging"
	"go.viam.com/jtc/ros"
	"go.viam.com/jtc/trajectory"
)

// maxBodyBytes bounds a trajectory request body.
const maxBodyBytes = 8 << 20

const writeWait = time.Second

// Controller is what the server needs from a trajectory controller.
type Controller interface {
	AcceptTrajectory(ctx context.Context, msg *ros.JointTrajectory) (string, error)
	Stop(ctx context.Context) error
	State() lifecycle.State
	Stats() controller.Stats
}

// Options configures the server.
type Options struct {
	// Address to listen on, e.g. "localhost:8080".
	Address string `json:"address,omitempty"`
	// IntakeRateLimit caps accepted trajectory requests per second. Zero means unlimited.
	IntakeRateLimit float64 `json:"intake_rate_limit,omitempty"`
	// IntakeBurst is the number of requests allowed at once. Defaults to 1.
	IntakeBurst int `json:"intake_burst,omitempty"`
}

// Validate ensures all parts of the options are valid.
func (opts *Options) Validate(path string) error {
	if opts.IntakeRateLimit < 0 {
		return utils.NewConfigValidationError(path, errors.New("intake_rate_limit cannot be negative"))
	}
	if opts.IntakeBurst < 0 {
		return utils.NewConfigValidationError(path, errors.New("intake_burst cannot be negative"))
	}
	return nil
}

// Server is the HTTP surface of a controller.
type Server struct {
	ctrl     Controller
	hub      *StateHub
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	options  Options
	logger   logging.Logger
}

// NewServer returns a server for ctrl streaming state from hub.
func NewServer(ctrl Controller, hub *StateHub, options Options, logger logging.Logger) *Server {
	limit := rate.Inf
	if options.IntakeRateLimit > 0 {
		limit = rate.Limit(options.IntakeRateLimit)
	}
	burst := options.IntakeBurst
	if burst == 0 {
		burst = 1
	}
	return &Server{
		ctrl:    ctrl,
		hub:     hub,
		limiter: rate.NewLimiter(limit, burst),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		options: options,
		logger:  logger,
	}
}

// Handler returns the server's routes wrapped in a permissive CORS handler.
func (s *Server) Handler() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Post("/trajectory"), s.handleTrajectory)
	mux.HandleFunc(pat.Post("/halt"), s.handleHalt)
	mux.HandleFunc(pat.Get("/state"), s.handleState)
	mux.HandleFunc(pat.Get("/state/stream"), s.handleStateStream)
	mux.HandleFunc(pat.Get("/lifecycle"), s.handleLifecycle)
	mux.HandleFunc(pat.Get("/stats"), s.handleStats)
	return cors.AllowAll().Handler(mux)
}

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.options.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Addr:              listener.Addr().String(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           s.Handler(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	utils.PanicCapturingGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("error shutting down", "error", err)
		}
	})

	s.logger.Infow("serving", "url", "http://"+listener.Addr().String())
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

type acceptedResponse struct {
	ID string `json:"id"`
}

type lifecycleResponse struct {
	State string `json:"state"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("error writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.writeError(w, http.StatusTooManyRequests, errors.New("trajectory rate limit exceeded"))
		return
	}
	var msg ros.JointTrajectory
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decoding trajectory"))
		return
	}
	id, err := s.ctrl.AcceptTrajectory(r.Context(), &msg)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id})
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state := s.hub.Latest()
	if state == nil {
		s.writeError(w, http.StatusNotFound, errors.New("no state published yet"))
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, lifecycleResponse{State: s.ctrl.State().String()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Stats())
}

// handleStateStream writes every published state to a websocket until either side goes away.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer utils.UncheckedErrorFunc(conn.Close)

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reads only detect the peer closing; incoming messages are discarded.
	utils.PanicCapturingGo(func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-sub.states:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(state); err != nil {
				s.logger.Debugw("state stream closed", "error", err)
				return
			}
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, trajectory.ErrInvalidTrajectory):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrNotActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
