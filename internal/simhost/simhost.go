// Package simhost implements an in-memory RSC2 host gateway.
//
// It speaks the same request/response protocol as a real gateway (see
// package rsc2) and keeps every box and signal in memory, so rsctool can be
// exercised without hardware: `rsctool simulate` serves it on a TCP port,
// and the rsc2 and cli tests mount it on an httptest server.
//
// Behaviour mirrors what the real host enforces:
//   - LED and auxiliary input lines reject writes (ResultCommandFailed)
//   - a locked box rejects changes from connections that have not locked
//     it with the holder's contact (ResultBoxLocked); locks outlive the
//     connection that took them
//   - unknown box or signal indices yield ResultInvalidObjRef
package simhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
)

// ServerName is reported in the hello reply.
const ServerName = "rsctool-simhost"

// Event records one state change applied by the simulator.
type Event struct {
	Op     rsc2.Op
	Box    int
	Signal model.SignalID
	State  model.SignalState
	At     time.Time
}

// FailureFunc lets tests make the simulator reject a request. Returning
// ResultSuccess lets the request through.
type FailureFunc func(req rsc2.Request) (rsc2.Result, string)

type box struct {
	info    model.BoxInfo
	signals []model.SignalInfo

	// holders are the sessions that locked the box as info.LockHolder.
	holders map[string]bool

	pwr       model.PwrCycleStatus
	pwrParams model.PwrCycleParams
}

// Server is the simulated gateway. It is an http.Handler.
type Server struct {
	logger *slog.Logger

	mu      sync.Mutex
	boxes   []*box
	history []Event
	fail    FailureFunc
}

// New creates a simulator with n boxes in the standard configuration:
// every signal deasserted, active-high, named after its assigned name.
func New(n int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger.With("component", "simhost")}
	for i := 0; i < n; i++ {
		s.boxes = append(s.boxes, newBox(i))
	}
	return s
}

func newBox(index int) *box {
	b := &box{
		info: model.BoxInfo{
			Index:       index,
			Description: fmt.Sprintf("RSC2 simulated unit #%d", index),
			Status:      model.BoxStatusAvailable,
			UsbMux:      model.MuxToHost,
		},
		holders: make(map[string]bool),
	}
	for _, id := range model.AllSignals() {
		b.signals = append(b.signals, model.SignalInfo{
			ID:            id,
			Name:          id.String(),
			GenericName:   id.GenericName(),
			Type:          id.DefaultType(),
			AssertionType: model.ActiveHigh,
			State:         model.StateDeasserted,
		})
	}
	return b
}

// SetFailure installs (or, with nil, removes) a failure hook.
func (s *Server) SetFailure(f FailureFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = f
}

// SetOffline marks a box as offline; all box and signal requests for it
// then fail with ResultRemoteObjDisconnected.
func (s *Server) SetOffline(index int, offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.boxes) {
		return
	}
	b := s.boxes[index]
	switch {
	case offline:
		b.info.Status = model.BoxStatusOffline
	case b.info.LockHolder != "":
		b.info.Status = model.BoxStatusLocked
	default:
		b.info.Status = model.BoxStatusAvailable
	}
}

// SignalState returns the current state of a signal, for assertions in tests.
func (s *Server) SignalState(index int, id model.SignalID) model.SignalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boxes[index].signals[id].State
}

// History returns the state changes applied so far, oldest first.
func (s *Server) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.history...)
}

// ServeHTTP upgrades the request to a WebSocket and serves requests until
// the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != rsc2.Path {
		http.NotFound(w, r)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	session := uuid.NewString()
	logger := s.logger.With("session", session, "remote", r.RemoteAddr)
	logger.Info("client connected")

	ctx := r.Context()
	for {
		var req rsc2.Request
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				logger.Debug("read failed", "error", err)
			}
			logger.Info("client disconnected")
			s.forget(session)
			return
		}

		resp := s.handle(session, req)
		logger.Debug("request", "op", req.Op, "box", req.Box, "signal", req.Signal, "result", resp.Result)
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			logger.Debug("write failed", "error", err)
			s.forget(session)
			return
		}
	}
}

// ListenAndServe serves the simulator on addr until ctx is cancelled.
// ready, when non-nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// forget drops a closed session from the lock holders. The locks stay.
func (s *Server) forget(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.boxes {
		delete(b.holders, session)
	}
}

func (s *Server) handle(session string, req rsc2.Request) rsc2.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := rsc2.Response{ID: req.ID}
	if s.fail != nil {
		if code, msg := s.fail(req); code != rsc2.ResultSuccess {
			resp.Result, resp.Error = code, msg
			return resp
		}
	}

	data, code, msg := s.dispatch(session, req)
	resp.Result, resp.Error = code, msg
	if code == rsc2.ResultSuccess && data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			resp.Result, resp.Error = rsc2.ResultUnspecified, err.Error()
			return resp
		}
		resp.Data = raw
	}
	return resp
}

func (s *Server) dispatch(session string, req rsc2.Request) (any, rsc2.Result, string) {
	switch req.Op {
	case rsc2.OpHello:
		hostname, _ := os.Hostname()
		return rsc2.HelloReply{Server: ServerName, Hostname: hostname, Boxes: len(s.boxes)}, rsc2.ResultSuccess, ""
	case rsc2.OpListBoxes:
		infos := make([]model.BoxInfo, 0, len(s.boxes))
		for _, b := range s.boxes {
			infos = append(infos, b.info)
		}
		return infos, rsc2.ResultSuccess, ""
	}

	if req.Box < 0 || req.Box >= len(s.boxes) {
		return nil, rsc2.ResultInvalidObjRef, fmt.Sprintf("no box at index %d", req.Box)
	}
	b := s.boxes[req.Box]
	if b.info.Status == model.BoxStatusOffline {
		return nil, rsc2.ResultRemoteObjDisconnected, fmt.Sprintf("box %d is offline", req.Box)
	}

	switch req.Op {
	case rsc2.OpBoxInfo:
		return b.info, rsc2.ResultSuccess, ""
	case rsc2.OpListSignals:
		return b.signals, rsc2.ResultSuccess, ""
	case rsc2.OpPwrCycleStatus:
		return b.pwr, rsc2.ResultSuccess, ""
	case rsc2.OpPwrCycleTotalTime:
		return rsc2.TotalTimeReply{Seconds: int(totalTime(b.pwrParams) / time.Second)}, rsc2.ResultSuccess, ""
	case rsc2.OpSignalInfo:
		sig, code, msg := signalAt(b, req.Signal)
		if code != rsc2.ResultSuccess {
			return nil, code, msg
		}
		return *sig, rsc2.ResultSuccess, ""
	case rsc2.OpLockBox:
		return s.lock(session, b, req)
	}

	// Everything below changes the box.
	if b.info.LockHolder != "" && !b.holders[session] {
		return nil, rsc2.ResultBoxLocked, fmt.Sprintf("box is locked by %s", b.info.LockHolder)
	}

	switch req.Op {
	case rsc2.OpUnlockBox:
		b.info.LockHolder = ""
		b.holders = make(map[string]bool)
		b.info.Status = model.BoxStatusAvailable
		return nil, rsc2.ResultSuccess, ""
	case rsc2.OpSetUserLabel:
		var args rsc2.TextArgs
		if err := decode(req, &args); err != nil {
			return nil, rsc2.ResultCommandFailed, err.Error()
		}
		b.info.UserLabel = args.Text
		return nil, rsc2.ResultSuccess, ""
	case rsc2.OpSetKvmAddress:
		var args rsc2.TextArgs
		if err := decode(req, &args); err != nil {
			return nil, rsc2.ResultCommandFailed, err.Error()
		}
		b.info.KvmAddress = args.Text
		return nil, rsc2.ResultSuccess, ""
	case rsc2.OpSetUsbMux:
		var args rsc2.MuxArgs
		if err := decode(req, &args); err != nil {
			return nil, rsc2.ResultCommandFailed, err.Error()
		}
		if args.State == model.MuxUnknown || !args.State.IsValid() {
			return nil, rsc2.ResultCommandFailed, fmt.Sprintf("invalid mux state %d", int(args.State))
		}
		b.info.UsbMux = args.State
		return nil, rsc2.ResultSuccess, ""
	case rsc2.OpPwrCycleStart, rsc2.OpPwrCycleStop, rsc2.OpPwrCycleContinue:
		return s.powerCycle(b, req)
	case rsc2.OpSetState, rsc2.OpSetAssertionType, rsc2.OpSetSignalName, rsc2.OpSetSignalType:
		return s.updateSignal(b, req)
	}

	return nil, rsc2.ResultNotImplementedYet, fmt.Sprintf("unsupported op %q", req.Op)
}

func (s *Server) lock(session string, b *box, req rsc2.Request) (any, rsc2.Result, string) {
	var args rsc2.TextArgs
	if err := decode(req, &args); err != nil || args.Text == "" {
		return nil, rsc2.ResultCommandFailed, "lock requires a contact string"
	}
	if b.info.LockHolder != "" && b.info.LockHolder != args.Text {
		return nil, rsc2.ResultBoxLocked, fmt.Sprintf("box is locked by %s", b.info.LockHolder)
	}
	b.holders[session] = true
	b.info.LockHolder = args.Text
	b.info.Status = model.BoxStatusLocked
	return nil, rsc2.ResultSuccess, ""
}

func (s *Server) updateSignal(b *box, req rsc2.Request) (any, rsc2.Result, string) {
	sig, code, msg := signalAt(b, req.Signal)
	if code != rsc2.ResultSuccess {
		return nil, code, msg
	}

	switch req.Op {
	case rsc2.OpSetState:
		var args rsc2.StateArgs
		if err := decode(req, &args); err != nil || !args.State.IsValid() {
			return nil, rsc2.ResultCommandFailed, "invalid state"
		}
		if !sig.ID.IsOutput() {
			return nil, rsc2.ResultCommandFailed, fmt.Sprintf("signal %s is an input", sig.ID)
		}
		sig.State = args.State
		s.history = append(s.history, Event{
			Op: req.Op, Box: req.Box, Signal: sig.ID, State: args.State, At: time.Now(),
		})
	case rsc2.OpSetAssertionType:
		var args rsc2.AssertionArgs
		if err := decode(req, &args); err != nil || !args.Type.IsValid() {
			return nil, rsc2.ResultCommandFailed, "invalid assertion type"
		}
		sig.AssertionType = args.Type
	case rsc2.OpSetSignalName:
		var args rsc2.TextArgs
		if err := decode(req, &args); err != nil || args.Text == "" {
			return nil, rsc2.ResultCommandFailed, "invalid name"
		}
		sig.Name = args.Text
	case rsc2.OpSetSignalType:
		var args rsc2.TypeArgs
		if err := decode(req, &args); err != nil || !args.Type.IsValid() {
			return nil, rsc2.ResultCommandFailed, "invalid signal type"
		}
		sig.Type = args.Type
	}
	return nil, rsc2.ResultSuccess, ""
}

func (s *Server) powerCycle(b *box, req rsc2.Request) (any, rsc2.Result, string) {
	switch req.Op {
	case rsc2.OpPwrCycleStart:
		var params model.PwrCycleParams
		if err := decode(req, &params); err != nil {
			return nil, rsc2.ResultCommandFailed, err.Error()
		}
		if err := params.Validate(); err != nil {
			return nil, rsc2.ResultCommandFailed, err.Error()
		}
		if b.pwr.InProgress {
			return nil, rsc2.ResultCommandFailed, "power cycling already in progress"
		}
		b.pwrParams = params
		b.pwr = model.PwrCycleStatus{
			Type:            params.Type,
			RemainingCycles: params.Cycles,
			ContinueWait:    params.BootTimeout,
			OffTime:         params.StartOffTime,
			InProgress:      true,
		}
	case rsc2.OpPwrCycleStop:
		b.pwr.InProgress = false
	case rsc2.OpPwrCycleContinue:
		if !b.pwr.InProgress {
			return nil, rsc2.ResultCommandFailed, "no power cycling in progress"
		}
		b.pwr.RemainingCycles--
		if next := b.pwr.OffTime + b.pwrParams.OffTimeStep; b.pwrParams.EndOffTime == 0 || next <= b.pwrParams.EndOffTime {
			b.pwr.OffTime = next
		}
		if b.pwr.RemainingCycles <= 0 {
			b.pwr.RemainingCycles = 0
			b.pwr.InProgress = false
		}
	}
	return nil, rsc2.ResultSuccess, ""
}

// totalTime estimates the duration of a cycling job: for each cycle the
// off time (swept from start to end) plus the boot timeout, plus the AC/DC
// delay when both supplies are cycled.
func totalTime(p model.PwrCycleParams) time.Duration {
	var total time.Duration
	off := p.StartOffTime
	for i := 0; i < p.Cycles; i++ {
		total += off + p.BootTimeout
		if p.Type == model.PwrCycleACDC {
			total += p.ACDCDelay
		}
		if next := off + p.OffTimeStep; p.EndOffTime == 0 || next <= p.EndOffTime {
			off = next
		}
	}
	return total
}

func signalAt(b *box, index int) (*model.SignalInfo, rsc2.Result, string) {
	id := model.SignalID(index)
	if !id.IsValid() {
		return nil, rsc2.ResultInvalidObjRef, fmt.Sprintf("no signal with id %d", index)
	}
	return &b.signals[id], rsc2.ResultSuccess, ""
}

func decode(req rsc2.Request, v any) error {
	if len(req.Args) == 0 {
		return fmt.Errorf("%s: missing arguments", req.Op)
	}
	if err := json.Unmarshal(req.Args, v); err != nil {
		return fmt.Errorf("%s: %w", req.Op, err)
	}
	return nil
}
