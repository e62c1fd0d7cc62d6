package rsc2_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/rsctool/internal/model"
	"github.com/shinji-kodama/rsctool/internal/rsc2"
	"github.com/shinji-kodama/rsctool/internal/simhost"
)

// newTestHost starts a simulated gateway with the given number of boxes
// and returns it with its http:// URL.
func newTestHost(t *testing.T, boxes int) (*simhost.Server, string) {
	t.Helper()
	sim := simhost.New(boxes, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)
	return sim, srv.URL
}

// connect opens a client connection that is closed when the test ends.
func connect(t *testing.T, url string) *rsc2.Host {
	t.Helper()
	h, err := rsc2.Connect(context.Background(), url, rsc2.Options{CallTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// TestResolveURL covers the accepted host spellings.
func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		want    string
		wantErr bool
	}{
		{"empty uses localhost", "", 0, "ws://localhost:7380/rsc2", false},
		{"bare name", "lab-pc", 0, "ws://lab-pc:7380/rsc2", false},
		{"bare name custom port", "lab-pc", 9000, "ws://lab-pc:9000/rsc2", false},
		{"host and port", "10.0.0.5:8000", 0, "ws://10.0.0.5:8000/rsc2", false},
		{"ipv6", "::1", 0, "ws://[::1]:7380/rsc2", false},
		{"bracketed ipv6 with port", "[::1]:8000", 0, "ws://[::1]:8000/rsc2", false},
		{"http url", "http://127.0.0.1:4000", 0, "ws://127.0.0.1:4000/rsc2", false},
		{"https url without port", "https://gw.example", 0, "wss://gw.example:7380/rsc2", false},
		{"ws url keeps path", "ws://gw:1/custom", 0, "ws://gw:1/custom", false},
		{"unsupported scheme", "ftp://gw", 0, "", true},
		{"bad port", "gw:http", 0, "", true},
		{"port out of range", "gw", 70000, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rsc2.ResolveURL(tt.host, tt.port)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestConnect_Handshake verifies the hello reply and box enumeration.
func TestConnect_Handshake(t *testing.T) {
	_, url := newTestHost(t, 2)
	h := connect(t, url)

	assert.Equal(t, simhost.ServerName, h.Server().Server)
	assert.Equal(t, 2, h.Server().Boxes)
	assert.Contains(t, h.Address(), "/rsc2")
	require.NoError(t, h.Ping(context.Background()))

	n, err := h.NumBoxes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	boxes, err := h.Boxes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, boxes[1].Index)
	assert.Equal(t, model.BoxStatusAvailable, boxes[1].Status)
}

// TestConnect_Unreachable verifies a dead gateway maps to
// ExitHostUnreachable.
func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(simhost.New(1, slog.New(slog.DiscardHandler)))
	url := srv.URL
	srv.Close()

	_, err := rsc2.Connect(context.Background(), url, rsc2.Options{CallTimeout: time.Second})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitHostUnreachable, cliErr.Code)
}

// TestConnect_InvalidHost verifies a malformed host is a usage error.
func TestConnect_InvalidHost(t *testing.T) {
	_, err := rsc2.Connect(context.Background(), "ftp://gw", rsc2.Options{})

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitUsage, cliErr.Code)
}

// TestSignal_SetState switches a relay and reads it back.
func TestSignal_SetState(t *testing.T) {
	sim, url := newTestHost(t, 1)
	h := connect(t, url)
	ctx := context.Background()

	sig, err := h.Box(0).Signal(model.SignalAC1)
	require.NoError(t, err)
	require.NoError(t, sig.SetState(ctx, model.ACOn))

	assert.Equal(t, model.ACOn, sim.SignalState(0, model.SignalAC1))
	state, err := sig.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ACOn, state)

	info, err := sig.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "on", info.StateLabel())
	assert.Equal(t, model.TypeACPort, info.Type)
}

// TestSignal_InputRejected verifies the host refuses to drive LEDs.
func TestSignal_InputRejected(t *testing.T) {
	_, url := newTestHost(t, 1)
	h := connect(t, url)

	sig, err := h.Box(0).Signal(model.SignalLEDPower)
	require.NoError(t, err)

	err = sig.SetState(context.Background(), model.StateAsserted)
	require.Error(t, err)
	assert.ErrorIs(t, err, rsc2.ErrCommandFailed)
	assert.Equal(t, model.ExitSignalFailed, rsc2.ResultOf(err).ExitCode())
	assert.Contains(t, err.Error(), "LED_PWR")
}

// TestSignal_Properties covers rename, type and assertion changes.
func TestSignal_Properties(t *testing.T) {
	_, url := newTestHost(t, 1)
	h := connect(t, url)
	ctx := context.Background()

	sig, err := h.Box(0).Signal(model.SignalOutAuxA)
	require.NoError(t, err)

	require.NoError(t, sig.SetName(ctx, "fan"))
	require.NoError(t, sig.SetType(ctx, model.TypeJumper))
	require.NoError(t, sig.SetAssertionType(ctx, model.ActiveLow))
	assert.Error(t, sig.SetName(ctx, "  "), "empty names are rejected locally")

	info, err := sig.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fan", info.Name)
	assert.Equal(t, "OUT_8", info.GenericName)
	assert.Equal(t, model.TypeJumper, info.Type)
	assert.Equal(t, model.ActiveLow, info.AssertionType)
}

// TestBox_InvalidIndex verifies that handles are lazy and fail on use.
func TestBox_InvalidIndex(t *testing.T) {
	_, url := newTestHost(t, 1)
	h := connect(t, url)

	box := h.Box(3)
	_, err := box.Info(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, rsc2.ErrInvalidObjRef)
	assert.Equal(t, model.ExitNoBox, rsc2.ResultOf(err).ExitCode())

	_, err = h.Box(0).Signal(model.SignalID(42))
	assert.ErrorIs(t, err, rsc2.ErrInvalidObjRef)
}

// TestBox_Settings covers label, KVM address and USB MUX.
func TestBox_Settings(t *testing.T) {
	_, url := newTestHost(t, 1)
	h := connect(t, url)
	ctx := context.Background()
	box := h.Box(0)

	require.NoError(t, box.SetUserLabel(ctx, "bench-3"))
	require.NoError(t, box.SetKvmAddress(ctx, "10.0.0.99"))
	require.NoError(t, box.SetUsbMux(ctx, model.MuxToSUT))
	assert.Error(t, box.SetUsbMux(ctx, model.MuxUnknown))

	info, err := box.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bench-3", info.UserLabel)
	assert.Equal(t, "10.0.0.99", info.KvmAddress)
	assert.Equal(t, model.MuxToSUT, info.UsbMux)
}

// TestBox_Lock verifies that a lock keeps other connections out until they
// lock with the holder's contact, and that it outlives its connection.
func TestBox_Lock(t *testing.T) {
	_, url := newTestHost(t, 1)
	ctx := context.Background()

	alice := connect(t, url)
	require.NoError(t, alice.Box(0).Lock(ctx, "alice@lab"))
	require.NoError(t, alice.Close())

	other := connect(t, url)
	box := other.Box(0)
	sig, err := box.Signal(model.SignalAC1)
	require.NoError(t, err)

	err = sig.SetState(ctx, model.ACOn)
	require.Error(t, err)
	assert.ErrorIs(t, err, rsc2.ErrBoxLocked)
	assert.Contains(t, err.Error(), "alice@lab")

	assert.ErrorIs(t, box.Lock(ctx, "bob@lab"), rsc2.ErrBoxLocked)
	assert.Error(t, box.Lock(ctx, ""))

	require.NoError(t, box.Lock(ctx, "alice@lab"))
	require.NoError(t, sig.SetState(ctx, model.ACOn))

	info, err := box.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.BoxStatusLocked, info.Status)
	assert.Equal(t, "alice@lab", info.LockHolder)

	require.NoError(t, box.Unlock(ctx))
	info, err = box.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.BoxStatusAvailable, info.Status)
	assert.Empty(t, info.LockHolder)
}

// TestBox_Offline verifies requests to an offline box report a lost
// remote object.
func TestBox_Offline(t *testing.T) {
	sim, url := newTestHost(t, 1)
	h := connect(t, url)
	sim.SetOffline(0, true)

	_, err := h.Box(0).Info(context.Background())
	assert.ErrorIs(t, err, rsc2.ErrRemoteObjDisconnected)
	assert.Equal(t, model.ExitHostUnreachable, rsc2.ResultOf(err).ExitCode())
}

// TestHost_FailureText verifies the host's own error text reaches the
// caller.
func TestHost_FailureText(t *testing.T) {
	sim, url := newTestHost(t, 1)
	h := connect(t, url)
	sim.SetFailure(func(req rsc2.Request) (rsc2.Result, string) {
		if req.Op == rsc2.OpSetState {
			return rsc2.ResultCommandFailed, "relay stuck"
		}
		return rsc2.ResultSuccess, ""
	})

	sig, err := h.Box(0).Signal(model.SignalAC2)
	require.NoError(t, err)
	err = sig.SetState(context.Background(), model.ACOn)

	var hostErr *rsc2.Error
	require.True(t, errors.As(err, &hostErr))
	assert.Equal(t, rsc2.OpSetState, hostErr.Op)
	assert.Equal(t, "relay stuck", hostErr.Error())
}

// TestHost_Closed verifies calls after Close fail without panicking.
func TestHost_Closed(t *testing.T) {
	_, url := newTestHost(t, 1)
	h := connect(t, url)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close(), "Close is idempotent")

	_, err := h.NumBoxes(context.Background())
	assert.ErrorIs(t, err, rsc2.ErrRemoteObjDisconnected)
}

// TestBox_PowerCycle walks a two-cycle job through start, continue and
// stop.
func TestBox_PowerCycle(t *testing.T) {
	_, url := newTestHost(t, 1)
	h := connect(t, url)
	ctx := context.Background()
	box := h.Box(0)

	params := model.PwrCycleParams{
		Type:         model.PwrCycleAC,
		Cycles:       2,
		BootTimeout:  30 * time.Second,
		StartOffTime: 5 * time.Second,
		EndOffTime:   10 * time.Second,
		OffTimeStep:  5 * time.Second,
	}
	require.NoError(t, box.PwrCycleStart(ctx, params))

	total, err := box.PwrCycleTotalTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, (5+30+10+30)*time.Second, total)

	status, err := box.PwrCycleStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.InProgress)
	assert.Equal(t, 2, status.RemainingCycles)

	require.NoError(t, box.PwrCycleContinue(ctx))
	status, err = box.PwrCycleStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.RemainingCycles)
	assert.Equal(t, 10*time.Second, status.OffTime)

	require.NoError(t, box.PwrCycleStop(ctx))
	status, err = box.PwrCycleStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.InProgress)

	assert.ErrorIs(t, box.PwrCycleContinue(ctx), rsc2.ErrCommandFailed)
	assert.Error(t, box.PwrCycleStart(ctx, model.PwrCycleParams{Type: model.PwrCycleAC}),
		"zero cycles are rejected locally")
}

// newScriptedHost serves a gateway that answers the handshake normally and
// every later request with reply. A false ok leaves the request unanswered.
func newScriptedHost(t *testing.T, reply func(req rsc2.Request) (rsc2.Response, bool)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()

		for {
			var req rsc2.Request
			if err := wsjson.Read(r.Context(), conn, &req); err != nil {
				return
			}
			resp, ok := rsc2.Response{ID: req.ID}, true
			if req.Op == rsc2.OpHello {
				data, _ := json.Marshal(rsc2.HelloReply{Server: "scripted", Boxes: 1})
				resp.Data = data
			} else {
				resp, ok = reply(req)
			}
			if !ok {
				continue
			}
			if err := wsjson.Write(r.Context(), conn, resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// TestHost_MismatchedReplyID verifies a reply for another request fails the
// call and drops the connection.
func TestHost_MismatchedReplyID(t *testing.T) {
	url := newScriptedHost(t, func(req rsc2.Request) (rsc2.Response, bool) {
		return rsc2.Response{ID: "not-" + req.ID}, true
	})
	h := connect(t, url)

	_, err := h.NumBoxes(context.Background())
	require.Error(t, err)
	assert.Equal(t, rsc2.ResultUnspecified, rsc2.ResultOf(err))
	assert.Contains(t, err.Error(), "does not match request")

	_, err = h.NumBoxes(context.Background())
	assert.Equal(t, rsc2.ResultRemoteObjDisconnected, rsc2.ResultOf(err))
	assert.Contains(t, err.Error(), "connection is closed")
}

// TestHost_CallTimeout verifies an unanswered request is bounded by the
// call timeout and drops the connection.
func TestHost_CallTimeout(t *testing.T) {
	url := newScriptedHost(t, func(req rsc2.Request) (rsc2.Response, bool) {
		return rsc2.Response{}, false
	})
	h, err := rsc2.Connect(context.Background(), url, rsc2.Options{CallTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	start := time.Now()
	_, err = h.NumBoxes(context.Background())
	require.Error(t, err)
	assert.Equal(t, rsc2.ResultRemoteObjDisconnected, rsc2.ResultOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = h.NumBoxes(context.Background())
	assert.Contains(t, err.Error(), "connection is closed")
}
