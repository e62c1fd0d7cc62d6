package rsc2

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/shinji-kodama/rsctool/internal/model"
)

const (
	// DefaultHost is used when no host is configured: the gateway usually
	// runs on the lab PC the boxes are cabled to.
	DefaultHost = "localhost"

	// DefaultPort is the gateway's listening port.
	DefaultPort = 7380

	// Path is the WebSocket endpoint served by the gateway.
	Path = "/rsc2"

	// DefaultCallTimeout bounds a single request when the caller's context
	// has no deadline of its own.
	DefaultCallTimeout = 10 * time.Second

	// defaultPingTimeout is the maximum duration to wait for the hello
	// reply during Ping.
	defaultPingTimeout = 5 * time.Second
)

// Options tune a connection. The zero value is usable.
type Options struct {
	// Port is used when the host string carries no port. Zero means DefaultPort.
	Port int

	// CallTimeout bounds requests whose context has no deadline.
	// Zero means DefaultCallTimeout; negative disables the bound.
	CallTimeout time.Duration

	// Logger receives per-request debug records. Nil means slog.Default().
	Logger *slog.Logger
}

// Host is a connection to an RSC2 host gateway.
//
// Requests are serialized: a Host can be shared between goroutines but
// only one request is on the wire at a time, and each reply is matched to
// its request by ID.
//
// Usage:
//
//	h, err := rsc2.Connect(ctx, "localhost", rsc2.Options{})
//	if err != nil { /* handle */ }
//	defer h.Close()
//	n, err := h.NumBoxes(ctx)
type Host struct {
	address     string
	callTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	hello HelloReply
}

// Connect opens a connection to the gateway on host and performs the hello
// handshake.
//
// host may be a bare name or IP ("lab-pc", "10.0.0.5"), a host:port pair,
// or a full ws://, wss://, http:// or https:// URL.
//
// Returns a model.CLIError with ExitHostUnreachable if the gateway cannot
// be reached or does not answer the handshake.
func Connect(ctx context.Context, host string, opts Options) (*Host, error) {
	address, err := ResolveURL(host, opts.Port)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitUsage, fmt.Sprintf("invalid host %q", host), err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	callTimeout := opts.CallTimeout
	if callTimeout == 0 {
		callTimeout = DefaultCallTimeout
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok && callTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(dialCtx, address, nil)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitHostUnreachable,
			fmt.Sprintf("unable to connect to host %q", host),
			err,
		)
	}

	h := &Host{
		address:     address,
		callTimeout: callTimeout,
		logger:      logger.With("host", address),
		conn:        conn,
	}

	if err := h.call(ctx, OpHello, 0, 0, nil, &h.hello); err != nil {
		_ = h.Close()
		return nil, model.WrapCLIError(
			model.ExitHostUnreachable,
			fmt.Sprintf("host %q did not answer the handshake", host),
			err,
		)
	}

	h.logger.Debug("connected to rsc2 host", "server", h.hello.Server, "boxes", h.hello.Boxes)
	return h, nil
}

// ResolveURL turns a user supplied host into the gateway's WebSocket URL.
// port is used when host carries none; zero means DefaultPort.
func ResolveURL(host string, port int) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("port %d out of range (1-65535)", port)
	}

	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return "", err
		}
		switch u.Scheme {
		case "ws", "wss":
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		default:
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return "", fmt.Errorf("missing host name")
		}
		if u.Port() == "" {
			u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
		}
		if u.Path == "" || u.Path == "/" {
			u.Path = Path
		}
		return u.String(), nil
	}

	// host:port, [v6]:port, or a bare name / address.
	if h, p, err := net.SplitHostPort(host); err == nil {
		if _, err := strconv.Atoi(p); err != nil {
			return "", fmt.Errorf("invalid port %q", p)
		}
		return (&url.URL{Scheme: "ws", Host: net.JoinHostPort(h, p), Path: Path}).String(), nil
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return (&url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: Path}).String(), nil
}

// Address returns the gateway URL this host is connected to.
func (h *Host) Address() string {
	return h.address
}

// Server returns the gateway's self description from the handshake.
func (h *Host) Server() HelloReply {
	return h.hello
}

// Ping verifies that the gateway is still responsive.
func (h *Host) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	var hello HelloReply
	return h.call(pingCtx, OpHello, 0, 0, nil, &hello)
}

// Boxes lists the boxes attached to the host.
func (h *Host) Boxes(ctx context.Context) ([]model.BoxInfo, error) {
	var boxes []model.BoxInfo
	if err := h.call(ctx, OpListBoxes, 0, 0, nil, &boxes); err != nil {
		return nil, err
	}
	return boxes, nil
}

// NumBoxes returns how many boxes are attached to the host.
func (h *Host) NumBoxes(ctx context.Context) (int, error) {
	boxes, err := h.Boxes(ctx)
	if err != nil {
		return 0, err
	}
	return len(boxes), nil
}

// Box returns a handle for the box at index. No request is made; an index
// the host does not know fails on first use with ErrInvalidObjRef.
func (h *Host) Box(index int) *Box {
	return &Box{host: h, index: index}
}

// Close shuts the connection down. It is safe to call more than once.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return nil
	}
	err := h.conn.Close(websocket.StatusNormalClosure, "")
	h.conn = nil
	return err
}

// call sends one request and decodes the reply data into out (if non-nil).
func (h *Host) call(ctx context.Context, op Op, box, signal int, args, out any) error {
	req := Request{
		ID:     uuid.NewString(),
		Op:     op,
		Box:    box,
		Signal: signal,
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encode %s arguments: %w", op, err)
		}
		req.Args = raw
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return &Error{Op: op, Code: ResultRemoteObjDisconnected, Message: "connection is closed"}
	}

	if _, ok := ctx.Deadline(); !ok && h.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.callTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := wsjson.Write(ctx, h.conn, req); err != nil {
		h.drop()
		return disconnected(op, err)
	}

	var resp Response
	if err := wsjson.Read(ctx, h.conn, &resp); err != nil {
		h.drop()
		return disconnected(op, err)
	}

	h.logger.Debug("rsc2 call", "op", op, "box", box, "signal", signal,
		"result", resp.Result, "elapsed", time.Since(start))

	if resp.ID != req.ID {
		h.drop()
		return &Error{Op: op, Code: ResultUnspecified,
			Message: fmt.Sprintf("reply %q does not match request %q", resp.ID, req.ID)}
	}
	if resp.Result != ResultSuccess {
		return &Error{Op: op, Code: resp.Result, Message: resp.Error}
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode %s reply: %w", op, err)
		}
	}
	return nil
}

// drop discards a connection that can no longer be trusted to be in sync.
// The caller holds h.mu.
func (h *Host) drop() {
	if h.conn != nil {
		_ = h.conn.CloseNow()
		h.conn = nil
	}
}
