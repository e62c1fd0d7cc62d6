package rsc2

import (
	"context"
	"fmt"
	"strings"

	"github.com/shinji-kodama/rsctool/internal/model"
)

// Signal is a handle for one line of a box.
type Signal struct {
	box *Box
	id  model.SignalID
}

// ID returns the signal's identifier.
func (s *Signal) ID() model.SignalID {
	return s.id
}

// String returns the assigned name of the signal.
func (s *Signal) String() string {
	return s.id.String()
}

// Info fetches the signal's current name, type and state.
func (s *Signal) Info(ctx context.Context) (model.SignalInfo, error) {
	var info model.SignalInfo
	if err := s.call(ctx, OpSignalInfo, nil, &info); err != nil {
		return model.SignalInfo{}, err
	}
	return info, nil
}

// State reads the signal's current logical state.
func (s *Signal) State(ctx context.Context) (model.SignalState, error) {
	info, err := s.Info(ctx)
	if err != nil {
		return model.StateDeasserted, err
	}
	return info.State, nil
}

// SetState asserts or deasserts the signal. For AC ports this switches the
// relay; for buttons it holds the button down until released.
func (s *Signal) SetState(ctx context.Context, state model.SignalState) error {
	if !state.IsValid() {
		return fmt.Errorf("invalid signal state %d", int(state))
	}
	return s.call(ctx, OpSetState, StateArgs{State: state}, nil)
}

// SetAssertionType changes how the raw level maps to the logical state.
func (s *Signal) SetAssertionType(ctx context.Context, t model.AssertionType) error {
	if !t.IsValid() {
		return fmt.Errorf("invalid assertion type %d", int(t))
	}
	return s.call(ctx, OpSetAssertionType, AssertionArgs{Type: t}, nil)
}

// SetName sets the user defined name. The generic name never changes.
func (s *Signal) SetName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("signal name must not be empty")
	}
	return s.call(ctx, OpSetSignalName, TextArgs{Text: name}, nil)
}

// SetType changes how the signal is presented (button, jumper, ...).
func (s *Signal) SetType(ctx context.Context, t model.SignalType) error {
	if !t.IsValid() {
		return fmt.Errorf("invalid signal type %d", int(t))
	}
	return s.call(ctx, OpSetSignalType, TypeArgs{Type: t}, nil)
}

func (s *Signal) call(ctx context.Context, op Op, args, out any) error {
	return s.box.host.call(ctx, op, s.box.index, int(s.id), args, out)
}
