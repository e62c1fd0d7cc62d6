package relay

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/rsctool/internal/model"
)

type call struct {
	id    model.SignalID
	state model.SignalState
	at    time.Time
}

// fakeBox records every SetState call and fails for the signals in failOn.
type fakeBox struct {
	calls  []call
	failOn map[model.SignalID]error
}

type fakeSwitch struct {
	box *fakeBox
	id  model.SignalID
}

func (s fakeSwitch) SetState(_ context.Context, state model.SignalState) error {
	if err := s.box.failOn[s.id]; err != nil {
		return err
	}
	s.box.calls = append(s.box.calls, call{id: s.id, state: state, at: time.Now()})
	return nil
}

func (b *fakeBox) Resolve(id model.SignalID) (Switch, error) {
	return fakeSwitch{box: b, id: id}, nil
}

// TestACPower verifies the order and progress messages of the relay
// sequence.
func TestACPower(t *testing.T) {
	seq := ACPower(model.ACOn, 5*time.Millisecond)

	require.Len(t, seq.Steps, 2)
	assert.Equal(t, model.SignalAC1, seq.Steps[0].Signal)
	assert.Equal(t, model.SignalAC2, seq.Steps[1].Signal)
	assert.Equal(t, "press down ac a switch", seq.Steps[0].Message)
	assert.Equal(t, "press down ac b switch", seq.Steps[1].Message)
	assert.Equal(t, 5*time.Millisecond, seq.Delay)
	assert.Equal(t, "AC_1=on", seq.Steps[0].String())
}

// TestRun_OnAndOff checks that both relays receive the requested state in
// order with at least the configured delay between them.
func TestRun_OnAndOff(t *testing.T) {
	for _, state := range []model.SignalState{model.ACOn, model.ACOff} {
		t.Run(state.Label(model.TypeACPort), func(t *testing.T) {
			box := &fakeBox{}
			delay := 20 * time.Millisecond

			var progressed []int
			n, err := Run(context.Background(), box, ACPower(state, delay), func(i int, _ Step) {
				progressed = append(progressed, i)
			}, nil)

			require.NoError(t, err)
			assert.Equal(t, 2, n)
			assert.Equal(t, []int{0, 1}, progressed)
			require.Len(t, box.calls, 2)
			assert.Equal(t, model.SignalAC1, box.calls[0].id)
			assert.Equal(t, model.SignalAC2, box.calls[1].id)
			assert.Equal(t, state, box.calls[0].state)
			assert.Equal(t, state, box.calls[1].state)
			assert.GreaterOrEqual(t, box.calls[1].at.Sub(box.calls[0].at), delay)
		})
	}
}

// TestRun_FailFast verifies that a failure on the second relay leaves the
// first one switched and reports the failing step.
func TestRun_FailFast(t *testing.T) {
	boom := errors.New("relay stuck")
	box := &fakeBox{failOn: map[model.SignalID]error{model.SignalAC2: boom}}

	n, err := Run(context.Background(), box, ACPower(model.ACOn, 0), nil, nil)

	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, model.SignalAC2, stepErr.Step.Signal)

	require.Len(t, box.calls, 1, "no rollback of the first relay")
	assert.Equal(t, model.SignalAC1, box.calls[0].id)
}

// TestRun_FirstStepFails verifies nothing after the first failure runs.
func TestRun_FirstStepFails(t *testing.T) {
	box := &fakeBox{failOn: map[model.SignalID]error{model.SignalAC1: errors.New("locked")}}

	// The caller reports the returned error; Run only traces it.
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	n, err := Run(context.Background(), box, ACPower(model.ACOff, 0), nil, logger)

	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, box.calls)
	assert.Empty(t, logs.String())
}

// TestRun_ResolveFailure checks that resolution happens before any
// actuation.
func TestRun_ResolveFailure(t *testing.T) {
	box := &fakeBox{}
	r := ResolverFunc(func(id model.SignalID) (Switch, error) {
		if id == model.SignalAC2 {
			return nil, errors.New("no such signal")
		}
		return box.Resolve(id)
	})

	n, err := Run(context.Background(), r, ACPower(model.ACOn, 0), nil, nil)

	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, box.calls)
}

// TestRun_CancelDuringDelay verifies that cancelling the context stops the
// sequence between steps.
func TestRun_CancelDuringDelay(t *testing.T) {
	box := &fakeBox{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := Run(ctx, box, ACPower(model.ACOn, time.Minute), nil, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, n)
	assert.Len(t, box.calls, 1)
}

// TestSequence_Validate covers the pre-flight checks.
func TestSequence_Validate(t *testing.T) {
	tests := []struct {
		name    string
		seq     Sequence
		wantErr bool
	}{
		{"valid", ACPower(model.ACOn, time.Second), false},
		{"empty", Sequence{}, true},
		{"negative delay", Sequence{Steps: []Step{{Signal: model.SignalAC1}}, Delay: -1}, true},
		{"unknown signal", Sequence{Steps: []Step{{Signal: 99}}}, true},
		{"input signal", Sequence{Steps: []Step{{Signal: model.SignalLEDPower}}}, true},
		{"bad state", Sequence{Steps: []Step{{Signal: model.SignalAC1, State: 7}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seq.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
