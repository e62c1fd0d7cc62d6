// Package relay drives ordered signal sequences on an RSC2 box.
//
// A Sequence is a list of steps (signal + state) applied one at a time with
// a fixed settle delay after each step. The box does not acknowledge that a
// relay has physically switched, so the delay is the only thing keeping two
// AC ports from switching at the same instant.
//
// Sequences are fail-fast: the first step that fails stops the run and
// nothing is rolled back. Steps that already succeeded stay applied.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shinji-kodama/rsctool/internal/model"
)

// DefaultDelay is the settle time after each step.
const DefaultDelay = time.Millisecond

// Switch is a single settable line.
type Switch interface {
	SetState(ctx context.Context, state model.SignalState) error
}

// Resolver looks up the line for a signal ID.
type Resolver interface {
	Resolve(id model.SignalID) (Switch, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(id model.SignalID) (Switch, error)

// Resolve calls f(id).
func (f ResolverFunc) Resolve(id model.SignalID) (Switch, error) {
	return f(id)
}

// Step is one actuation.
type Step struct {
	Signal model.SignalID
	State  model.SignalState

	// Message is the progress line shown before the step runs. May be empty.
	Message string
}

func (s Step) String() string {
	return fmt.Sprintf("%s=%s", s.Signal, s.State.Label(s.Signal.DefaultType()))
}

// Sequence is an ordered list of steps with a settle delay.
type Sequence struct {
	Steps []Step
	Delay time.Duration
}

// StepError reports which step of a sequence failed.
type StepError struct {
	Index int
	Step  Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ACPower returns the sequence that switches both AC ports of a box:
// AC_1 first, then AC_2.
func ACPower(state model.SignalState, delay time.Duration) Sequence {
	return ACPowerFor([]model.SignalID{model.SignalAC1, model.SignalAC2}, state, delay)
}

// ACPowerFor is ACPower for a custom list of relay lines, switched in order.
// The progress messages name the relays "ac a", "ac b", ...
func ACPowerFor(relays []model.SignalID, state model.SignalState, delay time.Duration) Sequence {
	seq := Sequence{Delay: delay}
	for i, id := range relays {
		seq.Steps = append(seq.Steps, Step{
			Signal:  id,
			State:   state,
			Message: fmt.Sprintf("press down ac %c switch", 'a'+rune(i%26)),
		})
	}
	return seq
}

// Validate rejects empty sequences, unknown or read-only signals, and
// negative delays before anything is sent to the box.
func (s Sequence) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("sequence has no steps")
	}
	if s.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", s.Delay)
	}
	for i, step := range s.Steps {
		if !step.Signal.IsValid() {
			return fmt.Errorf("step %d: unknown signal %d", i+1, int(step.Signal))
		}
		if !step.Signal.IsOutput() {
			return fmt.Errorf("step %d: signal %s is an input and cannot be set", i+1, step.Signal)
		}
		if !step.State.IsValid() {
			return fmt.Errorf("step %d: invalid state %d", i+1, int(step.State))
		}
	}
	return nil
}

// Progress is called before each step runs.
type Progress func(index int, step Step)

// Run applies the sequence in order. It returns the number of steps that
// completed. On failure the error is a *StepError naming the failed step;
// cancelling ctx during a delay stops the run with ctx.Err().
func Run(ctx context.Context, r Resolver, seq Sequence, progress Progress, logger *slog.Logger) (int, error) {
	if err := seq.Validate(); err != nil {
		return 0, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Resolve every line up front so a bad signal never leaves the box
	// half switched.
	switches := make([]Switch, len(seq.Steps))
	for i, step := range seq.Steps {
		sw, err := r.Resolve(step.Signal)
		if err != nil {
			return 0, &StepError{Index: i, Step: step, Err: err}
		}
		switches[i] = sw
	}

	for i, step := range seq.Steps {
		if progress != nil {
			progress(i, step)
		}
		logger.Info("setting signal", "step", i+1, "signal", step.Signal.String(),
			"state", step.State.Label(step.Signal.DefaultType()))

		if err := switches[i].SetState(ctx, step.State); err != nil {
			logger.Debug("signal change failed", "step", i+1, "signal", step.Signal.String(), "error", err)
			return i, &StepError{Index: i, Step: step, Err: err}
		}

		if err := sleep(ctx, seq.Delay); err != nil {
			return i + 1, err
		}
	}
	return len(seq.Steps), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
