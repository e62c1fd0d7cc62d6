package rsc2

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shinji-kodama/rsctool/internal/model"
)

// Box is a handle for one RSC2 unit attached to a host.
type Box struct {
	host  *Host
	index int
}

// Index returns the box's position in the host's box list.
func (b *Box) Index() int {
	return b.index
}

// Info fetches the box's current properties.
func (b *Box) Info(ctx context.Context) (model.BoxInfo, error) {
	var info model.BoxInfo
	if err := b.host.call(ctx, OpBoxInfo, b.index, 0, nil, &info); err != nil {
		return model.BoxInfo{}, err
	}
	return info, nil
}

// Signal returns a handle for the signal id on this box. Only the ID is
// validated; the host is not contacted.
func (b *Box) Signal(id model.SignalID) (*Signal, error) {
	if !id.IsValid() {
		return nil, &Error{Op: OpSignalInfo, Code: ResultInvalidObjRef,
			Message: fmt.Sprintf("unknown signal id %d", int(id))}
	}
	return &Signal{box: b, id: id}, nil
}

// Signals fetches a snapshot of every signal on the box.
func (b *Box) Signals(ctx context.Context) ([]model.SignalInfo, error) {
	var signals []model.SignalInfo
	if err := b.host.call(ctx, OpListSignals, b.index, 0, nil, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// SetUserLabel sets the free-form label shown for the box.
func (b *Box) SetUserLabel(ctx context.Context, label string) error {
	return b.host.call(ctx, OpSetUserLabel, b.index, 0, TextArgs{Text: label}, nil)
}

// SetKvmAddress records the address of the KVM unit paired with the box.
func (b *Box) SetKvmAddress(ctx context.Context, address string) error {
	return b.host.call(ctx, OpSetKvmAddress, b.index, 0, TextArgs{Text: address}, nil)
}

// Lock marks the box as in use by contact. While the box is locked the
// host rejects changes from connections that have not locked it with the
// same contact. Locking again with the holder's contact succeeds.
func (b *Box) Lock(ctx context.Context, contact string) error {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return fmt.Errorf("lock contact must not be empty")
	}
	return b.host.call(ctx, OpLockBox, b.index, 0, TextArgs{Text: contact}, nil)
}

// Unlock releases the box's lock.
func (b *Box) Unlock(ctx context.Context) error {
	return b.host.call(ctx, OpUnlockBox, b.index, 0, nil, nil)
}

// SetUsbMux switches the front USB port between host and SUT.
func (b *Box) SetUsbMux(ctx context.Context, state model.UsbMuxState) error {
	if state == model.MuxUnknown || !state.IsValid() {
		return fmt.Errorf("cannot switch USB mux to %s", state)
	}
	return b.host.call(ctx, OpSetUsbMux, b.index, 0, MuxArgs{State: state}, nil)
}

// PwrCycleStart arms firmware driven power cycling. The host returns as
// soon as the firmware accepted the job; use PwrCycleStatus to follow it.
func (b *Box) PwrCycleStart(ctx context.Context, params model.PwrCycleParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	return b.host.call(ctx, OpPwrCycleStart, b.index, 0, params, nil)
}

// PwrCycleStatus reports the progress of power cycling.
func (b *Box) PwrCycleStatus(ctx context.Context) (model.PwrCycleStatus, error) {
	var status model.PwrCycleStatus
	if err := b.host.call(ctx, OpPwrCycleStatus, b.index, 0, nil, &status); err != nil {
		return model.PwrCycleStatus{}, err
	}
	return status, nil
}

// PwrCycleStop aborts power cycling.
func (b *Box) PwrCycleStop(ctx context.Context) error {
	return b.host.call(ctx, OpPwrCycleStop, b.index, 0, nil, nil)
}

// PwrCycleContinue resumes cycling that is waiting for the SUT to boot.
func (b *Box) PwrCycleContinue(ctx context.Context) error {
	return b.host.call(ctx, OpPwrCycleContinue, b.index, 0, nil, nil)
}

// PwrCycleTotalTime returns the estimated duration of the armed cycling job.
func (b *Box) PwrCycleTotalTime(ctx context.Context) (time.Duration, error) {
	var reply TotalTimeReply
	if err := b.host.call(ctx, OpPwrCycleTotalTime, b.index, 0, nil, &reply); err != nil {
		return 0, err
	}
	return reply.Duration(), nil
}
