package model

import (
	"fmt"
	"strings"
	"time"
)

// UsbMuxState is the position of the front-panel USB multiplexer. The port
// can host a drive that is switched between the SUT and the RSC2 host,
// e.g. to drop a startup script on it before booting the SUT.
type UsbMuxState int

const (
	MuxUnknown UsbMuxState = iota
	MuxToHost
	MuxToSUT
	MuxDisconnected
	MuxDisabled
)

var usbMuxNames = []string{"unknown", "host", "sut", "disconnected", "disabled"}

// IsValid reports whether m is a known MUX position.
func (m UsbMuxState) IsValid() bool {
	return m >= MuxUnknown && m <= MuxDisabled
}

// String returns the canonical MUX position name.
func (m UsbMuxState) String() string {
	if !m.IsValid() {
		return fmt.Sprintf("mux(%d)", int(m))
	}
	return usbMuxNames[m]
}

// ParseUsbMuxState converts a position name to a UsbMuxState. "unknown" is
// a report-only value and is rejected.
func ParseUsbMuxState(s string) (UsbMuxState, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	for i := MuxToHost; i <= MuxDisabled; i++ {
		if raw == usbMuxNames[i] {
			return i, nil
		}
	}
	return MuxUnknown, fmt.Errorf("invalid USB mux state: %q (valid: host, sut, disconnected, disabled)", s)
}

// BoxStatus is the availability of an RSC2 box as seen by its host.
type BoxStatus int

const (
	BoxStatusUnknown BoxStatus = iota
	BoxStatusAvailable
	BoxStatusLocked
	BoxStatusOffline
	BoxStatusUpdating
)

var boxStatusNames = []string{"unknown", "available", "locked", "offline", "updating"}

// String returns the canonical status name.
func (s BoxStatus) String() string {
	if s < BoxStatusUnknown || s > BoxStatusUpdating {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return boxStatusNames[s]
}

// BoxInfo is a snapshot of a box's properties as reported by the host.
type BoxInfo struct {
	// Index is the position of the box in the host's box list.
	Index int `json:"index"`

	// Description is the fixed hardware description (model, serial).
	Description string `json:"description"`

	// UserLabel is a free-form label set by users of the box.
	UserLabel string `json:"userLabel"`

	// KvmAddress is the address of the KVM unit paired with the box.
	// The KVM is separate hardware; the host only stores the address.
	KvmAddress string `json:"kvmAddress"`

	// LockHolder is the contact string of whoever locked the box, or empty.
	LockHolder string `json:"lockHolder"`

	Status BoxStatus   `json:"status"`
	UsbMux UsbMuxState `json:"usbMux"`
}

// PwrCycleType selects which supply the firmware cycles during automated
// power cycling.
type PwrCycleType int

const (
	PwrCycleAC   PwrCycleType = 1
	PwrCycleDC   PwrCycleType = 2
	PwrCycleACDC PwrCycleType = 3
)

// String returns "ac", "dc" or "ac-dc".
func (t PwrCycleType) String() string {
	switch t {
	case PwrCycleAC:
		return "ac"
	case PwrCycleDC:
		return "dc"
	case PwrCycleACDC:
		return "ac-dc"
	default:
		return fmt.Sprintf("cycle(%d)", int(t))
	}
}

// ParsePwrCycleType converts "ac", "dc" or "ac-dc" to a PwrCycleType.
func ParsePwrCycleType(s string) (PwrCycleType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ac":
		return PwrCycleAC, nil
	case "dc":
		return PwrCycleDC, nil
	case "ac-dc", "acdc", "both":
		return PwrCycleACDC, nil
	default:
		return 0, fmt.Errorf("invalid power cycle type: %q (valid: ac, dc, ac-dc)", s)
	}
}

// PwrCycleParams configures firmware driven power cycling. Off times are
// swept from StartOffTime to EndOffTime in OffTimeStep increments.
type PwrCycleParams struct {
	Type         PwrCycleType  `json:"type"`
	Cycles       int           `json:"cycles"`
	BootTimeout  time.Duration `json:"bootTimeout"`
	StartOffTime time.Duration `json:"startOffTime"`
	EndOffTime   time.Duration `json:"endOffTime"`
	OffTimeStep  time.Duration `json:"offTimeStep"`
	ACDCDelay    time.Duration `json:"acDcDelay"`
}

// Validate checks the parameters before they are sent to the host.
func (p *PwrCycleParams) Validate() error {
	if p.Type < PwrCycleAC || p.Type > PwrCycleACDC {
		return fmt.Errorf("power cycle: invalid type %d", int(p.Type))
	}
	if p.Cycles < 1 || p.Cycles > 65535 {
		return fmt.Errorf("power cycle: cycle count %d out of range (1-65535)", p.Cycles)
	}
	if p.BootTimeout < 0 || p.StartOffTime < 0 || p.EndOffTime < 0 || p.OffTimeStep < 0 || p.ACDCDelay < 0 {
		return fmt.Errorf("power cycle: durations must not be negative")
	}
	if p.EndOffTime != 0 && p.EndOffTime < p.StartOffTime {
		return fmt.Errorf("power cycle: end off time %s is before start off time %s", p.EndOffTime, p.StartOffTime)
	}
	return nil
}

// PwrCycleStatus reports the progress of firmware driven power cycling.
type PwrCycleStatus struct {
	Type                  PwrCycleType  `json:"type"`
	RemainingCycles       int           `json:"remainingCycles"`
	ContinueWait          time.Duration `json:"continueWait"`
	OffTime               time.Duration `json:"offTime"`
	InProgress            bool          `json:"inProgress"`
	PhaseError            bool          `json:"phaseError"`
	TimedOutWaitingToBoot bool          `json:"timedOutWaitingToBoot"`
}
