package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SignalID identifies an addressable line on an RSC2 box.
//
// Every line has an "assigned" name that describes its role when the box's
// cable harness is attached to the system under test (SUT) in the standard
// configuration, e.g. FPBUT_PWR for the SUT's power button. Lines 0..15 also
// have a "generic" name (OUT_1..OUT_10, INP_1..INP_6) for setups that use
// them as general purpose I/O. Both names refer to the same line.
type SignalID int

const (
	SignalFPButPower      SignalID = 0
	SignalFPButReset      SignalID = 1
	SignalFPButID         SignalID = 2
	SignalJmpMfgMode      SignalID = 3
	SignalJmpClearCMOS    SignalID = 4
	SignalJmpBMCForceUpd  SignalID = 5
	SignalJmpBIOSRecovery SignalID = 6
	SignalOutAuxA         SignalID = 7
	SignalOutAuxB         SignalID = 8
	SignalOutAuxC         SignalID = 9
	SignalLEDPower        SignalID = 10
	SignalLEDStatusGreen  SignalID = 11
	SignalLEDStatusAmber  SignalID = 12
	SignalLEDIDBlue       SignalID = 13
	SignalInpAuxA         SignalID = 14
	SignalInpAuxB         SignalID = 15
	SignalAC1             SignalID = 16
	SignalAC2             SignalID = 17
)

const (
	numSignals              = 18
	numGenericOutputSignals = 10
	signalPrefix            = "RSC2_ID_"
	firstInputSignal        = SignalLEDPower
	lastInputSignal         = SignalInpAuxB
)

// assignedNames is indexed by SignalID.
var assignedNames = [numSignals]string{
	"FPBUT_PWR",
	"FPBUT_RESET",
	"FPBUT_ID",
	"JMP_MFG_MODE",
	"JMP_CLR_CMOS",
	"JMP_BMC_FRC_UPD",
	"JMP_BIOS_RECOVERY",
	"OUT_AUX_A",
	"OUT_AUX_B",
	"OUT_AUX_C",
	"LED_PWR",
	"LED_STATUS_GREEN",
	"LED_STATUS_AMBER",
	"LED_ID_BLUE",
	"INP_AUX_A",
	"INP_AUX_B",
	"AC_1",
	"AC_2",
}

// AllSignals returns every signal ID in ascending order.
func AllSignals() []SignalID {
	ids := make([]SignalID, numSignals)
	for i := range ids {
		ids[i] = SignalID(i)
	}
	return ids
}

// IsValid reports whether id is a known signal.
func (id SignalID) IsValid() bool {
	return id >= 0 && id < numSignals
}

// String returns the assigned name (e.g. "AC_1"), or "SIGNAL(n)" for
// unknown values.
func (id SignalID) String() string {
	if !id.IsValid() {
		return fmt.Sprintf("SIGNAL(%d)", int(id))
	}
	return assignedNames[id]
}

// GenericName returns the general purpose name of the line (OUT_n or INP_n).
// The AC ports have no generic alias, so their assigned name is returned.
func (id SignalID) GenericName() string {
	switch {
	case !id.IsValid():
		return id.String()
	case id < firstInputSignal:
		return fmt.Sprintf("OUT_%d", int(id)+1)
	case id <= lastInputSignal:
		return fmt.Sprintf("INP_%d", int(id-firstInputSignal)+1)
	default:
		return id.String()
	}
}

// IsOutput reports whether the box drives the line. LEDs and the auxiliary
// inputs are read from the SUT and cannot be set.
func (id SignalID) IsOutput() bool {
	return id.IsValid() && (id < firstInputSignal || id > lastInputSignal)
}

// DefaultType returns the signal type of the line in the standard harness
// configuration.
func (id SignalID) DefaultType() SignalType {
	switch {
	case id <= SignalFPButID:
		return TypeButton
	case id <= SignalJmpBIOSRecovery:
		return TypeJumper
	case id <= SignalOutAuxC:
		return TypeGPIO
	case id <= SignalLEDIDBlue:
		return TypeLED
	case id <= SignalInpAuxB:
		return TypeGPIO
	default:
		return TypeACPort
	}
}

// ParseSignalID resolves a user supplied signal reference. It accepts the
// assigned name ("AC_1"), the generic name ("OUT_3"), either with the
// "RSC2_ID_" prefix, or a decimal ID. Matching is case-insensitive.
func ParseSignalID(s string) (SignalID, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	raw = strings.TrimPrefix(raw, signalPrefix)
	if raw == "" {
		return 0, fmt.Errorf("signal must not be empty")
	}

	if n, err := strconv.Atoi(raw); err == nil {
		id := SignalID(n)
		if !id.IsValid() {
			return 0, fmt.Errorf("invalid signal id %d (valid: 0-%d)", n, numSignals-1)
		}
		return id, nil
	}

	for i, name := range assignedNames {
		if raw == name {
			return SignalID(i), nil
		}
	}

	if n, ok := parseGenericIndex(raw, "OUT_"); ok && n >= 1 && n <= numGenericOutputSignals {
		return SignalID(n - 1), nil
	}
	if n, ok := parseGenericIndex(raw, "INP_"); ok && n >= 1 && n <= int(lastInputSignal-firstInputSignal)+1 {
		return firstInputSignal + SignalID(n-1), nil
	}

	return 0, fmt.Errorf("unknown signal %q", s)
}

func parseGenericIndex(raw, prefix string) (int, bool) {
	if !strings.HasPrefix(raw, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(raw, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// SignalState is the logical value applied to or read from a signal.
// The host stores only 0 or 1; the type-specific words (on/off,
// pressed/released, ...) are synonyms for the same two values.
type SignalState int

const (
	StateDeasserted SignalState = 0
	StateAsserted   SignalState = 1
)

// Type specific synonyms, kept as named constants so call sites read
// naturally (relay.ACPower(model.ACOn)).
const (
	ACOn           = StateAsserted
	ACOff          = StateDeasserted
	ButtonPressed  = StateAsserted
	ButtonReleased = StateDeasserted
	JumperEnabled  = StateAsserted
	JumperDisabled = StateDeasserted
	LEDOn          = StateAsserted
	LEDOff         = StateDeasserted
)

var stateSynonyms = map[string]SignalState{
	"1":          StateAsserted,
	"asserted":   StateAsserted,
	"assert":     StateAsserted,
	"on":         StateAsserted,
	"pressed":    StateAsserted,
	"press":      StateAsserted,
	"enabled":    StateAsserted,
	"enable":     StateAsserted,
	"lit":        StateAsserted,
	"0":          StateDeasserted,
	"deasserted": StateDeasserted,
	"deassert":   StateDeasserted,
	"off":        StateDeasserted,
	"released":   StateDeasserted,
	"release":    StateDeasserted,
	"disabled":   StateDeasserted,
	"disable":    StateDeasserted,
	"dark":       StateDeasserted,
}

// IsValid reports whether s is 0 or 1.
func (s SignalState) IsValid() bool {
	return s == StateAsserted || s == StateDeasserted
}

// String returns the generic state name.
func (s SignalState) String() string {
	return s.Label(TypeGPIO)
}

// Label returns the state name appropriate for a signal of type t,
// e.g. "on" for an AC port or "pressed" for a button.
func (s SignalState) Label(t SignalType) string {
	on := s == StateAsserted
	switch t {
	case TypeACPort:
		return pick(on, "on", "off")
	case TypeButton:
		return pick(on, "pressed", "released")
	case TypeJumper:
		return pick(on, "enabled", "disabled")
	case TypeLED:
		return pick(on, "lit", "dark")
	default:
		return pick(on, "asserted", "deasserted")
	}
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

// ParseSignalState converts any of the state synonyms to a SignalState.
func ParseSignalState(s string) (SignalState, error) {
	state, ok := stateSynonyms[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid signal state: %q (valid: on, off, asserted, deasserted, pressed, released, enabled, disabled)", s)
	}
	return state, nil
}

// SignalType describes how a line is used, which only affects how its
// state is presented.
type SignalType int

const (
	TypeGPIO SignalType = iota
	TypeJumper
	TypeButton
	TypeACPort
	TypeLED
)

var signalTypeNames = []string{"gpio", "jumper", "button", "ac-port", "led"}

// IsValid reports whether t is a known signal type.
func (t SignalType) IsValid() bool {
	return t >= TypeGPIO && t <= TypeLED
}

// String returns the canonical type name.
func (t SignalType) String() string {
	if !t.IsValid() {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return signalTypeNames[t]
}

// ParseSignalType converts a type name to a SignalType.
func ParseSignalType(s string) (SignalType, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "ac" {
		return TypeACPort, nil
	}
	for i, name := range signalTypeNames {
		if raw == name {
			return SignalType(i), nil
		}
	}
	return 0, fmt.Errorf("invalid signal type: %q (valid: %s)", s, strings.Join(signalTypeNames, ", "))
}

// AssertionType controls how the host maps the raw electrical level of a
// line to its logical state.
type AssertionType int

const (
	ActiveLow  AssertionType = 0
	ActiveHigh AssertionType = 1
)

// IsValid reports whether a is a known assertion type.
func (a AssertionType) IsValid() bool {
	return a == ActiveLow || a == ActiveHigh
}

// String returns "active-high" or "active-low".
func (a AssertionType) String() string {
	switch a {
	case ActiveHigh:
		return "active-high"
	case ActiveLow:
		return "active-low"
	default:
		return fmt.Sprintf("assertion(%d)", int(a))
	}
}

// ParseAssertionType converts "active-high"/"high" or "active-low"/"low".
func ParseAssertionType(s string) (AssertionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active-high", "high":
		return ActiveHigh, nil
	case "active-low", "low":
		return ActiveLow, nil
	default:
		return 0, fmt.Errorf("invalid assertion type: %q (valid: active-high, active-low)", s)
	}
}

// SignalInfo is a snapshot of a signal as reported by the host.
type SignalInfo struct {
	ID            SignalID      `json:"id"`
	Name          string        `json:"name"`
	GenericName   string        `json:"genericName"`
	Type          SignalType    `json:"type"`
	AssertionType AssertionType `json:"assertionType"`
	State         SignalState   `json:"state"`
}

// StateLabel renders the signal's state using its type's vocabulary.
func (s SignalInfo) StateLabel() string {
	return s.State.Label(s.Type)
}
