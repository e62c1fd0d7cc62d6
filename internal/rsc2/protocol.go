package rsc2

import (
	"encoding/json"
	"time"

	"github.com/shinji-kodama/rsctool/internal/model"
)

// Op names a request understood by the host gateway.
type Op string

const (
	OpHello     Op = "host.hello"
	OpListBoxes Op = "host.boxes"

	OpBoxInfo       Op = "box.info"
	OpSetUserLabel  Op = "box.setUserLabel"
	OpSetKvmAddress Op = "box.setKvmAddress"
	OpLockBox       Op = "box.lock"
	OpUnlockBox     Op = "box.unlock"
	OpSetUsbMux     Op = "box.setUsbMux"

	OpPwrCycleStart     Op = "pwrcycle.start"
	OpPwrCycleStatus    Op = "pwrcycle.status"
	OpPwrCycleStop      Op = "pwrcycle.stop"
	OpPwrCycleContinue  Op = "pwrcycle.continue"
	OpPwrCycleTotalTime Op = "pwrcycle.totalTime"

	OpListSignals      Op = "signal.list"
	OpSignalInfo       Op = "signal.info"
	OpSetState         Op = "signal.setState"
	OpSetAssertionType Op = "signal.setAssertionType"
	OpSetSignalName    Op = "signal.setName"
	OpSetSignalType    Op = "signal.setType"
)

// Request is one client to host message.
//
//	{"id":"6f1c...","op":"signal.setState","box":0,"signal":16,"args":{"state":1}}
//
// Box and Signal are ignored by ops that do not address a box or signal.
type Request struct {
	ID     string          `json:"id"`
	Op     Op              `json:"op"`
	Box    int             `json:"box"`
	Signal int             `json:"signal"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Response is the host's reply to a Request with the same ID.
//
//	{"id":"6f1c...","result":-3,"error":"box is locked by lab-bench-7"}
type Response struct {
	ID     string          `json:"id"`
	Result Result          `json:"result"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// HelloReply is the data of an OpHello response.
type HelloReply struct {
	Server   string `json:"server"`
	Hostname string `json:"hostname"`
	Boxes    int    `json:"boxes"`
}

// StateArgs carries the state for OpSetState.
type StateArgs struct {
	State model.SignalState `json:"state"`
}

// TextArgs carries the string argument of label, name, KVM and lock ops.
type TextArgs struct {
	Text string `json:"text"`
}

// AssertionArgs carries the assertion type for OpSetAssertionType.
type AssertionArgs struct {
	Type model.AssertionType `json:"type"`
}

// TypeArgs carries the signal type for OpSetSignalType.
type TypeArgs struct {
	Type model.SignalType `json:"type"`
}

// MuxArgs carries the requested MUX position for OpSetUsbMux.
type MuxArgs struct {
	State model.UsbMuxState `json:"state"`
}

// TotalTimeReply is the data of an OpPwrCycleTotalTime response.
type TotalTimeReply struct {
	Seconds int `json:"seconds"`
}

// Duration returns the reply as a time.Duration.
func (r TotalTimeReply) Duration() time.Duration {
	return time.Duration(r.Seconds) * time.Second
}
