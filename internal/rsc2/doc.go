// Package rsc2 is the client for RSC2 host gateways.
//
// An RSC2 host is the machine that the RSC2 boxes are plugged into. The
// host runs a gateway process that owns the boxes and answers requests
// from clients like rsctool. This package handles:
//   - Connecting to a host (WebSocket, JSON messages, one request in flight
//     per connection)
//   - Box access: enumeration, description, label, lock, USB MUX, and
//     firmware driven power cycling
//   - Signal access: reading and asserting state, renaming, retyping
//   - Translating the host's result codes into Go errors (*Error)
//
// Handles (Host, Box, Signal) are lightweight: creating a Box or Signal does
// not talk to the host; failures surface on the first call that uses them.
//
// The wire format is documented in protocol.go. Event listeners and
// hot-plug notifications are not supported.
package rsc2
