package protocol

// DisconnectReason is sent to a peer just before it is dropped. The
// integer values must stay stable on the wire (spec.md §6).
type DisconnectReason uint8

const (
	ReasonNone DisconnectReason = iota
	ReasonServerFull
	ReasonInvalidMessage
	ReasonLatencyLimit
	ReasonCommandFlood
	ReasonKicked
	ReasonBanned
)

var reasonNames = [...]string{
	ReasonNone:           "no_reason",
	ReasonServerFull:     "server_full",
	ReasonInvalidMessage: "invalid_message",
	ReasonLatencyLimit:   "latency_limit",
	ReasonCommandFlood:   "command_flood",
	ReasonKicked:         "kicked",
	ReasonBanned:         "banned",
}

func (r DisconnectReason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}
