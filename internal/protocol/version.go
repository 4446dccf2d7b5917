// Package protocol defines shared types, the message taxonomy, and the
// wire codec for client-server communication.
package protocol

// Version constants for compatibility checking.
const (
	ProtocolVersion = 4
	MinVersion      = 4
)

// Compatible checks if two versions can communicate.
func Compatible(local, remote int) bool {
	return remote >= MinVersion && local >= MinVersion
}
