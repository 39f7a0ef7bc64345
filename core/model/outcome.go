package model

import "time"

// OutcomeKind tags the variant carried by an Outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNetwork
	OutcomeTimeout
	OutcomeProtocolError
	OutcomeHTTPStatus
	OutcomeCanceled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNetwork:
		return "network"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeProtocolError:
		return "protocol_error"
	case OutcomeHTTPStatus:
		return "http_status"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// NetworkKind narrows an OutcomeNetwork.
type NetworkKind int

const (
	NetConnectRefused NetworkKind = iota
	NetReset
	NetEOFBeforeHeaders
	NetDNSFailure
)

// TimeoutPhase narrows an OutcomeTimeout: which suspension point expired.
type TimeoutPhase int

const (
	PhaseConnect TimeoutPhase = iota
	PhaseWrite
	PhaseReadHeaders
	PhaseReadBody
)

func (p TimeoutPhase) String() string {
	switch p {
	case PhaseConnect:
		return "connect"
	case PhaseWrite:
		return "write"
	case PhaseReadHeaders:
		return "read_headers"
	case PhaseReadBody:
		return "read_body"
	default:
		return "unknown"
	}
}

// Outcome is how a single Attempt ended, per spec §3's tagged variant.
type Outcome struct {
	Kind OutcomeKind

	// Valid when Kind == OutcomeNetwork.
	NetworkKind NetworkKind

	// Valid when Kind == OutcomeTimeout.
	TimeoutPhase TimeoutPhase

	// Valid when Kind == OutcomeHTTPStatus or OutcomeSuccess.
	StatusCode int
	Header     *Header

	// Underlying error, if any, for wrapping into a ClientError.
	Err error
}

// Attempt is a single transmission of a Request on one Connection.
type Attempt struct {
	Index       int
	StartedAt   time.Time
	Deadline    time.Time
	ConnID      uint64
	BodyWritten bool // true once any request-body byte left the client
	Outcome     Outcome
}
