package core

import (
	"errors"
	"fmt"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown
var ErrServerClosed = errors.New("server closed")

// ConnState is a step in the life of one connection.
//
// Every connection moves forward through
// Accepted → Reading → (Parsed | ParseFailed) → Dispatching →
// (HandlerOK | HandlerErr | NoMatch) → Writing → Closed.
// A ParseFailed connection goes straight to Writing. No state leads back to Reading.
type ConnState int

const (
	StateAccepted ConnState = iota
	StateReading
	StateParsed
	StateParseFailed
	StateDispatching
	StateHandlerOK
	StateHandlerErr
	StateNoMatch
	StateWriting
	StateClosed
)

var stateNames = [...]string{
	StateAccepted:    "accepted",
	StateReading:     "reading",
	StateParsed:      "parsed",
	StateParseFailed: "parse_failed",
	StateDispatching: "dispatching",
	StateHandlerOK:   "handler_ok",
	StateHandlerErr:  "handler_err",
	StateNoMatch:     "no_match",
	StateWriting:     "writing",
	StateClosed:      "closed",
}

func (s ConnState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}
