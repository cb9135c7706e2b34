// Package reader acquires RFID tag identifiers from an attached reader, or
// from a deterministic simulator when no hardware is present. The binding
// decision is made once at construction; an instance never re-probes or
// reconnects.
package reader

import (
	"fmt"
	"strings"
)

// State reports whether an instance is backed by real hardware.
type State int

const (
	Disconnected State = iota
	Connected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ReadResult is one acquired tag observation.
type ReadResult struct {
	TagID string // uppercase hex EPC
	RSSI  int    // dBm-like signal strength
}

// Verification is the outcome of a verify-by-readback.
type Verification struct {
	Matched  bool
	Observed ReadResult
}

// Reader is the uniform read/write/verify contract. Both implementations
// behave identically from the caller's perspective; hardware faults surface
// as a single "read failed" error kind with the original detail preserved.
type Reader interface {
	// Read acquires a fresh tag observation.
	Read() (ReadResult, error)

	// Write encodes the identifier onto the tag in range.
	Write(tagID string) error

	// Verify performs a fresh Read and compares it case-insensitively
	// against expected. It never reuses a prior read.
	Verify(expected string) (Verification, error)

	// State reports the binding decided at construction.
	State() State
}

// New attempts the hardware bind once and falls back to the simulator. The
// returned instance keeps its state for its whole lifetime.
func New() Reader {
	if hw, err := openHardware(); err == nil {
		return hw
	}
	return NewSimulated()
}

// verifyByReadback is the shared Verify implementation.
func verifyByReadback(r Reader, expected string) (Verification, error) {
	obs, err := r.Read()
	if err != nil {
		return Verification{}, err
	}
	return Verification{
		Matched:  strings.EqualFold(obs.TagID, expected),
		Observed: obs,
	}, nil
}
