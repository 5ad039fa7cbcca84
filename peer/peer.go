// Package peer tracks one connection's lifecycle phase and heartbeat
// bookkeeping: when it last received anything, when it last sent or
// received a heartbeat, and whether it has gone quiet long enough to be
// considered dead. Grounded on the teacher's health.checker state-tracking
// shape (health/checker.go's CheckResult/Status bookkeeping, repurposed
// here from periodic subsystem checks to per-connection liveness).
package peer

import (
	"time"

	"github.com/aegis-chat/aegis/internal/aerr"
)

// State is the connection phase, following the transition diagram in
// SPEC_FULL.md §4.10.
type State int

const (
	Disconnected State = iota
	Handshaking
	Established
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Handshaking:
		return "Handshaking"
	case Established:
		return "Established"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// DefaultHeartbeatInterval and DefaultTimeoutMultiple set the default
// heartbeat cadence (30s) and timeout (3x the interval), per spec.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultTimeoutMultiple   = 3
)

// Record tracks one peer connection's phase and activity timestamps. Not
// safe for concurrent use from multiple goroutines without external
// synchronization — the owning Session is the sole mutator, per the
// single-owner concurrency model.
type Record struct {
	state State

	heartbeatInterval time.Duration

	lastActivity      time.Time
	lastHeartbeatSent time.Time
	lastHeartbeatRecv time.Time
}

// New constructs a Record in the Disconnected state with the given
// heartbeat interval (use DefaultHeartbeatInterval if zero).
func New(heartbeatInterval time.Duration) *Record {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Record{state: Disconnected, heartbeatInterval: heartbeatInterval}
}

// State returns the current connection phase.
func (r *Record) State() State { return r.state }

// transition enforces the legal edges of the state diagram:
// Disconnected -> Handshaking -> Established -> Closing -> Disconnected.
func (r *Record) transition(to State) error {
	legal := map[State][]State{
		Disconnected: {Handshaking},
		Handshaking:  {Established, Closing},
		Established:  {Closing},
		Closing:      {Disconnected},
	}
	for _, ok := range legal[r.state] {
		if ok == to {
			r.state = to
			return nil
		}
	}
	return aerr.New(aerr.ProtocolError, "illegal peer state transition: "+r.state.String()+" -> "+to.String())
}

// BeginHandshake transitions Disconnected -> Handshaking, on connect/accept.
func (r *Record) BeginHandshake(now time.Time) error {
	if err := r.transition(Handshaking); err != nil {
		return err
	}
	r.lastActivity = now
	return nil
}

// Establish transitions Handshaking -> Established on handshake success.
func (r *Record) Establish(now time.Time) error {
	if err := r.transition(Established); err != nil {
		return err
	}
	r.lastActivity = now
	r.lastHeartbeatRecv = now
	r.lastHeartbeatSent = now
	return nil
}

// BeginClosing transitions to Closing, on explicit shutdown, fatal error, or
// heartbeat timeout. Valid from Handshaking or Established.
func (r *Record) BeginClosing() error {
	return r.transition(Closing)
}

// FinishClosing transitions Closing -> Disconnected, after flush/zeroization.
func (r *Record) FinishClosing() error {
	return r.transition(Disconnected)
}

// RecordActivity marks that a frame (of any type) was received.
func (r *Record) RecordActivity(now time.Time) { r.lastActivity = now }

// RecordHeartbeatSent marks that this side emitted a heartbeat.
func (r *Record) RecordHeartbeatSent(now time.Time) { r.lastHeartbeatSent = now }

// RecordHeartbeatRecv marks that a heartbeat arrived from the peer.
func (r *Record) RecordHeartbeatRecv(now time.Time) {
	r.lastHeartbeatRecv = now
	r.lastActivity = now
}

// ShouldSendHeartbeat reports whether heartbeatInterval has elapsed since
// the last heartbeat this side sent.
func (r *Record) ShouldSendHeartbeat(now time.Time) bool {
	return now.Sub(r.lastHeartbeatSent) >= r.heartbeatInterval
}

// TimedOut reports whether no frame at all (heartbeat or otherwise) has been
// seen for 3x the heartbeat interval, per spec.
func (r *Record) TimedOut(now time.Time) bool {
	deadline := r.heartbeatInterval * DefaultTimeoutMultiple
	return now.Sub(r.lastActivity) >= deadline
}

// LastActivity returns the timestamp of the most recently processed frame.
func (r *Record) LastActivity() time.Time { return r.lastActivity }
