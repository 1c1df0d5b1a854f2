// Package hostapi declares the interfaces the core streaming pipeline needs
// from its embedding host: a tuner device and channel/timer/recording
// lists. EpgEntry is declared here, but no interface method returns EPG
// data. The core owns no persisted state (spec.md §6.5); everything
// here is a collaborator the host SDK supplies. internal/hostdb provides a
// runnable reference implementation for integration tests and --dev-host mode.
package hostapi

import (
	"context"
	"fmt"

	"github.com/pipelka/robotv-go/internal/tsdemux"
)

// UID is a stable fingerprint identifying a channel across reboots.
type UID uint64

// Channel describes one tunable channel as the host SDK knows it.
type Channel struct {
	UID      UID
	Name     string
	CAIDs    []int // conditional-access system identifiers required, empty if FTA
	Encrypted bool
}

// CaEncryptedMin is the minimum CA system id considered "real" encryption
// (matches the original's ca >= CA_ENCRYPTED_MIN check in scenario 2).
const CaEncryptedMin = 0x0100

// Timer describes a scheduled recording.
type Timer struct {
	ID      int
	Channel UID
	Active  bool
}

// Recording describes a completed or in-progress recording.
type Recording struct {
	ID      int
	Channel UID
	Title   string
}

// EpgEntry describes one electronic program guide event.
type EpgEntry struct {
	ChannelUID UID
	Title      string
	StartUnix  int64
	DurationS  int
}

// TunerFailure classifies why a channel switch did not succeed.
type TunerFailure int

const (
	FailureOk TunerFailure = iota
	FailureEncrypted
	FailureAllTunersBusy
	FailureBlockedByRecording
	FailureError
)

// TunerError is returned by Device.Switch when a channel cannot be attached.
// The live streamer classifies it with errors.As rather than string matching
// (SPEC_FULL.md §A.3).
type TunerError struct {
	Failure TunerFailure
	Channel UID
	Cause   error
}

func (e *TunerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tuner: channel %d: %s: %v", e.Channel, e.Failure, e.Cause)
	}
	return fmt.Sprintf("tuner: channel %d: %s", e.Channel, e.Failure)
}

func (e *TunerError) Unwrap() error { return e.Cause }

func (f TunerFailure) String() string {
	switch f {
	case FailureOk:
		return "ok"
	case FailureEncrypted:
		return "encrypted"
	case FailureAllTunersBusy:
		return "all_tuners_busy"
	case FailureBlockedByRecording:
		return "blocked_by_recording"
	default:
		return "error"
	}
}

// ReceiveFunc is called by a Device on its own goroutine with raw
// broadcast-clock bytes as they arrive. Implementations must not block:
// per spec.md §9 DESIGN NOTES, this runs on the device's own thread and must
// enqueue and return.
type ReceiveFunc func(b []byte)

// Device represents one acquired tuner attached to a channel.
type Device interface {
	// Descriptor is a human-readable device identifier for SIGNALINFO.
	Descriptor() string
	// SetReceiver installs the callback invoked with incoming TS bytes.
	SetReceiver(fn ReceiveFunc)
	// SignalInfo reports current lock status and signal quality.
	SignalInfo() (lockStatus string, strengthPct16 uint32, qualityPct16 uint32)
	// Detach releases the device back to the host's tuner pool.
	Detach()
}

// Host is the embedding application's collaborator surface: tuner
// acquisition plus the read-only channel/timer/recording lists. EPG data is
// not exposed through this interface.
type Host interface {
	// Switch acquires a tuner and attaches it to uid, returning the live
	// Device on success or a *TunerError classifying the failure.
	Switch(ctx context.Context, uid UID) (Device, error)

	// Channel looks up channel metadata by uid.
	Channel(uid UID) (Channel, bool)

	// ChannelStreamInfo derives a StreamBundle describing the channel's
	// elementary streams from host metadata (used by ChannelCache on a
	// cold miss, before any bytes have actually been demuxed).
	ChannelStreamInfo(uid UID) (*tsdemux.StreamBundle, bool)

	// StateVersion returns three monotonic counters, one each for the
	// channel list, timer list, and recording list, each incremented
	// whenever its list changes, so
	// AcceptLoop can detect changes without polling each list (spec.md
	// §4.10).
	StateVersion() (channels, timers, recordings uint64)

	// Timers and Recordings are read-only snapshots for the out-of-scope
	// TIMER_*/RECORDINGS_* opcode families; present so internal/session
	// can serve those families from a real collaborator in --dev-host mode.
	Timers() []Timer
	Recordings() []Recording
}
