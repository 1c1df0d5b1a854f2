// Package wire implements the binary message framing and opcode table for
// the client protocol: every request, response, and asynchronous
// notification on the socket is one length-prefixed MsgPacket.
package wire

// ChannelID selects which logical channel a MsgPacket travels on. A single
// TCP connection multiplexes request/response traffic, live stream data,
// and asynchronous status/OSD notifications across these channel ids.
type ChannelID uint16

const (
	ChannelRequestResponse ChannelID = 1
	ChannelStream          ChannelID = 2
	ChannelStatus          ChannelID = 3
	ChannelOSD             ChannelID = 4
	ChannelScanner         ChannelID = 5
	ChannelKeyboard        ChannelID = 6
	ChannelArtwork         ChannelID = 7
)

// Opcode identifies a request, response, or notification message. The
// families below mirror the full client opcode table, including families
// whose handlers are out of scope for this pipeline (recording playback,
// EPG, artwork, scanning) — they are reproduced in full so the session
// dispatcher can tell a recognized-but-unimplemented opcode apart from a
// genuinely unknown one (spec.md ambient error handling, §7).
type Opcode uint16

const (
	// Login / session
	OpLogin                  Opcode = 1
	OpGetTime                Opcode = 2
	OpEnableStatusInterface  Opcode = 3
	OpUpdateChannels         Opcode = 4
	OpChannelFilter          Opcode = 5

	// Live channel streaming
	OpChannelStreamOpen    Opcode = 20
	OpChannelStreamClose   Opcode = 21
	OpChannelStreamPause   Opcode = 22
	OpChannelStreamRequest Opcode = 23
	OpChannelStreamSignal  Opcode = 24

	// Recording playback (out of scope, modeled as a distinct
	// not-implemented family rather than generic unknown opcodes, per
	// recplayer.h's existence as a recognized subsystem)
	OpRecStreamOpen      Opcode = 40
	OpRecStreamClose     Opcode = 41
	OpRecStreamGetBlock  Opcode = 42
	OpRecStreamGetPacket Opcode = 43
	OpRecStreamUpdate    Opcode = 44
	OpRecStreamSeek      Opcode = 45

	// Channel list (out of scope, host-SDK backed)
	OpChannelsGroupsCount     Opcode = 60
	OpChannelsChannelsCount   Opcode = 61
	OpChannelsGroupList       Opcode = 62
	OpChannelsGetChannels     Opcode = 63
	OpChannelsGetGroupMembers Opcode = 64

	// Timers (out of scope, host-SDK backed)
	OpTimerGetCount Opcode = 80
	OpTimerGet      Opcode = 81
	OpTimerGetList  Opcode = 82
	OpTimerAdd      Opcode = 83
	OpTimerDelete   Opcode = 84
	OpTimerUpdate   Opcode = 85

	// Recordings (out of scope, host-SDK backed)
	OpRecordingsGetDiskSpace Opcode = 100
	OpRecordingsGetCount     Opcode = 101
	OpRecordingsGetList      Opcode = 102
	OpRecordingsGetInfo      Opcode = 103
	OpRecordingsRename       Opcode = 104
	OpRecordingsDelete       Opcode = 105
	OpRecordingsMove         Opcode = 106
	OpRecordingsSetPlayCount Opcode = 107
	OpRecordingsSetPosition  Opcode = 108
	OpRecordingsGetPosition  Opcode = 109
	OpRecordingsGetMarks     Opcode = 110
	OpRecordingsSetUrls      Opcode = 111

	// Artwork (out of scope)
	OpArtworkGet Opcode = 120
	OpArtworkSet Opcode = 121

	// EPG (out of scope, host-SDK backed)
	OpEpgGetForChannel Opcode = 130

	// Channel scanning (out of scope)
	OpScanSupported Opcode = 140
	OpScanGetSetup  Opcode = 141
	OpScanSetSetup  Opcode = 142
	OpScanStart     Opcode = 143
	OpScanStop      Opcode = 144
	OpScanGetStatus Opcode = 145

	// Asynchronous stream notifications (ChannelStream)
	OpStreamMuxPkt       Opcode = 200
	OpStreamChange       Opcode = 201
	OpStreamSignalInfo   Opcode = 202
	OpStreamStatus       Opcode = 203
	OpStreamDetach       Opcode = 204

	// Status channel
	OpStatusMessage Opcode = 220

	// Generic protocol-error response, reusing the request's own requestId
	// (spec.md §7: "respond with an error frame carrying the original
	// requestId; session stays open").
	OpErrorResponse Opcode = 255
)

// implementedOpcodes lists the opcodes this pipeline's Session actually
// dispatches. Everything else in the families above is recognized (so the
// dispatcher can log "not implemented" rather than "unknown opcode") but
// has no handler.
var implementedOpcodes = map[Opcode]bool{
	OpLogin:                 true,
	OpGetTime:                true,
	OpEnableStatusInterface:  true,
	OpChannelStreamOpen:      true,
	OpChannelStreamClose:     true,
	OpChannelStreamPause:     true,
	OpChannelStreamRequest:   true,
	OpChannelStreamSignal:    true,
}

// recognizedOpcodes lists every request opcode declared above, whether or
// not it is implemented, so Classify can distinguish "known but
// unimplemented" from "truly unknown".
var recognizedOpcodes = map[Opcode]bool{
	OpLogin: true, OpGetTime: true, OpEnableStatusInterface: true,
	OpUpdateChannels: true, OpChannelFilter: true,
	OpChannelStreamOpen: true, OpChannelStreamClose: true,
	OpChannelStreamPause: true, OpChannelStreamRequest: true, OpChannelStreamSignal: true,
	OpRecStreamOpen: true, OpRecStreamClose: true, OpRecStreamGetBlock: true,
	OpRecStreamGetPacket: true, OpRecStreamUpdate: true, OpRecStreamSeek: true,
	OpChannelsGroupsCount: true, OpChannelsChannelsCount: true, OpChannelsGroupList: true,
	OpChannelsGetChannels: true, OpChannelsGetGroupMembers: true,
	OpTimerGetCount: true, OpTimerGet: true, OpTimerGetList: true,
	OpTimerAdd: true, OpTimerDelete: true, OpTimerUpdate: true,
	OpRecordingsGetDiskSpace: true, OpRecordingsGetCount: true, OpRecordingsGetList: true,
	OpRecordingsGetInfo: true, OpRecordingsRename: true, OpRecordingsDelete: true,
	OpRecordingsMove: true, OpRecordingsSetPlayCount: true, OpRecordingsSetPosition: true,
	OpRecordingsGetPosition: true, OpRecordingsGetMarks: true, OpRecordingsSetUrls: true,
	OpArtworkGet: true, OpArtworkSet: true,
	OpEpgGetForChannel: true,
	OpScanSupported:    true, OpScanGetSetup: true, OpScanSetSetup: true,
	OpScanStart: true, OpScanStop: true, OpScanGetStatus: true,
}

// OpcodeKind classifies a request opcode for the session's error response
// policy (spec.md §7: protocol errors on unknown opcodes).
type OpcodeKind int

const (
	OpcodeUnknown OpcodeKind = iota
	OpcodeRecognizedNotImplemented
	OpcodeImplemented
)

// Classify reports how the session dispatcher should treat an opcode.
func Classify(op Opcode) OpcodeKind {
	if implementedOpcodes[op] {
		return OpcodeImplemented
	}
	if recognizedOpcodes[op] {
		return OpcodeRecognizedNotImplemented
	}
	return OpcodeUnknown
}

// StatusCode values carried in the STATUS notification's payload.
type StatusCode uint32

const (
	StatusSignalLost     StatusCode = 1
	StatusSignalRestored StatusCode = 2
)

// TunerFailure classifies why a channel switch did not succeed, surfaced to
// the client as a typed status message rather than a raw error string.
type TunerFailure int

const (
	FailureOk TunerFailure = iota
	FailureEncrypted
	FailureAllTunersBusy
	FailureBlockedByRecording
	FailureError
)

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
