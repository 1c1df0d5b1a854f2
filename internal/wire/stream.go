package wire

// ProtocolVersionDuration is the minimum client-announced protocol version
// at which MUXPKT carries an explicit duration field; clients below this
// version must never be sent it (spec.md §9 ambiguity, resolved by reading
// the version at LOGIN and threading it through every MUXPKT build call).
const ProtocolVersionDuration = 5

// MuxPacketParams carries the fields needed to build a MUXPKT notification.
type MuxPacketParams struct {
	PID           uint16
	PTS           int64
	DTS           int64
	Duration      uint32 // only written when protocolVersion >= ProtocolVersionDuration
	FrameType     uint16 // carried in the clientId header slot
	Payload       []byte
	ProtocolVersion uint32
}

// NewMuxPacket builds a STREAM-channel MUXPKT frame.
func NewMuxPacket(requestID uint32, p MuxPacketParams) *MsgPacket {
	msg := NewMsgPacket(ChannelStream, OpStreamMuxPkt, requestID)
	msg.ClientID = p.FrameType

	msg.PutU16(p.PID)
	msg.PutS64(p.PTS)
	msg.PutS64(p.DTS)
	if p.ProtocolVersion >= ProtocolVersionDuration {
		msg.PutU32(p.Duration)
	}
	msg.PutBlob(p.Payload)

	return msg
}

// StreamChangeEntry describes one elementary stream in a STREAMCHANGE
// notification.
type StreamChangeEntry struct {
	PID       uint16
	CodecName string
	Language  string
	// Video params (codec class video only)
	Width, Height   int
	AspectNum, AspectDen int
	FpsNum, FpsDen  int
	// Audio params (codec class audio only)
	SampleRate int
	Channels   int
}

// NewStreamChange builds a STREAMCHANGE frame enumerating the current
// stream set in the order the caller provides (expected to already be
// reordered by preference).
func NewStreamChange(requestID uint32, entries []StreamChangeEntry) *MsgPacket {
	msg := NewMsgPacket(ChannelStream, OpStreamChange, requestID)

	msg.PutU32(uint32(len(entries)))
	for _, e := range entries {
		msg.PutU16(e.PID)
		msg.PutString(e.CodecName)
		msg.PutString(e.Language)

		if e.SampleRate > 0 || e.Channels > 0 {
			msg.PutU32(uint32(e.SampleRate))
			msg.PutU32(uint32(e.Channels))
			continue
		}

		msg.PutU32(uint32(e.Width))
		msg.PutU32(uint32(e.Height))
		msg.PutU32(uint32(e.AspectNum))
		msg.PutU32(uint32(e.AspectDen))
		msg.PutU32(uint32(e.FpsNum))
		msg.PutU32(uint32(e.FpsDen))
	}

	return msg
}

// SignalInfoParams carries the fields of a SIGNALINFO notification.
type SignalInfoParams struct {
	DeviceDescriptor string
	LockStatus       string
	Strength         uint32 // fixed-point 16:16 percent
	Quality          uint32 // fixed-point 16:16 percent
}

// NewSignalInfo builds a SIGNALINFO frame.
func NewSignalInfo(requestID uint32, p SignalInfoParams) *MsgPacket {
	msg := NewMsgPacket(ChannelStream, OpStreamSignalInfo, requestID)
	msg.PutString(p.DeviceDescriptor)
	msg.PutString(p.LockStatus)
	msg.PutU32(p.Strength)
	msg.PutU32(p.Quality)
	msg.PutU32(0) // reserved
	msg.PutU32(0) // reserved
	return msg
}

// NewStatus builds a STATUS frame carrying one StatusCode.
func NewStatus(requestID uint32, code StatusCode) *MsgPacket {
	msg := NewMsgPacket(ChannelStream, OpStreamStatus, requestID)
	msg.PutU32(uint32(code))
	return msg
}

// NewDetach builds an empty-body DETACH frame.
func NewDetach(requestID uint32) *MsgPacket {
	return NewMsgPacket(ChannelStream, OpStreamDetach, requestID)
}

// NewOsdStatusMessage builds an OSD-channel status text notification, used
// for classified tuner failures (spec.md §8 scenario 2: "Unable to decrypt
// channel").
func NewOsdStatusMessage(requestID uint32, text string) *MsgPacket {
	msg := NewMsgPacket(ChannelOSD, OpStatusMessage, requestID)
	msg.PutString(text)
	return msg
}

// NewErrorResponse builds a generic protocol-error response carrying the
// original requestId, for unknown or malformed requests (spec.md §7).
func NewErrorResponse(requestID uint32, message string) *MsgPacket {
	msg := NewMsgPacket(ChannelRequestResponse, OpErrorResponse, requestID)
	msg.PutU32(1) // non-zero status: error
	msg.PutString(message)
	return msg
}
