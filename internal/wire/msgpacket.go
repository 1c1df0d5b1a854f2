package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// ErrShortPacket is returned when a frame cannot be fully read or decoded.
var ErrShortPacket = errors.New("wire: short packet")

// MsgPacket is one length-prefixed frame on the wire. All integer fields
// are big-endian; payload strings are null-terminated UTF-8, written and
// read with the Put/Get string helpers below.
type MsgPacket struct {
	ChannelID       ChannelID
	Opcode          Opcode
	RequestID       uint32
	UserData        uint32
	ClientID        uint16
	PayloadChecksum uint16 // 0 when checksums are disabled
	UseChecksum     bool
	Payload         []byte

	readOffset int
}

// NewMsgPacket constructs an outbound packet with an empty payload ready to
// be appended to via the Put* helpers.
func NewMsgPacket(channel ChannelID, opcode Opcode, requestID uint32) *MsgPacket {
	return &MsgPacket{ChannelID: channel, Opcode: opcode, RequestID: requestID}
}

// --- payload encoding helpers (writer side) ---

func (p *MsgPacket) PutU8(v uint8)   { p.Payload = append(p.Payload, v) }
func (p *MsgPacket) PutU16(v uint16) { p.Payload = append(p.Payload, byte(v>>8), byte(v)) }
func (p *MsgPacket) PutU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	p.Payload = append(p.Payload, b[:]...)
}
func (p *MsgPacket) PutS64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	p.Payload = append(p.Payload, b[:]...)
}
func (p *MsgPacket) PutString(s string) {
	p.Payload = append(p.Payload, []byte(s)...)
	p.Payload = append(p.Payload, 0)
}
func (p *MsgPacket) PutBlob(b []byte) {
	p.PutU32(uint32(len(b)))
	p.Payload = append(p.Payload, b...)
}

// --- payload decoding helpers (reader side) ---

func (p *MsgPacket) GetU8() (uint8, error) {
	if p.readOffset+1 > len(p.Payload) {
		return 0, ErrShortPacket
	}
	v := p.Payload[p.readOffset]
	p.readOffset++
	return v, nil
}

func (p *MsgPacket) GetU16() (uint16, error) {
	if p.readOffset+2 > len(p.Payload) {
		return 0, ErrShortPacket
	}
	v := binary.BigEndian.Uint16(p.Payload[p.readOffset:])
	p.readOffset += 2
	return v, nil
}

func (p *MsgPacket) GetU32() (uint32, error) {
	if p.readOffset+4 > len(p.Payload) {
		return 0, ErrShortPacket
	}
	v := binary.BigEndian.Uint32(p.Payload[p.readOffset:])
	p.readOffset += 4
	return v, nil
}

func (p *MsgPacket) GetS64() (int64, error) {
	if p.readOffset+8 > len(p.Payload) {
		return 0, ErrShortPacket
	}
	v := binary.BigEndian.Uint64(p.Payload[p.readOffset:])
	p.readOffset += 8
	return int64(v), nil
}

func (p *MsgPacket) GetString() (string, error) {
	end := bytes.IndexByte(p.Payload[p.readOffset:], 0)
	if end < 0 {
		return "", ErrShortPacket
	}
	s := string(p.Payload[p.readOffset : p.readOffset+end])
	p.readOffset += end + 1
	return s, nil
}

func (p *MsgPacket) GetBlob() ([]byte, error) {
	n, err := p.GetU32()
	if err != nil {
		return nil, err
	}
	if p.readOffset+int(n) > len(p.Payload) {
		return nil, ErrShortPacket
	}
	b := p.Payload[p.readOffset : p.readOffset+int(n)]
	p.readOffset += int(n)
	return b, nil
}

// Reset rewinds the read cursor to the start of the payload.
func (p *MsgPacket) Reset() { p.readOffset = 0 }

// frameHeaderSize is the fixed-size portion of a frame preceding payload
// bytes: channelId(2) + opcode(2) + requestId(4) + userData(4) +
// clientId(2) + payloadChecksum(2) + payloadLength(4) = 20 bytes.
const frameHeaderSize = 20

// Encode serializes p as a complete frame (header + payload) in
// network byte order.
func (p *MsgPacket) Encode() []byte {
	checksum := p.PayloadChecksum
	if p.UseChecksum {
		checksum = uint16(crc32.ChecksumIEEE(p.Payload))
	}

	buf := make([]byte, frameHeaderSize+len(p.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(p.ChannelID))
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.Opcode))
	binary.BigEndian.PutUint32(buf[4:8], p.RequestID)
	binary.BigEndian.PutUint32(buf[8:12], p.UserData)
	binary.BigEndian.PutUint16(buf[12:14], p.ClientID)
	binary.BigEndian.PutUint16(buf[14:16], checksum)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(p.Payload)))
	copy(buf[frameHeaderSize:], p.Payload)

	return buf
}

// WriteTo writes the encoded frame to w, satisfying io.WriterTo.
func (p *MsgPacket) WriteTo(w io.Writer) (int64, error) {
	buf := p.Encode()
	n, err := w.Write(buf)
	return int64(n), err
}

// DecodeHeader reads and parses the fixed-size frame header from r, without
// reading the payload. Callers then read exactly PayloadLength bytes and
// assign them to Payload.
func DecodeHeader(r io.Reader) (*MsgPacket, uint32, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, err
	}

	p := &MsgPacket{
		ChannelID:       ChannelID(binary.BigEndian.Uint16(hdr[0:2])),
		Opcode:          Opcode(binary.BigEndian.Uint16(hdr[2:4])),
		RequestID:       binary.BigEndian.Uint32(hdr[4:8]),
		UserData:        binary.BigEndian.Uint32(hdr[8:12]),
		ClientID:        binary.BigEndian.Uint16(hdr[12:14]),
		PayloadChecksum: binary.BigEndian.Uint16(hdr[14:16]),
	}
	payloadLength := binary.BigEndian.Uint32(hdr[16:20])

	return p, payloadLength, nil
}

// Decode reads one complete frame (header + payload) from r.
func Decode(r io.Reader) (*MsgPacket, error) {
	p, payloadLength, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}

	p.Payload = make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, p.Payload); err != nil {
			return nil, err
		}
	}

	return p, nil
}
