package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Volcengine streaming ASR binary framing. Every frame is a 4-byte header,
// an optional 4-byte sequence, a 4-byte payload size and the payload.
// Error frames carry a 4-byte error code before the size.

const protocolVersion = 0b0001

// MessageType is the high nibble of header byte 1.
type MessageType uint8

const (
	FullClientRequest  MessageType = 0b0001
	AudioOnlyRequest   MessageType = 0b0010
	FullServerResponse MessageType = 0b1001
	ServerAck          MessageType = 0b1011
	ServerError        MessageType = 0b1111
)

// Flags is the low nibble of header byte 1.
type Flags uint8

const (
	NoSequence       Flags = 0b0000
	PositiveSequence Flags = 0b0001
	LastNoSequence   Flags = 0b0010
	NegativeSequence Flags = 0b0011
)

// Serialization is the high nibble of header byte 2.
type Serialization uint8

const (
	RawSerialization  Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

// Compression is the low nibble of header byte 2.
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

var errShortFrame = errors.New("asr frame truncated")

// Frame is one decoded protocol message.
type Frame struct {
	Type          MessageType
	Flags         Flags
	Serialization Serialization
	Compression   Compression
	Sequence      int32
	ErrorCode     uint32
	Payload       []byte
}

func (f Frame) hasSequence() bool {
	return f.Flags == PositiveSequence || f.Flags == NegativeSequence
}

// Last reports whether the frame closes the stream.
func (f Frame) Last() bool {
	return f.Flags == LastNoSequence || f.Flags == NegativeSequence
}

// MarshalBinary encodes the frame.
func (f Frame) MarshalBinary() ([]byte, error) {
	if f.Type > 0x0F || f.Flags > 0x0F || f.Serialization > 0x0F || f.Compression > 0x0F {
		return nil, fmt.Errorf("asr frame header field out of range")
	}

	buf := make([]byte, 0, 16+len(f.Payload))
	buf = append(buf,
		protocolVersion<<4|0b0001, // header size in 4-byte words
		byte(f.Type)<<4|byte(f.Flags),
		byte(f.Serialization)<<4|byte(f.Compression),
		0x00,
	)
	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.Sequence))
	}
	if f.Type == ServerError {
		buf = binary.BigEndian.AppendUint32(buf, f.ErrorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return buf, nil
}

// DecodeFrame parses one frame from data.
func DecodeFrame(data []byte) (Frame, error) {
	r := bytes.NewReader(data)

	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read header: %w", errShortFrame)
	}
	if v := header[0] >> 4; v != protocolVersion {
		return Frame{}, fmt.Errorf("unsupported asr protocol version %d", v)
	}
	if extra := int(header[0]&0x0F)*4 - 4; extra > 0 {
		if extra > r.Len() {
			return Frame{}, fmt.Errorf("skip header extension: %w", errShortFrame)
		}
		_, _ = r.Seek(int64(extra), io.SeekCurrent)
	}

	f := Frame{
		Type:          MessageType(header[1] >> 4),
		Flags:         Flags(header[1] & 0x0F),
		Serialization: Serialization(header[2] >> 4),
		Compression:   Compression(header[2] & 0x0F),
	}

	if f.hasSequence() {
		v, err := readUint32(r)
		if err != nil {
			return Frame{}, fmt.Errorf("read sequence: %w", err)
		}
		f.Sequence = int32(v)
	}
	if f.Type == ServerError {
		v, err := readUint32(r)
		if err != nil {
			return Frame{}, fmt.Errorf("read error code: %w", err)
		}
		f.ErrorCode = v
	}

	size, err := readUint32(r)
	if err != nil {
		return Frame{}, fmt.Errorf("read payload size: %w", err)
	}
	if int64(size) > int64(r.Len()) {
		return Frame{}, fmt.Errorf("payload of %d bytes: %w", size, errShortFrame)
	}
	if size > 0 {
		f.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, fmt.Errorf("read payload: %w", errShortFrame)
		}
	}
	return f, nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errShortFrame
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// newConfigFrame builds the full client request that opens a recognition stream.
func newConfigFrame(payload []byte) Frame {
	return Frame{
		Type:          FullClientRequest,
		Flags:         NoSequence,
		Serialization: JSONSerialization,
		Compression:   GzipCompression,
		Payload:       payload,
	}
}

// newAudioFrame builds an audio chunk. The final chunk carries the negated sequence.
func newAudioFrame(chunk []byte, seq int32, last bool) Frame {
	f := Frame{
		Type:          AudioOnlyRequest,
		Flags:         PositiveSequence,
		Serialization: RawSerialization,
		Compression:   GzipCompression,
		Sequence:      seq,
		Payload:       chunk,
	}
	if last {
		f.Flags = NegativeSequence
		f.Sequence = -seq
	}
	return f
}
