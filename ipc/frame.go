// Package ipc implements the length-prefixed msgpack framing used for
// worker event transcripts.
//
// A transcript is a header frame followed by one frame per worker event.
// Every frame is a 4-byte big-endian payload length and a msgpack map with a
// "type" discriminant.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size limits. A frame is the 4-byte length prefix plus its payload.
const (
	LengthPrefixSize = 4
	MaxFrameSize     = 16 << 20
	MaxPayloadSize   = MaxFrameSize - LengthPrefixSize
)

// HeaderType is the type discriminant of the transcript header frame.
const HeaderType = "transcript_header"

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	FrameErrorPartial  FrameErrorKind = iota // truncated frame
	FrameErrorTooLarge                       // payload over MaxPayloadSize
	FrameErrorDecode                         // payload is not a valid frame
)

// FrameError is a framing or decoding failure.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFatal reports whether the stream is unusable past this error. A frame
// that only fails to decode can be skipped.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorDecode
}

// IsFatalFrameError reports whether err is a fatal *FrameError.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr) && frameErr.IsFatal()
}

func tooLarge(n int) *FrameError {
	return &FrameError{Kind: FrameErrorTooLarge, Msg: fmt.Sprintf("payload size %d exceeds maximum %d", n, MaxPayloadSize)}
}

// FrameDecoder reads length-prefixed frames.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a decoder over r.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame returns the next raw payload. A clean end of stream is io.EOF;
// a stream cut mid-frame is a fatal *FrameError.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxPayloadSize {
		return nil, tooLarge(int(size))
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// FrameEncoder writes length-prefixed msgpack frames to a stream.
// It is not safe for concurrent use.
type FrameEncoder struct {
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame writes one raw payload with its length prefix.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return tooLarge(len(payload))
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	if _, err := e.writer.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteHeader encodes and writes a header frame. Type is set to HeaderType.
func (e *FrameEncoder) WriteHeader(h HeaderFrame) error {
	h.Type = HeaderType
	return e.encode(h)
}

// WriteEvent encodes and writes an event frame.
func (e *FrameEncoder) WriteEvent(f EventFrame) error {
	return e.encode(f)
}

func (e *FrameEncoder) encode(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return e.WriteFrame(payload)
}

// DecodeFrame decodes a payload into a *HeaderFrame or an *EventFrame,
// chosen by its type field.
func DecodeFrame(payload []byte) (any, error) {
	var probe struct {
		Type string `msgpack:"type"`
	}
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, decodeErr("frame type", err)
	}
	switch probe.Type {
	case "":
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "frame has no type"}
	case HeaderType:
		return DecodeHeader(payload)
	default:
		return DecodeEventFrame(payload)
	}
}

// DecodeHeader decodes a payload as a HeaderFrame.
func DecodeHeader(payload []byte) (*HeaderFrame, error) {
	var h HeaderFrame
	if err := msgpack.Unmarshal(payload, &h); err != nil {
		return nil, decodeErr("transcript header", err)
	}
	return &h, nil
}

// DecodeEventFrame decodes a payload as an EventFrame.
func DecodeEventFrame(payload []byte) (*EventFrame, error) {
	var f EventFrame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return nil, decodeErr("event frame", err)
	}
	return &f, nil
}

func decodeErr(what string, err error) *FrameError {
	return &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode " + what, Err: err}
}
