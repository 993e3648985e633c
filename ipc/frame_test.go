package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/warden/types"
)

// encodeFrame encodes a payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFrameEncoder_Transcript(t *testing.T) {
	events := []types.Event{
		types.TextPartEvent{Text: "starting\n"},
		types.TextDeltaEvent{Delta: "more\n"},
		types.ToolCallEvent{Name: "bash", Params: map[string]any{"command": "go test"}},
		types.ToolResultEvent{Name: "bash", Output: "ok"},
		types.ErrorEvent{Message: "rate limited"},
		types.ThinkingEvent{Text: "hmm"},
		types.ProgressEvent{Status: "step-start"},
		types.MessageCompletedEvent{MessageID: "msg_1"},
		types.SessionCompletedEvent{SessionID: "ses_1"},
		types.UnknownEvent{RawType: "lsp.updated"},
	}

	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)
	if err := enc.WriteHeader(HeaderFrame{Version: types.Version, Task: "fix it", SessionID: "ses_1"}); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	for i, ev := range events {
		if err := enc.WriteEvent(NewEventFrame(int64(i+1), testTime, ev)); err != nil {
			t.Fatalf("WriteEvent(%d) error = %v", i, err)
		}
	}

	dec := NewFrameDecoder(&buf)
	payload, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	frame, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	header, ok := frame.(*HeaderFrame)
	if !ok {
		t.Fatalf("first frame = %T, want *HeaderFrame", frame)
	}
	if header.Type != HeaderType || header.Task != "fix it" || header.SessionID != "ses_1" || header.Version != types.Version {
		t.Errorf("header = %+v", header)
	}

	var got []types.Event
	var seq int64
	for {
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		frame, err := DecodeFrame(payload)
		if err != nil {
			t.Fatalf("DecodeFrame() error = %v", err)
		}
		ef, ok := frame.(*EventFrame)
		if !ok {
			t.Fatalf("frame = %T, want *EventFrame", frame)
		}
		if ef.Seq != seq+1 {
			t.Errorf("seq = %d, want %d", ef.Seq, seq+1)
		}
		seq = ef.Seq
		if !ef.Time().Equal(testTime) {
			t.Errorf("Time() = %v, want %v", ef.Time(), testTime)
		}
		got = append(got, ef.Event())
	}

	if !reflect.DeepEqual(got, events) {
		t.Errorf("events = %#v\nwant %#v", got, events)
	}
}

func TestEventFrame_UnrecognizedType(t *testing.T) {
	f := EventFrame{Type: "telemetry"}
	if got := f.Event(); got != (types.UnknownEvent{RawType: "telemetry"}) {
		t.Errorf("Event() = %#v", got)
	}
	if !f.Time().IsZero() {
		t.Error("Time() of empty ts should be zero")
	}
}

func TestFrameEncoder_OversizedPayload(t *testing.T) {
	enc := NewFrameEncoder(io.Discard)
	err := enc.WriteFrame(make([]byte, MaxPayloadSize+1))
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("WriteFrame() error = %v, want FrameErrorTooLarge", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestFrameEncoder_WriteError(t *testing.T) {
	enc := NewFrameEncoder(failingWriter{})
	if err := enc.WriteEvent(NewEventFrame(1, testTime, types.ProgressEvent{Status: "x"})); err == nil {
		t.Fatal("WriteEvent() error = nil, want error")
	}
}

func TestDecodeFrame_MissingType(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{"seq": 1})
	if err != nil {
		t.Fatal(err)
	}
	_, err = DecodeFrame(payload)
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Errorf("DecodeFrame() error = %v, want FrameErrorDecode", err)
	}
}

// TestFrameDecoder_PartialFrame validates fatal error for truncated frames.
func TestFrameDecoder_PartialFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFrameEncoder(&buf).WriteEvent(NewEventFrame(1, testTime, types.TextPartEvent{Text: "hello"})); err != nil {
		t.Fatal(err)
	}
	frame := buf.Bytes()

	truncated := frame[:LengthPrefixSize+len(frame[LengthPrefixSize:])/2]

	decoder := NewFrameDecoder(bytes.NewReader(truncated))
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for truncated frame")
	}

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorPartial {
		t.Errorf("Kind = %v, want FrameErrorPartial", frameErr.Kind)
	}
}

// TestFrameDecoder_OversizedFrame validates fatal error for frames exceeding max size.
func TestFrameDecoder_OversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint32(MaxPayloadSize+1))

	decoder := NewFrameDecoder(&buf)
	_, err := decoder.ReadFrame()

	if err == nil {
		t.Fatal("expected error for oversized frame")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}

	if frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("Kind = %v, want FrameErrorTooLarge", frameErr.Kind)
	}
	if !frameErr.IsFatal() {
		t.Error("FrameErrorTooLarge.IsFatal() should return true")
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader(nil))
	_, err := decoder.ReadFrame()

	if err != io.EOF {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

func TestFrameDecoder_TruncatedLengthPrefix(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x00}))
	_, err := decoder.ReadFrame()

	if !IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got: %v", err)
	}
}

// TestFrameDecoder_MalformedMsgpack validates decode error for invalid msgpack.
// Decode errors are non-fatal (the frame was read correctly, just couldn't decode).
func TestFrameDecoder_MalformedMsgpack(t *testing.T) {
	frame := encodeFrame([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	decoder := NewFrameDecoder(bytes.NewReader(frame))
	payload, err := decoder.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	_, err = DecodeFrame(payload)
	if err == nil {
		t.Fatal("expected decode error for malformed msgpack")
	}

	var frameErr *FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected *FrameError, got %T", err)
	}
	if frameErr.Kind != FrameErrorDecode {
		t.Errorf("Kind = %v, want FrameErrorDecode", frameErr.Kind)
	}
	if IsFatalFrameError(err) {
		t.Error("decode errors should not be fatal")
	}
}

func TestFrameError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *FrameError
		contains string
	}{
		{
			name:     "partial without underlying error",
			err:      &FrameError{Kind: FrameErrorPartial, Msg: "truncated"},
			contains: "truncated",
		},
		{
			name: "partial with underlying error",
			err: &FrameError{
				Kind: FrameErrorPartial,
				Msg:  "read failed",
				Err:  io.ErrUnexpectedEOF,
			},
			contains: "unexpected EOF",
		},
		{
			name:     "oversized",
			err:      &FrameError{Kind: FrameErrorTooLarge, Msg: "payload too big"},
			contains: "too big",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			if !bytes.Contains([]byte(msg), []byte(tt.contains)) {
				t.Errorf("error message %q does not contain %q", msg, tt.contains)
			}
		})
	}
}

func TestFrameError_Unwrap(t *testing.T) {
	err := &FrameError{Kind: FrameErrorPartial, Msg: "test", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("Unwrap should allow errors.Is to find underlying error")
	}
}

func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	if IsFatalFrameError(errors.New("regular error")) {
		t.Error("regular errors should not be fatal frame errors")
	}
	if IsFatalFrameError(nil) {
		t.Error("nil should not be a fatal frame error")
	}
	if IsFatalFrameError(io.EOF) {
		t.Error("io.EOF should not be a fatal frame error")
	}
}
