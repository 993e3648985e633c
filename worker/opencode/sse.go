package opencode

import (
	"bufio"
	"bytes"
	"io"
)

// maxEventSize bounds a single SSE line. Tool parts can carry large outputs.
const maxEventSize = 16 * 1024 * 1024

// sseReader reads Server-Sent Events and yields each event's data payload.
// Only the data field matters here; event names, ids and retry hints are
// ignored because OpenCode puts the event type inside the JSON payload.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	return &sseReader{scanner: scanner}
}

// Next returns the data of the next event. Multiple data lines are joined
// with "\n". Returns io.EOF when the stream ends cleanly.
func (s *sseReader) Next() ([]byte, error) {
	var data [][]byte
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		line = bytes.TrimSuffix(line, []byte("\r"))

		if len(line) == 0 {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		if string(field) == "data" {
			data = append(data, bytes.Clone(value))
		}
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		return bytes.Join(data, []byte("\n")), nil
	}
	return nil, io.EOF
}
