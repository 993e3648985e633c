package iox

import (
	"errors"
	"io"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

type spyReadCloser struct {
	data   []byte
	read   bool
	closed bool
}

func (s *spyReadCloser) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		s.read = true
		return 0, io.EOF
	}
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *spyReadCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDrainClose(t *testing.T) {
	s := &spyReadCloser{data: []byte("leftover body")}
	DrainClose(s)
	if !s.read {
		t.Fatal("body was not drained to EOF")
	}
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestTailBuffer(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		writes []string
		want   string
	}{
		{"under limit", 10, []string{"abc", "def"}, "abcdef"},
		{"overflow across writes", 5, []string{"abc", "defg"}, "cdefg"},
		{"single large write", 3, []string{"abcdefgh"}, "fgh"},
		{"zero limit", 0, []string{"abc"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := NewTailBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := tb.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			if got := tb.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
