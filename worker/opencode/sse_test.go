package opencode

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single event",
			input: "data: {\"a\":1}\n\n",
			want:  []string{`{"a":1}`},
		},
		{
			name:  "multi-line data",
			input: "data: one\ndata: two\n\n",
			want:  []string{"one\ntwo"},
		},
		{
			name:  "comments and other fields ignored",
			input: ": keepalive\nevent: message\nid: 7\ndata: x\n\n",
			want:  []string{"x"},
		},
		{
			name:  "crlf line endings",
			input: "data: a\r\n\r\ndata: b\r\n\r\n",
			want:  []string{"a", "b"},
		},
		{
			name:  "trailing event without blank line",
			input: "data: a\n\ndata: b",
			want:  []string{"a", "b"},
		},
		{
			name:  "no space after colon",
			input: "data:x\n\n",
			want:  []string{"x"},
		},
		{
			name:  "empty stream",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSSEReader(strings.NewReader(tt.input))
			var got []string
			for {
				data, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("Next() error = %v", err)
				}
				got = append(got, string(data))
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events %q, want %d %q", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("event[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
