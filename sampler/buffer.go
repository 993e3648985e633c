// Package sampler accumulates a bounded window of the worker's recent output.
//
// Buffer is a fixed-capacity ring of trimmed, non-empty lines. When full, the
// oldest line is evicted. No operation blocks or fails: blank input is dropped.
//
// Buffer is not safe for concurrent use. It is owned by the control loop.
package sampler

import "strings"

// DefaultCapacity is the default number of lines retained.
const DefaultCapacity = 100

// Buffer is a bounded, order-preserving ring of output lines.
type Buffer struct {
	lines    []string
	head     int // index of the oldest line
	count    int
	capacity int
}

// NewBuffer creates a buffer holding at most capacity lines.
// A capacity of zero (or less) yields a buffer that never stores anything.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// AddLine trims surrounding whitespace and appends the line if non-empty,
// evicting the oldest line when at capacity.
func (b *Buffer) AddLine(text string) {
	line := strings.TrimSpace(text)
	if line == "" || b.capacity == 0 {
		return
	}

	if b.count < b.capacity {
		b.lines[(b.head+b.count)%b.capacity] = line
		b.count++
		return
	}

	b.lines[b.head] = line
	b.head = (b.head + 1) % b.capacity
}

// AddLines splits text on line boundaries and adds each line in order.
func (b *Buffer) AddLines(text string) {
	for _, line := range strings.Split(text, "\n") {
		b.AddLine(line)
	}
}

// Sample returns the buffered lines joined with newlines, oldest first.
// It has no side effects.
func (b *Buffer) Sample() string {
	return strings.Join(b.Lines(), "\n")
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	out := make([]string, b.count)
	for i := range b.count {
		out[i] = b.lines[(b.head+i)%b.capacity]
	}
	return out
}

// LineCount returns the number of buffered lines.
func (b *Buffer) LineCount() int {
	return b.count
}

// Capacity returns the maximum number of lines retained.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Clear empties the buffer. Capacity is unchanged.
func (b *Buffer) Clear() {
	clear(b.lines)
	b.head = 0
	b.count = 0
}
