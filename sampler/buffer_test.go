package sampler

import (
	"fmt"
	"strings"
	"testing"
)

func TestBuffer_EvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.AddLine(s)
	}

	if got := b.Sample(); got != "c\nd\ne" {
		t.Errorf("Sample() = %q, want %q", got, "c\nd\ne")
	}
	if got := b.LineCount(); got != 3 {
		t.Errorf("LineCount() = %d, want 3", got)
	}
}

func TestBuffer_CountNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{0, 1, 2, 7, 100} {
		t.Run(fmt.Sprintf("cap=%d", capacity), func(t *testing.T) {
			b := NewBuffer(capacity)
			for i := range 250 {
				b.AddLine(fmt.Sprintf("line %d", i))
				if b.LineCount() > capacity {
					t.Fatalf("after %d adds LineCount() = %d > capacity %d", i+1, b.LineCount(), capacity)
				}
			}
		})
	}
}

func TestBuffer_KeepsMostRecentInOrder(t *testing.T) {
	const capacity = 4
	b := NewBuffer(capacity)

	var all []string
	for i := range 11 {
		all = append(all, fmt.Sprintf("L%d", i+1))
	}
	b.AddLines(strings.Join(all, "\n"))

	want := strings.Join(all[len(all)-capacity:], "\n")
	if got := b.Sample(); got != want {
		t.Errorf("Sample() = %q, want %q", got, want)
	}
}

func TestBuffer_DropsBlankLines(t *testing.T) {
	b := NewBuffer(5)
	b.AddLine("keep")

	for _, blank := range []string{"", " ", "\t", "\n", "  \r\n  "} {
		b.AddLine(blank)
		if got := b.LineCount(); got != 1 {
			t.Errorf("AddLine(%q): LineCount() = %d, want 1", blank, got)
		}
	}
}

func TestBuffer_TrimsLines(t *testing.T) {
	b := NewBuffer(5)
	b.AddLine("   padded\t")
	b.AddLines("  one \n\n   \n two  ")

	if got := b.Sample(); got != "padded\none\ntwo" {
		t.Errorf("Sample() = %q", got)
	}
}

func TestBuffer_Clear(t *testing.T) {
	b := NewBuffer(3)
	b.AddLines("a\nb\nc\nd")
	b.Clear()

	if got := b.Sample(); got != "" {
		t.Errorf("Sample() after Clear = %q, want empty", got)
	}
	if got := b.LineCount(); got != 0 {
		t.Errorf("LineCount() after Clear = %d, want 0", got)
	}
	if got := b.Capacity(); got != 3 {
		t.Errorf("Capacity() after Clear = %d, want 3", got)
	}

	b.AddLines("x\ny\nz\nw")
	if got := b.Sample(); got != "y\nz\nw" {
		t.Errorf("Sample() after refill = %q", got)
	}
}

func TestBuffer_SampleIdempotent(t *testing.T) {
	b := NewBuffer(3)
	b.AddLines("a\nb\nc\nd")

	first := b.Sample()
	second := b.Sample()
	if first != second {
		t.Errorf("Sample() not idempotent: %q vs %q", first, second)
	}
}

func TestBuffer_ZeroCapacity(t *testing.T) {
	b := NewBuffer(0)
	b.AddLines("a\nb")

	if b.LineCount() != 0 || b.Sample() != "" {
		t.Errorf("zero-capacity buffer stored data: count=%d sample=%q", b.LineCount(), b.Sample())
	}
}

func TestBuffer_LinesIsCopy(t *testing.T) {
	b := NewBuffer(3)
	b.AddLines("a\nb")

	lines := b.Lines()
	lines[0] = "mutated"

	if got := b.Sample(); got != "a\nb" {
		t.Errorf("Sample() = %q after mutating Lines() result", got)
	}
}
