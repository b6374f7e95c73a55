package store

import (
	"errors"
	"testing"
)

func TestChunkRange_WindowBoundaries(t *testing.T) {
	var windows [][2]int
	err := ChunkRange(10, 4, func(start, end int) error {
		windows = append(windows, [2]int{start, end})
		return nil
	})
	if err != nil {
		t.Fatalf("ChunkRange: %v", err)
	}

	want := [][2]int{{0, 4}, {4, 8}, {8, 10}}
	if len(windows) != len(want) {
		t.Fatalf("windows = %v, want %v", windows, want)
	}
	for i := range want {
		if windows[i] != want[i] {
			t.Fatalf("windows = %v, want %v", windows, want)
		}
	}
}

func TestChunkRange_EmptyInput(t *testing.T) {
	calls := 0
	if err := ChunkRange(0, 4, func(start, end int) error { calls++; return nil }); err != nil {
		t.Fatalf("ChunkRange: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no windows for n=0, got %d", calls)
	}
}

func TestChunkRange_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 3, func(start, end int) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected first error returned, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected stop after failing window, got %d calls", calls)
	}
}

func TestChunkRange_NonPositiveChunkTakesAll(t *testing.T) {
	var windows [][2]int
	if err := ChunkRange(5, 0, func(start, end int) error {
		windows = append(windows, [2]int{start, end})
		return nil
	}); err != nil {
		t.Fatalf("ChunkRange: %v", err)
	}
	if len(windows) != 1 || windows[0] != [2]int{0, 5} {
		t.Fatalf("windows = %v, want one full window", windows)
	}
}
