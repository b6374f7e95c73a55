package pgx

import (
	"testing"
	"time"
)

func TestBucketDaily(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	times := []time.Time{
		now.Add(-1 * time.Hour),       // today
		now.Add(-30 * time.Hour),      // yesterday
		now.Add(-31 * time.Hour),      // yesterday
		now.Add(-6 * 24 * time.Hour),  // oldest in window
		now.Add(-10 * 24 * time.Hour), // outside window
		now.Add(30 * time.Hour),       // future, dropped
	}

	counts := bucketDaily(times, 7, now)
	if len(counts) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(counts))
	}

	want := []int{1, 0, 0, 0, 0, 2, 1}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("counts = %v, want %v", counts, want)
		}
	}
}

func TestTrimLeadingEmptyDays(t *testing.T) {
	cases := []struct {
		counts []int
		want   []int
	}{
		{[]int{0, 0, 1, 0, 2}, []int{1, 0, 2}},
		{[]int{3, 0, 1}, []int{3, 0, 1}},
		{[]int{0, 0, 0}, nil},
		{nil, nil},
	}
	for _, tc := range cases {
		got := trimLeadingEmptyDays(tc.counts)
		if len(got) != len(tc.want) {
			t.Fatalf("trimLeadingEmptyDays(%v) = %v, want %v", tc.counts, got, tc.want)
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Fatalf("trimLeadingEmptyDays(%v) = %v, want %v", tc.counts, got, tc.want)
			}
		}
	}
}

func TestTrimLeadingEmptyDays_YoungTopicSeriesIsShort(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// A topic whose first artifact landed 3 days ago must not report a
	// full 30-day flat series.
	times := []time.Time{
		now.Add(-3 * 24 * time.Hour),
		now.Add(-1 * 24 * time.Hour),
		now.Add(-2 * time.Hour),
	}

	counts := trimLeadingEmptyDays(bucketDaily(times, 30, now))
	if len(counts) != 4 {
		t.Fatalf("expected 4 days of history, got %d (%v)", len(counts), counts)
	}
	if counts[0] != 1 {
		t.Fatalf("series should start on the first active day, got %v", counts)
	}
}

func TestBucketDaily_EmptyWindowIsZeros(t *testing.T) {
	counts := bucketDaily(nil, 5, time.Now())
	if len(counts) != 5 {
		t.Fatalf("expected 5 buckets, got %d", len(counts))
	}
	for i, c := range counts {
		if c != 0 {
			t.Fatalf("bucket %d not zero: %d", i, c)
		}
	}
}
