package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
)

func snapshotAt(fetched time.Time) models.Snapshot {
	return models.Snapshot{
		Series: models.Series{
			{Time: fetched.Add(-time.Hour), CO2PPM: 440, CH4PPB: 1900},
		},
		FetchedAt: fetched,
	}
}

func TestInMemoryCache_HitAndMiss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if _, ok, err := c.Get(ctx, "jakarta pusat"); err != nil || ok {
		t.Fatalf("Get(miss) = ok=%v err=%v, want miss", ok, err)
	}

	snap := snapshotAt(time.Now())
	if err := c.Set(ctx, "jakarta pusat", snap, time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok, err := c.Get(ctx, "jakarta pusat")
	if err != nil || !ok {
		t.Fatalf("Get(hit) = ok=%v err=%v, want hit", ok, err)
	}
	if len(got.Series) != 1 || got.Series[0].CO2PPM != 440 {
		t.Errorf("Get() = %+v, want cached snapshot", got)
	}
}

func TestInMemoryCache_ExpiryKeepsStale(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	snap := snapshotAt(time.Now())
	if err := c.Set(ctx, "key", snap, time.Millisecond); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "key"); ok {
		t.Error("Get() hit on expired entry")
	}

	// Expired for Get, but still visible through the stale path.
	got, ok, err := c.GetStale(ctx, "key", time.Minute)
	if err != nil || !ok {
		t.Fatalf("GetStale() = ok=%v err=%v, want stale hit", ok, err)
	}
	if !got.FetchedAt.Equal(snap.FetchedAt) {
		t.Errorf("GetStale() FetchedAt = %v, want %v", got.FetchedAt, snap.FetchedAt)
	}
}

func TestInMemoryCache_GetStale_TooOld(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	snap := snapshotAt(time.Now().Add(-2 * time.Hour))
	if err := c.Set(ctx, "key", snap, time.Millisecond); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := c.GetStale(ctx, "key", time.Hour); ok {
		t.Error("GetStale() returned a snapshot older than maxStaleAge")
	}
}

func TestInMemoryCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	old := snapshotAt(time.Now().Add(-time.Minute))
	if err := c.Set(ctx, "key", old, time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	fresh := snapshotAt(time.Now())
	if err := c.Set(ctx, "key", fresh, time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok, _ := c.Get(ctx, "key")
	if !ok || !got.FetchedAt.Equal(fresh.FetchedAt) {
		t.Errorf("Get() after overwrite = %+v, want freshest snapshot", got)
	}
}

func TestParseAddrs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"single", "localhost:11211", 1},
		{"multiple with spaces", "host1:11211, host2:11211", 2},
		{"empty segments", "host1:11211,,", 1},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseAddrs(tt.in); len(got) != tt.want {
				t.Errorf("parseAddrs(%q) = %v, want %d addrs", tt.in, got, tt.want)
			}
		})
	}
}
