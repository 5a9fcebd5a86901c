package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"roadrisk/internal/types"
)

func TestFIFO_GetSet(t *testing.T) {
	c := NewFIFO[string](10)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get on empty cache should miss")
	}

	c.Set("a", "1")
	v, ok := c.Get("a")
	if !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	c.Set("a", "2")
	if v, _ := c.Get("a"); v != "2" {
		t.Fatalf("overwrite not visible: got %q", v)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d after overwrite, want 1", c.Len())
	}
}

func TestFIFO_EvictsOldestInserted(t *testing.T) {
	const max = 5
	const extra = 3
	c := NewFIFO[int](max)

	for i := 0; i < max+extra; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	if c.Len() != max {
		t.Fatalf("Len() = %d, want %d", c.Len(), max)
	}
	// The `extra` oldest keys must be gone, the rest present.
	for i := 0; i < extra; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); ok {
			t.Errorf("k%d should have been evicted", i)
		}
	}
	for i := extra; i < max+extra; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d should still be cached", i)
		}
	}
}

func TestFIFO_OverwriteDoesNotRefreshPosition(t *testing.T) {
	c := NewFIFO[int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3) // rewrite; "a" keeps its original insertion slot
	c.Set("c", 4) // evicts "a", the oldest-inserted key

	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted despite the recent overwrite")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should still be cached")
	}
}

func TestFIFO_ConcurrentAccess(t *testing.T) {
	c := NewFIFO[int](100)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				c.Set(key, i)
				c.Get(key)
			}
		}(w)
	}
	wg.Wait()
	if c.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", c.Len())
	}
}

func TestWeatherKey_HourBucket(t *testing.T) {
	p := types.Point{Lat: 36.751849, Lng: 3.059901}
	t1 := time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 14, 9, 55, 0, 0, time.UTC)
	t3 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	if WeatherKey(p, t1) != WeatherKey(p, t2) {
		t.Error("same hour should share a weather key")
	}
	if WeatherKey(p, t1) == WeatherKey(p, t3) {
		t.Error("different hours must not share a weather key")
	}

	// Points in the same 3-decimal cell share keys.
	q := types.Point{Lat: 36.7518, Lng: 3.0599}
	if WeatherKey(p, t1) != WeatherKey(q, t1) {
		t.Error("same 3-decimal cell should share a weather key")
	}
}

func TestTwilightKey_DateBucket(t *testing.T) {
	p := types.Point{Lat: 36.75, Lng: 3.06}
	morning := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)

	if TwilightKey(p, morning) != TwilightKey(p, evening) {
		t.Error("same date should share a twilight key")
	}
	if TwilightKey(p, morning) == TwilightKey(p, nextDay) {
		t.Error("different dates must not share a twilight key")
	}
}

func TestService_Defaults(t *testing.T) {
	s := NewService(Limits{}, nil)
	if s.Weather == nil || s.Twilight == nil || s.RoadFlags == nil || s.Rows == nil {
		t.Fatal("NewService must populate all four stores")
	}
	if got := s.FlagKey(types.Point{Lat: 36.751849, Lng: 3.059901}); got != "36.752:3.060" {
		t.Errorf("FlagKey() = %q", got)
	}
}

func TestService_FlagPrecision(t *testing.T) {
	s := NewService(Limits{FlagPrecision: 4}, nil)
	if got := s.FlagKey(types.Point{Lat: 36.751849, Lng: 3.059901}); got != "36.7518:3.0599" {
		t.Errorf("FlagKey() = %q", got)
	}
}

func TestMemoryRowStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRowStore(2)

	row := types.FeatureRow{WeatherCondition: "Clear"}
	s.Set(ctx, "id-1", row)

	got, ok := s.Get(ctx, "id-1")
	if !ok || got.WeatherCondition != "Clear" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	s.Set(ctx, "id-2", row)
	s.Set(ctx, "id-3", row)
	if _, ok := s.Get(ctx, "id-1"); ok {
		t.Error("oldest row should have been evicted")
	}
}
