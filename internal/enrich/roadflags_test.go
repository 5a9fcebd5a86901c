package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"roadrisk/internal/cache"
	"roadrisk/internal/external"
	"roadrisk/internal/types"
)

func tagged(tags map[string]string) external.TaggedElement {
	return external.TaggedElement{Tags: tags}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		elements []external.TaggedElement
		want     types.RoadFlags
	}{
		{
			"empty", nil, types.RoadFlags{},
		},
		{
			"traffic signals",
			[]external.TaggedElement{tagged(map[string]string{"highway": "traffic_signals"})},
			types.RoadFlags{TrafficSignal: 1},
		},
		{
			"stop and give way",
			[]external.TaggedElement{
				tagged(map[string]string{"highway": "stop"}),
				tagged(map[string]string{"highway": "give_way"}),
			},
			types.RoadFlags{Stop: 1, GiveWay: 1},
		},
		{
			"roundabout implies junction and nothing else",
			[]external.TaggedElement{tagged(map[string]string{"junction": "roundabout"})},
			types.RoadFlags{Roundabout: 1, Junction: 1},
		},
		{
			"motorway junction",
			[]external.TaggedElement{tagged(map[string]string{"highway": "motorway_junction"})},
			types.RoadFlags{Junction: 1},
		},
		{
			"crossing tag without highway crossing",
			[]external.TaggedElement{tagged(map[string]string{"crossing": "zebra"})},
			types.RoadFlags{Crossing: 1},
		},
		{
			"traffic calming bump values",
			[]external.TaggedElement{tagged(map[string]string{"traffic_calming": "hump"})},
			types.RoadFlags{TrafficCalming: 1, Bump: 1},
		},
		{
			"traffic calming non-bump value",
			[]external.TaggedElement{tagged(map[string]string{"traffic_calming": "chicane"})},
			types.RoadFlags{TrafficCalming: 1},
		},
		{
			"railway station sets both",
			[]external.TaggedElement{tagged(map[string]string{"railway": "station"})},
			types.RoadFlags{Railway: 1, Station: 1},
		},
		{
			"plain railway",
			[]external.TaggedElement{tagged(map[string]string{"railway": "level_crossing"})},
			types.RoadFlags{Railway: 1},
		},
		{
			"bus station sets amenity and station",
			[]external.TaggedElement{tagged(map[string]string{"amenity": "bus_station"})},
			types.RoadFlags{Amenity: 1, Station: 1},
		},
		{
			"public transport station",
			[]external.TaggedElement{tagged(map[string]string{"public_transport": "station"})},
			types.RoadFlags{Station: 1},
		},
		{
			"noexit yes",
			[]external.TaggedElement{tagged(map[string]string{"noexit": "yes"})},
			types.RoadFlags{NoExit: 1},
		},
		{
			"noexit other value ignored",
			[]external.TaggedElement{tagged(map[string]string{"noexit": "no"})},
			types.RoadFlags{},
		},
		{
			"turning loop",
			[]external.TaggedElement{tagged(map[string]string{"highway": "turning_loop"})},
			types.RoadFlags{TurningLoop: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseFlags(tt.elements))
		})
	}
}

func newFlagProvider(t *testing.T, client external.MapTagClient, enabled bool, waits *atomic.Int32) (*RoadFlagProvider, *cache.Service) {
	t.Helper()
	caches := cache.NewService(cache.Limits{}, nil)
	provider := NewRoadFlagProvider(client, caches, enabled, time.Second, nil, nil,
		WithWaitFunc(func(context.Context) error {
			if waits != nil {
				waits.Add(1)
			}
			return nil
		}),
	)
	return provider, caches
}

func TestRoadFlagProvider_SuppliedFlagsPassThrough(t *testing.T) {
	client := &fakeMapTagClient{}
	provider, _ := newFlagProvider(t, client, true, nil)

	flags := provider.Flags(context.Background(), types.Point{Lat: 36.75, Lng: 3.06}, map[string]any{
		"Junction": "true",
		"Crossing": 1.0,
		"Bump":     "0",
	})

	assert.Equal(t, types.RoadFlags{Junction: 1, Crossing: 1}, flags)
	assert.Zero(t, client.calls.Load(), "supplied flags must not trigger a lookup")
}

func TestRoadFlagProvider_DisabledReturnsZeroFlags(t *testing.T) {
	client := &fakeMapTagClient{}
	provider, _ := newFlagProvider(t, client, false, nil)

	flags := provider.Flags(context.Background(), types.Point{Lat: 36.75, Lng: 3.06}, nil)

	assert.Equal(t, types.RoadFlags{}, flags)
	assert.Zero(t, client.calls.Load())
}

func TestRoadFlagProvider_ThrottlesOnlyRealQueries(t *testing.T) {
	var waits atomic.Int32
	client := &fakeMapTagClient{elements: []external.TaggedElement{
		tagged(map[string]string{"highway": "traffic_signals"}),
	}}
	provider, _ := newFlagProvider(t, client, true, &waits)

	pt := types.Point{Lat: 36.75, Lng: 3.06}

	first := provider.Flags(context.Background(), pt, nil)
	assert.Equal(t, types.RoadFlags{TrafficSignal: 1}, first)
	assert.Equal(t, int32(1), waits.Load())
	assert.Equal(t, int32(1), client.calls.Load())

	// Cache hit: no network call and, critically, no throttle wait.
	second := provider.Flags(context.Background(), pt, nil)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), waits.Load(), "cache hits must not pay the throttle delay")
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestRoadFlagProvider_QueryFailureFallsBackToZeroFlags(t *testing.T) {
	client := &fakeMapTagClient{err: errors.New("overpass timeout")}
	provider, caches := newFlagProvider(t, client, true, nil)

	pt := types.Point{Lat: 36.75, Lng: 3.06}
	flags := provider.Flags(context.Background(), pt, nil)

	assert.Equal(t, types.RoadFlags{}, flags)
	// Failures are not cached; a later lookup may succeed.
	_, ok := caches.RoadFlags.Get(caches.FlagKey(pt))
	assert.False(t, ok)
}
