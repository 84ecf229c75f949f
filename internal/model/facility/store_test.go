package facility

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

var saddar = struct{ lat, lon float64 }{24.8607, 67.0011}

func sampleFacilities() []Facility {
	return []Facility{
		{ID: "medical-a", Name: "A", Category: Medical, Latitude: 24.8617, Longitude: 67.0011},
		{ID: "medical-b", Name: "B", Category: Medical, Latitude: 24.8123, Longitude: 66.9967},
		{ID: "medical-c", Name: "C", Category: Medical, Latitude: 25.5000, Longitude: 67.5000},
		{ID: "medical-d", Name: "D", Category: Medical, Latitude: 24.8617, Longitude: 67.0011},
		{ID: "fire-a", Name: "Fire A", Category: Fire, Latitude: 24.8600, Longitude: 67.0190},
		{ID: "police-a", Name: "Police A", Category: Police, Latitude: 24.8580, Longitude: 67.0280},
	}
}

func TestFindNearbyOrdersByDistanceWithinRadius(t *testing.T) {
	store := NewMemoryStore(sampleFacilities())

	results, err := store.FindNearby(Medical, saddar.lat, saddar.lon, DefaultRadiusKM)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		require.LessOrEqual(t, r.DistanceKM, DefaultRadiusKM)
		if i > 0 {
			require.GreaterOrEqual(t, r.DistanceKM, results[i-1].DistanceKM)
		}
	}
	// a and d share coordinates, so the id decides
	require.Equal(t, "medical-a", results[0].ID)
	require.Equal(t, "medical-d", results[1].ID)
	require.Equal(t, "medical-b", results[2].ID)
}

func TestFindNearbyRejectsInvalidInput(t *testing.T) {
	store := NewMemoryStore(sampleFacilities())

	cases := []struct {
		name     string
		category Category
		lat, lon float64
		radius   float64
		want     error
	}{
		{"latitude too high", Medical, 91, 0, 10, ErrInvalidLatitude},
		{"latitude too low", Medical, -90.5, 0, 10, ErrInvalidLatitude},
		{"longitude out of range", Medical, 0, 181, 10, ErrInvalidLongitude},
		{"zero radius", Medical, 0, 0, 0, ErrInvalidRadius},
		{"negative radius", Medical, 0, 0, -5, ErrInvalidRadius},
		{"nan radius", Medical, 0, 0, math.NaN(), ErrInvalidRadius},
		{"general category", General, 0, 0, 10, ErrUnknownCategory},
		{"unknown category", Category("coast-guard"), 0, 0, 10, ErrUnknownCategory},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.FindNearby(tc.category, tc.lat, tc.lon, tc.radius)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFindNearbyEmptyIsNotError(t *testing.T) {
	store := NewMemoryStore(sampleFacilities())

	results, err := store.FindNearby(Police, -33.86, 151.2, 5)
	require.NoError(t, err)
	require.NotNil(t, results)
	require.Empty(t, results)
}

func TestFindNearbyIdempotent(t *testing.T) {
	store := NewMemoryStore(sampleFacilities())

	first, err := store.FindNearby(Medical, saddar.lat, saddar.lon, 100)
	require.NoError(t, err)
	second, err := store.FindNearby(Medical, saddar.lat, saddar.lon, 100)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestFindNearbyIndependentOfInputOrder(t *testing.T) {
	base := sampleFacilities()
	want, err := NewMemoryStore(base).FindNearby(Medical, saddar.lat, saddar.lon, 200)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]Facility(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := NewMemoryStore(shuffled).FindNearby(Medical, saddar.lat, saddar.lon, 200)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestLoadedIDsIndependentOfInputOrder(t *testing.T) {
	records := []map[string]any{
		{"name": "City Hospital", "lat": 24.86, "lon": 67.00},
		{"name": "City Hospital", "lat": 24.90, "lon": 67.05},
		{"name": "Harbour Clinic", "latitude": 24.84, "longitude": 66.98},
	}
	reversed := []map[string]any{records[2], records[1], records[0]}

	load := func(in []map[string]any) []Nearby {
		data, err := json.Marshal(in)
		require.NoError(t, err)
		items, err := LoadJSON(bytes.NewReader(data), Medical)
		require.NoError(t, err)
		results, err := NewMemoryStore(items).FindNearby(Medical, saddar.lat, saddar.lon, 50)
		require.NoError(t, err)
		return results
	}

	a := load(records)
	b := load(reversed)
	require.Equal(t, a, b)
	require.Len(t, a, 3)

	ids := map[string]bool{}
	for _, r := range a {
		require.False(t, ids[r.ID], "duplicate id %s", r.ID)
		ids[r.ID] = true
	}
	require.True(t, ids["medical-harbour-clinic"])
}

func TestLoadJSONSkipsRecordsWithoutCoordinates(t *testing.T) {
	data := []byte(`[
		{"name": "No Coords"},
		{"name": "", "lat": 1, "lon": 1},
		{"id": "custom", "name": "Station", "lat": 24.8, "lon": 67.0, "contact_numbers": ["021-1"], "phone": "021-2"}
	]`)

	items, err := LoadJSON(bytes.NewReader(data), Fire)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "custom", items[0].ID)
	require.Equal(t, Fire, items[0].Category)
	require.Equal(t, []string{"021-1", "021-2"}, items[0].ContactNumbers)
	require.True(t, items[0].EmergencyServices)
}

func TestLoadEmbeddedProvidesAllCategories(t *testing.T) {
	items, err := LoadEmbedded()
	require.NoError(t, err)

	store := NewMemoryStore(items)
	for _, category := range Categories() {
		require.Positive(t, store.Counts()[category], "category %s", category)
	}

	results, err := store.FindNearby(Medical, saddar.lat, saddar.lon, DefaultRadiusKM)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestListReturnsCopies(t *testing.T) {
	store := NewMemoryStore([]Facility{
		{ID: "fire-x", Name: "X", Category: Fire, Services: []string{"rescue"}},
	})

	list, err := store.List(Fire)
	require.NoError(t, err)
	list[0].Services[0] = "mutated"

	again, ok := store.FindByID("fire-x")
	require.True(t, ok)
	require.Equal(t, "rescue", again.Services[0])

	_, err = store.List(General)
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestParseCategory(t *testing.T) {
	for raw, want := range map[string]Category{
		"Hospitals":      Medical,
		"fire_stations":  Fire,
		" police ":       Police,
		"general":        General,
	} {
		got, ok := ParseCategory(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got)
	}
	_, ok := ParseCategory("coast guard")
	require.False(t, ok)
}
