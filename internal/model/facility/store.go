package facility

import (
	"errors"
	"math"
	"sort"

	"github.com/zhouzirui/emergency-hub/backend/internal/geo"
)

var (
	ErrInvalidLatitude  = errors.New("latitude must be within [-90, 90]")
	ErrInvalidLongitude = errors.New("longitude must be within [-180, 180]")
	ErrInvalidRadius    = errors.New("radius must be a positive number of kilometres")
	ErrUnknownCategory  = errors.New("unknown facility category")
)

// DefaultRadiusKM is applied by callers that accept an optional radius.
const DefaultRadiusKM = 15.0

// Store exposes read-only facility lookups.
type Store interface {
	List(category Category) ([]Facility, error)
	FindByID(id string) (Facility, bool)
	FindNearby(category Category, lat, lon, radiusKM float64) ([]Nearby, error)
	Counts() map[Category]int
}

// MemoryStore keeps the facility set in memory. It is never mutated after
// construction, so concurrent readers need no locking.
type MemoryStore struct {
	byCategory map[Category][]Facility
	byID       map[string]Facility
}

// NewMemoryStore indexes items by category. Entries with a category outside
// Categories() are ignored.
func NewMemoryStore(items []Facility) *MemoryStore {
	store := &MemoryStore{
		byCategory: make(map[Category][]Facility, 3),
		byID:       make(map[string]Facility, len(items)),
	}
	for _, item := range items {
		if !isServiceCategory(item.Category) {
			continue
		}
		item = item.clone()
		store.byCategory[item.Category] = append(store.byCategory[item.Category], item)
		store.byID[item.ID] = item
	}
	for _, list := range store.byCategory {
		sort.SliceStable(list, func(i, j int) bool { return lessFacility(list[i], list[j]) })
	}
	return store
}

// List returns every facility in a category ordered by id.
func (s *MemoryStore) List(category Category) ([]Facility, error) {
	if !isServiceCategory(category) {
		return nil, ErrUnknownCategory
	}
	items := s.byCategory[category]
	out := make([]Facility, 0, len(items))
	for _, item := range items {
		out = append(out, item.clone())
	}
	return out, nil
}

// FindByID looks up a facility by identifier across all categories.
func (s *MemoryStore) FindByID(id string) (Facility, bool) {
	item, ok := s.byID[id]
	if !ok {
		return Facility{}, false
	}
	return item.clone(), true
}

// FindNearby returns facilities of category within radiusKM of (lat, lon),
// nearest first with ties broken by id. Invalid input is rejected, never clamped.
// No match yields an empty, non-nil slice.
func (s *MemoryStore) FindNearby(category Category, lat, lon, radiusKM float64) ([]Nearby, error) {
	if !geo.ValidLatitude(lat) {
		return nil, ErrInvalidLatitude
	}
	if !geo.ValidLongitude(lon) {
		return nil, ErrInvalidLongitude
	}
	if math.IsNaN(radiusKM) || radiusKM <= 0 {
		return nil, ErrInvalidRadius
	}
	if !isServiceCategory(category) {
		return nil, ErrUnknownCategory
	}

	results := make([]Nearby, 0)
	for _, item := range s.byCategory[category] {
		distance := geo.DistanceKM(lat, lon, item.Latitude, item.Longitude)
		if distance > radiusKM {
			continue
		}
		results = append(results, Nearby{Facility: item.clone(), DistanceKM: distance})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].DistanceKM != results[j].DistanceKM {
			return results[i].DistanceKM < results[j].DistanceKM
		}
		return lessFacility(results[i].Facility, results[j].Facility)
	})
	return results, nil
}

// Counts reports how many facilities are loaded per category.
func (s *MemoryStore) Counts() map[Category]int {
	counts := make(map[Category]int, 3)
	for _, category := range Categories() {
		counts[category] = len(s.byCategory[category])
	}
	return counts
}

func isServiceCategory(category Category) bool {
	switch category {
	case Medical, Fire, Police:
		return true
	default:
		return false
	}
}

func lessFacility(a, b Facility) bool {
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Address < b.Address
}
