package facility

import "strings"

// Category identifies which emergency service a facility belongs to.
type Category string

const (
	Medical Category = "medical"
	Fire    Category = "fire"
	Police  Category = "police"
	// General marks a request that matched no service; it never owns facilities.
	General Category = "general"
)

// Categories returns the service categories in canonical order.
func Categories() []Category {
	return []Category{Medical, Fire, Police}
}

// ParseCategory maps a user supplied label onto a Category. Plural and
// facility-style aliases ("hospitals", "fire_stations") are accepted.
func ParseCategory(raw string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "medical", "hospital", "hospitals", "ambulance":
		return Medical, true
	case "fire", "fire_station", "fire_stations", "fire-stations", "rescue":
		return Fire, true
	case "police", "police_station", "police_stations", "police-stations":
		return Police, true
	case "general":
		return General, true
	default:
		return "", false
	}
}

// Facility is a static emergency service location loaded at startup.
type Facility struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Category            Category `json:"category"`
	Type                string   `json:"type,omitempty"`
	Address             string   `json:"address,omitempty"`
	Area                string   `json:"area,omitempty"`
	Latitude            float64  `json:"latitude"`
	Longitude           float64  `json:"longitude"`
	ContactNumbers      []string `json:"contact_numbers,omitempty"`
	EmergencyNumber     string   `json:"emergency_number,omitempty"`
	Specialties         []string `json:"specialties,omitempty"`
	Services            []string `json:"services,omitempty"`
	Vehicles            []string `json:"vehicles,omitempty"`
	ResponseTimeMinutes int      `json:"response_time_minutes,omitempty"`
	EmergencyServices   bool     `json:"emergency_services"`
}

// Nearby pairs a facility with its distance from a query origin.
type Nearby struct {
	Facility
	DistanceKM float64 `json:"distance_km"`
}

func (f Facility) clone() Facility {
	f.ContactNumbers = cloneStrings(f.ContactNumbers)
	f.Specialties = cloneStrings(f.Specialties)
	f.Services = cloneStrings(f.Services)
	f.Vehicles = cloneStrings(f.Vehicles)
	return f
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
