package location

import "strings"

type area struct {
	names []string
	label string
	lat   float64
	lon   float64
}

// areas is checked in order; multi-word names come before names they contain.
var areas = []area{
	{[]string{"north nazimabad"}, "North Nazimabad", 24.9056, 67.0822},
	{[]string{"federal b area", "fb area"}, "Federal B Area", 24.9142, 67.0810},
	{[]string{"gulistan-e-jauhar", "gulistan", "johar", "jauhar"}, "Gulistan-e-Jauhar", 24.9180, 67.1300},
	{[]string{"saddar"}, "Saddar", 24.8607, 67.0011},
	{[]string{"clifton"}, "Clifton", 24.8123, 66.9967},
	{[]string{"defence", "dha"}, "Defence", 24.8047, 67.0281},
	{[]string{"gulshan"}, "Gulshan-e-Iqbal", 24.8918, 67.0281},
	{[]string{"pechs", "pecs"}, "PECHS", 24.8738, 67.0378},
	{[]string{"gulberg"}, "Gulberg", 24.9167, 67.0667},
	{[]string{"malir"}, "Malir", 24.9000, 67.1000},
	{[]string{"korangi"}, "Korangi", 24.8500, 67.0833},
	{[]string{"landhi"}, "Landhi", 24.8833, 67.0667},
	{[]string{"orangi"}, "Orangi", 24.9333, 67.0333},
	{[]string{"airport"}, "Jinnah International Airport", 24.9065, 67.1608},
	{[]string{"baldia"}, "Baldia", 24.9500, 66.9700},
	{[]string{"lyari"}, "Lyari", 24.8700, 66.9900},
}

// Geocode resolves a free-text place name to coordinates using the built-in
// area table. A bare mention of Karachi resolves to the city centre.
func Geocode(text string) (Result, bool) {
	normalized := strings.ToLower(text)
	for _, a := range areas {
		for _, name := range a.names {
			if containsWord(normalized, name) {
				return Result{
					Latitude:  a.lat,
					Longitude: a.lon,
					Address:   a.label + ", Karachi",
					City:      "Karachi",
					Region:    "Sindh",
					Country:   "Pakistan",
					Source:    SourceManual,
				}, true
			}
		}
	}
	if strings.Contains(normalized, "karachi") {
		r := Fallback
		r.Source = SourceManual
		return r, true
	}
	return Result{}, false
}

// IsLocationInput reports whether the message names a known place.
func IsLocationInput(text string) bool {
	_, ok := Geocode(text)
	return ok
}

// containsWord matches name only at word boundaries so "dha" does not fire
// inside "dhaka" or "adhan".
func containsWord(text, name string) bool {
	for start := 0; ; {
		idx := strings.Index(text[start:], name)
		if idx < 0 {
			return false
		}
		begin := start + idx
		end := begin + len(name)
		if (begin == 0 || !isWordByte(text[begin-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = begin + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
