package facility

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

//go:embed data/*.json
var embedded embed.FS

// dataFiles maps each category onto its JSON file name.
var dataFiles = map[Category]string{
	Medical: "hospitals.json",
	Fire:    "fire_stations.json",
	Police:  "police_stations.json",
}

var ErrNoData = errors.New("no facility data files found")

type record struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Category            string   `json:"category"`
	Type                string   `json:"type"`
	Address             string   `json:"address"`
	Area                string   `json:"area"`
	Latitude            *float64 `json:"latitude"`
	Lat                 *float64 `json:"lat"`
	Longitude           *float64 `json:"longitude"`
	Lon                 *float64 `json:"lon"`
	TelephoneNumbers    []string `json:"telephone_numbers"`
	ContactNumbers      []string `json:"contact_numbers"`
	Phone               string   `json:"phone"`
	EmergencyNumber     string   `json:"emergency_number"`
	Specialties         []string `json:"specialties"`
	Services            []string `json:"services"`
	Vehicles            []string `json:"vehicles"`
	ResponseTimeMinutes int      `json:"response_time_minutes"`
	EmergencyServices   *bool    `json:"emergency_services"`
}

// LoadEmbedded returns the built-in facility dataset.
func LoadEmbedded() ([]Facility, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	return loadFS(sub)
}

// LoadDir reads hospitals.json, fire_stations.json and police_stations.json
// from dir. Missing files are skipped; at least one must be present.
func LoadDir(dir string) ([]Facility, error) {
	return loadFS(os.DirFS(dir))
}

func loadFS(fsys fs.FS) ([]Facility, error) {
	var (
		all   []Facility
		found int
	)
	for _, category := range Categories() {
		name := dataFiles[category]
		f, err := fsys.Open(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		items, err := LoadJSON(f, category)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(name), err)
		}
		found++
		all = append(all, items...)
	}
	if found == 0 {
		return nil, ErrNoData
	}
	return all, nil
}

// LoadJSON decodes a JSON array of facilities. Records without a name or
// without coordinates are skipped. Ids absent from the input are derived from
// the record contents so the result does not depend on array order.
func LoadJSON(r io.Reader, category Category) ([]Facility, error) {
	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode facilities: %w", err)
	}

	items := make([]Facility, 0, len(records))
	skipped := 0
	for _, rec := range records {
		item, ok := rec.toFacility(category)
		if !ok {
			skipped++
			continue
		}
		items = append(items, item)
	}
	if skipped > 0 {
		log.Printf("[facility] skipped %d %s records without name or coordinates", skipped, category)
	}

	assignIDs(items)
	return items, nil
}

func (r record) toFacility(fallback Category) (Facility, bool) {
	name := strings.TrimSpace(r.Name)
	lat := firstNonNil(r.Latitude, r.Lat)
	lon := firstNonNil(r.Longitude, r.Lon)
	if name == "" || lat == nil || lon == nil {
		return Facility{}, false
	}

	category := fallback
	if parsed, ok := ParseCategory(r.Category); ok && parsed != General {
		category = parsed
	}

	contacts := append([]string(nil), r.ContactNumbers...)
	contacts = append(contacts, r.TelephoneNumbers...)
	if phone := strings.TrimSpace(r.Phone); phone != "" {
		contacts = append(contacts, phone)
	}

	emergency := category == Medical
	if r.EmergencyServices != nil {
		emergency = *r.EmergencyServices
	} else if category != Medical {
		emergency = true
	}

	return Facility{
		ID:                  strings.TrimSpace(r.ID),
		Name:                name,
		Category:            category,
		Type:                strings.TrimSpace(r.Type),
		Address:             strings.TrimSpace(r.Address),
		Area:                strings.TrimSpace(r.Area),
		Latitude:            *lat,
		Longitude:           *lon,
		ContactNumbers:      contacts,
		EmergencyNumber:     strings.TrimSpace(r.EmergencyNumber),
		Specialties:         r.Specialties,
		Services:            r.Services,
		Vehicles:            r.Vehicles,
		ResponseTimeMinutes: r.ResponseTimeMinutes,
		EmergencyServices:   emergency,
	}, true
}

// assignIDs fills empty ids with "<category>-<name slug>". When two records
// share a slug every one of them gets a content hash suffix, so no record's id
// depends on which of them came first.
func assignIDs(items []Facility) {
	slugCount := make(map[string]int, len(items))
	for _, item := range items {
		if item.ID == "" {
			slugCount[baseID(item)]++
		}
	}
	for i := range items {
		if items[i].ID != "" {
			continue
		}
		id := baseID(items[i])
		if slugCount[id] > 1 {
			id += "-" + contentHash(items[i])
		}
		items[i].ID = id
	}
}

func baseID(item Facility) string {
	return string(item.Category) + "-" + slugify(item.Name)
}

func contentHash(item Facility) string {
	h := fnv.New32a()
	h.Write([]byte(item.Name))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(item.Latitude, 'f', 6, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(item.Longitude, 'f', 6, 64)))
	h.Write([]byte{0})
	h.Write([]byte(item.Address))
	return strconv.FormatUint(uint64(h.Sum32()), 16)
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func firstNonNil(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
