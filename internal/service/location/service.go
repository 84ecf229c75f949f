package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	SourceIP       = "ip"
	SourceFallback = "fallback"
	SourceManual   = "manual"
	SourceGPS      = "gps"
)

// Result is a resolved caller position.
type Result struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	City      string  `json:"city,omitempty"`
	Region    string  `json:"region,omitempty"`
	Country   string  `json:"country,omitempty"`
	Source    string  `json:"source"`
}

// Fallback is returned whenever the IP lookup cannot produce a position.
var Fallback = Result{
	Latitude:  24.8607,
	Longitude: 67.0011,
	Address:   "Karachi, Pakistan",
	City:      "Karachi",
	Region:    "Sindh",
	Country:   "Pakistan",
	Source:    SourceFallback,
}

// Config controls the IP geolocation lookup.
type Config struct {
	Enabled bool
	BaseURL string
	Timeout time.Duration
}

// Service resolves approximate caller positions from IP addresses.
type Service struct {
	cfg    Config
	client *http.Client
}

// NewService creates a resolver. A nil client gets one with cfg.Timeout.
func NewService(cfg Config, client *http.Client) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://ip-api.com/json/"
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Service{cfg: cfg, client: client}
}

type ipAPIResponse struct {
	Status     string   `json:"status"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	City       string   `json:"city"`
	RegionName string   `json:"regionName"`
	Country    string   `json:"country"`
}

// Lookup resolves ip to a position. It never fails: disabled lookups, local
// addresses and upstream errors all yield Fallback.
func (s *Service) Lookup(ctx context.Context, ip string) Result {
	if s == nil || !s.cfg.Enabled {
		return Fallback
	}
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil || addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return Fallback
	}

	result, err := s.fetch(ctx, addr.String())
	if err != nil {
		log.Printf("[location] ip lookup failed for %s, using fallback: %v", addr, err)
		return Fallback
	}
	return result
}

func (s *Service) fetch(ctx context.Context, ip string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+ip, nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if payload.Status != "success" || payload.Lat == nil || payload.Lon == nil {
		return Result{}, fmt.Errorf("lookup status %q", payload.Status)
	}

	city := orDefault(payload.City, Fallback.City)
	country := orDefault(payload.Country, Fallback.Country)
	return Result{
		Latitude:  *payload.Lat,
		Longitude: *payload.Lon,
		Address:   city + ", " + country,
		City:      city,
		Region:    orDefault(payload.RegionName, Fallback.Region),
		Country:   country,
		Source:    SourceIP,
	}, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
