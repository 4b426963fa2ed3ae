package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-client/internal/client"
)

// AppConfig holds the client-side configuration.
type AppConfig struct {
	// Weather server endpoint.
	ServerHost string
	ServerPort int

	// Per-operation network timeout (connect, each receive).
	Timeout time.Duration

	// Response cache settings.
	CacheDir        string
	CacheMaxEntries int
	CacheTTL        time.Duration

	// Maximum number of requests the state machine tracks at once.
	MaxRequests int

	// Background refresh of tracked locations.
	RefreshInterval time.Duration
	Locations       []client.Location
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.ServerHost = getenvDefault("WEATHER_SERVER_HOST", "localhost")
	cfg.ServerPort = getenvInt("WEATHER_SERVER_PORT", 10680)

	timeoutStr := getenvDefault("WEATHER_TIMEOUT", "5s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid WEATHER_TIMEOUT: %w", err)
	}
	cfg.Timeout = timeout

	cfg.CacheDir = getenvDefault("WEATHER_CACHE_DIR", ".weather-cache")
	cfg.CacheMaxEntries = getenvInt("WEATHER_CACHE_MAX_ENTRIES", 50)

	ttlStr := getenvDefault("WEATHER_CACHE_TTL", "5m")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid WEATHER_CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = ttl

	cfg.MaxRequests = getenvInt("WEATHER_MAX_REQUESTS", 16)

	intervalStr := getenvDefault("WEATHER_REFRESH_INTERVAL", "15m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid WEATHER_REFRESH_INTERVAL: %w", err)
	}
	cfg.RefreshInterval = interval

	locs, err := loadLocations()
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	return cfg, nil
}

// loadLocations parses the comma-separated city/country lists tracked
// by the background refresher. Both may be empty.
func loadLocations() ([]client.Location, error) {
	city := os.Getenv("WEATHER_LOCATION_CITY")
	country := os.Getenv("WEATHER_LOCATION_COUNTRY")
	if city == "" {
		return nil, nil
	}

	cities := strings.Split(city, ",")
	countries := strings.Split(country, ",")
	if len(cities) != len(countries) {
		return nil, fmt.Errorf("number of cities and countries must be the same")
	}

	var locs []client.Location
	for i := range cities {
		locs = append(locs, client.Location{
			City:    strings.TrimSpace(cities[i]),
			Country: strings.TrimSpace(countries[i]),
		})
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
