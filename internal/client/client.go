// Package client is the high-level weather API facade: it validates
// inputs, builds endpoint URLs and cache keys, and wires the HTTP
// transaction layer together with the response cache.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weather-client/internal/cache"
	"github.com/i474232898/weather-client/internal/common"
	"github.com/i474232898/weather-client/internal/httpclient"
)

var (
	// ErrValidation marks bad caller input; no network or cache work
	// was attempted.
	ErrValidation = errors.New("validation error")

	// ErrServer marks a well-formed response whose success flag is
	// false. The server's error message is included.
	ErrServer = errors.New("server error")
)

// Per-endpoint cache lifetimes.
const (
	TTLWeather  = 5 * time.Minute
	TTLCities   = time.Hour
	TTLHomepage = 24 * time.Hour
)

const (
	defaultHost    = "localhost"
	defaultPort    = 10680
	defaultTimeout = 5 * time.Second
)

var validate = validator.New()

// Document is a parsed JSON response. The facade only ever reads the
// top-level "success" flag and "error.message"; everything else is the
// caller's business.
type Document map[string]any

// Location identifies a tracked place, used by configuration and the
// background refresher.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Key returns a canonical string key for this location.
func (l Location) Key() string {
	return l.City + ":" + l.Country
}

// Getter is the HTTP capability the facade needs. Satisfied by
// *httpclient.Client and by test doubles.
type Getter interface {
	Get(url string) (*httpclient.Response, error)
}

// Options configures a Client. Zero values fall back to the defaults
// of the private weather server (localhost:10680, 5s timeout).
type Options struct {
	Host    string
	Port    int
	Timeout time.Duration
	HTTP    Getter        // optional; a real httpclient.Client when nil
	Cache   *cache.Cache  // optional; nil disables caching
	Logger  *logrus.Logger
}

// Client talks to the private weather API. It is driven by a single
// goroutine; the synchronous methods block for the whole
// connect+send+receive duration of a request.
type Client struct {
	http   Getter
	cache  *cache.Cache
	host   string
	port   int
	log    *logrus.Entry
	flight singleflight.Group
}

// New creates a Client from opts.
func New(opts Options) *Client {
	if opts.Host == "" {
		opts.Host = defaultHost
	}
	if opts.Port <= 0 {
		opts.Port = defaultPort
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTP == nil {
		opts.HTTP = httpclient.New(opts.Timeout)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	return &Client{
		http:  opts.HTTP,
		cache: opts.Cache,
		host:  opts.Host,
		port:  opts.Port,
		log:   opts.Logger.WithField("component", "client"),
	}
}

// Current fetches the current weather for a coordinate pair.
func (c *Client) Current(lat, lon float64) (Document, error) {
	if err := validate.Var(lat, "gte=-90,lte=90"); err != nil {
		return nil, fmt.Errorf("%w: latitude %v out of range [-90,90]", ErrValidation, lat)
	}
	if err := validate.Var(lon, "gte=-180,lte=180"); err != nil {
		return nil, fmt.Errorf("%w: longitude %v out of range [-180,180]", ErrValidation, lon)
	}

	url := fmt.Sprintf("%s/v1/current?lat=%.4f&lon=%.4f", c.baseURL(), lat, lon)
	key := cacheKey("current", fmt.Sprintf("lat=%.4f:lon=%.4f", lat, lon))

	return c.fetch(url, key, TTLWeather)
}

// WeatherByCity fetches weather for a named city. Country and region
// are optional refinements.
func (c *Client) WeatherByCity(city, country, region string) (Document, error) {
	if common.IsBlank(city) {
		return nil, fmt.Errorf("%w: city name must not be blank", ErrValidation)
	}

	url := fmt.Sprintf("%s/v1/weather?city=%s", c.baseURL(), common.PercentEncode(city))
	if country != "" {
		url += "&country=" + common.PercentEncode(country)
	}
	if region != "" {
		url += "&region=" + common.PercentEncode(region)
	}

	params := fmt.Sprintf("city=%s:country=%s:region=%s",
		common.NormalizeForKey(city),
		common.NormalizeForKey(country),
		common.NormalizeForKey(region))
	key := cacheKey("weather", params)

	return c.fetch(url, key, TTLWeather)
}

// SearchCities looks up cities matching query (at least 2 characters).
func (c *Client) SearchCities(query string) (Document, error) {
	if err := validate.Var(strings.TrimSpace(query), "min=2"); err != nil {
		return nil, fmt.Errorf("%w: query must be at least 2 characters", ErrValidation)
	}

	url := fmt.Sprintf("%s/v1/cities?query=%s", c.baseURL(), common.PercentEncode(query))
	key := cacheKey("cities", "query="+common.NormalizeForKey(query))

	return c.fetch(url, key, TTLCities)
}

// Homepage fetches the server's root document.
func (c *Client) Homepage() (Document, error) {
	url := fmt.Sprintf("http://%s:%d/", c.host, c.port)
	key := cacheKey("homepage", "")

	return c.fetch(url, key, TTLHomepage)
}

// Echo hits the echo endpoint and wraps the raw body. Echo responses
// are never cached.
func (c *Client) Echo() (Document, error) {
	resp, err := c.http.Get(fmt.Sprintf("http://%s:%d/echo", c.host, c.port))
	if err != nil {
		return nil, err
	}
	return Document{"echo": string(resp.Body)}, nil
}

// ClearCache drops every cached response, memory and disk.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("http://%s:%d", c.host, c.port)
}

func cacheKey(endpoint, params string) string {
	return endpoint + ":" + params
}

// fetch serves the request from cache when possible, otherwise performs
// the GET, checks the success envelope, caches the raw body and returns
// the parsed document. Concurrent misses for the same key collapse into
// one network call.
func (c *Client) fetch(url, key string, ttl time.Duration) (Document, error) {
	if c.cache != nil {
		if payload, ok := c.cache.Get(key); ok {
			var doc Document
			if err := json.Unmarshal([]byte(payload), &doc); err == nil {
				c.log.WithField("key", key).Debug("cache hit")
				return doc, nil
			}
			// Unparsable cached payload: fall through to the network.
			c.log.WithField("key", key).Warn("discarding unparsable cached payload")
		}
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		return c.request(url, key, ttl)
	})
	if err != nil {
		return nil, err
	}
	return v.(Document), nil
}

func (c *Client) request(url, key string, ttl time.Duration) (Document, error) {
	resp, err := c.http.Get(url)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("%w: unparsable response body: %v", httpclient.ErrProtocol, err)
	}

	if success, ok := doc["success"].(bool); ok && !success {
		return nil, fmt.Errorf("%w: %s", ErrServer, serverMessage(doc))
	}

	if c.cache != nil {
		c.cache.SetWithTTL(key, string(resp.Body), ttl)
	}
	return doc, nil
}

// serverMessage digs error.message out of a failure envelope.
func serverMessage(doc Document) string {
	if errObj, ok := doc["error"].(map[string]any); ok {
		if msg, ok := errObj["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return "request failed"
}
