// Package stubapi is a local stand-in for the private weather server,
// serving the envelope format the client expects. It exists so the CLI
// and end-to-end experiments can run without the real backend: the data
// is canned, only the contract is faithful.
package stubapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// city is a canned search-index row.
type city struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

var cities = []city{
	{Name: "Stockholm", Country: "SE", Lat: 59.3293, Lon: 18.0686},
	{Name: "Gothenburg", Country: "SE", Lat: 57.7089, Lon: 11.9746},
	{Name: "Oslo", Country: "NO", Lat: 59.9139, Lon: 10.7522},
	{Name: "Copenhagen", Country: "DK", Lat: 55.6761, Lon: 12.5683},
	{Name: "Helsinki", Country: "FI", Lat: 60.1699, Lon: 24.9384},
}

// coordsQuery holds validated coordinate query parameters.
type coordsQuery struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

// RegisterRoutes wires the stub handlers into the Fiber app.
func RegisterRoutes(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"success": true,
			"service": "weather-stub",
			"version": "1.0",
			"endpoints": []string{
				"/v1/current", "/v1/weather", "/v1/cities", "/echo",
			},
		})
	})

	app.Get("/echo", func(c *fiber.Ctx) error {
		return c.SendString("echo from weather-stub")
	})

	v1 := app.Group("/v1")

	v1.Get("/current", func(c *fiber.Ctx) error {
		var q coordsQuery
		var err error
		if q.Lat, err = parseFloatQuery(c, "lat"); err != nil {
			return failure(c, fiber.StatusBadRequest, "lat is required and must be a number")
		}
		if q.Lon, err = parseFloatQuery(c, "lon"); err != nil {
			return failure(c, fiber.StatusBadRequest, "lon is required and must be a number")
		}
		if err := validate.Struct(q); err != nil {
			return failure(c, fiber.StatusBadRequest, "coordinates out of range")
		}

		return c.JSON(fiber.Map{
			"success": true,
			"current": cannedWeather(q.Lat, q.Lon),
		})
	})

	v1.Get("/weather", func(c *fiber.Ctx) error {
		name := strings.TrimSpace(c.Query("city"))
		if name == "" {
			return failure(c, fiber.StatusBadRequest, "city is required")
		}

		for _, ct := range cities {
			if strings.EqualFold(ct.Name, name) {
				return c.JSON(fiber.Map{
					"success": true,
					"city":    ct,
					"current": cannedWeather(ct.Lat, ct.Lon),
				})
			}
		}
		return failure(c, fiber.StatusNotFound, "unknown city: "+name)
	})

	v1.Get("/cities", func(c *fiber.Ctx) error {
		query := strings.TrimSpace(c.Query("query"))
		if len(query) < 2 {
			return failure(c, fiber.StatusBadRequest, "query must be at least 2 characters")
		}

		matches := make([]city, 0, len(cities))
		for _, ct := range cities {
			if strings.Contains(strings.ToLower(ct.Name), strings.ToLower(query)) {
				matches = append(matches, ct)
			}
		}
		return c.JSON(fiber.Map{
			"success": true,
			"cities":  matches,
		})
	})
}

func parseFloatQuery(c *fiber.Ctx, name string) (float64, error) {
	return strconv.ParseFloat(c.Query(name), 64)
}

func failure(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"message": message,
		},
	})
}

// cannedWeather derives a stable fake reading from the coordinates so
// repeated calls are deterministic.
func cannedWeather(lat, lon float64) fiber.Map {
	return fiber.Map{
		"temperature": 15.0 + lat/10 - lon/40,
		"humidity":    60,
		"windSpeed":   4.2,
		"condition":   "cloudy",
		"observedAt":  time.Now().UTC().Format(time.RFC3339),
	}
}
