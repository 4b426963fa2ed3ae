package stubapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func testApp() *fiber.App {
	app := fiber.New()
	RegisterRoutes(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, target string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	var doc map[string]any
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &doc); err != nil {
			t.Fatalf("unparsable body %q: %v", body, err)
		}
	}
	return resp.StatusCode, doc
}

func TestCurrentValidatesCoordinates(t *testing.T) {
	app := testApp()

	status, doc := doRequest(t, app, "/v1/current?lat=59.33&lon=18.07")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if doc["success"] != true {
		t.Fatalf("expected success envelope, got %v", doc)
	}

	status, doc = doRequest(t, app, "/v1/current?lat=91&lon=0")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range latitude, got %d", status)
	}
	if doc["success"] != false {
		t.Fatalf("expected failure envelope, got %v", doc)
	}

	status, _ = doRequest(t, app, "/v1/current?lon=18.07")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing latitude, got %d", status)
	}
}

func TestWeatherByCity(t *testing.T) {
	app := testApp()

	status, doc := doRequest(t, app, "/v1/weather?city=Stockholm&country=SE")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if doc["success"] != true {
		t.Fatalf("expected success envelope, got %v", doc)
	}

	status, doc = doRequest(t, app, "/v1/weather?city=Atlantis")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown city, got %d", status)
	}
	errObj, ok := doc["error"].(map[string]any)
	if !ok || errObj["message"] == "" {
		t.Fatalf("expected error.message in failure envelope, got %v", doc)
	}
}

func TestCitySearch(t *testing.T) {
	app := testApp()

	status, _ := doRequest(t, app, "/v1/cities?query=s")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for 1-char query, got %d", status)
	}

	status, doc := doRequest(t, app, "/v1/cities?query=hol")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	cities, ok := doc["cities"].([]any)
	if !ok || len(cities) == 0 {
		t.Fatalf("expected matches for 'hol', got %v", doc)
	}
}

func TestHomepageAndEcho(t *testing.T) {
	app := testApp()

	status, doc := doRequest(t, app, "/")
	if status != http.StatusOK || doc["success"] != true {
		t.Fatalf("expected homepage success envelope, got %d %v", status, doc)
	}

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "echo from weather-stub" {
		t.Fatalf("unexpected echo body %q", body)
	}
}
