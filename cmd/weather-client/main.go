package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/i474232898/weather-client/internal/cache"
	"github.com/i474232898/weather-client/internal/client"
	"github.com/i474232898/weather-client/internal/common"
	"github.com/i474232898/weather-client/internal/config"
	"github.com/i474232898/weather-client/internal/httpclient"
	"github.com/i474232898/weather-client/internal/refresher"
	"github.com/i474232898/weather-client/internal/stepper"
)

const usage = `Usage: weather-client [flags] <command> [args]

Commands:
  current <lat> <lon>              current weather for coordinates
  city <name> [country] [region]   weather for a named city
  search <query>                   search cities (query >= 2 chars)
  home                             server homepage document
  echo                             echo endpoint round trip
  clear-cache                      drop all cached responses
  watch                            refresh configured locations until interrupted

Flags:
`

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	pflag.String("host", cfg.ServerHost, "weather server host")
	pflag.Int("port", cfg.ServerPort, "weather server port")
	pflag.Duration("timeout", cfg.Timeout, "per-operation network timeout")
	pflag.String("cache-dir", cfg.CacheDir, "response cache directory")
	pflag.Int("cache-entries", cfg.CacheMaxEntries, "response cache entry cap")
	pflag.Bool("smw", false, "drive the request through the state machine worker")
	pflag.Bool("verbose", false, "enable debug logging")
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	viper.SetEnvPrefix("WEATHER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		log.WithError(err).Fatal("failed to bind flags")
	}

	if viper.GetBool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	respCache, err := cache.New(viper.GetString("cache-dir"), viper.GetInt("cache-entries"), cfg.CacheTTL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize response cache")
	}

	host := viper.GetString("host")
	port := viper.GetInt("port")
	timeout := viper.GetDuration("timeout")

	c := client.New(client.Options{
		Host:    host,
		Port:    port,
		Timeout: timeout,
		Cache:   respCache,
		Logger:  log,
	})

	if viper.GetBool("smw") {
		runStateMachine(log, host, port, timeout, cfg.MaxRequests, args)
		return
	}

	doc, err := runCommand(c, cfg, log, args)
	if err != nil {
		log.WithError(err).Fatal("request failed")
	}
	if doc != nil {
		printDocument(doc)
	}
}

func runCommand(c *client.Client, cfg *config.AppConfig, log *logrus.Logger, args []string) (client.Document, error) {
	switch args[0] {
	case "current":
		if len(args) != 3 {
			return nil, fmt.Errorf("current requires <lat> <lon>")
		}
		lat, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q", args[1])
		}
		lon, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q", args[2])
		}
		return c.Current(lat, lon)

	case "city":
		if len(args) < 2 {
			return nil, fmt.Errorf("city requires <name> [country] [region]")
		}
		country, region := "", ""
		if len(args) > 2 {
			country = args[2]
		}
		if len(args) > 3 {
			region = args[3]
		}
		return c.WeatherByCity(args[1], country, region)

	case "search":
		if len(args) != 2 {
			return nil, fmt.Errorf("search requires <query>")
		}
		return c.SearchCities(args[1])

	case "home":
		return c.Homepage()

	case "echo":
		return c.Echo()

	case "clear-cache":
		c.ClearCache()
		fmt.Println("cache cleared")
		return nil, nil

	case "watch":
		return nil, runWatch(c, cfg, log)

	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}
}

// runWatch keeps the cache warm for the configured locations until the
// process is interrupted.
func runWatch(c *client.Client, cfg *config.AppConfig, log *logrus.Logger) error {
	if len(cfg.Locations) == 0 {
		return fmt.Errorf("no locations configured; set WEATHER_LOCATION_CITY/WEATHER_LOCATION_COUNTRY")
	}

	r := refresher.New(c, cfg.Locations, cfg.RefreshInterval, log)
	if err := r.Start(); err != nil {
		return err
	}
	defer r.Stop()

	log.WithField("locations", len(cfg.Locations)).Info("refreshing; press Ctrl-C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

// runStateMachine queues the requested endpoint on the cooperative
// stepper and ticks it to completion, printing each phase transition
// the way the request table reports it.
func runStateMachine(log *logrus.Logger, host string, port int, timeout time.Duration, capacity int, args []string) {
	baseURL := fmt.Sprintf("http://%s:%d/v1", host, port)

	endpoint, query, err := endpointFor(args)
	if err != nil {
		log.WithError(err).Fatal("cannot run command through the state machine")
	}

	machine := stepper.New(httpclient.New(timeout), capacity, log)

	id, err := machine.Enqueue(baseURL, endpoint, query, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to queue request")
	}

	const maxTicks = 20
	for i := 0; i < maxTicks; i++ {
		active := machine.Tick(time.Now())
		fmt.Printf("tick %2d: state=%s active=%d\n", i+1, machine.StateOf(id), active)
		if active == 0 {
			break
		}
	}

	select {
	case res := <-machine.Results():
		if res.Err != nil {
			log.WithError(res.Err).Fatal("request failed")
		}
		fmt.Printf("status: %d\n%s\n", res.StatusCode, res.Body)
	default:
		log.Fatal("request did not complete within the tick budget")
	}
}

func endpointFor(args []string) (endpoint, query string, err error) {
	switch args[0] {
	case "current":
		if len(args) != 3 {
			return "", "", fmt.Errorf("current requires <lat> <lon>")
		}
		return "current", fmt.Sprintf("lat=%s&lon=%s", args[1], args[2]), nil
	case "city":
		if len(args) < 2 {
			return "", "", fmt.Errorf("city requires <name> [country]")
		}
		query = "city=" + common.PercentEncode(args[1])
		if len(args) > 2 {
			query += "&country=" + common.PercentEncode(args[2])
		}
		return "weather", query, nil
	case "search":
		if len(args) != 2 {
			return "", "", fmt.Errorf("search requires <query>")
		}
		return "cities", "query=" + common.PercentEncode(args[1]), nil
	default:
		return "", "", fmt.Errorf("command %q is not supported in --smw mode", args[0])
	}
}

func printDocument(doc client.Document) {
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", doc)
		return
	}
	fmt.Println(string(out))
}
