// Package refresher periodically re-fetches weather for configured
// locations through the facade, so the response cache stays warm
// between interactive requests. It is purely an optimization layer on
// top of the client; failures are logged and the next run tries again.
package refresher

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-client/internal/client"
)

// Source is the facade capability the refresher drives.
type Source interface {
	WeatherByCity(city, country, region string) (client.Document, error)
}

// Refresher owns the periodic job and the resilience state wrapped
// around each fetch.
type Refresher struct {
	scheduler *gocron.Scheduler
	source    Source
	locations []client.Location
	interval  time.Duration
	circuit   *gobreaker.CircuitBreaker
	backoff   BackoffConfig
	log       *logrus.Entry
}

// New creates a Refresher for the given locations and interval.
func New(source Source, locations []client.Location, interval time.Duration, logger *logrus.Logger) *Refresher {
	if logger == nil {
		logger = logrus.New()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weather-refresh",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Refresher{
		scheduler: gocron.NewScheduler(time.UTC),
		source:    source,
		locations: locations,
		interval:  interval,
		circuit:   cb,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		log: logger.WithField("component", "refresher"),
	}
}

// Start schedules the periodic refresh job.
func (r *Refresher) Start() error {
	if len(r.locations) == 0 {
		r.log.Info("no locations configured; nothing to refresh")
		return nil
	}

	minutes := int(r.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	if _, err := r.scheduler.Every(minutes).Minutes().Do(r.runOnce); err != nil {
		return err
	}

	r.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels future runs.
func (r *Refresher) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}

// runOnce refreshes every location sequentially: the facade is a
// single-threaded client, so the job never fans out.
func (r *Refresher) runOnce() {
	r.log.Debug("running cache refresh job")

	for _, loc := range r.locations {
		err := executeWithResilience(r.backoff, r.circuit, func() error {
			_, fetchErr := r.source.WeatherByCity(loc.City, loc.Country, "")
			return fetchErr
		})
		if err != nil {
			r.log.WithError(err).WithField("location", loc.Key()).Warn("refresh failed")
		}
	}
}
