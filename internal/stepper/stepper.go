// Package stepper drives multiple logical HTTP requests through
// connect/send/receive/process phases one step at a time. Progress
// happens only inside Tick, on the single goroutine calling it; the
// phases before processing are pure bookkeeping so a caller can observe
// staged progress, and the actual GET runs synchronously at the
// processing step.
package stepper

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-client/internal/httpclient"
)

// State is the phase of a tracked request. States only move forward;
// a freed slot starts over from StateQueued when reused.
type State int

const (
	StateIdle State = iota
	StateQueued
	StateConnecting
	StateSending
	StateReceiving
	StateProcessing
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateQueued:
		return "QUEUED"
	case StateConnecting:
		return "CONNECTING"
	case StateSending:
		return "SENDING"
	case StateReceiving:
		return "RECEIVING"
	case StateProcessing:
		return "PROCESSING"
	case StateCompleted:
		return "COMPLETED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Executor is the capability the machine needs to perform the GET at
// the processing step. Satisfied by *httpclient.Client and by test
// doubles.
type Executor interface {
	Get(url string) (*httpclient.Response, error)
}

// Result is delivered exactly once per request that reaches a terminal
// state: to the request's callback when one was registered, otherwise
// onto the machine's results channel.
type Result struct {
	ID         uuid.UUID
	StatusCode int
	Body       []byte
	Err        error
	Elapsed    time.Duration
}

// Callback receives a request's Result. Optional; nil routes the
// Result to Results().
type Callback func(Result)

// ErrTableFull is returned by Enqueue when every slot is occupied.
var ErrTableFull = errors.New("request table full")

type request struct {
	id        uuid.UUID
	baseURL   string
	endpoint  string
	query     string
	state     State
	startedAt time.Time
	callback  Callback
}

func (r *request) url() string {
	if r.query == "" {
		return fmt.Sprintf("%s/%s", r.baseURL, r.endpoint)
	}
	return fmt.Sprintf("%s/%s?%s", r.baseURL, r.endpoint, r.query)
}

// Machine is a fixed-capacity table of requests advanced by Tick. It
// is not safe for concurrent use; one goroutine owns it.
type Machine struct {
	exec     Executor
	requests []*request
	results  chan Result
	log      *logrus.Entry
}

// New creates a Machine with the given slot capacity (non-positive
// means 16, the historical table size).
func New(exec Executor, capacity int, logger *logrus.Logger) *Machine {
	if capacity <= 0 {
		capacity = 16
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{
		exec:     exec,
		requests: make([]*request, capacity),
		results:  make(chan Result, capacity),
		log:      logger.WithField("component", "stepper"),
	}
}

// Results returns the channel receiving completions of requests queued
// without a callback. The channel is buffered to the machine's
// capacity, so it cannot block a Tick as long as the caller drains it
// between runs.
func (m *Machine) Results() <-chan Result {
	return m.results
}

// Enqueue claims a free slot for a GET of baseURL/endpoint?query. The
// callback may be nil. Returns the request's ID.
func (m *Machine) Enqueue(baseURL, endpoint, query string, cb Callback) (uuid.UUID, error) {
	for i, r := range m.requests {
		if r != nil {
			continue
		}
		req := &request{
			id:       uuid.New(),
			baseURL:  baseURL,
			endpoint: endpoint,
			query:    query,
			state:    StateQueued,
			callback: cb,
		}
		m.requests[i] = req
		m.log.WithFields(logrus.Fields{"id": req.id, "slot": i, "endpoint": endpoint}).Debug("request queued")
		return req.id, nil
	}
	return uuid.Nil, ErrTableFull
}

// Tick advances every tracked request exactly one phase and returns the
// number of requests not yet in a terminal state. A terminal request
// stays observable for one full tick after completing; the next Tick
// frees its slot for reuse.
func (m *Machine) Tick(now time.Time) int {
	active := 0

	for i, req := range m.requests {
		if req == nil {
			continue
		}

		switch req.state {
		case StateQueued:
			req.state = StateConnecting
			req.startedAt = now
			active++

		case StateConnecting:
			req.state = StateSending
			active++

		case StateSending:
			req.state = StateReceiving
			active++

		case StateReceiving:
			req.state = StateProcessing
			active++

		case StateProcessing:
			m.process(req, now)

		case StateCompleted, StateError:
			// The terminal state was observable for the full tick since
			// it was reached; free the slot now.
			m.requests[i] = nil
		}
	}

	return active
}

// StateOf reports the current state of a request, or StateIdle once its
// slot has been freed.
func (m *Machine) StateOf(id uuid.UUID) State {
	for _, req := range m.requests {
		if req != nil && req.id == id {
			return req.state
		}
	}
	return StateIdle
}

// Drain loops Tick until no request remains active or maxTicks is
// reached, and returns the number of ticks spent.
func (m *Machine) Drain(maxTicks int) int {
	ticks := 0
	for ticks < maxTicks {
		ticks++
		if m.Tick(time.Now()) == 0 {
			break
		}
	}
	return ticks
}

// process performs the blocking GET and delivers the Result. This is
// the only step inside a Tick that touches the network.
func (m *Machine) process(req *request, now time.Time) {
	resp, err := m.exec.Get(req.url())

	res := Result{
		ID:      req.id,
		Err:     err,
		Elapsed: now.Sub(req.startedAt),
	}
	if err != nil {
		req.state = StateError
	} else {
		res.StatusCode = resp.StatusCode
		res.Body = resp.Body
		req.state = StateCompleted
	}

	m.log.WithFields(logrus.Fields{
		"id":    req.id,
		"state": req.state,
	}).Debug("request finished")

	if req.callback != nil {
		req.callback(res)
		return
	}

	select {
	case m.results <- res:
	default:
		m.log.WithField("id", req.id).Warn("results channel full, dropping completion")
	}
}
