// Package lifecycle provides graceful early-termination for long
// simulation runs: SIGINT/SIGTERM handling and an optional stop-request
// file, either of which lets a multi-day simulated horizon be cut short
// without losing the traces written so far. Adapted from the reference
// framework's emergency-stop controller, generalized from aborting a
// chaos experiment to cutting a simulation run's Simulator.Run loop short.
package lifecycle

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// StopController watches for an external stop request — a signal or the
// appearance of a stop file — and notifies the simulator's run loop so it
// can finish the current event, flush traces, and exit cleanly instead of
// leaving a partially-written CSV on an abrupt process kill.
type StopController struct {
	stopFile     string
	pollInterval time.Duration

	mutex     sync.Mutex
	stopped   bool
	reason    string
	stopCh    chan struct{}
	callbacks []func(reason string)

	done chan struct{}
}

// Config configures a StopController.
type Config struct {
	// StopFile, if non-empty, is polled for existence; its appearance
	// triggers a stop the same as a signal.
	StopFile string
	// PollInterval governs the stop-file check frequency. Defaults to 1s.
	PollInterval time.Duration
}

// New builds a StopController. Call Start to begin watching.
func New(cfg Config) *StopController {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &StopController{
		stopFile:     cfg.StopFile,
		pollInterval: cfg.PollInterval,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start begins watching SIGINT/SIGTERM and, if configured, the stop file,
// on a background goroutine. Call Close to release its resources once the
// run has finished, whether or not a stop was triggered.
func (c *StopController) Start() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var ticker *time.Ticker
	var tickCh <-chan time.Time
	if c.stopFile != "" {
		ticker = time.NewTicker(c.pollInterval)
		tickCh = ticker.C
	}

	go func() {
		defer signal.Stop(sigCh)
		if ticker != nil {
			defer ticker.Stop()
		}
		for {
			select {
			case <-c.done:
				return
			case sig := <-sigCh:
				c.trigger(fmt.Sprintf("signal: %v", sig))
				return
			case <-tickCh:
				if _, err := os.Stat(c.stopFile); err == nil {
					c.trigger(fmt.Sprintf("stop file detected: %s", c.stopFile))
					return
				}
			}
		}
	}()
}

// Close releases the watching goroutine; safe to call whether or not a
// stop was triggered.
func (c *StopController) Close() {
	close(c.done)
}

func (c *StopController) trigger(reason string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	c.reason = reason
	close(c.stopCh)
	for _, cb := range c.callbacks {
		cb(reason)
	}
}

// Stopped reports whether a stop has been requested. The simulator's run
// loop checks this between its hourly scheduler chunks.
func (c *StopController) Stopped() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stopped
}

// Reason returns the trigger reason, or "" if no stop has been requested.
func (c *StopController) Reason() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.reason
}

// StopChannel returns a channel that closes once a stop is requested.
func (c *StopController) StopChannel() <-chan struct{} {
	return c.stopCh
}

// OnStop registers a callback invoked with the trigger reason once, the
// first time a stop is requested.
func (c *StopController) OnStop(cb func(reason string)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.callbacks = append(c.callbacks, cb)
}
