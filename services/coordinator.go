// Package services runs the long-lived poll coordinator that drives the
// inverter client on a schedule and exposes the latest snapshot.
package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/easun/isolar-poller/inverter"
	"github.com/easun/isolar-poller/models"
)

const (
	minScanInterval = 1 * time.Second
	maxScanInterval = 3600 * time.Second
	stuckThreshold  = 30 * time.Second
	maxBackoff      = 30 * time.Second

	// pollHardTimeout + pollGracePeriod bounds a single poll: past this,
	// the coordinator stops waiting and tears the transport down rather
	// than let a hung poll block the tick loop indefinitely.
	pollHardTimeout   = 30 * time.Second
	pollGracePeriod   = 5 * time.Second
	defaultPollBudget = pollHardTimeout + pollGracePeriod
)

// Poller is the minimal surface the coordinator needs from an inverter
// client, so tests can substitute a fake. ctx carries the per-poll budget;
// an implementation that holds a transport (socket, listener) must tear it
// down when ctx is done so a blocked read/accept unblocks promptly.
type Poller interface {
	Poll(ctx context.Context) (models.Snapshot, error)
}

type pollOutcome struct {
	snap models.Snapshot
	err  error
}

// AuditLogger records poll outcomes for operational history. Optional —
// a Coordinator with none configured simply skips logging.
type AuditLogger interface {
	RecordSuccess()
	RecordFailure(consecutiveFailures int, err error)
}

// Publisher delivers a freshly polled snapshot to an external consumer.
// Optional — a Coordinator with none configured simply skips publishing.
type Publisher interface {
	Publish(models.Snapshot) error
}

// Coordinator ticks the inverter client on a fixed schedule, guarantees at
// most one poll in flight, detects and clears stuck polls, and applies
// exponential backoff (no jitter) after consecutive failures.
type Coordinator struct {
	poller     Poller
	period     time.Duration
	pollBudget time.Duration
	audit      AuditLogger
	publisher  Publisher

	mu                  sync.Mutex
	inFlight            bool
	inFlightSince       time.Time
	consecutiveFailures int
	lastSnapshot        *models.Snapshot
	lastError           error

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCoordinator builds a coordinator for the given poller, clamping period
// into [minScanInterval, maxScanInterval].
func NewCoordinator(poller Poller, period time.Duration) *Coordinator {
	if period < minScanInterval {
		period = minScanInterval
	}
	if period > maxScanInterval {
		period = maxScanInterval
	}
	return &Coordinator{
		poller:     poller,
		period:     period,
		pollBudget: defaultPollBudget,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start runs the ticker loop until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	go c.run(ctx)
}

// SetAuditLog attaches an audit logger; must be called before Start.
func (c *Coordinator) SetAuditLog(a AuditLogger) { c.audit = a }

// SetPublisher attaches a snapshot publisher; must be called before Start.
func (c *Coordinator) SetPublisher(p Publisher) { c.publisher = p }

// Stop ends the ticker loop and waits for it to exit.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	<-c.doneChan
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.doneChan)
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	log.Printf("ℹ️ poll coordinator started, interval=%s", c.period)
	go c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("ℹ️ poll coordinator stopping: %v", ctx.Err())
			return
		case <-c.stopChan:
			log.Printf("ℹ️ poll coordinator stopping")
			return
		case <-ticker.C:
			// Each tick runs in its own goroutine so a hung poll can
			// never block the ticker loop itself — inFlight is what
			// detects and clears a stuck poll, not ticker starvation.
			go c.tick(ctx)
		}
	}
}

// tick enforces the single-flight and stuck-poll invariants, runs one poll
// under pollBudget, and applies backoff sleep on failure. Because run
// launches ticks concurrently, inFlight being true here can mean a
// genuinely still-running poll from a previous tick, not just a test
// fixture — that's what lets the stuck-poll branch below actually fire.
func (c *Coordinator) tick(ctx context.Context) {
	c.mu.Lock()
	if c.inFlight {
		if time.Since(c.inFlightSince) < stuckThreshold {
			c.mu.Unlock()
			log.Printf("⚠️ poll already in flight, skipping tick")
			return
		}
		log.Printf("❌ stuck poll exceeded %s, forcing clear", stuckThreshold)
		c.lastError = inverter.ErrStuckPoll
	}
	c.inFlight = true
	c.inFlightSince = time.Now()
	c.mu.Unlock()

	pollCtx, cancel := context.WithTimeout(ctx, c.pollBudget)
	defer cancel()

	outcome := make(chan pollOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- pollOutcome{err: fmt.Errorf("poll panicked: %v", r)}
			}
		}()
		snap, err := c.poller.Poll(pollCtx)
		outcome <- pollOutcome{snap: snap, err: err}
	}()

	select {
	case out := <-outcome:
		if out.err != nil {
			c.recordFailure(out.err)
		} else {
			c.recordSuccess(out.snap)
		}
	case <-pollCtx.Done():
		// The poll goroutine above is expected to observe pollCtx.Done()
		// and tear its transport down; we don't wait for it to actually
		// exit before moving on — its result, if it ever arrives, goes
		// into a buffered channel nobody reads again.
		log.Printf("❌ poll exceeded %s budget, abandoning", c.pollBudget)
		c.recordFailure(fmt.Errorf("%w: exceeded %s budget", inverter.ErrStuckPoll, c.pollBudget))
	}

	c.mu.Lock()
	backoff := c.backoffDuration()
	c.mu.Unlock()

	if backoff > 0 {
		log.Printf("⏳ backing off %s after %d consecutive failures", backoff, c.consecutiveFailures)
		time.Sleep(backoff)
	}

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Coordinator) recordSuccess(snap models.Snapshot) {
	c.mu.Lock()
	c.consecutiveFailures = 0
	c.lastSnapshot = &snap
	c.lastError = nil
	c.mu.Unlock()

	if c.audit != nil {
		c.audit.RecordSuccess()
	}
	if c.publisher != nil {
		if err := c.publisher.Publish(snap); err != nil {
			log.Printf("⚠️ publish failed: %v", err)
		}
	}
	log.Printf("✅ snapshot published")
}

func (c *Coordinator) recordFailure(err error) {
	c.mu.Lock()
	c.consecutiveFailures++
	c.lastError = err
	failures := c.consecutiveFailures
	c.mu.Unlock()

	if c.audit != nil {
		c.audit.RecordFailure(failures, err)
	}
	log.Printf("❌ poll failed (%d consecutive): %v", failures, err)
}

// backoffDuration computes min(30s, 2^consecutiveFailures) with no jitter.
// Must be called with c.mu held.
func (c *Coordinator) backoffDuration() time.Duration {
	if c.consecutiveFailures == 0 {
		return 0
	}
	seconds := math.Pow(2, float64(c.consecutiveFailures))
	d := time.Duration(seconds) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// LastSnapshot returns the most recently published snapshot, if any, and
// the most recent error.
func (c *Coordinator) LastSnapshot() (*models.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSnapshot, c.lastError
}
