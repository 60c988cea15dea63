// Package scheduler paces the output transports from a single goroutine.
package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/bbernstein/dmxbridge-go/internal/services/frame"
	"github.com/bbernstein/dmxbridge-go/internal/services/pubsub"
)

// Transport is one way of getting a frame onto the wire. SendFrame is only
// ever called from the scheduler goroutine.
type Transport interface {
	Name() string
	SendFrame(snap frame.Snapshot) error
	FramesSent() uint64
}

// Scheduler fires every enabled transport at most once per delay interval.
// Missed intervals are skipped, never batched: a stalled loop produces fewer
// frames, not a burst.
type Scheduler struct {
	buffer     *frame.Buffer
	transports []Transport
	ps         *pubsub.PubSub

	mu        sync.Mutex
	delay     time.Duration
	lastFired time.Time

	// rates is recomputed on the stats cadence and read by the API.
	rates     map[string]float64
	lastCount map[string]uint64
	lastStats time.Time
	statsInt  time.Duration

	stopChan chan struct{}
	done     chan struct{}
	running  bool
	runMu    sync.Mutex
}

// Config holds scheduler configuration.
type Config struct {
	Delay         time.Duration // minimum spacing between frames
	StatsInterval time.Duration // frame-rate log cadence; 0 disables
	PubSub        *pubsub.PubSub
}

// TransportStats is published on TopicTransportStats on the stats cadence.
type TransportStats struct {
	Transport  string  `json:"transport"`
	FramesSent uint64  `json:"framesSent"`
	Rate       float64 `json:"rate"`
}

// New creates a scheduler over the given transports.
func New(cfg Config, buffer *frame.Buffer, transports ...Transport) *Scheduler {
	delay := cfg.Delay
	if delay < 0 {
		delay = 0
	}

	return &Scheduler{
		buffer:     buffer,
		transports: transports,
		ps:         cfg.PubSub,
		delay:      delay,
		rates:      make(map[string]float64),
		lastCount:  make(map[string]uint64),
		stopChan:   make(chan struct{}),
		statsInt:   cfg.StatsInterval,
	}
}

// Step runs one cooperative tick. If the delay has elapsed since the last
// fire it snapshots the buffer, hands the snapshot to every transport, and
// returns true. Transport errors are logged and do not stop the others.
func (s *Scheduler) Step(now time.Time) bool {
	s.mu.Lock()
	if !s.lastFired.IsZero() && now.Sub(s.lastFired) < s.delay {
		s.mu.Unlock()
		return false
	}
	s.lastFired = now
	s.mu.Unlock()

	snap := s.buffer.Snapshot()
	for _, t := range s.transports {
		if err := t.SendFrame(snap); err != nil {
			log.Printf("⚠️ %s transport error: %v", t.Name(), err)
		}
	}
	return true
}

// SetDelay changes the minimum frame spacing. Safe while running.
func (s *Scheduler) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Delay returns the current minimum frame spacing.
func (s *Scheduler) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// Rates returns the most recent frames-per-second reading per transport.
func (s *Scheduler) Rates() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]float64, len(s.rates))
	for k, v := range s.rates {
		out[k] = v
	}
	return out
}

// Start launches the scheduler goroutine. The poll cadence is finer than
// any sensible delay so Step's own gate stays the only rate limit.
func (s *Scheduler) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	names := make([]string, len(s.transports))
	for i, t := range s.transports {
		names[i] = t.Name()
	}
	log.Printf("🎭 Output scheduler started: transports %v, delay %v", names, s.Delay())

	go s.loop()
}

// Stop halts the scheduler goroutine and waits for it to exit, so callers
// can tear down transports afterwards without racing an in-flight Step.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}
	close(s.stopChan)
	<-s.done
	s.running = false
	log.Printf("🎭 Output scheduler stopped")
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	var stats *time.Ticker
	var statsC <-chan time.Time
	if s.statsInt > 0 {
		stats = time.NewTicker(s.statsInt)
		statsC = stats.C
		defer stats.Stop()
	}
	s.lastStats = time.Now()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.Step(now)
		case now := <-statsC:
			s.reportStats(now)
		}
	}
}

func (s *Scheduler) reportStats(now time.Time) {
	s.mu.Lock()
	elapsed := now.Sub(s.lastStats).Seconds()
	s.lastStats = now
	s.mu.Unlock()
	if elapsed <= 0 {
		return
	}

	for _, t := range s.transports {
		total := t.FramesSent()
		s.mu.Lock()
		rate := float64(total-s.lastCount[t.Name()]) / elapsed
		s.lastCount[t.Name()] = total
		s.rates[t.Name()] = rate
		s.mu.Unlock()
		log.Printf("📡 %s: %.1f frames/s (%d total)", t.Name(), rate, total)
		if s.ps != nil {
			s.ps.Publish(pubsub.TopicTransportStats, TransportStats{
				Transport:  t.Name(),
				FramesSent: total,
				Rate:       rate,
			})
		}
	}
}
