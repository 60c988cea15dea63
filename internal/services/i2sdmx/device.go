package i2sdmx

import (
	"encoding/binary"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// StreamDevice drains submitted word frames into a writer from its own
// goroutine, pacing each transfer to the configured word rate. It mimics the
// DMA peripheral's contract: Submit returns as soon as the transfer is
// queued, and Busy stays true until the words have been shifted out.
type StreamDevice struct {
	w    io.Writer
	rate int
	busy atomic.Bool

	// mu orders Submit against Close so a late Submit sees the closed
	// flag instead of a closed channel.
	mu      sync.Mutex
	closed  bool
	pending chan []uint16
	done    chan struct{}
}

// NewStreamDevice starts the shift goroutine. rate is in words per second;
// zero or negative means unpaced (useful for tests and offline capture).
func NewStreamDevice(w io.Writer, rate int) *StreamDevice {
	d := &StreamDevice{
		w:       w,
		rate:    rate,
		pending: make(chan []uint16, 1),
		done:    make(chan struct{}),
	}
	go d.shiftLoop()
	return d
}

// Submit queues one transfer. The caller must not touch words until Busy
// reports false again. Returns ErrClosed after Close.
func (d *StreamDevice) Submit(words []uint16) error {
	if !d.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.busy.Store(false)
		return ErrClosed
	}
	// The busy gate guarantees at most one queued transfer, so this
	// send never blocks on the buffered channel.
	d.pending <- words
	d.mu.Unlock()
	return nil
}

// Busy reports whether a transfer is still shifting out.
func (d *StreamDevice) Busy() bool { return d.busy.Load() }

// Close stops the shift goroutine after the in-flight transfer drains.
// Safe to call more than once; later Submits return ErrClosed.
func (d *StreamDevice) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.pending)
	}
	d.mu.Unlock()

	<-d.done
	return nil
}

func (d *StreamDevice) shiftLoop() {
	defer close(d.done)

	buf := make([]byte, 0, 2*1024)
	for words := range d.pending {
		start := time.Now()

		buf = buf[:0]
		for _, w := range words {
			buf = binary.BigEndian.AppendUint16(buf, w)
		}
		if _, err := d.w.Write(buf); err != nil {
			log.Printf("i2s shift write error: %v", err)
		}

		// Hold busy until the hardware would have finished clocking.
		if d.rate > 0 {
			took := time.Duration(len(words)) * time.Second / time.Duration(d.rate)
			if rest := took - time.Since(start); rest > 0 {
				time.Sleep(rest)
			}
		}

		d.busy.Store(false)
	}
}
