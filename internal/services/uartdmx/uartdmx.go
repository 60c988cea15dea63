// Package uartdmx emits DMX512 frames over a hardware serial port.
package uartdmx

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/bbernstein/dmxbridge-go/internal/services/frame"
)

const (
	// DataBaud is the DMX line rate: 250 kbit/s, 8 data bits, no parity,
	// 2 stop bits.
	DataBaud = 250000

	// BreakBaud is the rate used to fake the break. A zero byte at this
	// rate holds the line low for 9 bit times, 100 µs, comfortably past
	// the 88 µs minimum; its stop bits then give the mark-after-break.
	BreakBaud = 90000

	// StartCode is the null start code opening every channel-data frame.
	StartCode = 0x00
)

// Port is the serial peripheral boundary. Reconfigure switches line
// parameters between the break and data presets.
type Port interface {
	io.Writer
	Reconfigure(baud, stopBits int) error
}

// Encoder writes one break-delimited DMX frame per invocation. Writes may
// block when the transmit FIFO is full; that back-pressures the scheduler
// tick and is not treated as an error.
type Encoder struct {
	port     Port
	channels atomic.Int64

	framesSent atomic.Uint64

	// scratch avoids a per-tick allocation; SendFrame is never called
	// concurrently (single scheduler goroutine).
	scratch [1 + frame.UniverseSize]byte
}

// NewEncoder wraps a port. channels caps how many slots are transmitted;
// frames shorter than the cap are sent at their own length.
func NewEncoder(port Port, channels int) (*Encoder, error) {
	if port == nil {
		return nil, fmt.Errorf("uartdmx: no serial port")
	}

	e := &Encoder{port: port}
	e.SetChannels(channels)
	return e, nil
}

// Name identifies the transport in logs and status output.
func (e *Encoder) Name() string { return "uart" }

// SetChannels updates the transmit cap, clamped to 1..512. Safe to call
// while the scheduler is running.
func (e *Encoder) SetChannels(n int) {
	if n < 1 {
		n = 1
	}
	if n > frame.UniverseSize {
		n = frame.UniverseSize
	}
	e.channels.Store(int64(n))
}

// Channels returns the current transmit cap.
func (e *Encoder) Channels() int { return int(e.channels.Load()) }

// SendFrame emits break, mark-after-break, start code, then
// min(length, channels) data bytes.
func (e *Encoder) SendFrame(snap frame.Snapshot) error {
	if err := e.port.Reconfigure(BreakBaud, 2); err != nil {
		return fmt.Errorf("uart break config: %w", err)
	}
	if _, err := e.port.Write([]byte{0x00}); err != nil {
		return fmt.Errorf("uart break: %w", err)
	}
	if err := e.port.Reconfigure(DataBaud, 2); err != nil {
		return fmt.Errorf("uart data config: %w", err)
	}

	n := snap.Length
	if limit := e.Channels(); n > limit {
		n = limit
	}

	e.scratch[0] = StartCode
	copy(e.scratch[1:1+n], snap.Values[:n])

	if _, err := e.port.Write(e.scratch[:1+n]); err != nil {
		return fmt.Errorf("uart data: %w", err)
	}

	e.framesSent.Add(1)
	return nil
}

// FramesSent returns the number of complete frames written.
func (e *Encoder) FramesSent() uint64 { return e.framesSent.Load() }
