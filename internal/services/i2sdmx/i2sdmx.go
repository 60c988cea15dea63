// Package i2sdmx emits DMX512 frames through a DMA-driven 16-bit shift
// device by expanding every wire byte into a fixed word pattern.
//
// The shift device knows nothing about baud rates or line states; it clocks
// out whatever bits it is handed at a fixed word rate. Each DMX slot is
// therefore packed into one 16-bit word: the payload bits (bit-reversed,
// because DMX is LSB-first and the device shifts MSB-first) in the high
// byte, then seven stop bits and the start bit of the following slot in the
// low byte. Seven stop bits is far more than the two DMX requires; the
// timings were measured from a commercial controller and keep slow fixtures
// happy at the cost of throughput.
package i2sdmx

import (
	"fmt"
	"sync/atomic"

	"github.com/bbernstein/dmxbridge-go/internal/services/frame"
)

const (
	// WordRate is the shift rate handed to the device, in 16-bit words
	// per second. At this rate the effective bit time lands inside the
	// receive tolerance of DMX fixtures.
	WordRate = 7812

	// StartCode is the null start code opening every channel-data frame.
	StartCode = 0x00

	markWord  uint16 = 0xffff // line held high for one word time
	breakWord uint16 = 0x0000 // line held low for one word time

	// mabWord extends the break with its leading low bits, raises the
	// line for the mark-after-break, and ends in the start bit of the
	// start-code slot.
	mabWord uint16 = 0x000e

	// slotFraming is the low byte of every data word except the last:
	// seven stop bits followed by the next slot's start bit.
	slotFraming byte = 0xfe

	// lastSlotFraming closes the frame with all stop bits high; the line
	// idles at mark until the next break.
	lastSlotFraming byte = 0xff
)

// Timing selects how much mark and break padding precedes each frame.
type Timing struct {
	MarkWords  int
	BreakWords int
}

// SafeTiming reproduces break and mark lengths measured from a commercial
// controller: much longer than the standard asks for, to please picky
// fixtures. Roughly 29.7 frames/s at 512 channels.
var SafeTiming = Timing{MarkWords: 10, BreakWords: 2}

// FastTiming uses the shortest framing that still satisfies the standard's
// minimums, for a slightly higher frame rate.
var FastTiming = Timing{MarkWords: 1, BreakWords: 1}

// Device is the DMA shift-out peripheral boundary. Submit queues a transfer
// and returns immediately; the words are consumed asynchronously while Busy
// reports true.
type Device interface {
	Submit(words []uint16) error
	Busy() bool
}

// ErrBusy is returned by Device implementations when a transfer is already
// in flight.
var ErrBusy = fmt.Errorf("i2sdmx: transfer in progress")

// ErrClosed is returned by Device implementations that have shut down.
var ErrClosed = fmt.Errorf("i2sdmx: device closed")

// Encoder translates frame snapshots into shift words and feeds the device.
// It always transmits all 512 channels; short network frames leave the tail
// repeating its previous values.
type Encoder struct {
	device Device
	timing Timing

	// Rotating buffer pair: one side may be owned by an in-flight DMA
	// transfer, so updates always land in the other.
	words  [2][]uint16
	active int

	dataStart int // index of the start-code word

	framesSent   atomic.Uint64
	framesQueued atomic.Uint64 // includes the one still in flight
	skipped      atomic.Uint64
}

// NewEncoder builds the two transmission frame buffers and pre-populates
// every framing bit. Only the payload byte of each data word changes after
// this point.
func NewEncoder(device Device, timing Timing) (*Encoder, error) {
	if device == nil {
		return nil, fmt.Errorf("i2sdmx: no shift device")
	}
	if timing.MarkWords < 1 || timing.BreakWords < 1 {
		return nil, fmt.Errorf("i2sdmx: timing needs at least one mark and one break word")
	}

	e := &Encoder{
		device:    device,
		timing:    timing,
		dataStart: timing.MarkWords + timing.BreakWords + 1,
	}

	size := e.dataStart + 1 + frame.UniverseSize
	for side := range e.words {
		words := make([]uint16, size)
		i := 0
		for ; i < timing.MarkWords; i++ {
			words[i] = markWord
		}
		for ; i < timing.MarkWords+timing.BreakWords; i++ {
			words[i] = breakWord
		}
		words[i] = mabWord
		for i = e.dataStart; i < size; i++ {
			words[i] = uint16(slotFraming)
		}
		words[size-1] = uint16(lastSlotFraming)
		e.words[side] = words
	}

	return e, nil
}

// Name identifies the transport in logs and status output.
func (e *Encoder) Name() string { return "i2s" }

// SendFrame encodes the snapshot into the idle buffer and queues it. A busy
// device means the previous frame is still shifting out; the tick is
// dropped and the next one retries. Never blocks.
func (e *Encoder) SendFrame(snap frame.Snapshot) error {
	if e.device.Busy() {
		e.skipped.Add(1)
		return nil
	}

	next := e.active ^ 1
	words := e.words[next]

	// The start-code word's payload is fixed at zero; only channel
	// payload bytes are rewritten.
	for i := 0; i < frame.UniverseSize; i++ {
		w := &words[e.dataStart+1+i]
		*w = uint16(ReverseByte(snap.Values[i]))<<8 | *w&0x00ff
	}

	if err := e.device.Submit(words); err != nil {
		if err == ErrBusy {
			e.skipped.Add(1)
			return nil
		}
		return fmt.Errorf("i2s submit: %w", err)
	}

	e.active = next
	e.framesSent.Add(1)
	e.framesQueued.Add(1)
	return nil
}

// FramesSent returns the number of frames handed to the device.
func (e *Encoder) FramesSent() uint64 { return e.framesSent.Load() }

// Skipped returns the number of ticks dropped because a transfer was still
// in flight.
func (e *Encoder) Skipped() uint64 { return e.skipped.Load() }

// FrameWords returns the word count of one transmission frame.
func (e *Encoder) FrameWords() int {
	return len(e.words[0])
}

// ReverseByte mirrors the bit order of b: adjacent bits swap, then bit
// pairs, then nibbles. Constant time, no branches.
func ReverseByte(b byte) byte {
	b = b>>1&0x55 | b&0x55<<1
	b = b>>2&0x33 | b&0x33<<2
	return b>>4 | b<<4
}
