// Package frame holds the last received universe frame shared between the
// network ingress and the output transports.
package frame

import (
	"sync"
)

// UniverseSize is the number of channels per DMX universe.
const UniverseSize = 512

// Snapshot is a consistent copy of the buffer taken for one output tick.
type Snapshot struct {
	Universe int
	Sequence byte
	Length   int
	Values   [UniverseSize]byte
}

// Buffer is the single-slot store of the most recently received frame.
// It has one writer (the ingress adapter) and one reader per transport;
// Snapshot gives each tick a coherent view so a mid-update read can never
// pair a new length with stale values.
type Buffer struct {
	mu       sync.RWMutex
	universe int
	sequence byte
	length   int
	values   [UniverseSize]byte
}

// NewBuffer creates a buffer for the given wire universe with all channels
// zero and full length, so the transports repeat a dark frame until the
// first packet arrives.
func NewBuffer(universe int) *Buffer {
	return &Buffer{
		universe: universe,
		length:   UniverseSize,
	}
}

// Update stores a received frame. Packets for any other universe, and
// oversized payloads, are dropped without touching the buffer. Length tracks
// the packet size both down and up: a full-size packet after a short one
// restores full-length output.
func (b *Buffer) Update(universe int, sequence byte, data []byte) bool {
	if len(data) > UniverseSize {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if universe != b.universe {
		return false
	}

	copy(b.values[:len(data)], data)
	b.length = len(data)
	b.sequence = sequence
	return true
}

// Snapshot returns a copy of the current frame.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Snapshot{
		Universe: b.universe,
		Sequence: b.sequence,
		Length:   b.length,
		Values:   b.values,
	}
}

// Universe returns the wire universe this buffer accepts.
func (b *Buffer) Universe() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.universe
}

// SetUniverse changes the accepted universe. Buffered values are kept; the
// next matching packet overwrites them.
func (b *Buffer) SetUniverse(universe int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.universe = universe
}

// Sequence returns the sequence number of the last accepted packet.
func (b *Buffer) Sequence() byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// Length returns the channel count of the last accepted packet.
func (b *Buffer) Length() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.length
}
