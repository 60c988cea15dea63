package i2sdmx

import (
	"bytes"
	"testing"
	"time"

	"github.com/bbernstein/dmxbridge-go/internal/services/frame"
)

type fakeDevice struct {
	busy    bool
	err     error
	submits [][]uint16
}

func (d *fakeDevice) Submit(words []uint16) error {
	if d.err != nil {
		return d.err
	}
	d.submits = append(d.submits, words)
	return nil
}

func (d *fakeDevice) Busy() bool { return d.busy }

func TestReverseByte(t *testing.T) {
	if got := ReverseByte(0x80); got != 0x01 {
		t.Errorf("ReverseByte(0x80) = %#02x, want 0x01", got)
	}
	if got := ReverseByte(0x01); got != 0x80 {
		t.Errorf("ReverseByte(0x01) = %#02x, want 0x80", got)
	}
	if got := ReverseByte(0x00); got != 0x00 {
		t.Errorf("ReverseByte(0x00) = %#02x, want 0x00", got)
	}
	if got := ReverseByte(0xff); got != 0xff {
		t.Errorf("ReverseByte(0xff) = %#02x, want 0xff", got)
	}

	// Reversal is an involution over every byte value.
	for b := 0; b < 256; b++ {
		if got := ReverseByte(ReverseByte(byte(b))); got != byte(b) {
			t.Fatalf("ReverseByte(ReverseByte(%#02x)) = %#02x", b, got)
		}
	}
}

func TestFrameWordCount(t *testing.T) {
	cases := []struct {
		name   string
		timing Timing
		want   int
	}{
		{"safe", SafeTiming, 10 + 2 + 1 + 1 + frame.UniverseSize},
		{"fast", FastTiming, 1 + 1 + 1 + 1 + frame.UniverseSize},
	}

	for _, tc := range cases {
		enc, err := NewEncoder(&fakeDevice{}, tc.timing)
		if err != nil {
			t.Fatalf("%s: NewEncoder() error: %v", tc.name, err)
		}
		if enc.FrameWords() != tc.want {
			t.Errorf("%s: FrameWords() = %d, want %d", tc.name, enc.FrameWords(), tc.want)
		}
	}
}

func TestFrameWordCountConstantAcrossUpdates(t *testing.T) {
	dev := &fakeDevice{}
	enc, err := NewEncoder(dev, SafeTiming)
	if err != nil {
		t.Fatal(err)
	}

	want := enc.FrameWords()
	for i := 0; i < 5; i++ {
		var snap frame.Snapshot
		snap.Values[0] = byte(i)
		if err := enc.SendFrame(snap); err != nil {
			t.Fatalf("SendFrame() error: %v", err)
		}
	}

	for i, words := range dev.submits {
		if len(words) != want {
			t.Errorf("submit %d: %d words, want %d", i, len(words), want)
		}
	}
}

func TestInitialFraming(t *testing.T) {
	dev := &fakeDevice{}
	enc, err := NewEncoder(dev, SafeTiming)
	if err != nil {
		t.Fatal(err)
	}

	if err := enc.SendFrame(frame.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	words := dev.submits[0]

	for i := 0; i < 10; i++ {
		if words[i] != 0xffff {
			t.Errorf("word %d = %#04x, want mark 0xffff", i, words[i])
		}
	}
	for i := 10; i < 12; i++ {
		if words[i] != 0x0000 {
			t.Errorf("word %d = %#04x, want break 0x0000", i, words[i])
		}
	}
	if words[12] != 0x000e {
		t.Errorf("mark-after-break word = %#04x, want 0x000e", words[12])
	}

	// Start code slot: zero payload, standard framing.
	if words[13] != 0x00fe {
		t.Errorf("start code word = %#04x, want 0x00fe", words[13])
	}

	// All-zero channels: standard framing everywhere but the final slot.
	for i := 14; i < len(words)-1; i++ {
		if words[i] != 0x00fe {
			t.Fatalf("word %d = %#04x, want 0x00fe", i, words[i])
		}
	}
	if words[len(words)-1] != 0x00ff {
		t.Errorf("final word = %#04x, want 0x00ff (all stop bits)", words[len(words)-1])
	}
}

func TestChannelEncoding(t *testing.T) {
	dev := &fakeDevice{}
	enc, err := NewEncoder(dev, SafeTiming)
	if err != nil {
		t.Fatal(err)
	}

	var snap frame.Snapshot
	snap.Values[0] = 0x01
	snap.Values[1] = 0xf0
	snap.Values[511] = 0x01
	snap.Length = 3 // the i2s path ignores length and sends all 512 slots
	if err := enc.SendFrame(snap); err != nil {
		t.Fatal(err)
	}

	words := dev.submits[0]
	first := enc.dataStart + 1

	// Payload is bit-reversed into the high byte; framing low byte intact.
	if words[first] != 0x80fe {
		t.Errorf("channel 1 word = %#04x, want 0x80fe", words[first])
	}
	if words[first+1] != 0x0ffe {
		t.Errorf("channel 2 word = %#04x, want 0x0ffe", words[first+1])
	}
	if words[first+511] != 0x80ff {
		t.Errorf("channel 512 word = %#04x, want 0x80ff", words[first+511])
	}
}

func TestFramingStableAcrossUpdates(t *testing.T) {
	dev := &fakeDevice{}
	enc, err := NewEncoder(dev, FastTiming)
	if err != nil {
		t.Fatal(err)
	}

	if err := enc.SendFrame(frame.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	initial := make([]byte, len(dev.submits[0]))
	for i, w := range dev.submits[0] {
		initial[i] = byte(w)
	}

	for round := 1; round <= 4; round++ {
		var snap frame.Snapshot
		for i := range snap.Values {
			snap.Values[i] = byte(i*round + 3)
		}
		if err := enc.SendFrame(snap); err != nil {
			t.Fatal(err)
		}
	}

	last := dev.submits[len(dev.submits)-1]
	for i, w := range last {
		if byte(w) != initial[i] {
			t.Fatalf("word %d low byte changed: %#02x -> %#02x", i, initial[i], byte(w))
		}
	}
}

func TestBusyDeviceSkipsTick(t *testing.T) {
	dev := &fakeDevice{busy: true}
	enc, err := NewEncoder(dev, SafeTiming)
	if err != nil {
		t.Fatal(err)
	}

	if err := enc.SendFrame(frame.Snapshot{}); err != nil {
		t.Errorf("SendFrame() on busy device should be a no-op, got %v", err)
	}
	if len(dev.submits) != 0 {
		t.Error("SendFrame() submitted while device was busy")
	}
	if enc.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", enc.Skipped())
	}
	if enc.FramesSent() != 0 {
		t.Errorf("FramesSent() = %d, want 0", enc.FramesSent())
	}
}

func TestSubmitRaceTreatedAsBackpressure(t *testing.T) {
	dev := &fakeDevice{err: ErrBusy}
	enc, err := NewEncoder(dev, SafeTiming)
	if err != nil {
		t.Fatal(err)
	}

	if err := enc.SendFrame(frame.Snapshot{}); err != nil {
		t.Errorf("SendFrame() = %v, want nil for ErrBusy", err)
	}
	if enc.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", enc.Skipped())
	}
}

func TestPingPongLeavesInFlightBufferAlone(t *testing.T) {
	dev := &fakeDevice{}
	enc, err := NewEncoder(dev, FastTiming)
	if err != nil {
		t.Fatal(err)
	}

	var first frame.Snapshot
	first.Values[0] = 0xaa
	if err := enc.SendFrame(first); err != nil {
		t.Fatal(err)
	}

	var second frame.Snapshot
	second.Values[0] = 0x55
	if err := enc.SendFrame(second); err != nil {
		t.Fatal(err)
	}

	if &dev.submits[0][0] == &dev.submits[1][0] {
		t.Fatal("consecutive frames reused the same buffer")
	}

	// The first (possibly still in flight) buffer keeps its payload.
	slot := enc.dataStart + 1
	if dev.submits[0][slot] != uint16(ReverseByte(0xaa))<<8|0x00fe {
		t.Errorf("in-flight buffer was overwritten: %#04x", dev.submits[0][slot])
	}
	if dev.submits[1][slot] != uint16(ReverseByte(0x55))<<8|0x00fe {
		t.Errorf("new buffer payload = %#04x", dev.submits[1][slot])
	}
}

func TestNewEncoderValidation(t *testing.T) {
	if _, err := NewEncoder(nil, SafeTiming); err == nil {
		t.Error("NewEncoder(nil device) should fail")
	}
	if _, err := NewEncoder(&fakeDevice{}, Timing{}); err == nil {
		t.Error("NewEncoder(zero timing) should fail")
	}
}

func TestStreamDevice(t *testing.T) {
	var sink bytes.Buffer
	dev := NewStreamDevice(&sink, 1000)
	defer func() { _ = dev.Close() }()

	words := []uint16{0xffff, 0x0000, 0x000e, 0x80fe}
	if err := dev.Submit(words); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	// Busy is set before Submit returns, so a second submit is rejected.
	if err := dev.Submit(words); err != ErrBusy {
		t.Errorf("second Submit() = %v, want ErrBusy", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for dev.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("device never finished the transfer")
		}
		time.Sleep(time.Millisecond)
	}

	want := []byte{0xff, 0xff, 0x00, 0x00, 0x00, 0x0e, 0x80, 0xfe}
	if !bytes.Equal(sink.Bytes(), want) {
		t.Errorf("shifted bytes = %x, want %x", sink.Bytes(), want)
	}
}

func TestStreamDeviceSubmitAfterClose(t *testing.T) {
	var sink bytes.Buffer
	dev := NewStreamDevice(&sink, 0)

	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	if err := dev.Submit([]uint16{0xffff}); err != ErrClosed {
		t.Errorf("Submit() after Close = %v, want ErrClosed", err)
	}
	// The rejected submit must release the busy gate.
	if dev.Busy() {
		t.Error("Busy() = true after rejected Submit")
	}
}
