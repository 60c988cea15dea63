package frame

import (
	"testing"
)

func TestNewBuffer(t *testing.T) {
	buf := NewBuffer(3)

	if buf.Universe() != 3 {
		t.Errorf("Universe() = %d, want 3", buf.Universe())
	}

	snap := buf.Snapshot()
	if snap.Length != UniverseSize {
		t.Errorf("Initial length = %d, want %d", snap.Length, UniverseSize)
	}
	for i, v := range snap.Values {
		if v != 0 {
			t.Fatalf("Values[%d] = %d, want 0", i, v)
		}
	}
}

func TestUpdateFiltersUniverse(t *testing.T) {
	buf := NewBuffer(0)

	if buf.Update(1, 5, []byte{0xff, 0xff}) {
		t.Error("Update() accepted packet for wrong universe")
	}

	snap := buf.Snapshot()
	if snap.Length != UniverseSize || snap.Sequence != 0 || snap.Values[0] != 0 {
		t.Error("Wrong-universe packet mutated the buffer")
	}
}

func TestUpdateStoresFrame(t *testing.T) {
	buf := NewBuffer(0)

	if !buf.Update(0, 9, []byte{0x01, 0x02, 0x03}) {
		t.Fatal("Update() rejected matching packet")
	}

	snap := buf.Snapshot()
	if snap.Length != 3 {
		t.Errorf("Length = %d, want 3", snap.Length)
	}
	if snap.Sequence != 9 {
		t.Errorf("Sequence = %d, want 9", snap.Sequence)
	}
	if snap.Values[0] != 1 || snap.Values[1] != 2 || snap.Values[2] != 3 {
		t.Errorf("Values = %v, want [1 2 3]", snap.Values[:3])
	}
}

func TestUpdateRejectsOversized(t *testing.T) {
	buf := NewBuffer(0)

	if buf.Update(0, 1, make([]byte, UniverseSize+1)) {
		t.Error("Update() accepted oversized payload")
	}
	if buf.Length() != UniverseSize {
		t.Error("Oversized payload mutated length")
	}
}

func TestUpdateRestoresLength(t *testing.T) {
	buf := NewBuffer(0)

	buf.Update(0, 1, []byte{0x10, 0x20})
	if buf.Length() != 2 {
		t.Fatalf("Length = %d, want 2", buf.Length())
	}

	// A later full-size packet must restore full-length output.
	full := make([]byte, UniverseSize)
	buf.Update(0, 2, full)
	if buf.Length() != UniverseSize {
		t.Errorf("Length = %d, want %d after full-size packet", buf.Length(), UniverseSize)
	}
}

func TestUpdateIdempotent(t *testing.T) {
	buf := NewBuffer(0)
	data := []byte{0xaa, 0xbb, 0xcc}

	buf.Update(0, 4, data)
	first := buf.Snapshot()

	buf.Update(0, 4, data)
	second := buf.Snapshot()

	if first != second {
		t.Error("Repeated identical Update() changed the snapshot")
	}
}

func TestShortUpdateKeepsTail(t *testing.T) {
	buf := NewBuffer(0)

	full := make([]byte, UniverseSize)
	for i := range full {
		full[i] = 0x55
	}
	buf.Update(0, 1, full)
	buf.Update(0, 2, []byte{0x11})

	snap := buf.Snapshot()
	if snap.Length != 1 {
		t.Fatalf("Length = %d, want 1", snap.Length)
	}
	if snap.Values[0] != 0x11 {
		t.Errorf("Values[0] = %#x, want 0x11", snap.Values[0])
	}
	// Tail channels beyond length are stale, not zeroed; the full-frame
	// transport keeps repeating them.
	if snap.Values[1] != 0x55 {
		t.Errorf("Values[1] = %#x, want 0x55", snap.Values[1])
	}
}

func TestSetUniverse(t *testing.T) {
	buf := NewBuffer(0)

	buf.SetUniverse(7)
	if buf.Universe() != 7 {
		t.Errorf("Universe() = %d, want 7", buf.Universe())
	}

	if buf.Update(0, 1, []byte{1}) {
		t.Error("Update() accepted old universe after SetUniverse")
	}
	if !buf.Update(7, 1, []byte{1}) {
		t.Error("Update() rejected new universe after SetUniverse")
	}
}
