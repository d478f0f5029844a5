package sdmmcspi

import "testing"

func TestBitWindow(t *testing.T) {
	var w bitWindow
	if !w.AllIdle() || w.Len() != 0 {
		t.Fatal("zero window must be empty and idle")
	}
	w.PushByte(0b1110_0101)
	if n := w.TrimIdle(); n != 3 {
		t.Fatalf("trimmed %d idle bits, want 3", n)
	}
	got := w.TakePrefix(nil, 2)
	if len(got) != 2 || got[0] || got[1] {
		t.Fatal("bad prefix", got)
	}
	if w.Len() != 3 || !w.at(0) || w.at(1) || !w.at(2) {
		t.Fatal("bad remainder")
	}
	w.PopFront(10)
	if w.Len() != 0 {
		t.Fatal("pop past end should empty window")
	}
}

func TestBitWindowWrap(t *testing.T) {
	var w bitWindow
	for i := 0; i < 3*windowSize/8; i++ {
		w.PushByte(byte(i))
		got := w.TakePrefix(nil, 8)
		var v byte
		for _, b := range got {
			v <<= 1
			if b {
				v |= 1
			}
		}
		if v != byte(i) {
			t.Fatalf("byte %d: got %d after wrap", i, v)
		}
	}
	w.PushByte(0xff)
	w.PushByte(0xff)
	if !w.AllIdle() {
		t.Fatal("all ones must be idle")
	}
}
