package pool

import "testing"

func TestBytePoolGet(t *testing.T) {
	p := NewBytePool(64, 128)
	b := p.Get()
	if len(b) != 0 || cap(b) < 64 {
		t.Fatalf("Get: len %d cap %d", len(b), cap(b))
	}
	b = append(b, "payload"...)
	p.Put(b)
	if b2 := p.Get(); len(b2) != 0 {
		t.Fatalf("reused buffer not reset: len %d", len(b2))
	}
}

func TestBytePoolDropsOversize(t *testing.T) {
	p := NewBytePool(8, 16)
	// Neither call may panic; rejected buffers are simply dropped.
	p.Put(make([]byte, 0, 4))
	p.Put(make([]byte, 0, 1024))
	if b := p.Get(); cap(b) > 16 {
		t.Fatalf("oversize buffer was pooled: cap %d", cap(b))
	}
}

func TestSyncPoolCreator(t *testing.T) {
	n := 0
	sp := NewSyncPool(func() int { n++; return n })
	if v := sp.Get(); v < 1 {
		t.Fatalf("creator not used: %d", v)
	}
}
