package bitvec

import "testing"

func TestPoolRentReturn(t *testing.T) {
	p := NewPool()
	v := p.Rent(4, true)
	if !v.IsFullyKnown() || v.Uint64() != 0 {
		t.Errorf("Rent(4, true) = %v, want known zero", v)
	}
	if p.Outstanding() != 1 {
		t.Errorf("Outstanding() = %d, want 1", p.Outstanding())
	}

	v.CopyFrom(FromInt32(99))
	p.Return(v)
	if p.Outstanding() != 0 {
		t.Errorf("Outstanding() after Return = %d, want 0", p.Outstanding())
	}

	again := p.Rent(4, false)
	if !again.IsFullyUnknown() {
		t.Errorf("recycled Rent(4, false) = %v, want fully unknown", again)
	}
}

func TestPoolReturnedVectorIsConsumed(t *testing.T) {
	p := NewPool()
	v := p.Rent(8, true)
	p.Return(v)

	if !v.IsConsumed() {
		t.Fatal("returned vector should be consumed")
	}

	defer func() {
		if r := recover(); r != errConsumed {
			t.Errorf("recover() = %v, want %q", r, errConsumed)
		}
	}()
	_ = v.Uint64()
}

func TestPoolDoubleReturnPanics(t *testing.T) {
	p := NewPool()
	v := p.Rent(2, true)
	p.Return(v)

	defer func() {
		if recover() == nil {
			t.Error("double Return should panic")
		}
	}()
	p.Return(v)
}

func TestPoolRecycledStorageDoesNotLeak(t *testing.T) {
	p := NewPool()
	first := p.Rent(4, true)
	first.CopyFrom(FromInt32(-1))
	p.Return(first)

	second := p.Rent(4, true)
	if second.Uint64() != 0 {
		t.Errorf("recycled vector = %v, want zero", second)
	}
}

func TestPoolUnusualWidths(t *testing.T) {
	p := NewPool()
	v := p.Rent(37, false)
	if v.Width() != 37 {
		t.Errorf("Width() = %d, want 37", v.Width())
	}
	p.Return(v)
	p.Return(nil)
	if p.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0", p.Outstanding())
	}
}
