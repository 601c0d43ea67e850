package syspage

import (
	"testing"

	"github.com/pkg/errors"
)

func TestAllocAlign(t *testing.T) {
	a := NewArena(0x1000, 0x100)
	p1, err := a.Alloc(headerBytes)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != 0x1000 {
		t.Fatalf("first alloc at %#x, want the base", uint32(p1))
	}
	if a.Size() != 24 {
		t.Fatalf("size %d after header", a.Size())
	}
	p2, err := a.Alloc(3)
	if err != nil {
		t.Fatal(err)
	}
	if p2 != 0x1018 {
		t.Fatalf("second alloc at %#x, want 0x1018", uint32(p2))
	}
	if a.Size() != 32 {
		t.Fatalf("size %d, want the 8-aligned end of the block", a.Size())
	}
	p3, err := a.Alloc(1)
	if err != nil {
		t.Fatal(err)
	}
	if p3 != 0x1020 {
		t.Fatalf("third alloc at %#x, want 0x1020", uint32(p3))
	}
}

func TestAllocExhaust(t *testing.T) {
	a := NewArena(0x1000, 33)
	if _, err := a.Alloc(24); err != nil {
		t.Fatal(err)
	}
	// align8(24+8) == 32 < 33 still fits
	if _, err := a.Alloc(8); err != nil {
		t.Fatal(err)
	}
	// align8(32+1) == 40 reaches past the capacity
	_, err := a.Alloc(1)
	if err == nil {
		t.Fatal("alloc past capacity succeeded")
	}
	if _, ok := errors.Cause(err).(*OutOfSpaceError); !ok {
		t.Fatalf("want OutOfSpaceError, got %v", err)
	}
	if a.Size() != 32 {
		t.Errorf("failed alloc moved the size to %d", a.Size())
	}
}

func TestAllocReachIsFailure(t *testing.T) {
	a := NewArena(0x1000, 32)
	if _, err := a.Alloc(24); err != nil {
		t.Fatal(err)
	}
	// align8(24+8) == 32 reaches the capacity exactly
	if _, err := a.Alloc(8); err == nil {
		t.Fatal("alloc reaching the capacity succeeded")
	}
	if a.Size() != 24 {
		t.Errorf("failed alloc moved the size to %d", a.Size())
	}
}

func TestSliceBounds(t *testing.T) {
	a := NewArena(0x1000, 0x100)
	if _, err := a.Alloc(24); err != nil {
		t.Fatal(err)
	}
	p, err := a.Alloc(16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Slice(p, 16); err != nil {
		t.Fatal(err)
	}
	// the occupied extent ends at 40, the capacity does not matter
	_, err = a.Slice(0x1000+40, 8)
	if err == nil {
		t.Fatal("slice past the occupied extent succeeded")
	}
	if _, ok := errors.Cause(err).(*BoundsError); !ok {
		t.Fatalf("want BoundsError, got %v", err)
	}
	if _, err := a.Slice(0xfff, 4); err == nil {
		t.Fatal("slice below the base succeeded")
	}
	if _, err := a.Slice(p, 17); err == nil {
		t.Fatal("slice crossing the occupied end succeeded")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	a := NewArena(0x2000, 0x100)
	if _, err := a.Alloc(headerBytes); err != nil {
		t.Fatal(err)
	}
	ptr, err := a.Alloc(mapBytes)
	if err != nil {
		t.Fatal(err)
	}
	in := &rawMap{Next: 1, Prev: 2, Entries: 0, Name: 3, Start: 4, End: 5, Attr: 6, ID: 7}
	if err := a.StreamAt(ptr).Pack(in); err != nil {
		t.Fatal(err)
	}
	var out rawMap
	if err := a.StreamAt(ptr).Unpack(&out); err != nil {
		t.Fatal(err)
	}
	if out != *in {
		t.Errorf("decoded %+v, packed %+v", out, *in)
	}
}

func TestStreamOutsideExtent(t *testing.T) {
	a := NewArena(0x2000, 0x100)
	if _, err := a.Alloc(headerBytes); err != nil {
		t.Fatal(err)
	}
	var out rawMap
	err := a.StreamAt(0x2000 + headerBytes).Unpack(&out)
	if err == nil {
		t.Fatal("unpack past the occupied extent succeeded")
	}
	if _, ok := errors.Cause(err).(*BoundsError); !ok {
		t.Fatalf("want BoundsError, got %v", err)
	}
}

func TestStringAt(t *testing.T) {
	a := NewArena(0x1000, 0x40)
	if _, err := a.Alloc(24); err != nil {
		t.Fatal(err)
	}
	p, err := a.Alloc(6)
	if err != nil {
		t.Fatal(err)
	}
	mem, err := a.Slice(p, 6)
	if err != nil {
		t.Fatal(err)
	}
	copy(mem, "hello\x00")
	s, err := a.StringAt(p)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Errorf("read %q", s)
	}
	if _, err := a.StringAt(0x1000 + 0x40); err == nil {
		t.Error("read past the occupied extent succeeded")
	}
}

func TestStringAtUnterminated(t *testing.T) {
	a := NewArena(0x1000, 0x40)
	if _, err := a.Alloc(24); err != nil {
		t.Fatal(err)
	}
	mem, err := a.Slice(0x1000, a.Size())
	if err != nil {
		t.Fatal(err)
	}
	for i := range mem {
		mem[i] = 'a'
	}
	if _, err := a.StringAt(0x1000); err == nil {
		t.Error("unterminated string read succeeded")
	}
}
