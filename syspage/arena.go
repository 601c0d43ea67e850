package syspage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// Ptr is an address in the target's physical address space. Every link
// stored inside the syspage is a Ptr so the kernel can walk the structure in
// place once the image is loaded. Ptr(0) means "no record" and is never
// handed out by the allocator.
type Ptr uint32

var order = binary.LittleEndian

func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

// OutOfSpaceError means the syspage outgrew the capacity given on the
// command line.
type OutOfSpaceError struct {
	Size uint32
	Used uint32
	Cap  uint32
}

func (o *OutOfSpaceError) Error() string {
	return fmt.Sprintf("cannot allocate %#x bytes: %#x of %#x in use", o.Size, o.Used, o.Cap)
}

// BoundsError means a Ptr dereference fell outside the occupied part of the
// syspage buffer.
type BoundsError struct {
	Addr Ptr
	Size uint32
	Base Ptr
	Used uint32
}

func (b *BoundsError) Error() string {
	return fmt.Sprintf("access at %#x(%d) outside syspage %#x-%#x",
		uint32(b.Addr), b.Size, uint32(b.Base), uint32(b.Base)+b.Used)
}

// Arena owns the syspage buffer. Allocation bumps an occupied counter whose
// final value doubles as the header's size field. Addresses handed out are
// target Ptrs, and every dereference is checked against the occupied extent,
// never the raw capacity.
type Arena struct {
	buf  []byte
	base Ptr
	used uint32
}

// NewArena makes an empty arena of fixed capacity. base is the target
// address of the buffer's first byte: the kernel's physical load address
// plus the syspage offset within the image.
func NewArena(base Ptr, capacity uint32) *Arena {
	return &Arena{buf: make([]byte, capacity), base: base}
}

// OpenArena wraps a finished syspage so it can be walked with the same
// bounds checks the builder used while writing it.
func OpenArena(base Ptr, data []byte) *Arena {
	return &Arena{buf: data, base: base, used: uint32(len(data))}
}

// Alloc reserves n bytes and returns their target address. The occupied
// counter moves to the 8-aligned end of the new block, so the next block
// never shares a quadword with this one. Failure leaves the counter
// untouched.
func (a *Arena) Alloc(n uint32) (Ptr, error) {
	next := align8(a.used + n)
	if next >= uint32(len(a.buf)) {
		return 0, errors.WithStack(&OutOfSpaceError{Size: n, Used: a.used, Cap: uint32(len(a.buf))})
	}
	ptr := a.base + Ptr(a.used)
	a.used = next
	return ptr, nil
}

func (a *Arena) Base() Ptr    { return a.base }
func (a *Arena) Size() uint32 { return a.used }
func (a *Arena) Cap() uint32  { return uint32(len(a.buf)) }

// Bytes returns the occupied part of the buffer: the bytes that get patched
// into the kernel image.
func (a *Arena) Bytes() []byte {
	return a.buf[:a.used]
}

// Slice translates [p, p+n) into the host buffer, failing if any part of
// the range lies outside the occupied extent.
func (a *Arena) Slice(p Ptr, n uint32) ([]byte, error) {
	off := uint32(p) - uint32(a.base)
	if p < a.base || off > a.used || a.used-off < n {
		return nil, errors.WithStack(&BoundsError{Addr: p, Size: n, Base: a.base, Used: a.used})
	}
	return a.buf[off : off+n], nil
}

// StringAt reads the NUL-terminated string starting at p.
func (a *Arena) StringAt(p Ptr) (string, error) {
	off := uint32(p) - uint32(a.base)
	if p < a.base || off >= a.used {
		return "", errors.WithStack(&BoundsError{Addr: p, Size: 1, Base: a.base, Used: a.used})
	}
	i := bytes.IndexByte(a.buf[off:a.used], 0)
	if i < 0 {
		return "", errors.WithStack(&BoundsError{Addr: p, Size: a.used - off, Base: a.base, Used: a.used})
	}
	return string(a.buf[off : off+uint32(i)]), nil
}

// Stream is a positioned view over the arena for packing records with
// struc. Reads and writes advance Addr and are bounds-checked like any
// other dereference.
type Stream struct {
	a    *Arena
	Addr Ptr
}

func (a *Arena) StreamAt(p Ptr) *Stream {
	return &Stream{a: a, Addr: p}
}

func (s *Stream) Read(p []byte) (int, error) {
	mem, err := s.a.Slice(s.Addr, uint32(len(p)))
	if err != nil {
		return 0, err
	}
	copy(p, mem)
	s.Addr += Ptr(len(p))
	return len(p), nil
}

func (s *Stream) Write(p []byte) (int, error) {
	mem, err := s.a.Slice(s.Addr, uint32(len(p)))
	if err != nil {
		return 0, err
	}
	copy(mem, p)
	s.Addr += Ptr(len(p))
	return len(p), nil
}

func (s *Stream) Pack(i interface{}) error {
	return struc.PackWithOrder(s, i, order)
}

func (s *Stream) Unpack(i interface{}) error {
	return struc.UnpackWithOrder(s, i, order)
}
