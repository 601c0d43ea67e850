package syspage

import (
	"testing"

	"github.com/pkg/errors"
)

func encodeImage(t *testing.T) ([]byte, Ptr) {
	b := testBuilder(t)
	addMaps(t, b, "m1", "m2")
	b.AddAlias("A", 0x1000, 0x200)
	if err := b.AddProgram("A", "m1", "m2", "A", false); err != nil {
		t.Fatal(err)
	}
	data, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return append([]byte(nil), data...), b.Base()
}

func TestParseSizeMismatch(t *testing.T) {
	data, base := encodeImage(t)
	if _, err := Parse(data[:len(data)-8], base); err == nil {
		t.Error("truncated buffer parsed")
	}
	if _, err := Parse(append(data, 0), base); err == nil {
		t.Error("padded buffer parsed")
	}
}

func TestParseDanglingLink(t *testing.T) {
	data, base := encodeImage(t)
	// point the head of the map list past the buffer
	order.PutUint32(data[12:16], uint32(base)+uint32(len(data)))
	_, err := Parse(data, base)
	if err == nil {
		t.Fatal("dangling map link parsed")
	}
	if _, ok := errors.Cause(err).(*BoundsError); !ok {
		t.Errorf("want BoundsError, got %v", err)
	}
}

func TestParseBrokenRing(t *testing.T) {
	data, base := encodeImage(t)
	var hdr rawHeader
	if err := OpenArena(base, data).StreamAt(base).Unpack(&hdr); err != nil {
		t.Fatal(err)
	}
	// first map's next points at itself instead of the second map,
	// so the ring closes without visiting every node and the second
	// map's prev no longer matches
	off := hdr.Maps - uint32(base)
	order.PutUint32(data[off:off+4], hdr.Maps)
	if _, err := Parse(data, base); err == nil {
		t.Error("ring with a stray node parsed")
	}
}

func TestParseBadMapID(t *testing.T) {
	data, base := encodeImage(t)
	var hdr rawHeader
	a := OpenArena(base, data)
	if err := a.StreamAt(base).Unpack(&hdr); err != nil {
		t.Fatal(err)
	}
	var rec rawProg
	if err := a.StreamAt(Ptr(hdr.Progs)).Unpack(&rec); err != nil {
		t.Fatal(err)
	}
	// the program's one imap entry now names a map that does not exist
	data[rec.Imaps-uint32(base)] = 9
	if _, err := Parse(data, base); err == nil {
		t.Error("program with a dangling map id parsed")
	}
}
