package syspage

import (
	"strings"

	"github.com/pkg/errors"
)

// Header holds the fixed fields of the on-wire header.
type Header struct {
	ImgSz   uint32
	Size    uint32
	PKernel uint32
	Console uint32
}

// Image is a decoded syspage, produced by walking a finished buffer the way
// the kernel does at boot: following target-space links only.
type Image struct {
	Header Header
	Maps   []*Map
	Progs  []*Prog
}

// Parse decodes a finished syspage buffer. base must be the target address
// of data[0]. Out-of-range pointers, rings that do not close, broken prev
// links and dangling map ids all fail, so a decoded image is structurally
// sound.
func Parse(data []byte, base Ptr) (*Image, error) {
	a := OpenArena(base, data)
	var hdr rawHeader
	if err := a.StreamAt(base).Unpack(&hdr); err != nil {
		return nil, err
	}
	if hdr.Size != uint32(len(data)) {
		return nil, errors.Errorf("header claims %#x syspage bytes, buffer holds %#x", hdr.Size, len(data))
	}
	img := &Image{Header: Header{
		ImgSz:   hdr.ImgSz,
		Size:    hdr.Size,
		PKernel: hdr.PKernel,
		Console: hdr.Console,
	}}

	if hdr.Maps != 0 {
		head := Ptr(hdr.Maps)
		limit := int(a.Size()/mapBytes) + 1
		var prevs []Ptr
		for ptr := head; ; {
			if len(img.Maps) > limit {
				return nil, errors.Errorf("map ring at %#x does not close", hdr.Maps)
			}
			var rec rawMap
			if err := a.StreamAt(ptr).Unpack(&rec); err != nil {
				return nil, err
			}
			name, err := a.StringAt(Ptr(rec.Name))
			if err != nil {
				return nil, err
			}
			img.Maps = append(img.Maps, &Map{
				Name:    name,
				Start:   rec.Start,
				End:     rec.End,
				Attr:    Attr(rec.Attr),
				ID:      rec.ID,
				ptr:     ptr,
				namePtr: Ptr(rec.Name),
			})
			prevs = append(prevs, Ptr(rec.Prev))
			if ptr = Ptr(rec.Next); ptr == head {
				break
			}
		}
		for i, m := range img.Maps {
			want := img.Maps[(i+len(img.Maps)-1)%len(img.Maps)].ptr
			if prevs[i] != want {
				return nil, errors.Errorf("map %q prev link %#x, want %#x", m.Name, uint32(prevs[i]), uint32(want))
			}
		}
	}

	if hdr.Progs != 0 {
		head := Ptr(hdr.Progs)
		limit := int(a.Size()/progBytes) + 1
		var prevs []Ptr
		for ptr := head; ; {
			if len(img.Progs) > limit {
				return nil, errors.Errorf("program ring at %#x does not close", hdr.Progs)
			}
			var rec rawProg
			if err := a.StreamAt(ptr).Unpack(&rec); err != nil {
				return nil, err
			}
			blob, err := a.StringAt(Ptr(rec.Argv))
			if err != nil {
				return nil, err
			}
			im, err := a.Slice(Ptr(rec.Imaps), rec.ImapSz)
			if err != nil {
				return nil, err
			}
			dm, err := a.Slice(Ptr(rec.Dmaps), rec.DmapSz)
			if err != nil {
				return nil, err
			}
			img.Progs = append(img.Progs, &Prog{
				Start:    rec.Start,
				End:      rec.End,
				Argv:     strings.TrimPrefix(blob, "X"),
				Exec:     strings.HasPrefix(blob, "X"),
				Imaps:    append([]uint8(nil), im...),
				Dmaps:    append([]uint8(nil), dm...),
				ptr:      ptr,
				argvPtr:  Ptr(rec.Argv),
				imapsPtr: Ptr(rec.Imaps),
				dmapsPtr: Ptr(rec.Dmaps),
			})
			prevs = append(prevs, Ptr(rec.Prev))
			if ptr = Ptr(rec.Next); ptr == head {
				break
			}
		}
		for i, p := range img.Progs {
			want := img.Progs[(i+len(img.Progs)-1)%len(img.Progs)].ptr
			if prevs[i] != want {
				return nil, errors.Errorf("program at %#x prev link %#x, want %#x",
					uint32(p.ptr), uint32(prevs[i]), uint32(want))
			}
		}
	}

	for _, p := range img.Progs {
		for _, id := range append(append([]uint8(nil), p.Imaps...), p.Dmaps...) {
			if int(id) >= len(img.Maps) {
				return nil, errors.Errorf("program at %#x references map id %d of %d",
					uint32(p.ptr), id, len(img.Maps))
			}
		}
	}

	return img, nil
}
