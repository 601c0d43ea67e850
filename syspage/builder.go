package syspage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrAliasNotFound = errors.New("alias not found")
	ErrMapNotFound   = errors.New("map not found")
	ErrMapLimit      = errors.New("too many maps")
)

// MapConflictError reports a map whose range or name collides with one
// registered earlier.
type MapConflictError struct {
	Name  string
	Start uint32
	End   uint32
	With  string
}

func (m *MapConflictError) Error() string {
	return fmt.Sprintf("map %q %#x-%#x conflicts with map %q", m.Name, m.Start, m.End, m.With)
}

// Map is one registered memory map. IDs are dense and follow registration
// order; the ring links are derived from that order at encode time.
type Map struct {
	Name  string
	Start uint32
	End   uint32
	Attr  Attr
	ID    uint8

	ptr     Ptr
	namePtr Ptr
}

func (m *Map) String() string {
	return fmt.Sprintf("%d: 0x%08x-0x%08x %s %s", m.ID, m.Start, m.End, m.Attr, m.Name)
}

// Prog is one registered boot program. Argv holds the verbatim argument
// text without the exec marker; Imaps and Dmaps are resolved map ids.
type Prog struct {
	Start uint32
	End   uint32
	Argv  string
	Exec  bool
	Imaps []uint8
	Dmaps []uint8

	ptr      Ptr
	argvPtr  Ptr
	imapsPtr Ptr
	dmapsPtr Ptr
}

// blob is the on-wire argument text: optional 'X' + argv + NUL, minus the
// NUL which the writer appends.
func (p *Prog) blob() string {
	if p.Exec {
		return "X" + p.Argv
	}
	return p.Argv
}

func (p *Prog) String() string {
	return fmt.Sprintf("0x%08x-0x%08x %s", p.Start, p.End, p.blob())
}

// Builder accumulates maps, programs and the console id for one syspage,
// then encodes them as a single image. All state of a run lives here; a
// Builder serves one run and is discarded.
type Builder struct {
	arena   *Arena
	pkernel uint32
	imgsz   uint32
	console uint32
	maps    []*Map
	progs   []*Prog
	aliases aliasTable
}

// NewBuilder reserves the syspage header inside a fresh arena. pkernel is
// the physical load address of the kernel image, offs the syspage's byte
// offset inside it, capacity the hard size limit.
func NewBuilder(pkernel, offs, capacity uint32) (*Builder, error) {
	b := &Builder{
		arena:   NewArena(Ptr(pkernel+offs), capacity),
		pkernel: pkernel,
	}
	if _, err := b.arena.Alloc(headerBytes); err != nil {
		return nil, err
	}
	return b, nil
}

// AddAlias registers a named region offs bytes past the image base. The
// expected image size grows to cover it. Re-registering a name shadows the
// older binding.
func (b *Builder) AddAlias(name string, offs, size uint32) {
	if b.imgsz < offs+size {
		b.imgsz = offs + size
	}
	b.aliases.add(Alias{Name: name, Addr: offs + b.pkernel, Size: size})
}

// AddMap registers a memory map. The name must be unique and [start, end)
// must not overlap any earlier map.
func (b *Builder) AddMap(name string, start, end uint32, attr Attr) error {
	for _, m := range b.maps {
		if (m.Start < end && m.End > start) || m.Name == name {
			return errors.WithStack(&MapConflictError{Name: name, Start: start, End: end, With: m.Name})
		}
	}
	if len(b.maps) > 0xff {
		return errors.WithStack(ErrMapLimit)
	}
	ptr, err := b.arena.Alloc(mapBytes)
	if err != nil {
		return err
	}
	namePtr, err := b.arena.Alloc(uint32(len(name)) + 1)
	if err != nil {
		return err
	}
	b.maps = append(b.maps, &Map{
		Name:    name,
		Start:   start,
		End:     end,
		Attr:    attr,
		ID:      uint8(len(b.maps)),
		ptr:     ptr,
		namePtr: namePtr,
	})
	return nil
}

// AddProgram registers a boot program. name selects the alias holding its
// load region. imaps and dmaps are ';' separated lists of map names for
// instructions and data. argv is stored verbatim in the argument blob,
// after an 'X' marker when exec is set.
//
// Arena space consumed before a failed map resolution stays consumed; the
// whole run is abandoned on error, so no rollback is attempted.
func (b *Builder) AddProgram(name, imaps, dmaps, argv string, exec bool) error {
	alias := b.aliases.find(name)
	if alias == nil {
		return errors.Wrap(ErrAliasNotFound, name)
	}

	imapNames := strings.Split(imaps, ";")
	dmapNames := strings.Split(dmaps, ";")

	blobSz := uint32(len(argv)) + 1
	if exec {
		blobSz++
	}

	ptr, err := b.arena.Alloc(progBytes)
	if err != nil {
		return err
	}
	imapsPtr, err := b.arena.Alloc(uint32(len(imapNames)))
	if err != nil {
		return err
	}
	dmapsPtr, err := b.arena.Alloc(uint32(len(dmapNames)))
	if err != nil {
		return err
	}
	argvPtr, err := b.arena.Alloc(blobSz)
	if err != nil {
		return err
	}

	imapIDs, err := b.resolveMaps(imapNames)
	if err != nil {
		return err
	}
	dmapIDs, err := b.resolveMaps(dmapNames)
	if err != nil {
		return err
	}

	b.progs = append(b.progs, &Prog{
		Start:    alias.Addr,
		End:      alias.Addr + alias.Size,
		Argv:     argv,
		Exec:     exec,
		Imaps:    imapIDs,
		Dmaps:    dmapIDs,
		ptr:      ptr,
		argvPtr:  argvPtr,
		imapsPtr: imapsPtr,
		dmapsPtr: dmapsPtr,
	})
	return nil
}

func (b *Builder) resolveMaps(names []string) ([]uint8, error) {
	ids := make([]uint8, len(names))
	for i, name := range names {
		m := b.findMap(name)
		if m == nil {
			return nil, errors.Wrap(ErrMapNotFound, name)
		}
		ids[i] = m.ID
	}
	return ids, nil
}

func (b *Builder) findMap(name string) *Map {
	for _, m := range b.maps {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// SetConsole records the console identifier. The last setting wins.
func (b *Builder) SetConsole(id uint32) {
	b.console = id
}

// Base is the target address of the syspage's first byte.
func (b *Builder) Base() Ptr {
	return b.arena.Base()
}

// Encode lays every record down at its assigned address, closes the rings,
// and returns the bytes to patch into the image. The buffer is decoded
// again and cross-checked against the builder before it is returned.
func (b *Builder) Encode() ([]byte, error) {
	hdr := &rawHeader{
		ImgSz:   b.imgsz,
		Size:    b.arena.Size(),
		PKernel: b.pkernel,
		Console: b.console,
	}
	if len(b.maps) > 0 {
		hdr.Maps = uint32(b.maps[0].ptr)
	}
	if len(b.progs) > 0 {
		hdr.Progs = uint32(b.progs[0].ptr)
	}
	if err := b.arena.StreamAt(b.arena.Base()).Pack(hdr); err != nil {
		return nil, err
	}

	for i, m := range b.maps {
		n := len(b.maps)
		rec := &rawMap{
			Next:  uint32(b.maps[(i+1)%n].ptr),
			Prev:  uint32(b.maps[(i+n-1)%n].ptr),
			Name:  uint32(m.namePtr),
			Start: m.Start,
			End:   m.End,
			Attr:  uint32(m.Attr),
			ID:    m.ID,
		}
		if err := b.arena.StreamAt(m.ptr).Pack(rec); err != nil {
			return nil, err
		}
		if err := b.writeString(m.namePtr, m.Name); err != nil {
			return nil, err
		}
	}

	for i, p := range b.progs {
		n := len(b.progs)
		rec := &rawProg{
			Next:   uint32(b.progs[(i+1)%n].ptr),
			Prev:   uint32(b.progs[(i+n-1)%n].ptr),
			Start:  p.Start,
			End:    p.End,
			Argv:   uint32(p.argvPtr),
			Imaps:  uint32(p.imapsPtr),
			Dmaps:  uint32(p.dmapsPtr),
			ImapSz: uint32(len(p.Imaps)),
			DmapSz: uint32(len(p.Dmaps)),
		}
		if err := b.arena.StreamAt(p.ptr).Pack(rec); err != nil {
			return nil, err
		}
		if err := b.writeBytes(p.imapsPtr, p.Imaps); err != nil {
			return nil, err
		}
		if err := b.writeBytes(p.dmapsPtr, p.Dmaps); err != nil {
			return nil, err
		}
		if err := b.writeString(p.argvPtr, p.blob()); err != nil {
			return nil, err
		}
	}

	img, err := Parse(b.arena.Bytes(), b.arena.Base())
	if err != nil {
		return nil, errors.Wrap(err, "encoded syspage does not decode")
	}
	if err := b.verify(img); err != nil {
		return nil, err
	}
	return b.arena.Bytes(), nil
}

func (b *Builder) writeString(p Ptr, s string) error {
	mem, err := b.arena.Slice(p, uint32(len(s))+1)
	if err != nil {
		return err
	}
	copy(mem, s)
	mem[len(s)] = 0
	return nil
}

func (b *Builder) writeBytes(p Ptr, data []uint8) error {
	mem, err := b.arena.Slice(p, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(mem, data)
	return nil
}

// verify cross-checks a freshly decoded image against builder state. Any
// mismatch means an encoding bug, and the image must not be written out.
func (b *Builder) verify(img *Image) error {
	if img.Header.ImgSz != b.imgsz || img.Header.Size != b.arena.Size() ||
		img.Header.PKernel != b.pkernel || img.Header.Console != b.console {
		return errors.Errorf("encoded header %+v does not match builder state", img.Header)
	}
	if len(img.Maps) != len(b.maps) {
		return errors.Errorf("encoded %d maps, registered %d", len(img.Maps), len(b.maps))
	}
	for i, m := range b.maps {
		got := img.Maps[i]
		if got.ptr != m.ptr || got.namePtr != m.namePtr || got.Name != m.Name ||
			got.Start != m.Start || got.End != m.End || got.Attr != m.Attr || got.ID != m.ID {
			return errors.Errorf("encoded map %d reads back as %s, registered %s", i, got, m)
		}
	}
	if len(img.Progs) != len(b.progs) {
		return errors.Errorf("encoded %d programs, registered %d", len(img.Progs), len(b.progs))
	}
	for i, p := range b.progs {
		got := img.Progs[i]
		if got.ptr != p.ptr || got.argvPtr != p.argvPtr || got.imapsPtr != p.imapsPtr ||
			got.dmapsPtr != p.dmapsPtr || got.Start != p.Start || got.End != p.End ||
			got.blob() != p.blob() ||
			!bytes.Equal(got.Imaps, p.Imaps) || !bytes.Equal(got.Dmaps, p.Dmaps) {
			return errors.Errorf("encoded program %d reads back as %s, registered %s", i, got, p)
		}
	}
	return nil
}
