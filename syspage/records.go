package syspage

// On-wire record layouts. The kernel and this tool must agree on every
// offset, so all fields are fixed-width, packed little-endian with no
// implicit padding; where the C side pads, the pad bytes are explicit.

const (
	headerBytes = 24
	mapBytes    = 32
	progBytes   = 36
)

// rawHeader sits at the very start of the syspage.
type rawHeader struct {
	ImgSz   uint32
	Size    uint32
	PKernel uint32
	Maps    uint32
	Progs   uint32
	Console uint32
}

// rawMap is one node of the circular map ring. Entries is scratch space for
// the kernel's allocator and always zero here.
type rawMap struct {
	Next    uint32
	Prev    uint32
	Entries uint32
	Name    uint32
	Start   uint32
	End     uint32
	Attr    uint32
	ID      uint8
	Pad     [3]byte
}

// rawProg is one node of the circular program ring. Argv points at the
// argument blob: an optional leading 'X' marking the program executable,
// the verbatim argument text, and a terminating NUL.
type rawProg struct {
	Next   uint32
	Prev   uint32
	Start  uint32
	End    uint32
	Argv   uint32
	Imaps  uint32
	Dmaps  uint32
	ImapSz uint32
	DmapSz uint32
}
