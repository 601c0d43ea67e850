package patch

import (
	"os"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// IntelHex writes the syspage as Intel HEX records based at addr,
// overwriting path. Flashing tools that refuse raw binaries take this
// instead.
func IntelHex(path string, addr uint32, data []byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(addr, data); err != nil {
		return errors.Wrap(err, "cannot lay out hex segments")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot create hex file")
	}
	defer f.Close()
	if err := mem.DumpIntelHex(f, 16); err != nil {
		return errors.Wrapf(err, "cannot write hex file %s", path)
	}
	return nil
}
