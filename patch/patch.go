package patch

import (
	"os"

	"github.com/pkg/errors"
)

// Image writes the syspage into an existing kernel image at the given byte
// offset. The file is never created or truncated, so a missing image is an
// error and bytes outside the patched range are left alone.
func Image(path string, offs int64, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "cannot open kernel image")
	}
	defer f.Close()
	if _, err := f.WriteAt(data, offs); err != nil {
		return errors.Wrapf(err, "cannot write syspage into %s", path)
	}
	return nil
}
