package syspage

import (
	"fmt"
	"io"

	"github.com/mgutz/ansi"
)

var dumpLabel = ansi.ColorCode("default+b:default")

// Dump prints the post-build summary of a decoded syspage. With color
// enabled the field labels are bolded.
func (img *Image) Dump(w io.Writer, color bool) {
	label := func(s string) string {
		if color {
			return dumpLabel + s + ansi.Reset
		}
		return s
	}
	fmt.Fprintf(w, "\n\t%s\n", label("Syspage:"))
	fmt.Fprintf(w, "\t%s 0x%08x\n", label("Image size:"), img.Header.ImgSz)
	fmt.Fprintf(w, "\t%s 0x%08x\n", label("Syspage size:"), img.Header.Size)
	fmt.Fprintf(w, "\t%s 0x%08x\n", label("Kernel physical address:"), img.Header.PKernel)
	fmt.Fprintf(w, "\t%s 0x%02x\n", label("Console:"), img.Header.Console)

	fmt.Fprintf(w, "\t%s\n", label("Maps:"))
	if len(img.Maps) == 0 {
		fmt.Fprintf(w, "\t\tnot defined\n")
	}
	for _, m := range img.Maps {
		fmt.Fprintf(w, "\t\t%s\n", m)
	}

	fmt.Fprintf(w, "\t%s\n", label("Programs:"))
	if len(img.Progs) == 0 {
		fmt.Fprintf(w, "\t\tnot defined\n")
	}
	for _, p := range img.Progs {
		fmt.Fprintf(w, "\t\t%s\n", p)
	}
}
