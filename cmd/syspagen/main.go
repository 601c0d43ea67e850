package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"syspagen/patch"
	"syspagen/script"
	"syspagen/syspage"
)

type config struct {
	pkernel uint32
	offs    uint32
	maxsz   uint32
	preinit string
	user    string
	image   string
	hexout  string
	color   bool
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// print an error, and a stacktrace if available
func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if st, ok := err.(stackTracer); ok {
		for _, f := range st.StackTrace() {
			fmt.Fprintf(os.Stderr, "  %s:%d %n()\n", f, f, f)
			if fmt.Sprintf("%n", f) == "main.main" {
				break
			}
		}
	}
}

// parseLayout splits the -s triple pimg:offs:sz. Each field is a C-like
// integer literal; pimg+offs must stay inside the 32-bit address space.
func parseLayout(s string, c *config) error {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return errors.Errorf("wrong syspage properties %s", s)
	}
	pimg, err := strconv.ParseUint(parts[0], 0, 32)
	if err != nil {
		return errors.Errorf("wrong physical image address %s", s)
	}
	offs, err := strconv.ParseUint(parts[1], 0, 32)
	if err != nil {
		return errors.Errorf("wrong syspage offset %s", s)
	}
	maxsz, err := strconv.ParseUint(parts[2], 0, 32)
	if err != nil {
		return errors.Errorf("wrong syspage size %s", s)
	}
	if pimg+offs > 0xffffffff {
		return errors.Errorf("syspage base %#x+%#x leaves the address space", pimg, offs)
	}
	c.pkernel = uint32(pimg)
	c.offs = uint32(offs)
	c.maxsz = uint32(maxsz)
	return nil
}

func run(argv []string) int {
	fs := flag.NewFlagSet("syspagen", flag.ExitOnError)
	layout := fs.String("s", "", "syspage properties pimg:offs:sz (image physical address, syspage offset in the image, max syspage size)")
	preinit := fs.String("p", "", "path to preinit script")
	user := fs.String("u", "", "path to user script")
	image := fs.String("i", "", "path to kernel image")
	hexout := fs.String("x", "", "also export the syspage as Intel HEX to this path")
	color := fs.Bool("color", false, "color the syspage summary")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s to add syspage to image\n\nOptions:\n", argv[0])
		fs.PrintDefaults()
	}
	if len(argv) <= 1 {
		fs.Usage()
		return 1
	}
	fs.Parse(argv[1:])

	var cfg config
	if *layout != "" {
		if err := parseLayout(*layout, &cfg); err != nil {
			printError(err)
			return 1
		}
	}
	cfg.preinit = *preinit
	cfg.user = *user
	cfg.image = *image
	cfg.hexout = *hexout
	cfg.color = *color
	if cfg.preinit == "" || cfg.user == "" || cfg.image == "" || cfg.maxsz == 0 {
		fmt.Fprintf(os.Stderr, "Missing obligatory arguments\n")
		fs.Usage()
		return 1
	}

	b, err := syspage.NewBuilder(cfg.pkernel, cfg.offs, cfg.maxsz)
	if err != nil {
		printError(err)
		return 1
	}
	in := script.NewInterp(b)
	if err := in.RunFile(cfg.preinit); err != nil {
		printError(errors.Wrapf(err, "cannot parse preinit script %s", cfg.preinit))
		return 1
	}
	if err := in.RunFile(cfg.user); err != nil {
		printError(errors.Wrapf(err, "cannot parse user script %s", cfg.user))
		return 1
	}

	data, err := b.Encode()
	if err != nil {
		printError(err)
		return 1
	}
	if err := patch.Image(cfg.image, int64(cfg.offs), data); err != nil {
		printError(errors.Wrap(err, "cannot write binary syspage to kernel image"))
		return 1
	}
	if cfg.hexout != "" {
		if err := patch.IntelHex(cfg.hexout, uint32(b.Base()), data); err != nil {
			printError(err)
			return 1
		}
	}
	fmt.Printf("Syspage is written to image: %s at offset %#x\n", cfg.image, cfg.offs)

	img, err := syspage.Parse(data, b.Base())
	if err != nil {
		printError(err)
		return 1
	}
	img.Dump(os.Stdout, cfg.color)
	return 0
}

func main() {
	os.Exit(run(os.Args))
}
