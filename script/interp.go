package script

import (
	"bufio"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/lunixbochs/argjoy"
	"github.com/pkg/errors"

	"syspagen/syspage"
)

// ConsoleDev is a parsed console selector. The major picks the driver while
// the image is assembled; only the minor lands in the syspage header.
type ConsoleDev struct {
	Major uint32
	Minor uint32
}

type command struct {
	Name     string
	Instance reflect.Value
	Method   reflect.Method
	In       []reflect.Type
	RawArgs  bool
}

// Interp runs boot scripts against a syspage builder. Commands are looked
// up by their first token; lines whose first token matches nothing are
// ignored, and a blank line ends the script early.
type Interp struct {
	cmds map[string]*command
	joy  argjoy.Argjoy
}

// NewInterp builds the dispatch table by reflecting over the command set's
// exported methods. A method taking a single []string receives the raw
// argument tokens; any other method gets its arguments converted one token
// at a time.
func NewInterp(b *syspage.Builder) *Interp {
	in := &Interp{cmds: make(map[string]*command)}
	instance := reflect.ValueOf(&cmdSet{b: b})
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		cmd := &command{
			Name:     strings.ToLower(method.Name),
			Instance: instance,
			Method:   method,
		}
		for j := 1; j < method.Type.NumIn(); j++ {
			cmd.In = append(cmd.In, method.Type.In(j))
		}
		if len(cmd.In) == 1 && cmd.In[0] == reflect.TypeOf([]string(nil)) {
			cmd.RawArgs = true
		}
		in.cmds[cmd.Name] = cmd
	}
	in.joy.Register(in.tokenCodec)
	return in
}

// Run executes one script from r, command by command, stopping without
// error at the first blank line.
func (in *Interp) Run(r io.Reader) error {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		argv, err := splitLine(scan.Text())
		if err != nil {
			return err
		}
		if len(argv) == 0 {
			return nil
		}
		cmd, ok := in.cmds[argv[0]]
		if !ok {
			continue
		}
		if err := in.call(cmd, argv[1:]); err != nil {
			return errors.Wrapf(err, "failed %s", argv[0])
		}
	}
	return errors.WithStack(scan.Err())
}

// RunFile runs the script at path.
func (in *Interp) RunFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "cannot open script")
	}
	defer f.Close()
	return in.Run(f)
}

func (in *Interp) call(cmd *command, args []string) error {
	vals := []reflect.Value{cmd.Instance}
	if cmd.RawArgs {
		vals = append(vals, reflect.ValueOf(args))
	} else {
		if len(args) != len(cmd.In) {
			return errors.New("wrong argument count")
		}
		converted, err := in.joy.Convert(cmd.In, false, args)
		if err != nil {
			return err
		}
		vals = append(vals, converted...)
	}
	ret := cmd.Method.Func.Call(vals)
	if err, ok := ret[0].Interface().(error); ok && err != nil {
		return err
	}
	return nil
}

// tokenCodec converts one script token into a typed handler argument.
// Numbers use C-like literals: 0x for hex, a leading 0 for octal, decimal
// otherwise.
func (in *Interp) tokenCodec(arg interface{}, vals []interface{}) error {
	tok, ok := vals[0].(string)
	if !ok {
		return argjoy.NoMatch
	}
	switch v := arg.(type) {
	case *string:
		*v = tok
	case *uint32:
		n, err := strconv.ParseUint(tok, 0, 32)
		if err != nil {
			return errors.Wrapf(err, "wrong argument %q", tok)
		}
		*v = uint32(n)
	case *syspage.Attr:
		attr, err := syspage.ParseAttr(tok)
		if err != nil {
			return err
		}
		*v = attr
	case *ConsoleDev:
		dev, err := parseConsole(tok)
		if err != nil {
			return err
		}
		*v = dev
	default:
		return argjoy.NoMatch
	}
	return nil
}

func parseConsole(tok string) (ConsoleDev, error) {
	dot := strings.IndexByte(tok, '.')
	if dot < 0 {
		return ConsoleDev{}, errors.Errorf("wrong major value: %s", tok)
	}
	major, err := strconv.ParseUint(tok[:dot], 0, 32)
	if err != nil {
		return ConsoleDev{}, errors.Errorf("wrong major value: %s", tok)
	}
	minor, err := strconv.ParseUint(tok[dot+1:], 0, 32)
	if err != nil {
		return ConsoleDev{}, errors.Errorf("wrong minor value: %s", tok)
	}
	return ConsoleDev{Major: uint32(major), Minor: uint32(minor)}, nil
}

// cmdSet holds the script commands. Every exported method is one command,
// named by its lowercased method name.
type cmdSet struct {
	b *syspage.Builder
}

// Alias declares a named region of the image: alias <name> <offs> <size>.
func (c *cmdSet) Alias(name string, offs, size uint32) error {
	c.b.AddAlias(name, offs, size)
	return nil
}

// Map registers a memory map: map <name> <start> <end> <attrs>.
func (c *cmdSet) Map(name string, start, end uint32, attr syspage.Attr) error {
	return c.b.AddMap(name, start, end, attr)
}

// Console selects the boot console: console <major>.<minor>.
func (c *cmdSet) Console(dev ConsoleDev) error {
	c.b.SetConsole(dev.Minor)
	return nil
}

// App registers a boot program: app [-X] <name[;argv...]> <imaps> <dmaps>.
// The program name is the first ';' field of the argument token, and the
// token as a whole becomes the program's argument text.
func (c *cmdSet) App(args []string) error {
	exec := false
	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		if args[0] != "-x" && args[0] != "-X" {
			return errors.Errorf("wrong argument %q", args[0])
		}
		exec = true
		args = args[1:]
	}
	if len(args) != 3 {
		return errors.New("wrong argument count")
	}
	argv := args[0]
	name := argv
	if i := strings.IndexByte(argv, ';'); i >= 0 {
		name = argv[:i]
	}
	return c.b.AddProgram(name, args[1], args[2], argv, exec)
}
