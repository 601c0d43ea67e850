package syspage

import (
	"github.com/pkg/errors"
)

// Attr is the access/cache attribute mask of a map, mirrored bit for bit by
// the kernel's memory subsystem.
type Attr uint32

const (
	AttrRead Attr = 1 << iota
	AttrWrite
	AttrExec
	AttrShareable
	AttrCacheable
	AttrBufferable
)

var attrLetters = []byte("rwxscb")

// ParseAttr turns a script attribute string into a mask.
func ParseAttr(s string) (Attr, error) {
	var attr Attr
	for i := 0; i < len(s); i++ {
		bit := -1
		for j, c := range attrLetters {
			if s[i] == c {
				bit = j
				break
			}
		}
		if bit < 0 {
			return 0, errors.Errorf("wrong attribute - '%c'", s[i])
		}
		attr |= 1 << uint(bit)
	}
	return attr, nil
}

func (a Attr) String() string {
	out := make([]byte, len(attrLetters))
	for i, c := range attrLetters {
		if a&(1<<uint(i)) != 0 {
			out[i] = c
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}
