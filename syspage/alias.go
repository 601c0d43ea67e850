package syspage

// Alias names a loadable region of the image. Addr is absolute in the
// target space, Size its byte length. Aliases are build-time bookkeeping
// only and are never serialized.
type Alias struct {
	Name string
	Addr uint32
	Size uint32
}

// aliasTable resolves names to their most recently added binding, so
// redefining an alias shadows the old one.
type aliasTable []Alias

func (t *aliasTable) add(a Alias) {
	*t = append(*t, a)
}

func (t aliasTable) find(name string) *Alias {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Name == name {
			return &t[i]
		}
	}
	return nil
}
