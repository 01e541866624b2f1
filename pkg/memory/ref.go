package memory

// Ref is an address bound to its space.
type Ref struct {
	Space *Space
	Addr  Address
}

func (r Ref) IsNil() bool {
	return r.Space == nil || r.Addr == Nil
}

// Offset moves the reference n bytes forward.
func (r Ref) Offset(n uint64) Ref {
	return Ref{Space: r.Space, Addr: r.Addr + Address(n)}
}

// At rebinds the space to another address.
func (r Ref) At(addr Address) Ref {
	return Ref{Space: r.Space, Addr: addr}
}

// Bytes returns n checked bytes at the reference.
func (r Ref) Bytes(n uint64) ([]byte, error) {
	if r.Space == nil {
		return nil, ErrUnmapped
	}
	return r.Space.Bytes(r.Addr, n)
}
