// Package classreg registers Go struct types as structured leaf types: each
// class has an id, a size, an alignment and members laid out in declaration
// order with natural alignment.
package classreg

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/dimension"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

var (
	ErrNotStruct = errors.New("expected struct")
	ErrRecursive = errors.New("recursive struct type")
	ErrUnknown   = errors.New("unknown class")
)

// Member is one exported field of a class.
type Member struct {
	Name   string
	Index  int
	Offset uint64
	Desc   vardesc.Descriptor
}

// Class is the layout of a registered struct.
type Class struct {
	ID        uint32
	Name      string
	Type      reflect.Type
	Size      uint64
	Alignment uint64
	Members   []Member
}

// TypeDescriptor is the structured leaf descriptor of the class.
func (c *Class) TypeDescriptor() typedesc.Descriptor {
	return typedesc.StructuredType(c.ID, uint32(c.Size))
}

// Member finds a member by name.
func (c *Class) Member(name string) (Member, bool) {
	for _, m := range c.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// Variable locates member m inside the record at v.
func (m Member) Variable(v vardesc.Variable) vardesc.Variable {
	return vardesc.At(v.Ref.Space, v.Ref.Addr+memory.Address(m.Offset), m.Desc)
}

// Registry holds the classes. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*Class
	byName  map[string]*Class
	classes []*Class
	pending map[reflect.Type]bool
}

func New() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*Class),
		byName:  make(map[string]*Class),
		pending: make(map[reflect.Type]bool),
	}
}

// Register returns the class of rt, building it on first use. Pointers to
// structs are accepted.
func (r *Registry) Register(rt reflect.Type) (*Class, error) {
	if rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, ErrNotStruct
	}
	r.mu.RLock()
	if c, ok := r.byType[rt]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check
	if c, ok := r.byType[rt]; ok {
		return c, nil
	}
	return r.build(rt)
}

// Instance returns the class of T.
func Instance[T any](r *Registry) (*Class, error) {
	return r.Register(reflect.TypeFor[T]())
}

// lockedLookup resolves nested structs while the registry lock is held.
type lockedLookup struct {
	r   *Registry
	err error
}

func (l *lockedLookup) Lookup(rt reflect.Type) (typedesc.Descriptor, bool) {
	if c, ok := l.r.byType[rt]; ok {
		return c.TypeDescriptor(), true
	}
	c, err := l.r.build(rt)
	if err != nil {
		l.err = err
		return typedesc.InvalidType, false
	}
	return c.TypeDescriptor(), true
}

func (r *Registry) build(rt reflect.Type) (*Class, error) {
	if r.pending[rt] {
		return nil, fmt.Errorf("%w: %s", ErrRecursive, rt)
	}
	r.pending[rt] = true
	defer delete(r.pending, rt)

	lookup := &lockedLookup{r: r}
	c := &Class{Name: rt.String(), Type: rt, Alignment: 1}
	var offset uint64
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if sf.PkgPath != "" && !sf.Anonymous {
			continue // skip unexported
		}
		desc, err := vardesc.FromReflect(sf.Type, lookup)
		if err != nil {
			if lookup.err != nil {
				return nil, lookup.err
			}
			return nil, fmt.Errorf("%s.%s: %w", rt, sf.Name, err)
		}
		align := r.alignmentOf(desc)
		offset = common.Align(offset, align)
		c.Members = append(c.Members, Member{Name: sf.Name, Index: i, Offset: offset, Desc: desc})
		offset += desc.Footprint()
		c.Alignment = max(c.Alignment, align)
	}
	c.Size = common.Align(offset, c.Alignment)

	c.ID = uint32(len(r.classes) + 1)
	r.classes = append(r.classes, c)
	r.byType[rt] = c
	r.byName[c.Name] = c
	return c, nil
}

// alignmentOf follows the first layer: headers and pointers align on 8,
// inline arrays on their element, structs on their own alignment.
func (r *Registry) alignmentOf(desc vardesc.Descriptor) uint64 {
	h := desc.Handler()
	for i := 0; i < h.NumberOfLayers(); i++ {
		l := h.Layer(i)
		switch {
		case l.Kind.Redirects():
			return memory.PointerSize
		case l.Kind == dimension.KindTerminal:
			leaf := h.Leaf()
			if leaf.IsStructuredData() {
				if int(leaf.ClassID) <= len(r.classes) && leaf.ClassID > 0 {
					return r.classes[leaf.ClassID-1].Alignment
				}
				return memory.PointerSize
			}
			if leaf.Type == typedesc.StaticCString || leaf.Type == typedesc.Char {
				return 1
			}
			return uint64(common.Alignment(int(leaf.StorageSize())))
		}
	}
	return 1
}

// ByID returns the class with the given id.
func (r *Registry) ByID(id uint32) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == 0 || int(id) > len(r.classes) {
		return nil, false
	}
	return r.classes[id-1], true
}

// ByName returns the class registered under the Go type name, e.g. "pkg.Point".
func (r *Registry) ByName(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Lookup implements vardesc.StructLookup, registering rt on first use.
func (r *Registry) Lookup(rt reflect.Type) (typedesc.Descriptor, bool) {
	c, err := r.Register(rt)
	if err != nil {
		return typedesc.InvalidType, false
	}
	return c.TypeDescriptor(), true
}

// Classes lists the registered classes sorted by name.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	out := append([]*Class(nil), r.classes...)
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Describe returns the variable descriptor of any Go type, resolving structs
// through the registry.
func (r *Registry) Describe(rt reflect.Type) (vardesc.Descriptor, error) {
	return vardesc.FromReflect(rt, r)
}
