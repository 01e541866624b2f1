package typecreator

import (
	"github.com/rawbytedev/typeconv/pkg/memory"
)

// MemoryPage is one segment of a page chain. Its logical size grows in place
// up to its capacity; once closed the size is fixed.
type MemoryPage struct {
	Addr     memory.Address
	size     uint64
	capacity uint64
	prev     *MemoryPage
	closed   bool
}

func (p *MemoryPage) Size() uint64 { return p.size }
func (p *MemoryPage) Capacity() uint64 { return p.capacity }
func (p *MemoryPage) Room() uint64 { return p.capacity - p.size }
func (p *MemoryPage) Closed() bool { return p.closed }

// Prev is the back link: the older page while building, the next page once
// the chain order was flipped.
func (p *MemoryPage) Prev() *MemoryPage { return p.prev }

// Pages is a singly linked page chain, newest first while building.
type Pages struct {
	space   *memory.Space
	head    *MemoryPage
	count   int
	flipped bool
}

func NewPages(space *memory.Space) *Pages {
	return &Pages{space: space}
}

// Allocate maps a new empty page of the given capacity and makes it the head.
func (p *Pages) Allocate(capacity uint64) *MemoryPage {
	addr, _ := p.space.AllocCap(0, capacity)
	page := &MemoryPage{Addr: addr, capacity: capacity, prev: p.head}
	p.head = page
	p.count++
	return page
}

// Grow extends page by n bytes in place and returns the new bytes.
func (p *Pages) Grow(page *MemoryPage, n uint64) ([]byte, error) {
	if page.closed || page.size+n > page.capacity {
		return nil, memory.ErrReserved
	}
	buf, err := p.space.Resize(page.Addr, page.size+n)
	if err != nil {
		return nil, err
	}
	old := page.size
	page.size += n
	return buf[old:], nil
}

// Shrink drops the last n bytes of page.
func (p *Pages) Shrink(page *MemoryPage, n uint64) error {
	if n > page.size {
		n = page.size
	}
	if _, err := p.space.Resize(page.Addr, page.size-n); err != nil {
		return err
	}
	page.size -= n
	return nil
}

// Bytes returns the used part of page.
func (p *Pages) Bytes(page *MemoryPage) ([]byte, error) {
	return p.space.Bytes(page.Addr, page.size)
}

func (p *Pages) Head() *MemoryPage { return p.head }
func (p *Pages) Len() int { return p.count }

// unlink unmaps page and removes it from the chain.
func (p *Pages) unlink(page *MemoryPage) {
	link := &p.head
	for *link != nil && *link != page {
		link = &(*link).prev
	}
	if *link == nil {
		return
	}
	*link = page.prev
	p.count--
	_ = p.space.Free(page.Addr)
}

// Close fixes the size of every page.
func (p *Pages) Close() {
	for pg := p.head; pg != nil; pg = pg.prev {
		pg.closed = true
	}
}

// FlipOrder reverses the chain so the head is the oldest page.
func (p *Pages) FlipOrder() {
	var prev *MemoryPage
	for pg := p.head; pg != nil; {
		next := pg.prev
		pg.prev = prev
		prev = pg
		pg = next
	}
	p.head = prev
	p.flipped = !p.flipped
}

// Oldest returns the pages from the first allocated to the last.
func (p *Pages) Oldest() []*MemoryPage {
	out := make([]*MemoryPage, 0, p.count)
	for pg := p.head; pg != nil; pg = pg.prev {
		out = append(out, pg)
	}
	if !p.flipped {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Steal moves the chain of other into p, leaving other empty. p must be empty.
func (p *Pages) Steal(other *Pages) {
	p.space = other.space
	p.head, p.count, p.flipped = other.head, other.count, other.flipped
	other.head, other.count, other.flipped = nil, 0, false
}

// Clean unmaps every page.
func (p *Pages) Clean() error {
	var first error
	for pg := p.head; pg != nil; pg = pg.prev {
		if err := p.space.Free(pg.Addr); err != nil && first == nil {
			first = err
		}
	}
	p.head, p.count, p.flipped = nil, 0, false
	return first
}
