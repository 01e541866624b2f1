// Package typecreator builds scalars, vectors and matrices of a fixed size
// leaf type one element at a time, from text tokens. Storage grows in memory
// pages; a finished build is turned into an Object whose variable describes
// the final shape.
package typecreator

import (
	"log/slog"

	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/numparse"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
)

// DefaultPageSize is the minimum capacity of a new page.
const DefaultPageSize = 4096

type State uint8

const (
	NotStarted State = iota
	Started
	Scalar
	Vector
	MatrixRow
	SparseMatrixRow
	FinishedScalar
	FinishedVector
	FinishedMatrix
	FinishedSparseMatrix
	Consumed
	Failed
)

var stateNames = [...]string{
	"notStarted", "started", "scalar", "vector", "matrixRow", "sparseMatrixRow",
	"finishedS", "finishedV", "finishedM", "finishedSM", "consumed", "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) finished() bool {
	return s >= FinishedScalar && s <= FinishedSparseMatrix
}

// Shape is the terminal shape of a finished build.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapeScalar
	ShapeVector
	ShapeMatrix
	ShapeSparseMatrix
)

func (s Shape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeVector:
		return "vector"
	case ShapeMatrix:
		return "matrix"
	case ShapeSparseMatrix:
		return "sparse matrix"
	}
	return "none"
}

type row struct {
	page   *MemoryPage
	offset uint64
	n      uint32
}

type options struct {
	pageSize uint64
	maxBytes uint64
	logger   *slog.Logger
}

type Option func(*options)

// WithPageSize sets the minimum capacity of new pages.
func WithPageSize(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithMaxBytes caps the total page capacity one build may reserve.
func WithMaxBytes(n uint64) Option {
	return func(o *options) { o.maxBytes = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Creator is the progressive fixed size type creator. It is owned by one
// goroutine at a time.
type Creator struct {
	space *memory.Space
	opts  options
	pages *Pages

	state    State
	leaf     typedesc.Descriptor
	elemSize uint64
	parse    func(tok string, dst []byte) errflags.Flags

	rows     []row
	cur      row
	baseline uint32
	reserved uint64
	strings  []memory.Address
}

func New(space *memory.Space, opts ...Option) *Creator {
	o := options{pageSize: DefaultPageSize, logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return &Creator{space: space, opts: o, pages: NewPages(space)}
}

func (c *Creator) State() State { return c.state }

func (c *Creator) Leaf() typedesc.Descriptor { return c.leaf }

// Shape reports the terminal shape once End succeeded.
func (c *Creator) Shape() Shape {
	switch c.state {
	case FinishedScalar:
		return ShapeScalar
	case FinishedVector:
		return ShapeVector
	case FinishedMatrix:
		return ShapeMatrix
	case FinishedSparseMatrix:
		return ShapeSparseMatrix
	}
	return ShapeNone
}

func (c *Creator) fail(ret errflags.Flags) errflags.Flags {
	c.state = Failed
	return ret
}

func (c *Creator) sequenceError(op string) errflags.Flags {
	c.opts.logger.Debug("creator call out of sequence", "op", op, "state", c.state.String())
	return c.fail(errflags.IllegalOperation | errflags.InternalStateError)
}

// Start prepares a build of leaf elements. Supported leaves are the non bit
// numeric types and CCString.
func (c *Creator) Start(leaf typedesc.Descriptor) errflags.Flags {
	if c.state != NotStarted && c.state != Started {
		return c.sequenceError("Start")
	}
	parse := c.parserFor(leaf)
	if parse == nil {
		return errflags.UnsupportedFeature
	}
	c.leaf = leaf
	c.elemSize = uint64(leaf.StorageSize())
	c.parse = parse
	c.rows = c.rows[:0]
	c.cur = row{}
	c.baseline = 0
	c.state = Started
	return errflags.None
}

func (c *Creator) parserFor(leaf typedesc.Descriptor) func(string, []byte) errflags.Flags {
	if leaf.IsBitType() || !leaf.IsValid() {
		return nil
	}
	size := leaf.Size
	bits := int(size * 8)
	switch {
	case leaf.Type == typedesc.SignedInteger:
		return func(tok string, dst []byte) errflags.Flags {
			v, ret := numparse.ParseInt(tok, bits)
			if ret.ErrorsCleared() {
				common.StoreUint(dst, size, uint64(v))
			}
			return ret
		}
	case leaf.Type == typedesc.UnsignedInteger:
		return func(tok string, dst []byte) errflags.Flags {
			v, ret := numparse.ParseUint(tok, bits)
			if ret.ErrorsCleared() {
				common.StoreUint(dst, size, v)
			}
			return ret
		}
	case leaf.Type == typedesc.Float:
		return func(tok string, dst []byte) errflags.Flags {
			v, ret := numparse.ParseFloat(tok, bits)
			if ret.ErrorsCleared() {
				common.StoreFloat(dst, size, v)
			}
			return ret
		}
	case leaf.Type == typedesc.CCString:
		return func(tok string, dst []byte) errflags.Flags {
			addr := c.space.AllocString(tok)
			c.strings = append(c.strings, addr)
			common.StoreUint(dst, memory.PointerSize, uint64(addr))
			return errflags.None
		}
	}
	return nil
}

// AddElement converts tok to one leaf element and appends it to the current
// row. A token that cannot be converted is not appended; a saturated value
// is appended and reported as OutOfRange.
func (c *Creator) AddElement(tok string) errflags.Flags {
	if !c.accepting() {
		return c.sequenceError("AddElement")
	}
	var scratch [8]byte
	ret := c.parse(tok, scratch[:c.elemSize])
	if !ret.ErrorsCleared() {
		return ret
	}
	return ret | c.append(scratch[:c.elemSize])
}

func (c *Creator) accepting() bool {
	switch c.state {
	case Started, Scalar, Vector, MatrixRow, SparseMatrixRow:
		return true
	}
	return false
}

// addRaw appends an already encoded element.
func (c *Creator) addRaw(elem []byte) errflags.Flags {
	if !c.accepting() || uint64(len(elem)) != c.elemSize {
		return c.sequenceError("addRaw")
	}
	return c.append(elem)
}

func (c *Creator) append(elem []byte) errflags.Flags {
	page := c.pages.Head()
	if page == nil || page.Room() < c.elemSize {
		if ret := c.newPage(); ret != errflags.None {
			return ret
		}
		page = c.pages.Head()
	}
	if c.cur.n == 0 {
		c.cur.page = page
		c.cur.offset = page.Size()
	}
	buf, err := c.pages.Grow(page, c.elemSize)
	if err != nil {
		return c.fail(errflags.OutOfMemory | errflags.FatalError)
	}
	copy(buf, elem)
	c.cur.n++
	switch c.state {
	case Started:
		c.state = Scalar
	case Scalar:
		c.state = Vector
	}
	return errflags.None
}

// newPage allocates a page large enough for the whole row in progress plus
// one element and moves the row there, so rows never straddle pages.
func (c *Creator) newPage() errflags.Flags {
	want := uint64(c.cur.n+1) * c.elemSize
	if len(c.rows) == 0 {
		// first row: length still unknown
		want *= 2
	} else if b := uint64(c.baseline) * c.elemSize; b > want {
		want = b
	}
	capacity := max(c.opts.pageSize, want)
	if c.opts.maxBytes > 0 && c.reserved+capacity > c.opts.maxBytes {
		c.opts.logger.Warn("creator page budget exhausted",
			"reserved", c.reserved, "requested", capacity, "limit", c.opts.maxBytes)
		return c.fail(errflags.OutOfMemory | errflags.FatalError)
	}
	old := c.pages.Head()
	page := c.pages.Allocate(capacity)
	c.reserved += capacity
	c.opts.logger.Debug("creator page allocated", "capacity", capacity, "pages", c.pages.Len())
	if old == nil {
		return errflags.None
	}
	if c.cur.n > 0 {
		size := uint64(c.cur.n) * c.elemSize
		src, err := c.space.Bytes(old.Addr+memory.Address(c.cur.offset), size)
		if err != nil {
			return c.fail(errflags.FatalError)
		}
		dst, err := c.pages.Grow(page, size)
		if err != nil {
			return c.fail(errflags.OutOfMemory | errflags.FatalError)
		}
		copy(dst, src)
		if err := c.pages.Shrink(old, size); err != nil {
			return c.fail(errflags.FatalError)
		}
		c.cur.page = page
		c.cur.offset = 0
	}
	old.closed = true
	if old.size == 0 {
		c.pages.unlink(old)
	}
	return errflags.None
}

// EndVector closes the current row. The first row fixes the baseline length;
// any later row of another length makes the matrix sparse.
func (c *Creator) EndVector() errflags.Flags {
	switch c.state {
	case Started, Scalar, Vector, MatrixRow, SparseMatrixRow:
	default:
		return c.sequenceError("EndVector")
	}
	if len(c.rows) == 0 {
		c.baseline = c.cur.n
		c.state = MatrixRow
	} else if c.cur.n != c.baseline {
		c.state = SparseMatrixRow
	}
	if c.cur.n == 0 {
		c.cur.page = nil
		c.cur.offset = 0
	}
	c.rows = append(c.rows, c.cur)
	c.cur = row{}
	return errflags.None
}

// End finalises the build. In matrix mode a row left open is NotCompleted
// and the creator stays usable.
func (c *Creator) End() errflags.Flags {
	switch c.state {
	case Started, Vector:
		c.state = FinishedVector
	case Scalar:
		c.state = FinishedScalar
	case MatrixRow, SparseMatrixRow:
		if c.cur.n > 0 {
			return errflags.NotCompleted
		}
		if c.state == MatrixRow {
			c.state = FinishedMatrix
		} else {
			c.state = FinishedSparseMatrix
		}
	default:
		return c.sequenceError("End")
	}
	c.pages.Close()
	c.pages.FlipOrder()
	return errflags.None
}

// GetReference hands the finished build over to a new Object. The creator
// must be cleaned before it is started again.
func (c *Creator) GetReference() (*Object, errflags.Flags) {
	if !c.state.finished() {
		return nil, c.sequenceError("GetReference")
	}
	obj := &Object{space: c.space, leaf: c.leaf, elemSize: c.elemSize, shape: c.Shape()}
	obj.pages.Steal(c.pages)
	obj.strings, c.strings = c.strings, nil
	if c.state == FinishedScalar || c.state == FinishedVector {
		obj.rows = []row{c.cur}
	} else {
		obj.rows = append([]row(nil), c.rows...)
	}
	if ret := obj.materialise(); ret != errflags.None {
		obj.Release()
		return nil, c.fail(ret)
	}
	c.state = Consumed
	return obj, errflags.None
}

// Clean releases everything the creator still owns and returns it to
// NotStarted.
func (c *Creator) Clean() {
	if err := c.pages.Clean(); err != nil {
		c.opts.logger.Debug("creator page release failed", "err", err)
	}
	for _, addr := range c.strings {
		_ = c.space.Free(addr)
	}
	c.strings = nil
	c.rows = c.rows[:0]
	c.cur = row{}
	c.baseline = 0
	c.reserved = 0
	c.parse = nil
	c.leaf = typedesc.InvalidType
	c.elemSize = 0
	c.state = NotStarted
}
