// Package typeconv converts typed variables living in a memory.Space: copies
// and compares between any two shapes the registered operators understand,
// and moves Go values in and out of the space.
package typeconv

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rawbytedev/typeconv/config"
	"github.com/rawbytedev/typeconv/pkg/classreg"
	"github.com/rawbytedev/typeconv/pkg/conversion"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/structparse"
	"github.com/rawbytedev/typeconv/pkg/typecreator"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

var (
	ErrNilValue    = errors.New("nil value")
	ErrNotPointer  = errors.New("expected non nil pointer")
	ErrUnsupported = errors.New("unsupported type")
	ErrShape       = errors.New("matrix data does not match rows*cols")
)

type Option func(*Engine)

func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithManager uses m instead of building one from the config. The registry
// of m is then used too.
func WithManager(m *conversion.Manager) Option {
	return func(e *Engine) { e.manager = m }
}

func WithRegistry(r *classreg.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithRegisterer is where manager metrics go when metrics.enabled is set.
// It defaults to prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = r }
}

// Engine is safe for concurrent use once built.
type Engine struct {
	cfg        config.Config
	logger     *slog.Logger
	manager    *conversion.Manager
	registry   *classreg.Registry
	registerer prometheus.Registerer

	mu    sync.RWMutex
	plans map[reflect.Type]*plan
}

func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    config.Default(),
		logger: slog.Default(),
		plans:  make(map[reflect.Type]*plan),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if e.manager != nil {
		e.registry = e.manager.Registry()
		return e, nil
	}
	if e.registry == nil {
		e.registry = classreg.New()
	}
	mopts := append(e.cfg.ManagerOptions(), conversion.WithLogger(e.logger), conversion.WithRegistry(e.registry))
	if e.cfg.Metrics.Enabled {
		if e.registerer == nil {
			e.registerer = prometheus.DefaultRegisterer
		}
		mt, err := conversion.NewMetrics(e.registerer)
		if err != nil {
			return nil, err
		}
		mopts = append(mopts, conversion.WithMetrics(mt))
	}
	e.manager = conversion.Default(mopts...)
	return e, nil
}

func (e *Engine) Manager() *conversion.Manager { return e.manager }
func (e *Engine) Registry() *classreg.Registry { return e.registry }
func (e *Engine) Config() config.Config { return e.cfg }

// Copy converts src into dst. The error carries the flags of the conversion
// and is also returned for non fatal outcomes such as OutOfRange; use
// errflags.IsFatal to tell them apart.
func (e *Engine) Copy(dst, src vardesc.Variable) error {
	ret := e.manager.Copy(dst, src)
	return e.report("Copy", ret, dst, src)
}

// Compare reports whether a holds the value of b once converted to the type
// of a.
func (e *Engine) Compare(a, b vardesc.Variable) (bool, error) {
	ret := e.manager.Compare(a, b)
	equal := !ret.Any(errflags.ComparisonFailure)
	return equal, e.report("Compare", ret&^errflags.ComparisonFailure, a, b)
}

func (e *Engine) report(op string, ret errflags.Flags, dst, src vardesc.Variable) error {
	if ret == errflags.None {
		return nil
	}
	if ret.ErrorsCleared() {
		e.logger.Debug("conversion completed with notices", "op", op, "dst", dst.Desc.String(), "src", src.Desc.String(), "flags", ret.String())
	} else {
		e.logger.Warn("conversion failed", "op", op, "dst", dst.Desc.String(), "src", src.Desc.String(), "flags", ret.String())
	}
	return errflags.New(ret, "typeconv."+op, "%s <- %s", dst.Desc, src.Desc)
}

// Describe returns the variable descriptor of value's type. Pointers to
// structs describe the struct, as in Encode.
func (e *Engine) Describe(value any) (vardesc.Descriptor, error) {
	rt, err := valueType(value)
	if err != nil {
		return vardesc.Descriptor{}, err
	}
	p, err := e.plan(rt)
	if err != nil {
		return vardesc.Descriptor{}, err
	}
	return p.desc, nil
}

// Parse reads a structured document into a node tree built in space with the
// configured creator settings.
func (e *Engine) Parse(format typedesc.Format, r io.Reader, space *memory.Space) (*structparse.Node, error) {
	opts := append(e.cfg.CreatorOptions(), typecreator.WithLogger(e.logger))
	return structparse.Parse(format, r, space, opts...)
}

func valueType(value any) (reflect.Type, error) {
	rt := reflect.TypeOf(value)
	if rt == nil {
		return nil, ErrNilValue
	}
	if rt.Kind() == reflect.Pointer && rt.Elem().Kind() == reflect.Struct {
		rt = rt.Elem()
	}
	return rt, nil
}
