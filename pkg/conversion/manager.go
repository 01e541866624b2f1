package conversion

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rawbytedev/typeconv/pkg/classreg"
	"github.com/rawbytedev/typeconv/pkg/format"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
)

// DefaultCapacity is the number of factory slots of a Manager.
const DefaultCapacity = 64

var (
	ErrFull       = errors.New("conversion: factory registry is full")
	ErrFrozen     = errors.New("conversion: factory registry is frozen")
	ErrNilFactory = errors.New("conversion: nil factory")
)

type Option func(*Manager)

// WithCapacity bounds the number of factories.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRegistry sets the class registry used for records.
func WithRegistry(r *classreg.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

func WithComparePolicy(p ComparePolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithFormat sets the number formatting of the default string factories.
func WithFormat(d format.Descriptor) Option {
	return func(m *Manager) { m.format = d }
}

// WithMetrics attaches counters. A nil value disables them.
func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager is the ordered factory registry. Registration normally happens
// before Freeze; after Freeze the registry is read only and lookups from any
// goroutine need no further coordination.
type Manager struct {
	mu        sync.RWMutex
	factories []Factory
	capacity  int
	frozen    bool

	registry *classreg.Registry
	policy   ComparePolicy
	format   format.Descriptor
	logger   *slog.Logger
	metrics  *Metrics
}

// NewManager returns an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		capacity: DefaultCapacity,
		registry: classreg.New(),
		format:   format.Default,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	m.factories = make([]Factory, 0, m.capacity)
	return m
}

// Default returns a frozen manager holding the builtin factories. Lookups try
// them in this order: same type copy, bitset, numeric, string to string,
// string to number, number to string, structured from string, then the char
// array variable factory.
func Default(opts ...Option) *Manager {
	m := NewManager(opts...)
	f := m.format
	for _, fac := range []Factory{
		CopyFactory{Policy: m.policy},
		BitSetFactory{Policy: m.policy},
		NumericFactory{Policy: m.policy},
		StringToStringFactory{Policy: m.policy},
		StringToNumberFactory{Policy: m.policy},
		NumberToStringFactory{Policy: m.policy, Format: &f},
		StructuredFactory{Manager: m},
		CharArrayFactory{},
	} {
		if err := m.Register(fac); err != nil {
			m.logger.Error("builtin factory rejected", "factory", fmt.Sprintf("%T", fac), "error", err)
		}
	}
	m.Freeze()
	return m
}

// Register appends f. It fails when the registry is full or frozen.
func (m *Manager) Register(f Factory) error {
	if f == nil {
		return ErrNilFactory
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return ErrFrozen
	}
	if len(m.factories) >= m.capacity {
		return fmt.Errorf("%w (%d slots)", ErrFull, m.capacity)
	}
	m.factories = append(m.factories, f)
	m.metrics.registered(len(m.factories))
	m.logger.Debug("factory registered", "factory", fmt.Sprintf("%T", f), "slot", len(m.factories)-1)
	return nil
}

// Freeze closes registration.
func (m *Manager) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

func (m *Manager) Frozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}

// Clean empties every slot and reopens registration. The factories
// themselves are left alone. Calling it again is harmless.
func (m *Manager) Clean() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.factories)
	m.factories = m.factories[:0]
	m.frozen = false
	m.metrics.cleaned()
}

// Factories returns the registered factories in lookup order.
func (m *Manager) Factories() []Factory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Factory(nil), m.factories...)
}

func (m *Manager) Registry() *classreg.Registry { return m.registry }
func (m *Manager) Policy() ComparePolicy { return m.policy }
func (m *Manager) Logger() *slog.Logger { return m.logger }

// GetOperator asks each factory in registration order and returns the first
// operator offered, or nil.
func (m *Manager) GetOperator(dst, src typedesc.Descriptor, isCompare bool) Operator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.factories {
		if op := f.GetOperator(dst, src, isCompare); op != nil {
			m.metrics.lookup("leaf", true)
			return op
		}
	}
	m.metrics.lookup("leaf", false)
	return nil
}

// GetVariableOperator is GetOperator for factories that match whole
// variables.
func (m *Manager) GetVariableOperator(dst, src vardesc.Descriptor, isCompare bool) VariableOperator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.factories {
		vf, ok := f.(VariableFactory)
		if !ok {
			continue
		}
		if op := vf.GetVariableOperator(dst, src, isCompare); op != nil {
			m.metrics.lookup("variable", true)
			return op
		}
	}
	m.metrics.lookup("variable", false)
	return nil
}
