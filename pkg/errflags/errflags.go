// Package errflags carries the composite error flags returned by every layer of
// the conversion engine, and a classified error value for API boundaries.
package errflags

import (
	"errors"
	"fmt"
	"strings"
)

// Flags is a set of error conditions. Several flags can be raised at once.
type Flags uint32

// None means the operation fully succeeded.
const None Flags = 0

const (
	FatalError Flags = 1 << iota
	RecoverableError
	InitialisationError
	ParametersError
	IllegalOperation
	UnsupportedFeature
	InternalSetupError
	Exception
	Timeout
	SyntaxError
	OutOfRange
	InvalidOperation
	ComparisonFailure
	OutOfMemory
	InternalStateError
	NotCompleted
	Warning
	Information
)

// nonFatal flags are reported but do not stop processing.
const nonFatal = OutOfRange | Warning | Information

var flagNames = []struct {
	flag Flags
	name string
}{
	{FatalError, "FatalError"},
	{RecoverableError, "RecoverableError"},
	{InitialisationError, "InitialisationError"},
	{ParametersError, "ParametersError"},
	{IllegalOperation, "IllegalOperation"},
	{UnsupportedFeature, "UnsupportedFeature"},
	{InternalSetupError, "InternalSetupError"},
	{Exception, "Exception"},
	{Timeout, "Timeout"},
	{SyntaxError, "SyntaxError"},
	{OutOfRange, "OutOfRange"},
	{InvalidOperation, "InvalidOperation"},
	{ComparisonFailure, "ComparisonFailure"},
	{OutOfMemory, "OutOfMemory"},
	{InternalStateError, "InternalStateError"},
	{NotCompleted, "NotCompleted"},
	{Warning, "Warning"},
	{Information, "Information"},
}

// Has reports whether every flag in mask is set.
func (f Flags) Has(mask Flags) bool {
	return mask != 0 && f&mask == mask
}

// Any reports whether at least one flag of mask is set.
func (f Flags) Any(mask Flags) bool {
	return f&mask != 0
}

// ErrorsCleared reports whether no fatal flag is set. OutOfRange, Warning and
// Information do not count.
func (f Flags) ErrorsCleared() bool {
	return f&^nonFatal == 0
}

// Fatal returns only the flags that stop processing.
func (f Flags) Fatal() Flags {
	return f &^ nonFatal
}

func (f Flags) String() string {
	if f == None {
		return "None"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Err converts the flags into an error: nil when nothing is set at all.
func (f Flags) Err(op string) error {
	if f == None {
		return nil
	}
	return &Error{Flags: f, Operation: op}
}

// Error is the classified error returned at API boundaries.
type Error struct {
	Flags     Flags
	Component string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString(e.Component)
		b.WriteString(".")
	}
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
		b.WriteString(" ")
	}
	b.WriteString("[")
	b.WriteString(e.Flags.String())
	b.WriteString("]")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error carrying a subset of the same flags, so callers
// can write errors.Is(err, errflags.ErrComparison).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t.Operation != "" || t.Message != "" {
		return false
	}
	return e.Flags.Has(t.Flags)
}

// Sentinels usable with errors.Is.
var (
	ErrFatal       = &Error{Flags: FatalError}
	ErrOutOfRange  = &Error{Flags: OutOfRange}
	ErrComparison  = &Error{Flags: ComparisonFailure}
	ErrUnsupported = &Error{Flags: UnsupportedFeature}
	ErrInvalidOp   = &Error{Flags: InvalidOperation}
	ErrIllegalOp   = &Error{Flags: IllegalOperation}
	ErrOutOfMemory = &Error{Flags: OutOfMemory}
	ErrState       = &Error{Flags: InternalStateError}
	ErrNotComplete = &Error{Flags: NotCompleted}
)

// New builds a classified error.
func New(flags Flags, op, format string, args ...any) *Error {
	return &Error{Flags: flags, Operation: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches flags to an underlying error.
func Wrap(err error, flags Flags, component, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Flags: flags | FlagsOf(err), Component: component, Operation: op, Err: err}
}

// FlagsOf extracts the flags carried by err. Unclassified errors count as FatalError.
func FlagsOf(err error) Flags {
	if err == nil {
		return None
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Flags
	}
	return FatalError
}

// IsFatal reports whether err must stop processing.
func IsFatal(err error) bool {
	return err != nil && !FlagsOf(err).ErrorsCleared()
}
