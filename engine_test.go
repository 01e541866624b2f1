package typeconv

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"testing/quick"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rawbytedev/typeconv/config"
	"github.com/rawbytedev/typeconv/pkg/errflags"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/rawbytedev/typeconv/pkg/vardesc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Gains struct {
	P, I, D float64
}

type Motor struct {
	Id      int32
	Name    string
	Label   [8]vardesc.Char
	Enabled bool
	Gains   Gains
	Samples []int16
	Tags    []string
}

type Shapes struct {
	Fixed  [3]uint16
	One    *int32
	Pair   *[2]float64
	Grid   vardesc.Matrix[float32]
	Series vardesc.ZeroTerminated[int32]
	Motors []Motor
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func label(s string) [8]vardesc.Char {
	var l [8]vardesc.Char
	for i := 0; i < len(s) && i < 7; i++ {
		l[i] = vardesc.Char(s[i])
	}
	return l
}

func TestEncodeDecodeScalars(t *testing.T) {
	type Scalars struct {
		Int1  uint8
		Int2  int8
		Int3  uint16
		Int4  int16
		Int5  uint32
		Int6  int32
		Int7  uint64
		Int9  int64
		Flt   float64
		Const bool
	}
	e := newEngine(t)
	space := memory.NewSpace()
	condition := func(z Scalars) bool {
		v, err := e.Encode(space, z)
		require.NoError(t, err)
		res := &Scalars{}
		require.NoError(t, e.Decode(v, res))
		return assert.ObjectsAreEqual(z, *res)
	}
	err := quick.Check(condition, &quick.Config{})
	if err != nil {
		t.Errorf("Error: %v", err)
	}
}

func TestEncodeDecodeStrings(t *testing.T) {
	e := newEngine(t)
	space := memory.NewSpace()
	condition := func(s string) bool {
		if strings.IndexByte(s, 0) >= 0 {
			return true
		}
		v, err := e.Encode(space, s)
		require.NoError(t, err)
		var res string
		require.NoError(t, e.Decode(v, &res))
		return s == res
	}
	err := quick.Check(condition, &quick.Config{})
	if err != nil {
		t.Errorf("Error: %v", err)
	}
}

func TestEncodeDecodeRecord(t *testing.T) {
	e := newEngine(t)
	space := memory.NewSpace()
	z := Motor{
		Id: 7, Name: "left", Label: label("axis-1"), Enabled: true,
		Gains:   Gains{P: 1.5, I: 0.25, D: -3},
		Samples: []int16{100, -250, 300},
		Tags:    []string{"front", "", "slow"},
	}
	v, err := e.Encode(space, &z)
	require.NoError(t, err)
	assert.True(t, v.Desc.TypeDescriptor().IsStructuredData())

	res := &Motor{}
	require.NoError(t, e.Decode(v, res))
	require.EqualExportedValues(t, z, *res)
}

func TestEncodeDecodeShapes(t *testing.T) {
	e := newEngine(t)
	space := memory.NewSpace()
	one := int32(-9)
	z := Shapes{
		Fixed:  [3]uint16{1, 2, 65535},
		One:    &one,
		Pair:   &[2]float64{0.5, 8},
		Grid:   vardesc.Matrix[float32]{Rows: 2, Cols: 3, Data: []float32{1, 2, 3, 4, 5, 6}},
		Series: vardesc.ZeroTerminated[int32]{4, -4, 12},
		Motors: []Motor{{Id: 1, Name: "a"}, {Id: 2, Name: "b", Samples: []int16{}}},
	}
	v, err := e.Encode(space, z)
	require.NoError(t, err)

	res := &Shapes{}
	require.NoError(t, e.Decode(v, res))
	require.EqualExportedValues(t, z, *res)
	assert.Equal(t, float32(6), res.Grid.At(1, 2))

	z.Grid.Rows = 4
	_, err = e.Encode(space, z)
	assert.ErrorIs(t, err, ErrShape)
}

func TestEncodeDecodeNil(t *testing.T) {
	e := newEngine(t)
	space := memory.NewSpace()
	v, err := e.Encode(space, Shapes{})
	require.NoError(t, err)
	res := &Shapes{One: new(int32), Series: vardesc.ZeroTerminated[int32]{1}}
	require.NoError(t, e.Decode(v, res))
	assert.Nil(t, res.One)
	assert.Nil(t, res.Pair)
	assert.Nil(t, res.Series)
	assert.Nil(t, res.Motors)

	_, err = e.Encode(space, nil)
	assert.ErrorIs(t, err, ErrNilValue)
	var nilMotor *Motor
	_, err = e.Encode(space, nilMotor)
	assert.ErrorIs(t, err, ErrNilValue)
	assert.ErrorIs(t, e.Decode(v, Shapes{}), ErrNotPointer)
	_, err = e.Encode(space, map[string]int{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeConverts(t *testing.T) {
	e := newEngine(t)
	space := memory.NewSpace()

	big, err := e.Encode(space, int64(300))
	require.NoError(t, err)
	var small int8
	err = e.Decode(big, &small)
	assert.Equal(t, int8(127), small)
	assert.ErrorIs(t, err, errflags.ErrOutOfRange)
	assert.False(t, errflags.IsFatal(err))

	txt, err := e.Encode(space, "0x2a")
	require.NoError(t, err)
	var n int32
	require.NoError(t, e.Decode(txt, &n))
	assert.Equal(t, int32(42), n)

	list, err := e.Encode(space, []int64{1, -2, 3})
	require.NoError(t, err)
	var narrow []int16
	require.NoError(t, e.Decode(list, &narrow))
	assert.Equal(t, []int16{1, -2, 3}, narrow)

	var s string
	require.NoError(t, e.Decode(big, &s))
	assert.Equal(t, "300", s)
}

func TestDecodeConvertingKeepsSpace(t *testing.T) {
	e := newEngine(t)
	space := memory.NewSpace()
	words, err := e.Encode(space, []string{"7", "-8", "9"})
	require.NoError(t, err)
	nums, err := e.Encode(space, []int32{10, 20})
	require.NoError(t, err)
	mapped := space.Len()

	var ints []int64
	require.NoError(t, e.Decode(words, &ints))
	assert.Equal(t, []int64{7, -8, 9}, ints)
	var texts []string
	require.NoError(t, e.Decode(nums, &texts))
	assert.Equal(t, []string{"10", "20"}, texts)
	assert.Equal(t, mapped, space.Len())

	var same []string
	require.NoError(t, e.Decode(words, &same))
	assert.Equal(t, []string{"7", "-8", "9"}, same)
}

func TestDecodeStructuredText(t *testing.T) {
	e := newEngine(t)
	space := memory.NewSpace()
	doc := `{"id": 3, "name": "m1", "label": "abc", "enabled": true, ` +
		`"gains": {"p": 1, "i": 0.5, "d": 2}, "samples": [5, 6], "tags": ["x"]}`
	v, err := e.Encode(space, doc)
	require.NoError(t, err)
	v.Desc = vardesc.FromTypeDescriptor(typedesc.CCStringType.WithFormat(typedesc.FormatJSON))

	var m Motor
	require.NoError(t, e.Decode(v, &m))
	assert.Equal(t, Motor{
		Id: 3, Name: "m1", Label: label("abc"), Enabled: true,
		Gains: Gains{P: 1, I: 0.5, D: 2}, Samples: []int16{5, 6}, Tags: []string{"x"},
	}, m)

	v.Desc = vardesc.FromTypeDescriptor(typedesc.CCStringType.WithFormat(typedesc.FormatYAML))
	err = e.Decode(v, &m)
	require.NoError(t, err, "JSON is valid YAML")
}

func TestCopyCompare(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newEngine(t, WithLogger(logger))
	space := memory.NewSpace()

	a, err := e.Encode(space, int32(5))
	require.NoError(t, err)
	five, err := e.Encode(space, "5")
	require.NoError(t, err)
	six, err := e.Encode(space, "6")
	require.NoError(t, err)

	equal, err := e.Compare(a, five)
	require.NoError(t, err)
	assert.True(t, equal)
	equal, err = e.Compare(a, six)
	require.NoError(t, err)
	assert.False(t, equal)

	require.NoError(t, e.Copy(a, six))
	var n int32
	require.NoError(t, e.Decode(a, &n))
	assert.Equal(t, int32(6), n)

	bad, err := e.Encode(space, "six")
	require.NoError(t, err)
	err = e.Copy(a, bad)
	assert.True(t, errflags.IsFatal(err))
	assert.Contains(t, logs.String(), "conversion failed")
}

func TestDescribe(t *testing.T) {
	e := newEngine(t)
	d, err := e.Describe([]string{})
	require.NoError(t, err)
	assert.Equal(t, "V", d.Modifiers())
	assert.Equal(t, typedesc.CCStringType, d.TypeDescriptor())

	d, err = e.Describe(vardesc.Matrix[int8]{})
	require.NoError(t, err)
	assert.Equal(t, "M", d.Modifiers())

	d, err = e.Describe(&Motor{})
	require.NoError(t, err)
	assert.True(t, d.IsScalar())
	class, err := e.Class(Motor{})
	require.NoError(t, err)
	assert.Equal(t, class.TypeDescriptor(), d.TypeDescriptor())

	_, err = e.Describe(nil)
	assert.ErrorIs(t, err, ErrNilValue)
}

func TestNewOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Registry.Capacity = 0
	_, err := New(WithConfig(cfg))
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Metrics.Enabled = true
	reg := prometheus.NewRegistry()
	e := newEngine(t, WithConfig(cfg), WithRegisterer(reg))
	assert.True(t, e.Manager().Frozen())
	_, err = New(WithConfig(cfg), WithRegisterer(reg))
	assert.Error(t, err, "metrics registered twice")

	other := newEngine(t, WithManager(e.Manager()))
	assert.Same(t, e.Registry(), other.Registry())
}

func TestParse(t *testing.T) {
	e := newEngine(t)
	space := memory.NewSpace()
	root, err := e.Parse(typedesc.FormatYAML, strings.NewReader("rate: 10\nvalues: [1, 2, 3]\n"), space)
	require.NoError(t, err)
	defer root.Release()

	var values []int32
	require.NoError(t, e.Decode(root.Find("values").Variable(), &values))
	assert.Equal(t, []int32{1, 2, 3}, values)
	var rate uint8
	require.NoError(t, e.Decode(root.Find("rate").Variable(), &rate))
	assert.Equal(t, uint8(10), rate)
}
